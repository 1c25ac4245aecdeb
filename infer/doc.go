// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package infer implements the inference batcher: it packs variable-length
// windows into slot-budgeted batches, collates them to common dimensions,
// invokes an opaque neural-network backend under a per-device mutex, and
// splits the result back out per window.
package infer
