// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package feature builds the per-window multi-sequence-alignment tensors
// (bases, quals, indices, supported-column mask) the inference backend
// consumes, from a window's CIGAR-sliced overlaps.
package feature
