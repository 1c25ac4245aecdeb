// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package correct wires overlap, window, feature, infer, decode and
// reassembly into the end-to-end pipeline orchestrator (C9): input workers
// that partition and feature-ize incoming alignments, inference workers
// that batch and decode non-trivial windows, and decode workers that
// finish reassembly and emit corrected reads.
package correct
