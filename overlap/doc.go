// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package overlap defines the read/overlap/CIGAR data model the correction
// pipeline consumes: a target read, the query reads aligned against it, and
// the CIGAR run-length encodings describing those alignments.
package overlap
