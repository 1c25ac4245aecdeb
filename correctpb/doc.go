// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package correctpb defines the wire messages the pipeline orchestrator
// consumes and produces, and their recordio marshaling: CorrectionAlignments
// (a target read, its queries, and their overlaps) on the input side, and
// CorrectedRead (a name, corrected-sequence pair) on the output side.
package correctpb
