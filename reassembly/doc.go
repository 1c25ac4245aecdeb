// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package reassembly tracks per-read window completion and concatenates
// decoded window strings back into corrected read sequences, splitting on
// windows whose consensus came back empty.
package reassembly
