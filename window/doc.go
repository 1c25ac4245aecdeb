// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package window splits a target read into fixed-width windows and assigns
// each overlap's CIGAR-sliced contribution to the windows it intersects.
package window
