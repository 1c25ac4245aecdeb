// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package decode turns a WindowFeatures value into a window's corrected
// base string, either trivially (the target slice, unchanged) or by
// applying inference-backend predictions at supported columns.
package decode
