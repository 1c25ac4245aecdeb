// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package modelconfig loads the TOML configuration that ships alongside a
// model's weights directory: window size, the supported-column thresholds,
// and the inference batcher's slot/timeout constants.
package modelconfig
