// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package queue implements a bounded, multi-producer/multi-consumer FIFO
// with blocking push/pop and cooperative termination. It is the basic
// plumbing the correction pipeline uses to connect its worker pools
// (feature extraction -> inference -> decode) while bounding how far ahead
// of a slow consumer a fast producer is allowed to run.
package queue
