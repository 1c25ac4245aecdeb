// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package infer

import "gonum.org/v1/gonum/floats"

// Backend is the opaque neural-network device the batcher drives. A real
// implementation wraps a loaded model and a specific device (CPU or GPU);
// tests substitute a fake that returns canned logits.
type Backend interface {
	// Infer runs one forward pass over a collated batch and returns, for
	// every window in batch order, a Logits value covering exactly that
	// window's sizes[i] supported columns. sizes is one of the batcher's
	// named accumulators (spec.md §4.6: "bases_batch, quals_batch, lengths,
	// sizes, indices_batch, wfs") and is the only way Infer learns how many
	// predictions a window expects back; a real backend is expected to
	// select sizes[i] columns per window using the same coverage and
	// disagreement criteria feature.Build applied when it built Supported.
	Infer(bases *ByteTensor3, quals *FloatTensor3, lengths []int32, indices [][]int, sizes []int) ([]Logits, error)

	// ClearCache releases any device-side scratch state. The batcher calls
	// this once, between a failed Infer call and its single retry, on the
	// theory that a stale cache is a plausible cause of a transient
	// failure (spec.md §4.6 step 9).
	ClearCache()
}

// Logits holds one window's per-supported-column class scores, row-major
// [numSupportedColumns][numClasses].
type Logits struct {
	NumCols, NumClasses int
	Data                []float64
}

func (l Logits) row(i int) []float64 {
	return l.Data[i*l.NumClasses : (i+1)*l.NumClasses]
}

// ArgMax decodes l into one predicted class byte per column, the argmax of
// each row's class scores (spec.md §4.6 step 8).
func (l Logits) ArgMax() []byte {
	out := make([]byte, l.NumCols)
	for i := 0; i < l.NumCols; i++ {
		out[i] = byte(floats.MaxIdx(l.row(i)))
	}
	return out
}
