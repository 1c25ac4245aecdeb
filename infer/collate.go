package infer

import "github.com/grailbio/correct/feature"

// ByteTensor3 is a dense [B][W][R]byte tensor, the collated-batch shape of
// feature.WindowFeatures.Bases.
type ByteTensor3 struct {
	B, W, R int
	Data    []byte
}

func newByteTensor3(b, w, r int, fill byte) *ByteTensor3 {
	t := &ByteTensor3{B: b, W: w, R: r, Data: make([]byte, b*w*r)}
	for i := range t.Data {
		t.Data[i] = fill
	}
	return t
}

func (t *ByteTensor3) at(b, w, r int) int { return (b*t.W+w)*t.R + r }

// Set writes a single element.
func (t *ByteTensor3) Set(b, w, r int, v byte) { t.Data[t.at(b, w, r)] = v }

// At reads a single element.
func (t *ByteTensor3) At(b, w, r int) byte { return t.Data[t.at(b, w, r)] }

// FloatTensor3 is a dense [B][W][R]float64 tensor, the collated-batch shape
// of feature.WindowFeatures.Quals.
type FloatTensor3 struct {
	B, W, R int
	Data    []float64
}

func newFloatTensor3(b, w, r int, fill float64) *FloatTensor3 {
	t := &FloatTensor3{B: b, W: w, R: r, Data: make([]float64, b*w*r)}
	for i := range t.Data {
		t.Data[i] = fill
	}
	return t
}

func (t *FloatTensor3) at(b, w, r int) int { return (b*t.W+w)*t.R + r }

// Set writes a single element.
func (t *FloatTensor3) Set(b, w, r int, v float64) { t.Data[t.at(b, w, r)] = v }

// At reads a single element.
func (t *FloatTensor3) At(b, w, r int) float64 { return t.Data[t.at(b, w, r)] }

// collated is the result of packing a batch of windows to common
// dimensions: right-padded bases (pad value feature.Pad) and quals (pad
// value 0.0), an int32 length per window, and each window's original
// (unpadded) indices slice, kept separate per spec.md §4.6 step 2
// ("move ... each indices_batch entry to the device").
type collated struct {
	bases   *ByteTensor3
	quals   *FloatTensor3
	lengths []int32
	indices [][]int
	sizes   []int // len(Supported) per window, for splitting results back out
}

// collate packs wfs into common [B, maxW, maxR] dimensions, right-padding
// bases with feature.Pad and quals with 0.0. It is a pure function so its
// padding invariant (spec.md §8 property 5: the unpadded region of each
// window equals the original) is directly testable.
func collate(wfs []*feature.WindowFeatures) collated {
	b := len(wfs)
	maxW, maxR := 0, 0
	for _, wf := range wfs {
		if wf.Length > maxW {
			maxW = wf.Length
		}
		if wf.NAlns > maxR {
			maxR = wf.NAlns
		}
	}
	bases := newByteTensor3(b, maxW, maxR, feature.Pad)
	quals := newFloatTensor3(b, maxW, maxR, 0.0)
	lengths := make([]int32, b)
	indices := make([][]int, b)
	sizes := make([]int, b)
	for i, wf := range wfs {
		for col := 0; col < wf.Length; col++ {
			for row := 0; row < wf.NAlns; row++ {
				bases.Set(i, col, row, wf.Bases[col][row])
				quals.Set(i, col, row, wf.Quals.At(col, row))
			}
		}
		lengths[i] = int32(wf.Length)
		indices[i] = wf.Indices
		sizes[i] = len(wf.Supported)
	}
	return collated{bases: bases, quals: quals, lengths: lengths, indices: indices, sizes: sizes}
}
