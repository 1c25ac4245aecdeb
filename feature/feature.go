package feature

import (
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/correct/overlap"
	"github.com/grailbio/correct/window"
	"gonum.org/v1/gonum/mat"
)

// Base encodings. The alphabet is 10 symbols (0-9): the four canonical
// bases, an alignment gap, and five IUPAC ambiguity codes. Two additional
// reserved values sit one and two past the alphabet: NoCoverage (a row
// that doesn't reach a given column at all, as opposed to Gap, a row that
// reaches it but has a deletion there) and Pad, used only when a batch
// collates ragged windows to common dimensions.
const (
	BaseA byte = iota
	BaseC
	BaseG
	BaseT
	BaseGap
	BaseN
	BaseR
	BaseY
	BaseS
	BaseW
	// NoCoverage marks a cell with no row data at all.
	NoCoverage
	// Pad is the batch-collation padding value (one past the last valid
	// class, NoCoverage).
	Pad
)

// MinQScore and MaxQScore bound the Phred+33 ASCII quality range used to
// normalize qualities into [0, 1].
const (
	MinQScore = 33
	MaxQScore = 126
)

func encodeBase(b byte) byte {
	switch b {
	case 'A', 'a':
		return BaseA
	case 'C', 'c':
		return BaseC
	case 'G', 'g':
		return BaseG
	case 'T', 't':
		return BaseT
	case '*':
		return BaseGap
	case 'R', 'r':
		return BaseR
	case 'Y', 'y':
		return BaseY
	case 'S', 's':
		return BaseS
	case 'W', 'w':
		return BaseW
	default:
		return BaseN
	}
}

func normQual(b byte) float64 {
	return (float64(b) - MinQScore) / (MaxQScore - MinQScore)
}

// SupportConfig carries the model-config-driven thresholds spec.md leaves
// to the implementer (its Open Question): coverage and disagreement
// criteria for marking an MSA column "supported" for inference-based
// correction. These must come from config.toml, never be hard-coded.
type SupportConfig struct {
	MinCoverage         int
	RequireDisagreement bool
}

// WindowFeatures is the MSA feature tensor for one window, plus (after
// inference, for non-trivial windows) the decoded prediction indices.
//
// Bases and Quals are indexed [column][row]; row 0 is always the target.
type WindowFeatures struct {
	ReadName      string
	WindowIdx     int
	Bases         [][]byte
	Quals         *mat.Dense
	Indices       []int
	Length        int
	NAlns         int
	Supported     []int
	InferredBases []byte
}

// IsTrivial reports whether the window has no candidate correction columns
// or too few aligned rows to attempt inference (spec.md §4.4).
func (wf *WindowFeatures) IsTrivial() bool {
	return len(wf.Supported) == 0 || wf.NAlns <= 1
}

type insertionRun struct {
	anchor int
	length int
}

// orientedView returns a read's sequence and quality string in the
// coordinate frame its overlap's CIGAR advances through: unchanged for a
// forward-strand overlap, reverse-complemented (sequence) / reversed
// (quality) for a reverse-strand one.
func orientedView(r overlap.Read, fwd bool) ([]byte, string) {
	if fwd {
		return r.Seq, r.Qual
	}
	rc := overlap.ReverseComplement(r.Seq)
	qb := []byte(r.Qual)
	n := len(qb)
	rq := make([]byte, n)
	for i, b := range qb {
		rq[n-1-i] = b
	}
	return rc, string(rq)
}

// maxInsertions returns, for every target anchor position touched by the
// window's overlaps, the longest single-row insertion length observed
// there. Multiple rows inserting at the same anchor are reconciled by
// taking the widest one; shorter or absent insertions are represented by
// NoCoverage-filled padding within that anchor's insertion columns.
func maxInsertions(ows []window.OverlapWindow) map[int]int {
	maxIns := make(map[int]int)
	for _, ow := range ows {
		t := ow.TargetStart
		runIns := 0
		flush := func() {
			if runIns > 0 && runIns > maxIns[t] {
				maxIns[t] = runIns
			}
			runIns = 0
		}
		for _, r := range ow.CigarSlice {
			switch r.Op {
			case overlap.Ins:
				runIns += r.Len
			case overlap.Match, overlap.Del:
				flush()
				t += r.Len
			}
		}
		flush()
	}
	return maxIns
}

type columnSpec struct {
	anchor      int
	isInsertion bool
	// insSlot is the 0-based slot within this anchor's insertion run; -1
	// for a non-insertion (match/del) column.
	insSlot int
}

func buildColumns(targetStart, targetEnd int, maxIns map[int]int) []columnSpec {
	var cols []columnSpec
	for p := targetStart; p < targetEnd; p++ {
		for s := 0; s < maxIns[p]; s++ {
			cols = append(cols, columnSpec{anchor: p, isInsertion: true, insSlot: s})
		}
		cols = append(cols, columnSpec{anchor: p, isInsertion: false, insSlot: -1})
	}
	for s := 0; s < maxIns[targetEnd]; s++ {
		cols = append(cols, columnSpec{anchor: targetEnd, isInsertion: true, insSlot: s})
	}
	return cols
}

// columnIndex finds the column for a (anchor, isInsertion, slot) triple. A
// linear build-time map keeps this O(1) amortized; windows are small
// (bounded by window_size plus inserted columns) so a map lookup per base
// is cheap relative to the inference cost downstream.
type columnIndex struct {
	matchCol map[int]int
	insCol   map[[2]int]int // [anchor, slot] -> column
}

func newColumnIndex(cols []columnSpec) columnIndex {
	ci := columnIndex{matchCol: make(map[int]int), insCol: make(map[[2]int]int)}
	for i, c := range cols {
		if c.isInsertion {
			ci.insCol[[2]int{c.anchor, c.insSlot}] = i
		} else {
			ci.matchCol[c.anchor] = i
		}
	}
	return ci
}

// Build constructs the MSA feature tensor for a single window.
func Build(target overlap.Read, queries []overlap.Read, overlaps []overlap.Overlap, w window.Window, cfg SupportConfig) (*WindowFeatures, error) {
	if w.TargetEnd < w.TargetStart || w.TargetEnd > len(target.Seq) {
		return nil, errors.E("feature: window target range out of bounds", "window", w.Idx)
	}
	maxIns := maxInsertions(w.Overlaps)
	cols := buildColumns(w.TargetStart, w.TargetEnd, maxIns)
	W := len(cols)
	R := len(w.Overlaps) + 1
	ci := newColumnIndex(cols)

	bases := make([][]byte, W)
	quals := mat.NewDense(W, R, nil)
	indices := make([]int, W)
	for i, c := range cols {
		bases[i] = make([]byte, R)
		for r := 0; r < R; r++ {
			bases[i][r] = NoCoverage
		}
		indices[i] = c.anchor
	}

	// Row 0: target. Insertion columns hold a gap; the target read never
	// inserts relative to itself.
	for p := w.TargetStart; p < w.TargetEnd; p++ {
		col := ci.matchCol[p]
		bases[col][0] = encodeBase(target.Seq[p])
		if p < len(target.Qual) {
			quals.Set(col, 0, normQual(target.Qual[p]))
		}
	}
	for i, c := range cols {
		if c.isInsertion {
			bases[i][0] = BaseGap
		}
	}

	for rowIdx, ow := range w.Overlaps {
		row := rowIdx + 1
		if ow.OverlapIdx < 0 || ow.OverlapIdx >= len(overlaps) || ow.OverlapIdx >= len(queries) {
			return nil, errors.E("feature: overlap index out of range", "idx", ow.OverlapIdx)
		}
		o := overlaps[ow.OverlapIdx]
		seq, qual := orientedView(queries[ow.OverlapIdx], o.Fwd)

		t, q := ow.TargetStart, ow.QStartInWindow
		insSlot := make(map[int]int)
		for _, r := range ow.CigarSlice {
			switch r.Op {
			case overlap.Match:
				for u := 0; u < r.Len; u++ {
					if q < 0 || q >= len(seq) {
						return nil, errors.E("feature: query cursor out of range", "window", w.Idx, "overlap", ow.OverlapIdx)
					}
					col, ok := ci.matchCol[t]
					if !ok {
						return nil, errors.E("feature: missing match column", "pos", t)
					}
					bases[col][row] = encodeBase(seq[q])
					if q < len(qual) {
						quals.Set(col, row, normQual(qual[q]))
					}
					t++
					q++
				}
			case overlap.Del:
				for u := 0; u < r.Len; u++ {
					col, ok := ci.matchCol[t]
					if !ok {
						return nil, errors.E("feature: missing match column", "pos", t)
					}
					bases[col][row] = BaseGap
					t++
				}
			case overlap.Ins:
				for u := 0; u < r.Len; u++ {
					if q < 0 || q >= len(seq) {
						return nil, errors.E("feature: query cursor out of range", "window", w.Idx, "overlap", ow.OverlapIdx)
					}
					slot := insSlot[t]
					insSlot[t] = slot + 1
					col, ok := ci.insCol[[2]int{t, slot}]
					if !ok {
						return nil, errors.E("feature: missing insertion column", "pos", t, "slot", slot)
					}
					bases[col][row] = encodeBase(seq[q])
					if q < len(qual) {
						quals.Set(col, row, normQual(qual[q]))
					}
					q++
				}
			}
		}
	}

	supported := computeSupported(bases, cfg)

	return &WindowFeatures{
		ReadName:  target.Name,
		WindowIdx: w.Idx,
		Bases:     bases,
		Quals:     quals,
		Indices:   indices,
		Length:    W,
		NAlns:     R,
		Supported: supported,
	}, nil
}

func computeSupported(bases [][]byte, cfg SupportConfig) []int {
	var supported []int
	for col, colVals := range bases {
		coverage := 0
		disagree := false
		target := colVals[0]
		for r := 1; r < len(colVals); r++ {
			if colVals[r] == NoCoverage {
				continue
			}
			coverage++
			if colVals[r] != target {
				disagree = true
			}
		}
		if coverage < cfg.MinCoverage {
			continue
		}
		if cfg.RequireDisagreement && !disagree {
			continue
		}
		supported = append(supported, col)
	}
	sort.Ints(supported)
	return supported
}
