package window

import (
	"github.com/biogo/store/interval"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/correct/overlap"
)

// Default fraction of a window an overlap segment must cover to be kept,
// exposed as a config constant defaulting to "accept any nonzero overlap".
const DefaultMinCoverageFraction = 0.0

// OverlapWindow is one overlap's contribution to a single window: a CIGAR
// slice plus the query interval it consumes. TargetStart, QStartInWindow and
// QEndInWindow are positions in the target and query reads themselves, not
// offsets from the window's start.
type OverlapWindow struct {
	OverlapIdx       int
	TargetStart      int
	QStartInWindow   int
	QEndInWindow     int
	CigarSlice       overlap.Cigar
	ConsumedTarget   int
	ConsumedQuery    int
}

// Window is a fixed-width (except possibly the last) slice of the target
// read in target coordinates, plus the overlaps intersecting it.
type Window struct {
	Idx         int
	TargetStart int
	TargetEnd   int
	Overlaps    []OverlapWindow
}

// Partitioner splits a target read into fixed-size windows.
type Partitioner struct {
	WindowSize           int
	MinCoverageFraction  float64
}

// NewPartitioner returns a Partitioner with the given window size and the
// default (accept-any-nonzero-overlap) coverage threshold.
func NewPartitioner(windowSize int) *Partitioner {
	return &Partitioner{WindowSize: windowSize, MinCoverageFraction: DefaultMinCoverageFraction}
}

// windowRange is a biogo/store/interval.IntTree entry for one window's target
// range, used to look a target position up to its containing window in
// O(log N_w) rather than by ad hoc arithmetic -- the representation
// generalizes cleanly if a future caller wants non-uniform window widths.
type windowRange struct {
	idx        uintptr
	start, end int
}

func (w windowRange) Overlap(b interval.IntRange) bool {
	return b.Start < w.end && w.start < b.End
}
func (w windowRange) ID() uintptr { return w.idx }
func (w windowRange) Range() interval.IntRange {
	return interval.IntRange{Start: w.start, End: w.end}
}

// Partition splits target (length tlen) into ceil(tlen/WindowSize) windows
// (a single empty window when tlen is 0) and, for each of the given overlaps, walks its CIGAR assigning sliced
// segments to the windows they intersect.
func (p *Partitioner) Partition(tlen int, overlaps []overlap.Overlap) ([]Window, error) {
	if p.WindowSize <= 0 {
		return nil, errors.E("window: WindowSize must be positive")
	}
	if tlen < 0 {
		return nil, errors.E("window: negative target length")
	}
	nw := (tlen + p.WindowSize - 1) / p.WindowSize
	if nw == 0 {
		nw = 1
	}
	windows := make([]Window, nw)
	var tree interval.IntTree
	for i := 0; i < nw; i++ {
		start := i * p.WindowSize
		end := start + p.WindowSize
		if end > tlen {
			end = tlen
		}
		windows[i] = Window{Idx: i, TargetStart: start, TargetEnd: end}
		if err := tree.Insert(windowRange{uintptr(i), start, end}, true); err != nil {
			return nil, errors.E(err, "window: building window index")
		}
	}
	tree.AdjustRanges()

	windowAt := func(pos int) int {
		if pos >= tlen {
			return nw - 1
		}
		hits := tree.Get(windowRange{start: pos, end: pos + 1})
		if len(hits) == 0 {
			log.Error.Printf("window: position %d outside any window (tlen=%d)", pos, tlen)
			return -1
		}
		return int(hits[0].ID())
	}

	for oi, o := range overlaps {
		if err := checkConsistentOverlap(o); err != nil {
			return nil, errors.E(err, "window: inconsistent overlap", "idx", oi)
		}
		if err := p.assign(oi, o, windows, windowAt); err != nil {
			return nil, err
		}
	}
	return windows, nil
}

// checkConsistentOverlap re-validates the structural invariants spec.md §3
// places on an overlap's CIGAR; Partition aborts the whole message if any
// overlap fails this check (spec.md §4.3, "check_consistent_overlaps").
func checkConsistentOverlap(o overlap.Overlap) error {
	if tc := o.Cigar.TargetLen(); tc != o.TEnd-o.TStart {
		return errors.E("target-consuming cigar length mismatch", "got", tc, "want", o.TEnd-o.TStart)
	}
	if qc := o.Cigar.QueryLen(); qc != o.QEnd-o.QStart {
		return errors.E("query-consuming cigar length mismatch", "got", qc, "want", o.QEnd-o.QStart)
	}
	return nil
}

type accumulator struct {
	windowIdx  int
	runs       overlap.Cigar
	tAtStart   int
	qAtStart   int
}

func (p *Partitioner) assign(oi int, o overlap.Overlap, windows []Window, windowAt func(int) int) error {
	t, q := o.TStart, o.QStart
	var acc *accumulator
	flush := func(tEnd, qEnd int) {
		if acc == nil || len(acc.runs) == 0 {
			acc = nil
			return
		}
		ow := OverlapWindow{
			OverlapIdx:     oi,
			TargetStart:    acc.tAtStart,
			QStartInWindow: acc.qAtStart,
			QEndInWindow:   qEnd,
			CigarSlice:     acc.runs,
			ConsumedTarget: tEnd - acc.tAtStart,
			ConsumedQuery:  qEnd - acc.qAtStart,
		}
		if p.meetsMinCoverage(ow, windows[acc.windowIdx]) {
			windows[acc.windowIdx].Overlaps = append(windows[acc.windowIdx].Overlaps, ow)
		}
		acc = nil
	}

	overlap.Walk(o.Cigar, func(ev overlap.RunEvent) {
		remaining := ev.Len
		for remaining > 0 {
			wi := windowAt(t)
			if wi < 0 {
				remaining = 0
				continue
			}
			if acc == nil || acc.windowIdx != wi {
				flush(t, q)
				acc = &accumulator{windowIdx: wi, tAtStart: t, qAtStart: q}
			}
			segLen := remaining
			if ev.TargetAdvance > 0 {
				windowTargetEnd := windows[wi].TargetEnd
				maxUnits := windowTargetEnd - t
				if maxUnits < segLen {
					segLen = maxUnits
				}
				if segLen <= 0 {
					// t is exactly at a window boundary; advance to the next
					// window and retry this run segment there.
					flush(t, q)
					acc = &accumulator{windowIdx: wi + 1, tAtStart: t, qAtStart: q}
					continue
				}
			}
			acc.runs = append(acc.runs, overlap.Run{Op: ev.Op, Len: segLen})
			unitAdvanceT := 0
			unitAdvanceQ := 0
			if ev.Len > 0 {
				unitAdvanceT = ev.TargetAdvance / ev.Len
				unitAdvanceQ = ev.QueryAdvance / ev.Len
			}
			t += segLen * unitAdvanceT
			q += segLen * unitAdvanceQ
			remaining -= segLen
		}
	})
	flush(t, q)
	return nil
}

func (p *Partitioner) meetsMinCoverage(ow OverlapWindow, w Window) bool {
	if p.MinCoverageFraction <= 0 {
		return ow.ConsumedTarget > 0 || ow.ConsumedQuery > 0 || len(ow.CigarSlice) > 0
	}
	width := w.TargetEnd - w.TargetStart
	if width == 0 {
		return true
	}
	return float64(ow.ConsumedTarget)/float64(width) >= p.MinCoverageFraction
}
