package decode

import (
	"testing"

	"github.com/grailbio/correct/feature"
	"github.com/stretchr/testify/assert"
)

func mkBases(targets ...byte) [][]byte {
	bases := make([][]byte, len(targets))
	for i, b := range targets {
		bases[i] = []byte{b}
	}
	return bases
}

func TestTrivialReturnsTargetSliceVerbatim(t *testing.T) {
	target := []byte("ACGTACGT")
	assert.Equal(t, "CGTA", Trivial(target, 1, 5))
	assert.Equal(t, "ACGTACGT", Trivial(target, 0, len(target)))
}

// TestWindowSubstitutesSupportedColumns covers the ordinary path: a
// supported column's target base is replaced by its predicted class.
func TestWindowSubstitutesSupportedColumns(t *testing.T) {
	wf := &feature.WindowFeatures{
		WindowIdx:     3,
		Bases:         mkBases(feature.BaseA, feature.BaseC, feature.BaseG, feature.BaseT),
		Length:        4,
		Supported:     []int{1, 3},
		InferredBases: []byte{2, 0}, // column 1 -> G, column 3 -> A
	}
	assert.Equal(t, "AGGA", Window(wf))
}

// TestWindowStripsGapPrediction covers the maintainers' specific ask: a
// supported column whose predicted class is the gap symbol (index 4) must
// be dropped from the output entirely, not rendered as '*'.
func TestWindowStripsGapPrediction(t *testing.T) {
	wf := &feature.WindowFeatures{
		WindowIdx:     0,
		Bases:         mkBases(feature.BaseA, feature.BaseC, feature.BaseG, feature.BaseT),
		Length:        4,
		Supported:     []int{0, 1, 2},
		InferredBases: []byte{0, 4, 2}, // column 1 predicted as gap, stripped
	}
	assert.Equal(t, "AGT", Window(wf))
}

// TestWindowOutOfRangeClassSkipsSubstitution exercises the defensive
// out-of-range branch: a predicted class >= len(predictedASCII) must not
// panic or corrupt the row, and that column keeps its original target base
// since no substitution is applied.
func TestWindowOutOfRangeClassSkipsSubstitution(t *testing.T) {
	wf := &feature.WindowFeatures{
		WindowIdx:     7,
		Bases:         mkBases(feature.BaseA, feature.BaseC, feature.BaseG),
		Length:        3,
		Supported:     []int{0, 1, 2},
		InferredBases: []byte{3, 9, 0}, // column 1's class 9 is out of range
	}
	assert.Equal(t, "TCA", Window(wf))
}

// TestWindowLengthMismatchStillDecodesUsableOverlap exercises the
// defensive length-mismatch branch: InferredBases shorter than Supported
// must still decode the columns it does cover instead of panicking, and
// must ignore the unmatched tail of Supported.
func TestWindowLengthMismatchStillDecodesUsableOverlap(t *testing.T) {
	wf := &feature.WindowFeatures{
		WindowIdx:     1,
		Bases:         mkBases(feature.BaseA, feature.BaseC, feature.BaseG, feature.BaseT),
		Length:        4,
		Supported:     []int{0, 1, 2, 3}, // four supported columns...
		InferredBases: []byte{3, 2},      // ...but only two predictions available
	}
	assert.Equal(t, "TGGT", Window(wf))
}

// TestWindowNoSupportedColumnsReturnsTargetUnchanged covers the case
// where inference produced no substitutions at all: the decoded row is
// just the target sequence, gap symbols in the target itself still
// stripped.
func TestWindowNoSupportedColumnsReturnsTargetUnchanged(t *testing.T) {
	wf := &feature.WindowFeatures{
		WindowIdx: 2,
		Bases:     mkBases(feature.BaseA, feature.BaseGap, feature.BaseT),
		Length:    3,
	}
	assert.Equal(t, "AT", Window(wf))
}
