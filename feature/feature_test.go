package feature

import (
	"testing"

	"github.com/grailbio/correct/overlap"
	"github.com/grailbio/correct/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func qualAll(n int, q byte) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = q
	}
	return string(b)
}

// TestBuildNoOverlapsIsTrivial covers S1: zero overlaps means every window
// has only the target row and is trivial.
func TestBuildNoOverlapsIsTrivial(t *testing.T) {
	target := overlap.Read{Name: "read", Seq: []byte("ACGTA"), Qual: qualAll(5, 'I')}
	w := window.Window{Idx: 0, TargetStart: 0, TargetEnd: 5}
	wf, err := Build(target, nil, nil, w, SupportConfig{MinCoverage: 1, RequireDisagreement: true})
	require.NoError(t, err)
	assert.Equal(t, 5, wf.Length)
	assert.Equal(t, 1, wf.NAlns)
	assert.True(t, wf.IsTrivial())
	for col := 0; col < wf.Length; col++ {
		assert.Equal(t, encodeBase(target.Seq[col]), wf.Bases[col][0])
	}
}

// TestBuildPerfectOverlapIsTrivial covers S2: a full-length overlap with no
// disagreement leaves the supported set empty.
func TestBuildPerfectOverlapIsTrivial(t *testing.T) {
	target := overlap.Read{Name: "read", Seq: []byte("ACGT"), Qual: qualAll(4, 'I')}
	query := overlap.Read{Name: "q0", Seq: []byte("ACGT"), Qual: qualAll(4, 'I')}
	o := overlap.Overlap{
		TStart: 0, TEnd: 4, TLen: 4,
		QStart: 0, QEnd: 4, QLen: 4,
		Fwd:   true,
		Cigar: overlap.Cigar{{overlap.Match, 4}},
	}
	p := window.NewPartitioner(4)
	windows, err := p.Partition(4, []overlap.Overlap{o})
	require.NoError(t, err)
	require.Len(t, windows, 1)

	wf, err := Build(target, []overlap.Read{query}, []overlap.Overlap{o}, windows[0], SupportConfig{MinCoverage: 1, RequireDisagreement: true})
	require.NoError(t, err)
	assert.Equal(t, 2, wf.NAlns)
	assert.Empty(t, wf.Supported)
	assert.True(t, wf.IsTrivial())
}

// TestBuildDisagreementIsSupported covers the non-trivial half of S3: a
// single mismatched base produces exactly one supported column.
func TestBuildDisagreementIsSupported(t *testing.T) {
	target := overlap.Read{Name: "read", Seq: []byte("AAAA"), Qual: qualAll(4, 'I')}
	query := overlap.Read{Name: "q0", Seq: []byte("AACA"), Qual: qualAll(4, 'I')}
	o := overlap.Overlap{
		TStart: 0, TEnd: 4, TLen: 4,
		QStart: 0, QEnd: 4, QLen: 4,
		Fwd:   true,
		Cigar: overlap.Cigar{{overlap.Match, 4}},
	}
	p := window.NewPartitioner(4)
	windows, err := p.Partition(4, []overlap.Overlap{o})
	require.NoError(t, err)

	wf, err := Build(target, []overlap.Read{query}, []overlap.Overlap{o}, windows[0], SupportConfig{MinCoverage: 1, RequireDisagreement: true})
	require.NoError(t, err)
	require.Equal(t, []int{2}, wf.Supported)
	assert.False(t, wf.IsTrivial())
}

func TestBuildInsertionAddsColumn(t *testing.T) {
	target := overlap.Read{Name: "read", Seq: []byte("AAAA"), Qual: qualAll(4, 'I')}
	query := overlap.Read{Name: "q0", Seq: []byte("AAGAA"), Qual: qualAll(5, 'I')}
	o := overlap.Overlap{
		TStart: 0, TEnd: 4, TLen: 4,
		QStart: 0, QEnd: 5, QLen: 5,
		Fwd:   true,
		Cigar: overlap.Cigar{{overlap.Match, 2}, {overlap.Ins, 1}, {overlap.Match, 2}},
	}
	p := window.NewPartitioner(4)
	windows, err := p.Partition(4, []overlap.Overlap{o})
	require.NoError(t, err)

	wf, err := Build(target, []overlap.Read{query}, []overlap.Overlap{o}, windows[0], SupportConfig{MinCoverage: 1, RequireDisagreement: true})
	require.NoError(t, err)
	assert.Equal(t, 5, wf.Length)
	// the inserted column's target row is a gap.
	found := false
	for col := 0; col < wf.Length; col++ {
		if wf.Bases[col][0] == BaseGap {
			found = true
			assert.Equal(t, BaseG, wf.Bases[col][1])
		}
	}
	assert.True(t, found)
}

func TestReverseStrandOrientation(t *testing.T) {
	target := overlap.Read{Name: "read", Seq: []byte("AAGT"), Qual: qualAll(4, 'I')}
	// query, read in its own forward orientation, is the reverse complement
	// of the target; the overlap is on the reverse strand.
	query := overlap.Read{Name: "q0", Seq: overlap.ReverseComplement([]byte("AAGT")), Qual: qualAll(4, 'I')}
	o := overlap.Overlap{
		TStart: 0, TEnd: 4, TLen: 4,
		QStart: 0, QEnd: 4, QLen: 4,
		Fwd:   false,
		Cigar: overlap.Cigar{{overlap.Match, 4}},
	}
	p := window.NewPartitioner(4)
	windows, err := p.Partition(4, []overlap.Overlap{o})
	require.NoError(t, err)

	wf, err := Build(target, []overlap.Read{query}, []overlap.Overlap{o}, windows[0], SupportConfig{MinCoverage: 1, RequireDisagreement: true})
	require.NoError(t, err)
	assert.Empty(t, wf.Supported)
}
