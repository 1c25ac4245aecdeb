package overlap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReverseComplement(t *testing.T) {
	assert.Equal(t, []byte("ACGT"), ReverseComplement([]byte("ACGT")))
	assert.Equal(t, []byte("NCGT"), ReverseComplement([]byte("ACGN")))
	assert.Equal(t, []byte(""), ReverseComplement([]byte{}))
}

func TestCigarLengths(t *testing.T) {
	c := Cigar{{Match, 5}, {Ins, 2}, {Del, 3}, {Match, 4}}
	assert.Equal(t, 5+3+4, c.TargetLen())
	assert.Equal(t, 5+2+4, c.QueryLen())
}

func TestValidateOK(t *testing.T) {
	target := Read{Name: "t", Seq: make([]byte, 20)}
	query := Read{Name: "q", Seq: make([]byte, 10)}
	o := Overlap{
		TStart: 0, TEnd: 10, TLen: 20,
		QStart: 0, QEnd: 10, QLen: 10,
		Cigar: Cigar{{Match, 10}},
	}
	require.NoError(t, Validate(target, query, o))
}

func TestValidateCatchesLenMismatch(t *testing.T) {
	target := Read{Name: "t", Seq: make([]byte, 20)}
	query := Read{Name: "q", Seq: make([]byte, 10)}
	o := Overlap{
		TStart: 0, TEnd: 10, TLen: 21, // wrong
		QStart: 0, QEnd: 10, QLen: 10,
		Cigar: Cigar{{Match, 10}},
	}
	assert.Error(t, Validate(target, query, o))
}

func TestValidateCatchesBadInterval(t *testing.T) {
	target := Read{Name: "t", Seq: make([]byte, 20)}
	query := Read{Name: "q", Seq: make([]byte, 10)}
	o := Overlap{
		TStart: 10, TEnd: 5, TLen: 20,
		QStart: 0, QEnd: 10, QLen: 10,
		Cigar: Cigar{{Match, 10}},
	}
	assert.Error(t, Validate(target, query, o))
}

func TestValidateCatchesCigarLengthMismatch(t *testing.T) {
	target := Read{Name: "t", Seq: make([]byte, 20)}
	query := Read{Name: "q", Seq: make([]byte, 10)}
	o := Overlap{
		TStart: 0, TEnd: 10, TLen: 20,
		QStart: 0, QEnd: 10, QLen: 10,
		Cigar: Cigar{{Match, 9}}, // too short
	}
	assert.Error(t, Validate(target, query, o))
}

func TestValidateCatchesUnknownOp(t *testing.T) {
	target := Read{Name: "t", Seq: make([]byte, 20)}
	query := Read{Name: "q", Seq: make([]byte, 10)}
	o := Overlap{
		TStart: 0, TEnd: 10, TLen: 20,
		QStart: 0, QEnd: 10, QLen: 10,
		Cigar: Cigar{{Op(99), 10}},
	}
	assert.Error(t, Validate(target, query, o))
}

func TestWalkEmitsAdvances(t *testing.T) {
	c := Cigar{{Match, 3}, {Ins, 2}, {Del, 1}}
	var events []RunEvent
	Walk(c, func(e RunEvent) { events = append(events, e) })
	require.Len(t, events, 3)
	assert.Equal(t, RunEvent{Match, 3, 3, 3}, events[0])
	assert.Equal(t, RunEvent{Ins, 2, 0, 2}, events[1])
	assert.Equal(t, RunEvent{Del, 1, 1, 0}, events[2])
}
