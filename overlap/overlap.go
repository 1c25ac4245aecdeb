package overlap

import (
	"github.com/grailbio/base/errors"
)

// Op is a CIGAR operation. MATCH consumes both target and query bases, INS
// consumes only query bases (an insertion relative to the target), DEL
// consumes only target bases (a deletion relative to the target).
type Op byte

const (
	// Match consumes one target base and one query base per unit of length.
	Match Op = iota
	// Ins consumes one query base per unit of length.
	Ins
	// Del consumes one target base per unit of length.
	Del
)

func (o Op) String() string {
	switch o {
	case Match:
		return "M"
	case Ins:
		return "I"
	case Del:
		return "D"
	default:
		return "?"
	}
}

// TargetAdvance reports how many target bases one unit of op-length
// consumes.
func (o Op) TargetAdvance() int {
	switch o {
	case Match, Del:
		return 1
	default:
		return 0
	}
}

// QueryAdvance reports how many query bases one unit of op-length consumes.
func (o Op) QueryAdvance() int {
	switch o {
	case Match, Ins:
		return 1
	default:
		return 0
	}
}

// Run is one (op, length) entry of a CIGAR string.
type Run struct {
	Op  Op
	Len int
}

// Cigar is an ordered run-length encoding of alignment operations.
type Cigar []Run

// TargetLen returns the number of target bases the CIGAR consumes.
func (c Cigar) TargetLen() int {
	n := 0
	for _, r := range c {
		n += r.Op.TargetAdvance() * r.Len
	}
	return n
}

// QueryLen returns the number of query bases the CIGAR consumes.
func (c Cigar) QueryLen() int {
	n := 0
	for _, r := range c {
		n += r.Op.QueryAdvance() * r.Len
	}
	return n
}

// Read is a sequencing read: identifier, base sequence, and a Phred+33
// ASCII quality string, one character per base.
type Read struct {
	Name string
	Seq  []byte
	Qual string
}

// Overlap is an alignment of a query read against a target read.
type Overlap struct {
	TStart, TEnd int
	QStart, QEnd int
	TLen, QLen   int
	Fwd          bool
	Cigar        Cigar
}

var complement = [256]byte{}

func init() {
	for i := range complement {
		complement[i] = 'N'
	}
	complement['A'], complement['a'] = 'T', 't'
	complement['C'], complement['c'] = 'G', 'g'
	complement['G'], complement['g'] = 'C', 'c'
	complement['T'], complement['t'] = 'A', 'a'
	complement['N'], complement['n'] = 'N', 'n'
	complement['*'] = '*'
}

// ReverseComplement returns the reverse complement of a DNA sequence.
// The gap symbol '*' complements to itself; any other byte outside
// {A,C,G,T,N,a,c,g,t,n} complements to 'N'.
func ReverseComplement(seq []byte) []byte {
	out := make([]byte, len(seq))
	n := len(seq)
	for i, b := range seq {
		out[n-1-i] = complement[b]
	}
	return out
}

// Validate checks the invariants spec.md §3 requires of an Overlap once it
// has been ingested against its target and query reads: qlen/tlen must
// match the actual read lengths, the start/end intervals must be
// well-formed, and the CIGAR's target- and query-consuming lengths must
// match the declared interval lengths.
func Validate(target, query Read, o Overlap) error {
	if o.QLen != len(query.Seq) {
		return errors.E("overlap: qlen mismatch", "declared", o.QLen, "actual", len(query.Seq), "query", query.Name)
	}
	if o.TLen != len(target.Seq) {
		return errors.E("overlap: tlen mismatch", "declared", o.TLen, "actual", len(target.Seq), "target", target.Name)
	}
	if !(0 <= o.TStart && o.TStart < o.TEnd && o.TEnd <= o.TLen) {
		return errors.E("overlap: invalid target interval", "tstart", o.TStart, "tend", o.TEnd, "tlen", o.TLen)
	}
	if !(0 <= o.QStart && o.QStart < o.QEnd && o.QEnd <= o.QLen) {
		return errors.E("overlap: invalid query interval", "qstart", o.QStart, "qend", o.QEnd, "qlen", o.QLen)
	}
	if tc := o.Cigar.TargetLen(); tc != o.TEnd-o.TStart {
		return errors.E("overlap: cigar target-consuming length mismatch", "cigar", tc, "want", o.TEnd-o.TStart)
	}
	if qc := o.Cigar.QueryLen(); qc != o.QEnd-o.QStart {
		return errors.E("overlap: cigar query-consuming length mismatch", "cigar", qc, "want", o.QEnd-o.QStart)
	}
	for _, r := range o.Cigar {
		switch r.Op {
		case Match, Ins, Del:
		default:
			return errors.E("overlap: unknown cigar op", "op", byte(r.Op))
		}
	}
	return nil
}

// RunEvent is one step of CIGAR iteration: the run's op and length, plus
// the target/query cursor advance it represents.
type RunEvent struct {
	Op            Op
	Len           int
	TargetAdvance int
	QueryAdvance  int
}

// Walk calls fn once per CIGAR run, in order. It is the basic iteration
// primitive window.Partitioner uses to track target/query cursors across an
// overlap.
func Walk(c Cigar, fn func(RunEvent)) {
	for _, r := range c {
		fn(RunEvent{
			Op:            r.Op,
			Len:           r.Len,
			TargetAdvance: r.Op.TargetAdvance() * r.Len,
			QueryAdvance:  r.Op.QueryAdvance() * r.Len,
		})
	}
}
