package correct

import (
	"bytes"
	"context"
	"io/ioutil"
	"testing"

	"github.com/grailbio/correct/correctpb"
	"github.com/grailbio/correct/infer"
	"github.com/grailbio/correct/modelconfig"
	"github.com/grailbio/correct/overlap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(path string, data []byte) error {
	return ioutil.WriteFile(path, data, 0644)
}

func readFile(path string) ([]byte, error) {
	return ioutil.ReadFile(path)
}

// classZeroBackend always predicts class 0 ('A') for every supported
// column, enough to exercise S3's "backend returns index 0 for position 2"
// scenario deterministically.
type classZeroBackend struct{}

func (classZeroBackend) Infer(bases *infer.ByteTensor3, quals *infer.FloatTensor3, lengths []int32, indices [][]int, sizes []int) ([]infer.Logits, error) {
	out := make([]infer.Logits, len(sizes))
	for i, n := range sizes {
		data := make([]float64, n*5)
		for c := 0; c < n; c++ {
			data[c*5] = 10 // class 0 wins every column
		}
		out[i] = infer.Logits{NumCols: n, NumClasses: 5, Data: data}
	}
	return out, nil
}

func (classZeroBackend) ClearCache() {}

func qualAll(n int, q byte) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = q
	}
	return string(b)
}

// TestPipelineAllTrivial covers S1/S2: zero or agreeing overlaps never
// touch the inference stage and produce one output record per read.
func TestPipelineAllTrivial(t *testing.T) {
	msg := &correctpb.CorrectionAlignments{
		Target: overlap.Read{Name: "read", Seq: []byte("ACGTACGT"), Qual: qualAll(8, 'I')},
	}
	dir := t.TempDir()
	inPath := dir + "/in.rio"
	outPath := dir + "/out.rio"
	var buf bytes.Buffer
	require.NoError(t, correctpb.WriteCorrectionAlignments([]*correctpb.CorrectionAlignments{msg}, &buf))
	require.NoError(t, writeFile(inPath, buf.Bytes()))

	cfg := &modelconfig.Config{WindowSize: 4, SupportedMinCoverage: 1, SupportedRequireDisagreement: true, BatchSlotDivisor: 5120, BatchTimeoutSeconds: 10}
	opts := Opts{FASTQPath: inPath, OutputPath: outPath, Device: "cpu", Threads: 1, BatchSize: 4}
	p := NewPipeline(opts, cfg, func(device string) (infer.Backend, error) { return classZeroBackend{}, nil })

	require.NoError(t, p.Run(context.Background()))

	out, err := readFile(outPath)
	require.NoError(t, err)
	recs, err := correctpb.ReadCorrectedReads(outPath, bytes.NewReader(out))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "read", recs[0].Name)
	assert.Equal(t, "ACGTACGT", recs[0].Seq)
	assert.EqualValues(t, 1, p.Stats().NumReadsCorrected)
}

// TestPipelineDisagreementGoesThroughInference covers S3: one window's
// disagreement routes it through the inference stage, whose (fake)
// backend prediction of 'A' at the disagreeing column reproduces the
// target's own base there.
func TestPipelineDisagreementGoesThroughInference(t *testing.T) {
	msg := &correctpb.CorrectionAlignments{
		Target: overlap.Read{Name: "read", Seq: []byte("AAAACCCC"), Qual: qualAll(8, 'I')},
		Queries: []overlap.Read{
			{Name: "q0", Seq: []byte("AACA"), Qual: qualAll(4, 'I')},
		},
		Overlaps: []overlap.Overlap{
			{TStart: 0, TEnd: 4, QStart: 0, QEnd: 4, TLen: 8, QLen: 4, Fwd: true,
				Cigar: overlap.Cigar{{overlap.Match, 4}}},
		},
	}
	dir := t.TempDir()
	inPath := dir + "/in.rio"
	outPath := dir + "/out.rio"
	var buf bytes.Buffer
	require.NoError(t, correctpb.WriteCorrectionAlignments([]*correctpb.CorrectionAlignments{msg}, &buf))
	require.NoError(t, writeFile(inPath, buf.Bytes()))

	cfg := &modelconfig.Config{WindowSize: 4, SupportedMinCoverage: 1, SupportedRequireDisagreement: true, BatchSlotDivisor: 5120, BatchTimeoutSeconds: 10}
	opts := Opts{FASTQPath: inPath, OutputPath: outPath, Device: "cpu", Threads: 1, BatchSize: 4}
	p := NewPipeline(opts, cfg, func(device string) (infer.Backend, error) { return classZeroBackend{}, nil })

	require.NoError(t, p.Run(context.Background()))

	out, err := readFile(outPath)
	require.NoError(t, err)
	recs, err := correctpb.ReadCorrectedReads(outPath, bytes.NewReader(out))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "read", recs[0].Name)
	assert.Equal(t, "AAAACCCC", recs[0].Seq)
}
