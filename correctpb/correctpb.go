package correctpb

import (
	"bytes"
	"encoding/binary"
	"io"
	"io/ioutil"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/correct/overlap"
	"github.com/klauspost/compress/gzip"
)

func init() {
	recordiozstd.Init()
}

// CorrectionAlignments is the pipeline's input message (spec.md §4.1): one
// target read, the query reads overlapping it, and their overlaps.
type CorrectionAlignments struct {
	Target   overlap.Read
	Queries  []overlap.Read
	Overlaps []overlap.Overlap
}

// CorrectedRead is the pipeline's output record: a read name (possibly
// suffixed ":k" for a gap-split sub-sequence) paired with its corrected
// bases.
type CorrectedRead struct {
	Name string
	Seq  string
}

// --- byte-buffer primitives ---------------------------------------------

func putUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func putString(buf []byte, s string) []byte {
	buf = putUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func putBytes(buf []byte, b []byte) []byte {
	buf = putUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

type cursor struct {
	b   []byte
	off int
}

func (c *cursor) uint32() (uint32, error) {
	if c.off+4 > len(c.b) {
		return 0, errors.E("correctpb: truncated uint32")
	}
	v := binary.LittleEndian.Uint32(c.b[c.off : c.off+4])
	c.off += 4
	return v, nil
}

func (c *cursor) string() (string, error) {
	n, err := c.uint32()
	if err != nil {
		return "", err
	}
	if c.off+int(n) > len(c.b) {
		return "", errors.E("correctpb: truncated string")
	}
	s := string(c.b[c.off : c.off+int(n)])
	c.off += int(n)
	return s, nil
}

func (c *cursor) bytes() ([]byte, error) {
	n, err := c.uint32()
	if err != nil {
		return nil, err
	}
	if c.off+int(n) > len(c.b) {
		return nil, errors.E("correctpb: truncated bytes")
	}
	out := make([]byte, n)
	copy(out, c.b[c.off:c.off+int(n)])
	c.off += int(n)
	return out, nil
}

// --- CorrectionAlignments marshaling -------------------------------------

func putRead(buf []byte, r overlap.Read) []byte {
	buf = putString(buf, r.Name)
	buf = putBytes(buf, r.Seq)
	buf = putString(buf, r.Qual)
	return buf
}

func (c *cursor) read() (overlap.Read, error) {
	var r overlap.Read
	var err error
	if r.Name, err = c.string(); err != nil {
		return r, err
	}
	if r.Seq, err = c.bytes(); err != nil {
		return r, err
	}
	if r.Qual, err = c.string(); err != nil {
		return r, err
	}
	return r, nil
}

func putCigar(buf []byte, cg overlap.Cigar) []byte {
	buf = putUint32(buf, uint32(len(cg)))
	for _, run := range cg {
		buf = append(buf, byte(run.Op))
		buf = putUint32(buf, uint32(run.Len))
	}
	return buf
}

func (c *cursor) cigar() (overlap.Cigar, error) {
	n, err := c.uint32()
	if err != nil {
		return nil, err
	}
	cg := make(overlap.Cigar, n)
	for i := range cg {
		if c.off+1 > len(c.b) {
			return nil, errors.E("correctpb: truncated cigar op")
		}
		op := overlap.Op(c.b[c.off])
		c.off++
		ln, err := c.uint32()
		if err != nil {
			return nil, err
		}
		cg[i] = overlap.Run{Op: op, Len: int(ln)}
	}
	return cg, nil
}

func putOverlap(buf []byte, o overlap.Overlap) []byte {
	buf = putUint32(buf, uint32(o.TStart))
	buf = putUint32(buf, uint32(o.TEnd))
	buf = putUint32(buf, uint32(o.TLen))
	buf = putUint32(buf, uint32(o.QStart))
	buf = putUint32(buf, uint32(o.QEnd))
	buf = putUint32(buf, uint32(o.QLen))
	if o.Fwd {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = putCigar(buf, o.Cigar)
	return buf
}

func (c *cursor) overlap() (overlap.Overlap, error) {
	var o overlap.Overlap
	vals := make([]int, 6)
	for i := range vals {
		v, err := c.uint32()
		if err != nil {
			return o, err
		}
		vals[i] = int(v)
	}
	o.TStart, o.TEnd, o.TLen, o.QStart, o.QEnd, o.QLen = vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]
	if c.off+1 > len(c.b) {
		return o, errors.E("correctpb: truncated overlap strand byte")
	}
	o.Fwd = c.b[c.off] != 0
	c.off++
	cg, err := c.cigar()
	if err != nil {
		return o, err
	}
	o.Cigar = cg
	return o, nil
}

// MarshalCorrectionAlignments implements recordio.WriterOpts.Marshal for
// *CorrectionAlignments.
func MarshalCorrectionAlignments(scratch []byte, v interface{}) ([]byte, error) {
	msg := v.(*CorrectionAlignments)
	buf := scratch[:0]
	buf = putRead(buf, msg.Target)
	buf = putUint32(buf, uint32(len(msg.Queries)))
	for _, q := range msg.Queries {
		buf = putRead(buf, q)
	}
	buf = putUint32(buf, uint32(len(msg.Overlaps)))
	for _, o := range msg.Overlaps {
		buf = putOverlap(buf, o)
	}
	return buf, nil
}

// UnmarshalCorrectionAlignments implements recordio.ScannerOpts.Unmarshal.
func UnmarshalCorrectionAlignments(in []byte) (interface{}, error) {
	c := &cursor{b: in}
	msg := &CorrectionAlignments{}
	var err error
	if msg.Target, err = c.read(); err != nil {
		return nil, err
	}
	nq, err := c.uint32()
	if err != nil {
		return nil, err
	}
	msg.Queries = make([]overlap.Read, nq)
	for i := range msg.Queries {
		if msg.Queries[i], err = c.read(); err != nil {
			return nil, err
		}
	}
	no, err := c.uint32()
	if err != nil {
		return nil, err
	}
	msg.Overlaps = make([]overlap.Overlap, no)
	for i := range msg.Overlaps {
		if msg.Overlaps[i], err = c.overlap(); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// --- CorrectedRead marshaling ---------------------------------------------

// MarshalCorrectedRead implements recordio.WriterOpts.Marshal for
// *CorrectedRead.
func MarshalCorrectedRead(scratch []byte, v interface{}) ([]byte, error) {
	msg := v.(*CorrectedRead)
	buf := scratch[:0]
	buf = putString(buf, msg.Name)
	buf = putString(buf, msg.Seq)
	return buf, nil
}

// UnmarshalCorrectedRead implements recordio.ScannerOpts.Unmarshal.
func UnmarshalCorrectedRead(in []byte) (interface{}, error) {
	c := &cursor{b: in}
	msg := &CorrectedRead{}
	var err error
	if msg.Name, err = c.string(); err != nil {
		return nil, err
	}
	if msg.Seq, err = c.string(); err != nil {
		return nil, err
	}
	return msg, nil
}

// --- recordio shard I/O ---------------------------------------------------

// WriteCorrectionAlignments writes msgs to out as a zstd-compressed
// recordio shard, the same shape pileup/snp uses for BaseStrandPile.
func WriteCorrectionAlignments(msgs []*CorrectionAlignments, out io.Writer) error {
	w := recordio.NewWriter(out, recordio.WriterOpts{
		Marshal:      MarshalCorrectionAlignments,
		Transformers: []string{recordiozstd.Name},
	})
	for _, msg := range msgs {
		w.Append(msg)
	}
	return w.Finish()
}

// ReadCorrectionAlignments reads a shard written by WriteCorrectionAlignments
// from path. path is consulted only to detect a gzip-wrapped shard (the
// same way pileup.LoadFa uses fileio.DetermineType) and decompress it
// transparently before handing rs to recordio; a shard that isn't
// gzip-wrapped is scanned directly.
func ReadCorrectionAlignments(path string, rs io.ReadSeeker) ([]*CorrectionAlignments, error) {
	rs, err := maybeGunzip(path, rs)
	if err != nil {
		return nil, err
	}
	scanner := recordio.NewScanner(rs, recordio.ScannerOpts{Unmarshal: UnmarshalCorrectionAlignments})
	var out []*CorrectionAlignments
	for scanner.Scan() {
		out = append(out, scanner.Get().(*CorrectionAlignments))
	}
	return out, scanner.Err()
}

// WriteCorrectedReads writes msgs to out as a zstd-compressed recordio
// shard of output records.
func WriteCorrectedReads(msgs []*CorrectedRead, out io.Writer) error {
	w := recordio.NewWriter(out, recordio.WriterOpts{
		Marshal:      MarshalCorrectedRead,
		Transformers: []string{recordiozstd.Name},
	})
	for _, msg := range msgs {
		w.Append(msg)
	}
	return w.Finish()
}

// ReadCorrectedReads reads a shard written by WriteCorrectedReads from path,
// transparently gunzipping it first if path indicates a gzip-wrapped shard
// (see ReadCorrectionAlignments).
func ReadCorrectedReads(path string, rs io.ReadSeeker) ([]*CorrectedRead, error) {
	rs, err := maybeGunzip(path, rs)
	if err != nil {
		return nil, err
	}
	scanner := recordio.NewScanner(rs, recordio.ScannerOpts{Unmarshal: UnmarshalCorrectedRead})
	var out []*CorrectedRead
	for scanner.Scan() {
		out = append(out, scanner.Get().(*CorrectedRead))
	}
	return out, scanner.Err()
}

// maybeGunzip decompresses rs in full when path is detected as a gzip file,
// since a gzip.Reader isn't seekable and recordio.NewScanner requires an
// io.ReadSeeker; a shard too large to buffer this way should not be
// gzip-wrapped in the first place. Non-gzip paths return rs unchanged.
func maybeGunzip(path string, rs io.ReadSeeker) (io.ReadSeeker, error) {
	if fileio.DetermineType(path) != fileio.Gzip {
		return rs, nil
	}
	gr, err := gzip.NewReader(rs)
	if err != nil {
		return nil, errors.E(err, "correctpb: opening gzip reader", "path", path)
	}
	defer gr.Close()
	data, err := ioutil.ReadAll(gr)
	if err != nil {
		return nil, errors.E(err, "correctpb: decompressing gzip shard", "path", path)
	}
	return bytes.NewReader(data), nil
}
