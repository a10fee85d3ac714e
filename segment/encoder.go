package segment

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/statgenlab/ibdends/errs"
)

// Triple is one (startBp, endBp, cM) output entry, per spec.md §6: for a
// surviving segment, each requested quantile or sampled draw contributes
// one triple where cm = 100*(endMorgan - startMorgan).
type Triple struct {
	StartBp, EndBp int
	CM             float64
}

// Encoder writes the per-segment output record of spec.md §6 in a manual
// binary layout, in the style of the teacher's on-disk shard format
// (length-prefixed strings, fixed-width numeric fields, no reflection).
type Encoder struct {
	w io.Writer
}

// NewEncoder wraps w, typically a per-worker BGZF writer whose compressed
// output is flushed to the pipeline's shared sink once it crosses the
// pipeline's flush threshold.
func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

func writeString(w io.Writer, s string) error {
	if len(s) > math.MaxUint16 {
		return errs.InputFormatf("segment: field too long to encode (%d bytes)", len(s))
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Encode writes one record: the original segment, focusPos, and the
// triples array. Index 0 of the caller's probability vector (the internal
// convergence probe) is not part of triples — the caller omits it before
// calling Encode, per spec.md §6 ("Index 0 is internal and not emitted").
func (e *Encoder) Encode(seg *Segment, focusPos int, triples []Triple) error {
	if err := writeString(e.w, seg.Sample1); err != nil {
		return errs.IOf(err, "segment: encoding sample1")
	}
	if err := binary.Write(e.w, binary.LittleEndian, uint8(seg.Hap1Choice)); err != nil {
		return errs.IOf(err, "segment: encoding hap1 choice")
	}
	if err := writeString(e.w, seg.Sample2); err != nil {
		return errs.IOf(err, "segment: encoding sample2")
	}
	if err := binary.Write(e.w, binary.LittleEndian, uint8(seg.Hap2Choice)); err != nil {
		return errs.IOf(err, "segment: encoding hap2 choice")
	}
	if err := writeString(e.w, seg.Chrom); err != nil {
		return errs.IOf(err, "segment: encoding chrom")
	}
	if err := binary.Write(e.w, binary.LittleEndian, int64(seg.StartBp)); err != nil {
		return errs.IOf(err, "segment: encoding start")
	}
	if err := binary.Write(e.w, binary.LittleEndian, int64(seg.InclEndBp)); err != nil {
		return errs.IOf(err, "segment: encoding end")
	}
	if err := binary.Write(e.w, binary.LittleEndian, int64(focusPos)); err != nil {
		return errs.IOf(err, "segment: encoding focus")
	}
	if err := binary.Write(e.w, binary.LittleEndian, uint16(len(triples))); err != nil {
		return errs.IOf(err, "segment: encoding triple count")
	}
	for _, t := range triples {
		if err := binary.Write(e.w, binary.LittleEndian, int64(t.StartBp)); err != nil {
			return errs.IOf(err, "segment: encoding triple start")
		}
		if err := binary.Write(e.w, binary.LittleEndian, int64(t.EndBp)); err != nil {
			return errs.IOf(err, "segment: encoding triple end")
		}
		if err := binary.Write(e.w, binary.LittleEndian, t.CM); err != nil {
			return errs.IOf(err, "segment: encoding triple cM")
		}
	}
	return nil
}

// Decoder reads back records written by Encoder, used by tests and by any
// downstream tool that re-reads the output stream.
type Decoder struct {
	r io.Reader
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder { return &Decoder{r: r} }

// Decode reads one record. err is io.EOF at a clean end of stream.
func (d *Decoder) Decode() (*Segment, int, []Triple, error) {
	sample1, err := readString(d.r)
	if err != nil {
		return nil, 0, nil, err // io.EOF surfaces here on a clean boundary
	}
	var hap1 uint8
	if err := binary.Read(d.r, binary.LittleEndian, &hap1); err != nil {
		return nil, 0, nil, errs.IOf(err, "segment: decoding hap1 choice")
	}
	sample2, err := readString(d.r)
	if err != nil {
		return nil, 0, nil, errs.IOf(err, "segment: decoding sample2")
	}
	var hap2 uint8
	if err := binary.Read(d.r, binary.LittleEndian, &hap2); err != nil {
		return nil, 0, nil, errs.IOf(err, "segment: decoding hap2 choice")
	}
	chrom, err := readString(d.r)
	if err != nil {
		return nil, 0, nil, errs.IOf(err, "segment: decoding chrom")
	}
	var start, end, focus int64
	if err := binary.Read(d.r, binary.LittleEndian, &start); err != nil {
		return nil, 0, nil, errs.IOf(err, "segment: decoding start")
	}
	if err := binary.Read(d.r, binary.LittleEndian, &end); err != nil {
		return nil, 0, nil, errs.IOf(err, "segment: decoding end")
	}
	if err := binary.Read(d.r, binary.LittleEndian, &focus); err != nil {
		return nil, 0, nil, errs.IOf(err, "segment: decoding focus")
	}
	var n uint16
	if err := binary.Read(d.r, binary.LittleEndian, &n); err != nil {
		return nil, 0, nil, errs.IOf(err, "segment: decoding triple count")
	}
	triples := make([]Triple, n)
	for i := range triples {
		var s, e int64
		var cm float64
		if err := binary.Read(d.r, binary.LittleEndian, &s); err != nil {
			return nil, 0, nil, errs.IOf(err, "segment: decoding triple start")
		}
		if err := binary.Read(d.r, binary.LittleEndian, &e); err != nil {
			return nil, 0, nil, errs.IOf(err, "segment: decoding triple end")
		}
		if err := binary.Read(d.r, binary.LittleEndian, &cm); err != nil {
			return nil, 0, nil, errs.IOf(err, "segment: decoding triple cM")
		}
		triples[i] = Triple{StartBp: int(s), EndBp: int(e), CM: cm}
	}

	seg := &Segment{
		Sample1: sample1, Sample2: sample2,
		Hap1Choice: int(hap1), Hap2Choice: int(hap2),
		Chrom: chrom, StartBp: int(start), InclEndBp: int(end),
	}
	return seg, int(focus), triples, nil
}
