// Package segment parses the input IBD segment stream into SharedSegment
// values and encodes the per-segment quantile/sample output, per spec.md
// §3's SharedSegment entity and §6's segment-stream and output interfaces.
package segment

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	farm "github.com/dgryski/go-farm"
	"github.com/statgenlab/ibdends/errs"
)

// Segment is one input record: a candidate IBD segment between two
// haplotypes on one chromosome, with haplotype indices already resolved
// from sample name + 1-based haplotype choice, and positions clamped to the
// marker frame's covered range.
type Segment struct {
	Sample1, Sample2       string
	Hap1Choice, Hap2Choice int // 1 or 2, as given in the input record
	Hap1, Hap2             int // resolved haplotype indices: sampleIdx*2 + hapChoice - 1
	Chrom                  string
	StartBp, InclEndBp     int
}

// Less orders segments by (Hap1, Hap2, StartBp, InclEndBp) lexicographically,
// the determinism-defining order of spec.md §3.
func Less(a, b *Segment) bool {
	if a.Hap1 != b.Hap1 {
		return a.Hap1 < b.Hap1
	}
	if a.Hap2 != b.Hap2 {
		return a.Hap2 < b.Hap2
	}
	if a.StartBp != b.StartBp {
		return a.StartBp < b.StartBp
	}
	return a.InclEndBp < b.InclEndBp
}

// Hash returns a deterministic, content-derived hash of the segment's
// identifying fields, used to reseed each segment's sampling RNG as
// seed XOR Hash(segment) — preserved verbatim from the estimator this
// package is descended from, with github.com/dgryski/go-farm in place of a
// JVM-style Object.hashCode().
func Hash(s *Segment) uint64 {
	var b strings.Builder
	b.WriteString(s.Sample1)
	b.WriteByte(0)
	b.WriteString(s.Sample2)
	b.WriteByte(0)
	b.WriteString(s.Chrom)
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(s.Hap1Choice))
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(s.Hap2Choice))
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(s.StartBp))
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(s.InclEndBp))
	return farm.Hash64([]byte(b.String()))
}

// SampleIndex resolves a sample name to its index among the haplotype
// source's samples. Parser calls this once per record field; an unknown
// name causes that record to be dropped rather than treated as an error,
// per spec.md §7's propagation policy.
type SampleIndex func(name string) (idx int, ok bool)

// Parser is a streaming reader over the whitespace-delimited segment
// stream of spec.md §6.
type Parser struct {
	scanner  *bufio.Scanner
	chrom    string
	resolve  SampleIndex
	firstPos int
	lastPos  int
	lineNo   int
}

// NewParser constructs a Parser restricted to chrom, clamping positions to
// [firstPos, lastPos].
func NewParser(r io.Reader, chrom string, firstPos, lastPos int, resolve SampleIndex) *Parser {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<16), 1<<24)
	return &Parser{scanner: sc, chrom: chrom, resolve: resolve, firstPos: firstPos, lastPos: lastPos}
}

// Next returns the next record. dropped is true, with a nil segment and nil
// error, when the record names an unknown sample or a different
// chromosome. err is io.EOF at end of stream; a malformed record is an
// errs.InputFormatError and a failed read of the stream is an errs I/O
// error, both fatal per spec.md §7.
func (p *Parser) Next() (seg *Segment, dropped bool, err error) {
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return nil, false, errs.IOf(err, "segment: reading stream")
		}
		return nil, false, io.EOF
	}
	p.lineNo++
	line := strings.TrimSpace(p.scanner.Text())
	if line == "" {
		return p.Next()
	}
	fields := strings.Fields(line)
	if len(fields) < 7 {
		return nil, false, errs.InputFormatf("segment: line %d: expected >=7 fields, got %d", p.lineNo, len(fields))
	}

	sample1, hap1s, sample2, hap2s, chrom, startS, endS := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5], fields[6]

	hap1c, err1 := strconv.Atoi(hap1s)
	hap2c, err2 := strconv.Atoi(hap2s)
	if err1 != nil || err2 != nil || (hap1c != 1 && hap1c != 2) || (hap2c != 1 && hap2c != 2) {
		return nil, false, errs.InputFormatf("segment: line %d: haplotype designator must be 1 or 2", p.lineNo)
	}
	start, errS := strconv.Atoi(startS)
	end, errE := strconv.Atoi(endS)
	if errS != nil || errE != nil {
		return nil, false, errs.InputFormatf("segment: line %d: non-parseable position", p.lineNo)
	}
	if start > end {
		return nil, false, errs.InputFormatf("segment: line %d: start %d > end %d", p.lineNo, start, end)
	}

	if chrom != p.chrom {
		return nil, true, nil
	}
	idx1, ok1 := p.resolve(sample1)
	idx2, ok2 := p.resolve(sample2)
	if !ok1 || !ok2 {
		return nil, true, nil
	}

	start = clamp(start, p.firstPos, p.lastPos)
	end = clamp(end, p.firstPos, p.lastPos)

	return &Segment{
		Sample1: sample1, Sample2: sample2,
		Hap1Choice: hap1c, Hap2Choice: hap2c,
		Hap1: idx1*2 + hap1c - 1, Hap2: idx2*2 + hap2c - 1,
		Chrom: chrom, StartBp: start, InclEndBp: end,
	}, false, nil
}

func clamp(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
