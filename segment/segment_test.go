package segment

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolver(names map[string]int) SampleIndex {
	return func(name string) (int, bool) {
		idx, ok := names[name]
		return idx, ok
	}
}

func TestParserBasic(t *testing.T) {
	resolve := resolver(map[string]int{"A": 0, "B": 1})
	r := strings.NewReader("A 1 B 2 chr1 100 200\n")
	p := NewParser(r, "chr1", 0, 1000, resolve)

	seg, dropped, err := p.Next()
	require.NoError(t, err)
	require.False(t, dropped)
	assert.Equal(t, 0, seg.Hap1)
	assert.Equal(t, 3, seg.Hap2)
	assert.Equal(t, 100, seg.StartBp)
	assert.Equal(t, 200, seg.InclEndBp)

	_, _, err = p.Next()
	assert.Equal(t, io.EOF, err)
}

func TestParserDropsUnknownSample(t *testing.T) {
	resolve := resolver(map[string]int{"A": 0})
	r := strings.NewReader("A 1 Z 2 chr1 100 200\n")
	p := NewParser(r, "chr1", 0, 1000, resolve)

	seg, dropped, err := p.Next()
	require.NoError(t, err)
	assert.True(t, dropped)
	assert.Nil(t, seg)
}

func TestParserDropsOtherChromosome(t *testing.T) {
	resolve := resolver(map[string]int{"A": 0, "B": 1})
	r := strings.NewReader("A 1 B 2 chr2 100 200\n")
	p := NewParser(r, "chr1", 0, 1000, resolve)

	_, dropped, err := p.Next()
	require.NoError(t, err)
	assert.True(t, dropped)
}

func TestParserRejectsBadHapDesignator(t *testing.T) {
	resolve := resolver(map[string]int{"A": 0, "B": 1})
	r := strings.NewReader("A 3 B 2 chr1 100 200\n")
	p := NewParser(r, "chr1", 0, 1000, resolve)

	_, _, err := p.Next()
	assert.Error(t, err)
}

func TestParserRejectsStartAfterEnd(t *testing.T) {
	resolve := resolver(map[string]int{"A": 0, "B": 1})
	r := strings.NewReader("A 1 B 2 chr1 200 100\n")
	p := NewParser(r, "chr1", 0, 1000, resolve)

	_, _, err := p.Next()
	assert.Error(t, err)
}

func TestParserClampsPositions(t *testing.T) {
	resolve := resolver(map[string]int{"A": 0, "B": 1})
	r := strings.NewReader("A 1 B 2 chr1 -5 5000\n")
	p := NewParser(r, "chr1", 0, 1000, resolve)

	seg, dropped, err := p.Next()
	require.NoError(t, err)
	require.False(t, dropped)
	assert.Equal(t, 0, seg.StartBp)
	assert.Equal(t, 1000, seg.InclEndBp)
}

func TestParserSkipsBlankLines(t *testing.T) {
	resolve := resolver(map[string]int{"A": 0, "B": 1})
	r := strings.NewReader("\n\nA 1 B 2 chr1 100 200\n")
	p := NewParser(r, "chr1", 0, 1000, resolve)

	seg, dropped, err := p.Next()
	require.NoError(t, err)
	require.False(t, dropped)
	assert.Equal(t, 100, seg.StartBp)
}

func TestLessOrdering(t *testing.T) {
	a := &Segment{Hap1: 0, Hap2: 1, StartBp: 10, InclEndBp: 20}
	b := &Segment{Hap1: 0, Hap2: 1, StartBp: 10, InclEndBp: 30}
	c := &Segment{Hap1: 0, Hap2: 2, StartBp: 5, InclEndBp: 5}
	assert.True(t, Less(a, b))
	assert.False(t, Less(b, a))
	assert.True(t, Less(a, c))
}

func TestHashDeterministicAndSensitive(t *testing.T) {
	s1 := &Segment{Sample1: "A", Sample2: "B", Chrom: "chr1", Hap1Choice: 1, Hap2Choice: 2, StartBp: 100, InclEndBp: 200}
	s2 := &Segment{Sample1: "A", Sample2: "B", Chrom: "chr1", Hap1Choice: 1, Hap2Choice: 2, StartBp: 100, InclEndBp: 200}
	s3 := &Segment{Sample1: "A", Sample2: "B", Chrom: "chr1", Hap1Choice: 1, Hap2Choice: 2, StartBp: 100, InclEndBp: 201}

	assert.Equal(t, Hash(s1), Hash(s2))
	assert.NotEqual(t, Hash(s1), Hash(s3))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	seg := &Segment{
		Sample1: "sampleA", Sample2: "sampleB",
		Hap1Choice: 1, Hap2Choice: 2,
		Chrom: "chr7", StartBp: 12345, InclEndBp: 67890,
	}
	triples := []Triple{
		{StartBp: 12000, EndBp: 13000, CM: 1.25},
		{StartBp: 11000, EndBp: 14000, CM: 2.5},
	}

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(seg, 12500, triples))

	gotSeg, gotFocus, gotTriples, err := NewDecoder(&buf).Decode()
	require.NoError(t, err)
	assert.Equal(t, seg.Sample1, gotSeg.Sample1)
	assert.Equal(t, seg.Sample2, gotSeg.Sample2)
	assert.Equal(t, seg.Hap1Choice, gotSeg.Hap1Choice)
	assert.Equal(t, seg.Hap2Choice, gotSeg.Hap2Choice)
	assert.Equal(t, seg.Chrom, gotSeg.Chrom)
	assert.Equal(t, seg.StartBp, gotSeg.StartBp)
	assert.Equal(t, seg.InclEndBp, gotSeg.InclEndBp)
	assert.Equal(t, 12500, gotFocus)
	assert.Equal(t, triples, gotTriples)
}

func TestDecodeEOFAtCleanBoundary(t *testing.T) {
	var buf bytes.Buffer
	_, _, _, err := NewDecoder(&buf).Decode()
	assert.Equal(t, io.EOF, err)
}

func TestEncodeMultipleRecordsSequentially(t *testing.T) {
	seg1 := &Segment{Sample1: "A", Sample2: "B", Chrom: "chr1", StartBp: 1, InclEndBp: 2}
	seg2 := &Segment{Sample1: "C", Sample2: "D", Chrom: "chr1", StartBp: 3, InclEndBp: 4}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(seg1, 1, nil))
	require.NoError(t, enc.Encode(seg2, 3, nil))

	dec := NewDecoder(&buf)
	got1, _, _, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, "A", got1.Sample1)

	got2, _, _, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, "C", got2.Sample1)

	_, _, _, err = dec.Decode()
	assert.Equal(t, io.EOF, err)
}
