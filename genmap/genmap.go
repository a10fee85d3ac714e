// Package genmap reads a PLINK-format genetic map and answers
// base-pair-to-Morgan queries, linearly interpolating between anchors. It
// is the "Genetic map" external collaborator of spec.md §6.
package genmap

import (
	"bufio"
	"context"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/grailbio/base/file"
	"github.com/statgenlab/ibdends/errs"
)

// cmFloor is the minimum enforced inter-anchor spacing, in centiMorgans,
// before conversion to Morgans.
const cmFloor = 1e-6

// Map is an ordered list of (basePos, cM) anchors for one chromosome.
type Map struct {
	chrom  string
	basePos []int
	cm      []float64
}

// Read loads a PLINK .map/.gmap file (plain or gzip-compressed) restricted
// to the given chromosome. Expected columns are whitespace-delimited:
// chromosome, marker-id, cM position, base position — the standard 4-column
// PLINK map layout.
func Read(ctx context.Context, path, chrom string) (*Map, error) {
	rc, err := file.Open(ctx, path)
	if err != nil {
		return nil, errs.IOf(err, "genmap: opening %s", path)
	}
	defer rc.Close(ctx) // nolint: errcheck

	var r *bufio.Scanner
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(rc.Reader(ctx))
		if err != nil {
			return nil, errs.IOf(err, "genmap: gzip %s", path)
		}
		defer gz.Close()
		r = bufio.NewScanner(gz)
	} else {
		r = bufio.NewScanner(rc.Reader(ctx))
	}
	r.Buffer(make([]byte, 1<<20), 1<<24)

	m := &Map{chrom: chrom}
	lineNo := 0
	for r.Scan() {
		lineNo++
		line := strings.TrimSpace(r.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, errs.InputFormatf("genmap: %s:%d: expected >=4 fields, got %d", path, lineNo, len(fields))
		}
		if fields[0] != chrom {
			continue
		}
		cm, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, errs.InputFormatf("genmap: %s:%d: bad cM field %q", path, lineNo, fields[2])
		}
		pos, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, errs.InputFormatf("genmap: %s:%d: bad position field %q", path, lineNo, fields[3])
		}
		if len(m.basePos) > 0 && pos <= m.basePos[len(m.basePos)-1] {
			return nil, errs.InputFormatf("genmap: %s:%d: base position not strictly increasing", path, lineNo)
		}
		if len(m.cm) > 0 && cm < m.cm[len(m.cm)-1]+cmFloor {
			cm = m.cm[len(m.cm)-1] + cmFloor
		}
		m.basePos = append(m.basePos, pos)
		m.cm = append(m.cm, cm)
	}
	if err := r.Err(); err != nil {
		return nil, errs.IOf(err, "genmap: reading %s", path)
	}
	if len(m.basePos) < 2 {
		return nil, errs.InputFormatf("genmap: %s: fewer than 2 anchors for chromosome %s", path, chrom)
	}
	return m, nil
}

// FirstPos and LastPos bound the anchors this map covers.
func (m *Map) FirstPos() int { return m.basePos[0] }
func (m *Map) LastPos() int  { return m.basePos[len(m.basePos)-1] }

// PosToMorgan linearly interpolates the Morgan position of pos between its
// bracketing anchors, clamping at the map's edges, and converts from
// centiMorgans (cM/100 = Morgans).
func (m *Map) PosToMorgan(pos int) float64 {
	return m.posToCM(pos) / 100
}

func (m *Map) posToCM(pos int) float64 {
	n := len(m.basePos)
	if pos <= m.basePos[0] {
		return m.cm[0]
	}
	if pos >= m.basePos[n-1] {
		return m.cm[n-1]
	}
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if m.basePos[mid] <= pos {
			lo = mid
		} else {
			hi = mid
		}
	}
	return m.interp(pos, lo, hi)
}

func (m *Map) interp(pos, lo, hi int) float64 {
	p0, p1 := m.basePos[lo], m.basePos[hi]
	c0, c1 := m.cm[lo], m.cm[hi]
	frac := float64(pos-p0) / float64(p1-p0)
	return c0 + frac*(c1-c0)
}
