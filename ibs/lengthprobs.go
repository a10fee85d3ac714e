package ibs

import (
	"github.com/statgenlab/ibdends/errs"
	"github.com/statgenlab/ibdends/frame"
)

// LengthProbs answers, for a (start,end) marker pair, the probability of
// §4.3: a random pair is IBS on [s,e) and discordant at e (or, at the
// terminal slot, continues IBS past the chromosome end). Short spans are
// served directly from the local Counts table; spans beyond a start
// marker's Counts horizon fall back to the pooled Global tail distribution.
type LengthProbs struct {
	m       int
	n       int
	buf     []float64
	offsets []int
	frame   frame.Frame
	global  *Global
}

// NewLengthProbs builds the per-start probability vectors from counts
// (forward or reverse) and the shared, direction-agnostic global model.
func NewLengthProbs(counts *Counts, global *Global, f frame.Frame) (*LengthProbs, error) {
	if counts.M() != f.NMarkers() {
		return nil, errs.DataConsistencyf("ibs: counts built over %d markers, frame has %d", counts.M(), f.NMarkers())
	}
	m := counts.M()
	n := counts.N()
	denom := float64(n)*float64(n-1) + 1

	var buf []float64
	offsets := make([]int, m+1)
	for s := 0; s < m; s++ {
		offsets[s] = len(buf)
		end := counts.End(s)
		lastPairs := int32(n) * int32(n-1)
		for mk := s; mk < end; mk++ {
			c := counts.At(s, mk-s)
			buf = append(buf, (float64(lastPairs)-float64(c)+1)/denom)
			lastPairs = c
		}
		if end == m {
			buf = append(buf, (float64(lastPairs)+1)/denom)
		}
	}
	offsets[m] = len(buf)

	return &LengthProbs{m: m, n: n, buf: buf, offsets: offsets, frame: f, global: global}, nil
}

func (lp *LengthProbs) rowLen(s int) int { return lp.offsets[s+1] - lp.offsets[s] }

// Row returns the raw probability vector for start s, for completeness
// testing.
func (lp *LengthProbs) Row(s int) []float64 {
	return lp.buf[lp.offsets[s]:lp.offsets[s+1]]
}

// FwdProb implements the query of §4.3.
func (lp *LengthProbs) FwdProb(s, e int) float64 {
	m := lp.m
	if e == s && e == m {
		return 1
	}
	if e-s < lp.rowLen(s) {
		return lp.buf[lp.offsets[s]+(e-s)]
	}
	if e == m {
		return 1 - lp.global.CDF(lp.frame.Morgan(e-1)-lp.frame.Morgan(s))
	}
	p1 := lp.global.CDF(lp.frame.Morgan(e-1) - lp.frame.Morgan(s))
	p2 := lp.global.CDF(lp.frame.Morgan(e) - lp.frame.Morgan(s))
	if p1 == p2 {
		return 0.5 / float64(lp.global.NLengths())
	}
	return p2 - p1
}
