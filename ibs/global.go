package ibs

import (
	"math/rand"
	"sort"

	"github.com/grailbio/base/traverse"
	"github.com/statgenlab/ibdends/frame"
)

// Global is the pooled empirical CDF of one-sided IBS run lengths (in
// Morgans) of §4.2, built by Monte-Carlo sampling random foci and random
// haplotype pairs, with median-based tail-outlier filtering. It is
// direction-agnostic: the sampling procedure measures in whichever of the
// forward/backward directions has more room from the sampled focus, so one
// instance serves both the forward and reverse IbsLengthProbs.
type Global struct {
	lengths []float64
}

// NewGlobal builds a Global model over f by sampling globalPos random foci,
// each contributing globalSegments random-pair one-sided run lengths;
// per-focus vectors whose globalQuantile-th sorted entry exceeds
// globalFactor times the cross-focus median are dropped before the
// remaining lengths are pooled and sorted.
func NewGlobal(f frame.Frame, globalPos, globalSegments int, globalQuantile, globalFactor float64, seed int64) *Global {
	m := f.NMarkers()
	first := f.Morgan(0)
	last := f.Morgan(m - 1)
	mid := (first + last) / 2

	perPos := make([][]float64, globalPos)
	idx := int(globalQuantile * float64(globalSegments))
	if idx < 0 {
		idx = 0
	}
	if idx >= globalSegments {
		idx = globalSegments - 1
	}

	_ = traverse.Each(globalPos, func(i int) error {
		rng := rand.New(rand.NewSource(seed + int64(i)))
		p := first + rng.Float64()*(last-first)
		lengths := make([]float64, globalSegments)
		forward := p < mid
		for j := 0; j < globalSegments; j++ {
			h1 := rng.Intn(f.NHaps())
			h2 := rng.Intn(f.NHaps() - 1)
			if h2 >= h1 {
				h2++
			}
			lengths[j] = oneSidedLength(f, p, h1, h2, forward)
		}
		sort.Float64s(lengths)
		perPos[i] = lengths
		return nil
	})

	tail := make([]float64, globalPos)
	for i, lengths := range perPos {
		tail[i] = lengths[idx]
	}
	med := median(tail)

	var lengths []float64
	for i, lengths_i := range perPos {
		if tail[i] <= globalFactor*med {
			lengths = append(lengths, lengths_i...)
		}
	}
	sort.Float64s(lengths)
	return &Global{lengths: lengths}
}

// oneSidedLength measures, from genetic position p, the Morgan distance to
// the first discordance between haplotypes h1 and h2 in the given
// direction, or to the terminal marker if the pair remains IBS to the
// chromosome edge.
func oneSidedLength(f frame.Frame, p float64, h1, h2 int, forward bool) float64 {
	m := f.NMarkers()
	if forward {
		start := sort.Search(m, func(i int) bool { return f.Morgan(i) >= p })
		for i := start; i < m; i++ {
			if f.Allele(i, h1) != f.Allele(i, h2) {
				return f.Morgan(i) - p
			}
		}
		return f.Morgan(m-1) - p
	}
	start := sort.Search(m, func(i int) bool { return f.Morgan(i) > p }) - 1
	for i := start; i >= 0; i-- {
		if f.Allele(i, h1) != f.Allele(i, h2) {
			return p - f.Morgan(i)
		}
	}
	return p - f.Morgan(0)
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// NLengths returns the number of pooled samples backing the CDF.
func (g *Global) NLengths() int { return len(g.lengths) }

// Lengths exposes the sorted pooled sample for modelcache's on-disk
// encoding; callers must treat the returned slice as read-only.
func (g *Global) Lengths() []float64 { return g.lengths }

// GlobalFromCache reconstructs a Global model from a previously sorted,
// pooled length vector that modelcache persisted.
func GlobalFromCache(lengths []float64) *Global { return &Global{lengths: lengths} }

// CDF returns the empirical CDF at x, clamped away from exactly 0 or 1: the
// rank used is always in [1, n-1].
func (g *Global) CDF(x float64) float64 {
	n := len(g.lengths)
	rank := sort.Search(n, func(i int) bool { return g.lengths[i] > x })
	if rank < 1 {
		rank = 1
	}
	if rank > n-1 {
		rank = n - 1
	}
	return float64(rank) / float64(n)
}
