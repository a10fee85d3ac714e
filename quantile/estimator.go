// Package quantile builds, for one directional endpoint query, a cumulative
// distribution over the position of the first true discordance past a
// focus and inverts it at requested probabilities — §4.4 of the endpoint
// estimator.
package quantile

import (
	"math"
	"sort"

	"github.com/statgenlab/ibdends/coalescent"
	"github.com/statgenlab/ibdends/errs"
	"github.com/statgenlab/ibdends/frame"
	"github.com/statgenlab/ibdends/ibs"
)

// minRatio is the fraction of accumulated mass below which an iteration's
// newly-added mass is treated as converged and CDF construction stops.
const minRatio = 1e-3

// rescaleThreshold is the cumulative-mass value past which the in-progress
// CDF window is rescaled to avoid float overflow.
const rescaleThreshold = 1e50

// Data bundles one orientation's immutable shared models: the marker frame
// and the IBS length-probability table built over it. The forward and
// reverse instances are constructed once by the caller and shared by every
// worker's Estimator.
type Data struct {
	Frame       frame.Frame
	LengthProbs *ibs.LengthProbs
}

// Estimator holds the forward and reverse Data plus the coalescent and
// error-model parameters, and answers directional quantile queries. Each
// query builds its own CDF and the Estimator holds no per-query state, so a
// single Estimator and its Data are shared by every pipeline worker.
type Estimator struct {
	Fwd, Bwd   Data
	Ne         float64
	Err, GcErr float64
	GcBp       int
}

// New constructs an Estimator from the forward/reverse model pairs and the
// error-model parameters of spec.md §6 (err, gc-err, gc-bp) and the
// coalescent parameter ne.
func New(fwd, bwd Data, ne, errRate, gcErr float64, gcBp int) *Estimator {
	return &Estimator{Fwd: fwd, Bwd: bwd, Ne: ne, Err: errRate, GcErr: gcErr, GcBp: gcBp}
}

// Quantiles computes, for haplotype pair (h1,h2), a focus at (focusPos,
// focusM) with the opposite endpoint anchored at anchorM, the base
// positions corresponding to each requested cumulative probability in
// probs. forward selects the forward or reverse orientation; in the
// backward case the query is negated into the reverse frame's coordinate
// system and the results are negated back, per §4.4's "Backward operation".
func (e *Estimator) Quantiles(h1, h2 int, anchorM float64, focusPos int, focusM float64, probs []float64, forward bool) ([]int, error) {
	data := e.Fwd
	fp, fm, am := focusPos, focusM, anchorM
	if !forward {
		data = e.Bwd
		fp, fm, am = -focusPos, -focusM, -anchorM
	}

	c, err := buildCDF(data, h1, h2, fp, fm, am, e.Ne, e.Err, e.GcErr, e.GcBp)
	if err != nil {
		return nil, err
	}

	out := make([]int, len(probs))
	for i, p := range probs {
		bp, err := c.invert(p, am, e.Ne)
		if err != nil {
			return nil, err
		}
		if !forward {
			bp = -bp
		}
		out[i] = bp
	}
	return out, nil
}

// cdf is the built distribution for one directional query: vals[j] is the
// cumulative probability at marker cdfStart+j. The implicit value at
// cdfStart-1 is always 0, anchored at (focusPos, focusM) rather than a real
// marker — this is the "x1 defaults to focusM" case of §4.4's inversion.
type cdf struct {
	data     Data
	cdfStart int
	vals     []float64
	focusPos int
	focusM   float64
}

// fwdDiscord returns the first marker index >= start at which h1 and h2
// carry different alleles, or NMarkers() if the pair is IBS through the end
// of the chromosome.
func fwdDiscord(f frame.Frame, h1, h2, start int) int {
	m := f.NMarkers()
	for i := start; i < m; i++ {
		if f.Allele(i, h1) != f.Allele(i, h2) {
			return i
		}
	}
	return m
}

func buildCDF(data Data, h1, h2, focusPos int, focusM, anchorM, ne, errRate, gcErr float64, gcBp int) (*cdf, error) {
	f := data.Frame
	m := f.NMarkers()

	cdfStart := sort.Search(m, func(i int) bool { return f.BasePos(i) > focusPos })

	F1, err := coalescent.F(focusM-anchorM, ne)
	if err != nil {
		return nil, err
	}

	next := fwdDiscord(f, h1, h2, cdfStart)
	minNextDiscordPos := 0
	if next < m {
		minNextDiscordPos = f.BasePos(next) + gcBp
	}

	constant := 1.0
	currentStart := cdfStart
	var vals []float64
	prevTotal := 0.0

	for {
		cdfEnd := next + 1
		if cdfEnd > m {
			cdfEnd = m
		}
		windowBefore := prevTotal
		for mk := currentStart; mk < cdfEnd; mk++ {
			F2, err := coalescent.F(f.Morgan(mk)-anchorM, ne)
			if err != nil {
				return nil, err
			}
			lengthProb := data.LengthProbs.FwdProb(mk, next)
			v := prevTotal + (F2-F1)*lengthProb*constant
			vals = append(vals, v)
			prevTotal = v
			F1 = F2
		}

		total := prevTotal
		windowAdded := total - windowBefore

		done := cdfEnd == m || (total > 0 && windowAdded < minRatio*total)
		if done {
			if total > 0 {
				for i := range vals {
					vals[i] /= total
				}
			}
			return &cdf{data: data, cdfStart: cdfStart, vals: vals, focusPos: focusPos, focusM: focusM}, nil
		}

		if total > rescaleThreshold {
			for i := range vals {
				vals[i] /= total
			}
			constant /= total
			prevTotal /= total
		}

		currentStart = cdfEnd
		next = fwdDiscord(f, h1, h2, currentStart)
		var rate float64
		if next >= m || f.BasePos(next) >= minNextDiscordPos {
			rate = errRate
			if next < m {
				minNextDiscordPos = f.BasePos(next) + gcBp
			}
		} else {
			rate = gcErr
		}
		denomProb := data.LengthProbs.FwdProb(currentStart, next)
		if denomProb > 0 {
			constant *= rate / denomProb
		}
	}
}

// invert implements the quantile inversion of §4.4: binary search for p in
// the built CDF, then solve for the crossing position on the coalescent
// scale before mapping back to a base-pair position by linear
// interpolation between the bracketing markers.
func (c *cdf) invert(p, anchorM, ne float64) (int, error) {
	if !(p > 0) || !(p < 1) {
		return 0, errs.NumericEdgef("quantile: p must be in (0,1), got %v", p)
	}
	n := len(c.vals)
	j := sort.Search(n, func(i int) bool { return c.vals[i] >= p })
	if j >= n {
		j = n - 1
	}

	i := c.cdfStart + j
	f := c.data.Frame

	var p1, x1M float64
	var x1Pos int
	if j == 0 {
		// x1Pos is focusPos+1, not focusPos: it anchors the interpolation
		// below, and focusPos itself would make the minimum returned base
		// position ambiguous with the focus.
		p1, x1M, x1Pos = 0, c.focusM, c.focusPos+1
	} else {
		p1, x1M, x1Pos = c.vals[j-1], f.Morgan(i-1), f.BasePos(i-1)
	}
	p2 := c.vals[j]
	x2M := f.Morgan(i)
	x2Pos := f.BasePos(i)

	F1, err := coalescent.F(x1M-anchorM, ne)
	if err != nil {
		return 0, err
	}
	F2, err := coalescent.F(x2M-anchorM, ne)
	if err != nil {
		return 0, err
	}

	var pp float64
	if p2 == p1 {
		pp = F1
	} else {
		pp = F1 + (p-p1)/(p2-p1)*(F2-F1)
	}
	// pp must stay strictly within (0,1) for invF; clamp at the float
	// boundary rather than failing the whole query on a grid edge.
	if pp <= 0 {
		pp = 1e-300
	}
	if pp >= 1 {
		pp = 1 - 1e-15
	}
	y, err := coalescent.InvF(pp, ne)
	if err != nil {
		return 0, err
	}
	x := anchorM + y

	var basePos int
	if x2M == x1M {
		basePos = x2Pos
	} else {
		frac := (x - x1M) / (x2M - x1M)
		basePos = x1Pos + int(math.Round(frac*float64(x2Pos-x1Pos)))
	}
	if basePos < c.focusPos+1 {
		basePos = c.focusPos + 1
	}
	return basePos, nil
}
