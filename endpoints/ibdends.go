// Package endpoints implements the two-sided iterative refinement of
// §4.5: for one shared segment, alternate forward and backward quantile
// estimation, updating the focus and endpoints until they stabilise.
package endpoints

import (
	"math"

	"github.com/statgenlab/ibdends/quantile"
)

// Segment is the minimal shape endpoints.Refine needs from a SharedSegment:
// the haplotype pair and the segment's base-position bounds.
type Segment struct {
	Hap1, Hap2       int
	StartPos, EndPos int // inclusive bounds as detected upstream
}

// Config holds the per-run parameters of §6 that govern the refinement
// loop, independent of any one segment.
type Config struct {
	MaxIts   int     // per-side iteration cap; the loop runs up to 2*MaxIts total.
	FixFocus bool    // if set, the midpoint focus is never recomputed.
	MaxDiff  float64 // relative-change tolerance that declares an endpoint converged.
}

// Result is the output of Refine: the final focus position and the full
// forward/backward probability-vector evaluations at that focus (index 0 is
// the internal convergence probe; indices 1..Q+S are the caller-supplied
// quantiles and sampled draws — spec.md §4.5's "quantile probability vector
// convention").
type Result struct {
	FocusPos int
	FwdEnds  []int
	BwdEnds  []int
}

// ToMorgan converts a base-pair position to its Morgan genetic position,
// via the external base<->Morgan map (spec.md §6's "Genetic map"
// collaborator).
type ToMorgan func(basePos int) float64

// Refine runs the two-sided refinement loop for one segment. probs is the
// full Q+S+1 probability vector (lengthQuantile at index 0, user quantiles
// then sampled draws after); it is passed straight through to
// quantile.Estimator.Quantiles on every iteration.
func Refine(est *quantile.Estimator, seg Segment, toMorgan ToMorgan, probs []float64, cfg Config) (Result, error) {
	startPos, endPos := seg.StartPos, seg.EndPos
	focusPos := (startPos + endPos) / 2

	var fwdEnds, bwdEnds []int
	noChange := 0
	maxIters := 2 * cfg.MaxIts
	maxItersM2 := maxIters - 2

	for it := 0; it < maxIters; it++ {
		focusM := toMorgan(focusPos)

		if it%2 == 0 {
			anchorM := toMorgan(startPos)
			ends, err := est.Quantiles(seg.Hap1, seg.Hap2, anchorM, focusPos, focusM, probs, true)
			if err != nil {
				return Result{}, err
			}
			fwdEnds = ends

			newEnd := ends[0]
			if newEnd > seg.EndPos {
				newEnd = seg.EndPos
			}
			endM := toMorgan(endPos)
			newEndM := toMorgan(newEnd)
			if it >= maxItersM2 || converged(newEndM-focusM, endM-focusM, cfg.MaxDiff) {
				noChange++
			} else {
				noChange = 0
				endPos = newEnd
				if !cfg.FixFocus {
					focusPos = (startPos + endPos) / 2
				}
			}
		} else {
			anchorM := toMorgan(endPos)
			ends, err := est.Quantiles(seg.Hap1, seg.Hap2, anchorM, focusPos, focusM, probs, false)
			if err != nil {
				return Result{}, err
			}
			bwdEnds = ends

			newStart := ends[0]
			if newStart < seg.StartPos {
				newStart = seg.StartPos
			}
			startM := toMorgan(startPos)
			newStartM := toMorgan(newStart)
			if it >= maxItersM2 || converged(focusM-newStartM, focusM-startM, cfg.MaxDiff) {
				noChange++
			} else {
				noChange = 0
				startPos = newStart
				if !cfg.FixFocus {
					focusPos = (startPos + endPos) / 2
				}
			}
		}

		if noChange >= 2 {
			break
		}
	}

	clampAbove(fwdEnds, seg.EndPos)
	clampBelow(bwdEnds, seg.StartPos)

	return Result{FocusPos: focusPos, FwdEnds: fwdEnds, BwdEnds: bwdEnds}, nil
}

func converged(newDiff, oldDiff, maxDiff float64) bool {
	if oldDiff == 0 {
		// a zero-length before-side can't form a relative difference;
		// force an update rather than get stuck reporting convergence.
		return false
	}
	return math.Abs(newDiff-oldDiff)/math.Abs(oldDiff) < maxDiff
}

func clampAbove(xs []int, max int) {
	for i, x := range xs {
		if x > max {
			xs[i] = max
		}
	}
}

func clampBelow(xs []int, min int) {
	for i, x := range xs {
		if x < min {
			xs[i] = min
		}
	}
}
