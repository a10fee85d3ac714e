// Package coalescent centralises the coalescent length prior used to turn
// IBS run-length evidence into an endpoint probability. It is pure and
// branch-free except for the domain checks spec.md §7 requires.
package coalescent

import (
	"math"

	"github.com/statgenlab/ibdends/errs"
)

// F returns the prior probability that an IBD segment containing a focal
// point has its end no more than y Morgans past that point, under a
// constant effective population size ne. F increases with y.
//
//	F(y; ne) = 1 - 1/(2*ne*expm1(2y) + 1)
func F(y, ne float64) (float64, error) {
	if !(y > 0) || math.IsNaN(y) {
		return 0, errs.NumericEdgef("F: y must be > 0, got %v", y)
	}
	if !(ne > 0) || math.IsInf(ne, 0) || math.IsNaN(ne) {
		return 0, errs.NumericEdgef("F: ne must be finite and > 0, got %v", ne)
	}
	return 1 - 1/(2*ne*math.Expm1(2*y)+1), nil
}

// InvF inverts F: given a probability p in (0,1) it returns the y such that
// F(y; ne) == p.
//
//	invF(p; ne) = 0.5 * log((p+d)/d),  d = 2*ne*(1-p)
func InvF(p, ne float64) (float64, error) {
	if !(p > 0) || !(p < 1) || math.IsNaN(p) {
		return 0, errs.NumericEdgef("invF: p must be in (0,1), got %v", p)
	}
	if !(ne > 0) || math.IsInf(ne, 0) || math.IsNaN(ne) {
		return 0, errs.NumericEdgef("invF: ne must be finite and > 0, got %v", ne)
	}
	d := 2 * ne * (1 - p)
	return 0.5 * math.Log((p+d)/d), nil
}
