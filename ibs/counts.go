// Package ibs computes the identity-by-state models the endpoint estimator
// is built on: per-start-marker local IBS pair counts (Counts), a
// Monte-Carlo-sampled pooled tail distribution of one-sided IBS run lengths
// (Global), and the per-(start,end) discordance probabilities that combine
// the two (LengthProbs).
package ibs

import (
	"math"
	"math/rand"

	"github.com/grailbio/base/traverse"
	"github.com/statgenlab/ibdends/errs"
	"github.com/statgenlab/ibdends/frame"
)

// MaxLocalHaps is the cap on haplotypes sampled for Counts. Pair counts are
// stored as int32 and NewCounts rejects N*(N-1) above math.MaxInt32; with
// N = 40000, N*(N-1) still fits a 31-bit signed integer.
const MaxLocalHaps = 40000

// Counts is the per-start-marker table of §4.1: for each start marker s,
// counts[s][k] is the number of ordered pairs among N sampled haplotypes
// that agree on every marker in [s, s+k]. Rows vary in length, so the table
// is stored as one flat buffer plus an offset vector rather than a jagged
// slice-of-slices, to keep the parallel constructor's writes cache-friendly.
type Counts struct {
	m       int
	n       int
	buf     []int32
	offsets []int
	sampled []int
}

// NewCounts builds the forward Counts table for f, sampling up to
// localHaps haplotypes (capped at MaxLocalHaps) with the given seed, and
// truncating each row once the surviving-pair fraction drops below
// 1-maxLocalCDF.
func NewCounts(f frame.Frame, localHaps int, maxLocalCDF float64, seed int64) (*Counts, error) {
	h := f.NHaps()
	n := localHaps
	if n > MaxLocalHaps {
		n = MaxLocalHaps
	}
	if n > h {
		n = h
	}
	if n < 2 {
		return nil, errs.DataConsistencyf("ibs: need at least 2 haplotypes, have %d sampled", n)
	}
	pairs := int64(n) * int64(n-1)
	if pairs > math.MaxInt32 {
		return nil, errs.DataConsistencyf("ibs: N*(N-1)=%d overflows a 31-bit pair count (N=%d)", pairs, n)
	}
	minPairs := int64(math.Ceil((1 - maxLocalCDF) * float64(pairs)))

	sampled := sampleHaps(h, n, seed)
	m := f.NMarkers()

	rows := make([][]int32, m)
	err := traverse.Each(m, func(s int) error {
		rows[s] = countsRow(f, sampled, s, m, int32(pairs), minPairs)
		return nil
	})
	if err != nil {
		return nil, err
	}

	offsets := make([]int, m+1)
	total := 0
	for s := 0; s < m; s++ {
		offsets[s] = total
		total += len(rows[s])
	}
	offsets[m] = total
	buf := make([]int32, total)
	for s := 0; s < m; s++ {
		copy(buf[offsets[s]:offsets[s+1]], rows[s])
	}

	return &Counts{m: m, n: n, buf: buf, offsets: offsets, sampled: sampled}, nil
}

// sampleHaps draws n distinct haplotype indices out of [0,h) using a
// Fisher-Yates partial shuffle seeded deterministically.
func sampleHaps(h, n int, seed int64) []int {
	rng := rand.New(rand.NewSource(seed))
	idx := make([]int, h)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < n; i++ {
		j := i + rng.Intn(h-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	out := make([]int, n)
	copy(out, idx[:n])
	return out
}

// countsRow computes one start-marker's row via the sequence-coded
// partition refinement of §4.1/§9: an int32 hap->class array refined marker
// by marker, re-bucketed through a small remap table rather than allocating
// per-haplotype class lists.
func countsRow(f frame.Frame, sampled []int, s, m int, totalPairs int32, minPairs int64) []int32 {
	n := len(sampled)
	classes := make([]int32, n)
	row := make([]int32, 0, 8)
	remap := make(map[int64]int32, n)
	sizes := make([]int32, 0, n)

	for mk := s; mk < m; mk++ {
		monomorphic := true
		first := f.Allele(mk, sampled[0])
		for h := 1; h < n; h++ {
			if f.Allele(mk, sampled[h]) != first {
				monomorphic = false
				break
			}
		}
		if monomorphic {
			if len(row) == 0 {
				row = append(row, totalPairs)
			} else {
				row = append(row, row[len(row)-1])
			}
			continue
		}

		nAlleles := int64(f.NAlleles(mk))
		for k := range remap {
			delete(remap, k)
		}
		sizes = sizes[:0]
		for h := 0; h < n; h++ {
			key := int64(classes[h])*nAlleles + int64(f.Allele(mk, sampled[h]))
			id, ok := remap[key]
			if !ok {
				id = int32(len(sizes))
				remap[key] = id
				sizes = append(sizes, 0)
			}
			classes[h] = id
			sizes[id]++
		}
		var count int64
		for _, c := range sizes {
			count += int64(c) * int64(c-1)
		}
		if count < minPairs {
			break
		}
		row = append(row, int32(count))
	}
	return row
}

// M returns the number of markers this table was built over.
func (c *Counts) M() int { return c.m }

// N returns the number of sampled haplotypes (N in §4.1's N*(N-1)).
func (c *Counts) N() int { return c.n }

// End returns end(s) = s + L(s): the first marker index past this row's
// last entry.
func (c *Counts) End(s int) int { return s + (c.offsets[s+1] - c.offsets[s]) }

// Len returns L(s), the number of entries in row s.
func (c *Counts) Len(s int) int { return c.offsets[s+1] - c.offsets[s] }

// At returns counts[s][k].
func (c *Counts) At(s, k int) int32 { return c.buf[c.offsets[s]+k] }

// Buf and Offsets expose the flat storage for modelcache's on-disk
// encoding; callers must treat the returned slices as read-only.
func (c *Counts) Buf() []int32   { return c.buf }
func (c *Counts) Offsets() []int { return c.offsets }

// FromCache reconstructs a Counts table from the flat buffer and offset
// vector modelcache persisted, skipping recomputation entirely.
func FromCache(m, n int, buf []int32, offsets []int) *Counts {
	return &Counts{m: m, n: n, buf: buf, offsets: offsets}
}

// NewReverseCounts derives the reverse-orientation table from fwd by
// scanning the forward table, per §4.1: reverseCounts[M-1-e][M-1-s] =
// counts[s][e-s] for every s<=e<M with e in [s, end(s)).
func NewReverseCounts(fwd *Counts) *Counts {
	m := fwd.m
	rows := make([][]int32, m)
	_ = traverse.Each(m, func(r int) error {
		row := make([]int32, 0, 8)
		for k := 0; ; k++ {
			s := m - 1 - r - k
			if s < 0 {
				break
			}
			if k >= fwd.Len(s) {
				break
			}
			row = append(row, fwd.At(s, k))
		}
		rows[r] = row
		return nil
	})

	offsets := make([]int, m+1)
	total := 0
	for r := 0; r < m; r++ {
		offsets[r] = total
		total += len(rows[r])
	}
	offsets[m] = total
	buf := make([]int32, total)
	for r := 0; r < m; r++ {
		copy(buf[offsets[r]:offsets[r+1]], rows[r])
	}
	return &Counts{m: m, n: fwd.n, buf: buf, offsets: offsets}
}
