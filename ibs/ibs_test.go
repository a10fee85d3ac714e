package ibs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/statgenlab/ibdends/frame"
)

// buildFrame makes an M-marker, H-haplotype frame where hap 0 and hap 1
// diverge at marker divergeAt (and stay divergent afterward); the rest of
// the haplotypes are filler so local sampling has a big enough pool.
func buildFrame(t *testing.T, m, h, divergeAt int) *frame.MarkerFrame {
	markers := make([]frame.Marker, m)
	morgan := make([]float64, m)
	alleles := make([]uint8, m*h)
	for i := 0; i < m; i++ {
		markers[i] = frame.Marker{BasePos: 100 + 100*i, NAlleles: 2}
		morgan[i] = float64(i) * 0.01
	}
	for i := 0; i < m; i++ {
		for hp := 0; hp < h; hp++ {
			v := uint8(0)
			if hp == 1 && i >= divergeAt {
				v = 1
			}
			if hp >= 2 {
				// give filler haplotypes varied alleles so classes split up.
				v = uint8((hp + i) % 2)
			}
			alleles[i*h+hp] = v
		}
	}
	mf, err := frame.New("chr1", markers, morgan, h, alleles)
	assert.NoError(t, err)
	return mf
}

func TestCountsMonotonic(t *testing.T) {
	mf := buildFrame(t, 20, 8, 12)
	c, err := NewCounts(mf, 8, 0.9999, 1)
	assert.NoError(t, err)
	for s := 0; s < c.M(); s++ {
		prev := int32(c.N() * (c.N() - 1))
		for k := 0; k < c.Len(s); k++ {
			v := c.At(s, k)
			assert.True(t, v <= prev)
			prev = v
		}
	}
}

func TestCountsReverseDuality(t *testing.T) {
	mf := buildFrame(t, 15, 8, 9)
	fwd, err := NewCounts(mf, 8, 0.9999, 1)
	assert.NoError(t, err)
	rev := NewReverseCounts(fwd)
	m := fwd.M()
	for s := 0; s < m; s++ {
		end := fwd.End(s)
		for e := s; e < end; e++ {
			k := e - s
			got := rev.At(m-1-e, k)
			assert.Equal(t, fwd.At(s, k), got)
		}
	}
}

func TestLengthProbsCompleteness(t *testing.T) {
	mf := buildFrame(t, 25, 10, 14)
	counts, err := NewCounts(mf, 10, 0.999, 1)
	assert.NoError(t, err)
	global := NewGlobal(mf, 20, 20, 0.5, 3.0, 1)
	lp, err := NewLengthProbs(counts, global, mf)
	assert.NoError(t, err)

	n := counts.N()
	grid := 1.0 / (float64(n)*float64(n-1) + 1)
	for s := 0; s < counts.M(); s++ {
		sum := 0.0
		for _, p := range lp.Row(s) {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, grid*float64(len(lp.Row(s)))+1e-9)
	}
}

func TestGlobalCDFMonotonicAndClamped(t *testing.T) {
	mf := buildFrame(t, 40, 12, 20)
	g := NewGlobal(mf, 30, 30, 0.5, 5.0, 7)
	assert.True(t, g.NLengths() > 0)
	prev := 0.0
	for x := -0.1; x < 1.0; x += 0.01 {
		c := g.CDF(x)
		assert.True(t, c > 0 && c < 1)
		assert.True(t, c >= prev)
		prev = c
	}
}
