package quantile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/statgenlab/ibdends/frame"
	"github.com/statgenlab/ibdends/ibs"
)

func uniformFrame(t *testing.T) *frame.MarkerFrame {
	markers := []frame.Marker{{100, 2}, {200, 2}, {300, 2}, {400, 2}, {500, 2}}
	morgan := []float64{0, 0.01, 0.02, 0.03, 0.04}
	alleles := make([]uint8, len(markers)*4) // 4 identical haplotypes
	mf, err := frame.New("chr1", markers, morgan, 4, alleles)
	assert.NoError(t, err)
	return mf
}

func buildData(t *testing.T, f frame.Frame) Data {
	counts, err := ibs.NewCounts(f, 4, 0.999, 1)
	assert.NoError(t, err)
	global := ibs.NewGlobal(f, 10, 10, 0.5, 3.0, 1)
	lp, err := ibs.NewLengthProbs(counts, global, f)
	assert.NoError(t, err)
	return Data{Frame: f, LengthProbs: lp}
}

func TestQuantileOrderingAndFocusBound(t *testing.T) {
	mf := uniformFrame(t)
	d := buildData(t, mf)
	rev, err := frame.Reverse(mf)
	assert.NoError(t, err)
	bd := buildData(t, rev)

	est := New(d, bd, 10000, 1e-3, 1e-3, 1000)

	probs := []float64{0.05, 0.25, 0.5, 0.75, 0.95}
	got, err := est.Quantiles(0, 1, -0.5, 300, 0.02, probs, true)
	assert.NoError(t, err)

	for i, p := range got {
		assert.True(t, p > 300, "quantile %v must exceed focus", probs[i])
		if i > 0 {
			assert.True(t, got[i] >= got[i-1])
		}
	}
}

func TestQuantileUniformScenarioFocus(t *testing.T) {
	// Scenario 1 of the end-to-end test set: a uniform chromosome with no
	// discordances. Forward quantile 0.5 from focus 300 must land strictly
	// within (300, 500].
	mf := uniformFrame(t)
	d := buildData(t, mf)
	rev, err := frame.Reverse(mf)
	assert.NoError(t, err)
	bd := buildData(t, rev)

	est := New(d, bd, 10000, 1e-3, 1e-3, 1000)
	got, err := est.Quantiles(0, 1, -0.02, 300, 0.02, []float64{0.5}, true)
	assert.NoError(t, err)
	assert.True(t, got[0] > 300 && got[0] <= 500)
}
