package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() RunConfig {
	cfg := DefaultConfig()
	cfg.VCFPath = "in.vcf"
	cfg.MapPath = "in.map"
	cfg.SegmentPath = "in.seg"
	cfg.OutputPath = "out.bin"
	cfg.Chrom = "chr1"
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Validate(&cfg))
}

func TestValidateRejectsMissingPaths(t *testing.T) {
	cfg := validConfig()
	cfg.MapPath = ""
	assert.Error(t, Validate(&cfg))
}

func TestValidateRejectsOutputCollidingWithInput(t *testing.T) {
	cfg := validConfig()
	cfg.OutputPath = cfg.VCFPath
	assert.Error(t, Validate(&cfg))
}

func TestValidateRejectsOutOfRangeQuantile(t *testing.T) {
	cfg := validConfig()
	cfg.Quantiles = []float64{0, 0.5}
	assert.Error(t, Validate(&cfg))

	cfg.Quantiles = []float64{1.0}
	assert.Error(t, Validate(&cfg))
}

func TestValidateRejectsLocalHapsOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.LocalHaps = 0
	assert.Error(t, Validate(&cfg))

	cfg.LocalHaps = 9999999
	assert.Error(t, Validate(&cfg))
}

func TestValidateRejectsZeroThreads(t *testing.T) {
	cfg := validConfig()
	cfg.NThreads = 0
	assert.Error(t, Validate(&cfg))
}

func TestValidateRejectsBadMinMAF(t *testing.T) {
	cfg := validConfig()
	cfg.MinMAF = 0.6
	assert.Error(t, Validate(&cfg))
}

func TestSuggestFlagFindsNearTypo(t *testing.T) {
	got, ok := SuggestFlag("nthread")
	require.True(t, ok)
	assert.Equal(t, "nthreads", got)
}

func TestSuggestFlagRejectsFarMismatch(t *testing.T) {
	_, ok := SuggestFlag("completely-unrelated-option-name")
	assert.False(t, ok)
}
