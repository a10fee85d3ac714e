// Package config parses and validates the command-line configuration of
// spec.md §6's options table, in the teacher's flag-based CLI idiom (see
// cmd/bio-pileup/main.go): a DefaultConfig of sentinel values that the
// command package's flag.* declarations reference, and a single Validate
// pass run once all flags are parsed.
package config

import (
	"math"
	"path/filepath"

	"github.com/antzucaro/matchr"
	"github.com/statgenlab/ibdends/errs"
	"github.com/statgenlab/ibdends/ibs"
)

// RunConfig is the validated, immutable configuration for one run: one
// field per row of spec.md §6's table, plus the I/O paths the core's
// external collaborators need.
type RunConfig struct {
	// I/O paths.
	VCFPath     string
	MapPath     string
	SegmentPath string
	OutputPath  string
	Chrom       string

	// spec.md §6 options.
	Quantiles      []float64
	NSamples       int
	NThreads       int
	Err            float64
	EstimateErr    bool
	GcErr          float64
	GcBp           int
	MinMAF         float64
	Seed           int64
	Ne             float64
	LocalHaps      int
	GlobalPos      int
	GlobalSegments int
	GlobalQuantile float64
	GlobalFactor   float64
	MaxLocalCDF    float64
	MaxIts         int
	FixFocus       bool
	LengthQuantile float64
	MaxDiff        float64
}

// minProp and maxProp bound every value the original source treats as a
// probability: exclusive of 0 and 1, since either endpoint makes the
// coalescent math or the discordance formulas divide by zero.
const (
	minProp = math.SmallestNonzeroFloat64
	maxProp = 1 - 1e-7
)

// DefaultConfig returns the defaults preserved from the program this
// estimator is descended from.
func DefaultConfig() RunConfig {
	return RunConfig{
		Quantiles:      []float64{0.5},
		NSamples:       0,
		NThreads:       1,
		Err:            0.0005,
		EstimateErr:    true,
		GcErr:          0.1,
		GcBp:           1000,
		MinMAF:         0.001,
		Seed:           -99999,
		Ne:             10000,
		LocalHaps:      10000,
		GlobalPos:      1000,
		GlobalSegments: 2000,
		GlobalQuantile: 0.9,
		GlobalFactor:   3.0,
		MaxLocalCDF:    0.999,
		MaxIts:         10,
		FixFocus:       false,
		LengthQuantile: 0.05,
		MaxDiff:        0.1,
	}
}

// Validate checks every option against its declared range and checks that
// the output path does not collide with any input path, per spec.md §7's
// ConfigurationError.
func Validate(cfg *RunConfig) error {
	if cfg.VCFPath == "" || cfg.MapPath == "" || cfg.SegmentPath == "" || cfg.OutputPath == "" {
		return errs.Configurationf("config: vcf, map, segments, and out paths are all required")
	}
	if cfg.Chrom == "" {
		return errs.Configurationf("config: chrom is required")
	}
	for _, in := range []string{cfg.VCFPath, cfg.MapPath, cfg.SegmentPath} {
		if samePath(in, cfg.OutputPath) {
			return errs.Configurationf("config: output path %q collides with an input path", cfg.OutputPath)
		}
	}

	if len(cfg.Quantiles) == 0 {
		return errs.Configurationf("config: quantiles must be non-empty")
	}
	for _, q := range cfg.Quantiles {
		if !inOpenRange(q, 0, 1) {
			return errs.Configurationf("config: quantiles must lie in (0,1), got %v", q)
		}
	}
	if cfg.NSamples < 0 {
		return errs.Configurationf("config: nsamples must be >= 0, got %d", cfg.NSamples)
	}
	if cfg.NThreads < 1 {
		return errs.Configurationf("config: nthreads must be >= 1, got %d", cfg.NThreads)
	}
	if !inRange(cfg.Err, minProp, maxProp) {
		return errs.Configurationf("config: err must lie in (0,1), got %v", cfg.Err)
	}
	if !inRange(cfg.GcErr, minProp, maxProp) {
		return errs.Configurationf("config: gc-err must lie in (0,1), got %v", cfg.GcErr)
	}
	if cfg.GcBp < 0 {
		return errs.Configurationf("config: gc-bp must be >= 0, got %d", cfg.GcBp)
	}
	if !inRange(cfg.MinMAF, 0, 0.5) {
		return errs.Configurationf("config: min-maf must lie in [0,0.5], got %v", cfg.MinMAF)
	}
	if cfg.Ne < 1 {
		return errs.Configurationf("config: ne must be >= 1, got %v", cfg.Ne)
	}
	if cfg.LocalHaps < 1 || cfg.LocalHaps > ibs.MaxLocalHaps {
		return errs.Configurationf("config: local-haps must lie in [1,%d], got %d", ibs.MaxLocalHaps, cfg.LocalHaps)
	}
	if cfg.GlobalPos < 1 {
		return errs.Configurationf("config: global-pos must be >= 1, got %d", cfg.GlobalPos)
	}
	if cfg.GlobalSegments < 1 {
		return errs.Configurationf("config: global-segments must be >= 1, got %d", cfg.GlobalSegments)
	}
	if !inRange(cfg.GlobalQuantile, minProp, maxProp) {
		return errs.Configurationf("config: global-quantile must lie in (0,1), got %v", cfg.GlobalQuantile)
	}
	if cfg.GlobalFactor <= 0 {
		return errs.Configurationf("config: global-factor must be > 0, got %v", cfg.GlobalFactor)
	}
	if !inRange(cfg.MaxLocalCDF, minProp, maxProp) {
		return errs.Configurationf("config: max-local-cdf must lie in (0,1), got %v", cfg.MaxLocalCDF)
	}
	if cfg.MaxIts < 1 {
		return errs.Configurationf("config: max-its must be >= 1, got %d", cfg.MaxIts)
	}
	if !inRange(cfg.LengthQuantile, minProp, maxProp) {
		return errs.Configurationf("config: length-quantile must lie in (0,1), got %v", cfg.LengthQuantile)
	}
	if cfg.MaxDiff <= 0 {
		return errs.Configurationf("config: max-diff must be > 0, got %v", cfg.MaxDiff)
	}
	return nil
}

func inRange(v, lo, hi float64) bool { return v >= lo && v <= hi }
func inOpenRange(v, lo, hi float64) bool { return v > lo && v < hi }

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}

// KnownFlags lists every flag name this command recognizes, used by
// SuggestFlag to offer a correction for a typo'd flag.
var KnownFlags = []string{
	"vcf", "map", "segments", "out", "chrom",
	"quantiles", "nsamples", "nthreads", "err", "estimate-err",
	"gc-err", "gc-bp", "min-maf", "seed", "ne", "local-haps",
	"global-pos", "global-segments", "global-quantile", "global-factor",
	"max-local-cdf", "max-its", "fix-focus", "length-quantile", "max-diff",
}

// SuggestFlag returns the known flag name nearest unknown by Levenshtein
// distance, and whether that distance is small enough to be worth
// suggesting (<=3 edits).
func SuggestFlag(unknown string) (string, bool) {
	best := ""
	bestDist := -1
	for _, known := range KnownFlags {
		d := matchr.Levenshtein(unknown, known)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = known
		}
	}
	if bestDist < 0 || bestDist > 3 {
		return "", false
	}
	return best, true
}
