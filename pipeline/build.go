package pipeline

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/statgenlab/ibdends/config"
	"github.com/statgenlab/ibdends/frame"
	"github.com/statgenlab/ibdends/genmap"
	"github.com/statgenlab/ibdends/ibs"
	"github.com/statgenlab/ibdends/quantile"
	"github.com/statgenlab/ibdends/vcfio"
)

// BuildFrame attaches gm's Morgan positions to hap's markers and constructs
// the forward MarkerFrame, per spec.md §6's "Haplotype source" +
// "Genetic map" wiring.
func BuildFrame(chrom string, hap *vcfio.Haplotypes, gm *genmap.Map) (*frame.MarkerFrame, error) {
	morgan := make([]float64, len(hap.Markers))
	for i, mk := range hap.Markers {
		morgan[i] = gm.PosToMorgan(mk.BasePos)
	}
	return frame.New(chrom, hap.Markers, morgan, hap.NHaps, hap.Alleles)
}

// BuildModels constructs (or loads from cacheDir, if set) the forward Counts
// and Global models for f, fingerprinted by cfg's model-determining fields
// and f's content checksum, per §4.12's "repeated runs over the same
// chromosome skip the O(H²M) precompute" performance goal.
func BuildModels(ctx context.Context, f frame.Frame, chrom string, cfg config.RunConfig, cacheDir string) (*Models, error) {
	key := CacheKey{
		Chrom:          chrom,
		LocalHaps:      cfg.LocalHaps,
		Seed:           cfg.Seed,
		MaxLocalCDF:    cfg.MaxLocalCDF,
		GlobalPos:      cfg.GlobalPos,
		GlobalSegments: cfg.GlobalSegments,
		GlobalQuantile: cfg.GlobalQuantile,
		GlobalFactor:   cfg.GlobalFactor,
		FrameChecksum:  frame.Checksum(f),
	}

	var path string
	if cacheDir != "" {
		path = CachePath(cacheDir, chrom)
		if m, ok := LoadModels(ctx, path, key); ok {
			log.Info.Printf("pipeline: %s: loaded cached IBS models", chrom)
			return m, nil
		}
	}

	fwd, err := ibs.NewCounts(f, cfg.LocalHaps, cfg.MaxLocalCDF, cfg.Seed)
	if err != nil {
		return nil, err
	}
	global := ibs.NewGlobal(f, cfg.GlobalPos, cfg.GlobalSegments, cfg.GlobalQuantile, cfg.GlobalFactor, cfg.Seed)
	models := &Models{Fwd: fwd, Global: global}

	if cacheDir != "" {
		SaveModels(ctx, path, key, models)
	}
	return models, nil
}

// BuildEstimator derives the reverse Counts table and both directions'
// LengthProbs from models and f, and assembles the quantile.Estimator a
// worker queries per segment.
func BuildEstimator(f *frame.MarkerFrame, models *Models, cfg config.RunConfig) (*quantile.Estimator, error) {
	fr := f.Reverse()
	bwdCounts := ibs.NewReverseCounts(models.Fwd)

	fwdLP, err := ibs.NewLengthProbs(models.Fwd, models.Global, f)
	if err != nil {
		return nil, err
	}
	bwdLP, err := ibs.NewLengthProbs(bwdCounts, models.Global, fr)
	if err != nil {
		return nil, err
	}

	return quantile.New(
		quantile.Data{Frame: f, LengthProbs: fwdLP},
		quantile.Data{Frame: fr, LengthProbs: bwdLP},
		cfg.Ne, cfg.Err, cfg.GcErr, cfg.GcBp,
	), nil
}

// ResolveSample builds the SampleIndex segment.Parser needs from hap's
// sample name list, per spec.md §6's sample-name-to-haplotype-index
// resolution.
func ResolveSample(hap *vcfio.Haplotypes) func(name string) (int, bool) {
	byName := make(map[string]int, len(hap.SampleNames))
	for i, name := range hap.SampleNames {
		byName[name] = i
	}
	return func(name string) (int, bool) {
		idx, ok := byName[name]
		return idx, ok
	}
}
