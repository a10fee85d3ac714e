// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

/*
ibdends estimates, for each candidate shared haplotype segment in an input
stream, a set of probability-weighted endpoint positions around its focus,
refining the call against a phased VCF and a genetic map.
*/

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/statgenlab/ibdends/config"
	"github.com/statgenlab/ibdends/endpoints"
	"github.com/statgenlab/ibdends/errs"
	"github.com/statgenlab/ibdends/frame"
	"github.com/statgenlab/ibdends/genmap"
	"github.com/statgenlab/ibdends/pipeline"
	"github.com/statgenlab/ibdends/vcfio"
)

var defaults = config.DefaultConfig()

var (
	vcfPath     = flag.String("vcf", "", "Input phased VCF path (plain or .gz)")
	mapPath     = flag.String("map", "", "Input PLINK-format genetic map path (plain or .gz)")
	segmentPath = flag.String("segments", "", "Input shared-segment stream path")
	outPath     = flag.String("out", "", "Output path for the encoded, BGZF-compressed result stream")
	chrom       = flag.String("chrom", "", "Chromosome to restrict every input to")
	cacheDir    = flag.String("model-cache-dir", "", "Directory to cache per-chromosome IBS models in; empty disables caching")

	quantiles      = flag.String("quantiles", joinFloats(defaults.Quantiles), "Comma-separated list of endpoint quantiles in (0,1)")
	nsamples       = flag.Int("nsamples", defaults.NSamples, "Number of additional Monte-Carlo endpoint draws per segment, beyond the requested quantiles")
	nthreads       = flag.Int("nthreads", runtime.NumCPU(), "Number of worker goroutines refining segments concurrently")
	errRate        = flag.Float64("err", defaults.Err, "Assumed genotyping error rate")
	estimateErr    = flag.Bool("estimate-err", defaults.EstimateErr, "Accumulate an observed discordance-rate estimate over converged segments")
	gcErr          = flag.Float64("gc-err", defaults.GcErr, "Assumed error rate within gc-bp of a true discordance (gene conversion)")
	gcBp           = flag.Int("gc-bp", defaults.GcBp, "Base-pair window after a discordance treated as possible gene conversion")
	minMAF         = flag.Float64("min-maf", defaults.MinMAF, "Markers below this minor allele frequency are dropped before the frame is built")
	seed           = flag.Int64("seed", defaults.Seed, "Base RNG seed; each segment reseeds as seed XOR hash(segment)")
	ne             = flag.Float64("ne", defaults.Ne, "Effective population size for the coalescent length model")
	localHaps      = flag.Int("local-haps", defaults.LocalHaps, "Number of haplotypes sampled for the local IBS-counts model")
	globalPos      = flag.Int("global-pos", defaults.GlobalPos, "Number of random foci sampled for the pooled tail model")
	globalSegments = flag.Int("global-segments", defaults.GlobalSegments, "Number of random haplotype pairs sampled per focus for the pooled tail model")
	globalQuantile = flag.Float64("global-quantile", defaults.GlobalQuantile, "Per-focus quantile used for the pooled tail model's outlier filter")
	globalFactor   = flag.Float64("global-factor", defaults.GlobalFactor, "Outlier-filter factor applied to the cross-focus median")
	maxLocalCDF    = flag.Float64("max-local-cdf", defaults.MaxLocalCDF, "Local IBS-counts rows are truncated once their surviving-pair fraction drops below 1 minus this")
	maxIts         = flag.Int("max-its", defaults.MaxIts, "Per-side iteration cap on the endpoint refinement loop")
	fixFocus       = flag.Bool("fix-focus", defaults.FixFocus, "Never recompute the midpoint focus during refinement")
	lengthQuantile = flag.Float64("length-quantile", defaults.LengthQuantile, "Internal convergence-probe quantile used to drive the refinement loop")
	maxDiff        = flag.Float64("max-diff", defaults.MaxDiff, "Relative-change tolerance that declares an endpoint converged")
)

func joinFloats(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func ibdendsUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Estimates probability-weighted endpoints for each segment in -segments.\n")
	flag.PrintDefaults()
}

// checkUnknownFlags runs before flag.Parse(), which otherwise reports an
// unrecognized flag with a generic message and exits before any of our own
// code can offer config.SuggestFlag's correction.
func checkUnknownFlags() error {
	known := make(map[string]bool, len(config.KnownFlags))
	for _, name := range config.KnownFlags {
		known[name] = true
	}
	known["model-cache-dir"] = true

	for _, arg := range os.Args[1:] {
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name := strings.TrimLeft(arg, "-")
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name = name[:eq]
		}
		if name == "h" || name == "help" || known[name] {
			continue
		}
		if suggestion, ok := config.SuggestFlag(name); ok {
			return errs.Configurationf("unknown flag -%s; did you mean -%s?", name, suggestion)
		}
		return errs.Configurationf("unknown flag -%s", name)
	}
	return nil
}

// errorLine formats the single diagnostic line spec.md §7 requires for any
// fatal error, regardless of origin.
func errorLine(err error) string {
	return fmt.Sprintf("ERROR: %v\n", err)
}

// die is the program's single recovery point.
func die(err error) {
	fmt.Fprint(os.Stderr, errorLine(err))
	os.Exit(1)
}

func run() error {
	flag.Usage = ibdendsUsage
	shutdown := grail.Init()
	defer shutdown()

	if err := checkUnknownFlags(); err != nil {
		ibdendsUsage()
		return err
	}
	flag.Parse()

	qs, err := parseFloats(*quantiles)
	if err != nil {
		return fmt.Errorf("bad -quantiles: %v", err)
	}

	cfg := config.RunConfig{
		VCFPath: *vcfPath, MapPath: *mapPath, SegmentPath: *segmentPath, OutputPath: *outPath, Chrom: *chrom,
		Quantiles: qs, NSamples: *nsamples, NThreads: *nthreads,
		Err: *errRate, EstimateErr: *estimateErr, GcErr: *gcErr, GcBp: *gcBp,
		MinMAF: *minMAF, Seed: *seed, Ne: *ne, LocalHaps: *localHaps,
		GlobalPos: *globalPos, GlobalSegments: *globalSegments, GlobalQuantile: *globalQuantile, GlobalFactor: *globalFactor,
		MaxLocalCDF: *maxLocalCDF, MaxIts: *maxIts, FixFocus: *fixFocus,
		LengthQuantile: *lengthQuantile, MaxDiff: *maxDiff,
	}
	if err := config.Validate(&cfg); err != nil {
		ibdendsUsage()
		return err
	}

	ctx := vcontext.Background()

	gm, err := genmap.Read(ctx, cfg.MapPath, cfg.Chrom)
	if err != nil {
		return err
	}
	hap, err := vcfio.Load(ctx, cfg.VCFPath, cfg.Chrom, cfg.MinMAF)
	if err != nil {
		return err
	}
	f, err := pipeline.BuildFrame(cfg.Chrom, hap, gm)
	if err != nil {
		return err
	}
	log.Info.Printf("ibdends: %s: %d markers, %d haplotypes, checksum %x", cfg.Chrom, f.NMarkers(), f.NHaps(), frame.Checksum(f))

	models, err := pipeline.BuildModels(ctx, f, cfg.Chrom, cfg, *cacheDir)
	if err != nil {
		return err
	}
	estimator, err := pipeline.BuildEstimator(f, models, cfg)
	if err != nil {
		return err
	}

	stats := &pipeline.RunStats{}
	stats.AddMarkers(f.NMarkers())
	stats.AddSamples(len(hap.SampleNames))

	ibdRun := &pipeline.Run{
		Frame:          f,
		Estimator:      estimator,
		ToMorgan:       endpoints.ToMorgan(gm.PosToMorgan),
		Refine:         endpoints.Config{MaxIts: cfg.MaxIts, FixFocus: cfg.FixFocus, MaxDiff: cfg.MaxDiff},
		Quantiles:      cfg.Quantiles,
		LengthQuantile: cfg.LengthQuantile,
		NSamples:       cfg.NSamples,
		Seed:           cfg.Seed,
		EstimateErr:    cfg.EstimateErr,
		Stats:          stats,
	}

	segIn, err := file.Open(ctx, cfg.SegmentPath)
	if err != nil {
		return err
	}
	defer segIn.Close(ctx) // nolint: errcheck

	out, err := file.Create(ctx, cfg.OutputPath)
	if err != nil {
		return err
	}

	resolve := pipeline.ResolveSample(hap)
	if err := ibdRun.Process(segIn.Reader(ctx), cfg.Chrom, resolve, out.Writer(ctx), cfg.NThreads); err != nil {
		out.Close(ctx) // nolint: errcheck
		return err
	}
	if err := out.Close(ctx); err != nil {
		return err
	}

	log.Info.Printf("ibdends: %d segments emitted", stats.IbdSegmentCnt())
	if cfg.EstimateErr {
		log.Info.Printf("ibdends: discordance rate %.6f", stats.DiscordRate())
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		die(err)
	}
}
