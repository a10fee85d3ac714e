// Package vcfio decodes a phased VCF into the raw pieces frame.New needs:
// per-marker positions and a flat haplotype allele matrix. It is the
// "Haplotype source" external collaborator of spec.md §6, built on
// github.com/brentp/vcfgo rather than the teacher's own BAM/pileup codecs,
// which have no variant-call concept.
package vcfio

import (
	"bufio"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/brentp/vcfgo"
	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
	"github.com/statgenlab/ibdends/errs"
	"github.com/statgenlab/ibdends/frame"
)

// Haplotypes is the decoded result of Load: one marker per retained,
// sufficiently-common site, and a row-major [marker][haplotype] allele
// matrix ready to pass to frame.New once Morgan positions are attached.
type Haplotypes struct {
	SampleNames []string
	NHaps       int
	Markers     []frame.Marker
	Alleles     []uint8 // row-major, len == len(Markers)*NHaps
}

// Load decodes the phased genotypes on chrom from a VCF at path (plain or
// gzip-compressed), dropping markers whose minor allele frequency among
// called haplotypes is below minMAF. An unphased or missing call is an
// errs.InputFormatError: phase inference and missing-genotype handling are
// both explicit non-goals of this estimator.
func Load(ctx context.Context, path, chrom string, minMAF float64) (*Haplotypes, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errs.IOf(err, "vcfio: opening %s", path)
	}
	defer f.Close(ctx) // nolint: errcheck

	var r io.Reader = f.Reader(ctx)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, errs.IOf(err, "vcfio: gzip %s", path)
		}
		defer gz.Close()
		r = gz
	}

	vr, err := vcfgo.NewReader(bufio.NewReaderSize(r, 1<<20), false)
	if err != nil {
		return nil, errs.InputFormatf("vcfio: %s: %v", path, err)
	}

	sampleNames := vr.Header.SampleNames
	nSamples := len(sampleNames)
	nHaps := nSamples * 2
	if nSamples == 0 {
		return nil, errs.DataConsistencyf("vcfio: %s: no samples", path)
	}

	h := &Haplotypes{SampleNames: sampleNames, NHaps: nHaps}

	for {
		variant := vr.Read()
		if variant == nil {
			if err := vr.Error(); err != nil && err != io.EOF {
				return nil, errs.InputFormatf("vcfio: %s: %v", path, err)
			}
			break
		}
		if variant.Chromosome != chrom {
			continue
		}

		nAlleles := 1 + len(variant.Alt())
		row := make([]uint8, nHaps)
		alleleCounts := make([]int, nAlleles)
		for i := 0; i < nSamples; i++ {
			if i >= len(variant.Samples) || variant.Samples[i] == nil {
				return nil, errs.InputFormatf("vcfio: %s: missing genotype at %s:%d for sample %s", path, chrom, variant.Pos, sampleNames[i])
			}
			sg := variant.Samples[i]
			if len(sg.GT) != 2 {
				return nil, errs.InputFormatf("vcfio: %s: non-diploid genotype at %s:%d for sample %s", path, chrom, variant.Pos, sampleNames[i])
			}
			if !sg.Phased {
				return nil, errs.InputFormatf("vcfio: %s: unphased genotype at %s:%d for sample %s", path, chrom, variant.Pos, sampleNames[i])
			}
			for k, a := range sg.GT {
				if a < 0 {
					return nil, errs.InputFormatf("vcfio: %s: missing allele at %s:%d for sample %s", path, chrom, variant.Pos, sampleNames[i])
				}
				row[i*2+k] = uint8(a)
				alleleCounts[a]++
			}
		}

		if maf(mac(alleleCounts), nHaps) < minMAF {
			continue
		}

		h.Markers = append(h.Markers, frame.Marker{BasePos: int(variant.Pos), NAlleles: nAlleles})
		h.Alleles = append(h.Alleles, row...)
	}

	if len(h.Markers) == 0 {
		return nil, errs.DataConsistencyf("vcfio: %s: no markers retained for chromosome %s", path, chrom)
	}
	h.NHaps = nHaps
	return h, nil
}

// maf returns the minor allele frequency given a minor allele count out of
// nHaps total haplotypes.
func maf(minorCount, nHaps int) float64 {
	af := float64(minorCount) / float64(nHaps)
	if af > 0.5 {
		return 1 - af
	}
	return af
}

// mac returns the minor allele count at a site with an arbitrary number of
// alleles: the second-largest per-allele count, not the pooled count of
// every non-reference call. For a biallelic site the two coincide; for a
// multiallelic site they can diverge sharply (e.g. a 90/5/5 split has a MAC
// of 5, not a pooled alt count of 10).
func mac(alleleCounts []int) int {
	if len(alleleCounts) <= 1 {
		return 0
	}
	sorted := append([]int(nil), alleleCounts...)
	sort.Ints(sorted)
	return sorted[len(sorted)-2]
}
