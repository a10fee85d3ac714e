package pipeline

import (
	"bytes"
	"compress/gzip"
	"io"
	"math/rand"
	"sort"
	"sync"

	"github.com/grailbio/hts/bgzf"
	"github.com/statgenlab/ibdends/endpoints"
	"github.com/statgenlab/ibdends/frame"
	"github.com/statgenlab/ibdends/quantile"
	"github.com/statgenlab/ibdends/segment"
)

// blockSize is the number of segment records the reader goroutine batches
// per channel send, amortizing channel overhead across many segments
// without letting any one worker's backlog grow unbounded.
const blockSize = 10000

// flushThreshold is the per-worker output-buffer size, in bytes, at which a
// worker's BGZF block is closed and flushed to the shared output sink.
const flushThreshold = 1 << 18

// discordMinMorgan is the minimum Morgan length a segment's converged
// [bwdEnds[0], fwdEnds[0]] span must span before it contributes to the
// aggregate error-rate estimate: shorter spans carry too little signal to
// be worth the per-marker scan.
const discordMinMorgan = 0.02

// Run is the per-segment configuration and shared, read-only models a
// pipeline worker needs: one Run is built once per chromosome and shared by
// every worker goroutine Process spawns.
type Run struct {
	Frame     *frame.MarkerFrame
	Estimator *quantile.Estimator
	ToMorgan  endpoints.ToMorgan
	Refine    endpoints.Config

	Quantiles      []float64 // user-requested quantiles, excluding the internal length-quantile probe.
	LengthQuantile float64
	NSamples       int
	Seed           int64

	EstimateErr bool
	Stats       *RunStats
}

// Process reads segment records from r restricted to chrom, refines each
// one's endpoints concurrently across nThreads workers, and writes the
// encoded, BGZF-compressed output stream to w. resolve maps sample names to
// haplotype indices.
func (run *Run) Process(r io.Reader, chrom string, resolve segment.SampleIndex, w io.Writer, nThreads int) error {
	blocks := make(chan []*segment.Segment, 2*nThreads)
	errCh := make(chan error, nThreads+1)

	go run.read(r, chrom, resolve, blocks, errCh)

	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < nThreads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run.work(blocks, w, &mu); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// read parses the segment stream into blockSize-sized blocks and pushes
// them onto blocks, closing it at end of stream or on the first parse
// error.
func (run *Run) read(r io.Reader, chrom string, resolve segment.SampleIndex, blocks chan<- []*segment.Segment, errCh chan<- error) {
	defer close(blocks)

	first, last := run.Frame.BasePos(0), run.Frame.BasePos(run.Frame.NMarkers()-1)
	parser := segment.NewParser(r, chrom, first, last, resolve)

	block := make([]*segment.Segment, 0, blockSize)
	for {
		seg, dropped, err := parser.Next()
		if err == io.EOF {
			if len(block) > 0 {
				blocks <- block
			}
			return
		}
		if err != nil {
			errCh <- err
			return
		}
		if dropped {
			continue
		}
		block = append(block, seg)
		if len(block) == blockSize {
			blocks <- block
			block = make([]*segment.Segment, 0, blockSize)
		}
	}
}

// work drains blocks, refining and encoding every segment into a per-worker
// BGZF writer, whose compressed output is flushed to w under mu once the
// compressed bytes accumulated in the worker's buffer reach flushThreshold.
func (run *Run) work(blocks <-chan []*segment.Segment, w io.Writer, mu *sync.Mutex) error {
	var buf bytes.Buffer
	bw, err := bgzf.NewWriter(&buf, gzip.DefaultCompression)
	if err != nil {
		return err
	}
	enc := segment.NewEncoder(bw)

	wrote := false
	flush := func() error {
		if !wrote {
			return nil
		}
		wrote = false
		if err := bw.CloseWithoutTerminator(); err != nil {
			return err
		}
		mu.Lock()
		_, werr := w.Write(buf.Bytes())
		mu.Unlock()
		buf.Reset()
		if werr != nil {
			return werr
		}
		bw, err = bgzf.NewWriter(&buf, gzip.DefaultCompression)
		if err != nil {
			return err
		}
		enc = segment.NewEncoder(bw)
		return nil
	}

	for block := range blocks {
		for _, seg := range block {
			if err := run.process(seg, enc); err != nil {
				return err
			}
			wrote = true
			if buf.Len() >= flushThreshold {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

// process refines one segment's endpoints and encodes the resulting output
// record.
func (run *Run) process(seg *segment.Segment, enc *segment.Encoder) error {
	rng := rand.New(rand.NewSource(run.Seed ^ int64(segment.Hash(seg))))

	probs := make([]float64, 1+len(run.Quantiles)+run.NSamples)
	probs[0] = run.LengthQuantile
	copy(probs[1:], run.Quantiles)
	for i := 0; i < run.NSamples; i++ {
		probs[1+len(run.Quantiles)+i] = rng.Float64()
	}

	endSeg := endpoints.Segment{Hap1: seg.Hap1, Hap2: seg.Hap2, StartPos: seg.StartBp, EndPos: seg.InclEndBp}
	result, err := endpoints.Refine(run.Estimator, endSeg, run.ToMorgan, probs, run.Refine)
	if err != nil {
		return err
	}

	if run.EstimateErr && len(result.FwdEnds) > 0 && len(result.BwdEnds) > 0 {
		run.updateDiscord(seg, result.BwdEnds[0], result.FwdEnds[0])
	}

	triples := make([]segment.Triple, len(probs)-1)
	for i := 1; i < len(probs); i++ {
		startBp, endBp := result.BwdEnds[i], result.FwdEnds[i]
		triples[i-1] = segment.Triple{
			StartBp: startBp,
			EndBp:   endBp,
			CM:      100 * (run.ToMorgan(endBp) - run.ToMorgan(startBp)),
		}
	}
	if err := enc.Encode(seg, result.FocusPos, triples); err != nil {
		return err
	}
	run.Stats.IncrementIbdSegmentCnt()
	return nil
}

// updateDiscord folds the observed/discordant marker counts over
// [startBp, endBp] into run.Stats, if that span's Morgan length clears
// discordMinMorgan.
func (run *Run) updateDiscord(seg *segment.Segment, startBp, endBp int) {
	if run.ToMorgan(endBp)-run.ToMorgan(startBp) < discordMinMorgan {
		return
	}
	f := run.Frame
	m := f.NMarkers()
	s := sort.Search(m, func(i int) bool { return f.BasePos(i) >= startBp })
	e := sort.Search(m, func(i int) bool { return f.BasePos(i) > endBp })
	if s >= e {
		return
	}
	discord := 0
	for i := s; i < e; i++ {
		if f.Allele(i, seg.Hap1) != f.Allele(i, seg.Hap2) {
			discord++
		}
	}
	run.Stats.UpdateDiscordRate(discord, e-s)
}
