package pipeline

import "sync/atomic"

// RunStats accumulates the shutdown statistics of spec.md §6 ("Statistics
// at shutdown"). Every counter is additive and lock-free, grounded on the
// LongAdder-based accumulator the estimator this package is descended from
// uses for the same purpose: concurrent workers update their own counters
// without contending on a shared lock, and a summary read at shutdown is
// accurate once no further updates are in flight.
type RunStats struct {
	nMarkers      int64
	nSamples      int64
	ibdSegmentCnt int64
	discordCnt    int64
	totalCnt      int64
}

// AddMarkers records the number of markers the run's MarkerFrame covers.
func (s *RunStats) AddMarkers(n int) { atomic.AddInt64(&s.nMarkers, int64(n)) }

// NMarkers returns the marker count.
func (s *RunStats) NMarkers() int64 { return atomic.LoadInt64(&s.nMarkers) }

// AddSamples records the number of samples the run's haplotype source covers.
func (s *RunStats) AddSamples(n int) { atomic.AddInt64(&s.nSamples, int64(n)) }

// NSamples returns the sample count.
func (s *RunStats) NSamples() int64 { return atomic.LoadInt64(&s.nSamples) }

// IncrementIbdSegmentCnt records one more surviving, emitted segment.
func (s *RunStats) IncrementIbdSegmentCnt() { atomic.AddInt64(&s.ibdSegmentCnt, 1) }

// IbdSegmentCnt returns the emitted-segment count.
func (s *RunStats) IbdSegmentCnt() int64 { return atomic.LoadInt64(&s.ibdSegmentCnt) }

// UpdateDiscordRate folds one segment's examined/discordant marker counts
// into the aggregate error-rate estimate. Only called when estimate-err is
// configured.
func (s *RunStats) UpdateDiscordRate(discordant, total int) {
	atomic.AddInt64(&s.discordCnt, int64(discordant))
	atomic.AddInt64(&s.totalCnt, int64(total))
}

// DiscordRate returns Σdiscordant/Σexamined, or 0 if nothing was examined.
func (s *RunStats) DiscordRate() float64 {
	total := atomic.LoadInt64(&s.totalCnt)
	if total == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&s.discordCnt)) / float64(total)
}
