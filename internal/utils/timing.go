package utils

import (
	"sort"
	"sync"
	"time"
)

// TimingWindow keeps the most recent duration samples in a fixed-size ring
// and answers percentile queries over them. The correlator records one
// sample per pass, so the window always reflects recent pass latency without
// growing with daemon uptime.
type TimingWindow struct {
	mu      sync.RWMutex
	samples []time.Duration
	next    int
	filled  bool
}

// NewTimingWindow creates a window holding up to size samples.
func NewTimingWindow(size int) *TimingWindow {
	if size <= 0 {
		size = 256
	}
	return &TimingWindow{samples: make([]time.Duration, size)}
}

// Record adds a sample, displacing the oldest once the ring is full.
func (w *TimingWindow) Record(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.next] = d
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.filled = true
	}
}

// Len reports how many samples the window currently holds.
func (w *TimingWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lenLocked()
}

// Percentile returns the p-th percentile (0-100) over the held samples, or
// zero when nothing has been recorded yet.
func (w *TimingWindow) Percentile(p float64) time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()

	n := w.lenLocked()
	if n == 0 {
		return 0
	}

	sorted := append([]time.Duration(nil), w.samples[:n]...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return sorted[int(p/100*float64(n-1))]
}

func (w *TimingWindow) lenLocked() int {
	if w.filled {
		return len(w.samples)
	}
	return w.next
}
