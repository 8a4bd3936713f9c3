package common

import "sync"

// SlidingWindow keeps the last N samples and computes their average.
// The average is always recomputed from the retained samples, so it cannot
// drift when old samples fall out of the window.
type SlidingWindow struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

// NewSlidingWindow creates a window retaining up to capacity samples.
func NewSlidingWindow(capacity int) *SlidingWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &SlidingWindow{samples: make([]float64, capacity)}
}

// Add records a sample, evicting the oldest one once the window is full.
func (w *SlidingWindow) Add(sample float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.next] = sample
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

// Average returns the mean of the retained samples, 0 when empty.
func (w *SlidingWindow) Average() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	count := w.count()
	if count == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < count; i++ {
		sum += w.samples[i]
	}
	return sum / float64(count)
}

// Count returns the number of retained samples.
func (w *SlidingWindow) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count()
}

func (w *SlidingWindow) count() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}
