package telemetry

import (
	"sync"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
)

// DefaultWindowSize is the number of samples the predictor needs before it
// trusts a window.
const DefaultWindowSize = 30

// Window is a fixed-capacity ring buffer of interface samples. The oldest
// sample is overwritten on overflow.
type Window struct {
	samples []apis.Sample
	index   int
	size    int
	full    bool
	mu      sync.RWMutex
}

func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{
		samples: make([]apis.Sample, size),
		size:    size,
	}
}

// Add appends a sample, overwriting the oldest one when full.
func (w *Window) Add(sample apis.Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.index] = sample
	w.index = (w.index + 1) % w.size
	if !w.full && w.index == 0 {
		w.full = true
	}
}

// Samples returns a copy of the window in insertion order, oldest first.
func (w *Window) Samples() []apis.Sample {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.full {
		out := make([]apis.Sample, w.index)
		copy(out, w.samples[:w.index])
		return out
	}
	out := make([]apis.Sample, 0, w.size)
	out = append(out, w.samples[w.index:]...)
	out = append(out, w.samples[:w.index]...)
	return out
}

func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.full {
		return w.size
	}
	return w.index
}

// Latest returns the most recently added sample.
func (w *Window) Latest() (apis.Sample, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.full && w.index == 0 {
		return apis.Sample{}, false
	}
	i := (w.index - 1 + w.size) % w.size
	return w.samples[i], true
}
