package compose

import "sync"

const (
	DefaultProgressMin = 20
	DefaultProgressMax = 100
)

// Estimator is a perceptual progress value for a dispatch of unknown duration.
// It does not measure anything: it only moves forward on ticks and jumps to the maximum on completion.
type Estimator struct {
	min, max int

	mu    sync.Mutex
	value int
	done  bool
}

// NewEstimator returns an estimator bounded by [min, max]. Invalid bounds fall back to the defaults.
func NewEstimator(lo, hi int) *Estimator {
	if lo < 0 || hi <= lo {
		lo, hi = DefaultProgressMin, DefaultProgressMax
	}
	return &Estimator{min: lo, max: hi}
}

// Begin starts a new episode: the value resets to 0 and snaps to the minimum visible value.
func (e *Estimator) Begin() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = 0
	e.done = false
	if e.value < e.min {
		e.value = e.min
	}
}

// Tick moves the value forward by one, never reaching the maximum.
// Ticks after Complete are ignored.
func (e *Estimator) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	if e.value < e.max-1 {
		e.value++
	}
}

// Complete forces the value to the maximum, whatever the ticks did.
func (e *Estimator) Complete() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = e.max
	e.done = true
}

func (e *Estimator) Value() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

func (e *Estimator) Max() int { return e.max }
