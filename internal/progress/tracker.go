// Package progress tracks how much of a destructible representation has been removed.
package progress

import (
	"math"
	"sync"
)

// DefaultThreshold is the fraction of the total that counts as depleted.
const DefaultThreshold = 0.9

// Tracker accumulates removal amounts against a total. It becomes depleted
// once accumulated/total reaches the threshold and stays depleted.
type Tracker struct {
	mu          sync.Mutex
	accumulated float64
	total       float64
	threshold   float64
	depleted    bool
}

// New creates a tracker. A threshold outside (0,1] falls back to DefaultThreshold.
func New(total, threshold float64) *Tracker {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Tracker{total: total, threshold: threshold}
}

// Record adds amount and reports whether this call made the tracker depleted.
// Amounts that are not positive and finite, and calls after depletion, are ignored.
func (t *Tracker) Record(amount float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.depleted || !(amount > 0) || math.IsInf(amount, 0) {
		return false
	}
	t.accumulated += amount

	if t.total <= 0 {
		return false
	}
	if t.accumulated/t.total >= t.threshold {
		t.depleted = true
		return true
	}
	return false
}

// SetTotal sets the total when it is only known after creation.
// It has no effect once the tracker is depleted.
func (t *Tracker) SetTotal(total float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.depleted {
		return false
	}
	t.total = total
	if t.total > 0 && t.accumulated/t.total >= t.threshold {
		t.depleted = true
		return true
	}
	return false
}

// Depleted reports whether the threshold has been reached.
func (t *Tracker) Depleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.depleted
}

// Accumulated returns the amount recorded so far.
func (t *Tracker) Accumulated() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accumulated
}

// Total returns the amount that represents the whole.
func (t *Tracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Threshold returns the depletion threshold.
func (t *Tracker) Threshold() float64 {
	return t.threshold
}

// Fraction returns accumulated/total, or 0 when the total is unset.
func (t *Tracker) Fraction() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total <= 0 {
		return 0
	}
	return t.accumulated / t.total
}
