// Package hysteresis turns jittery raw metric samples into stable status
// transitions. A status only degrades after the threshold has been breached
// by enough samples over a sustained duration, and a WARNING only clears
// once a distinct, lower recovery threshold has held. This suppresses the
// alert flapping a naive point-in-time comparison would produce.
package hysteresis

import (
	"sync"
	"time"

	"github.com/MacRimi/proxmon/internal/config"
	"github.com/MacRimi/proxmon/internal/types"
)

// Sample is one raw metric observation. Samples are ephemeral: they live
// only in per-metric in-memory windows and are pruned once older than the
// evaluator's max window.
type Sample struct {
	Value     float64
	Timestamp time.Time
}

// Evaluator maintains sliding sample windows per metric key and evaluates
// them against duration-gated thresholds. It is an explicit state struct
// owned by one long-lived aggregator instance; safe for concurrent use.
type Evaluator struct {
	mu        sync.Mutex
	windows   map[string][]Sample
	maxWindow time.Duration
}

// New creates an evaluator whose windows retain samples for maxWindow.
func New(maxWindow time.Duration) *Evaluator {
	if maxWindow <= 0 {
		maxWindow = 600 * time.Second
	}
	return &Evaluator{
		windows:   make(map[string][]Sample),
		maxWindow: maxWindow,
	}
}

// RecordSample appends a sample to the metric's window and prunes entries
// that have fallen outside the retention window.
func (e *Evaluator) RecordSample(metricKey string, value float64, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	window := append(e.windows[metricKey], Sample{Value: value, Timestamp: now})
	e.windows[metricKey] = pruneWindow(window, now.Add(-e.maxWindow))
}

// Evaluate applies the hysteresis rules to the metric's current window:
//
//   - CRITICAL if at least MinSamples samples breached Crit within
//     CritDuration of now.
//   - WARNING if at least MinSamples samples breached Warn within
//     WarnDuration AND fewer than 2 recovery samples (value below Recover)
//     were seen within RecoverDuration.
//   - OK otherwise.
//
// Pure function of the accumulated window state; no side effects beyond
// window pruning.
func (e *Evaluator) Evaluate(metricKey string, p config.MetricThreshold, now time.Time) types.Status {
	minSamples := p.MinSamples
	if minSamples < 1 {
		minSamples = 3
	}

	e.mu.Lock()
	window := pruneWindow(e.windows[metricKey], now.Add(-e.maxWindow))
	e.windows[metricKey] = window
	samples := make([]Sample, len(window))
	copy(samples, window)
	e.mu.Unlock()

	critCount := 0
	warnCount := 0
	recoverCount := 0
	for _, s := range samples {
		age := now.Sub(s.Timestamp)
		if s.Value >= p.Crit && age <= p.CritDuration {
			critCount++
		}
		if s.Value >= p.Warn && age <= p.WarnDuration {
			warnCount++
		}
		if s.Value < p.Recover && age <= p.RecoverDuration {
			recoverCount++
		}
	}

	if critCount >= minSamples {
		return types.StatusCritical
	}
	if warnCount >= minSamples && recoverCount < 2 {
		return types.StatusWarning
	}
	return types.StatusOK
}

// Snapshot returns a copy of the metric's current window, oldest first.
func (e *Evaluator) Snapshot(metricKey string) []Sample {
	e.mu.Lock()
	defer e.mu.Unlock()

	window := e.windows[metricKey]
	out := make([]Sample, len(window))
	copy(out, window)
	return out
}

// Prune drops samples outside the retention window for every metric and
// deletes empty windows. RecordSample prunes incrementally; this exists for
// callers that stop sampling a metric entirely.
func (e *Evaluator) Prune(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := now.Add(-e.maxWindow)
	for key, window := range e.windows {
		pruned := pruneWindow(window, cutoff)
		if len(pruned) == 0 {
			delete(e.windows, key)
			continue
		}
		e.windows[key] = pruned
	}
}

// pruneWindow drops samples at or before cutoff. Windows are append-ordered
// so a single scan from the front suffices.
func pruneWindow(window []Sample, cutoff time.Time) []Sample {
	keep := 0
	for keep < len(window) && !window[keep].Timestamp.After(cutoff) {
		keep++
	}
	if keep == 0 {
		return window
	}
	return append(window[:0:0], window[keep:]...)
}
