package parse

import (
	"sync"
	"time"

	"github.com/0Reliance/maeple/internal/logging"
)

// ParseEvent is the structured record of one SafeParse outcome.
type ParseEvent struct {
	Context        string
	Success        bool
	Duration       time.Duration
	ResponseLength int
}

// Reporter is the externally injected observability collaborator. The parse
// core never talks to a global metrics sink directly so it stays testable in
// isolation.
type Reporter interface {
	// ParseOutcome receives exactly one event per SafeParse call.
	ParseOutcome(ev ParseEvent)

	// StateChange receives circuit-breaker and sync-queue transitions.
	StateChange(component, from, to string)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) ParseOutcome(ParseEvent) {}

func (NopReporter) StateChange(string, string, string) {}

// AlertLevel classifies threshold crossings raised by ThresholdReporter.
type AlertLevel string

const (
	AlertWarn     AlertLevel = "warn"     // failure rate >= warn threshold
	AlertCritical AlertLevel = "critical" // failure rate >= critical threshold
	AlertBreaker  AlertLevel = "breaker"  // consecutive failures for one context
)

// Alert describes a crossed threshold for a single parse context.
type Alert struct {
	Level               AlertLevel
	Context             string
	FailureRate         float64
	ConsecutiveFailures int
}

// Thresholds configures ThresholdReporter alerting. Values are hot-reloadable
// via SetThresholds.
type Thresholds struct {
	WindowSize          int     // rolling outcome window per context
	WarnFailureRate     float64 // warn when failure rate over window >= this
	CriticalFailureRate float64 // critical when failure rate >= this
	ConsecutiveFailures int     // breaker-level alert at this many in a row
}

// DefaultThresholds returns the documented alerting defaults: warn at 10%
// failure rate, critical at 25%, breaker-level alert at 5 consecutive
// failures for the same context.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WindowSize:          50,
		WarnFailureRate:     0.10,
		CriticalFailureRate: 0.25,
		ConsecutiveFailures: 5,
	}
}

// contextStats tracks the rolling window for one parse context.
type contextStats struct {
	outcomes    []bool // ring of recent outcomes, true = success
	next        int
	filled      bool
	consecutive int // consecutive failures
}

// ThresholdReporter is the default Reporter. It keeps a rolling window of
// outcomes per context, computes failure rates, and raises alerts through an
// optional callback (wired to the operator log at the CLI layer).
type ThresholdReporter struct {
	mu         sync.Mutex
	thresholds Thresholds
	contexts   map[string]*contextStats
	alertFn    func(Alert)
}

// NewThresholdReporter creates a reporter with the given thresholds.
// alertFn may be nil; alerts are then only written to the parser log.
func NewThresholdReporter(t Thresholds, alertFn func(Alert)) *ThresholdReporter {
	if t.WindowSize <= 0 {
		t.WindowSize = DefaultThresholds().WindowSize
	}
	return &ThresholdReporter{
		thresholds: t,
		contexts:   make(map[string]*contextStats),
		alertFn:    alertFn,
	}
}

// SetThresholds replaces the alerting thresholds. Safe to call while events
// are flowing. Rate and streak limits apply from the next event; a changed
// window size resets each context's window on its next event.
func (r *ThresholdReporter) SetThresholds(t Thresholds) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.WindowSize <= 0 {
		t.WindowSize = r.thresholds.WindowSize
	}
	r.thresholds = t
}

// ParseOutcome records one outcome and evaluates thresholds for its context.
func (r *ThresholdReporter) ParseOutcome(ev ParseEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.contexts[ev.Context]
	if !ok || len(stats.outcomes) != r.thresholds.WindowSize {
		stats = &contextStats{outcomes: make([]bool, r.thresholds.WindowSize)}
		r.contexts[ev.Context] = stats
	}

	stats.outcomes[stats.next] = ev.Success
	stats.next++
	if stats.next == len(stats.outcomes) {
		stats.next = 0
		stats.filled = true
	}

	if ev.Success {
		stats.consecutive = 0
		return
	}
	stats.consecutive++

	rate := failureRate(stats)
	alert := Alert{
		Context:             ev.Context,
		FailureRate:         rate,
		ConsecutiveFailures: stats.consecutive,
	}

	switch {
	case stats.consecutive >= r.thresholds.ConsecutiveFailures:
		alert.Level = AlertBreaker
	case rate >= r.thresholds.CriticalFailureRate:
		alert.Level = AlertCritical
	case rate >= r.thresholds.WarnFailureRate:
		alert.Level = AlertWarn
	default:
		return
	}

	logging.Parser("alert level=%s context=%s rate=%.2f consecutive=%d",
		alert.Level, alert.Context, alert.FailureRate, alert.ConsecutiveFailures)
	if r.alertFn != nil {
		r.alertFn(alert)
	}
}

// StateChange logs component transitions (breaker, sync queue).
func (r *ThresholdReporter) StateChange(component, from, to string) {
	logging.Parser("state change component=%s %s -> %s", component, from, to)
}

// FailureRate returns the current failure rate over the rolling window for a
// context, or 0 if the context is unknown.
func (r *ThresholdReporter) FailureRate(context string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.contexts[context]
	if !ok {
		return 0
	}
	return failureRate(stats)
}

func failureRate(stats *contextStats) float64 {
	n := stats.next
	if stats.filled {
		n = len(stats.outcomes)
	}
	if n == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < n; i++ {
		if !stats.outcomes[i] {
			failures++
		}
	}
	return float64(failures) / float64(n)
}
