// Package reveal contains the client-resident pieces that gate the dream
// reveal transition: a dual-condition stage orchestrator and a poller that
// waits for a reflection's enrichment to become visible.
package reveal

import (
	"log/slog"
	"sync"
	"time"

	"reverie/pkg/domain"
)

// Stage is the orchestrator's state.
type Stage string

const (
	// StageAwaitingBoth: neither the presentation timer nor the backend
	// signal has completed.
	StageAwaitingBoth Stage = "awaiting_both"
	// StageAwaitingSignal: timer complete, enrichment not yet observed.
	StageAwaitingSignal Stage = "awaiting_signal"
	// StageAwaitingTimer: enrichment observed, timer not yet complete.
	StageAwaitingTimer Stage = "awaiting_timer"
	// StageFired: both conditions satisfied; terminal.
	StageFired Stage = "fired"
)

// StageListener observes every state change.
type StageListener func(stage Stage)

// FireListener observes only the terminal transition, with the resolved
// primary category.
type FireListener func(primary domain.EmotionCategory)

// Orchestrator fires a reveal transition exactly once, after both a minimum
// presentation duration has elapsed and the backend's emotion classification
// has become visible. One instance serves one in-flight reveal sequence; it
// is not reusable after firing.
type Orchestrator struct {
	mu            sync.Mutex
	stage         Stage
	primary       domain.EmotionCategory
	timerComplete bool
	fired         bool
	resolvedAt    time.Time
	listeners     []StageListener
	fireListeners []FireListener
	logger        *slog.Logger
}

// NewOrchestrator constructs an orchestrator in StageAwaitingBoth.
func NewOrchestrator(logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		stage:  StageAwaitingBoth,
		logger: logger,
	}
}

// Subscribe registers a listener for every state change.
func (o *Orchestrator) Subscribe(fn StageListener) {
	if fn == nil {
		return
	}
	o.mu.Lock()
	o.listeners = append(o.listeners, fn)
	o.mu.Unlock()
}

// OnFire registers a listener for the terminal event only. A listener added
// after firing is invoked immediately with the resolved category.
func (o *Orchestrator) OnFire(fn FireListener) {
	if fn == nil {
		return
	}
	o.mu.Lock()
	if o.fired {
		primary := o.primary
		o.mu.Unlock()
		fn(primary)
		return
	}
	o.fireListeners = append(o.fireListeners, fn)
	o.mu.Unlock()
}

// Stage returns the current state.
func (o *Orchestrator) Stage() Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stage
}

// Primary returns the resolved category, empty until SetPrimary succeeds.
func (o *Orchestrator) Primary() domain.EmotionCategory {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.primary
}

// ResolvedAt returns when the backend signal was observed (zero until then).
func (o *Orchestrator) ResolvedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resolvedAt
}

// MarkTimerComplete records that the minimum presentation duration elapsed.
// Safe to call repeatedly; once fired it is a no-op.
func (o *Orchestrator) MarkTimerComplete() {
	o.mu.Lock()
	if o.fired || o.timerComplete {
		o.mu.Unlock()
		return
	}
	o.timerComplete = true
	o.advanceLocked()
}

// SetPrimary records the backend's primary classification. Unknown values
// are rejected and logged without changing state; once fired, or once a
// valid primary is held, later calls are no-ops.
func (o *Orchestrator) SetPrimary(v domain.EmotionCategory) {
	if !domain.ValidEmotion(v) {
		o.logger.Warn("rejected invalid primary category", "value", string(v))
		return
	}
	o.mu.Lock()
	if o.fired || o.primary != "" {
		o.mu.Unlock()
		return
	}
	o.primary = v
	o.resolvedAt = time.Now().UTC()
	o.advanceLocked()
}

// advanceLocked recomputes the stage and fires when both gates are open.
// Called with o.mu held; unlocks before invoking listeners so callbacks may
// read orchestrator state without deadlocking.
func (o *Orchestrator) advanceLocked() {
	switch {
	case o.timerComplete && o.primary != "":
		o.stage = StageFired
		o.fired = true
	case o.timerComplete:
		o.stage = StageAwaitingSignal
	case o.primary != "":
		o.stage = StageAwaitingTimer
	default:
		o.stage = StageAwaitingBoth
	}
	stage := o.stage
	primary := o.primary
	listeners := append([]StageListener(nil), o.listeners...)
	var fireListeners []FireListener
	if o.fired {
		fireListeners = o.fireListeners
		o.fireListeners = nil
	}
	o.mu.Unlock()

	for _, fn := range listeners {
		fn(stage)
	}
	for _, fn := range fireListeners {
		fn(primary)
	}
}
