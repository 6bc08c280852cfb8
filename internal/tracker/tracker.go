// Package tracker holds the current fused state, detects meaningful change
// between consecutive analysis ticks, and keeps bounded history of states and
// transitions. Most ticks produce no event: only a (debounced) environment
// label change or a large pressure swing is surfaced.
package tracker

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Fayeq-qamar/velvet-app-sub002/internal/fusion"
	velvetotel "github.com/Fayeq-qamar/velvet-app-sub002/internal/otel"
)

const meterName = "github.com/Fayeq-qamar/velvet-app-sub002/internal/tracker"

// Kind distinguishes the two transition event types.
type Kind string

const (
	KindEnvironmentChange Kind = "environmentChange"
	KindPressureChange    Kind = "pressureChange"
)

// Direction annotates pressure changes.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
)

// TransitionEvent records one meaningful change between consecutive states.
// Events are immutable once emitted.
type TransitionEvent struct {
	ID        string    `json:"id"`
	FromLabel string    `json:"from_label"`
	ToLabel   string    `json:"to_label"`
	Kind      Kind      `json:"kind"`
	Delta     float64   `json:"delta"`
	Direction Direction `json:"direction,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TransitionHandler receives transition events as they are emitted.
type TransitionHandler func(TransitionEvent)

// PressureHandler receives the high-pressure side signal. It fires when
// pressure exceeds the high threshold, independent of whether a transition
// fired, at most once per cooldown window.
type PressureHandler func(fusion.State)

// Config carries the tracker thresholds. Defaults are the reference values.
type Config struct {
	PressureDelta    float64       // |Δpressure| that counts as a transition (default 0.3)
	HighPressure     float64       // high-pressure side-signal threshold (default 0.7)
	PressureCooldown time.Duration // min gap between side signals (default 60s)

	// HysteresisTicks is the number of consecutive ticks that must agree on a
	// new label before an environmentChange fires. A one-tick OCR flicker
	// between two labels must not alert; 1 means fire immediately. Default 2.
	HysteresisTicks int

	StateCap      int // bounded state history (default 100)
	TransitionCap int // bounded transition history (default 50)
}

// DefaultConfig returns the reference tracker thresholds.
func DefaultConfig() Config {
	return Config{
		PressureDelta:    0.3,
		HighPressure:     0.7,
		PressureCooldown: 60 * time.Second,
		HysteresisTicks:  2,
		StateCap:         100,
		TransitionCap:    50,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.PressureDelta <= 0 {
		c.PressureDelta = def.PressureDelta
	}
	if c.HighPressure <= 0 {
		c.HighPressure = def.HighPressure
	}
	if c.PressureCooldown <= 0 {
		c.PressureCooldown = def.PressureCooldown
	}
	if c.HysteresisTicks < 1 {
		c.HysteresisTicks = def.HysteresisTicks
	}
	if c.StateCap <= 0 {
		c.StateCap = def.StateCap
	}
	if c.TransitionCap <= 0 {
		c.TransitionCap = def.TransitionCap
	}
}

// Tracker diffs each new fused state against the previous one. Safe for
// concurrent use: the analysis loop writes while the introspection API reads.
type Tracker struct {
	mu  sync.Mutex
	cfg Config

	current     *fusion.State
	states      []fusion.State
	transitions []TransitionEvent

	pendingLabel string // candidate label during hysteresis
	pendingTicks int

	lastAlert time.Time

	onTransition []TransitionHandler
	onPressure   []PressureHandler

	transitionCounter metric.Int64Counter
	alertCounter      metric.Int64Counter
}

// New creates a tracker with the given thresholds.
func New(cfg Config) *Tracker {
	cfg.applyDefaults()
	meter := velvetotel.Meter(meterName)
	transitions, _ := meter.Int64Counter("velvet.tracker.transitions",
		metric.WithDescription("Transition events emitted, by kind"))
	alerts, _ := meter.Int64Counter("velvet.tracker.pressure_alerts",
		metric.WithDescription("High-pressure side signals raised"))
	return &Tracker{
		cfg:               cfg,
		transitionCounter: transitions,
		alertCounter:      alerts,
	}
}

// OnTransition registers a handler for transition events. Handlers are called
// synchronously from Update, in registration order.
func (t *Tracker) OnTransition(h TransitionHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTransition = append(t.onTransition, h)
}

// OnPressureAlert registers a handler for the high-pressure side signal.
func (t *Tracker) OnPressureAlert(h PressureHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPressure = append(t.onPressure, h)
}

// Update records the new state, compares it with the previous one, and
// returns the emitted transition event, if any. Passing a state identical to
// the current one never emits.
func (t *Tracker) Update(ctx context.Context, newState fusion.State) *TransitionEvent {
	t.mu.Lock()

	prev := t.current
	t.current = &newState
	t.states = append(t.states, newState)
	if len(t.states) > t.cfg.StateCap {
		t.states = t.states[len(t.states)-t.cfg.StateCap:]
	}

	var event *TransitionEvent
	if prev != nil {
		event = t.detect(*prev, newState)
	} else {
		// First observation seeds hysteresis without emitting.
		t.pendingLabel = ""
		t.pendingTicks = 0
	}

	if event != nil {
		t.transitions = append(t.transitions, *event)
		if len(t.transitions) > t.cfg.TransitionCap {
			t.transitions = t.transitions[len(t.transitions)-t.cfg.TransitionCap:]
		}
	}

	alert := false
	if newState.PressureLevel > t.cfg.HighPressure &&
		newState.Timestamp.Sub(t.lastAlert) >= t.cfg.PressureCooldown {
		t.lastAlert = newState.Timestamp
		alert = true
	}

	transitionHandlers := t.onTransition
	pressureHandlers := t.onPressure
	t.mu.Unlock()

	if event != nil {
		t.transitionCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("kind", string(event.Kind))))
		for _, h := range transitionHandlers {
			h(*event)
		}
	}
	if alert {
		t.alertCounter.Add(ctx, 1)
		for _, h := range pressureHandlers {
			h(newState)
		}
	}
	return event
}

// detect applies the transition rules. Caller holds the lock.
func (t *Tracker) detect(prev, next fusion.State) *TransitionEvent {
	if next.PrimaryLabel != prev.PrimaryLabel {
		if next.PrimaryLabel == t.pendingLabel {
			t.pendingTicks++
		} else {
			t.pendingLabel = next.PrimaryLabel
			t.pendingTicks = 1
		}
		if t.pendingTicks < t.cfg.HysteresisTicks {
			// Not enough agreement yet; keep the previous label as current so
			// a one-tick flicker never fires.
			t.current = &prev
			return nil
		}
		t.pendingLabel = ""
		t.pendingTicks = 0
		return &TransitionEvent{
			ID:        uuid.NewString(),
			FromLabel: prev.PrimaryLabel,
			ToLabel:   next.PrimaryLabel,
			Kind:      KindEnvironmentChange,
			Delta:     next.Confidence - prev.Confidence,
			Timestamp: next.Timestamp,
		}
	}

	// Same label: a returning flicker resets hysteresis.
	t.pendingLabel = ""
	t.pendingTicks = 0

	delta := next.PressureLevel - prev.PressureLevel
	if math.Abs(delta) > t.cfg.PressureDelta {
		dir := DirectionIncrease
		if delta < 0 {
			dir = DirectionDecrease
		}
		return &TransitionEvent{
			ID:        uuid.NewString(),
			FromLabel: prev.PrimaryLabel,
			ToLabel:   next.PrimaryLabel,
			Kind:      KindPressureChange,
			Delta:     delta,
			Direction: dir,
			Timestamp: next.Timestamp,
		}
	}
	return nil
}

// Current returns the most recent fused state, or false when no tick has run.
func (t *Tracker) Current() (fusion.State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return fusion.State{}, false
	}
	return *t.current, true
}

// History returns a copy of the bounded state history, oldest first.
func (t *Tracker) History() []fusion.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]fusion.State, len(t.states))
	copy(out, t.states)
	return out
}

// Transitions returns a copy of the bounded transition history, oldest first.
func (t *Tracker) Transitions() []TransitionEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TransitionEvent, len(t.transitions))
	copy(out, t.transitions)
	return out
}
