package decision

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/Fayeq-qamar/velvet-app-sub002/internal/feature"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/fusion"
	velvetotel "github.com/Fayeq-qamar/velvet-app-sub002/internal/otel"
)

const pkgName = "github.com/Fayeq-qamar/velvet-app-sub002/internal/decision"

var tracer = velvetotel.Tracer(pkgName)

// StateSource provides the most recent fused state. Satisfied by
// tracker.Tracker.
type StateSource interface {
	Current() (fusion.State, bool)
}

// DetectionSource provides the latest detection per feature. Satisfied by
// feature.Store.
type DetectionSource interface {
	Detections() map[string]feature.Detection
}

// Execution records the outcome of one selected action.
type Execution struct {
	ID        string        `json:"id"`
	Action    ActionType    `json:"action"`
	Source    string        `json:"source"`
	Executed  bool          `json:"executed"`
	Success   bool          `json:"success"`
	Err       string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Config carries the decision loop's tunables.
type Config struct {
	Interval         time.Duration // tick cadence (default 3s)
	ExecTimeout      time.Duration // per-executor budget (default 200ms)
	PriorityFloor    float64       // hard floor; below it nothing executes (default 0.3)
	ActionsPerMinute int           // token-bucket rate on executions (default 6)
	ActionBurst      int           // (default 2)
	DetectionTTL     time.Duration // detections older than this no longer propose (default 30s)
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 3 * time.Second
	}
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = 200 * time.Millisecond
	}
	if c.PriorityFloor <= 0 {
		c.PriorityFloor = 0.3
	}
	if c.ActionsPerMinute < 1 {
		c.ActionsPerMinute = 6
	}
	if c.ActionBurst < 1 {
		c.ActionBurst = 2
	}
	if c.DetectionTTL <= 0 {
		c.DetectionTTL = 30 * time.Second
	}
}

// Loop is the intervention policy's tick driver. Ticks are single-flight:
// if a tick is still running when the next fires, the new tick is skipped
// and dropped, never queued.
type Loop struct {
	cfg        Config
	states     StateSource
	detections DetectionSource
	registry   *Registry
	learner    *Learner
	limiter    *rate.Limiter

	busy atomic.Bool

	mu   sync.Mutex
	last *Execution

	actionCounter  metric.Int64Counter
	droppedCounter metric.Int64Counter
}

// NewLoop wires a decision loop. All collaborators are injected; the loop
// owns no global state.
func NewLoop(cfg Config, states StateSource, detections DetectionSource, registry *Registry, learner *Learner) *Loop {
	cfg.applyDefaults()
	if learner == nil {
		learner = NewLearner(0.1)
	}
	meter := velvetotel.Meter(pkgName)
	actions, _ := meter.Int64Counter("velvet.decision.actions",
		metric.WithDescription("Actions executed, by type and outcome"))
	dropped, _ := meter.Int64Counter("velvet.decision.dropped",
		metric.WithDescription("Candidates dropped, by reason"))
	return &Loop{
		cfg:            cfg,
		states:         states,
		detections:     detections,
		registry:       registry,
		learner:        learner,
		limiter:        rate.NewLimiter(rate.Limit(float64(cfg.ActionsPerMinute)/60.0), cfg.ActionBurst),
		actionCounter:  actions,
		droppedCounter: dropped,
	}
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick runs one decision cycle and returns the execution record, or nil when
// no action fired (the common case). Safe to call directly in tests.
func (l *Loop) Tick(ctx context.Context) *Execution {
	if !l.busy.CompareAndSwap(false, true) {
		log.Debug().Msg("decision_tick_skipped_busy")
		return nil
	}
	defer l.busy.Store(false)

	ctx, span := tracer.Start(ctx, "decision.tick")
	defer span.End()

	st, ok := l.states.Current()
	if !ok {
		return nil
	}

	candidates := Propose(st, l.freshDetections(time.Now()))
	for i := range candidates {
		candidates[i].Priority = l.learner.Adjust(st, candidates[i])
	}

	selected := Select(candidates, l.cfg.PriorityFloor)
	span.SetAttributes(attribute.Int("decision.candidates", len(candidates)))
	if selected == nil {
		return nil
	}

	if !l.limiter.Allow() {
		l.droppedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "rate_limited")))
		log.Debug().
			Str("action", string(selected.Action)).
			Msg("action_rate_limited")
		return nil
	}

	exec := l.execute(ctx, *selected)
	l.learner.Record(st, *selected, exec.Success)

	l.mu.Lock()
	l.last = exec
	l.mu.Unlock()

	l.actionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(exec.Action)),
		attribute.Bool("success", exec.Success),
	))
	span.SetAttributes(
		attribute.String("decision.action", string(exec.Action)),
		attribute.Bool("decision.success", exec.Success),
	)
	return exec
}

// freshDetections drops detections older than the TTL. A detector that went
// quiet must stop proposing the same action tick after tick.
func (l *Loop) freshDetections(now time.Time) map[string]feature.Detection {
	all := l.detections.Detections()
	fresh := make(map[string]feature.Detection, len(all))
	for k, d := range all {
		if now.Sub(d.Timestamp) > l.cfg.DetectionTTL {
			continue
		}
		fresh[k] = d
	}
	return fresh
}

// execute runs the selected candidate's executor under the per-action
// timeout. Executor errors and panics are contained: the tick records the
// failure and the loop proceeds normally.
func (l *Loop) execute(ctx context.Context, c Candidate) *Execution {
	exec := &Execution{
		ID:        uuid.NewString(),
		Action:    c.Action,
		Source:    c.Source,
		Timestamp: time.Now(),
	}

	executor, ok := l.registry.Get(c.Action)
	if !ok {
		exec.Err = fmt.Sprintf("no executor registered for %s", c.Action)
		log.Warn().Str("action", string(c.Action)).Msg("executor_missing")
		return exec
	}

	execCtx, cancel := context.WithTimeout(ctx, l.cfg.ExecTimeout)
	defer cancel()

	start := time.Now()
	err := runExecutor(execCtx, executor, c.Payload)
	exec.Duration = time.Since(start)
	exec.Executed = true
	if err != nil {
		exec.Err = err.Error()
		log.Warn().Err(err).
			Str("action", string(c.Action)).
			Str("source", c.Source).
			Func(velvetotel.LogTraceFields(ctx)).
			Msg("action_failed")
		return exec
	}
	exec.Success = true
	return exec
}

// runExecutor isolates executor panics into ordinary errors.
func runExecutor(ctx context.Context, e Executor, payload map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return e.Execute(ctx, payload)
}

// LastExecution returns the most recent execution record, if any.
func (l *Loop) LastExecution() *Execution {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		return nil
	}
	cp := *l.last
	return &cp
}
