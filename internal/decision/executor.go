// Package decision implements the rate-limited intervention policy: every
// tick it gathers the current fused state and the latest per-feature pattern
// detections, ranks candidate actions by priority under a fixed precedence
// order, and executes at most one action. Sub-threshold candidates are
// dropped, never queued; an executor failure is contained to its tick.
package decision

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// ActionType is the closed set of intervention kinds the core can request
// from the UI/voice layer.
type ActionType string

const (
	ActionVoiceResponse ActionType = "voice_response"
	ActionVisualNudge   ActionType = "visual_nudge"
	ActionTaskBreakdown ActionType = "task_breakdown"
	ActionMeetingAssist ActionType = "meeting_assist"
	ActionSocialDecode  ActionType = "social_decode"
	ActionSafeSpace     ActionType = "safe_space"
)

// Executor is the write boundary to the UI/voice layer. The policy treats
// all executors as uniform black boxes: Execute either succeeds or returns
// an error; it must respect ctx's deadline.
type Executor interface {
	Name() ActionType
	Execute(ctx context.Context, payload map[string]any) error
}

// Registry manages registered executors. Thread-safe.
type Registry struct {
	mu        sync.RWMutex
	executors map[ActionType]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[ActionType]Executor)}
}

// Register adds an executor. A later registration for the same action type
// replaces the earlier one.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.Name()] = e
}

// Get returns the executor for an action type.
func (r *Registry) Get(action ActionType) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[action]
	return e, ok
}

// Types returns the registered action types.
func (r *Registry) Types() []ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ActionType, 0, len(r.executors))
	for t := range r.executors {
		out = append(out, t)
	}
	return out
}

// LogExecutor logs the action instead of driving a UI. It is the default
// binding for every action type when no real actuator is attached, so the
// decision loop is fully exercisable headless.
type LogExecutor struct {
	Action ActionType
}

// Name implements Executor.
func (l LogExecutor) Name() ActionType { return l.Action }

// Execute implements Executor by emitting a structured log event.
func (l LogExecutor) Execute(ctx context.Context, payload map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Info().
		Str("action", string(l.Action)).
		Interface("payload", payload).
		Msg("action_executed")
	return nil
}

// RegisterDefaults fills the registry with logging executors for every
// action type that has no binding yet.
func RegisterDefaults(r *Registry) {
	for _, t := range []ActionType{
		ActionVoiceResponse,
		ActionVisualNudge,
		ActionTaskBreakdown,
		ActionMeetingAssist,
		ActionSocialDecode,
		ActionSafeSpace,
	} {
		if _, ok := r.Get(t); !ok {
			r.Register(LogExecutor{Action: t})
		}
	}
}
