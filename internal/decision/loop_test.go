package decision_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fayeq-qamar/velvet-app-sub002/internal/decision"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/feature"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/fusion"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/testutil"
)

type stubStates struct {
	st fusion.State
	ok bool
}

func (s stubStates) Current() (fusion.State, bool) { return s.st, s.ok }

type stubDetections map[string]feature.Detection

func (s stubDetections) Detections() map[string]feature.Detection { return s }

type fakeExecutor struct {
	action decision.ActionType
	err    error
	panics bool
	block  bool
	calls  int
}

func (f *fakeExecutor) Name() decision.ActionType { return f.action }

func (f *fakeExecutor) Execute(ctx context.Context, _ map[string]any) error {
	f.calls++
	if f.panics {
		panic("executor blew up")
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func paralysisDetections() stubDetections {
	return stubDetections{
		feature.FeatureExecutive: {
			Feature:    feature.FeatureExecutive,
			Type:       "task_paralysis",
			Confidence: 0.9,
			Severity:   "crisis",
			Timestamp:  time.Now(),
		},
	}
}

func newTestLoop(t *testing.T, cfg decision.Config, states decision.StateSource, detections decision.DetectionSource, executors ...decision.Executor) *decision.Loop {
	t.Helper()
	registry := decision.NewRegistry()
	for _, e := range executors {
		registry.Register(e)
	}
	decision.RegisterDefaults(registry)
	return decision.NewLoop(cfg, states, detections, registry, decision.NewLearner(0.1))
}

func TestTickExecutesTopCandidate(t *testing.T) {
	exec := &fakeExecutor{action: decision.ActionTaskBreakdown}
	loop := newTestLoop(t, decision.Config{},
		stubStates{st: testutil.WorkState(testutil.WorkdayMorning), ok: true},
		paralysisDetections(), exec)

	got := loop.Tick(context.Background())
	require.NotNil(t, got)
	assert.Equal(t, decision.ActionTaskBreakdown, got.Action)
	assert.Equal(t, feature.FeatureExecutive, got.Source)
	assert.True(t, got.Executed)
	assert.True(t, got.Success)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, 1, exec.calls)

	last := loop.LastExecution()
	require.NotNil(t, last)
	assert.Equal(t, got.ID, last.ID)
}

func TestTickWithoutStateDoesNothing(t *testing.T) {
	loop := newTestLoop(t, decision.Config{}, stubStates{}, paralysisDetections())
	assert.Nil(t, loop.Tick(context.Background()))
	assert.Nil(t, loop.LastExecution())
}

func TestTickQuietStateDoesNothing(t *testing.T) {
	loop := newTestLoop(t, decision.Config{},
		stubStates{st: testutil.HomeState(testutil.WorkdayMorning), ok: true},
		stubDetections{})
	assert.Nil(t, loop.Tick(context.Background()))
}

func TestTickPriorityFloorSilences(t *testing.T) {
	// A weak detection must not trigger anything: dropped, not queued.
	loop := newTestLoop(t, decision.Config{PriorityFloor: 0.3},
		stubStates{st: testutil.State("social", 0.5, testutil.WorkdayMorning), ok: true},
		stubDetections{
			feature.FeatureSocial: {
				Feature:    feature.FeatureSocial,
				Type:       "social_engagement",
				Confidence: 0.4,
				Severity:   "low", // 0.4 * 0.4 = 0.16 < floor
				Timestamp:  time.Now(),
			},
		})

	for i := 0; i < 3; i++ {
		assert.Nil(t, loop.Tick(context.Background()))
	}
	assert.Nil(t, loop.LastExecution())
}

func TestTickIgnoresStaleDetections(t *testing.T) {
	// A detector that went quiet must not keep triggering the same action:
	// once its last detection ages past the TTL, the tick proposes nothing.
	exec := &fakeExecutor{action: decision.ActionTaskBreakdown}
	stale := stubDetections{
		feature.FeatureExecutive: {
			Feature:    feature.FeatureExecutive,
			Type:       "task_paralysis",
			Confidence: 0.9,
			Severity:   "crisis",
			Timestamp:  time.Now().Add(-time.Minute),
		},
	}
	loop := newTestLoop(t, decision.Config{DetectionTTL: 30 * time.Second},
		stubStates{st: testutil.WorkState(testutil.WorkdayMorning), ok: true},
		stale, exec)

	for i := 0; i < 3; i++ {
		assert.Nil(t, loop.Tick(context.Background()))
	}
	assert.Zero(t, exec.calls)
	assert.Nil(t, loop.LastExecution())
}

func TestTickExecutorFailureIsContained(t *testing.T) {
	exec := &fakeExecutor{action: decision.ActionTaskBreakdown, err: errors.New("display unavailable")}
	loop := newTestLoop(t, decision.Config{},
		stubStates{st: testutil.WorkState(testutil.WorkdayMorning), ok: true},
		paralysisDetections(), exec)

	got := loop.Tick(context.Background())
	require.NotNil(t, got)
	assert.True(t, got.Executed)
	assert.False(t, got.Success)
	assert.Contains(t, got.Err, "display unavailable")

	// The loop keeps ticking normally afterwards.
	got = loop.Tick(context.Background())
	require.NotNil(t, got)
	assert.Equal(t, 2, exec.calls)
}

func TestTickExecutorPanicBecomesError(t *testing.T) {
	exec := &fakeExecutor{action: decision.ActionTaskBreakdown, panics: true}
	loop := newTestLoop(t, decision.Config{},
		stubStates{st: testutil.WorkState(testutil.WorkdayMorning), ok: true},
		paralysisDetections(), exec)

	got := loop.Tick(context.Background())
	require.NotNil(t, got)
	assert.True(t, got.Executed)
	assert.False(t, got.Success)
	assert.Contains(t, got.Err, "executor panic")
}

func TestTickExecutorTimeout(t *testing.T) {
	exec := &fakeExecutor{action: decision.ActionTaskBreakdown, block: true}
	loop := newTestLoop(t, decision.Config{ExecTimeout: 20 * time.Millisecond},
		stubStates{st: testutil.WorkState(testutil.WorkdayMorning), ok: true},
		paralysisDetections(), exec)

	start := time.Now()
	got := loop.Tick(context.Background())
	require.NotNil(t, got)
	assert.False(t, got.Success)
	assert.Contains(t, got.Err, context.DeadlineExceeded.Error())
	assert.Less(t, time.Since(start), time.Second)
}

func TestTickRateLimitDropsExcessActions(t *testing.T) {
	exec := &fakeExecutor{action: decision.ActionTaskBreakdown}
	loop := newTestLoop(t, decision.Config{ActionsPerMinute: 1, ActionBurst: 1},
		stubStates{st: testutil.WorkState(testutil.WorkdayMorning), ok: true},
		paralysisDetections(), exec)

	first := loop.Tick(context.Background())
	require.NotNil(t, first)
	assert.True(t, first.Success)

	// The bucket is empty; further candidates are dropped, never queued.
	for i := 0; i < 3; i++ {
		assert.Nil(t, loop.Tick(context.Background()))
	}
	assert.Equal(t, 1, exec.calls)
}

func TestTickOverlappingTicksAreSkipped(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	slow := &slowExecutor{action: decision.ActionTaskBreakdown, started: started, release: release}
	loop := newTestLoop(t, decision.Config{ExecTimeout: 5 * time.Second},
		stubStates{st: testutil.WorkState(testutil.WorkdayMorning), ok: true},
		paralysisDetections(), slow)

	done := make(chan *decision.Execution, 1)
	go func() { done <- loop.Tick(context.Background()) }()
	<-started

	// A tick arriving while the first is still executing is dropped.
	assert.Nil(t, loop.Tick(context.Background()))

	close(release)
	got := <-done
	require.NotNil(t, got)
	assert.True(t, got.Success)
}

type slowExecutor struct {
	action  decision.ActionType
	started chan struct{}
	release chan struct{}
}

func (s *slowExecutor) Name() decision.ActionType { return s.action }

func (s *slowExecutor) Execute(ctx context.Context, _ map[string]any) error {
	close(s.started)
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestTickMissingExecutorRecordsFailure(t *testing.T) {
	// Registry deliberately left without the selected action type.
	registry := decision.NewRegistry()
	loop := decision.NewLoop(decision.Config{},
		stubStates{st: testutil.WorkState(testutil.WorkdayMorning), ok: true},
		paralysisDetections(), registry, decision.NewLearner(0.1))

	got := loop.Tick(context.Background())
	require.NotNil(t, got)
	assert.False(t, got.Executed)
	assert.False(t, got.Success)
	assert.Contains(t, got.Err, "no executor registered")
}

func TestLastExecutionReturnsCopy(t *testing.T) {
	exec := &fakeExecutor{action: decision.ActionTaskBreakdown}
	loop := newTestLoop(t, decision.Config{},
		stubStates{st: testutil.WorkState(testutil.WorkdayMorning), ok: true},
		paralysisDetections(), exec)

	require.NotNil(t, loop.Tick(context.Background()))
	first := loop.LastExecution()
	require.NotNil(t, first)
	first.Action = "mutated"
	assert.Equal(t, decision.ActionTaskBreakdown, loop.LastExecution().Action)
}

func TestRegistryReplaceAndDefaults(t *testing.T) {
	registry := decision.NewRegistry()
	custom := &fakeExecutor{action: decision.ActionVisualNudge}
	registry.Register(custom)
	decision.RegisterDefaults(registry)

	// Defaults must not displace an existing binding.
	got, ok := registry.Get(decision.ActionVisualNudge)
	require.True(t, ok)
	assert.Same(t, custom, got)

	assert.Len(t, registry.Types(), 6)
}
