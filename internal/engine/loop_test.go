package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fayeq-qamar/velvet-app-sub002/internal/detect"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/feature"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/fusion"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/signal"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/testutil"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/tracker"
)

type tickFixture struct {
	loop    *Loop
	inbox   *Inbox
	tracker *tracker.Tracker
	store   *feature.Store
	clock   *testutil.FakeClock
}

func newTickFixture(t *testing.T, detectors []detect.Detector) *tickFixture {
	t.Helper()
	rules, err := signal.DefaultRules()
	require.NoError(t, err)

	f := &tickFixture{
		inbox:   NewInbox(),
		tracker: tracker.New(tracker.DefaultConfig()),
		store:   feature.NewStore(nil, nil),
		clock:   testutil.NewFakeClock(testutil.WorkdayMorning),
	}
	f.loop = NewLoop(Config{Interval: 15 * time.Second},
		f.inbox,
		signal.NewClassifier(rules, signal.DefaultWeights()),
		fusion.NewEngine(fusion.DefaultConfig()),
		f.tracker, f.store, detectors, f.clock)
	return f
}

func TestTickFusesFreshObservations(t *testing.T) {
	f := newTickFixture(t, nil)
	f.inbox.SetWindow(signal.WindowInfo{AppName: "Slack", WindowTitle: "Daily Standup"}, f.clock.Now())

	st := f.loop.Tick(context.Background())
	require.NotNil(t, st)
	assert.Equal(t, "work", st.PrimaryLabel)
	assert.Equal(t, "meeting", st.SubLabel)
	assert.Equal(t, f.clock.Now(), st.Timestamp)

	cur, ok := f.tracker.Current()
	require.True(t, ok)
	assert.Equal(t, st.PrimaryLabel, cur.PrimaryLabel)
}

func TestTickWithNoObservationsStaysUnknown(t *testing.T) {
	f := newTickFixture(t, nil)

	// No capture collaborator has reported: the clock alone never elects.
	st := f.loop.Tick(context.Background())
	require.NotNil(t, st)
	assert.Equal(t, signal.LabelUnknown, st.PrimaryLabel)
	assert.Zero(t, st.Confidence)
	assert.Zero(t, st.PressureLevel)
}

func TestTickIgnoresStaleSignals(t *testing.T) {
	f := newTickFixture(t, nil)
	f.inbox.SetWindow(signal.WindowInfo{AppName: "Netflix"}, f.clock.Now())

	// The window capture ages out; with nothing fresh the belief goes unknown
	// rather than guessing from time of day.
	f.clock.Advance(5 * time.Minute)
	st := f.loop.Tick(context.Background())
	require.NotNil(t, st)
	assert.Equal(t, signal.LabelUnknown, st.PrimaryLabel)
}

func TestTickReportsDetections(t *testing.T) {
	f := newTickFixture(t, []detect.Detector{detect.Executive{}})
	f.inbox.SetWindow(signal.WindowInfo{AppName: "Slack", WindowTitle: "Sprint Review"}, f.clock.Now())
	f.inbox.SetScreenText(signal.ScreenText{
		Text:       "report overdue, remind me tomorrow",
		Confidence: 0.2, // too garbled to vote, still visible to detectors
	}, f.clock.Now())

	st := f.loop.Tick(context.Background())
	require.NotNil(t, st)

	detections := f.store.Detections()
	require.Contains(t, detections, feature.FeatureExecutive)
	assert.Equal(t, "task_paralysis", detections[feature.FeatureExecutive].Type)
}

func TestTickDerivesInteractions(t *testing.T) {
	rulesFile, err := feature.LoadInteractions("")
	require.NoError(t, err)

	f := newTickFixture(t, []detect.Detector{detect.Executive{}})
	f.store = feature.NewStore(rulesFile.Interactions, nil)
	f.loop.store = f.store

	// Masking was flagged active earlier; a crisis-level executive detection
	// this tick must compound its energy cost.
	f.store.Write(feature.FeatureMasking, map[string]any{"active": "true", "energy_impact": 0.1})

	f.inbox.SetWindow(signal.WindowInfo{AppName: "Slack", WindowTitle: "Quarterly Review Meeting"}, f.clock.Now())
	f.inbox.SetScreenText(signal.ScreenText{
		Text:       "deliverable overdue asap, snooze, remind me later",
		Confidence: 1,
	}, f.clock.Now())

	st := f.loop.Tick(context.Background())
	require.NotNil(t, st)
	require.Greater(t, st.PressureLevel, 0.8, "meeting pressure should reach crisis territory")

	masking, ok := f.store.Read(feature.FeatureMasking)
	require.True(t, ok)
	assert.InDelta(t, 0.4, masking["energy_impact"].(float64), 1e-9)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newTickFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.loop.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop on cancel")
	}
}
