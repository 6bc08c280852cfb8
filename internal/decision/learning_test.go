package decision_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Fayeq-qamar/velvet-app-sub002/internal/decision"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/feature"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/testutil"
)

func TestLearnerUnseenSignatureIsNeutral(t *testing.T) {
	l := decision.NewLearner(0.1)
	st := testutil.WorkState(testutil.WorkdayMorning)
	c := decision.Candidate{Action: decision.ActionTaskBreakdown, Source: feature.FeatureExecutive, Priority: 0.6}

	assert.InDelta(t, 0.6, l.Adjust(st, c), 1e-9)
}

func TestLearnerRewardsSuccess(t *testing.T) {
	l := decision.NewLearner(0.1)
	st := testutil.WorkState(testutil.WorkdayMorning)
	c := decision.Candidate{Action: decision.ActionTaskBreakdown, Source: feature.FeatureExecutive, Priority: 0.6}

	// The first sample seeds the association at 1.0: full positive nudge.
	l.Record(st, c, true)
	assert.InDelta(t, 0.7, l.Adjust(st, c), 1e-9)
}

func TestLearnerPenalizesFailure(t *testing.T) {
	l := decision.NewLearner(0.1)
	st := testutil.WorkState(testutil.WorkdayMorning)
	c := decision.Candidate{Action: decision.ActionSafeSpace, Source: feature.FeatureMasking, Priority: 0.6}

	l.Record(st, c, false)
	assert.InDelta(t, 0.5, l.Adjust(st, c), 1e-9)
}

func TestLearnerAdjustmentIsBounded(t *testing.T) {
	l := decision.NewLearner(0.1)
	st := testutil.WorkState(testutil.WorkdayMorning)
	c := decision.Candidate{Action: decision.ActionTaskBreakdown, Source: feature.FeatureExecutive, Priority: 0.98}

	// Many successes still move priority by at most the fixed bound, and the
	// result stays in range.
	for i := 0; i < 50; i++ {
		l.Record(st, c, true)
	}
	adjusted := l.Adjust(st, c)
	assert.LessOrEqual(t, adjusted, 1.0)
	assert.InDelta(t, 1.0, adjusted, 1e-9)

	c.Priority = 0.05
	for i := 0; i < 50; i++ {
		l.Record(st, c, false)
	}
	assert.GreaterOrEqual(t, l.Adjust(st, c), 0.0)
}

func TestLearnerFoldsOutcomesGradually(t *testing.T) {
	l := decision.NewLearner(0.1)
	st := testutil.WorkState(testutil.WorkdayMorning)
	c := decision.Candidate{Action: decision.ActionMeetingAssist, Source: feature.FeatureSocial, Priority: 0.5}

	l.Record(st, c, true)  // seeds at 1.0
	l.Record(st, c, false) // 0.9*1.0 + 0.1*0 = 0.9
	// Nudge: (0.9 - 0.5) * 0.2 = 0.08.
	assert.InDelta(t, 0.58, l.Adjust(st, c), 1e-9)
}

func TestLearnerDistinguishesContexts(t *testing.T) {
	l := decision.NewLearner(0.1)
	c := decision.Candidate{Action: decision.ActionVisualNudge, Source: feature.FeatureMasking, Priority: 0.5}

	work := testutil.WorkState(testutil.WorkdayMorning)
	home := testutil.HomeState(testutil.WorkdayMorning)

	l.Record(work, c, false)
	// Only the work signature learned anything; home stays neutral.
	assert.InDelta(t, 0.4, l.Adjust(work, c), 1e-9)
	assert.InDelta(t, 0.5, l.Adjust(home, c), 1e-9)
}
