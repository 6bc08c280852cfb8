package decision_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fayeq-qamar/velvet-app-sub002/internal/decision"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/feature"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/testutil"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		name       string
		candidates []decision.Candidate
		floor      float64
		want       string // winning source, "" for nil
	}{
		{
			name: "nothing clears the floor",
			candidates: []decision.Candidate{
				{Source: feature.FeatureSocial, Priority: 0.2},
				{Source: feature.FeatureMasking, Priority: 0.29},
			},
			floor: 0.3,
			want:  "",
		},
		{
			name:       "empty candidate set",
			candidates: nil,
			floor:      0.3,
			want:       "",
		},
		{
			name: "highest priority wins",
			candidates: []decision.Candidate{
				{Source: feature.FeatureSocial, Priority: 0.5},
				{Source: feature.FeatureMasking, Priority: 0.8},
			},
			floor: 0.3,
			want:  feature.FeatureMasking,
		},
		{
			name: "exact tie resolves by precedence",
			candidates: []decision.Candidate{
				{Source: feature.FeatureMasking, Priority: 0.6},
				{Source: feature.FeatureExecutive, Priority: 0.6},
				{Source: feature.FeatureSocial, Priority: 0.6},
			},
			floor: 0.3,
			want:  feature.FeatureExecutive,
		},
		{
			name: "general loses every tie",
			candidates: []decision.Candidate{
				{Source: feature.FeatureGeneral, Priority: 0.6},
				{Source: feature.FeatureMasking, Priority: 0.6},
			},
			floor: 0.3,
			want:  feature.FeatureMasking,
		},
		{
			name: "at the floor still qualifies",
			candidates: []decision.Candidate{
				{Source: feature.FeatureSocial, Priority: 0.3},
			},
			floor: 0.3,
			want:  feature.FeatureSocial,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decision.Select(tt.candidates, tt.floor)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Source)
		})
	}
}

func TestProposeExecutiveTaskParalysis(t *testing.T) {
	st := testutil.WorkState(testutil.WorkdayMorning)
	detections := map[string]feature.Detection{
		feature.FeatureExecutive: {
			Feature:    feature.FeatureExecutive,
			Type:       "task_paralysis",
			Confidence: 0.8,
			Severity:   "crisis",
		},
	}

	out := decision.Propose(st, detections)
	require.Len(t, out, 1)
	assert.Equal(t, decision.ActionTaskBreakdown, out[0].Action)
	assert.Equal(t, feature.FeatureExecutive, out[0].Source)
	// crisis severity carries full weight.
	assert.InDelta(t, 0.8, out[0].Priority, 1e-9)
	assert.Equal(t, "work", out[0].Payload["environment"])
}

func TestProposeSocialActionDependsOnSubLabel(t *testing.T) {
	detections := map[string]feature.Detection{
		feature.FeatureSocial: {
			Feature:    feature.FeatureSocial,
			Type:       "social_overload",
			Confidence: 0.9,
			Severity:   "high",
		},
	}

	meeting := testutil.WorkState(testutil.WorkdayMorning) // sub-label meeting
	out := decision.Propose(meeting, detections)
	require.Len(t, out, 1)
	assert.Equal(t, decision.ActionMeetingAssist, out[0].Action)

	casual := testutil.State("social", 0.5, testutil.WorkdayMorning)
	out = decision.Propose(casual, detections)
	require.Len(t, out, 1)
	assert.Equal(t, decision.ActionSocialDecode, out[0].Action)
	assert.InDelta(t, 0.9*0.8, out[0].Priority, 1e-9)
}

func TestProposeMaskingEscalatesToSafeSpace(t *testing.T) {
	st := testutil.WorkState(testutil.WorkdayMorning)

	for _, tt := range []struct {
		severity string
		want     decision.ActionType
	}{
		{"moderate", decision.ActionVisualNudge},
		{"high", decision.ActionSafeSpace},
		{"crisis", decision.ActionSafeSpace},
	} {
		out := decision.Propose(st, map[string]feature.Detection{
			feature.FeatureMasking: {
				Feature:    feature.FeatureMasking,
				Type:       "masking_active",
				Confidence: 0.7,
				Severity:   tt.severity,
			},
		})
		require.Len(t, out, 1, "severity %s", tt.severity)
		assert.Equal(t, tt.want, out[0].Action, "severity %s", tt.severity)
	}
}

func TestProposeGeneralNudgeOnlyWhenNothingElseFired(t *testing.T) {
	heavy := testutil.State("work", 0.9, testutil.WorkdayMorning)

	out := decision.Propose(heavy, nil)
	require.Len(t, out, 1)
	assert.Equal(t, feature.FeatureGeneral, out[0].Source)
	assert.Equal(t, decision.ActionVisualNudge, out[0].Action)
	// 0.3 + 0.2 * (0.9 - 0.7): capped well below any detection's priority.
	assert.InDelta(t, 0.34, out[0].Priority, 1e-9)

	// With a detection present the generic nudge stays out.
	out = decision.Propose(heavy, map[string]feature.Detection{
		feature.FeatureSocial: {Feature: feature.FeatureSocial, Type: "social_overload", Confidence: 0.9, Severity: "high"},
	})
	require.Len(t, out, 1)
	assert.Equal(t, feature.FeatureSocial, out[0].Source)
}

func TestProposeQuietStateProposesNothing(t *testing.T) {
	out := decision.Propose(testutil.HomeState(testutil.WorkdayMorning), nil)
	assert.Empty(t, out)
}
