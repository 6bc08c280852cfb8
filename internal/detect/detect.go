// Package detect holds the per-feature pattern detectors (social,
// executive-function, masking). Each detector inspects the current fused
// state plus the latest screen text at its own cadence and reports pattern
// detections into the cross-feature store. Detectors are advisory: a nil
// detection is the normal case.
package detect

import (
	"strings"

	"github.com/Fayeq-qamar/velvet-app-sub002/internal/feature"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/fusion"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/signal"
)

// Detector turns one observation into at most one pattern detection.
type Detector interface {
	Name() string
	Detect(st fusion.State, text signal.ScreenText) *feature.Detection
}

// Severity levels reported by detectors.
const (
	SeverityLow      = "low"
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
	SeverityCrisis   = "crisis"
)

// Social flags conversational overload: a high-social-load environment
// combined with dense conversational cues on screen.
type Social struct{}

func (Social) Name() string { return feature.FeatureSocial }

var conversationCues = []string{
	"replied", "is typing", "mentioned you", "?", "asked", "call started", "joined",
}

func (Social) Detect(st fusion.State, text signal.ScreenText) *feature.Detection {
	lower := strings.ToLower(text.Text)
	cues := 0
	for _, cue := range conversationCues {
		cues += strings.Count(lower, cue)
	}
	engaged := st.SubLabel == "meeting" || st.SubLabel == "call" || cues >= 2
	if !engaged {
		return nil
	}

	confidence := st.SocialLoad
	if cues >= 4 {
		confidence += 0.1
	}
	severity := SeverityModerate
	overload := st.SocialLoad >= 0.7 && cues >= 3
	if overload {
		severity = SeverityHigh
	}
	d := &feature.Detection{
		Feature:    feature.FeatureSocial,
		Type:       "social_overload",
		Confidence: clamp01(confidence),
		Severity:   severity,
		Context:    map[string]string{"sub_label": st.SubLabel},
		Flags: map[string]any{
			"engaged":  "true",
			"overload": boolFlag(overload),
		},
	}
	if !overload {
		d.Type = "social_engagement"
	}
	return d
}

// Executive flags task paralysis: deadline language on screen alongside
// avoidance language, escalating to crisis when ambient pressure is high.
type Executive struct{}

func (Executive) Name() string { return feature.FeatureExecutive }

var deadlineCues = []string{"deadline", "due", "overdue", "by eod", "by end of day", "asap"}
var avoidanceCues = []string{"later", "tomorrow", "not now", "remind me", "snooze"}

func (Executive) Detect(st fusion.State, text signal.ScreenText) *feature.Detection {
	lower := strings.ToLower(text.Text)
	deadlines := countAny(lower, deadlineCues)
	avoidance := countAny(lower, avoidanceCues)
	if deadlines == 0 || avoidance == 0 {
		return nil
	}

	confidence := 0.4 + 0.1*float64(deadlines+avoidance)
	severity := SeverityModerate
	if st.PressureLevel > 0.8 {
		severity = SeverityCrisis
	} else if st.PressureLevel > 0.6 {
		severity = SeverityHigh
	}
	return &feature.Detection{
		Feature:    feature.FeatureExecutive,
		Type:       "task_paralysis",
		Confidence: clamp01(confidence),
		Severity:   severity,
		Context:    map[string]string{"environment": st.PrimaryLabel},
		Flags: map[string]any{
			"crisis_level": severity,
			"stalled":      "true",
		},
	}
}

// Masking estimates suppression of authentic communication style: sustained
// expectation well above the user's own baseline. It learns the baseline via
// the profile's EMA, so what counts as "elevated" adapts per user.
type Masking struct {
	Profile *feature.Profile
}

func (Masking) Name() string { return feature.FeatureMasking }

func (m Masking) Detect(st fusion.State, _ signal.ScreenText) *feature.Detection {
	if m.Profile == nil {
		return nil
	}
	baseline := m.Profile.Update(feature.FeatureMasking, "expectation", st.ExpectationLevel)
	if st.ExpectationLevel < 0.7 || st.ExpectationLevel < baseline+0.15 {
		return nil
	}

	energyImpact := st.ExpectationLevel - baseline
	severity := SeverityModerate
	if energyImpact > 0.3 {
		severity = SeverityHigh
	}
	return &feature.Detection{
		Feature:    feature.FeatureMasking,
		Type:       "masking_active",
		Confidence: clamp01(st.ExpectationLevel),
		Severity:   severity,
		Context: map[string]string{
			"environment": st.PrimaryLabel,
			"sub_label":   st.SubLabel,
		},
		Flags: map[string]any{
			"active":        "true",
			"sustained":     boolFlag(energyImpact > 0.2),
			"energy_impact": energyImpact,
		},
	}
}

func boolFlag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func countAny(text string, cues []string) int {
	n := 0
	for _, cue := range cues {
		n += strings.Count(text, cue)
	}
	return n
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
