package decision

import (
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/feature"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/fusion"
)

// Candidate is a proposed intervention produced from the current fused state
// and one feature's latest detection. At most one candidate per feature
// source enters each tick's selection.
type Candidate struct {
	Action     ActionType     `json:"action"`
	Source     string         `json:"source"` // feature name, or "general"
	Priority   float64        `json:"priority"`
	Confidence float64        `json:"confidence"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// sourcePrecedence breaks exact priority ties: crisis-level executive
// dysfunction outranks social intervention, which outranks masking/energy
// warnings, which outrank generic nudges. Lower rank wins.
var sourcePrecedence = map[string]int{
	feature.FeatureExecutive: 0,
	feature.FeatureSocial:    1,
	feature.FeatureMasking:   2,
	feature.FeatureGeneral:   3,
}

// severityFactor scales detection confidence into priority.
var severityFactor = map[string]float64{
	"crisis":   1.0,
	"high":     0.8,
	"moderate": 0.6,
	"low":      0.4,
}

// Select picks the highest-priority candidate at or above floor. Exact ties
// resolve by source precedence; among same-source candidates (not produced
// in practice) the first wins. Returns nil when nothing clears the floor —
// silence is the designed default.
func Select(candidates []Candidate, floor float64) *Candidate {
	var best *Candidate
	for i := range candidates {
		c := &candidates[i]
		if c.Priority < floor {
			continue
		}
		if best == nil || c.Priority > best.Priority {
			best = c
			continue
		}
		if c.Priority == best.Priority && rank(c.Source) < rank(best.Source) {
			best = c
		}
	}
	return best
}

func rank(source string) int {
	if r, ok := sourcePrecedence[source]; ok {
		return r
	}
	return len(sourcePrecedence)
}

// Propose maps the fused state and the latest detections to zero-or-one
// candidate per feature source.
func Propose(st fusion.State, detections map[string]feature.Detection) []Candidate {
	var out []Candidate

	if d, ok := detections[feature.FeatureExecutive]; ok && d.Type == "task_paralysis" {
		out = append(out, Candidate{
			Action:     ActionTaskBreakdown,
			Source:     feature.FeatureExecutive,
			Priority:   d.Confidence * factor(d.Severity),
			Confidence: d.Confidence,
			Payload: map[string]any{
				"severity":    d.Severity,
				"environment": st.PrimaryLabel,
			},
		})
	}

	if d, ok := detections[feature.FeatureSocial]; ok {
		action := ActionSocialDecode
		if st.SubLabel == "meeting" {
			action = ActionMeetingAssist
		}
		out = append(out, Candidate{
			Action:     action,
			Source:     feature.FeatureSocial,
			Priority:   d.Confidence * factor(d.Severity),
			Confidence: d.Confidence,
			Payload: map[string]any{
				"detection": d.Type,
				"sub_label": st.SubLabel,
			},
		})
	}

	if d, ok := detections[feature.FeatureMasking]; ok && d.Type == "masking_active" {
		action := ActionVisualNudge
		if d.Severity == "high" || d.Severity == "crisis" {
			action = ActionSafeSpace
		}
		out = append(out, Candidate{
			Action:     action,
			Source:     feature.FeatureMasking,
			Priority:   d.Confidence * factor(d.Severity),
			Confidence: d.Confidence,
			Payload: map[string]any{
				"expectation": st.ExpectationLevel,
			},
		})
	}

	// Generic pressure nudge: no feature fired but the environment itself is
	// heavy. Deliberately low priority so it never outranks a detection.
	if len(out) == 0 && st.PressureLevel > 0.7 {
		out = append(out, Candidate{
			Action:     ActionVisualNudge,
			Source:     feature.FeatureGeneral,
			Priority:   0.3 + 0.2*(st.PressureLevel-0.7),
			Confidence: st.Confidence,
			Payload: map[string]any{
				"pressure": st.PressureLevel,
			},
		})
	}

	return out
}

func factor(severity string) float64 {
	if f, ok := severityFactor[severity]; ok {
		return f
	}
	return 0.5
}
