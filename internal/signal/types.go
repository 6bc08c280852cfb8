// Package signal classifies raw desktop observations (window metadata, screen
// OCR text, time-of-day, audio environment) into weighted environment
// estimates. Classifiers are pure: they score only what they directly observe
// against configurable rule tables, and malformed input degrades to an
// unknown/zero result instead of an error.
package signal

import "time"

// Kind identifies the source of a raw signal.
type Kind string

const (
	KindWindow     Kind = "window"
	KindScreenText Kind = "screenText"
	KindTime       Kind = "time"
	KindAudio      Kind = "audio"
)

// LabelUnknown is the safe fallback when no rule clears the minimum score.
const LabelUnknown = "unknown"

// Labels is the closed set of environment labels the pipeline reasons about.
// Classifiers never invent labels outside this set.
var Labels = []string{"home", "work", "school", "social", "public"}

// WindowInfo is the window/application boundary shape supplied by the
// external window-introspection collaborator.
type WindowInfo struct {
	AppName     string `json:"app_name"`
	WindowTitle string `json:"window_title"`
}

// ScreenText is the OCR boundary shape. Confidence is the OCR engine's own
// estimate in [0,1]; classification scores are scaled by it.
type ScreenText struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// TimeContext is derived locally from wall clock.
type TimeContext struct {
	Hour      int          `json:"hour"`
	DayOfWeek time.Weekday `json:"day_of_week"`
	IsWeekend bool         `json:"is_weekend"`
}

// TimeContextAt builds a TimeContext from a timestamp.
func TimeContextAt(t time.Time) TimeContext {
	wd := t.Weekday()
	return TimeContext{
		Hour:      t.Hour(),
		DayOfWeek: wd,
		IsWeekend: wd == time.Saturday || wd == time.Sunday,
	}
}

// AudioContext is the boundary shape from the external audio classifier.
type AudioContext struct {
	PrimaryType string  `json:"primary_type"` // conversation, music, crowd, silence, ...
	Source      string  `json:"source"`
	Confidence  float64 `json:"confidence"`
}

// Result is a single classifier's vote: one label, a confidence in [0,1],
// and the evidence tags that produced the score (e.g. "app:slack",
// "title:meeting"). Evidence tags feed sub-label resolution at fusion time.
type Result struct {
	Label      string   `json:"label"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence,omitempty"`
}

// Unknown returns the zero-confidence fallback result.
func Unknown() Result {
	return Result{Label: LabelUnknown, Confidence: 0}
}
