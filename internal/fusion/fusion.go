// Package fusion combines independent, weighted signal classifications into
// one ranked belief about the user's current environment, and derives the
// scalar scores (social load, pressure, expectation) the decision loop runs
// on. Fusion never fails: an empty or useless vote set produces the documented
// unknown-state defaults.
package fusion

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	velvetotel "github.com/Fayeq-qamar/velvet-app-sub002/internal/otel"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/signal"
)

var tracer = velvetotel.Tracer("github.com/Fayeq-qamar/velvet-app-sub002/internal/fusion")

// Source identifies which classifier produced a vote. Per-source weights are
// fixed for a given engine; the app/window source dominates because it is the
// least noisy.
type Source string

const (
	SourceApp     Source = "app"
	SourceContent Source = "content"
	SourceTime    Source = "time"
	SourceAudio   Source = "audio"
)

// SourceVote pairs a classifier result with its source.
type SourceVote struct {
	Source Source
	Result signal.Result
}

// State is the system's current belief. Exactly one State is current at a
// time; each analysis tick replaces it wholesale rather than mutating it.
type State struct {
	PrimaryLabel     string    `json:"primary_label"`
	Confidence       float64   `json:"confidence"`
	SubLabel         string    `json:"sub_label,omitempty"`
	SocialLoad       float64   `json:"social_load"`
	PressureLevel    float64   `json:"pressure_level"`
	ExpectationLevel float64   `json:"expectation_level"`
	Timestamp        time.Time `json:"timestamp"`
}

// Config carries the fusion policy tables. All values are tunable; the
// defaults are the reference constants.
type Config struct {
	Weights map[Source]float64

	// BaseLoad is the per-label social baseline before sub-context adjustment.
	BaseLoad map[string]float64
	// LoadAdjust is added to social load when the matching sub-label resolves.
	LoadAdjust map[string]float64
	// Multiplier scales social load into pressure per label.
	Multiplier map[string]float64
	// Expectation maps "label/sublabel" (and bare "label") to expectation level.
	Expectation map[string]float64

	// DefaultSocialLoad and DefaultExpectation are the fallbacks for the
	// unknown state and for labels missing from the tables.
	DefaultSocialLoad  float64
	DefaultExpectation float64
}

// DefaultConfig returns the reference fusion tables.
func DefaultConfig() Config {
	return Config{
		Weights: map[Source]float64{
			SourceApp:     0.5,
			SourceContent: 0.3,
			SourceTime:    0.2,
		},
		BaseLoad: map[string]float64{
			"work":   0.7,
			"school": 0.6,
			"social": 0.8,
			"public": 0.5,
			"home":   0.2,
		},
		LoadAdjust: map[string]float64{
			"meeting":      0.2,
			"presentation": 0.3,
			"exam":         0.2,
			"call":         0.1,
			"deep_focus":   -0.1,
		},
		Multiplier: map[string]float64{
			"work":   1.2,
			"school": 1.1,
			"public": 1.3,
			"social": 1.0,
			"home":   0.5,
		},
		Expectation: map[string]float64{
			"work":              0.7,
			"work/meeting":      0.9,
			"work/presentation": 0.95,
			"work/deep_focus":   0.5,
			"school":            0.65,
			"school/exam":       0.9,
			"social":            0.55,
			"social/call":       0.6,
			"public":            0.5,
			"home":              0.2,
		},
		DefaultSocialLoad:  0.3,
		DefaultExpectation: 0.5,
	}
}

// subLabelRules resolve a sub-label from evidence tags, checked in order so
// the more specific context wins.
var subLabelRules = []struct {
	label    string
	evidence string
	sub      string
}{
	{"work", "presentation", "presentation"},
	{"work", "standup", "meeting"},
	{"work", "meeting", "meeting"},
	{"work", "1:1", "meeting"},
	{"work", "interview", "meeting"},
	{"school", "exam", "exam"},
	{"school", "quiz", "exam"},
	{"social", "call", "call"},
	{"social", "audio:conversation", "call"},
}

// Engine fuses classifier votes into a State.
type Engine struct {
	cfg Config
}

// NewEngine creates a fusion engine from the given policy tables. Zero-value
// or partial configs fall back to the defaults table by table.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Weights == nil {
		cfg.Weights = def.Weights
	}
	if cfg.BaseLoad == nil {
		cfg.BaseLoad = def.BaseLoad
	}
	if cfg.LoadAdjust == nil {
		cfg.LoadAdjust = def.LoadAdjust
	}
	if cfg.Multiplier == nil {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.Expectation == nil {
		cfg.Expectation = def.Expectation
	}
	if cfg.DefaultSocialLoad == 0 {
		cfg.DefaultSocialLoad = def.DefaultSocialLoad
	}
	if cfg.DefaultExpectation == 0 {
		cfg.DefaultExpectation = def.DefaultExpectation
	}
	return &Engine{cfg: cfg}
}

// Fuse combines classifier votes and the time-of-day prior into one State.
// The time prior enters as a regular weighted vote over the label
// distribution rather than being baked into any classifier, and it only
// blends: an empty or all-unknown vote set fuses to the unknown state.
func (e *Engine) Fuse(ctx context.Context, votes []SourceVote, tc signal.TimeContext, now time.Time) State {
	_, span := tracer.Start(ctx, "fusion.fuse")
	defer span.End()

	scores := map[string]float64{}
	evidence := map[string][]string{}

	voted := 0
	for _, v := range votes {
		if v.Result.Label == signal.LabelUnknown || v.Result.Confidence <= 0 {
			continue
		}
		voted++
		// Evidence informs sub-label resolution even for zero-weight sources
		// (audio has no say in the environment ranking, but "audio:conversation"
		// still marks a call).
		evidence[v.Result.Label] = append(evidence[v.Result.Label], v.Result.Evidence...)
		w := e.cfg.Weights[v.Source]
		if w <= 0 {
			continue
		}
		scores[v.Result.Label] += w * v.Result.Confidence
	}

	// The clock is a prior, never an elector: with no real classifier vote
	// the belief stays unknown instead of guessing from time of day.
	if voted == 0 {
		return e.underflow(span, now)
	}

	for label, p := range signal.TimeDistribution(tc) {
		scores[label] += e.cfg.Weights[SourceTime] * p
	}

	primary, confidence := argmax(scores)
	if primary == "" || confidence <= 0 {
		return e.underflow(span, now)
	}
	if confidence > 1 {
		confidence = 1
	}

	sub := resolveSubLabel(primary, evidence[primary])
	load := clamp01(e.baseLoad(primary) + e.cfg.LoadAdjust[sub])
	pressure := clamp01(load * e.multiplier(primary) * timeFactor(tc))

	st := State{
		PrimaryLabel:     primary,
		Confidence:       confidence,
		SubLabel:         sub,
		SocialLoad:       load,
		PressureLevel:    pressure,
		ExpectationLevel: e.expectation(primary, sub),
		Timestamp:        now,
	}

	span.SetAttributes(
		attribute.String("fusion.label", st.PrimaryLabel),
		attribute.Float64("fusion.confidence", st.Confidence),
		attribute.Float64("fusion.pressure", st.PressureLevel),
	)
	return st
}

// underflow returns the documented unknown-state defaults.
func (e *Engine) underflow(span trace.Span, now time.Time) State {
	log.Warn().Msg("fusion_underflow")
	span.SetAttributes(attribute.Bool("fusion.underflow", true))
	return State{
		PrimaryLabel:     signal.LabelUnknown,
		Confidence:       0,
		SocialLoad:       e.cfg.DefaultSocialLoad,
		PressureLevel:    0,
		ExpectationLevel: e.cfg.DefaultExpectation,
		Timestamp:        now,
	}
}

// argmax picks the highest-scoring label; exact ties resolve to the
// lexicographically first label, which is arbitrary but deterministic.
func argmax(scores map[string]float64) (string, float64) {
	labels := make([]string, 0, len(scores))
	for l := range scores {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	best := ""
	bestScore := 0.0
	for _, l := range labels {
		if scores[l] > bestScore {
			best = l
			bestScore = scores[l]
		}
	}
	return best, bestScore
}

func resolveSubLabel(label string, evidence []string) string {
	for _, rule := range subLabelRules {
		if rule.label != label {
			continue
		}
		for _, tag := range evidence {
			if strings.Contains(tag, rule.evidence) {
				return rule.sub
			}
		}
	}
	return ""
}

func (e *Engine) baseLoad(label string) float64 {
	if v, ok := e.cfg.BaseLoad[label]; ok {
		return v
	}
	return e.cfg.DefaultSocialLoad
}

func (e *Engine) multiplier(label string) float64 {
	if v, ok := e.cfg.Multiplier[label]; ok {
		return v
	}
	return 1.0
}

func (e *Engine) expectation(label, sub string) float64 {
	if sub != "" {
		if v, ok := e.cfg.Expectation[label+"/"+sub]; ok {
			return v
		}
	}
	if v, ok := e.cfg.Expectation[label]; ok {
		return v
	}
	return e.cfg.DefaultExpectation
}

// timeFactor scales pressure by time-of-day category: Monday-morning bump,
// evening wind-down discount.
func timeFactor(tc signal.TimeContext) float64 {
	if tc.DayOfWeek == time.Monday && tc.Hour >= 7 && tc.Hour < 12 {
		return 1.15
	}
	if tc.Hour >= 20 || tc.Hour < 6 {
		return 0.85
	}
	return 1.0
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
