package signal

import (
	"sort"
	"strings"
	"time"
)

// Weights are the additive scores contributed by each kind of rule hit.
// Scores accumulate per label and are clamped to 1.0; a label must clear
// MinScore or the classifier votes unknown.
type Weights struct {
	App      float64 // per app-name match
	Title    float64 // per window-title substring match
	Keyword  float64 // per content-keyword match
	MinScore float64
}

// DefaultWeights returns the reference scoring weights.
func DefaultWeights() Weights {
	return Weights{App: 0.8, Title: 0.6, Keyword: 0.3, MinScore: 0.15}
}

// Classifier scores raw signals against per-label rule tables.
type Classifier struct {
	rules   []EnvironmentRules
	weights Weights
}

// NewClassifier builds a classifier from a rule file and scoring weights.
func NewClassifier(rf *RuleFile, weights Weights) *Classifier {
	var rules []EnvironmentRules
	if rf != nil {
		rules = rf.Environments
	}
	return &Classifier{rules: rules, weights: weights}
}

// ClassifyWindow scores window/application metadata. App-name matches weigh
// more than title substrings: the foreground app is the strongest single
// indicator of environment the desktop exposes.
func (c *Classifier) ClassifyWindow(w WindowInfo) Result {
	app := strings.ToLower(strings.TrimSpace(w.AppName))
	title := strings.ToLower(strings.TrimSpace(w.WindowTitle))
	if app == "" && title == "" {
		return Unknown()
	}

	scores := map[string]float64{}
	evidence := map[string][]string{}
	for _, env := range c.rules {
		for _, name := range env.AppNames {
			if name != "" && strings.Contains(app, strings.ToLower(name)) {
				scores[env.Label] += c.weights.App
				evidence[env.Label] = append(evidence[env.Label], "app:"+strings.ToLower(name))
			}
		}
		for _, sub := range env.TitleSubstrings {
			if sub != "" && strings.Contains(title, strings.ToLower(sub)) {
				scores[env.Label] += c.weights.Title
				evidence[env.Label] = append(evidence[env.Label], "title:"+strings.ToLower(sub))
			}
		}
	}
	return c.pick(scores, evidence)
}

// ClassifyContent scores OCR screen text by content-keyword hits, scaled by
// the OCR engine's own confidence so garbage captures vote weakly.
func (c *Classifier) ClassifyContent(t ScreenText) Result {
	text := strings.ToLower(t.Text)
	if strings.TrimSpace(text) == "" {
		return Unknown()
	}
	ocrConf := t.Confidence
	if ocrConf <= 0 || ocrConf > 1 {
		ocrConf = 1
	}

	scores := map[string]float64{}
	evidence := map[string][]string{}
	for _, env := range c.rules {
		for _, kw := range env.ContentKeywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				scores[env.Label] += c.weights.Keyword * ocrConf
				evidence[env.Label] = append(evidence[env.Label], "content:"+strings.ToLower(kw))
			}
		}
	}
	return c.pick(scores, evidence)
}

// audioLabelMap maps audio environment types to the label they most suggest.
var audioLabelMap = map[string]string{
	"conversation": "social",
	"crowd":        "public",
	"music":        "home",
	"tv":           "home",
	"silence":      "home",
	"keyboard":     "work",
}

// ClassifyAudio maps the external audio classification onto an environment
// vote, passing the collaborator's confidence through.
func (c *Classifier) ClassifyAudio(a AudioContext) Result {
	label, ok := audioLabelMap[strings.ToLower(strings.TrimSpace(a.PrimaryType))]
	if !ok || a.Confidence <= 0 {
		return Unknown()
	}
	conf := a.Confidence
	if conf > 1 {
		conf = 1
	}
	return Result{
		Label:      label,
		Confidence: conf,
		Evidence:   []string{"audio:" + strings.ToLower(a.PrimaryType)},
	}
}

// pick selects the highest-scoring label, clamped to 1.0 and floored at
// MinScore. Exact ties resolve to the lexicographically first label so
// classification is deterministic.
func (c *Classifier) pick(scores map[string]float64, evidence map[string][]string) Result {
	best := ""
	bestScore := 0.0
	labels := make([]string, 0, len(scores))
	for label := range scores {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		if scores[label] > bestScore {
			best = label
			bestScore = scores[label]
		}
	}
	if best == "" || bestScore < c.weights.MinScore {
		return Unknown()
	}
	if bestScore > 1 {
		bestScore = 1
	}
	return Result{Label: best, Confidence: bestScore, Evidence: evidence[best]}
}

// TimeDistribution returns a probability distribution over environment labels
// implied by time-of-day alone. It is blended in at fusion time rather than
// inside any classifier: the clock doesn't observe anything, it only sets
// priors.
func TimeDistribution(tc TimeContext) map[string]float64 {
	switch {
	case tc.Hour >= 22 || tc.Hour < 7:
		return map[string]float64{"home": 0.95}
	case tc.IsWeekend && tc.Hour >= 10 && tc.Hour < 22:
		return map[string]float64{"home": 0.55, "social": 0.25, "public": 0.1}
	case tc.IsWeekend:
		return map[string]float64{"home": 0.85}
	case tc.Hour >= 9 && tc.Hour < 18:
		return map[string]float64{"work": 0.9}
	case tc.Hour >= 18 && tc.Hour < 22:
		return map[string]float64{"home": 0.9}
	default:
		// Weekday early morning: likely home, getting ready.
		return map[string]float64{"home": 0.8}
	}
}

// Clock abstracts wall-clock access so the analysis loops are testable with
// frozen time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }
