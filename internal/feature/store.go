// Package feature implements the cross-feature coordinator: one shared,
// mutex-serialized store that the social, executive, and masking detectors
// write into and read from, plus the declarative interaction rules that let
// one detector's output raise or lower another's derived scores. The store is
// advisory context, not a ledger: writes are last-writer-wins and never block.
package feature

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Fayeq-qamar/velvet-app-sub002/rules"
)

// Feature names used across the pipeline.
const (
	FeatureSocial    = "social"
	FeatureExecutive = "executive"
	FeatureMasking   = "masking"
	FeatureGeneral   = "general"
)

// Detection is a feature-specific pattern detection written into the store.
type Detection struct {
	Feature    string            `json:"feature"`
	Type       string            `json:"type"`
	Confidence float64           `json:"confidence"`
	Severity   string            `json:"severity"` // low, moderate, high, crisis
	Context    map[string]string `json:"context,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`

	// Flags are merged into the feature's shared state on Report so
	// interaction rules can condition on them (e.g. crisis_level, active).
	Flags map[string]any `json:"-"`
}

// Interaction records one derived cross-feature effect.
type Interaction struct {
	Name      string    `json:"name"`
	FeatureA  string    `json:"feature_a"`
	FeatureB  string    `json:"feature_b"`
	Timestamp time.Time `json:"timestamp"`
}

// InteractionFile is the YAML structure for interaction rules.
type InteractionFile struct {
	Interactions []InteractionRule `yaml:"interactions"`
}

// InteractionRule is one declarative pairwise rule: when both conditions hold,
// the effect is applied. Rules are data so new feature pairs are new YAML
// entries, not new control flow.
type InteractionRule struct {
	Name   string    `yaml:"name"`
	When   Condition `yaml:"when"`
	And    Condition `yaml:"and"`
	Effect Effect    `yaml:"effect"`
}

// Condition matches a single field of a feature's state.
type Condition struct {
	Feature string  `yaml:"feature"`
	Field   string  `yaml:"field"`
	Equals  string  `yaml:"equals,omitempty"`
	AtLeast float64 `yaml:"at_least,omitempty"`
}

// Effect adds a value to a numeric field of a feature's state.
type Effect struct {
	Feature string  `yaml:"feature"`
	Field   string  `yaml:"field"`
	Add     float64 `yaml:"add"`
}

// ParseInteractions parses interaction rules YAML.
func ParseInteractions(content []byte) (*InteractionFile, error) {
	var f InteractionFile
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("parsing interaction rules YAML: %w", err)
	}
	for i, r := range f.Interactions {
		if r.Name == "" {
			return nil, fmt.Errorf("interaction rule %d has no name", i)
		}
		if r.When.Feature == "" || r.Effect.Feature == "" {
			return nil, fmt.Errorf("interaction rule %q missing feature references", r.Name)
		}
	}
	return &f, nil
}

// LoadInteractions returns the embedded default rules, or the override file
// when path is non-empty.
func LoadInteractions(path string) (*InteractionFile, error) {
	if path == "" {
		return ParseInteractions(rules.InteractionsYAML())
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading interaction rules %s: %w", path, err)
	}
	f, err := ParseInteractions(content)
	if err != nil {
		return nil, fmt.Errorf("interaction rules %s: %w", path, err)
	}
	return f, nil
}

// Store is the shared cross-feature state store.
type Store struct {
	mu         sync.Mutex
	states     map[string]map[string]any
	detections map[string]Detection
	rules      []InteractionRule
	applied    map[string]Effect // rule name → effect currently folded into states
	clock      func() time.Time
}

// NewStore creates a store with the given interaction rules. clock may be nil
// for wall-clock time.
func NewStore(rules []InteractionRule, clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		states:     make(map[string]map[string]any),
		detections: make(map[string]Detection),
		rules:      rules,
		applied:    make(map[string]Effect),
		clock:      clock,
	}
}

// Write merges partialState into the named feature's state. Existing fields
// not named in partialState survive; named fields are overwritten
// (last-writer-wins, no versioning).
func (s *Store) Write(feature string, partialState map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[feature]
	if !ok {
		st = make(map[string]any)
		s.states[feature] = st
	}
	for k, v := range partialState {
		st[k] = v
	}
}

// Read returns a copy of the named feature's state.
func (s *Store) Read(feature string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[feature]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(st))
	for k, v := range st {
		out[k] = v
	}
	return out, true
}

// Report records a feature's latest pattern detection and mirrors its
// headline fields into the shared state so interaction rules can see them.
func (s *Store) Report(d Detection) {
	if d.Timestamp.IsZero() {
		d.Timestamp = s.clock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detections[d.Feature] = d
	st, ok := s.states[d.Feature]
	if !ok {
		st = make(map[string]any)
		s.states[d.Feature] = st
	}
	st["last_detection"] = d.Type
	st["confidence"] = d.Confidence
	st["severity"] = d.Severity
	for k, v := range d.Flags {
		st[k] = v
	}
}

// Detections returns the latest detection per feature.
func (s *Store) Detections() map[string]Detection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Detection, len(s.detections))
	for k, v := range s.detections {
		out[k] = v
	}
	return out
}

// DeriveInteraction evaluates the rules connecting featureA and featureB
// (in that order), applies the first matching rule's effect, and returns the
// interaction record. Returns nil when no rule matches. A rule that already
// holds contributes its delta once, not once per evaluation.
func (s *Store) DeriveInteraction(featureA, featureB string) *Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.When.Feature != featureA || r.And.Feature != featureB {
			continue
		}
		if !s.matches(r.When) || !s.matches(r.And) {
			continue
		}
		s.applyRule(r)
		return &Interaction{
			Name:      r.Name,
			FeatureA:  featureA,
			FeatureB:  featureB,
			Timestamp: s.clock(),
		}
	}
	return nil
}

// DeriveAll evaluates every rule once and returns the interactions that
// currently hold. Called once per coordination tick. Effects track the rule:
// a rule that keeps holding keeps exactly one delta applied, and a rule whose
// conditions stop holding has its delta withdrawn.
func (s *Store) DeriveAll() []Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Interaction
	for _, r := range s.rules {
		if !s.matches(r.When) || !s.matches(r.And) {
			s.retract(r.Name)
			continue
		}
		s.applyRule(r)
		out = append(out, Interaction{
			Name:      r.Name,
			FeatureA:  r.When.Feature,
			FeatureB:  r.And.Feature,
			Timestamp: s.clock(),
		})
	}
	return out
}

// matches checks a condition against the store. Caller holds the lock.
func (s *Store) matches(c Condition) bool {
	st, ok := s.states[c.Feature]
	if !ok {
		return false
	}
	v, ok := st[c.Field]
	if !ok {
		return false
	}
	if c.Equals != "" {
		return fmt.Sprint(v) == c.Equals
	}
	if c.AtLeast > 0 {
		return toFloat(v) >= c.AtLeast
	}
	return false
}

// applyRule folds the rule's effect into the state, first withdrawing any
// delta the same rule applied on an earlier pass. Caller holds the lock.
func (s *Store) applyRule(r InteractionRule) {
	s.retract(r.Name)
	s.apply(r.Effect)
	s.applied[r.Name] = r.Effect
}

// retract withdraws the delta a rule previously applied, if any. Caller holds
// the lock.
func (s *Store) retract(name string) {
	e, ok := s.applied[name]
	if !ok {
		return
	}
	if st, ok := s.states[e.Feature]; ok {
		st[e.Field] = toFloat(st[e.Field]) - e.Add
	}
	delete(s.applied, name)
}

// apply adds the effect value to a numeric field. Caller holds the lock.
func (s *Store) apply(e Effect) {
	st, ok := s.states[e.Feature]
	if !ok {
		st = make(map[string]any)
		s.states[e.Feature] = st
	}
	st[e.Field] = toFloat(st[e.Field]) + e.Add
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
