package decision

import (
	"sync"

	"github.com/Fayeq-qamar/velvet-app-sub002/internal/fusion"
)

// Learner tracks how well each action type has worked in each context
// signature via the same EMA used for profile baselines, and nudges future
// candidate priorities accordingly. The adjustment is deliberately small:
// learning tunes the policy, it never overrides the precedence order.
type Learner struct {
	mu      sync.Mutex
	alpha   float64
	weights map[string]float64 // signature+action → success rate in [0,1]

	// MaxAdjust bounds the priority nudge in either direction.
	maxAdjust float64
}

// NewLearner creates a learner with the given EMA alpha.
func NewLearner(alpha float64) *Learner {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.1
	}
	return &Learner{
		alpha:     alpha,
		weights:   make(map[string]float64),
		maxAdjust: 0.1,
	}
}

// signature collapses a fused state and source into a coarse context key.
// Coarse on purpose: per-exact-state keys would never repeat.
func signature(st fusion.State, source string, action ActionType) string {
	return st.PrimaryLabel + "/" + st.SubLabel + "/" + source + "/" + string(action)
}

// Record folds an execution outcome into the association weight:
// success counts as sample 1, failure as 0.
func (l *Learner) Record(st fusion.State, c Candidate, success bool) {
	sample := 0.0
	if success {
		sample = 1.0
	}
	key := signature(st, c.Source, c.Action)

	l.mu.Lock()
	defer l.mu.Unlock()
	old, ok := l.weights[key]
	if !ok {
		l.weights[key] = sample
		return
	}
	l.weights[key] = (1-l.alpha)*old + l.alpha*sample
}

// Adjust returns the candidate's priority shifted by the learned association:
// a 0.5 success rate is neutral, 1.0 adds maxAdjust, 0.0 subtracts it.
// Unseen signatures are neutral.
func (l *Learner) Adjust(st fusion.State, c Candidate) float64 {
	l.mu.Lock()
	w, ok := l.weights[signature(st, c.Source, c.Action)]
	l.mu.Unlock()
	if !ok {
		return c.Priority
	}
	adjusted := c.Priority + (w-0.5)*2*l.maxAdjust
	if adjusted < 0 {
		return 0
	}
	if adjusted > 1 {
		return 1
	}
	return adjusted
}
