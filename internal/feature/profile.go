package feature

import (
	"sync"
	"time"
)

// BaselineRecord is the write-mostly persistence boundary shape: aggregated
// numeric baselines only, never raw content.
type BaselineRecord struct {
	Feature         string    `json:"feature"`
	Metric          string    `json:"metric"`
	Baseline        float64   `json:"baseline"`
	Current         float64   `json:"current"`
	ImprovementRate float64   `json:"improvement_rate"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type baseline struct {
	feature  string
	value    float64
	current  float64
	previous float64
	seeded   bool
	updated  time.Time
}

// Profile owns slowly-adapting scalar baselines (typical formality, response
// latency, pitch) updated by exponential moving average. Baselines persist
// for the life of the process; serialization happens externally through
// Snapshot.
type Profile struct {
	mu        sync.Mutex
	alpha     float64
	baselines map[string]*baseline
	clock     func() time.Time
}

// NewProfile creates a profile with the given EMA alpha in (0,1). clock may
// be nil for wall-clock time.
func NewProfile(alpha float64, clock func() time.Time) *Profile {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.1
	}
	if clock == nil {
		clock = time.Now
	}
	return &Profile{
		alpha:     alpha,
		baselines: make(map[string]*baseline),
		clock:     clock,
	}
}

// Update folds a sample into the named metric's baseline:
// new = (1-alpha)*old + alpha*sample. The first sample seeds the baseline
// directly. Returns the updated baseline value.
func (p *Profile) Update(feature, metric string, sample float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := feature + "/" + metric
	b, ok := p.baselines[key]
	if !ok {
		b = &baseline{feature: feature}
		p.baselines[key] = b
	}
	b.previous = b.value
	if !b.seeded {
		b.value = sample
		b.seeded = true
	} else {
		b.value = (1-p.alpha)*b.value + p.alpha*sample
	}
	b.current = sample
	b.updated = p.clock()
	return b.value
}

// Baseline returns the current baseline for a metric, or false when the
// metric has never been sampled.
func (p *Profile) Baseline(feature, metric string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.baselines[feature+"/"+metric]
	if !ok || !b.seeded {
		return 0, false
	}
	return b.value, true
}

// Snapshot returns baseline records for every tracked metric, ready for the
// persistence boundary. ImprovementRate is the per-update relative movement
// of the baseline.
func (p *Profile) Snapshot() []BaselineRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]BaselineRecord, 0, len(p.baselines))
	for key, b := range p.baselines {
		if !b.seeded {
			continue
		}
		metric := key[len(b.feature)+1:]
		rate := 0.0
		if b.previous != 0 {
			rate = (b.value - b.previous) / b.previous
		}
		out = append(out, BaselineRecord{
			Feature:         b.feature,
			Metric:          metric,
			Baseline:        b.value,
			Current:         b.current,
			ImprovementRate: rate,
			UpdatedAt:       b.updated,
		})
	}
	return out
}
