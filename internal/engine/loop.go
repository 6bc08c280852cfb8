package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Fayeq-qamar/velvet-app-sub002/internal/detect"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/feature"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/fusion"
	velvetotel "github.com/Fayeq-qamar/velvet-app-sub002/internal/otel"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/signal"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/tracker"
)

var tracer = velvetotel.Tracer("github.com/Fayeq-qamar/velvet-app-sub002/internal/engine")

// Config carries the analysis loop's cadence. Observations older than
// MaxSignalAge at tick time are excluded from fusion.
type Config struct {
	Interval     time.Duration // default 15s
	MaxSignalAge time.Duration // default 2×Interval
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Second
	}
	if c.MaxSignalAge <= 0 {
		c.MaxSignalAge = 2 * c.Interval
	}
}

// Loop runs the environment-analysis cycle. Within a tick the stages run
// strictly in order; overlapping ticks are skipped and dropped.
type Loop struct {
	cfg        Config
	inbox      *Inbox
	classifier *signal.Classifier
	fuser      *fusion.Engine
	tracker    *tracker.Tracker
	store      *feature.Store
	detectors  []detect.Detector
	clock      signal.Clock

	busy atomic.Bool
}

// NewLoop wires an analysis loop. clock may be nil for the system clock.
func NewLoop(cfg Config, inbox *Inbox, classifier *signal.Classifier, fuser *fusion.Engine, trk *tracker.Tracker, store *feature.Store, detectors []detect.Detector, clock signal.Clock) *Loop {
	cfg.applyDefaults()
	if clock == nil {
		clock = signal.SystemClock{}
	}
	return &Loop{
		cfg:        cfg,
		inbox:      inbox,
		classifier: classifier,
		fuser:      fuser,
		tracker:    trk,
		store:      store,
		detectors:  detectors,
		clock:      clock,
	}
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick runs one classify→fuse→track→coordinate cycle and returns the fused
// state. Safe to call directly in tests.
func (l *Loop) Tick(ctx context.Context) *fusion.State {
	if !l.busy.CompareAndSwap(false, true) {
		log.Debug().Msg("analysis_tick_skipped_busy")
		return nil
	}
	defer l.busy.Store(false)

	ctx, span := tracer.Start(ctx, "engine.tick")
	defer span.End()

	now := l.clock.Now()
	obs := l.inbox.Snapshot(now, l.cfg.MaxSignalAge)
	tc := signal.TimeContextAt(now)

	var votes []fusion.SourceVote
	if obs.HasWindow {
		votes = append(votes, fusion.SourceVote{Source: fusion.SourceApp, Result: l.classifier.ClassifyWindow(obs.Window)})
	}
	if obs.HasScreen {
		votes = append(votes, fusion.SourceVote{Source: fusion.SourceContent, Result: l.classifier.ClassifyContent(obs.Screen)})
	}
	if obs.HasAudio {
		votes = append(votes, fusion.SourceVote{Source: fusion.SourceAudio, Result: l.classifier.ClassifyAudio(obs.Audio)})
	}

	st := l.fuser.Fuse(ctx, votes, tc, now)
	l.tracker.Update(ctx, st)

	for _, d := range l.detectors {
		detection := d.Detect(st, obs.Screen)
		if detection == nil {
			continue
		}
		l.store.Report(*detection)
		log.Debug().
			Str("feature", detection.Feature).
			Str("type", detection.Type).
			Str("severity", detection.Severity).
			Func(velvetotel.LogTraceFields(ctx)).
			Msg("pattern_detected")
	}

	for _, ix := range l.store.DeriveAll() {
		log.Debug().
			Str("interaction", ix.Name).
			Str("feature_a", ix.FeatureA).
			Str("feature_b", ix.FeatureB).
			Msg("interaction_derived")
	}

	// The clock always contributes, so it is always listed as a source.
	sources := append(obs.Kinds(), signal.KindTime)
	sourceNames := make([]string, len(sources))
	for i, k := range sources {
		sourceNames[i] = string(k)
	}
	span.SetAttributes(
		attribute.String("engine.label", st.PrimaryLabel),
		attribute.Float64("engine.confidence", st.Confidence),
		attribute.Int("engine.votes", len(votes)),
		attribute.StringSlice("engine.sources", sourceNames),
	)
	return &st
}
