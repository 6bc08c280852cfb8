package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Fayeq-qamar/velvet-app-sub002/internal/config"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/decision"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/detect"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/engine"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/feature"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/fusion"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/schedule"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/server"
	velvetsignal "github.com/Fayeq-qamar/velvet-app-sub002/internal/signal"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/store"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/tracker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fusion core (analysis, decision, HTTP boundary)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.EnsureDataDir(); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		return runCore(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runCore assembles the pipeline with explicit dependency injection and runs
// it until the context is cancelled. No component is reachable through a
// global; everything is constructed here and passed down.
func runCore(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ruleFile, err := velvetsignal.LoadRules(cfg.RulesFile)
	if err != nil {
		return err
	}
	interactions, err := feature.LoadInteractions(cfg.InteractionsFile)
	if err != nil {
		return err
	}

	classifier := velvetsignal.NewClassifier(ruleFile, velvetsignal.Weights{
		App:      cfg.WeightApp,
		Title:    cfg.WeightTitle,
		Keyword:  cfg.WeightKeyword,
		MinScore: cfg.MinScore,
	})

	fusionCfg := fusion.DefaultConfig()
	fusionCfg.Weights = map[fusion.Source]float64{
		fusion.SourceApp:     cfg.FusionWeightApp,
		fusion.SourceContent: cfg.FusionWeightContent,
		fusion.SourceTime:    cfg.FusionWeightTime,
	}
	fuser := fusion.NewEngine(fusionCfg)

	trk := tracker.New(tracker.Config{
		PressureDelta:    cfg.PressureDelta,
		HighPressure:     cfg.HighPressure,
		PressureCooldown: cfg.PressureCooldown,
		HysteresisTicks:  cfg.HysteresisTicks,
	})
	trk.OnTransition(func(ev tracker.TransitionEvent) {
		log.Info().
			Str("kind", string(ev.Kind)).
			Str("from", ev.FromLabel).
			Str("to", ev.ToLabel).
			Float64("delta", ev.Delta).
			Msg("state_transition")
	})
	trk.OnPressureAlert(func(st fusion.State) {
		log.Info().
			Str("label", st.PrimaryLabel).
			Float64("pressure", st.PressureLevel).
			Msg("high_pressure")
	})

	featureStore := feature.NewStore(interactions.Interactions, nil)
	profile := feature.NewProfile(cfg.BaselineAlpha, nil)

	detectors := []detect.Detector{
		detect.Social{},
		detect.Executive{},
		detect.Masking{Profile: profile},
	}

	inbox := engine.NewInbox()
	analysis := engine.NewLoop(
		engine.Config{Interval: cfg.EnvironmentInterval},
		inbox, classifier, fuser, trk, featureStore, detectors, nil,
	)

	registry := decision.NewRegistry()
	decision.RegisterDefaults(registry)
	loop := decision.NewLoop(decision.Config{
		Interval:         cfg.DecisionInterval,
		ExecTimeout:      cfg.ExecTimeout,
		PriorityFloor:    cfg.PriorityFloor,
		ActionsPerMinute: cfg.ActionsPerMinute,
		ActionBurst:      cfg.ActionBurst,
		DetectionTTL:     cfg.DetectionTTL,
	}, trk, featureStore, registry, decision.NewLearner(cfg.BaselineAlpha))

	baselineStore, err := store.New(cfg.BaselineDBPath())
	if err != nil {
		return err
	}
	defer baselineStore.Close()

	sched := schedule.New(profile, baselineStore)
	if err := sched.RegisterBaselineFlush(cfg.SnapshotCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(cfg.HTTPAddr, inbox, trk, featureStore, loop, baselineStore)
	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Start() }()

	go analysis.Run(ctx)
	go loop.Run(ctx)

	log.Info().
		Str("http_addr", cfg.HTTPAddr).
		Dur("environment_interval", cfg.EnvironmentInterval).
		Dur("decision_interval", cfg.DecisionInterval).
		Msg("velvet_core_started")

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http_shutdown_incomplete")
	}

	// Final baseline flush so a clean shutdown never loses learning.
	if err := baselineStore.Flush(shutdownCtx, profile.Snapshot()); err != nil {
		log.Warn().Err(err).Msg("final_baseline_flush_failed")
	}

	log.Info().Msg("velvet_core_stopped")
	return nil
}
