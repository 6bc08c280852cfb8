// Package config holds operator-level configuration for a Velvet core process.
//
// Every numeric policy value the fusion pipeline uses (classifier weights,
// fusion source weights, environment multipliers, thresholds, tick cadences,
// the EMA alpha) is exposed here as a tunable rather than baked into logic.
// The shipped defaults match the product's reference behavior; operators can
// override any of them via env vars (VELVET_*) or velvet.config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the VELVET_ prefix
// (e.g. "priority_floor" → VELVET_PRIORITY_FLOOR) and to a YAML field
// in velvet.config.yaml.
const (
	KeyDataDir          = "data_dir"
	KeyRulesFile        = "rules_file"
	KeyInteractionsFile = "interactions_file"
	KeyHTTPAddr         = "http_addr"

	KeyWeightApp     = "classifier_weight_app"
	KeyWeightTitle   = "classifier_weight_title"
	KeyWeightKeyword = "classifier_weight_keyword"
	KeyMinScore      = "classifier_min_score"

	KeyFusionWeightApp     = "fusion_weight_app"
	KeyFusionWeightContent = "fusion_weight_content"
	KeyFusionWeightTime    = "fusion_weight_time"

	KeyPressureDelta    = "pressure_delta_threshold"
	KeyHighPressure     = "high_pressure_threshold"
	KeyPressureCooldown = "pressure_cooldown"
	KeyHysteresisTicks  = "hysteresis_ticks"

	KeyEnvironmentInterval = "environment_interval"
	KeyDecisionInterval    = "decision_interval"
	KeyExecTimeout         = "exec_timeout"
	KeyPriorityFloor       = "priority_floor"
	KeyActionsPerMinute    = "actions_per_minute"
	KeyActionBurst         = "action_burst"
	KeyDetectionTTL        = "detection_ttl"

	KeyBaselineAlpha = "baseline_alpha"
	KeySnapshotCron  = "snapshot_cron"
)

// Defaults mirror the reference constants from the decision/fusion design.
const (
	DefaultHTTPAddr            = "127.0.0.1:7317"
	DefaultWeightApp           = 0.8
	DefaultWeightTitle         = 0.6
	DefaultWeightKeyword       = 0.3
	DefaultMinScore            = 0.15
	DefaultFusionWeightApp     = 0.5
	DefaultFusionWeightContent = 0.3
	DefaultFusionWeightTime    = 0.2
	DefaultPressureDelta       = 0.3
	DefaultHighPressure        = 0.7
	DefaultPressureCooldown    = 60 * time.Second
	DefaultHysteresisTicks     = 2
	DefaultEnvironmentInterval = 15 * time.Second
	DefaultDecisionInterval    = 3 * time.Second
	DefaultExecTimeout         = 200 * time.Millisecond
	DefaultPriorityFloor       = 0.3
	DefaultActionsPerMinute    = 6
	DefaultActionBurst         = 2
	DefaultDetectionTTL        = 30 * time.Second
	DefaultBaselineAlpha       = 0.1
	DefaultSnapshotCron        = "0 * * * *"
)

// Config holds resolved configuration for a Velvet core process.
type Config struct {
	DataDir          string // base directory for all state (~/.velvet)
	RulesFile        string // optional environment rules override file
	InteractionsFile string // optional interaction rules override file
	HTTPAddr         string // introspection API listen address

	WeightApp     float64 // classifier: score per app-name hit
	WeightTitle   float64 // classifier: score per title-substring hit
	WeightKeyword float64 // classifier: score per content-keyword hit
	MinScore      float64 // classifier: floor below which a signal is unknown

	FusionWeightApp     float64
	FusionWeightContent float64
	FusionWeightTime    float64

	PressureDelta    float64       // tracker: pressure delta that counts as a transition
	HighPressure     float64       // tracker: high-pressure side-signal threshold
	PressureCooldown time.Duration // tracker: min gap between high-pressure signals
	HysteresisTicks  int           // tracker: consecutive ticks required before a label change fires

	EnvironmentInterval time.Duration // classify→fuse→track cadence
	DecisionInterval    time.Duration // decision loop cadence
	ExecTimeout         time.Duration // per-action executor budget
	PriorityFloor       float64       // candidates below this never execute
	ActionsPerMinute    int           // rate limit on executed interventions
	ActionBurst         int
	DetectionTTL        time.Duration // detections older than this stop proposing actions

	BaselineAlpha float64 // EMA alpha for profile baselines and learning
	SnapshotCron  string  // cron spec for baseline persistence flushes
}

// BaselineDBPath returns the full path to the baseline SQLite database.
func (c *Config) BaselineDBPath() string {
	return filepath.Join(c.DataDir, "baselines.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

func init() {
	viper.SetEnvPrefix("VELVET")
	viper.AutomaticEnv()
	viper.SetDefault(KeyHTTPAddr, DefaultHTTPAddr)
	viper.SetDefault(KeyWeightApp, DefaultWeightApp)
	viper.SetDefault(KeyWeightTitle, DefaultWeightTitle)
	viper.SetDefault(KeyWeightKeyword, DefaultWeightKeyword)
	viper.SetDefault(KeyMinScore, DefaultMinScore)
	viper.SetDefault(KeyFusionWeightApp, DefaultFusionWeightApp)
	viper.SetDefault(KeyFusionWeightContent, DefaultFusionWeightContent)
	viper.SetDefault(KeyFusionWeightTime, DefaultFusionWeightTime)
	viper.SetDefault(KeyPressureDelta, DefaultPressureDelta)
	viper.SetDefault(KeyHighPressure, DefaultHighPressure)
	viper.SetDefault(KeyPressureCooldown, DefaultPressureCooldown)
	viper.SetDefault(KeyHysteresisTicks, DefaultHysteresisTicks)
	viper.SetDefault(KeyEnvironmentInterval, DefaultEnvironmentInterval)
	viper.SetDefault(KeyDecisionInterval, DefaultDecisionInterval)
	viper.SetDefault(KeyExecTimeout, DefaultExecTimeout)
	viper.SetDefault(KeyPriorityFloor, DefaultPriorityFloor)
	viper.SetDefault(KeyActionsPerMinute, DefaultActionsPerMinute)
	viper.SetDefault(KeyActionBurst, DefaultActionBurst)
	viper.SetDefault(KeyDetectionTTL, DefaultDetectionTTL)
	viper.SetDefault(KeyBaselineAlpha, DefaultBaselineAlpha)
	viper.SetDefault(KeySnapshotCron, DefaultSnapshotCron)
}

// Load reads configuration from Viper (which merges env vars, config file,
// and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:          resolveDataDir(),
		RulesFile:        viper.GetString(KeyRulesFile),
		InteractionsFile: viper.GetString(KeyInteractionsFile),
		HTTPAddr:         viper.GetString(KeyHTTPAddr),

		WeightApp:     viper.GetFloat64(KeyWeightApp),
		WeightTitle:   viper.GetFloat64(KeyWeightTitle),
		WeightKeyword: viper.GetFloat64(KeyWeightKeyword),
		MinScore:      viper.GetFloat64(KeyMinScore),

		FusionWeightApp:     viper.GetFloat64(KeyFusionWeightApp),
		FusionWeightContent: viper.GetFloat64(KeyFusionWeightContent),
		FusionWeightTime:    viper.GetFloat64(KeyFusionWeightTime),

		PressureDelta:    viper.GetFloat64(KeyPressureDelta),
		HighPressure:     viper.GetFloat64(KeyHighPressure),
		PressureCooldown: viper.GetDuration(KeyPressureCooldown),
		HysteresisTicks:  viper.GetInt(KeyHysteresisTicks),

		EnvironmentInterval: viper.GetDuration(KeyEnvironmentInterval),
		DecisionInterval:    viper.GetDuration(KeyDecisionInterval),
		ExecTimeout:         viper.GetDuration(KeyExecTimeout),
		PriorityFloor:       viper.GetFloat64(KeyPriorityFloor),
		ActionsPerMinute:    viper.GetInt(KeyActionsPerMinute),
		ActionBurst:         viper.GetInt(KeyActionBurst),
		DetectionTTL:        viper.GetDuration(KeyDetectionTTL),

		BaselineAlpha: viper.GetFloat64(KeyBaselineAlpha),
		SnapshotCron:  viper.GetString(KeySnapshotCron),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".velvet"
	}
	return filepath.Join(home, ".velvet")
}

func (c *Config) validate() error {
	for _, w := range []struct {
		name  string
		value float64
	}{
		{KeyWeightApp, c.WeightApp},
		{KeyWeightTitle, c.WeightTitle},
		{KeyWeightKeyword, c.WeightKeyword},
		{KeyMinScore, c.MinScore},
		{KeyFusionWeightApp, c.FusionWeightApp},
		{KeyFusionWeightContent, c.FusionWeightContent},
		{KeyFusionWeightTime, c.FusionWeightTime},
		{KeyPressureDelta, c.PressureDelta},
		{KeyHighPressure, c.HighPressure},
		{KeyPriorityFloor, c.PriorityFloor},
	} {
		if w.value < 0 || w.value > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", w.name, w.value)
		}
	}
	if c.BaselineAlpha <= 0 || c.BaselineAlpha >= 1 {
		return fmt.Errorf("baseline_alpha must be in (0,1), got %v", c.BaselineAlpha)
	}
	if c.HysteresisTicks < 1 {
		return fmt.Errorf("hysteresis_ticks must be at least 1, got %d", c.HysteresisTicks)
	}
	if c.EnvironmentInterval <= 0 || c.DecisionInterval <= 0 {
		return fmt.Errorf("tick intervals must be positive")
	}
	if c.ExecTimeout <= 0 {
		return fmt.Errorf("exec_timeout must be positive")
	}
	if c.DetectionTTL <= 0 {
		return fmt.Errorf("detection_ttl must be positive")
	}
	if c.ActionsPerMinute < 1 || c.ActionBurst < 1 {
		return fmt.Errorf("actions_per_minute and action_burst must be at least 1")
	}
	return nil
}
