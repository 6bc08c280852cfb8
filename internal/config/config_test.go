package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, DefaultWeightApp, cfg.WeightApp)
	assert.Equal(t, DefaultWeightTitle, cfg.WeightTitle)
	assert.Equal(t, DefaultWeightKeyword, cfg.WeightKeyword)
	assert.Equal(t, DefaultMinScore, cfg.MinScore)
	assert.Equal(t, DefaultFusionWeightApp, cfg.FusionWeightApp)
	assert.Equal(t, DefaultPressureDelta, cfg.PressureDelta)
	assert.Equal(t, DefaultHighPressure, cfg.HighPressure)
	assert.Equal(t, DefaultPressureCooldown, cfg.PressureCooldown)
	assert.Equal(t, DefaultHysteresisTicks, cfg.HysteresisTicks)
	assert.Equal(t, 15*time.Second, cfg.EnvironmentInterval)
	assert.Equal(t, 3*time.Second, cfg.DecisionInterval)
	assert.Equal(t, 200*time.Millisecond, cfg.ExecTimeout)
	assert.Equal(t, DefaultPriorityFloor, cfg.PriorityFloor)
	assert.Equal(t, DefaultActionsPerMinute, cfg.ActionsPerMinute)
	assert.Equal(t, DefaultDetectionTTL, cfg.DetectionTTL)
	assert.Equal(t, DefaultBaselineAlpha, cfg.BaselineAlpha)
	assert.Equal(t, DefaultSnapshotCron, cfg.SnapshotCron)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VELVET_DATA_DIR", "/tmp/velvet-test")
	t.Setenv("VELVET_PRIORITY_FLOOR", "0.5")
	t.Setenv("VELVET_HYSTERESIS_TICKS", "3")
	t.Setenv("VELVET_ENVIRONMENT_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/velvet-test", cfg.DataDir)
	assert.Equal(t, 0.5, cfg.PriorityFloor)
	assert.Equal(t, 3, cfg.HysteresisTicks)
	assert.Equal(t, 30*time.Second, cfg.EnvironmentInterval)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{"weight above one", "VELVET_CLASSIFIER_WEIGHT_APP", "1.5"},
		{"negative floor", "VELVET_PRIORITY_FLOOR", "-0.1"},
		{"alpha at one", "VELVET_BASELINE_ALPHA", "1"},
		{"alpha at zero", "VELVET_BASELINE_ALPHA", "0"},
		{"zero hysteresis", "VELVET_HYSTERESIS_TICKS", "0"},
		{"zero interval", "VELVET_DECISION_INTERVAL", "0s"},
		{"zero exec timeout", "VELVET_EXEC_TIMEOUT", "0s"},
		{"zero rate", "VELVET_ACTIONS_PER_MINUTE", "0"},
		{"zero detection ttl", "VELVET_DETECTION_TTL", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestBaselineDBPath(t *testing.T) {
	cfg := &Config{DataDir: "/data/velvet"}
	assert.Equal(t, filepath.Join("/data/velvet", "baselines.db"), cfg.BaselineDBPath())
}

func TestEnsureDataDir(t *testing.T) {
	cfg := &Config{DataDir: filepath.Join(t.TempDir(), "nested", "velvet")}
	require.NoError(t, cfg.EnsureDataDir())
	require.NoError(t, cfg.EnsureDataDir()) // idempotent
}
