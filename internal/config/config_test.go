package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/var/lib/proxmon/errors.db", cfg.DBPath)
	assert.Equal(t, 95.0, cfg.Thresholds.CPU.Crit)
	assert.Equal(t, 7*24*time.Hour, cfg.Retention.ResolvedRetention)
	assert.Equal(t, 60*time.Second, cfg.Cache.Overall)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/proxmon.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default().DBPath, cfg.DBPath)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
db_path: /tmp/test-errors.db
thresholds:
  cpu:
    warn: 70
    crit: 90
    warn_duration: 120s
    crit_duration: 120s
    recover: 60
    recover_duration: 60s
    min_samples: 2
cache:
  overall: 30s
probe:
  watched_units: [pveproxy]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test-errors.db", cfg.DBPath)
	assert.Equal(t, 90.0, cfg.Thresholds.CPU.Crit)
	assert.Equal(t, 2, cfg.Thresholds.CPU.MinSamples)
	assert.Equal(t, 30*time.Second, cfg.Cache.Overall)
	assert.Equal(t, []string{"pveproxy"}, cfg.Probe.WatchedUnits)

	// Sections the file does not mention keep their defaults.
	assert.Equal(t, 90.0, cfg.Thresholds.Memory.Crit)
	assert.Equal(t, 24*time.Hour, cfg.Retention.AckImmunity)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
thresholds:
  cpu:
    warn: 90
    crit: 80
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crit threshold")
}

func TestMetricThresholdValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*MetricThreshold)
		wantErr string
	}{
		{
			name:   "defaults pass",
			mutate: func(t *MetricThreshold) {},
		},
		{
			name:    "crit below warn",
			mutate:  func(t *MetricThreshold) { t.Crit = 50 },
			wantErr: "crit threshold",
		},
		{
			name:    "recover above warn",
			mutate:  func(t *MetricThreshold) { t.Recover = 99 },
			wantErr: "recover threshold",
		},
		{
			name:    "zero duration",
			mutate:  func(t *MetricThreshold) { t.CritDuration = 0 },
			wantErr: "durations must be positive",
		},
		{
			name:    "zero min samples",
			mutate:  func(t *MetricThreshold) { t.MinSamples = 0 },
			wantErr: "min_samples",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			threshold := DefaultThresholds().CPU
			tt.mutate(&threshold)
			err := threshold.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestThresholdConfigDurationVsWindow(t *testing.T) {
	cfg := DefaultThresholds()
	cfg.CPU.CritDuration = 20 * time.Minute
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_window")
}

func TestRetentionValidate(t *testing.T) {
	policy := DefaultRetention()
	require.NoError(t, policy.Validate())

	policy.EventRetention = time.Hour
	err := policy.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event_retention")

	policy = DefaultRetention()
	policy.AutoResolveAfter["logs"] = time.Minute
	err = policy.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auto_resolve_after.logs")
}

func TestCacheValidate(t *testing.T) {
	cache := DefaultCache()
	require.NoError(t, cache.Validate())

	cache.Logs = 100 * time.Millisecond
	err := cache.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.logs")
}

func TestProbeValidate(t *testing.T) {
	p := DefaultProbe()
	require.NoError(t, p.Validate())

	p.CommandTimeout = 30 * time.Second
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command_timeout")
}
