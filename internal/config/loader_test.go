package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8710, cfg.Server.Port)
	assert.Equal(t, 0.4, cfg.Policy.ConfidenceFloor)
	assert.Equal(t, 0.3, cfg.Policy.RiskAutoApplyMax)
	assert.Equal(t, 0.7, cfg.Policy.RiskAssistedMax)
	assert.Equal(t, 10, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, 30*time.Minute, cfg.Orchestrator.IterationBudget.Duration())
	assert.Equal(t, float64(10), cfg.Policy.SeverityWeights["critical"])
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9999
policy:
  confidence_floor: 0.6
orchestrator:
  max_iterations: 3
  iteration_budget: 5m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 0.6, cfg.Policy.ConfidenceFloor)
	assert.Equal(t, 3, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, 5*time.Minute, cfg.Orchestrator.IterationBudget.Duration())
	// Untouched fields keep defaults.
	assert.Equal(t, 0.7, cfg.Policy.RiskAssistedMax)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o600))

	t.Setenv("REMEDYD_SERVER_PORT", "7777")
	t.Setenv("REMEDYD_POLICY_CONFIDENCE_FLOOR", "0.55")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, 0.55, cfg.Policy.ConfidenceFloor)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8710, cfg.Server.Port)
}

func TestLoad_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policy:\n  confidence_floor: 2.0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confidence_floor")
}

func TestValidate_RiskCutoffOrdering(t *testing.T) {
	cfg := Default()
	cfg.Policy.RiskAutoApplyMax = 0.8
	cfg.Policy.RiskAssistedMax = 0.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk cutoffs")
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.Error(t, d.UnmarshalText([]byte("-5s")))
	require.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}
