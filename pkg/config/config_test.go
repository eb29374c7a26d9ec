package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropyops/debtscan/pkg/models"
	"github.com/entropyops/debtscan/pkg/voting"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "debtscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestInitialize_DefaultsOnly(t *testing.T) {
	cfg, err := Initialize("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Pipeline.MaxDebateRounds)
	assert.Equal(t, 30_000, cfg.Pipeline.DebateTimeoutMs)
	assert.InDelta(t, 0.7, cfg.Pipeline.ChallengeThreshold, 1e-9)
	assert.Equal(t, string(voting.StrategyWeighted), cfg.Pipeline.ResolutionStrategy)
	assert.Equal(t, 5, cfg.Pipeline.MaxFilesPerBatch)
	assert.Equal(t, 8_000, cfg.Pipeline.MaxTokensPerFile)
	assert.InDelta(t, 0.5, cfg.Pipeline.ConfidenceThreshold, 1e-9)
	assert.GreaterOrEqual(t, cfg.Pipeline.WorkerPoolSize, 2)

	assert.True(t, cfg.AgentEnabled(models.RoleScanner))
	assert.True(t, cfg.AgentEnabled(models.RoleArchitect))
	assert.True(t, cfg.AgentEnabled(models.RoleCritic))
	assert.False(t, cfg.AgentEnabled(models.RoleHistorian), "historian is off by default")
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestInitialize_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Initialize(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Pipeline.MaxDebateRounds)
}

func TestInitialize_UserValuesOverrideDefaults(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  max_debate_rounds: 5
  resolution_strategy: conservative
agents:
  historian:
    enabled: true
    model: gemini-2.0-pro
storage:
  driver: postgres
`)
	cfg, err := Initialize(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Pipeline.MaxDebateRounds)
	assert.Equal(t, "conservative", cfg.Pipeline.ResolutionStrategy)
	assert.Equal(t, 30_000, cfg.Pipeline.DebateTimeoutMs, "unset fields keep defaults")
	assert.True(t, cfg.AgentEnabled(models.RoleHistorian))
	assert.True(t, cfg.AgentEnabled(models.RoleScanner), "default roster rows survive the merge")
	assert.Equal(t, "postgres", cfg.Storage.Driver)
}

func TestInitialize_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "secret-key")
	path := writeConfig(t, `
llm:
  api_key: "{{.TEST_LLM_KEY}}"
`)
	cfg, err := Initialize(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.LLM.APIKey)
}

func TestInitialize_RejectsInvalidStrategy(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  resolution_strategy: coin_flip
`)
	_, err := Initialize(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolution_strategy")
}

func TestInitialize_RejectsBadWeights(t *testing.T) {
	path := writeConfig(t, `
agent_weights:
  code_smell:
    scanner: 1.5
`)
	_, err := Initialize(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent weight")
}

func TestWeightTable_OverlaysConfiguredRows(t *testing.T) {
	path := writeConfig(t, `
agent_weights:
  duplication:
    scanner: 0.6
    architect: 0.2
`)
	cfg, err := Initialize(path)
	require.NoError(t, err)

	table := cfg.WeightTable()
	assert.InDelta(t, 0.6, table.Weight(models.DebtDuplication, models.RoleScanner), 1e-9)
	// Default rows stay present.
	assert.InDelta(t, 0.5, table.Weight(models.DebtCircularDependency, models.RoleArchitect), 1e-9)
}

func TestExpandEnv_LeavesDollarSignsAlone(t *testing.T) {
	out := ExpandEnv([]byte("layer_patterns:\n  - regex: '^handlers/.*$'\n"))
	assert.Contains(t, string(out), "^handlers/.*$")
}
