// Package config loads and validates scan configuration from YAML with
// environment-variable expansion. Defaults are merged under user-supplied
// values, so a missing or partial file always yields a runnable config.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/entropyops/debtscan/pkg/models"
	"github.com/entropyops/debtscan/pkg/voting"
)

// Config is the full configuration tree.
type Config struct {
	Pipeline PipelineConfig             `yaml:"pipeline"`
	Agents   map[string]AgentConfig     `yaml:"agents"`
	LLM      LLMConfig                  `yaml:"llm"`
	Vector   VectorConfig               `yaml:"vector"`
	Storage  StorageConfig              `yaml:"storage"`
	Prompts  map[string]PromptConfig    `yaml:"prompts"`
	Weights  map[string]map[string]float64 `yaml:"agent_weights"`
	Layers   []LayerPatternConfig       `yaml:"layer_patterns"`
}

// PipelineConfig bounds pipeline execution.
type PipelineConfig struct {
	MaxDebateRounds     int     `yaml:"max_debate_rounds"`
	DebateTimeoutMs     int     `yaml:"debate_timeout_ms"`
	ChallengeThreshold  float64 `yaml:"challenge_threshold"`
	ResolutionStrategy  string  `yaml:"resolution_strategy"`
	MaxFilesPerBatch    int     `yaml:"max_files_per_batch"`
	MaxTokensPerFile    int     `yaml:"max_tokens_per_file"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	WorkerPoolSize      int     `yaml:"worker_pool_size"`
}

// AgentConfig is one roster row.
type AgentConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	Enabled     *bool   `yaml:"enabled"`
}

// LLMConfig selects the transport.
type LLMConfig struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	MaxRetries int    `yaml:"max_retries"`
}

// VectorConfig wires the optional similarity-search enrichment.
type VectorConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Collection     string `yaml:"collection"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "memory" or "postgres"
}

// PromptConfig overrides one role's prompt bundle. Empty fields keep the
// built-in default.
type PromptConfig struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// LayerPatternConfig is one row of the architect's layer table.
type LayerPatternConfig struct {
	Regex string `yaml:"regex"`
	Level int    `yaml:"level"`
	Name  string `yaml:"name"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	enabled := true
	disabled := false
	return &Config{
		Pipeline: PipelineConfig{
			MaxDebateRounds:     3,
			DebateTimeoutMs:     30_000,
			ChallengeThreshold:  0.7,
			ResolutionStrategy:  string(voting.StrategyWeighted),
			MaxFilesPerBatch:    5,
			MaxTokensPerFile:    8_000,
			ConfidenceThreshold: 0.5,
			WorkerPoolSize:      defaultWorkerPoolSize(),
		},
		Agents: map[string]AgentConfig{
			string(models.RoleScanner):   {Temperature: 0.2, Enabled: &enabled},
			string(models.RoleArchitect): {Temperature: 0.2, Enabled: &enabled},
			string(models.RoleHistorian): {Temperature: 0.3, Enabled: &disabled},
			string(models.RoleCritic):    {Temperature: 0.1, Enabled: &enabled},
		},
		LLM: LLMConfig{
			Provider:   "gemini",
			MaxRetries: 3,
		},
		Vector: VectorConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "code_chunks",
		},
		Storage: StorageConfig{Driver: "memory"},
	}
}

func defaultWorkerPoolSize() int {
	n := runtime.NumCPU()
	if n < 2 {
		return 2
	}
	return n
}

// DebateTimeout returns the debate timeout as a duration.
func (c *Config) DebateTimeout() time.Duration {
	return time.Duration(c.Pipeline.DebateTimeoutMs) * time.Millisecond
}

// WeightTable builds the voting weight table: the shipped defaults with the
// configured per-debt-type rows layered on top.
func (c *Config) WeightTable() *voting.WeightTable {
	table := voting.DefaultWeightTable()
	for debtType, row := range c.Weights {
		weights := make(map[models.AgentRole]float64, len(row))
		for role, w := range row {
			weights[models.AgentRole(role)] = w
		}
		table.Rows[models.DebtType(debtType)] = weights
	}
	return table
}

// AgentEnabled reports whether a roster row is enabled. Unknown roles are
// disabled.
func (c *Config) AgentEnabled(role models.AgentRole) bool {
	a, ok := c.Agents[string(role)]
	return ok && a.Enabled != nil && *a.Enabled
}

// validate rejects configurations the pipeline cannot run with.
func validate(cfg *Config) error {
	p := &cfg.Pipeline
	if p.MaxDebateRounds <= 0 {
		return fmt.Errorf("max_debate_rounds must be positive, got %d", p.MaxDebateRounds)
	}
	if p.ChallengeThreshold < 0 || p.ChallengeThreshold > 1 {
		return fmt.Errorf("challenge_threshold %v out of [0,1]", p.ChallengeThreshold)
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold %v out of [0,1]", p.ConfidenceThreshold)
	}
	if !voting.Strategy(p.ResolutionStrategy).IsValid() {
		return fmt.Errorf("unknown resolution_strategy %q", p.ResolutionStrategy)
	}
	if p.MaxFilesPerBatch <= 0 {
		return fmt.Errorf("max_files_per_batch must be positive, got %d", p.MaxFilesPerBatch)
	}
	if p.WorkerPoolSize <= 0 {
		return fmt.Errorf("worker_pool_size must be positive, got %d", p.WorkerPoolSize)
	}
	switch cfg.Storage.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	for _, layer := range cfg.Layers {
		if layer.Regex == "" {
			return fmt.Errorf("layer pattern %q has an empty regex", layer.Name)
		}
	}
	for role, weights := range cfg.Weights {
		for agent, w := range weights {
			if w < 0 || w > 1 {
				return fmt.Errorf("agent weight %s/%s = %v out of [0,1]", role, agent, w)
			}
		}
	}
	return nil
}
