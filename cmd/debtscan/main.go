// debtscan command-line interface: runs multi-agent technical-debt scans
// against a local or remote git repository and prints the remediation plan.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/entropyops/debtscan/pkg/config"
	"github.com/entropyops/debtscan/pkg/conflict"
	"github.com/entropyops/debtscan/pkg/ident"
	"github.com/entropyops/debtscan/pkg/llm"
	"github.com/entropyops/debtscan/pkg/llm/gemini"
	"github.com/entropyops/debtscan/pkg/pipeline"
	"github.com/entropyops/debtscan/pkg/repo"
	"github.com/entropyops/debtscan/pkg/storage"
	"github.com/entropyops/debtscan/pkg/vector"
	"github.com/entropyops/debtscan/pkg/version"
)

var (
	configPath string
	envFile    string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:           "debtscan",
		Short:         "Multi-agent technical-debt analysis",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(logLevel)
			if err := godotenv.Load(envFile); err != nil {
				slog.Debug("No .env file loaded, continuing with existing environment",
					"path", envFile, "error", err)
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "debtscan.yaml", "path to the configuration file")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to an optional .env file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newScanCmd(), newPlanCmd(), newMigrateCmd())

	if err := root.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func newScanCmd() *cobra.Command {
	var (
		repoPath     string
		repoURL      string
		scanID       string
		repositoryID string
		output       string
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a repository for technical debt and synthesize a remediation plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			cfg, err := config.Initialize(configPath)
			if err != nil {
				return err
			}

			snapshot, repoName, err := openSnapshot(ctx, repoPath, repoURL)
			if err != nil {
				return err
			}
			if repositoryID == "" {
				repositoryID = repoName
			}
			if scanID == "" {
				scanID = ident.New()
			}

			client, err := buildLLMClient(ctx, cfg)
			if err != nil {
				return err
			}

			opts := []pipeline.Option{
				pipeline.WithArbiter(conflict.NewLLMArbiter(client, cfg.LLM.Model)),
			}

			store, err := buildStore(ctx, cfg)
			if err != nil {
				return err
			}
			if store != nil {
				defer func() {
					if err := store.Close(); err != nil {
						slog.Error("Error closing store", "error", err)
					}
				}()
				opts = append(opts, pipeline.WithStore(store))
			}

			if cfg.Vector.Enabled {
				searcher, err := buildSearcher(ctx, cfg)
				if err != nil {
					return err
				}
				opts = append(opts, pipeline.WithSearcher(searcher))
			}

			ctrl, err := pipeline.NewController(cfg, client, snapshot, opts...)
			if err != nil {
				return err
			}

			slog.Info("Starting scan",
				"scan_id", scanID, "repository_id", repositoryID, "version", version.Full())
			result, err := ctrl.Run(ctx, pipeline.ScanRequest{ScanID: scanID, RepositoryID: repositoryID})
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}
			return writeResult(result, output)
		},
	}

	cmd.Flags().StringVar(&repoPath, "path", ".", "path to a local git repository")
	cmd.Flags().StringVar(&repoURL, "url", "", "remote repository URL to clone instead of --path")
	cmd.Flags().StringVar(&scanID, "scan-id", "", "scan identifier (generated when empty)")
	cmd.Flags().StringVar(&repositoryID, "repository-id", "", "repository identifier (derived from the path or URL when empty)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the scan result JSON to this file instead of stdout")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Minute, "overall scan deadline (0 disables)")
	return cmd
}

func newPlanCmd() *cobra.Command {
	var scanID string

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored remediation plan for a scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Initialize(configPath)
			if err != nil {
				return err
			}
			store, err := buildStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					slog.Error("Error closing store", "error", err)
				}
			}()

			plan, err := store.Plan(cmd.Context(), scanID)
			if err != nil {
				return err
			}
			if plan == nil {
				return fmt.Errorf("no plan stored for scan %s", scanID)
			}
			data, err := json.MarshalIndent(plan, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(os.Stdout, string(data))
			return err
		},
	}
	show.Flags().StringVar(&scanID, "scan-id", "", "scan identifier")
	_ = show.MarkFlagRequired("scan-id")

	plan := &cobra.Command{
		Use:   "plan",
		Short: "Inspect stored remediation plans",
	}
	plan.AddCommand(show)
	return plan
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbCfg, err := storage.LoadConfigFromEnv()
			if err != nil {
				return err
			}
			store, err := storage.NewPostgresStore(cmd.Context(), dbCfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					slog.Error("Error closing store", "error", err)
				}
			}()
			slog.Info("Migrations applied", "database", dbCfg.Database)
			return nil
		},
	}
}

// openSnapshot pins a repository snapshot from --url (clone) or --path (open)
// and derives a repository name from the source.
func openSnapshot(ctx context.Context, path, url string) (repo.Snapshot, string, error) {
	if url != "" {
		dir, err := os.MkdirTemp("", "debtscan-clone-*")
		if err != nil {
			return nil, "", fmt.Errorf("failed to create clone directory: %w", err)
		}
		slog.Info("Cloning repository", "url", url, "dir", dir)
		snap, err := repo.Clone(ctx, url, dir)
		if err != nil {
			return nil, "", err
		}
		name := strings.TrimSuffix(filepath.Base(url), ".git")
		return snap, name, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	snap, err := repo.Open(abs)
	if err != nil {
		return nil, "", err
	}
	return snap, filepath.Base(abs), nil
}

func buildLLMClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	if cfg.LLM.Provider != "gemini" {
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}
	client, err := gemini.New(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		return nil, err
	}
	retryCfg := llm.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.LLM.MaxRetries
	return llm.WithRetry(client, retryCfg), nil
}

func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		dbCfg, err := storage.LoadConfigFromEnv()
		if err != nil {
			return nil, err
		}
		store, err := storage.NewPostgresStore(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		slog.Info("Connected to PostgreSQL", "database", dbCfg.Database)
		return store, nil
	case "memory":
		return storage.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func buildSearcher(ctx context.Context, cfg *config.Config) (vector.Searcher, error) {
	gc, err := gemini.New(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		return nil, err
	}
	embedder := gc.NewEmbedder(cfg.Vector.EmbeddingModel)
	return vector.NewQdrantSearcher(cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection, embedder)
}

// writeResult prints the result as indented JSON to stdout or the given file.
func writeResult(result *pipeline.ScanResult, output string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode scan result: %w", err)
	}
	data = append(data, '\n')
	if output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(output, data, 0o644)
}
