package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for database/sql

	"github.com/entropyops/debtscan/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds Postgres connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfigFromEnv reads connection settings from DB_* environment
// variables.
func LoadConfigFromEnv() (Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	maxOpen, _ := strconv.Atoi(getEnvOrDefault("DB_MAX_OPEN_CONNS", "10"))
	maxIdle, _ := strconv.Atoi(getEnvOrDefault("DB_MAX_IDLE_CONNS", "5"))

	return Config{
		Host:            getEnvOrDefault("DB_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("DB_USER", "debtscan"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        getEnvOrDefault("DB_NAME", "debtscan"),
		SSLMode:         getEnvOrDefault("DB_SSLMODE", "disable"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// PostgresStore implements Store over PostgreSQL via the pgx driver.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a pooled connection and applies pending migrations.
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// runMigrations applies embedded SQL migrations with golang-migrate.
func runMigrations(db *sql.DB, database string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, database, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	// Closing m would also close the shared *sql.DB; only release the source.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveFindings(ctx context.Context, scanID string, findings []*models.Finding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO findings (
			id, scan_id, debt_type, severity, confidence, title, description,
			file_path, start_line, end_line, evidence, suggested_fix,
			fingerprint, reported_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			severity = EXCLUDED.severity,
			confidence = EXCLUDED.confidence,
			description = EXCLUDED.description,
			evidence = EXCLUDED.evidence,
			suggested_fix = EXCLUDED.suggested_fix`
	for _, f := range findings {
		evidence, err := json.Marshal(f.Evidence)
		if err != nil {
			return fmt.Errorf("failed to marshal evidence for %s: %w", f.ID, err)
		}
		if _, err := tx.ExecContext(ctx, q,
			f.ID, scanID, f.DebtType, f.Severity, f.Confidence, f.Title,
			f.Description, f.FilePath, nullableLine(f.StartLine),
			nullableLine(f.EndLine), evidence, f.SuggestedFix,
			f.Fingerprint, f.ReportedBy,
		); err != nil {
			return fmt.Errorf("failed to upsert finding %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) SavePlan(ctx context.Context, plan *models.RemediationPlan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	const q = `
		INSERT INTO plans (scan_id, summary, total_debt_items, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scan_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, plan.ScanID, plan.Summary, plan.TotalDebtItems, payload); err != nil {
		return fmt.Errorf("failed to insert plan for scan %s: %w", plan.ScanID, err)
	}
	return nil
}

func (s *PostgresStore) Plan(ctx context.Context, scanID string) (*models.RemediationPlan, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM plans WHERE scan_id = $1`, scanID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan for scan %s: %w", scanID, err)
	}
	var plan models.RemediationPlan
	if err := json.Unmarshal(payload, &plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan for scan %s: %w", scanID, err)
	}
	return &plan, nil
}

func (s *PostgresStore) RecordOccurrence(ctx context.Context, occ Occurrence) error {
	const q = `
		INSERT INTO debt_occurrences (
			fingerprint, scan_id, repository_id, file_path, severity,
			confidence, is_resolved
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (fingerprint, scan_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q,
		occ.Fingerprint, occ.ScanID, occ.RepositoryID, occ.FilePath,
		occ.Severity, occ.Confidence, occ.IsResolved,
	); err != nil {
		return fmt.Errorf("failed to record occurrence %s/%s: %w", occ.Fingerprint, occ.ScanID, err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// DB exposes the underlying pool for health checks.
func (s *PostgresStore) DB() *sql.DB { return s.db }

// nullableLine converts the zero "no span" sentinel to NULL.
func nullableLine(line int) sql.NullInt32 {
	if line <= 0 {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(line), Valid: true}
}
