package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/entropyops/debtscan/pkg/models"
)

// setupPostgres starts a throwaway container and returns a migrated store.
func setupPostgres(t *testing.T) *PostgresStore {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("debtscan_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	store, err := NewPostgresStore(ctx, Config{
		Host:         host,
		Port:         port.Int(),
		User:         "test",
		Password:     "test",
		Database:     "debtscan_test",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	f := &models.Finding{
		ID:          "F1",
		DebtType:    models.DebtSecurityIssue,
		Severity:    models.SeverityCritical,
		Confidence:  0.9,
		Title:       "Hardcoded credentials",
		FilePath:    "a.ts",
		StartLine:   10,
		EndLine:     12,
		Evidence:    []string{"apiKey = ..."},
		Fingerprint: "fp-1",
		ReportedBy:  models.RoleScanner,
	}
	require.NoError(t, store.SaveFindings(ctx, "scan-1", []*models.Finding{f}))

	// Upsert: same id with adjusted severity overwrites.
	require.NoError(t, store.SaveFindings(ctx, "scan-1", []*models.Finding{f.WithSeverity(models.SeverityHigh)}))
	var severity string
	require.NoError(t, store.DB().QueryRowContext(ctx,
		`SELECT severity FROM findings WHERE id = $1`, "F1").Scan(&severity))
	assert.Equal(t, "high", severity)

	plan := &models.RemediationPlan{
		ScanID:         "scan-1",
		Summary:        "Found 1 items. 1 critical need immediate attention. Organized into 1 tasks with 0 quick wins.",
		TotalDebtItems: 1,
	}
	require.NoError(t, store.SavePlan(ctx, plan))
	require.NoError(t, store.SavePlan(ctx, &models.RemediationPlan{ScanID: "scan-1", Summary: "other"}))

	got, err := store.Plan(ctx, "scan-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, plan.Summary, got.Summary, "first plan for a scan wins")

	occ := Occurrence{
		Fingerprint:  "fp-1",
		ScanID:       "scan-1",
		RepositoryID: "repo-1",
		FilePath:     "a.ts",
		Severity:     models.SeverityCritical,
		Confidence:   0.9,
	}
	require.NoError(t, store.RecordOccurrence(ctx, occ))
	require.NoError(t, store.RecordOccurrence(ctx, occ))
	var count int
	require.NoError(t, store.DB().QueryRowContext(ctx,
		`SELECT count(*) FROM debt_occurrences WHERE fingerprint = $1`, "fp-1").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestPostgresStore_PlanMissing(t *testing.T) {
	store := setupPostgres(t)

	got, err := store.Plan(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}
