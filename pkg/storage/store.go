// Package storage persists scan output: findings, plans, and the per-scan
// debt occurrences the external temporal store computes trends from. The
// pipeline depends on the interfaces; Postgres and in-memory implementations
// live here.
package storage

import (
	"context"

	"github.com/entropyops/debtscan/pkg/models"
)

// Occurrence is one validated finding's appearance in one scan. The temporal
// store joins occurrences by fingerprint to follow the same debt across
// scans.
type Occurrence struct {
	Fingerprint  string
	ScanID       string
	RepositoryID string
	FilePath     string
	Severity     models.Severity
	Confidence   float64
	IsResolved   bool
}

// Recorder accepts debt occurrences. Implementations must be idempotent on
// (fingerprint, scanId): recording the same pair twice is a no-op.
type Recorder interface {
	RecordOccurrence(ctx context.Context, occ Occurrence) error
}

// Store persists scan results.
type Store interface {
	Recorder

	// SaveFindings upserts findings keyed by id.
	SaveFindings(ctx context.Context, scanID string, findings []*models.Finding) error

	// SavePlan inserts the plan for its scan. At most one plan per scan id;
	// saving again is a no-op.
	SavePlan(ctx context.Context, plan *models.RemediationPlan) error

	// Plan returns the stored plan for a scan, or nil when absent.
	Plan(ctx context.Context, scanID string) (*models.RemediationPlan, error)

	Close() error
}

// NopRecorder discards occurrences. Used when no temporal store is wired.
type NopRecorder struct{}

func (NopRecorder) RecordOccurrence(context.Context, Occurrence) error { return nil }
