package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/entropyops/debtscan/pkg/models"
)

// MemoryStore is an in-process Store for tests and dry runs.
type MemoryStore struct {
	mu          sync.Mutex
	findings    map[string]*models.Finding // by finding id
	plans       map[string]*models.RemediationPlan
	occurrences map[string]Occurrence // by fingerprint + scan id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		findings:    make(map[string]*models.Finding),
		plans:       make(map[string]*models.RemediationPlan),
		occurrences: make(map[string]Occurrence),
	}
}

func (s *MemoryStore) SaveFindings(ctx context.Context, scanID string, findings []*models.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range findings {
		s.findings[f.ID] = f.Clone()
	}
	return nil
}

func (s *MemoryStore) SavePlan(ctx context.Context, plan *models.RemediationPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[plan.ScanID]; ok {
		return nil
	}
	s.plans[plan.ScanID] = clonePlan(plan)
	return nil
}

func (s *MemoryStore) Plan(ctx context.Context, scanID string) (*models.RemediationPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[scanID]
	if !ok {
		return nil, nil
	}
	return clonePlan(p), nil
}

func (s *MemoryStore) RecordOccurrence(ctx context.Context, occ Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := occ.Fingerprint + "\x00" + occ.ScanID
	if _, ok := s.occurrences[key]; ok {
		return nil
	}
	s.occurrences[key] = occ
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Findings returns all stored findings, for assertions.
func (s *MemoryStore) Findings() []*models.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Finding, 0, len(s.findings))
	for _, f := range s.findings {
		out = append(out, f.Clone())
	}
	return out
}

// Occurrences returns all recorded occurrences, for assertions.
func (s *MemoryStore) Occurrences() []Occurrence {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Occurrence, 0, len(s.occurrences))
	for _, occ := range s.occurrences {
		out = append(out, occ)
	}
	return out
}

// clonePlan deep-copies via JSON; plans are small and this never runs hot.
func clonePlan(p *models.RemediationPlan) *models.RemediationPlan {
	raw, _ := json.Marshal(p)
	var c models.RemediationPlan
	_ = json.Unmarshal(raw, &c)
	return &c
}
