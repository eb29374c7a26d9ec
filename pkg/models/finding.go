package models

import (
	"errors"
	"fmt"
)

// ErrInvalidFinding is returned when a finding fails field validation.
var ErrInvalidFinding = errors.New("invalid finding")

// Finding is a single reported piece of technical debt.
//
// A Finding is a value: once published on the bus it is never mutated.
// Components that adjust confidence or severity (debate resolution, merge)
// produce a copy. StartLine/EndLine are 1-indexed and inclusive; zero means
// "no span"; both must be set or both zero.
type Finding struct {
	ID           string   `json:"id"`
	DebtType     DebtType `json:"debt_type"`
	Severity     Severity `json:"severity"`
	Confidence   float64  `json:"confidence"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	FilePath     string   `json:"file_path"`
	StartLine    int      `json:"start_line,omitempty"`
	EndLine      int      `json:"end_line,omitempty"`
	Evidence     []string `json:"evidence,omitempty"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
	Fingerprint  string   `json:"fingerprint"`
	ReportedBy   AgentRole `json:"reported_by"`
}

// HasSpan reports whether the finding carries a line range.
func (f *Finding) HasSpan() bool { return f.StartLine > 0 && f.EndLine > 0 }

// SpanSize returns the number of lines covered, or 0 without a span.
func (f *Finding) SpanSize() int {
	if !f.HasSpan() {
		return 0
	}
	return f.EndLine - f.StartLine + 1
}

// Validate checks the invariants a Finding must satisfy before publication.
func (f *Finding) Validate() error {
	if !f.DebtType.IsValid() {
		return fmt.Errorf("%w: unknown debt type %q", ErrInvalidFinding, f.DebtType)
	}
	if !f.Severity.IsValid() {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidFinding, f.Severity)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v out of [0,1]", ErrInvalidFinding, f.Confidence)
	}
	if f.Title == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidFinding)
	}
	if f.FilePath == "" {
		return fmt.Errorf("%w: empty file path", ErrInvalidFinding)
	}
	if (f.StartLine > 0) != (f.EndLine > 0) {
		return fmt.Errorf("%w: span requires both start and end line", ErrInvalidFinding)
	}
	if f.HasSpan() && f.StartLine > f.EndLine {
		return fmt.Errorf("%w: start line %d after end line %d", ErrInvalidFinding, f.StartLine, f.EndLine)
	}
	return nil
}

// Clone returns a deep copy. Findings are shared by value between components;
// any adjustment goes through a clone.
func (f *Finding) Clone() *Finding {
	c := *f
	c.Evidence = append([]string(nil), f.Evidence...)
	return &c
}

// WithConfidence returns a copy with the confidence replaced.
func (f *Finding) WithConfidence(confidence float64) *Finding {
	c := f.Clone()
	c.Confidence = confidence
	return c
}

// WithSeverity returns a copy with the severity replaced.
func (f *Finding) WithSeverity(severity Severity) *Finding {
	c := f.Clone()
	c.Severity = severity
	return c
}

// Overlaps reports whether two findings cover overlapping line ranges in the
// same file. A finding without a span is treated as covering the whole file.
func (f *Finding) Overlaps(other *Finding) bool {
	if f.FilePath != other.FilePath {
		return false
	}
	if !f.HasSpan() || !other.HasSpan() {
		return true
	}
	return !(f.EndLine < other.StartLine || other.EndLine < f.StartLine)
}

// CriticReview is the Critic's verdict on a single finding.
type CriticReview struct {
	FindingID  string  `json:"finding_id"`
	Accepted   bool    `json:"accepted"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}
