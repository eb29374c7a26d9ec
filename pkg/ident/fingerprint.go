package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/entropyops/debtscan/pkg/models"
)

// Fingerprint computes the stable content hash identifying the "same debt"
// across scans: SHA-256 over (debtType, filePath, normalized span text).
// When the finding has no span (or the file content is unavailable), the
// title stands in for the span text. Identity fields only; title,
// description and evidence reordering do not change the fingerprint of a
// spanned finding.
func Fingerprint(f *models.Finding, fileContent string) string {
	span := f.Title
	if f.HasSpan() && fileContent != "" {
		if s := NormalizeSpan(fileContent, f.StartLine, f.EndLine); s != "" {
			span = s
		}
	}
	h := sha256.New()
	h.Write([]byte(f.DebtType))
	h.Write([]byte{0})
	h.Write([]byte(f.FilePath))
	h.Write([]byte{0})
	h.Write([]byte(span))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeSpan extracts lines [start, end] (1-indexed, inclusive) from
// content, strips trailing whitespace per line, and joins with a single LF.
// Returns "" when the range falls outside the content.
func NormalizeSpan(content string, start, end int) string {
	lines := strings.Split(content, "\n")
	if start < 1 || start > len(lines) {
		return ""
	}
	if end > len(lines) {
		end = len(lines)
	}
	span := lines[start-1 : end]
	out := make([]string, len(span))
	for i, line := range span {
		out[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.Join(out, "\n")
}
