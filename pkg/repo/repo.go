// Package repo provides the repository-snapshot boundary: file listing,
// content, history, blame, and diffs over one immutable snapshot. The
// pipeline core only sees the Snapshot interface; the go-git adapter and the
// in-memory test snapshot live here.
package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned for paths or revisions absent from the snapshot.
var ErrNotFound = errors.New("not found in repository snapshot")

// Commit is one history entry.
type Commit struct {
	SHA     string
	Author  string
	Email   string
	When    time.Time
	Message string
}

// BlameLine attributes one line of a file.
type BlameLine struct {
	Line   int // 1-indexed
	SHA    string
	Author string
	When   time.Time
	Text   string
}

// LogOptions narrows a history query. Zero Limit means unbounded.
type LogOptions struct {
	File  string
	Limit int
}

// Snapshot is the read-only view of one repository state.
type Snapshot interface {
	// ListFiles returns all tracked file paths, sorted.
	ListFiles(ctx context.Context) ([]string, error)

	// FileContent returns the content of one file.
	FileContent(ctx context.Context, path string) (string, error)

	// Log returns history entries, newest first.
	Log(ctx context.Context, opts LogOptions) ([]Commit, error)

	// Blame attributes the lines [startLine, endLine] of a file.
	Blame(ctx context.Context, path string, startLine, endLine int) ([]BlameLine, error)

	// Diff returns the textual patch a commit introduced.
	Diff(ctx context.Context, sha string) (string, error)

	// DefaultBranch returns the branch the snapshot was taken from.
	DefaultBranch(ctx context.Context) (string, error)
}

// sourceExtensions are the files worth sending to the discovery agents.
var sourceExtensions = map[string]bool{
	".go": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".mjs": true, ".py": true, ".java": true, ".kt": true, ".rb": true,
	".rs": true, ".c": true, ".h": true, ".cpp": true, ".hpp": true,
	".cs": true, ".swift": true, ".scala": true, ".php": true,
}

// IsSourceFile reports whether a path looks like analyzable source code.
func IsSourceFile(path string) bool {
	return sourceExtensions[strings.ToLower(filepath.Ext(path))]
}

// FormatLog renders commits into the text block fed to the historian prompt.
func FormatLog(commits []Commit) string {
	var sb strings.Builder
	for _, c := range commits {
		short := c.SHA
		if len(short) > 8 {
			short = short[:8]
		}
		subject := c.Message
		if idx := strings.IndexByte(subject, '\n'); idx >= 0 {
			subject = subject[:idx]
		}
		fmt.Fprintf(&sb, "%s %s %s %s\n", short, c.When.Format("2006-01-02"), c.Author, subject)
	}
	return sb.String()
}

// MemorySnapshot is a Snapshot over in-memory files, for tests and local
// ad-hoc scans.
type MemorySnapshot struct {
	Files   map[string]string
	History map[string][]Commit // keyed by file path; "" holds repo-wide log
	Branch  string
}

// NewMemorySnapshot wraps a file map.
func NewMemorySnapshot(files map[string]string) *MemorySnapshot {
	return &MemorySnapshot{Files: files, Branch: "main"}
}

func (s *MemorySnapshot) ListFiles(ctx context.Context) ([]string, error) {
	paths := make([]string, 0, len(s.Files))
	for path := range s.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *MemorySnapshot) FileContent(ctx context.Context, path string) (string, error) {
	content, ok := s.Files[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return content, nil
}

func (s *MemorySnapshot) Log(ctx context.Context, opts LogOptions) ([]Commit, error) {
	commits := s.History[opts.File]
	if opts.Limit > 0 && len(commits) > opts.Limit {
		commits = commits[:opts.Limit]
	}
	return append([]Commit(nil), commits...), nil
}

func (s *MemorySnapshot) Blame(ctx context.Context, path string, startLine, endLine int) ([]BlameLine, error) {
	content, err := s.FileContent(ctx, path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(content, "\n")
	var out []BlameLine
	for i := startLine; i <= endLine && i <= len(lines); i++ {
		if i < 1 {
			continue
		}
		out = append(out, BlameLine{Line: i, Text: lines[i-1]})
	}
	return out, nil
}

func (s *MemorySnapshot) Diff(ctx context.Context, sha string) (string, error) {
	return "", fmt.Errorf("%w: commit %s", ErrNotFound, sha)
}

func (s *MemorySnapshot) DefaultBranch(ctx context.Context) (string, error) {
	return s.Branch, nil
}
