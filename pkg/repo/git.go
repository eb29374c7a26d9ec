package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitSnapshot adapts a go-git repository at HEAD to the Snapshot interface.
// The snapshot is pinned: every query resolves against the HEAD commit
// captured at open time, so a concurrent fetch cannot shift results mid-scan.
type GitSnapshot struct {
	repo   *git.Repository
	head   *object.Commit
	branch string
}

// Open pins a snapshot of the repository at path.
func Open(path string) (*GitSnapshot, error) {
	r, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", path, err)
	}
	return pin(r)
}

// Clone clones url into dir and pins a snapshot of its default branch.
func Clone(ctx context.Context, url, dir string) (*GitSnapshot, error) {
	r, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: url})
	if err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", url, err)
	}
	return pin(r)
}

func pin(r *git.Repository) (*GitSnapshot, error) {
	ref, err := r.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	head, err := r.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to load HEAD commit: %w", err)
	}
	branch := ""
	if ref.Name().IsBranch() {
		branch = ref.Name().Short()
	}
	return &GitSnapshot{repo: r, head: head, branch: branch}, nil
}

// HeadSHA returns the pinned commit hash.
func (s *GitSnapshot) HeadSHA() string { return s.head.Hash.String() }

func (s *GitSnapshot) ListFiles(ctx context.Context) ([]string, error) {
	tree, err := s.head.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load HEAD tree: %w", err)
	}
	var paths []string
	err = tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		paths = append(paths, f.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *GitSnapshot) FileContent(ctx context.Context, path string) (string, error) {
	file, err := s.head.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	content, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return content, nil
}

func (s *GitSnapshot) Log(ctx context.Context, opts LogOptions) ([]Commit, error) {
	logOpts := &git.LogOptions{From: s.head.Hash}
	if opts.File != "" {
		file := opts.File
		logOpts.FileName = &file
	}
	iter, err := s.repo.Log(logOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	var commits []Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		commits = append(commits, Commit{
			SHA:     c.Hash.String(),
			Author:  c.Author.Name,
			Email:   c.Author.Email,
			When:    c.Author.When,
			Message: c.Message,
		})
		if opts.Limit > 0 && len(commits) >= opts.Limit {
			return errStopIteration
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}
	return commits, nil
}

var errStopIteration = errors.New("stop iteration")

func (s *GitSnapshot) Blame(ctx context.Context, path string, startLine, endLine int) ([]BlameLine, error) {
	result, err := git.Blame(s.head, path)
	if err != nil {
		return nil, fmt.Errorf("failed to blame %s: %w", path, err)
	}
	var out []BlameLine
	for i := startLine; i <= endLine && i <= len(result.Lines); i++ {
		if i < 1 {
			continue
		}
		line := result.Lines[i-1]
		out = append(out, BlameLine{
			Line:   i,
			SHA:    line.Hash.String(),
			Author: line.AuthorName,
			When:   line.Date,
			Text:   line.Text,
		})
	}
	return out, nil
}

func (s *GitSnapshot) Diff(ctx context.Context, sha string) (string, error) {
	hash, err := s.repo.ResolveRevision(plumbing.Revision(sha))
	if err != nil {
		return "", fmt.Errorf("%w: commit %s", ErrNotFound, sha)
	}
	commit, err := s.repo.CommitObject(*hash)
	if err != nil {
		return "", fmt.Errorf("failed to load commit %s: %w", sha, err)
	}

	var parentTree *object.Tree
	if commit.NumParents() > 0 {
		parent, err := commit.Parent(0)
		if err != nil {
			return "", fmt.Errorf("failed to load parent of %s: %w", sha, err)
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return "", fmt.Errorf("failed to load parent tree of %s: %w", sha, err)
		}
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", fmt.Errorf("failed to load tree of %s: %w", sha, err)
	}
	// parentTree is nil for root commits; DiffTree treats nil as empty.
	changes, err := object.DiffTreeContext(ctx, parentTree, tree)
	if err != nil {
		return "", fmt.Errorf("failed to diff %s: %w", sha, err)
	}
	patch, err := changes.PatchContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to render diff of %s: %w", sha, err)
	}
	return patch.String(), nil
}

func (s *GitSnapshot) DefaultBranch(ctx context.Context) (string, error) {
	if s.branch != "" {
		return s.branch, nil
	}
	return "", fmt.Errorf("%w: HEAD is detached", ErrNotFound)
}
