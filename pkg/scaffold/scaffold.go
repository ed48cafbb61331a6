// Package scaffold creates the project's directory layout.
package scaffold

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const metaSuffix = ".meta"

// Move relocates an existing path. Both paths are relative to the project directory.
type Move struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Layout describes the folders a project should have.
type Layout struct {
	// Root is the layout root relative to the project directory, e.g. "Assets/_Project".
	Root string `json:"root" yaml:"root"`

	// Folders are created under Root. Nested paths like "Art/Textures" are allowed.
	Folders []string `json:"folders" yaml:"folders"`

	Moves   []Move   `json:"moves,omitempty" yaml:"moves,omitempty"`
	Deletes []string `json:"deletes,omitempty" yaml:"deletes,omitempty"`
}

// Result lists what Apply changed, as project-relative slash paths.
type Result struct {
	Created   []string `json:"created,omitempty"`
	Moved     []string `json:"moved,omitempty"`
	Deleted   []string `json:"deleted,omitempty"`
	Unchanged []string `json:"unchanged,omitempty"`
}

// Changed reports whether Apply modified the project.
func (r *Result) Changed() bool {
	return len(r.Created)+len(r.Moved)+len(r.Deleted) > 0
}

// Scaffolder applies a Layout to a project directory. It implements
// engine.Scaffolder.
type Scaffolder struct {
	ProjectDir string
	Layout     Layout
	Logger     zerolog.Logger
}

// New creates a scaffolder for the project at dir.
func New(dir string, layout Layout, logger zerolog.Logger) *Scaffolder {
	return &Scaffolder{ProjectDir: dir, Layout: layout, Logger: logger}
}

// EnsureLayout implements engine.Scaffolder.
func (s *Scaffolder) EnsureLayout(ctx context.Context) error {
	result, err := s.Apply(ctx)
	if err != nil {
		return err
	}
	s.Logger.Info().
		Int("created", len(result.Created)).
		Int("moved", len(result.Moved)).
		Int("deleted", len(result.Deleted)).
		Msg("Folders created successfully")
	return nil
}

// Apply creates the layout. It is idempotent: running it again reports every entry
// as unchanged. Moves happen before deletes, and a move is skipped when the source
// is absent or the destination already exists. Sibling .meta files follow the paths
// they describe.
func (s *Scaffolder) Apply(ctx context.Context) (*Result, error) {
	if s.Layout.Root == "" {
		return nil, fmt.Errorf("layout root is required")
	}
	if err := s.checkRelative(s.Layout.Root); err != nil {
		return nil, err
	}

	result := &Result{}

	if err := s.ensureDir(s.Layout.Root, result); err != nil {
		return result, err
	}
	for _, folder := range s.Layout.Folders {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.createFolder(folder, result); err != nil {
			return result, err
		}
	}

	for _, m := range s.Layout.Moves {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.move(m, result); err != nil {
			return result, err
		}
	}

	for _, d := range s.Layout.Deletes {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.remove(d, result); err != nil {
			return result, err
		}
	}

	return result, nil
}

// createFolder creates each level of a nested folder under the layout root.
func (s *Scaffolder) createFolder(folder string, result *Result) error {
	folder = strings.Trim(filepath.ToSlash(folder), "/")
	if folder == "" {
		return nil
	}

	current := s.Layout.Root
	for _, part := range strings.Split(folder, "/") {
		if part == "" {
			continue
		}
		current = current + "/" + part
		if err := s.ensureDir(current, result); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scaffolder) ensureDir(rel string, result *Result) error {
	if err := s.checkRelative(rel); err != nil {
		return err
	}
	path := s.abs(rel)

	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		result.Unchanged = append(result.Unchanged, clean(rel))
		return nil
	case err == nil:
		return fmt.Errorf("%s exists and is not a directory", rel)
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to stat %s: %w", rel, err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", rel, err)
	}
	result.Created = append(result.Created, clean(rel))
	s.Logger.Debug().Str("path", clean(rel)).Msg("Created folder")
	return nil
}

func (s *Scaffolder) move(m Move, result *Result) error {
	if err := s.checkRelative(m.From); err != nil {
		return err
	}
	if err := s.checkRelative(m.To); err != nil {
		return err
	}

	src, dst := s.abs(m.From), s.abs(m.To)
	if !exists(src) || exists(dst) {
		result.Unchanged = append(result.Unchanged, clean(m.From))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", m.To, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", m.From, m.To, err)
	}
	if exists(src+metaSuffix) && !exists(dst+metaSuffix) {
		if err := os.Rename(src+metaSuffix, dst+metaSuffix); err != nil {
			return fmt.Errorf("failed to move %s: %w", m.From+metaSuffix, err)
		}
	}

	result.Moved = append(result.Moved, clean(m.From)+" -> "+clean(m.To))
	s.Logger.Debug().Str("from", clean(m.From)).Str("to", clean(m.To)).Msg("Moved")
	return nil
}

func (s *Scaffolder) remove(rel string, result *Result) error {
	if err := s.checkRelative(rel); err != nil {
		return err
	}

	path := s.abs(rel)
	if !exists(path) {
		result.Unchanged = append(result.Unchanged, clean(rel))
		return nil
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", rel, err)
	}
	if err := os.Remove(path + metaSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", rel+metaSuffix, err)
	}

	result.Deleted = append(result.Deleted, clean(rel))
	s.Logger.Debug().Str("path", clean(rel)).Msg("Deleted")
	return nil
}

// checkRelative rejects absolute paths and paths escaping the project directory.
func (s *Scaffolder) checkRelative(rel string) error {
	if filepath.IsAbs(rel) || strings.HasPrefix(filepath.ToSlash(rel), "/") {
		return fmt.Errorf("layout path %q must be relative", rel)
	}
	c := clean(rel)
	if c == ".." || strings.HasPrefix(c, "../") {
		return fmt.Errorf("layout path %q escapes the project directory", rel)
	}
	return nil
}

func (s *Scaffolder) abs(rel string) string {
	return filepath.Join(s.ProjectDir, filepath.FromSlash(rel))
}

func clean(rel string) string {
	return filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel)))
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
