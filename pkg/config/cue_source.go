package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// CUESource reads identifier lists from a CUE manifest:
//
//	packages: ["com.acme.core", "acme/toolkit"]
//	assets: ["Vendor/Tool.unitypackage"]
//
// The manifest is unified with the built-in #Manifest schema, so CUE constraints and
// references inside the file are resolved before the lists are read.
type CUESource struct {
	Path    string
	Schemas *SchemaRegistry

	mu       sync.Mutex
	loaded   bool
	manifest manifest
	err      error
}

type manifest struct {
	Packages []string `json:"packages"`
	Assets   []string `json:"assets"`
}

// NewCUESource creates a source for the manifest at path.
func NewCUESource(path string, schemas *SchemaRegistry) *CUESource {
	if schemas == nil {
		schemas = NewSchemaRegistry()
	}
	return &CUESource{Path: path, Schemas: schemas}
}

// RequiredPackages implements engine.ConfigSource.
func (s *CUESource) RequiredPackages(ctx context.Context) ([]string, error) {
	m, err := s.load()
	if err != nil {
		return nil, s.classify(engine.KindPackages, err)
	}
	if len(m.Packages) == 0 {
		return nil, engine.NewConfigEmptyError(engine.KindPackages, s.Path)
	}
	return m.Packages, nil
}

// RequiredAssets implements engine.ConfigSource.
func (s *CUESource) RequiredAssets(ctx context.Context) ([]string, error) {
	m, err := s.load()
	if err != nil {
		return nil, s.classify(engine.KindAssets, err)
	}
	if len(m.Assets) == 0 {
		return nil, engine.NewConfigEmptyError(engine.KindAssets, s.Path)
	}
	return m.Assets, nil
}

// Reload discards the cached manifest so the next call reads the file again.
func (s *CUESource) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
}

func (s *CUESource) load() (manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.manifest, s.err = s.parse()
		s.loaded = true
	}
	return s.manifest, s.err
}

func (s *CUESource) parse() (manifest, error) {
	var m manifest

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return m, err
	}

	val := s.Schemas.Context().CompileBytes(data, cue.Filename(s.Path))
	if err := val.Err(); err != nil {
		return m, fmt.Errorf("failed to compile %s: %s", s.Path, formatCUEError(err))
	}

	unified, err := s.Schemas.Unify(SchemaManifest, val)
	if err != nil {
		return m, err
	}

	if err := unified.Decode(&m); err != nil {
		return m, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return m, nil
}

func (s *CUESource) classify(kind engine.ResourceKind, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return engine.NewConfigMissingError(kind, s.Path, err)
	}
	return engine.NewError(engine.ErrCodeValidation, "invalid manifest", err).
		WithKind(kind).
		WithDetail("location", s.Path)
}

// formatCUEError flattens a CUE error list into one line per error with positions.
func formatCUEError(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, strings.TrimSpace(cueerrors.Details(e, nil)))
	}
	return strings.Join(parts, "; ")
}
