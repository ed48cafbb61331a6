package config

import (
	"path/filepath"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// NewSource assembles the configuration source described by the settings: the JSON
// lists in the resources directory, followed by the optional CUE manifest and
// Starlark script.
func NewSource(s *Settings, schemas *SchemaRegistry) *MultiSource {
	if schemas == nil {
		schemas = NewSchemaRegistry()
	}

	lists := &JSONSource{
		Dir:          s.ProjectPath(s.Project.ResourcesDir),
		PackagesFile: s.Sources.PackagesFile,
		AssetsFile:   s.Sources.AssetsFile,
		Schemas:      schemas,
	}
	sources := []engine.ConfigSource{lists}

	if s.Sources.Manifest != "" {
		sources = append(sources, NewCUESource(s.ProjectPath(s.Sources.Manifest), schemas))
	}
	if s.Sources.Script != "" {
		sources = append(sources, NewStarlarkSource(s.ProjectPath(s.Sources.Script), s.Sources.ScriptTimeout))
	}

	return NewMultiSource(sources...)
}

// WatchPaths returns the files backing the configuration sources.
func WatchPaths(s *Settings) []string {
	dir := s.ProjectPath(s.Project.ResourcesDir)
	paths := []string{
		filepath.Join(dir, s.Sources.PackagesFile),
		filepath.Join(dir, s.Sources.AssetsFile),
	}
	if s.Sources.Manifest != "" {
		paths = append(paths, s.ProjectPath(s.Sources.Manifest))
	}
	if s.Sources.Script != "" {
		paths = append(paths, s.ProjectPath(s.Sources.Script))
	}
	return paths
}
