package config

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

//go:embed templates/*
var templateFS embed.FS

// Template file names.
const (
	TemplatePackages = "packages.json"
	TemplateAssets   = "editor-assets.json"
	TemplateManifest = "manifest.cue"
	TemplateScript   = "setup.star"
)

// TemplateResult lists what WriteTemplates did.
type TemplateResult struct {
	Written []string
	Skipped []string
}

// WriteTemplates writes starter list files into dir. Existing files are kept
// unless overwrite is set. With no names, only the two JSON lists are written.
func WriteTemplates(dir string, overwrite bool, names ...string) (*TemplateResult, error) {
	if len(names) == 0 {
		names = []string{TemplatePackages, TemplateAssets}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create resources directory: %w", err)
	}

	result := &TemplateResult{}
	for _, name := range names {
		data, err := templateFS.ReadFile("templates/" + name)
		if err != nil {
			return result, fmt.Errorf("unknown template %s: %w", name, err)
		}

		path := filepath.Join(dir, name)
		if !overwrite {
			if _, err := os.Stat(path); err == nil {
				result.Skipped = append(result.Skipped, path)
				continue
			}
		}

		if err := os.WriteFile(path, data, 0o644); err != nil {
			return result, fmt.Errorf("failed to write template %s: %w", path, err)
		}
		result.Written = append(result.Written, path)
	}
	return result, nil
}

// TemplateNames returns the names of all embedded templates.
func TemplateNames() []string {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}
