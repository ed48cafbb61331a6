package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// JSONSource reads identifier lists from two JSON files in a resources directory:
//
//	packages.json       {"packages": ["com.acme.core", "acme/toolkit"]}
//	editor-assets.json  {"assets": ["Vendor/Tool.unitypackage"]}
//
// Entries are trimmed and blank entries dropped before schema validation.
type JSONSource struct {
	Dir          string
	PackagesFile string
	AssetsFile   string

	// Schemas validates list entries when set.
	Schemas *SchemaRegistry
}

// NewJSONSource creates a source with the default file names.
func NewJSONSource(dir string) *JSONSource {
	return &JSONSource{
		Dir:          dir,
		PackagesFile: "packages.json",
		AssetsFile:   "editor-assets.json",
	}
}

// RequiredPackages implements engine.ConfigSource.
func (s *JSONSource) RequiredPackages(ctx context.Context) ([]string, error) {
	return s.readList(ctx, engine.KindPackages, s.PackagesFile, "packages", SchemaPackageList)
}

// RequiredAssets implements engine.ConfigSource.
func (s *JSONSource) RequiredAssets(ctx context.Context) ([]string, error) {
	return s.readList(ctx, engine.KindAssets, s.AssetsFile, "assets", SchemaAssetList)
}

func (s *JSONSource) readList(
	ctx context.Context,
	kind engine.ResourceKind,
	file, key, schema string,
) ([]string, error) {
	path := filepath.Join(s.Dir, file)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, engine.NewConfigMissingError(kind, path, err)
		}
		return nil, engine.NewConfigMissingError(kind, path, err).WithOperation("read")
	}

	if !gjson.ValidBytes(data) {
		return nil, engine.NewError(engine.ErrCodeValidation, "invalid JSON", nil).
			WithKind(kind).
			WithDetail("location", path)
	}

	list := gjson.GetBytes(data, key)
	if !list.Exists() || !list.IsArray() {
		return nil, engine.NewConfigEmptyError(kind, path)
	}

	ids := make([]string, 0, len(list.Array()))
	for _, item := range list.Array() {
		if item.Type != gjson.String {
			return nil, engine.NewError(engine.ErrCodeValidation, "list entries must be strings", nil).
				WithKind(kind).
				WithDetail("location", path).
				WithDetail("entry", item.Raw)
		}
		if id := strings.TrimSpace(item.String()); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, engine.NewConfigEmptyError(kind, path)
	}

	if s.Schemas != nil {
		if err := s.Schemas.ValidateAgainstSchema(ctx, schema, map[string]interface{}{key: ids}); err != nil {
			return nil, engine.NewError(engine.ErrCodeValidation, "list does not match schema", err).
				WithKind(kind).
				WithDetail("location", path)
		}
	}

	return ids, nil
}
