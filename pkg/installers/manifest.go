package installers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

const emptyManifest = `{"dependencies": {}}`

// ManifestBackend installs packages by adding them to the "dependencies" object of
// a JSON package manifest. The editor resolves and downloads them on its next refresh.
//
// A registry identifier "name" or "name@version" becomes "name": version, falling back
// to DefaultVersion. A source URL becomes "<repository name>": url.
//
// A manifest created by the backend is pretty-printed. Edits to an existing one
// only touch the dependency entry and keep the rest of the file's layout.
type ManifestBackend struct {
	Path           string
	DefaultVersion string
	Template       engine.SourceTemplate

	mu sync.Mutex
}

// NewManifestBackend creates a backend for the manifest at path.
func NewManifestBackend(path, defaultVersion string, tmpl engine.SourceTemplate) *ManifestBackend {
	return &ManifestBackend{
		Path:           path,
		DefaultVersion: defaultVersion,
		Template:       tmpl,
	}
}

// BeginInstall implements engine.Backend.
func (b *ManifestBackend) BeginInstall(ctx context.Context, identifier string) (engine.Handle, error) {
	identifier = strings.TrimSpace(identifier)

	name, value := b.entry(identifier)
	if name == "" || value == "" {
		return nil, engine.NewBackendError(engine.KindPackages, identifier, "cannot derive a manifest entry", nil)
	}

	return Start(func() engine.Result {
		if err := b.set(name, value); err != nil {
			return engine.FailureFrom(
				engine.NewBackendError(engine.KindPackages, identifier, "failed to update manifest", err).
					WithDetail("manifest", b.Path),
			)
		}
		return engine.Success(name + "@" + value)
	}), nil
}

// ListInstalledPackageIDs returns the keys of the manifest's dependencies. A missing
// manifest has no dependencies.
func (b *ManifestBackend) ListInstalledPackageIDs(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	data, err := b.read()
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0)
	gjson.GetBytes(data, "dependencies").ForEach(func(key, _ gjson.Result) bool {
		ids = append(ids, key.String())
		return true
	})
	return ids, nil
}

// Dependencies returns the manifest's dependencies as name to version or URL.
func (b *ManifestBackend) Dependencies() (map[string]string, error) {
	b.mu.Lock()
	data, err := b.read()
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	deps := make(map[string]string)
	gjson.GetBytes(data, "dependencies").ForEach(func(key, value gjson.Result) bool {
		deps[key.String()] = value.String()
		return true
	})
	return deps, nil
}

func (b *ManifestBackend) entry(identifier string) (name, value string) {
	if strings.Contains(identifier, "://") {
		return b.Template.SourceName(identifier), identifier
	}

	name = engine.RegistryName(identifier)
	value = b.DefaultVersion
	if len(identifier) > len(name)+1 {
		value = identifier[len(name)+1:]
	}
	return name, value
}

func (b *ManifestBackend) set(name, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, statErr := os.Stat(b.Path)
	created := errors.Is(statErr, fs.ErrNotExist)

	data, err := b.read()
	if err != nil {
		return err
	}

	updated, err := sjson.SetBytes(data, "dependencies."+escapePathKey(name), value)
	if err != nil {
		return fmt.Errorf("failed to set dependency %s: %w", name, err)
	}

	if created {
		updated = pretty.Pretty(updated)
	}
	return b.write(updated)
}

func (b *ManifestBackend) read() ([]byte, error) {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []byte(emptyManifest), nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("manifest %s is not valid JSON", b.Path)
	}
	return data, nil
}

// write replaces the manifest atomically.
func (b *ManifestBackend) write(data []byte) error {
	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := os.Rename(tmp.Name(), b.Path); err != nil {
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}

var pathKeyEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
	`!`, `\!`,
)

// escapePathKey escapes a literal object key for use in a gjson/sjson path.
func escapePathKey(key string) string {
	return pathKeyEscaper.Replace(key)
}
