package installers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

const maxSuggestions = 3

// AssetBackend installs assets by copying the cached file into the project's import
// directory.
type AssetBackend struct {
	Locator   Locator
	ImportDir string
}

// NewAssetBackend creates an asset backend.
func NewAssetBackend(locator Locator, importDir string) *AssetBackend {
	return &AssetBackend{Locator: locator, ImportDir: importDir}
}

// BeginInstall implements engine.Backend.
func (b *AssetBackend) BeginInstall(ctx context.Context, identifier string) (engine.Handle, error) {
	if b.Locator == nil {
		return nil, engine.NewBackendError(engine.KindAssets, identifier, "no asset locator configured", nil)
	}

	return Start(func() engine.Result {
		src, err := b.Locator.Resolve(ctx, identifier)
		if err != nil {
			return b.notFound(ctx, identifier, err)
		}

		dst := filepath.Join(b.ImportDir, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			return engine.FailureFrom(
				engine.NewBackendError(engine.KindAssets, identifier, "failed to import asset", err).
					WithDetail("source", src),
			)
		}
		return engine.Success(filepath.Base(src))
	}), nil
}

func (b *AssetBackend) notFound(ctx context.Context, identifier string, err error) engine.Result {
	var e *engine.Error
	if !errors.As(err, &e) || e.Code != engine.ErrCodeAssetNotFound {
		return engine.FailureFrom(err)
	}

	msg := fmt.Sprintf("Asset not found in cache: %s. Download it in the editor's package manager first", identifier)

	if s, ok := b.Locator.(Suggester); ok {
		if suggestions := s.Suggest(ctx, identifier, maxSuggestions); len(suggestions) > 0 {
			e = e.WithDetail("suggestions", suggestions)
			msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(suggestions, ", "))
		}
	}
	return engine.Result{Message: msg, Err: e}
}

// copyFile copies src to dst through a temp file in dst's directory.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".import-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
