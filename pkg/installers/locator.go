package installers

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

const cacheFolder = "Asset Store-5.x"

// Locator resolves an asset identifier to a local file.
type Locator interface {
	Resolve(ctx context.Context, identifier string) (string, error)
}

// Suggester proposes cached assets similar to an identifier that could not be found.
type Suggester interface {
	Suggest(ctx context.Context, identifier string, limit int) []string
}

// CacheLocator finds assets in the editor's local asset cache. Identifiers are paths
// relative to the cache directory, e.g. "Publisher/Category/Tool.unitypackage".
type CacheLocator struct {
	// Platform is "macos", "windows" or "linux". Empty means the running platform.
	Platform string

	// HomeDir defaults to the current user's home directory.
	HomeDir string

	// Override replaces the platform directory when set.
	Override string

	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// NewCacheLocator creates a locator for the running platform. A non-empty override
// is used as the cache directory.
func NewCacheLocator(override string) *CacheLocator {
	return &CacheLocator{Override: override}
}

// Dir returns the asset cache directory.
func (l *CacheLocator) Dir() string {
	if l.Override != "" {
		return l.Override
	}

	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	home := l.HomeDir
	if home == "" {
		home, _ = os.UserHomeDir()
	}

	switch l.platform() {
	case "macos":
		return filepath.Join(home, "Library", "Unity", cacheFolder)
	case "windows":
		appData := getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "Unity", cacheFolder)
	default:
		data := getenv("XDG_DATA_HOME")
		if data == "" {
			data = filepath.Join(home, ".local", "share")
		}
		return filepath.Join(data, "Unity", cacheFolder)
	}
}

// Resolve implements Locator. It reports ASSET_NOT_FOUND if the cache directory or
// the file does not exist, and VALIDATION_ERROR for identifiers outside the cache.
func (l *CacheLocator) Resolve(ctx context.Context, identifier string) (string, error) {
	rel, err := cacheRelative(identifier)
	if err != nil {
		return "", err
	}
	dir := l.Dir()

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", engine.NewAssetNotFoundError(identifier, dir).
			WithDetail("reason", "asset cache directory does not exist")
	}

	file := filepath.Join(dir, filepath.FromSlash(rel))
	info, err = os.Stat(file)
	if err != nil || info.IsDir() {
		return "", engine.NewAssetNotFoundError(identifier, file)
	}
	return file, nil
}

// List returns cache-relative slash paths of every file in the cache.
func (l *CacheLocator) List(ctx context.Context) ([]string, error) {
	dir := l.Dir()
	files := make([]string, 0)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return files, nil
}

// Suggest implements Suggester with fuzzy matching over the cache listing.
func (l *CacheLocator) Suggest(ctx context.Context, identifier string, limit int) []string {
	files, err := l.List(ctx)
	if err != nil {
		return nil
	}
	return suggest(identifier, files, limit)
}

func (l *CacheLocator) platform() string {
	if l.Platform != "" {
		return l.Platform
	}
	switch runtime.GOOS {
	case "darwin":
		return "macos"
	case "windows":
		return "windows"
	default:
		return "linux"
	}
}

// cacheRelative turns an asset identifier into a clean slash path below a cache
// root. Identifiers that would resolve outside the root are rejected.
func cacheRelative(identifier string) (string, error) {
	rel := path.Clean(strings.TrimPrefix(strings.ReplaceAll(identifier, "\\", "/"), "/"))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || filepath.IsAbs(filepath.FromSlash(rel)) {
		return "", engine.NewError(engine.ErrCodeValidation, "asset identifier escapes the asset cache", nil).
			WithKind(engine.KindAssets).
			WithIdentifier(identifier)
	}
	return rel, nil
}

// suggest ranks candidates against the asset's base name, falling back to the full
// identifier when the base name matches nothing.
func suggest(identifier string, candidates []string, limit int) []string {
	if len(candidates) == 0 || limit <= 0 {
		return nil
	}

	matches := fuzzy.Find(engine.AssetName(identifier, ""), candidates)
	if len(matches) == 0 {
		matches = fuzzy.Find(identifier, candidates)
	}

	out := make([]string, 0, limit)
	for _, m := range matches {
		if len(out) == limit {
			break
		}
		out = append(out, m.Str)
	}
	return out
}
