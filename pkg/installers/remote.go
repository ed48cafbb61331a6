package installers

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// RemoteFS is the subset of an SFTP client used by RemoteLocator.
type RemoteFS interface {
	DownloadFile(ctx context.Context, remotePath, localPath string) error
	ListDir(ctx context.Context, remoteDir string) ([]string, error)
}

// RemoteLocator resolves assets from a shared cache on a remote host. Files are
// downloaded into StagingDir, keeping the identifier's relative path, and reused
// when already staged.
type RemoteLocator struct {
	FS         RemoteFS
	RemoteDir  string
	StagingDir string
	Logger     zerolog.Logger
}

// Resolve implements Locator.
func (l *RemoteLocator) Resolve(ctx context.Context, identifier string) (string, error) {
	rel, err := cacheRelative(identifier)
	if err != nil {
		return "", err
	}
	local := filepath.Join(l.StagingDir, filepath.FromSlash(rel))

	if info, err := os.Stat(local); err == nil && !info.IsDir() {
		return local, nil
	}

	remote := path.Join(l.RemoteDir, rel)
	l.Logger.Debug().Str("remote", remote).Str("local", local).Msg("Downloading asset")

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", err
	}
	if err := l.FS.DownloadFile(ctx, remote, local); err != nil {
		return "", engine.NewAssetNotFoundError(identifier, remote).
			WithDetail("reason", err.Error())
	}
	return local, nil
}

// Suggest implements Suggester using the listing of the remote directory that would
// contain the asset.
func (l *RemoteLocator) Suggest(ctx context.Context, identifier string, limit int) []string {
	rel, err := cacheRelative(identifier)
	if err != nil {
		return nil
	}
	dir := path.Dir(rel)

	names, err := l.FS.ListDir(ctx, path.Join(l.RemoteDir, dir))
	if err != nil {
		return nil
	}

	candidates := make([]string, len(names))
	for i, name := range names {
		candidates[i] = path.Join(dir, name)
	}
	return suggest(identifier, candidates, limit)
}
