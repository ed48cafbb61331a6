package installers

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
)

// PackageLister lists installed package ids.
type PackageLister interface {
	ListInstalledPackageIDs(ctx context.Context) ([]string, error)
}

// AssetLister lists installed asset paths.
type AssetLister interface {
	ListInstalledAssetPaths(ctx context.Context) ([]string, error)
}

// FileInventory lists the files of a project tree as relative slash paths.
type FileInventory struct {
	Root string

	// Skip holds directory names that are not descended into.
	Skip []string
}

// NewFileInventory creates an inventory rooted at root that skips the editor's
// generated directories.
func NewFileInventory(root string) *FileInventory {
	return &FileInventory{
		Root: root,
		Skip: []string{"Library", "Temp", "Logs", "obj", ".git", ".bootstrap"},
	}
}

// ListInstalledAssetPaths walks the project tree.
func (i *FileInventory) ListInstalledAssetPaths(ctx context.Context) ([]string, error) {
	skip := make(map[string]struct{}, len(i.Skip))
	for _, s := range i.Skip {
		skip[s] = struct{}{}
	}

	paths := make([]string, 0)
	err := filepath.WalkDir(i.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if _, ok := skip[d.Name()]; ok && path != i.Root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".meta") {
			return nil
		}

		rel, err := filepath.Rel(i.Root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// CompositeInventory implements engine.Inventory from separate listers.
type CompositeInventory struct {
	Packages PackageLister
	Assets   AssetLister
}

// ListInstalledPackageIDs implements engine.Inventory.
func (c *CompositeInventory) ListInstalledPackageIDs(ctx context.Context) ([]string, error) {
	if c.Packages == nil {
		return []string{}, nil
	}
	return c.Packages.ListInstalledPackageIDs(ctx)
}

// ListInstalledAssetPaths implements engine.Inventory.
func (c *CompositeInventory) ListInstalledAssetPaths(ctx context.Context) ([]string, error) {
	if c.Assets == nil {
		return []string{}, nil
	}
	return c.Assets.ListInstalledAssetPaths(ctx)
}
