package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// Reloader is implemented by sources that cache their input.
type Reloader interface {
	Reload()
}

// MultiSource concatenates several sources. Identifiers are de-duplicated with the
// first occurrence winning. Missing or empty members are skipped; the combined
// source reports CONFIG_MISSING only if every member is missing and CONFIG_EMPTY if
// no member produced an identifier. Any other member error is returned as is.
type MultiSource struct {
	Sources []engine.ConfigSource
}

// NewMultiSource creates a combined source.
func NewMultiSource(sources ...engine.ConfigSource) *MultiSource {
	return &MultiSource{Sources: sources}
}

// RequiredPackages implements engine.ConfigSource.
func (m *MultiSource) RequiredPackages(ctx context.Context) ([]string, error) {
	return m.collect(engine.KindPackages, func(s engine.ConfigSource) ([]string, error) {
		return s.RequiredPackages(ctx)
	})
}

// RequiredAssets implements engine.ConfigSource.
func (m *MultiSource) RequiredAssets(ctx context.Context) ([]string, error) {
	return m.collect(engine.KindAssets, func(s engine.ConfigSource) ([]string, error) {
		return s.RequiredAssets(ctx)
	})
}

// Reload reloads every member that caches its input.
func (m *MultiSource) Reload() {
	for _, s := range m.Sources {
		if r, ok := s.(Reloader); ok {
			r.Reload()
		}
	}
}

func (m *MultiSource) collect(
	kind engine.ResourceKind,
	read func(engine.ConfigSource) ([]string, error),
) ([]string, error) {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	missing := make([]error, 0)

	for _, s := range m.Sources {
		list, err := read(s)
		switch {
		case engine.IsConfigMissing(err):
			missing = append(missing, err)
			continue
		case engine.IsConfigEmpty(err):
			continue
		case err != nil:
			return nil, err
		}

		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	if len(ids) > 0 {
		return ids, nil
	}
	if len(m.Sources) > 0 && len(missing) == len(m.Sources) {
		return nil, engine.NewConfigMissingError(kind, fmt.Sprintf("%d sources", len(m.Sources)), errors.Join(missing...))
	}
	return nil, engine.NewConfigEmptyError(kind, fmt.Sprintf("%d sources", len(m.Sources)))
}
