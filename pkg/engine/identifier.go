package engine

import (
	"path"
	"strings"
)

// IdentifierKind is the classification of a package identifier.
type IdentifierKind int

const (
	// KindRegistry identifies a package published to a package registry.
	KindRegistry IdentifierKind = iota

	// KindSource identifies a package installed from a source repository.
	KindSource
)

// String returns the name of the identifier kind.
func (k IdentifierKind) String() string {
	switch k {
	case KindRegistry:
		return "registry"
	case KindSource:
		return "source"
	default:
		return "unknown"
	}
}

// SourceTemplate controls how identifiers are classified and how source identifiers
// are turned into repository URLs.
type SourceTemplate struct {
	// RegistryPrefix marks registry identifiers.
	RegistryPrefix string `json:"registry_prefix" yaml:"registry_prefix"`

	// Host is the base URL of the source host.
	Host string `json:"host" yaml:"host"`

	// Suffix is appended to source URLs.
	Suffix string `json:"suffix" yaml:"suffix"`
}

// DefaultSourceTemplate returns the template used when none is configured.
func DefaultSourceTemplate() SourceTemplate {
	return SourceTemplate{
		RegistryPrefix: "com.",
		Host:           "https://github.com",
		Suffix:         ".git",
	}
}

// Classified is a classified package identifier.
type Classified struct {
	// ID is the identifier as written in configuration.
	ID string

	// Kind is the identifier's classification.
	Kind IdentifierKind

	// Target is what gets submitted to the package backend: the identifier itself for
	// registry packages, the repository URL for source packages.
	Target string
}

// Partition is the result of classifying a list of identifiers.
type Partition struct {
	RegistryIDs []string
	SourceURLs  []string
}

// Classify classifies a single identifier.
// Identifiers that are already URLs are kept as source targets unchanged.
func (t SourceTemplate) Classify(id string) Classified {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, t.RegistryPrefix) {
		return Classified{ID: id, Kind: KindRegistry, Target: id}
	}
	if strings.Contains(id, "://") {
		return Classified{ID: id, Kind: KindSource, Target: id}
	}
	host := strings.TrimSuffix(t.Host, "/")
	return Classified{ID: id, Kind: KindSource, Target: host + "/" + strings.TrimPrefix(id, "/") + t.Suffix}
}

// Partition splits identifiers into registry ids and source URLs, keeping their
// relative order. Blank identifiers are dropped.
func (t SourceTemplate) Partition(ids []string) Partition {
	p := Partition{
		RegistryIDs: make([]string, 0),
		SourceURLs:  make([]string, 0),
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		c := t.Classify(id)
		switch c.Kind {
		case KindRegistry:
			p.RegistryIDs = append(p.RegistryIDs, c.Target)
		case KindSource:
			p.SourceURLs = append(p.SourceURLs, c.Target)
		}
	}
	return p
}

// SourceName returns the repository name of a source URL: its last path segment
// without the template suffix.
func (t SourceTemplate) SourceName(url string) string {
	name := path.Base(strings.TrimSuffix(url, "/"))
	if t.Suffix != "" {
		name = strings.TrimSuffix(name, t.Suffix)
	}
	return name
}

// RegistryName strips an optional "@version" from a registry identifier.
func RegistryName(id string) string {
	if i := strings.LastIndex(id, "@"); i > 0 {
		return id[:i]
	}
	return id
}

// AssetName returns the base name of an asset identifier without the given suffix.
// The suffix comparison is case-insensitive.
func AssetName(id, suffix string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(id), "\\", "/"))
	if suffix != "" && len(name) >= len(suffix) &&
		strings.EqualFold(name[len(name)-len(suffix):], suffix) {
		name = name[:len(name)-len(suffix)]
	}
	return name
}
