package engine

import (
	"reflect"
	"testing"
)

func TestSourceTemplate_Classify(t *testing.T) {
	tmpl := DefaultSourceTemplate()

	tests := []struct {
		name       string
		id         string
		wantKind   IdentifierKind
		wantTarget string
	}{
		{"registry", "com.acme.core", KindRegistry, "com.acme.core"},
		{"registry with version", "com.acme.core@1.2.0", KindRegistry, "com.acme.core@1.2.0"},
		{"source", "acme/toolkit", KindSource, "https://github.com/acme/toolkit.git"},
		{"source with whitespace", "  acme/toolkit ", KindSource, "https://github.com/acme/toolkit.git"},
		{"url passthrough", "https://example.org/x/y.git", KindSource, "https://example.org/x/y.git"},
		{"prefix is case sensitive", "Com.acme.core", KindSource, "https://github.com/Com.acme.core.git"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tmpl.Classify(tt.id)
			if got.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, got.Kind)
			}
			if got.Target != tt.wantTarget {
				t.Errorf("expected target %q, got %q", tt.wantTarget, got.Target)
			}
		})
	}
}

func TestSourceTemplate_Partition(t *testing.T) {
	tmpl := DefaultSourceTemplate()

	got := tmpl.Partition([]string{"com.acme.core", "acme/toolkit", "com.acme.ui"})

	wantRegistry := []string{"com.acme.core", "com.acme.ui"}
	wantSource := []string{"https://github.com/acme/toolkit.git"}

	if !reflect.DeepEqual(got.RegistryIDs, wantRegistry) {
		t.Errorf("expected registry ids %v, got %v", wantRegistry, got.RegistryIDs)
	}
	if !reflect.DeepEqual(got.SourceURLs, wantSource) {
		t.Errorf("expected source urls %v, got %v", wantSource, got.SourceURLs)
	}
}

func TestSourceTemplate_PartitionMixed(t *testing.T) {
	got := DefaultSourceTemplate().Partition([]string{"com.acme.tool", "solo-org/some-repo"})

	if !reflect.DeepEqual(got.RegistryIDs, []string{"com.acme.tool"}) {
		t.Errorf("expected registry ids [com.acme.tool], got %v", got.RegistryIDs)
	}
	if !reflect.DeepEqual(got.SourceURLs, []string{"https://github.com/solo-org/some-repo.git"}) {
		t.Errorf("expected source urls [https://github.com/solo-org/some-repo.git], got %v", got.SourceURLs)
	}
}

func TestSourceTemplate_PartitionIdempotentOnRegistryIDs(t *testing.T) {
	tmpl := DefaultSourceTemplate()
	inputs := [][]string{
		{"com.acme.core", "acme/toolkit", "com.acme.ui@2.0.0"},
		{" com.acme.padded ", "", "https://example.org/x.git"},
		{"com.a", "com.b", "com.c"},
		{"solo-org/some-repo"},
	}

	for _, in := range inputs {
		first := tmpl.Partition(in)
		second := tmpl.Partition(first.RegistryIDs)

		if !reflect.DeepEqual(second.RegistryIDs, first.RegistryIDs) {
			t.Errorf("%v: expected registry ids %v on reapply, got %v", in, first.RegistryIDs, second.RegistryIDs)
		}
		if len(second.SourceURLs) != 0 {
			t.Errorf("%v: expected no source urls on reapply, got %v", in, second.SourceURLs)
		}
	}
}

func TestSourceTemplate_PartitionEmpty(t *testing.T) {
	got := DefaultSourceTemplate().Partition(nil)

	if got.RegistryIDs == nil || got.SourceURLs == nil {
		t.Fatal("expected non-nil slices")
	}
	if len(got.RegistryIDs) != 0 || len(got.SourceURLs) != 0 {
		t.Errorf("expected empty partition, got %+v", got)
	}
}

func TestSourceTemplate_PartitionDropsBlank(t *testing.T) {
	got := DefaultSourceTemplate().Partition([]string{"", "   ", "com.acme.core"})

	if len(got.RegistryIDs) != 1 || len(got.SourceURLs) != 0 {
		t.Errorf("expected one registry id, got %+v", got)
	}
}

func TestSourceTemplate_CustomHost(t *testing.T) {
	tmpl := SourceTemplate{RegistryPrefix: "org.", Host: "https://git.example.org/", Suffix: ""}

	got := tmpl.Classify("team/repo")
	if got.Target != "https://git.example.org/team/repo" {
		t.Errorf("unexpected target %q", got.Target)
	}

	if tmpl.Classify("org.example.lib").Kind != KindRegistry {
		t.Error("expected custom prefix to classify as registry")
	}
}

func TestSourceTemplate_SourceName(t *testing.T) {
	tmpl := DefaultSourceTemplate()

	tests := map[string]string{
		"https://github.com/acme/toolkit.git": "toolkit",
		"https://github.com/acme/toolkit/":    "toolkit",
		"https://github.com/acme/toolkit":     "toolkit",
	}
	for url, want := range tests {
		if got := tmpl.SourceName(url); got != want {
			t.Errorf("SourceName(%q): expected %q, got %q", url, want, got)
		}
	}
}

func TestRegistryName(t *testing.T) {
	if got := RegistryName("com.acme.core@2.0.1"); got != "com.acme.core" {
		t.Errorf("expected com.acme.core, got %s", got)
	}
	if got := RegistryName("com.acme.core"); got != "com.acme.core" {
		t.Errorf("expected unchanged id, got %s", got)
	}
}

func TestAssetName(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"Vendor/Tools/Shiny Shader.unitypackage", "Shiny Shader"},
		{"Shiny Shader.UNITYPACKAGE", "Shiny Shader"},
		{`Vendor\Shiny.unitypackage`, "Shiny"},
		{"NoSuffix", "NoSuffix"},
	}
	for _, tt := range tests {
		if got := AssetName(tt.id, DefaultAssetSuffix); got != tt.want {
			t.Errorf("AssetName(%q): expected %q, got %q", tt.id, tt.want, got)
		}
	}
}
