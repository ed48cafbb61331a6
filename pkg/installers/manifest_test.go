package installers

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

func waitHandle(t *testing.T, h engine.Handle) engine.Result {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !h.IsComplete() {
		if time.Now().After(deadline) {
			t.Fatal("handle did not complete")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return h.Result()
}

func install(t *testing.T, b engine.Backend, id string) engine.Result {
	t.Helper()
	h, err := b.BeginInstall(context.Background(), id)
	if err != nil {
		t.Fatalf("BeginInstall(%s) failed: %v", id, err)
	}
	return waitHandle(t, h)
}

func TestManifestBackend_CreatesManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Packages", "manifest.json")
	b := NewManifestBackend(path, "latest", engine.DefaultSourceTemplate())

	result := install(t, b, "com.acme.core")
	if !result.Succeeded {
		t.Fatalf("expected success, got %s", result.Message)
	}
	if result.ResolvedName != "com.acme.core@latest" {
		t.Errorf("expected resolved name com.acme.core@latest, got %s", result.ResolvedName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if v := gjson.GetBytes(data, `dependencies.com\.acme\.core`).String(); v != "latest" {
		t.Errorf("expected dependency version latest, got %q in %s", v, data)
	}
}

func TestManifestBackend_Entries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte(`{
  "dependencies": {
    "com.unity.ugui": "2.0.0"
  },
  "scopedRegistries": []
}`), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewManifestBackend(path, "latest", engine.DefaultSourceTemplate())

	tests := []struct {
		id       string
		resolved string
	}{
		{"com.acme.core@1.4.2", "com.acme.core@1.4.2"},
		{"https://github.com/acme/toolkit.git", "toolkit@https://github.com/acme/toolkit.git"},
		{"com.unity.ugui@2.1.0", "com.unity.ugui@2.1.0"},
	}
	for _, tt := range tests {
		result := install(t, b, tt.id)
		if !result.Succeeded {
			t.Fatalf("install %s failed: %s", tt.id, result.Message)
		}
		if result.ResolvedName != tt.resolved {
			t.Errorf("expected %s, got %s", tt.resolved, result.ResolvedName)
		}
	}

	deps, err := b.Dependencies()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{
		"com.unity.ugui": "2.1.0",
		"com.acme.core":  "1.4.2",
		"toolkit":        "https://github.com/acme/toolkit.git",
	}
	for name, version := range want {
		if deps[name] != version {
			t.Errorf("expected %s=%s, got %q", name, version, deps[name])
		}
	}

	data, _ := os.ReadFile(path)
	if !gjson.GetBytes(data, "scopedRegistries").IsArray() {
		t.Error("expected unrelated manifest keys to be preserved")
	}
}

func TestManifestBackend_KeepsExistingFormatting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	original := `{"dependencies":{"com.acme.core":"1.0.0"},"scopedRegistries":[]}`
	if err := os.WriteFile(path, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}
	b := NewManifestBackend(path, "latest", engine.DefaultSourceTemplate())

	if result := install(t, b, "com.acme.ui"); !result.Succeeded {
		t.Fatalf("expected success, got %s", result.Message)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"dependencies":{"com.acme.core":"1.0.0","com.acme.ui":"latest"},"scopedRegistries":[]}`
	if string(data) != want {
		t.Errorf("expected manifest to keep its layout:\n%s\ngot:\n%s", want, data)
	}
}

func TestManifestBackend_Inventory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	b := NewManifestBackend(path, "latest", engine.DefaultSourceTemplate())
	ctx := context.Background()

	ids, err := b.ListInstalledPackageIDs(ctx)
	if err != nil {
		t.Fatalf("unexpected error for missing manifest: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no packages, got %v", ids)
	}

	install(t, b, "com.acme.core")
	install(t, b, "https://github.com/acme/toolkit.git")

	ids, err = b.ListInstalledPackageIDs(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "com.acme.core" || ids[1] != "toolkit" {
		t.Errorf("unexpected ids %v", ids)
	}
}

func TestManifestBackend_InvalidManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte(`{"dependencies": `), 0o644); err != nil {
		t.Fatal(err)
	}
	b := NewManifestBackend(path, "latest", engine.DefaultSourceTemplate())

	result := install(t, b, "com.acme.core")
	if result.Succeeded {
		t.Fatal("expected failure for invalid manifest")
	}
	if !engine.IsBackendFailure(result.Err) {
		t.Errorf("expected backend failure, got %v", result.Err)
	}

	if _, err := b.ListInstalledPackageIDs(context.Background()); err == nil {
		t.Error("expected inventory error for invalid manifest")
	}
}

func TestManifestBackend_RejectsBlank(t *testing.T) {
	b := NewManifestBackend(filepath.Join(t.TempDir(), "m.json"), "", engine.DefaultSourceTemplate())

	if _, err := b.BeginInstall(context.Background(), "com.acme.core"); err == nil {
		t.Error("expected error without a version")
	}
	if _, err := b.BeginInstall(context.Background(), "  "); err == nil {
		t.Error("expected error for blank identifier")
	}
}

func TestEscapePathKey(t *testing.T) {
	tests := map[string]string{
		"toolkit":       "toolkit",
		"com.acme.core": `com\.acme\.core`,
		"a*b?":          `a\*b\?`,
	}
	for in, want := range tests {
		if got := escapePathKey(in); got != want {
			t.Errorf("escapePathKey(%q): expected %q, got %q", in, want, got)
		}
	}
}
