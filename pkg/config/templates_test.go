package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteTemplates_Defaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Resources")

	result, err := WriteTemplates(dir, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Written) != 2 || len(result.Skipped) != 0 {
		t.Errorf("expected 2 written, got %+v", result)
	}

	packages, err := NewJSONSource(dir).RequiredPackages(context.Background())
	if err != nil {
		t.Fatalf("template packages.json is not readable: %v", err)
	}
	if len(packages) == 0 {
		t.Error("expected template packages")
	}
}

func TestWriteTemplates_KeepsExisting(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, TemplatePackages, `{"packages": ["mine"]}`)

	result, err := WriteTemplates(dir, false, TemplatePackages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Skipped) != 1 {
		t.Errorf("expected existing file to be skipped, got %+v", result)
	}

	data, _ := os.ReadFile(path)
	if string(data) != `{"packages": ["mine"]}` {
		t.Errorf("existing file was modified: %s", data)
	}

	if _, err := WriteTemplates(dir, true, TemplatePackages); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) == `{"packages": ["mine"]}` {
		t.Error("expected overwrite to replace the file")
	}
}

func TestWriteTemplates_Unknown(t *testing.T) {
	if _, err := WriteTemplates(t.TempDir(), false, "nope.txt"); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestTemplates_Parse(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteTemplates(dir, false, TemplateNames()...); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	if _, err := NewCUESource(filepath.Join(dir, TemplateManifest), nil).RequiredPackages(ctx); err != nil {
		t.Errorf("manifest template does not load: %v", err)
	}

	script := NewStarlarkSource(filepath.Join(dir, TemplateScript), time.Second)
	script.Input = map[string]interface{}{"platform": "linux"}
	if _, err := script.RequiredPackages(ctx); err != nil {
		t.Errorf("script template does not load: %v", err)
	}
}

func TestTemplateNames(t *testing.T) {
	names := TemplateNames()
	if len(names) != 4 {
		t.Errorf("expected 4 templates, got %v", names)
	}
}
