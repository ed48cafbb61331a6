package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/bootstrap/pkg/config"
	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/policy"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCommand("test", "none", "today")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	settingsPath := filepath.Join(dir, "bootstrap.yaml")

	out, err := runCommand(t, "init", "--project", dir, "--config", settingsPath, "--store=false")
	if err != nil {
		t.Fatalf("init failed: %v\n%s", err, out)
	}

	if _, err := os.Stat(settingsPath); err != nil {
		t.Errorf("expected settings file, got %v", err)
	}
	resources := filepath.Join(dir, "Assets", "_Project", "Resources")
	for _, name := range []string{config.TemplatePackages, config.TemplateAssets} {
		if _, err := os.Stat(filepath.Join(resources, name)); err != nil {
			t.Errorf("expected template %s, got %v", name, err)
		}
	}

	out, err = runCommand(t, "init", "--project", dir, "--config", settingsPath, "--store=false")
	if err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	if !strings.Contains(out, "Settings already exist") {
		t.Errorf("expected existing settings to be kept, got:\n%s", out)
	}
	if !strings.Contains(out, "Kept existing") {
		t.Errorf("expected existing templates to be kept, got:\n%s", out)
	}
}

func TestScaffoldCommand(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "Assets", "Scenes"), 0o755); err != nil {
		t.Fatalf("failed to create scenes: %v", err)
	}

	out, err := runCommand(t, "scaffold", "--project", dir, "--config", filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("scaffold failed: %v\n%s", err, out)
	}

	for _, p := range []string{"Assets/_Project/Scripts", "Assets/_Project/Scenes"} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p))); err != nil {
			t.Errorf("expected %s to exist, got %v", p, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "Assets", "Scenes")); !os.IsNotExist(err) {
		t.Error("expected Assets/Scenes to be moved")
	}

	out, err = runCommand(t, "scaffold", "--project", dir, "--config", filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("second scaffold failed: %v", err)
	}
	if !strings.Contains(out, "already up to date") {
		t.Errorf("expected no changes on second run, got:\n%s", out)
	}
}

type stubSource struct {
	packages    []string
	packagesErr error
	assets      []string
	assetsErr   error
}

func (s *stubSource) RequiredPackages(ctx context.Context) ([]string, error) {
	return s.packages, s.packagesErr
}

func (s *stubSource) RequiredAssets(ctx context.Context) ([]string, error) {
	return s.assets, s.assetsErr
}

func TestValidateSources(t *testing.T) {
	source := &stubSource{
		packagesErr: engine.NewConfigEmptyError(engine.KindPackages, "packages.json"),
		assetsErr:   engine.NewConfigMissingError(engine.KindAssets, "editor-assets.json", errors.New("no such file")),
	}

	results := validateSources(context.Background(), source)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	assets, packages := results[0], results[1]
	if assets.OK {
		t.Error("expected missing asset list to fail validation")
	}
	if assets.Code != engine.ErrCodeConfigMissing {
		t.Errorf("expected code %s, got %s", engine.ErrCodeConfigMissing, assets.Code)
	}
	if !packages.OK {
		t.Error("expected empty package list to pass validation")
	}
	if packages.Code != engine.ErrCodeConfigEmpty {
		t.Errorf("expected code %s, got %s", engine.ErrCodeConfigEmpty, packages.Code)
	}
}

func TestValidateSourcesCountsIdentifiers(t *testing.T) {
	source := &stubSource{
		packages: []string{"com.acme.tool", "com.acme.ui"},
		assets:   []string{"Acme/Tool.unitypackage"},
	}

	results := validateSources(context.Background(), source)
	if results[1].Message != "2 identifiers" {
		t.Errorf("expected '2 identifiers', got %q", results[1].Message)
	}
	if len(results[0].Items) != 1 {
		t.Errorf("expected 1 asset, got %d", len(results[0].Items))
	}
}

func TestValidatePoliciesDisabled(t *testing.T) {
	s := config.DefaultSettings()
	s.Policy.Disabled = []string{policy.PolicyNoWhitespace}
	a := &app{settings: s, logger: zerolog.Nop()}

	v := a.validatePolicies(context.Background())
	if !v.OK {
		t.Fatalf("expected policies to validate, got %s", v.Message)
	}
	if v.Message != "2 policies, 1 disabled" {
		t.Errorf("expected '2 policies, 1 disabled', got %q", v.Message)
	}
	want := policy.PolicyNoWhitespace + " [error] (disabled)"
	if len(v.Items) != 2 || v.Items[1] != want {
		t.Errorf("expected %q in %v", want, v.Items)
	}

	s.Policy.Disabled = []string{"no-such-policy"}
	if v := (&app{settings: s, logger: zerolog.Nop()}).validatePolicies(context.Background()); v.OK {
		t.Error("expected unknown disabled policy to fail validation")
	}
}

func TestTelemetryConfig(t *testing.T) {
	s := config.DefaultSettings()
	s.Telemetry.MetricsEnabled = true
	s.Telemetry.MetricsAddr = ":9191"
	s.Telemetry.LogLevel = "warn"

	cfg := telemetryConfig(s)
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.ListenAddress != ":9191" {
		t.Errorf("expected metrics on :9191, got enabled=%v addr=%s", cfg.Metrics.Enabled, cfg.Metrics.ListenAddress)
	}
	if cfg.Events.EnableAsync {
		t.Error("expected synchronous event delivery")
	}
	if cfg.Tracing.Enabled {
		t.Error("expected tracing to be disabled by default")
	}
}

func TestPrintPhase(t *testing.T) {
	phase := &engine.PhaseReport{
		Kind:             engine.KindPackages,
		Requested:        3,
		AlreadyInstalled: []string{"com.acme.core"},
		Succeeded: []engine.Outcome{
			{Identifier: "com.acme.tool", Status: engine.StatusSucceeded, ResolvedName: "com.acme.tool@1.2.0"},
		},
		Failed: []engine.Outcome{
			{Identifier: "com.acme.broken", Status: engine.StatusFailed, Message: "not found"},
		},
	}

	var out bytes.Buffer
	printPhase(&out, phase)

	for _, want := range []string{"PACKAGES", "com.acme.core", "com.acme.tool@1.2.0", "com.acme.broken", "not found"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out.String())
		}
	}
}

func TestPrintPhaseSkipped(t *testing.T) {
	var out bytes.Buffer
	printPhase(&out, &engine.PhaseReport{Kind: engine.KindAssets, Skipped: true, SkipReason: "inventory unavailable"})

	if !strings.Contains(out.String(), "skipped: inventory unavailable") {
		t.Errorf("expected skip reason, got:\n%s", out.String())
	}
}
