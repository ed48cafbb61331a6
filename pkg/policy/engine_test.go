package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

func newTestEngine(t *testing.T, builtins bool) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled), builtins)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t, true)

	policies := eng.ListPolicies()
	if len(policies) != 2 {
		t.Fatalf("Expected 2 built-in policies, got %d", len(policies))
	}
	if policies[0].Name != PolicyNoInsecureSource || policies[1].Name != PolicyNoWhitespace {
		t.Errorf("Unexpected built-in policies: %s, %s", policies[0].Name, policies[1].Name)
	}

	if empty := newTestEngine(t, false); len(empty.ListPolicies()) != 0 {
		t.Error("Expected no policies without built-ins")
	}
}

func TestAdmit_Builtins(t *testing.T) {
	eng := newTestEngine(t, true)

	tests := []struct {
		name        string
		req         engine.AdmissionRequest
		wantAllowed bool
		wantPolicy  string
	}{
		{
			name:        "registry package",
			req:         engine.AdmissionRequest{Kind: engine.KindPackages, Identifier: "com.acme.core", Target: "com.acme.core", Registry: true},
			wantAllowed: true,
		},
		{
			name:        "https source",
			req:         engine.AdmissionRequest{Kind: engine.KindPackages, Identifier: "https://github.com/acme/toolkit.git", Target: "https://github.com/acme/toolkit.git"},
			wantAllowed: true,
		},
		{
			name:        "http source",
			req:         engine.AdmissionRequest{Kind: engine.KindPackages, Identifier: "http://example.org/x.git", Target: "http://example.org/x.git"},
			wantAllowed: false,
			wantPolicy:  PolicyNoInsecureSource,
		},
		{
			name:        "git protocol source",
			req:         engine.AdmissionRequest{Kind: engine.KindPackages, Identifier: "git://example.org/x.git", Target: "git://example.org/x.git"},
			wantAllowed: false,
			wantPolicy:  PolicyNoInsecureSource,
		},
		{
			name:        "asset path is not a source",
			req:         engine.AdmissionRequest{Kind: engine.KindAssets, Identifier: "Acme/Tool.unitypackage", Target: "Acme/Tool.unitypackage"},
			wantAllowed: true,
		},
		{
			name:        "whitespace",
			req:         engine.AdmissionRequest{Kind: engine.KindAssets, Identifier: "Acme/My Tool.unitypackage", Target: "Acme/My Tool.unitypackage"},
			wantAllowed: false,
			wantPolicy:  PolicyNoWhitespace,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := eng.Admit(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Admit failed: %v", err)
			}
			if decision.Allowed != tt.wantAllowed {
				t.Errorf("Expected allowed=%v, got %v (reasons %v)", tt.wantAllowed, decision.Allowed, decision.Reasons)
			}
			if tt.wantPolicy != "" {
				if len(decision.Reasons) == 0 || !strings.HasPrefix(decision.Reasons[0], tt.wantPolicy+": ") {
					t.Errorf("Expected reason from %s, got %v", tt.wantPolicy, decision.Reasons)
				}
			}
		})
	}
}

func TestEvaluate_WarningsDoNotBlock(t *testing.T) {
	eng := newTestEngine(t, false)

	err := eng.AddPolicy(context.Background(), Policy{
		Name:    "prefer-pinned",
		Enabled: true,
		Rego: `package custom.pinned

import rego.v1

deny contains violation if {
	input.registry
	not contains(input.identifier, "@")
	violation := {"message": "registry package is not pinned", "severity": "warning"}
}
`,
	})
	if err != nil {
		t.Fatalf("Failed to add policy: %v", err)
	}

	result, err := eng.Evaluate(context.Background(), Input{Kind: engine.KindPackages, Identifier: "com.acme.core", Target: "com.acme.core", Registry: true})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Error("Expected warning-only result to be allowed")
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Message != "registry package is not pinned" {
		t.Errorf("Unexpected warnings %v", result.Warnings)
	}
	if len(result.EvaluatedPolicies) != 1 {
		t.Errorf("Expected 1 evaluated policy, got %v", result.EvaluatedPolicies)
	}
}

func TestEvaluate_StringDenyUsesPolicySeverity(t *testing.T) {
	eng := newTestEngine(t, false)

	err := eng.AddPolicy(context.Background(), Policy{
		Name:    "no-preview",
		Enabled: true,
		Rego: `package custom.preview

import rego.v1

deny contains msg if {
	contains(input.identifier, "preview")
	msg := "preview packages are not allowed"
}
`,
	})
	if err != nil {
		t.Fatalf("Failed to add policy: %v", err)
	}

	decision, err := eng.Admit(context.Background(), engine.AdmissionRequest{Kind: engine.KindPackages, Identifier: "com.acme.preview", Target: "com.acme.preview", Registry: true})
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if decision.Allowed {
		t.Error("Expected default severity to block")
	}
	if len(decision.Reasons) != 1 || decision.Reasons[0] != "no-preview: preview packages are not allowed" {
		t.Errorf("Unexpected reasons %v", decision.Reasons)
	}
}

func TestAddPolicy_Invalid(t *testing.T) {
	eng := newTestEngine(t, false)

	tests := []struct {
		name   string
		policy Policy
	}{
		{"missing name", Policy{Rego: "package x\n"}},
		{"syntax error", Policy{Name: "broken", Rego: "package x\ndeny contains msg if {"}},
		{"v0 syntax", Policy{Name: "legacy", Rego: "package x\ndeny[msg] { msg := \"x\" }"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := eng.AddPolicy(context.Background(), tt.policy); err == nil {
				t.Error("Expected compile error")
			}
		})
	}
}

func TestAdmit_EvaluationErrorRejects(t *testing.T) {
	eng := newTestEngine(t, false)

	// Conflicting values for a complete rule are a runtime error
	err := eng.AddPolicy(context.Background(), Policy{
		Name:    "conflict",
		Enabled: true,
		Rego: `package custom.conflict

import rego.v1

level = "a"

level = "b" if input.identifier != ""

deny contains "conflict" if level == "c"
`,
	})
	if err != nil {
		t.Fatalf("Failed to add policy: %v", err)
	}

	_, err = eng.Admit(context.Background(), engine.AdmissionRequest{Kind: engine.KindPackages, Identifier: "x", Target: "x", Registry: true})
	if err == nil {
		t.Error("Expected evaluation error to be returned")
	}
}

func TestDisablePolicy(t *testing.T) {
	eng := newTestEngine(t, true)
	ctx := context.Background()
	req := engine.AdmissionRequest{Kind: engine.KindPackages, Identifier: "http://example.org/x.git", Target: "http://example.org/x.git"}

	if err := eng.DisablePolicy(PolicyNoInsecureSource); err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}

	for _, p := range eng.ListPolicies() {
		if p.Name == PolicyNoInsecureSource && p.Enabled {
			t.Error("Policy should be disabled")
		}
	}

	decision, err := eng.Admit(ctx, req)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if !decision.Allowed {
		t.Error("Disabled policy should not reject")
	}

	if err := eng.DisablePolicy("missing"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestDisablePolicy_SurvivesReplace(t *testing.T) {
	eng := newTestEngine(t, false)
	ctx := context.Background()
	blocklist := Policy{
		Name:    "blocklist",
		Enabled: true,
		Rego: `package custom.blocklist

import rego.v1

deny contains "blocked" if input.identifier == "com.bad.package"
`,
	}
	bad := engine.AdmissionRequest{Kind: engine.KindPackages, Identifier: "com.bad.package", Target: "com.bad.package", Registry: true}

	if err := eng.AddPolicy(ctx, blocklist); err != nil {
		t.Fatalf("Failed to add policy: %v", err)
	}
	if err := eng.DisablePolicy("blocklist"); err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}

	// A watch reload hands back the same policy, enabled on disk
	if err := eng.ReplacePolicies(ctx, []Policy{blocklist}); err != nil {
		t.Fatalf("Failed to replace policies: %v", err)
	}

	decision, err := eng.Admit(ctx, bad)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if !decision.Allowed {
		t.Error("Expected disabled policy to stay off after reload")
	}
}

func TestLoadAndReplacePolicies(t *testing.T) {
	eng := newTestEngine(t, true)
	ctx := context.Background()

	dir := t.TempDir()
	rego := `package custom.blocklist

import rego.v1

deny contains "blocked" if input.identifier == "com.bad.package"
`
	if err := os.WriteFile(filepath.Join(dir, "blocklist.rego"), []byte(rego), 0644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	if err := eng.LoadPolicies(ctx, []string{dir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}
	if len(eng.ListPolicies()) != 3 {
		t.Fatalf("Expected 3 policies, got %d", len(eng.ListPolicies()))
	}

	bad := engine.AdmissionRequest{Kind: engine.KindPackages, Identifier: "com.bad.package", Target: "com.bad.package", Registry: true}
	decision, err := eng.Admit(ctx, bad)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if decision.Allowed {
		t.Error("Expected loaded policy to reject")
	}

	// A failed replacement keeps the current set
	if err := eng.ReplacePolicies(ctx, []Policy{{Name: "broken", Rego: "package"}}); err == nil {
		t.Error("Expected compile error")
	}
	if len(eng.ListPolicies()) != 3 {
		t.Errorf("Expected policies to be unchanged, got %d", len(eng.ListPolicies()))
	}

	if err := eng.ReplacePolicies(ctx, nil); err != nil {
		t.Fatalf("Failed to replace policies: %v", err)
	}
	if len(eng.ListPolicies()) != 2 {
		t.Errorf("Expected only built-ins after replace, got %d", len(eng.ListPolicies()))
	}
	decision, _ = eng.Admit(ctx, bad)
	if !decision.Allowed {
		t.Error("Expected removed policy to stop rejecting")
	}
}
