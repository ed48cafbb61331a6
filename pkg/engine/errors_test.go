package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestError_Message(t *testing.T) {
	err := NewBackendError(KindPackages, "com.acme.core", "install failed", errors.New("exit status 1"))

	msg := err.Error()
	for _, want := range []string{"BACKEND_FAILURE", "install failed", "kind=packages", "identifier=com.acme.core", "exit status 1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestError_IsAndUnwrap(t *testing.T) {
	cause := errors.New("no such file")
	err := fmt.Errorf("loading: %w", NewConfigMissingError(KindAssets, "editor-assets.json", cause))

	if !errors.Is(err, &Error{Code: ErrCodeConfigMissing}) {
		t.Error("expected errors.Is to match by code")
	}
	if errors.Is(err, &Error{Code: ErrCodeConfigEmpty}) {
		t.Error("expected different codes not to match")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
}

func TestError_Predicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"config missing", NewConfigMissingError(KindPackages, "x", nil), IsConfigMissing},
		{"config empty", NewConfigEmptyError(KindPackages, "x"), IsConfigEmpty},
		{"backend", NewBackendError(KindPackages, "x", "m", nil), IsBackendFailure},
		{"asset", NewAssetNotFoundError("x", "/cache"), IsAssetNotFound},
		{"inventory", NewInventoryError(KindPackages, errors.New("boom")), IsInventoryFailure},
		{"timeout", NewTimeoutError(KindAssets, "x", time.Second), IsTimeout},
		{"policy", NewPolicyDeniedError(KindPackages, "x", []string{"r"}), IsPolicyDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("predicate did not match %v", tt.err)
			}
			if tt.check(errors.New("plain")) {
				t.Error("predicate matched a plain error")
			}
		})
	}
}

func TestError_WithDetail(t *testing.T) {
	err := NewAssetNotFoundError("Shiny.unitypackage", "/cache")

	if err.Details["searched"] != "/cache" {
		t.Errorf("expected searched detail, got %v", err.Details)
	}
	if err.Kind != KindAssets {
		t.Errorf("expected assets kind, got %s", err.Kind)
	}
}

func TestCodeOf_Plain(t *testing.T) {
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("expected empty code, got %q", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Errorf("expected empty code for nil, got %q", got)
	}
}
