// Package config loads bootstrap settings and the identifier lists a project requires.
//
// # Settings
//
// Settings live in bootstrap.yaml. Missing fields keep the values from
// DefaultSettings, and Validate checks struct tags (go-playground/validator) plus a
// few cross-field rules:
//
//	s, found, err := config.LoadSettingsOrDefault("bootstrap.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := s.Validate(); err != nil {
//	    return err
//	}
//
// # Sources
//
// Identifier lists can come from three places, all implementing engine.ConfigSource:
//
//   - JSONSource: packages.json and editor-assets.json in the resources directory
//   - CUESource: a CUE manifest unified with the built-in #Manifest schema
//   - StarlarkSource: a Starlark script that computes the lists per platform
//
// NewSource combines the configured ones into a MultiSource. Lists are concatenated
// in that order and duplicates are dropped.
//
// # Errors
//
// A source that does not exist reports engine CONFIG_MISSING; a source without
// entries reports CONFIG_EMPTY. Malformed input is reported as VALIDATION_ERROR.
//
// # Templates
//
// WriteTemplates writes starter list files, which is what `bootstrap init` uses.
package config
