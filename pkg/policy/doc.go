// Package policy provides Open Policy Agent (OPA) admission checks for
// identifiers before they are submitted to an installer.
//
// Every identifier of a setup run is turned into an engine.AdmissionRequest
// and evaluated against the enabled Rego policies. Each policy must define a
// deny set. Entries are either plain strings, which take the policy's
// severity, or objects with message and severity fields. Only error severity
// rejects the identifier; warnings are logged.
//
// # Usage
//
//	eng, err := policy.NewEngine(logger, true)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"policies"}); err != nil {
//	    return err
//	}
//
//	decision, err := eng.Admit(ctx, engine.AdmissionRequest{
//	    Kind:       engine.KindPackages,
//	    Identifier: "http://example.org/tool.git",
//	    Target:     "http://example.org/tool.git",
//	})
//
// # Built-in Policies
//
//  1. no-insecure-source - Source packages must use https
//  2. no-whitespace - Identifiers must not contain whitespace
//
// # Custom Policies
//
// Policies use Rego v1 syntax:
//
//	package custom.blocklist
//
//	import rego.v1
//
//	deny contains msg if {
//	    startswith(input.identifier, "com.unmaintained.")
//	    msg := sprintf("%s is not maintained", [input.identifier])
//	}
//
// Policies loaded from files default to error severity. A .rego file may set
// "# severity: warning" or "# enabled: false" in its header comment, and a
// .json file holds either one policy or a bundle with a "policies" array.
//
// Policies named in the policy.disabled setting are turned off with
// DisablePolicy and stay off across reloads.
//
// # Hot Reload
//
// The loader watches policy files and hands the reloaded set to a callback:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return eng.ReplacePolicies(ctx, policies)
//	})
package policy
