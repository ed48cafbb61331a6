package policy

// Built-in policy names.
const (
	PolicyNoInsecureSource = "no-insecure-source"
	PolicyNoWhitespace     = "no-whitespace"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		noInsecureSourcePolicy(),
		noWhitespacePolicy(),
	}
}

// noInsecureSourcePolicy rejects source packages fetched over anything but https.
func noInsecureSourcePolicy() Policy {
	return Policy{
		Name:        PolicyNoInsecureSource,
		Description: "Source packages must be fetched over https",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Rego: `package bootstrap.policies.insecure_source

import rego.v1

deny contains violation if {
	input.kind == "packages"
	not input.registry
	not startswith(lower(input.target), "https://")
	violation := {
		"message": sprintf("source %s must use https", [input.target]),
		"severity": "error",
	}
}
`,
	}
}

// noWhitespacePolicy rejects identifiers containing whitespace.
func noWhitespacePolicy() Policy {
	return Policy{
		Name:        PolicyNoWhitespace,
		Description: "Identifiers must not contain whitespace",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Rego: `package bootstrap.policies.whitespace

import rego.v1

deny contains violation if {
	regex.match("\\s", input.identifier)
	violation := {
		"message": sprintf("identifier '%s' contains whitespace", [input.identifier]),
		"severity": "error",
	}
}
`,
	}
}
