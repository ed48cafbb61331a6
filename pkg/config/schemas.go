package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	// Built-in schemas are constants; a compile failure is a programming error.
	if err := sr.RegisterSchema(SchemaManifest, builtinSchemas, "#Manifest"); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema(SchemaPackageList, builtinSchemas, "#PackageList"); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema(SchemaAssetList, builtinSchemas, "#AssetList"); err != nil {
		panic(err)
	}

	return sr
}

// Built-in schema names.
const (
	SchemaManifest    = "manifest"
	SchemaPackageList = "package-list"
	SchemaAssetList   = "asset-list"
)

// Context returns the CUE context schemas are compiled in. Values validated against
// the registry must be built in this context.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

// RegisterSchema compiles src and registers the definition at path under name.
func (sr *SchemaRegistry) RegisterSchema(name, src, definition string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(src, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s has no definition %s", name, definition)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Unify validates value against a named schema and returns the unified value.
func (sr *SchemaRegistry) Unify(schemaName string, value cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, fmt.Errorf("validation failed: %w", err)
	}
	return unified, nil
}

// ValidateAgainstSchema validates Go data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	_, err := sr.Unify(schemaName, dataVal)
	return err
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinSchemas = `
// A package identifier: a registry id, an owner/repo source id or a repository URL.
// Malformed ids are rejected one at a time by admission policies.
#Identifier: string & =~"\\S"

// An asset identifier: a path relative to the asset cache.
#Asset: string & =~"\\S"

#PackageList: {
	packages: [...#Identifier]
}

#AssetList: {
	assets: [...#Asset]
}

#Manifest: {
	packages?: [...#Identifier]
	assets?: [...#Asset]
}
`
