package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// StarlarkResult is the outcome of a script evaluation.
type StarlarkResult struct {
	// Output holds the script's exported globals converted to Go values.
	Output map[string]interface{}

	ExecutionTime time.Duration
	Error         string
}

// StarlarkEvaluator executes Starlark scripts with a timeout.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// Evaluate executes a Starlark script with the given input and returns its globals.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, filename, script string, input map[string]interface{}) (*StarlarkResult, error) {
	startTime := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name:  "bootstrap",
		Print: func(_ *starlark.Thread, msg string) {},
	}

	resultCh := make(chan *StarlarkResult, 1)
	errCh := make(chan error, 1)

	go func() {
		result, err := se.evaluateSync(thread, filename, script, input)
		if err != nil {
			errCh <- err
		} else {
			resultCh <- result
		}
	}()

	select {
	case <-evalCtx.Done():
		thread.Cancel("timeout")
		return &StarlarkResult{
			ExecutionTime: time.Since(startTime),
			Error:         fmt.Sprintf("execution timeout after %v", se.timeout),
		}, fmt.Errorf("starlark execution timeout")
	case err := <-errCh:
		return &StarlarkResult{
			ExecutionTime: time.Since(startTime),
			Error:         err.Error(),
		}, err
	case result := <-resultCh:
		result.ExecutionTime = time.Since(startTime)
		return result, nil
	}
}

func (se *StarlarkEvaluator) evaluateSync(thread *starlark.Thread, filename, script string, input map[string]interface{}) (*StarlarkResult, error) {
	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
	}

	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	globals, err := starlark.ExecFile(thread, filename, script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]interface{})
	for name, val := range globals {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if _, ok := val.(starlark.Callable); ok {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = goVal
	}

	return &StarlarkResult{
		Output: output,
	}, nil
}

// StarlarkSource computes identifier lists with a Starlark script. The script sees
// the predeclared values platform, arch and env, and exports the globals
// packages and assets. Control flow must live in functions:
//
//	def _packages():
//	    p = ["com.acme.core"]
//	    if platform == "windows":
//	        p.append("acme/win-tools")
//	    return p
//
//	packages = _packages()
type StarlarkSource struct {
	Path      string
	Evaluator *StarlarkEvaluator

	// Input overrides the predeclared values.
	Input map[string]interface{}
}

// NewStarlarkSource creates a source for the script at path.
func NewStarlarkSource(path string, timeout time.Duration) *StarlarkSource {
	return &StarlarkSource{
		Path:      path,
		Evaluator: NewStarlarkEvaluator(timeout),
	}
}

// RequiredPackages implements engine.ConfigSource.
func (s *StarlarkSource) RequiredPackages(ctx context.Context) ([]string, error) {
	return s.list(ctx, engine.KindPackages, "packages")
}

// RequiredAssets implements engine.ConfigSource.
func (s *StarlarkSource) RequiredAssets(ctx context.Context) ([]string, error) {
	return s.list(ctx, engine.KindAssets, "assets")
}

func (s *StarlarkSource) list(ctx context.Context, kind engine.ResourceKind, name string) ([]string, error) {
	script, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, engine.NewConfigMissingError(kind, s.Path, err)
		}
		return nil, engine.NewConfigMissingError(kind, s.Path, err).WithOperation("read")
	}

	result, err := s.Evaluator.Evaluate(ctx, s.Path, string(script), s.input())
	if err != nil {
		return nil, engine.NewError(engine.ErrCodeValidation, "script evaluation failed", err).
			WithKind(kind).
			WithDetail("location", s.Path)
	}

	raw, ok := result.Output[name]
	if !ok || raw == nil {
		return nil, engine.NewConfigEmptyError(kind, s.Path)
	}

	items, ok := raw.([]interface{})
	if !ok {
		return nil, engine.NewError(engine.ErrCodeValidation, fmt.Sprintf("%s must be a list", name), nil).
			WithKind(kind).
			WithDetail("location", s.Path)
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		id, ok := item.(string)
		if !ok {
			return nil, engine.NewError(engine.ErrCodeValidation, fmt.Sprintf("%s entries must be strings", name), nil).
				WithKind(kind).
				WithDetail("location", s.Path)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, engine.NewConfigEmptyError(kind, s.Path)
	}
	return ids, nil
}

func (s *StarlarkSource) input() map[string]interface{} {
	in := map[string]interface{}{
		"platform": PlatformName(runtime.GOOS),
		"arch":     runtime.GOARCH,
		"env":      environMap(),
	}
	for k, v := range s.Input {
		in[k] = v
	}
	return in
}

// PlatformName maps a GOOS value to the platform names used in scripts and cache
// lookup: "macos", "windows" or "linux".
func PlatformName(goos string) string {
	switch goos {
	case "darwin":
		return "macos"
	case "windows":
		return "windows"
	default:
		return "linux"
	}
}

func environMap() map[string]interface{} {
	env := make(map[string]interface{})
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			list[i] = starlark.String(item)
		}
		return starlark.NewList(list), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			starlarkVal, err := toStarlarkValue(val[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]interface{}, len(val))
		for i, item := range val {
			goItem, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = goItem
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
