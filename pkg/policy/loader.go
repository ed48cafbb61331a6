package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// DefaultReloadDelay is the quiet period after a policy file changes before the
// policies are reloaded.
const DefaultReloadDelay = 500 * time.Millisecond

// Loader reads admission policies from disk. Two file types are recognised:
//
//	*.rego  one policy named after the file. Leading comment lines form its
//	        description; "# severity: warning" and "# enabled: false" set metadata.
//	*.json  a single Policy object, or a bundle {"name": ..., "policies": [...]}.
type Loader struct {
	logger zerolog.Logger

	// ReloadDelay debounces Watch. Zero uses DefaultReloadDelay.
	ReloadDelay time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewLoader creates a policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
	}
}

// Load reads every policy file under paths. Directories are walked recursively.
// A missing path is an error; an unreadable policy file inside a directory is
// skipped with a warning.
func (l *Loader) Load(ctx context.Context, paths []string) ([]Policy, error) {
	var policies []Policy
	for _, root := range paths {
		found, err := l.loadPath(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("failed to load policies from %s: %w", root, err)
		}
		policies = append(policies, found...)
	}

	l.logger.Debug().Int("policies", len(policies)).Int("paths", len(paths)).Msg("Policies read")
	return policies, nil
}

func (l *Loader) loadPath(ctx context.Context, root string) ([]Policy, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return ReadFile(root)
	}

	var policies []Policy
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !isPolicyFile(path) {
			return nil
		}

		found, err := ReadFile(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Skipping policy file")
			return nil
		}
		policies = append(policies, found...)
		return nil
	})
	return policies, err
}

// ReadFile parses one policy file.
func ReadFile(path string) ([]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch filepath.Ext(path) {
	case ".rego":
		return []Policy{parseRego(path, string(data))}, nil
	case ".json":
		return parseJSON(path, data)
	default:
		return nil, fmt.Errorf("%s is not a .rego or .json policy file", path)
	}
}

func isPolicyFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".rego" || ext == ".json"
}

func parseRego(path, content string) Policy {
	description, meta := regoHeader(content)

	p := Policy{
		Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
		Description: description,
		Rego:        content,
		Severity:    SeverityError,
		Enabled:     meta["enabled"] != "false",
		Source:      path,
	}
	if sev := meta["severity"]; sev != "" {
		p.Severity = Severity(sev)
	}
	return p
}

// regoHeader reads the comment block at the top of a module. Lines of the form
// "key: value" are metadata; the rest are joined into the description.
func regoHeader(content string) (string, map[string]string) {
	meta := make(map[string]string)
	var description []string

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(description) > 0 || len(meta) > 0 {
				break
			}
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}

		comment := strings.TrimSpace(strings.TrimPrefix(line, "#"))
		if key, value, ok := strings.Cut(comment, ":"); ok {
			key = strings.ToLower(strings.TrimSpace(key))
			if key == "severity" || key == "enabled" {
				meta[key] = strings.ToLower(strings.TrimSpace(value))
				continue
			}
		}
		if comment != "" {
			description = append(description, comment)
		}
	}
	return strings.Join(description, " "), meta
}

// parseJSON decodes a policy or a bundle of policies. Policies are enabled unless
// they say otherwise.
func parseJSON(path string, data []byte) ([]Policy, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s is not valid JSON", path)
	}
	doc := gjson.ParseBytes(data)

	entries := []gjson.Result{doc}
	bundle := doc.Get("name").String()
	if list := doc.Get("policies"); list.IsArray() {
		entries = list.Array()
	} else {
		bundle = ""
	}

	policies := make([]Policy, 0, len(entries))
	for i, entry := range entries {
		var p Policy
		if err := json.Unmarshal([]byte(entry.Raw), &p); err != nil {
			return nil, fmt.Errorf("%s: policy %d: %w", path, i, err)
		}
		if !entry.Get("enabled").Exists() {
			p.Enabled = true
		}
		if p.Severity == "" {
			p.Severity = SeverityError
		}
		if p.Name == "" {
			if bundle != "" || len(entries) > 1 {
				return nil, fmt.Errorf("%s: policy %d has no name", path, i)
			}
			p.Name = strings.TrimSuffix(filepath.Base(path), ".json")
		}
		if p.Rego == "" {
			return nil, fmt.Errorf("%s: policy %s has no rego module", path, p.Name)
		}
		p.Source = path
		p.Builtin = false
		policies = append(policies, p)
	}
	return policies, nil
}

// Watch reloads the policies under paths whenever a policy file changes and passes
// them to apply. It returns once watching has started; the watch ends with ctx or
// StopWatching.
func (l *Loader) Watch(ctx context.Context, paths []string, apply func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	watched := 0
	for _, root := range paths {
		if err := l.addTree(watcher, root); err != nil {
			l.logger.Warn().Err(err).Str("path", root).Msg("Cannot watch policy path")
			continue
		}
		watched++
	}
	if watched == 0 {
		watcher.Close()
		return errors.New("no policy path could be watched")
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go l.run(ctx, watcher, paths, apply)

	l.logger.Info().Int("paths", watched).Msg("Watching policies")
	return nil
}

// addTree watches root's directories, or the parent of a single file.
func (l *Loader) addTree(watcher *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return watcher.Add(filepath.Dir(root))
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func (l *Loader) run(ctx context.Context, watcher *fsnotify.Watcher, paths []string, apply func([]Policy) error) {
	defer watcher.Close()

	delay := l.ReloadDelay
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	timer := time.NewTimer(delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := l.addTree(watcher, event.Name); err != nil {
						l.logger.Warn().Err(err).Str("path", event.Name).Msg("Cannot watch new directory")
					}
					continue
				}
			}
			if event.Op == fsnotify.Chmod || !isPolicyFile(event.Name) {
				continue
			}
			l.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Policy file changed")
			timer.Reset(delay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Policy watcher error")

		case <-timer.C:
			policies, err := l.Load(ctx, paths)
			if err != nil {
				l.logger.Error().Err(err).Msg("Failed to reload policies")
				continue
			}
			if err := apply(policies); err != nil {
				l.logger.Error().Err(err).Msg("Failed to apply reloaded policies")
				continue
			}
			l.logger.Info().Int("count", len(policies)).Msg("Policies reloaded")
		}
	}
}

// StopWatching ends a running Watch.
func (l *Loader) StopWatching() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	l.watcher = nil
	return err
}
