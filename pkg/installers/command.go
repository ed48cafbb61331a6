package installers

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

// Placeholder is replaced by the identifier in command arguments.
const Placeholder = "{id}"

const outputTail = 512

// stopDelay is how long a cancelled install command may take to exit after
// SIGTERM before it is killed.
const stopDelay = 10 * time.Second

// CommandBackend installs packages by running an external package manager once per
// identifier. The handle completes when the process exits; a non-zero exit status
// is a failure whose message carries the tail of the combined output. When the
// install's context ends the process receives SIGTERM and the handle completes
// once it has exited.
type CommandBackend struct {
	// Install is the install command, e.g. ["upm", "add", "{id}"].
	Install []string

	// List prints one installed package id per line (first field is used).
	List []string

	Dir string
	Env []string
}

// BeginInstall implements engine.Backend.
func (b *CommandBackend) BeginInstall(ctx context.Context, identifier string) (engine.Handle, error) {
	args := expandArgs(b.Install, identifier)
	if len(args) == 0 {
		return nil, engine.NewBackendError(engine.KindPackages, identifier, "no install command configured", nil)
	}

	cmd := b.command(ctx, args)
	cmd.Cancel = func() error {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = stopDelay
	output := &tailBuffer{max: outputTail}
	cmd.Stdout = output
	cmd.Stderr = output

	if err := cmd.Start(); err != nil {
		return nil, engine.NewBackendError(engine.KindPackages, identifier, "failed to start install command", err).
			WithDetail("command", args[0])
	}

	return Start(func() engine.Result {
		if err := cmd.Wait(); err != nil {
			msg := fmt.Sprintf("%s failed: %v", args[0], err)
			if tail := output.String(); tail != "" {
				msg += ": " + tail
			}
			return engine.Failure(msg)
		}
		return engine.Success(identifier)
	}), nil
}

// ListInstalledPackageIDs runs the List command and returns the first field of each
// non-empty line. Lines starting with '#' are ignored.
func (b *CommandBackend) ListInstalledPackageIDs(ctx context.Context) ([]string, error) {
	if len(b.List) == 0 {
		return nil, fmt.Errorf("no list command configured")
	}

	cmd := b.command(ctx, b.List)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", b.List[0], err, strings.TrimSpace(stderr.String()))
	}

	ids := make([]string, 0)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, strings.Fields(line)[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse %s output: %w", b.List[0], err)
	}
	return ids, nil
}

func (b *CommandBackend) command(ctx context.Context, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = b.Dir
	if len(b.Env) > 0 {
		cmd.Env = append(os.Environ(), b.Env...)
	}
	return cmd
}

// expandArgs substitutes the identifier into args. If no argument contains the
// placeholder, the identifier is appended.
func expandArgs(args []string, identifier string) []string {
	if len(args) == 0 {
		return nil
	}

	out := make([]string, len(args))
	replaced := false
	for i, arg := range args {
		if strings.Contains(arg, Placeholder) {
			replaced = true
		}
		out[i] = strings.ReplaceAll(arg, Placeholder, identifier)
	}
	if !replaced {
		out = append(out, identifier)
	}
	return out
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
