package skills

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/wardlabs/wardclaw/internal/types"
)

// defaultCommandTimeout bounds subprocess-backed builtin skills.
const defaultCommandTimeout = 30 * time.Second

// RegisterBuiltins registers the built-in skill set. The policy engine is
// the authority on whether any of these may actually run; handlers assume
// their invocation was already approved.
func RegisterBuiltins(r *Registry) error {
	builtins := []struct {
		manifest *types.Manifest
		handler  Handler
	}{
		{fsReadManifest(), fsRead},
		{fsWriteManifest(), fsWrite},
		{shellRunManifest(), shellRun},
		{gitStatusManifest(), gitStatus},
	}

	for _, b := range builtins {
		if err := r.Register(b.manifest, b.handler); err != nil {
			return err
		}
	}
	return nil
}

func fsReadManifest() *types.Manifest {
	return &types.Manifest{
		Name:        "filesystem.read",
		Description: "Read a text file from a safe directory",
		Permissions: types.Permissions{
			FS:  &types.FSPermissions{Read: []string{"~/workspace", "/project", "./"}},
			Net: &types.NetPermissions{},
		},
		ArgsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "file to read"},
			},
			"required": []any{"path"},
		},
	}
}

func fsRead(ctx context.Context, inv Context) Result {
	path, ok := inv.Args.String("path")
	if !ok || path == "" {
		return Failure("path argument is required")
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return Failure("resolve path: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return Failure("read %s: %v", target, err)
	}
	inv.Logf("read %d bytes from %s", len(data), target)
	return Success(string(data))
}

func fsWriteManifest() *types.Manifest {
	return &types.Manifest{
		Name:        "filesystem.write",
		Description: "Write text to a file inside the workspace",
		Permissions: types.Permissions{
			FS:  &types.FSPermissions{Write: []string{"~/workspace", "/project", "./"}},
			Net: &types.NetPermissions{},
		},
		RequiresConfirmation: true,
		ArgsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "description": "file to write"},
				"content": map[string]any{"type": "string", "description": "text content"},
			},
			"required": []any{"path", "content"},
		},
	}
}

func fsWrite(ctx context.Context, inv Context) Result {
	path, ok := inv.Args.String("path")
	if !ok || path == "" {
		return Failure("path argument is required")
	}
	content, _ := inv.Args.String("content")

	target, err := filepath.Abs(path)
	if err != nil {
		return Failure("resolve path: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Failure("create directory: %v", err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return Failure("write %s: %v", target, err)
	}
	inv.Logf("wrote %d bytes to %s", len(content), target)
	return Success(fmt.Sprintf("wrote %d bytes to %s", len(content), target))
}

func shellRunManifest() *types.Manifest {
	return &types.Manifest{
		Name:        "shell.run",
		Description: "Execute a shell command (guarded and confirmable)",
		Permissions: types.Permissions{
			Shell: true,
			Net:   &types.NetPermissions{},
		},
		RequiresConfirmation: true,
		ArgsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cmd": map[string]any{"type": "string", "description": "command line to run"},
				"cwd": map[string]any{"type": "string", "description": "working directory"},
			},
			"required": []any{"cmd"},
		},
	}
}

func shellRun(ctx context.Context, inv Context) Result {
	cmdLine, ok := inv.Args.String("cmd")
	if !ok || strings.TrimSpace(cmdLine) == "" {
		return Failure("cmd argument is required")
	}
	cwd, _ := inv.Args.String("cwd")

	return runCommand(ctx, inv, cwd, "sh", "-c", cmdLine)
}

func gitStatusManifest() *types.Manifest {
	return &types.Manifest{
		Name:        "git.status",
		Description: "Run git status --short in the current repository",
		Permissions: types.Permissions{
			Shell: true,
			Net:   &types.NetPermissions{},
		},
		ArgsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cwd": map[string]any{"type": "string", "description": "repository directory"},
			},
		},
	}
}

func gitStatus(ctx context.Context, inv Context) Result {
	cwd, _ := inv.Args.String("cwd")
	return runCommand(ctx, inv, cwd, "git", "status", "--short")
}

// runCommand executes a subprocess with the invocation's timeout and
// returns combined output as the result data. A non-zero exit is a
// handler failure carrying stderr.
func runCommand(ctx context.Context, inv Context, cwd string, name string, args ...string) Result {
	timeout := defaultCommandTimeout
	if inv.Settings.CommandTimeout > 0 {
		timeout = time.Duration(inv.Settings.CommandTimeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	if cwd != "" {
		cmd.Dir = cwd
	} else if inv.Settings.Workspace != "" {
		cmd.Dir = inv.Settings.Workspace
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return Failure("command timed out after %s", timeout)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return Failure("%s", msg)
	}

	out := stdout.String()
	if strings.TrimSpace(out) == "" {
		out = strings.TrimSpace(stderr.String())
	}
	if strings.TrimSpace(out) == "" {
		out = "(no output)"
	}
	return Success(out)
}
