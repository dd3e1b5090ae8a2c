package skills

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Loader discovers user command skills under a skills directory. Each skill
// lives in its own subdirectory with a skill.toml definition.
type Loader struct {
	dir    string
	logger *slog.Logger
}

// NewLoader creates a loader over the given directory.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	return &Loader{dir: dir, logger: logger.With("component", "skills.loader")}
}

// DefaultSkillsDir returns ~/.wardclaw/skills.
func DefaultSkillsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".wardclaw", "skills")
	}
	return filepath.Join(home, ".wardclaw", "skills")
}

// LoadInto parses every skill.toml under the directory and registers the
// resulting command skills. A missing directory is not an error; a broken
// skill file is logged and skipped so one bad definition cannot take the
// runtime down.
func (l *Loader) LoadInto(r *Registry) error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Debug("skills directory missing, skipping", "dir", l.dir)
			return nil
		}
		return fmt.Errorf("read skills dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(l.dir, entry.Name(), "skill.toml")
		sf, err := ParseSkillFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			l.logger.Warn("skipping broken skill", "path", path, "error", err)
			continue
		}
		if err := r.Register(sf.Manifest(), commandHandler(sf, filepath.Join(l.dir, entry.Name()))); err != nil {
			l.logger.Warn("skipping skill", "skill", sf.Name, "error", err)
			continue
		}
		l.logger.Info("loaded user skill", "skill", sf.Name, "command", sf.Command)
	}
	return nil
}

// commandHandler wraps a user skill definition as an executable handler.
// Invocation arguments are substituted into the argv and also exported as
// SKILL_ARG_* environment variables.
func commandHandler(sf *SkillFile, dir string) Handler {
	return func(ctx context.Context, inv Context) Result {
		timeout := defaultCommandTimeout
		if sf.TimeoutSecs > 0 {
			timeout = time.Duration(sf.TimeoutSecs) * time.Second
		} else if inv.Settings.CommandTimeout > 0 {
			timeout = time.Duration(inv.Settings.CommandTimeout) * time.Second
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, sf.Command, sf.substituteArgs(inv.Args)...)
		cmd.Dir = dir

		cmd.Env = os.Environ()
		for _, e := range sf.Env {
			cmd.Env = append(cmd.Env, os.ExpandEnv(e))
		}
		for _, p := range inv.Args.Pairs() {
			cmd.Env = append(cmd.Env,
				fmt.Sprintf("SKILL_ARG_%s=%v", strings.ToUpper(p.Key), p.Value))
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
		inv.Logf("%s exited cleanly", sf.Command)
		return Success(stdout.String())
	}
}
