// Package skills maintains the capability registry: skill manifests mapped
// to executable handlers. The registry is populated at startup and read-only
// afterwards, so concurrent lookups need no locking during task execution.
package skills

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/wardlabs/wardclaw/internal/types"
)

// Context carries everything a skill handler may use during one invocation:
// the (ordered) arguments, the resolved profile, shared runtime settings,
// and a log callback routed through the event bus.
type Context struct {
	Args     types.Args
	Profile  *types.Profile
	Settings Settings
	Log      func(msg string)
}

// Settings is the slice of runtime configuration skills care about.
type Settings struct {
	Workspace string
	// CommandTimeout bounds subprocess-backed skills. Zero means the
	// executor default.
	CommandTimeout int
}

// Logf logs through the context callback when one is set.
func (c Context) Logf(format string, args ...any) {
	if c.Log != nil {
		c.Log(fmt.Sprintf(format, args...))
	}
}

// Result is the structured outcome of a skill execution. Handler failures
// are values, not errors: the orchestrator renders them uniformly.
type Result struct {
	OK    bool   `json:"ok"`
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Failure builds an error Result.
func Failure(format string, args ...any) Result {
	return Result{OK: false, Error: fmt.Sprintf(format, args...)}
}

// Success builds an ok Result.
func Success(data string) Result {
	return Result{OK: true, Data: data}
}

// Handler executes a skill with validated, policy-approved arguments.
type Handler func(ctx context.Context, inv Context) Result

// Registry maps skill names to manifests and handlers.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*registered
	logger *slog.Logger
}

type registered struct {
	manifest *types.Manifest
	handler  Handler
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		skills: make(map[string]*registered),
		logger: logger.With("component", "skills"),
	}
}

// Register adds a skill. Duplicate names are an error: manifests are
// immutable once registered.
func (r *Registry) Register(manifest *types.Manifest, handler Handler) error {
	if manifest == nil || manifest.Name == "" {
		return fmt.Errorf("skill manifest must have a name")
	}
	if handler == nil {
		return fmt.Errorf("skill %q has no handler", manifest.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.skills[manifest.Name]; exists {
		return fmt.Errorf("skill %q already registered", manifest.Name)
	}
	r.skills[manifest.Name] = &registered{manifest: manifest, handler: handler}
	r.logger.Debug("skill registered", "skill", manifest.Name)
	return nil
}

// Manifests returns all manifests sorted by name, for the model-facing
// tool catalog and the CLI listing.
func (r *Registry) Manifests() []*types.Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.Manifest, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s.manifest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get looks up a manifest by skill name.
func (r *Registry) Get(name string) (*types.Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.skills[name]
	if !ok {
		return nil, false
	}
	return s.manifest, true
}

// Execute runs the named skill. Unknown names return a structured failure
// rather than an error so the orchestrator can render it like any other
// tool outcome.
func (r *Registry) Execute(ctx context.Context, name string, inv Context) Result {
	r.mu.RLock()
	s, ok := r.skills[name]
	r.mu.RUnlock()

	if !ok {
		return Failure("skill %s not found", name)
	}
	return s.handler(ctx, inv)
}

// Len returns the number of registered skills.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills)
}
