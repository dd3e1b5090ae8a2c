package models

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"log/slog"
)

// Router resolves model references of the form "alias/model" to a registered
// provider. The alias names the backend ("local/llama3" runs llama3 on the
// provider registered under "local"); a reference with an unknown alias, or
// no alias at all, goes to the default provider.
type Router struct {
	mu           sync.RWMutex
	providers    map[string]Provider
	defaultAlias string
	usage        map[string]*Usage
	logger       *slog.Logger
}

// Usage accumulates per-reference token counts.
type Usage struct {
	Requests  int64
	TokensIn  int64
	TokensOut int64
}

// NewRouter creates an empty router.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		usage:     make(map[string]*Usage),
		logger:    logger.With("component", "model-router"),
	}
}

// Register adds a provider under an alias. The first registration becomes
// the default unless SetDefault overrides it.
func (r *Router) Register(alias string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[alias] = p
	if r.defaultAlias == "" {
		r.defaultAlias = alias
	}
	r.logger.Info("provider registered", "alias", alias, "provider", p.Name())
}

// SetDefault picks the fallback provider for unknown aliases.
func (r *Router) SetDefault(alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[alias]; !ok {
		return fmt.Errorf("%w: default alias %q not registered", ErrNoProvider, alias)
	}
	r.defaultAlias = alias
	return nil
}

// Resolve splits a model reference into its provider and bare model name.
func (r *Router) Resolve(ref string) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alias, model := ref, ref
	if i := strings.Index(ref, "/"); i >= 0 {
		alias, model = ref[:i], ref[i+1:]
	}

	if p, ok := r.providers[alias]; ok && alias != model {
		return p, model, nil
	}
	if r.defaultAlias == "" {
		return nil, "", fmt.Errorf("%w: %s", ErrNoProvider, ref)
	}
	return r.providers[r.defaultAlias], model, nil
}

// Generate routes one inference request. The reference's model name replaces
// req.Model before the provider call.
func (r *Router) Generate(ctx context.Context, ref string, req Request) (Response, error) {
	p, model, err := r.Resolve(ref)
	if err != nil {
		return Response{}, err
	}
	req.Model = model

	resp, err := p.Generate(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("%s: %w", p.Name(), err)
	}
	r.track(ref, resp)
	return resp, nil
}

func (r *Router) track(ref string, resp Response) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.usage[ref]
	if !ok {
		u = &Usage{}
		r.usage[ref] = u
	}
	u.Requests++
	u.TokensIn += int64(resp.TokensInput)
	u.TokensOut += int64(resp.TokensOutput)
}

// UsageFor returns accumulated usage for one model reference.
func (r *Router) UsageFor(ref string) Usage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if u, ok := r.usage[ref]; ok {
		return *u
	}
	return Usage{}
}

// Aliases lists registered provider aliases, sorted.
func (r *Router) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.providers))
	for a := range r.providers {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
