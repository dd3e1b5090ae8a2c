// Package policy implements the decision engine that gates every skill
// invocation behind a profile's authorization rules. Evaluation is a pure
// function over its inputs: the engine holds only the immutable profile set
// it was constructed with and is safe for concurrent use.
package policy

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wardlabs/wardclaw/internal/types"
)

// Reason identifies why an action was denied.
type Reason string

const (
	ReasonSkillNotInProfile    Reason = "skill_not_in_profile"
	ReasonPathNotInAllowlist   Reason = "path_not_in_allowlist"
	ReasonPathInDenylist       Reason = "path_in_denylist"
	ReasonDangerousCommand     Reason = "dangerous_command_pattern"
	ReasonCommandNotAllowed    Reason = "command_not_allowed"
	ReasonConfirmationRequired Reason = "requires_user_confirmation"
)

// Decision is the outcome of evaluating one requested action.
// Produced fresh per evaluation, never persisted.
type Decision struct {
	Allowed              bool   `json:"allowed"`
	Reason               Reason `json:"reason,omitempty"`
	RequiresConfirmation bool   `json:"requires_confirmation,omitempty"`
	Preview              string `json:"preview,omitempty"`
}

// Engine evaluates requested actions against the configured profile set.
type Engine struct {
	profiles map[string]*types.Profile
}

// NewEngine creates an Engine over the given profiles. Later entries with a
// duplicate name shadow earlier ones so config profiles can replace builtins.
func NewEngine(profiles []types.Profile) *Engine {
	m := make(map[string]*types.Profile, len(profiles))
	for i := range profiles {
		p := profiles[i]
		m[p.Name] = &p
	}
	return &Engine{profiles: m}
}

// Profile resolves a profile by name. Resolution never fails: unknown names
// fall back to builtins, and finally to the least-privilege fallback profile.
func (e *Engine) Profile(name string) *types.Profile {
	if p, ok := e.profiles[name]; ok {
		return p
	}
	if p, ok := builtinByName(name); ok {
		return p
	}
	return fallbackProfile()
}

// Evaluate decides whether the named skill may run with the given arguments
// under the named profile. Checks run coarse to fine and short-circuit on
// the first failure; filesystem and shell policy run before the generic
// confirmation rule so dangerous matches surface a meaningful preview.
func (e *Engine) Evaluate(skillName string, args types.Args, manifest *types.Manifest, profileName string) Decision {
	profile := e.Profile(profileName)

	if !matchesAny(skillName, profile.AllowedSkills) {
		return Decision{Allowed: false, Reason: ReasonSkillNotInProfile}
	}

	override, hasOverride := profile.Overrides[skillName]

	if manifest.DeclaresFS() {
		if d, denied := e.checkFS(args, manifest, override, hasOverride); denied {
			return d
		}
	}

	if manifest.Permissions.Shell {
		if d, denied := e.checkShell(skillName, args, override, hasOverride); denied {
			return d
		}
	}

	needsConfirm := manifest.RequiresConfirmation || (hasOverride && override.ConfirmationRequired())
	if needsConfirm && !profile.AutoConfirm {
		return Decision{
			Allowed:              false,
			Reason:               ReasonConfirmationRequired,
			RequiresConfirmation: true,
			Preview:              RenderPreview(skillName, args),
		}
	}

	return Decision{Allowed: true}
}

// checkFS enforces the path allowlist and denylist for fs-permissioned skills.
// Either failure denies outright with no confirmation offered.
func (e *Engine) checkFS(args types.Args, manifest *types.Manifest, override types.Override, hasOverride bool) (Decision, bool) {
	var candidate string
	if p, ok := args.String("path"); ok && p != "" {
		abs, err := filepath.Abs(expandHome(p))
		if err == nil {
			candidate = abs
		}
	}

	allowlist := manifest.Permissions.FS.Read
	if len(allowlist) == 0 {
		allowlist = manifest.Permissions.FS.Write
	}
	if hasOverride && len(override.PathAllowlist) > 0 {
		allowlist = override.PathAllowlist
	}
	allowlist = absolutePatterns(expandHomeAll(allowlist))

	var denylist []string
	if hasOverride {
		denylist = absolutePatterns(expandHomeAll(override.PathDenylist))
	}

	if candidate == "" || !pathMatchesAny(candidate, allowlist) {
		return Decision{Allowed: false, Reason: ReasonPathNotInAllowlist}, true
	}
	if pathMatchesAny(candidate, denylist) {
		return Decision{Allowed: false, Reason: ReasonPathInDenylist}, true
	}
	return Decision{}, false
}

// checkShell enforces dangerous-pattern and command-allowlist rules for
// shell-permissioned skills. Both failures deny pending confirmation so a
// profile can escalate a risky call to a human instead of a silent block.
func (e *Engine) checkShell(skillName string, args types.Args, override types.Override, hasOverride bool) (Decision, bool) {
	cmd, _ := args.String("cmd")

	if hasOverride {
		for _, pat := range override.DangerousPatterns {
			if pat != "" && strings.Contains(cmd, pat) {
				return Decision{
					Allowed:              false,
					Reason:               ReasonDangerousCommand,
					RequiresConfirmation: true,
					Preview:              RenderPreview(skillName, args),
				}, true
			}
		}
		if len(override.CommandAllowlist) > 0 && !matchesAny(cmd, override.CommandAllowlist) {
			return Decision{
				Allowed:              false,
				Reason:               ReasonCommandNotAllowed,
				RequiresConfirmation: true,
				Preview:              RenderPreview(skillName, args),
			}, true
		}
	}
	return Decision{}, false
}

// pathMatchesAny reports whether the absolute path matches any pattern,
// either by glob match or by living under a pattern that names a directory.
func pathMatchesAny(path string, patterns []string) bool {
	for _, pat := range patterns {
		if matchPattern(path, pat) {
			return true
		}
		if !strings.Contains(pat, "*") && strings.HasPrefix(path, strings.TrimSuffix(pat, "/")+"/") {
			return true
		}
	}
	return false
}

// absolutePatterns resolves relative path patterns against the working
// directory so manifests may declare entries like "./".
func absolutePatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(p, "*") || filepath.IsAbs(p) {
			out = append(out, p)
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			out = append(out, abs)
		}
	}
	return out
}

// RenderPreview renders a human-readable call preview in the arguments'
// natural order, e.g. `shell.run(cmd: "rm -rf /tmp/x")`.
func RenderPreview(skillName string, args types.Args) string {
	parts := make([]string, 0, args.Len())
	for _, p := range args.Pairs() {
		v, err := json.Marshal(p.Value)
		if err != nil {
			v = []byte(fmt.Sprintf("%q", fmt.Sprint(p.Value)))
		}
		parts = append(parts, fmt.Sprintf("%s: %s", p.Key, v))
	}
	return fmt.Sprintf("%s(%s)", skillName, strings.Join(parts, ", "))
}
