// Package types provides shared types used across wardclaw packages
// to avoid import cycles between policy, skills, and the orchestrator.
package types

// Profile is a named authorization policy bundle. Profiles are loaded once
// at startup (config merged over builtins) and are immutable afterwards.
type Profile struct {
	Name          string              `json:"name" yaml:"name"`
	AllowedSkills []string            `json:"allowed_skills" yaml:"allowed_skills"`
	AutoConfirm   bool                `json:"auto_confirm" yaml:"auto_confirm"`
	Overrides     map[string]Override `json:"skill_overrides,omitempty" yaml:"skill_overrides,omitempty"`
}

// Override customizes a single skill's policy within a profile.
// Absent fields fall back to the skill's own manifest permissions.
type Override struct {
	PathAllowlist       []string `json:"path_allowlist,omitempty" yaml:"path_allowlist,omitempty"`
	PathDenylist        []string `json:"path_denylist,omitempty" yaml:"path_denylist,omitempty"`
	CommandAllowlist    []string `json:"command_allowlist,omitempty" yaml:"command_allowlist,omitempty"`
	DangerousPatterns   []string `json:"dangerous_patterns,omitempty" yaml:"dangerous_patterns,omitempty"`
	RequireConfirmation *bool    `json:"require_confirmation,omitempty" yaml:"require_confirmation,omitempty"`
}

// ConfirmationRequired reports whether the override forces confirmation.
func (o Override) ConfirmationRequired() bool {
	return o.RequireConfirmation != nil && *o.RequireConfirmation
}

// Manifest is a skill's declared metadata: identity, required permissions,
// confirmation requirement, and the JSON schema of its arguments. Manifests
// are registered once at startup and never mutated.
type Manifest struct {
	Name                 string         `json:"name"`
	Description          string         `json:"description"`
	Permissions          Permissions    `json:"permissions"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
	ArgsSchema           map[string]any `json:"args_schema,omitempty"`
}

// Permissions declares what a skill needs access to.
type Permissions struct {
	FS    *FSPermissions  `json:"fs,omitempty"`
	Net   *NetPermissions `json:"net,omitempty"`
	Shell bool            `json:"shell,omitempty"`
}

// FSPermissions lists path patterns a skill may read or write.
type FSPermissions struct {
	Read  []string `json:"read,omitempty"`
	Write []string `json:"write,omitempty"`
}

// NetPermissions lists outbound destination patterns.
type NetPermissions struct {
	Outbound []string `json:"outbound,omitempty"`
}

// DeclaresFS reports whether the manifest declares any filesystem access.
func (m *Manifest) DeclaresFS() bool {
	return m.Permissions.FS != nil && (len(m.Permissions.FS.Read) > 0 || len(m.Permissions.FS.Write) > 0)
}
