package policy

import "github.com/wardlabs/wardclaw/internal/types"

// Builtins returns the built-in profiles. They fill in profiles the config
// does not define explicitly; a config profile with the same name wins.
func Builtins() []types.Profile {
	confirm := true
	return []types.Profile{
		{
			Name:          "dev",
			AllowedSkills: []string{"filesystem.*", "git.*", "shell.run"},
			AutoConfirm:   false,
			Overrides: map[string]types.Override{
				"shell.run": {
					RequireConfirmation: &confirm,
					DangerousPatterns:   []string{"rm -rf", "sudo", "chmod 777"},
				},
			},
		},
		{
			Name:          "readonly",
			AllowedSkills: []string{"filesystem.read", "git.status"},
			AutoConfirm:   true,
		},
	}
}

// builtinByName looks up a built-in profile.
func builtinByName(name string) (*types.Profile, bool) {
	for _, p := range Builtins() {
		if p.Name == name {
			prof := p
			return &prof, true
		}
	}
	return nil, false
}

// fallbackProfile is the deterministic least-privilege default used when a
// profile name resolves to nothing. Never returns nil.
func fallbackProfile() *types.Profile {
	builtins := Builtins()
	p := builtins[len(builtins)-1]
	return &p
}
