package skills

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wardlabs/wardclaw/internal/types"
)

// SkillFile is the on-disk definition of a user command skill,
// ~/.wardclaw/skills/<dir>/skill.toml.
type SkillFile struct {
	Name                 string          `toml:"name"`
	Description          string          `toml:"description"`
	Command              string          `toml:"command"`
	Args                 []string        `toml:"args"`
	Env                  []string        `toml:"env"`
	TimeoutSecs          int             `toml:"timeout_secs"`
	RequiresConfirmation bool            `toml:"requires_confirmation"`
	Shell                bool            `toml:"shell"`
	FS                   *FSSection      `toml:"fs"`
	Params               map[string]Param `toml:"params"`
}

// FSSection declares filesystem access for a user skill.
type FSSection struct {
	Read  []string `toml:"read"`
	Write []string `toml:"write"`
}

// Param describes one substitutable argument.
type Param struct {
	Description string `toml:"description"`
	Required    bool   `toml:"required"`
}

// ParseSkillFile decodes and validates a skill.toml.
func ParseSkillFile(path string) (*SkillFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sf SkillFile
	if err := toml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := sf.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &sf, nil
}

func (sf *SkillFile) validate() error {
	if sf.Name == "" {
		return fmt.Errorf("skill name is required")
	}
	if strings.ContainsAny(sf.Name, " \t") {
		return fmt.Errorf("skill name %q must not contain whitespace", sf.Name)
	}
	if sf.Command == "" {
		return fmt.Errorf("skill %s: command is required", sf.Name)
	}
	return nil
}

// Manifest converts the file definition into a registry manifest.
func (sf *SkillFile) Manifest() *types.Manifest {
	m := &types.Manifest{
		Name:                 sf.Name,
		Description:          sf.Description,
		RequiresConfirmation: sf.RequiresConfirmation,
		Permissions: types.Permissions{
			Shell: sf.Shell,
			Net:   &types.NetPermissions{},
		},
	}
	if sf.FS != nil {
		m.Permissions.FS = &types.FSPermissions{Read: sf.FS.Read, Write: sf.FS.Write}
	}
	if len(sf.Params) > 0 {
		props := make(map[string]any, len(sf.Params))
		var required []any
		for name, p := range sf.Params {
			props[name] = map[string]any{"type": "string", "description": p.Description}
			if p.Required {
				required = append(required, name)
			}
		}
		m.ArgsSchema = map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			m.ArgsSchema["required"] = required
		}
	}
	return m
}

// substituteArgs resolves $name placeholders in the configured argv
// against the invocation arguments. Unknown placeholders become "".
func (sf *SkillFile) substituteArgs(args types.Args) []string {
	out := make([]string, len(sf.Args))
	for i, a := range sf.Args {
		if strings.HasPrefix(a, "$") {
			if v, ok := args.Get(a[1:]); ok {
				out[i] = fmt.Sprintf("%v", v)
			}
			continue
		}
		out[i] = a
	}
	return out
}
