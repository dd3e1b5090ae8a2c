package policy

import (
	"os"
	"path/filepath"
	"strings"
)

// matchPattern reports whether target matches pattern. Matching is
// case-insensitive, anchored to the whole string, and `*` matches any run
// of characters including the empty run. No other metacharacters exist.
func matchPattern(target, pattern string) bool {
	t := strings.ToLower(target)
	p := strings.ToLower(pattern)

	parts := strings.Split(p, "*")
	if len(parts) == 1 {
		return t == p
	}

	if !strings.HasPrefix(t, parts[0]) {
		return false
	}
	t = t[len(parts[0]):]

	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(t, part)
		if idx < 0 {
			return false
		}
		t = t[idx+len(part):]
	}

	return strings.HasSuffix(t, last)
}

// matchesAny reports whether target matches at least one pattern.
func matchesAny(target string, patterns []string) bool {
	for _, p := range patterns {
		if matchPattern(target, p) {
			return true
		}
	}
	return false
}

// expandHome replaces a leading "~/" with the user's home directory.
// If the home directory cannot be determined the path is returned as is.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// expandHomeAll applies expandHome to every pattern.
func expandHomeAll(patterns []string) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = expandHome(p)
	}
	return out
}
