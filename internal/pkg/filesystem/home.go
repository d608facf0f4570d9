// Package filesystem holds small path helpers shared by the config loader
// and the project store.
package filesystem

import (
	"os"
	"path/filepath"
	"strings"
)

// UserHomeDir returns the current user's home directory.
// If the home directory cannot be determined, it returns "." as a fallback.
func UserHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

// ExpandHome resolves a leading "~/" against the home directory and cleans
// relative paths. Absolute paths are returned unchanged.
func ExpandHome(path string) string {
	switch {
	case filepath.IsAbs(path):
		return path
	case path == "~":
		return UserHomeDir()
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(UserHomeDir(), path[2:])
	default:
		return filepath.Clean(path)
	}
}
