// Package appdata resolves the per-user application-data directory used
// for the daemon's persisted state and configuration file.
//
// Grounded on the teacher's pkg/config.getConfigDir, generalized from a
// single hardcoded subfolder to a parameterized one so both the config
// loader and the cursor/cache stores share one resolution rule.
package appdata

import (
	"os"
	"path/filepath"
)

// Dir returns the application-data directory for the given subfolder,
// e.g. Dir("usn-watcher") on Windows resolves under %AppData%, and under
// $XDG_CONFIG_HOME or ~/.config elsewhere. Falls back to the current
// directory if the user's home cannot be determined.
func Dir(subfolder string) string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, subfolder)
	}
	return filepath.Join(".", subfolder)
}

// EnsureDir creates the application-data directory for subfolder if it
// does not already exist.
func EnsureDir(subfolder string) (string, error) {
	dir := Dir(subfolder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
