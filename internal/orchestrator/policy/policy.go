// Package policy validates workspace paths before any job I/O happens in
// them. Agent calls run shell commands inside the workspace, so a bad path
// must be rejected up front rather than discovered mid-run.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
)

// blockedRoots are directories a job workspace must never resolve to.
// Running an agent directly in one of these would let tool calls touch
// system files.
var blockedRoots = map[string]bool{
	"/":     true,
	"/bin":  true,
	"/boot": true,
	"/dev":  true,
	"/etc":  true,
	"/lib":  true,
	"/proc": true,
	"/root": false, // allowed: common container home
	"/sbin": true,
	"/sys":  true,
	"/usr":  true,
	"/var":  true,
}

// ValidateWorkspace checks that path is an absolute, existing directory that
// is not a blocked system root.
func ValidateWorkspace(path string) error {
	if path == "" {
		return fmt.Errorf("workspace path is empty")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("workspace path must be absolute: %s", path)
	}

	clean := filepath.Clean(path)
	if blocked, known := blockedRoots[clean]; known && blocked {
		return fmt.Errorf("workspace path %s is a blocked system directory", clean)
	}

	info, err := os.Stat(clean)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("workspace path does not exist: %s", clean)
		}
		return fmt.Errorf("stat workspace path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workspace path is not a directory: %s", clean)
	}
	return nil
}
