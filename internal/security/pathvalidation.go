// Package security holds path validation used when user-supplied names end
// up in filesystem locations.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory checks that path stays inside dir once cleaned.
// It is a lexical check: callers importing files with hostile basenames (for
// example "..") get an error instead of a write outside the project
// directory.
func ValidatePathWithinDirectory(path, dir string) error {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", path, dir)
	}
	if rel == "." {
		return fmt.Errorf("path %s names the directory itself", path)
	}
	return nil
}
