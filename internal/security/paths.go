// internal/security/paths.go
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a relative path escapes its root.
var ErrOutsideRoot = errors.New("path escapes root")

// Within joins rel onto root and returns the result, refusing absolute paths
// and any path that resolves outside root.
func Within(root, rel string) (string, error) {
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %s is absolute", ErrOutsideRoot, rel)
	}
	root = filepath.Clean(root)
	joined := filepath.Join(root, rel)
	r, err := filepath.Rel(root, joined)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	if r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return joined, nil
}

// CheckNotWorldWritable returns an error if path is writable by other users.
func CheckNotWorldWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking permissions: %w", err)
	}
	if mode := info.Mode().Perm(); mode&0002 != 0 {
		return fmt.Errorf("%s is world-writable (mode %04o)", path, mode)
	}
	return nil
}
