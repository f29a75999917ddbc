package workdir

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePath checks that rel stays inside the node workdir root once
// symlinks are resolved, and returns the resolved absolute path. Every
// mutation of the workdir goes through this check first.
func ValidatePath(root, rel string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving workdir: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolving workdir symlinks: %w", err)
	}

	candidate := filepath.Clean(filepath.Join(realRoot, rel))

	// The path may not exist yet, so resolve as much of it as we can.
	resolved, err := resolveExistingPath(candidate)
	if err != nil {
		return "", fmt.Errorf("resolving target path: %w", err)
	}

	// Trailing separator so "workdir2" does not pass as inside "workdir".
	rootPrefix := realRoot + string(filepath.Separator)
	if resolved != realRoot && !strings.HasPrefix(resolved, rootPrefix) {
		return "", fmt.Errorf("path '%s' resolves to '%s' which is outside the workdir '%s'", rel, resolved, realRoot)
	}

	return resolved, nil
}

// resolveExistingPath resolves symlinks for the longest existing prefix
// of the path, then appends the non-existing suffix.
func resolveExistingPath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)

	if dir == path {
		return path, nil
	}

	resolvedDir, err := resolveExistingPath(dir)
	if err != nil {
		return "", err
	}

	return filepath.Join(resolvedDir, base), nil
}

// WriteFileAtomic streams r to rel under root. The bytes land in a
// staging file in the destination directory and are renamed into place
// only once fully written and synced, so a crashed or failed download
// never leaves a partial artifact under the final name. Returns the
// number of bytes written.
func WriteFileAtomic(root, rel string, r io.Reader, perm os.FileMode) (int64, error) {
	resolved, err := ValidatePath(root, rel)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".update-gate-*.part")
	if err != nil {
		return 0, fmt.Errorf("creating staging file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return n, fmt.Errorf("writing staging file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return n, fmt.Errorf("syncing staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("closing staging file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return n, fmt.Errorf("setting permissions: %w", err)
	}

	if err := os.Rename(tmpPath, resolved); err != nil {
		return n, fmt.Errorf("renaming staging file to %s: %w", resolved, err)
	}

	success = true
	return n, nil
}

// Remove deletes a single file under root.
func Remove(root, rel string) error {
	resolved, err := ValidatePath(root, rel)
	if err != nil {
		return err
	}
	return os.Remove(resolved)
}
