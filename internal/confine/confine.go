// Package confine resolves client-supplied file names against a declared root
// directory and refuses any result that would land outside that root.
package confine

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrRejected is returned for every candidate that cannot be proven to stay
// inside its root. Callers must treat it exactly like "not found".
var ErrRejected = errors.New("confine: path rejected")

// Resolve joins candidate onto root and returns the canonical absolute path of
// the result. Both root and the joined path are canonicalized on the real
// filesystem (symlinks included), so the returned path is safe to open.
//
// Any failure, including nonexistent paths and broken symlinks, yields an
// error wrapping ErrRejected.
func Resolve(root, candidate string) (string, error) {
	if strings.ContainsRune(candidate, 0) {
		return "", fmt.Errorf("%w: candidate contains NUL byte", ErrRejected)
	}

	realRoot, err := canonical(root)
	if err != nil {
		return "", fmt.Errorf("%w: root %q: %v", ErrRejected, root, err)
	}

	joined := filepath.Join(realRoot, filepath.FromSlash(candidate))
	realPath, err := canonical(joined)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}

	if !Within(realRoot, realPath) {
		return "", fmt.Errorf("%w: %q escapes %q", ErrRejected, candidate, realRoot)
	}
	return realPath, nil
}

// Within reports whether target equals root or is nested under it by path
// segments. Both arguments must already be clean absolute paths.
// "/data/assets-evil" is not within "/data/assets".
func Within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
