package semalock

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

const (
	// semaphorePrefix namespaces every semaphore created by this package.
	semaphorePrefix = "/semalock."

	// digestLen is the number of hex digits of the path digest kept in a
	// semaphore name. 20 digits keep the whole name under the 31 byte
	// PSEMNAMLEN limit of BSD-derived kernels.
	digestLen = 20
)

// ResolveTarget returns the canonical form of path: absolute, with "." and
// ".." removed and every symlink followed. Two spellings of the same file
// resolve to the same string. A target that does not exist yet is resolved
// through its parent directory, which must exist.
//
// ResolveTarget has no side effects on the filesystem.
func ResolveTarget(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", newLockError(ErrResolution, "abs", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", newLockError(ErrResolution, "resolve", abs, err)
	}

	// A dangling symlink is not a missing file: creating the target would
	// create the link's destination, whose name we cannot know for sure.
	if _, lerr := os.Lstat(abs); lerr == nil {
		return "", newLockError(ErrResolution, "resolve", abs, err)
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return "", newLockError(ErrResolution, "resolve", abs, err)
	}
	return filepath.Join(dir, filepath.Base(abs)), nil
}

// SemaphoreName derives the semaphore name for a canonical target. It is a
// pure function of its input.
func SemaphoreName(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return semaphorePrefix + hex.EncodeToString(sum[:])[:digestLen]
}
