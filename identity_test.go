package semalock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestResolveTargetEquivalentPaths(t *testing.T) {
	c := qt.New(t)
	root, err := filepath.EvalSymlinks(t.TempDir())
	c.Assert(err, qt.IsNil)
	c.Assert(os.Mkdir(filepath.Join(root, "a"), 0o755), qt.IsNil)
	file := filepath.Join(root, "a", "file")
	c.Assert(os.WriteFile(file, nil, 0o644), qt.IsNil)
	c.Assert(os.Symlink(file, filepath.Join(root, "link")), qt.IsNil)

	t.Chdir(root)
	for _, p := range []string{"a/file", "./a/../a/file", "link", filepath.Join(root, "a", ".", "file")} {
		got, err := ResolveTarget(p)
		c.Assert(err, qt.IsNil, qt.Commentf("path %q", p))
		c.Assert(got, qt.Equals, file, qt.Commentf("path %q", p))
	}
}

func TestResolveTargetMissingFile(t *testing.T) {
	c := qt.New(t)
	root, err := filepath.EvalSymlinks(t.TempDir())
	c.Assert(err, qt.IsNil)

	got, err := ResolveTarget(filepath.Join(root, "sub", "..", "new"))
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, filepath.Join(root, "new"))

	// Resolution must not create anything.
	_, err = os.Stat(got)
	c.Assert(os.IsNotExist(err), qt.IsTrue)
}

func TestResolveTargetMissingParent(t *testing.T) {
	c := qt.New(t)
	_, err := ResolveTarget(filepath.Join(t.TempDir(), "nope", "file"))
	c.Assert(errors.Is(err, ErrResolution), qt.IsTrue)
	c.Assert(errors.Is(err, os.ErrNotExist), qt.IsTrue)

	var lockErr *LockError
	c.Assert(errors.As(err, &lockErr), qt.IsTrue)
	c.Assert(IsAcquireError(err), qt.IsTrue)
}

func TestResolveTargetDanglingSymlink(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	link := filepath.Join(dir, "dangling")
	c.Assert(os.Symlink(filepath.Join(dir, "missing"), link), qt.IsNil)

	_, err := ResolveTarget(link)
	c.Assert(errors.Is(err, ErrResolution), qt.IsTrue)
}

func TestSemaphoreName(t *testing.T) {
	c := qt.New(t)
	a := SemaphoreName("/tmp/a")
	c.Assert(a, qt.Matches, `/semalock\.[0-9a-f]{20}`)
	c.Assert(len(a) <= 31, qt.IsTrue, qt.Commentf("%q is %d bytes", a, len(a)))
	c.Assert(SemaphoreName("/tmp/a"), qt.Equals, a)
	c.Assert(SemaphoreName("/tmp/b"), qt.Not(qt.Equals), a)
}
