package semalock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
)

func openTestFileLock(c *qt.C, path string) *FileLock {
	fl, err := OpenFileLock(path, DefaultPerm)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { fl.Close() })
	return fl
}

func TestFileLockExcludesOtherDescriptors(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "target")
	a := openTestFileLock(c, path)
	b := openTestFileLock(c, path)

	ok, err := a.TryLock()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(a.Locked(), qt.IsTrue)

	ok, err = b.TryLock()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)

	c.Assert(a.Unlock(), qt.IsNil)
	c.Assert(a.Unlock(), qt.IsNil)
	ok, err = b.TryLock()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
}

func TestFileLockCloseReleases(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "target")
	a := openTestFileLock(c, path)
	b := openTestFileLock(c, path)

	ok, err := a.TryLock()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(a.Close(), qt.IsNil)
	c.Assert(a.File(), qt.IsNil)

	ok, err = b.TryLock()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
}

func TestFileLockWithinWaitsForRelease(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "target")
	holder := openTestFileLock(c, path)
	waiter := openTestFileLock(c, path)

	ok, err := holder.TryLock()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	go func() {
		time.Sleep(50 * time.Millisecond)
		holder.Unlock()
	}()

	c.Assert(waiter.LockWithin(5*time.Second, clock.WallClock), qt.IsNil)
	c.Assert(waiter.Locked(), qt.IsTrue)
}

func TestFileLockWithinGivesUp(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "target")
	holder := openTestFileLock(c, path)
	waiter := openTestFileLock(c, path)

	ok, err := holder.TryLock()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	clk := testclock.NewClock(time.Now())
	done := make(chan error, 1)
	go func() {
		done <- waiter.LockWithin(time.Second, clk)
	}()
	for {
		select {
		case err := <-done:
			c.Assert(errors.Is(err, ErrExternalContention), qt.IsTrue, qt.Commentf("err: %v", err))
			c.Assert(waiter.Locked(), qt.IsFalse)
			return
		default:
		}
		// Errors mean nobody was waiting on the clock yet; try again.
		_ = clk.WaitAdvance(200*time.Millisecond, 50*time.Millisecond, 1)
	}
}

func TestOpenFileLockFailure(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	// A directory cannot be opened for writing.
	_, err := OpenFileLock(dir, DefaultPerm)
	c.Assert(errors.Is(err, ErrOpen), qt.IsTrue)

	_, err = OpenFileLock(filepath.Join(dir, "missing", "file"), DefaultPerm)
	c.Assert(errors.Is(err, ErrOpen), qt.IsTrue)
	c.Assert(errors.Is(err, os.ErrNotExist), qt.IsTrue)
}
