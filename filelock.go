package semalock

import (
	"os"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"
)

const errWouldBlock = errors.ConstError("file lock is held")

// Protocol state lives in byte-range locks on single bytes far past any
// real content of the target, next to the flock on the whole file.
const (
	markBase int64 = 1 << 62

	// queueMark is held shared by every participant from the start of an
	// acquisition until its release.
	queueMark = markBase

	// holderMark is held shared while a participant owns the flock.
	holderMark = markBase + 1

	// doorMark is held shared by arrivals while they open the semaphore and
	// exclusively by a releaser deciding whether to unlink it.
	doorMark = markBase + 2
)

type markMode int

const (
	markShared markMode = iota
	markExclusive
	markClear
)

// FileLock is an open descriptor on a lock target together with the
// exclusive advisory lock on it. The kernel drops the lock when the
// descriptor is closed, including when the process dies, which is what
// makes the protocol crash-safe.
type FileLock struct {
	// path is the target the descriptor was opened on.
	path string

	// f is the open descriptor; nil once closed.
	f *os.File

	// locked is true while this descriptor holds the exclusive lock.
	locked bool
}

// OpenFileLock opens path for reading and writing, creating it with perm if
// it does not exist. The returned FileLock does not hold the lock yet.
func OpenFileLock(path string, perm os.FileMode) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, perm)
	if err != nil {
		return nil, newLockError(ErrOpen, "open", path, err)
	}
	return &FileLock{path: path, f: f}, nil
}

// File returns the open descriptor.
func (l *FileLock) File() *os.File {
	return l.f
}

// Locked reports whether this descriptor currently holds the lock.
func (l *FileLock) Locked() bool {
	return l.locked
}

// TryLock takes the exclusive lock if it is free and reports whether it did.
func (l *FileLock) TryLock() (bool, error) {
	if l.f == nil {
		return false, newLockError(ErrOpen, "flock", l.path, os.ErrClosed)
	}
	if l.locked {
		return true, nil
	}
	ok, err := tryFlock(l.f)
	if err != nil {
		return false, newLockError(ErrExternalContention, "flock", l.path, err)
	}
	l.locked = ok
	return ok, nil
}

// LockWithin takes the exclusive lock, waiting at most d for it. Under the
// semaphore gate the lock is expected to be free at once, so waiting is a
// doubling backoff on TryLock rather than a blocking call. If d is not
// positive LockWithin blocks until the lock is granted.
func (l *FileLock) LockWithin(d time.Duration, clk clock.Clock) error {
	if d <= 0 {
		if l.f == nil {
			return newLockError(ErrOpen, "flock", l.path, os.ErrClosed)
		}
		if err := flock(l.f); err != nil {
			return newLockError(ErrExternalContention, "flock", l.path, err)
		}
		l.locked = true
		return nil
	}
	if clk == nil {
		clk = clock.WallClock
	}

	err := l.poll("flock", time.Millisecond, 100*time.Millisecond, d, clk, l.TryLock)
	if err == nil {
		return nil
	}
	if retry.IsDurationExceeded(err) {
		return newLockError(ErrExternalContention, "flock", l.path, errWouldBlock)
	}
	return err
}

// poll calls try with a doubling delay between first and most until it
// succeeds, fails, or d has passed.
func (l *FileLock) poll(op string, first, most, d time.Duration, clk clock.Clock, try func() (bool, error)) error {
	return retry.Call(retry.CallArgs{
		Func: func() error {
			ok, err := try()
			if err != nil {
				return err
			}
			if !ok {
				return errWouldBlock
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			return err != errWouldBlock
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Tracef("%s %s attempt %d: %v", op, l.path, attempt, err)
		},
		Attempts:    retry.UnlimitedAttempts,
		Delay:       first,
		MaxDelay:    most,
		MaxDuration: d,
		BackoffFunc: retry.DoubleDelay,
		Clock:       clk,
	})
}

func (l *FileLock) mark(off int64, mode markMode) (bool, error) {
	if l.f == nil {
		return false, os.ErrClosed
	}
	return setMark(l.f, off, mode)
}

func (l *FileLock) marked(off int64) (bool, error) {
	if l.f == nil {
		return false, os.ErrClosed
	}
	return markTaken(l.f, off)
}

// enterDoor takes the door mark shared, waiting at most d for a releaser
// that holds it exclusively.
func (l *FileLock) enterDoor(d time.Duration, clk clock.Clock) error {
	if clk == nil {
		clk = clock.WallClock
	}
	return l.poll("door", 100*time.Microsecond, 10*time.Millisecond, d, clk, func() (bool, error) {
		return l.mark(doorMark, markShared)
	})
}

// heldByPeer reports whether the flock is owned by another participant of
// this protocol rather than by an outside party.
func (l *FileLock) heldByPeer() bool {
	held, err := l.marked(holderMark)
	if err != nil {
		logger.Debugf("checking holder of %s: %v", l.path, err)
		return false
	}
	return held
}

// Unlock releases the exclusive lock. Calling it on an unlocked FileLock is
// a no-op.
func (l *FileLock) Unlock() error {
	if !l.locked || l.f == nil {
		return nil
	}
	l.locked = false
	if err := funlock(l.f); err != nil {
		return newLockError(ErrRelease, "funlock", l.path, err)
	}
	return nil
}

// Close closes the descriptor, which also drops any lock it still holds.
func (l *FileLock) Close() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	l.locked = false
	if err != nil {
		return newLockError(ErrRelease, "close", l.path, err)
	}
	return nil
}
