package semalock

import (
	"fmt"

	"github.com/juju/errors"
)

// Error kinds returned by the lock engine. Every error produced while
// acquiring or releasing a lock is a *LockError whose Kind is one of these,
// so callers can tell "could not acquire" apart from "acquired, but the
// work failed" with errors.Is.
const (
	// ErrResolution means the lock target could not be canonicalized.
	ErrResolution = errors.ConstError("cannot resolve lock target")

	// ErrSemaphore means the named semaphore could not be opened, created
	// or waited on.
	ErrSemaphore = errors.ConstError("semaphore failure")

	// ErrAcquireTimeout means Options.Timeout elapsed before the lock
	// became available. The semaphore is left untouched; retrying is safe.
	ErrAcquireTimeout = errors.ConstError("timed out waiting for lock")

	// ErrOpen means the target file could not be opened or created.
	ErrOpen = errors.ConstError("cannot open lock target")

	// ErrExternalContention means the semaphore gate was passed but the
	// exclusive file lock stayed held for longer than
	// Options.ContentionTimeout, i.e. something outside this package holds it.
	ErrExternalContention = errors.ConstError("file lock held by a foreign party")

	// ErrRelease means unlocking the file or signalling the semaphore failed.
	ErrRelease = errors.ConstError("cannot release lock")

	// ErrReleased is returned when a Handle is released a second time.
	ErrReleased = errors.ConstError("lock handle already released")

	// ErrSemaphoreNotAvailable is returned by every semaphore operation on
	// platforms without POSIX named semaphores, or when built without cgo.
	ErrSemaphoreNotAvailable = errors.ConstError("named semaphores require cgo on linux; rebuild with CGO_ENABLED=1")
)

// acquireKinds are the kinds that can only come out of Acquire.
var acquireKinds = []error{
	ErrResolution,
	ErrSemaphore,
	ErrAcquireTimeout,
	ErrOpen,
	ErrExternalContention,
}

// LockError describes a failure of one step of the lock protocol.
type LockError struct {
	// Kind is one of the Err* constants of this package.
	Kind errors.ConstError

	// Op is the step that failed (e.g. "sem_open", "flock").
	Op string

	// Path is the lock target the step operated on.
	Path string

	// Err is the underlying cause, usually a unix.Errno. May be nil.
	Err error
}

func newLockError(kind errors.ConstError, op, path string, err error) *LockError {
	return &LockError{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *LockError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("semalock: %s %s: %s", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("semalock: %s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *LockError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsAcquireError reports whether err was produced while acquiring a lock,
// as opposed to being returned by the caller's critical section or by the
// release step.
func IsAcquireError(err error) bool {
	for _, kind := range acquireKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
