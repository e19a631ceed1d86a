package semalock

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("semalock")

// Lock serializes access to one file across every process on the host that
// locks the same file through this package.
//
// Entry is gated by a named semaphore, so waiters sleep in the kernel
// instead of polling, and is made safe by an exclusive flock(2) on the file,
// which the kernel drops if a holder dies. A Lock is safe for concurrent use;
// every acquisition opens its own descriptor and semaphore handle.
//
// Example:
//
//	lock, _ := semalock.New("/var/lib/app/state.json", nil)
//	err := lock.With(func(f *os.File) error {
//	    _, err := f.WriteString("hello")
//	    return err
//	})
type Lock struct {
	// target is the absolute path given to New. It is canonicalized again
	// on each acquisition because symlinks may change in between.
	target string

	// opts are the options with defaults applied.
	opts Options
}

// New returns a Lock for path. Nothing is opened or created yet; New only
// checks that path can be resolved. A nil opts means DefaultOptions().
func New(path string, opts *Options) (*Lock, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, newLockError(ErrResolution, "abs", path, err)
	}
	if _, err := ResolveTarget(abs); err != nil {
		return nil, err
	}
	return &Lock{target: abs, opts: opts.withDefaults()}, nil
}

// Path returns the absolute, not yet canonicalized, lock target.
func (l *Lock) Path() string {
	return l.target
}

// SemaphoreName resolves the target and returns the semaphore name it maps
// to right now.
func (l *Lock) SemaphoreName() (string, error) {
	canonical, err := ResolveTarget(l.target)
	if err != nil {
		return "", err
	}
	return SemaphoreName(canonical), nil
}

// doorWait bounds how long an arrival waits for a releaser that is deciding
// whether to unlink the semaphore.
const doorWait = time.Second

// With runs fn while holding the lock. fn gets the target file opened for
// reading and writing at offset 0. The lock is released on every way out of
// fn, including a panic, before With returns.
//
// Acquisition failures are *LockError values (see IsAcquireError). An error
// returned by fn is passed through unchanged.
func (l *Lock) With(fn func(f *os.File) error) error {
	return l.WithHandle(func(h *Handle) error {
		return fn(h.File())
	})
}

// WithHandle is With for critical sections that need the Handle, for
// instance to check Recovered.
func (l *Lock) WithHandle(fn func(h *Handle) error) error {
	_, err := run(l, func(h *Handle) (struct{}, error) {
		return struct{}{}, fn(h)
	})
	return err
}

// Do is With for critical sections that produce a value.
func Do[T any](l *Lock, fn func(f *os.File) (T, error)) (T, error) {
	return run(l, func(h *Handle) (T, error) {
		return fn(h.File())
	})
}

func run[T any](l *Lock, fn func(h *Handle) (T, error)) (result T, err error) {
	h, err := l.Acquire()
	if err != nil {
		return result, err
	}
	defer func() {
		relErr := h.Release()
		if relErr == nil {
			return
		}
		if err != nil {
			logger.Warningf("releasing %s after failed critical section: %v", h.path, relErr)
			return
		}
		err = relErr
	}()

	h.setState(stateExecuting)
	return fn(h)
}

// Acquire takes the lock and returns a Handle that must be released exactly
// once. Prefer With, which cannot forget to.
func (l *Lock) Acquire() (*Handle, error) {
	canonical, err := ResolveTarget(l.target)
	if err != nil {
		return nil, err
	}
	h := &Handle{lock: l, path: canonical}
	h.setState(stateSemaphoreWait)

	fl, err := OpenFileLock(canonical, l.opts.Perm)
	if err != nil {
		h.setState(stateFailed)
		return nil, err
	}
	h.file = fl

	leave := l.arrive(h)
	sem, err := OpenSemaphore(SemaphoreName(canonical), l.opts.Perm)
	leave()
	if err != nil {
		if cerr := h.file.Close(); cerr != nil {
			logger.Debugf("%v", cerr)
		}
		h.setState(stateFailed)
		return nil, newLockError(ErrSemaphore, "sem_open", canonical, err)
	}
	h.sem = sem

	if err := l.waitGate(h); err != nil {
		h.abort(false)
		return nil, err
	}
	if !h.recovered {
		h.setState(stateSemaphoreHeld)
		if err := l.lockFile(h); err != nil {
			// The gate must not stay closed behind a failure, or every later
			// waiter would sit out StaleAfter.
			h.abort(true)
			return nil, err
		}
	}
	if ok, err := h.file.mark(holderMark, markShared); !ok {
		logger.Debugf("marking %s as held (ok %v): %v", h.path, ok, err)
	}
	h.setState(stateFileLockHeld)
	return h, nil
}

// arrive registers h in the queue of the target and enters the door, which
// keeps releasers from unlinking the semaphore until leave is called.
// Failures only cost cleanup accuracy and are logged.
func (l *Lock) arrive(h *Handle) (leave func()) {
	if ok, err := h.file.mark(queueMark, markShared); !ok {
		logger.Debugf("registering at %s (ok %v): %v", h.path, ok, err)
	}
	if err := h.file.enterDoor(doorWait, l.opts.Clock); err != nil {
		logger.Debugf("passing the door of %s without holding it: %v", h.path, err)
		return func() {}
	}
	return func() {
		if _, err := h.file.mark(doorMark, markClear); err != nil {
			logger.Debugf("leaving the door of %s: %v", h.path, err)
		}
	}
}

// waitGate waits on the semaphore in StaleAfter slices. When a full slice
// runs out and the file lock turns out to be free, whoever closed the gate
// is gone, and the acquisition continues as recovered. A slice cut short by
// Timeout never tries the file lock.
func (l *Lock) waitGate(h *Handle) error {
	var deadline time.Time
	if l.opts.Timeout > 0 {
		deadline = time.Now().Add(l.opts.Timeout)
	}
	for {
		slice := l.opts.StaleAfter
		full := true
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return newLockError(ErrAcquireTimeout, "sem_timedwait", h.path, nil)
			}
			if remaining < slice {
				slice, full = remaining, false
			}
		}

		ok, err := h.sem.TimedWait(slice)
		if err != nil {
			return newLockError(ErrSemaphore, "sem_timedwait", h.path, err)
		}
		if ok {
			return nil
		}
		if !full {
			continue
		}

		// A free file lock means nobody is inside the critical section
		// even though the gate is closed.
		free, err := h.file.TryLock()
		if err != nil {
			return err
		}
		if free {
			logger.Warningf("semaphore %s closed for %v but %s is not locked; taking over from a dead holder",
				h.sem.Name(), slice, h.path)
			h.recovered = true
			return nil
		}
	}
}

// lockFile takes the flock after the gate. Another participant can only
// hold it when the semaphore was replaced underneath a waiter or a holder
// was taken over; such a holder is waited for in the kernel. Anybody else
// gets ContentionTimeout.
func (l *Lock) lockFile(h *Handle) error {
	ok, err := h.file.TryLock()
	if err != nil || ok {
		return err
	}
	if !h.file.heldByPeer() {
		err = h.file.LockWithin(l.opts.ContentionTimeout, l.opts.Clock)
		if err == nil || !errors.Is(err, ErrExternalContention) || !h.file.heldByPeer() {
			return err
		}
	}
	logger.Debugf("%s is held by another participant; waiting for it", h.path)
	return h.file.LockWithin(0, l.opts.Clock)
}

// openGate signals the semaphore unless its count is already positive.
// Skipping the post in that case keeps the gate binary after a recovered
// acquisition, whose token died with the previous holder.
func (l *Lock) openGate(h *Handle) error {
	if v, err := h.sem.Value(); err == nil && v > 0 {
		logger.Debugf("semaphore %s already open (value %d)", h.sem.Name(), v)
		return nil
	}
	if err := h.sem.Signal(); err != nil {
		return newLockError(ErrRelease, "sem_post", h.path, err)
	}
	return nil
}

// Unlink takes the lock and removes the semaphore from the system while
// holding it. The next acquisition creates a new semaphore. The target file
// is not touched.
func (l *Lock) Unlink() error {
	h, err := l.Acquire()
	if err != nil {
		return err
	}
	h.setState(stateExecuting)
	unlinkErr := UnlinkSemaphore(h.sem.Name())
	if err := h.Release(); err != nil {
		return err
	}
	if unlinkErr != nil && !errors.Is(unlinkErr, os.ErrNotExist) {
		return newLockError(ErrSemaphore, "sem_unlink", h.path, unlinkErr)
	}
	return nil
}

// Stat describes the current state of a lock target.
type Stat struct {
	// Path is the canonical target.
	Path string

	// SemaphoreName is the semaphore the target maps to.
	SemaphoreName string

	// Exists is false when no semaphore is linked under SemaphoreName,
	// which is the normal state of an idle target.
	Exists bool

	// Value is the sampled semaphore count: 1 free, 0 held. Only
	// meaningful when Exists is true.
	Value int
}

// Stat samples the state of the lock without taking it or creating
// anything.
func (l *Lock) Stat() (Stat, error) {
	canonical, err := ResolveTarget(l.target)
	if err != nil {
		return Stat{}, err
	}
	st := Stat{Path: canonical, SemaphoreName: SemaphoreName(canonical)}
	st.Value, st.Exists, err = PeekSemaphore(st.SemaphoreName)
	if err != nil {
		return st, newLockError(ErrSemaphore, "sem_getvalue", canonical, err)
	}
	return st, nil
}
