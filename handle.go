package semalock

import (
	"os"
	"sync"
	"sync/atomic"
)

// state is a step of the acquire/release protocol.
type state int32

const (
	stateIdle state = iota
	stateSemaphoreWait
	stateSemaphoreHeld
	stateFileLockHeld
	stateExecuting
	stateReleasing
	stateReleased
	stateFailed
)

var stateNames = [...]string{
	stateIdle:          "idle",
	stateSemaphoreWait: "semaphore-wait",
	stateSemaphoreHeld: "semaphore-held",
	stateFileLockHeld:  "file-lock-held",
	stateExecuting:     "executing",
	stateReleasing:     "releasing",
	stateReleased:      "released",
	stateFailed:        "failed",
}

func (s state) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Handle is a held lock. It is returned by Lock.Acquire and must be
// released exactly once with Release.
type Handle struct {
	// lock is the Lock this handle was acquired from.
	lock *Lock

	// path is the canonical target at acquisition time.
	path string

	// sem is this acquisition's semaphore handle.
	sem Semaphore

	// file holds the descriptor and the exclusive lock.
	file *FileLock

	// recovered is set when the lock was taken over from a dead holder
	// without passing the semaphore.
	recovered bool

	// state is the current protocol step.
	state atomic.Int32

	// mu serializes Release.
	mu sync.Mutex
}

func (h *Handle) setState(s state) {
	old := state(h.state.Swap(int32(s)))
	logger.Tracef("%s: %s -> %s", h.path, old, s)
}

func (h *Handle) getState() state {
	return state(h.state.Load())
}

// Path returns the canonical lock target.
func (h *Handle) Path() string {
	return h.path
}

// File returns the locked target, opened for reading and writing. It
// returns nil once the handle has been released.
func (h *Handle) File() *os.File {
	if h.file == nil {
		return nil
	}
	return h.file.File()
}

// Recovered reports whether the lock was taken over from a process that
// died while holding it. The file may hold a partial write from that
// process.
func (h *Handle) Recovered() bool {
	return h.recovered
}

// Release unlocks the file, applies the cleanup policy, closes the file and
// reopens the semaphore gate, in that order. A waiter woken by the gate
// never finds the file still locked, and the releaser's registration is
// gone before anybody else can decide about cleanup. A second call returns
// ErrReleased.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s := h.getState(); s == stateReleased || s == stateFailed {
		return newLockError(ErrReleased, "release", h.path, nil)
	}
	h.setState(stateReleasing)

	if _, err := h.file.mark(holderMark, markClear); err != nil {
		logger.Debugf("clearing holder mark of %s: %v", h.path, err)
	}
	if err := h.file.Unlock(); err != nil {
		// Closing the descriptor below drops the lock anyway.
		logger.Debugf("%v", err)
	}
	h.lock.cleanup(h)
	closeErr := h.file.Close()
	gateErr := h.lock.openGate(h)

	if err := h.sem.Close(); err != nil {
		logger.Debugf("closing semaphore %s: %v", h.sem.Name(), err)
	}
	h.setState(stateReleased)

	if gateErr != nil {
		return gateErr
	}
	return closeErr
}

// abort undoes a partial acquisition. signal is true when this acquisition
// holds the semaphore token.
func (h *Handle) abort(signal bool) {
	if h.file != nil {
		if err := h.file.Close(); err != nil {
			logger.Debugf("%v", err)
		}
	}
	if signal {
		if err := h.lock.openGate(h); err != nil {
			logger.Warningf("%v", err)
		}
	}
	if err := h.sem.Close(); err != nil {
		logger.Debugf("closing semaphore %s: %v", h.sem.Name(), err)
	}
	h.setState(stateFailed)
}
