package semalock

import (
	"errors"
	"os"
)

// CleanupPolicy decides, on release, whether the semaphore can be unlinked
// so that short-lived processes do not leak kernel semaphores.
type CleanupPolicy interface {
	// ShouldUnlink is told whether the releaser was the only participant
	// registered on the target. While it decides, arrivals are held at the
	// door, so an idle answer stays true until the semaphore is unlinked.
	ShouldUnlink(idle bool) bool
}

// UnlinkWhenIdle unlinks the semaphore when nobody else is waiting for the
// lock. The next acquisition creates a fresh one.
type UnlinkWhenIdle struct{}

func (UnlinkWhenIdle) ShouldUnlink(idle bool) bool {
	return idle
}

// NeverUnlink keeps the semaphore around. Use it for targets that are
// locked constantly, where re-creating the semaphore would be wasted work.
type NeverUnlink struct{}

func (NeverUnlink) ShouldUnlink(bool) bool {
	return false
}

// cleanup applies the lock's policy to h, which must still hold the
// semaphore token. It closes the door and leaves it closed; closing the
// target descriptor opens it again. cleanup never reports failure.
func (l *Lock) cleanup(h *Handle) {
	idle := l.closeDoor(h)
	if !l.opts.Cleanup.ShouldUnlink(idle) {
		logger.Tracef("keeping semaphore %s (idle %v)", h.sem.Name(), idle)
		return
	}
	err := UnlinkSemaphore(h.sem.Name())
	switch {
	case err == nil:
		logger.Tracef("unlinked semaphore %s", h.sem.Name())
	case errors.Is(err, os.ErrNotExist):
		// Already gone, e.g. through Lock.Unlink.
	default:
		logger.Debugf("unlinking semaphore %s: %v", h.sem.Name(), err)
	}
}

// closeDoor takes the door exclusively and reports whether no other
// participant is registered. A door held by an arrival means somebody is
// about to wait, so that counts as busy.
func (l *Lock) closeDoor(h *Handle) bool {
	ok, err := h.file.mark(doorMark, markExclusive)
	if err != nil || !ok {
		logger.Tracef("door of %s busy (ok %v): %v", h.path, ok, err)
		return false
	}
	queued, err := h.file.marked(queueMark)
	if err != nil {
		logger.Debugf("checking queue of %s: %v", h.path, err)
		return false
	}
	return !queued
}
