// Package semalock provides mutual exclusion between unrelated processes on
// the same host without a lock server.
//
// A lock protects one file, the lock target. Entry is gated by a POSIX named
// semaphore derived from the target's canonical path, so thousands of
// waiters can sleep in the kernel without burning CPU. Once through the
// gate, a process takes an exclusive flock(2) on the target. The file lock
// is what makes the scheme safe: the kernel drops it when its holder exits,
// however that happens, while a semaphore taken by a crashed process would
// stay taken forever.
//
// # Scoped Execution
//
// With acquires the lock, runs a function with the target open for reading
// and writing, and releases the lock on every way out of the function,
// panics included:
//
//	lock, err := semalock.New("/var/lib/app/counter", nil)
//	if err != nil {
//	    return err
//	}
//	err = lock.With(func(f *os.File) error {
//	    _, err := f.WriteString("42\n")
//	    return err
//	})
//
// Do is the same for functions that return a value:
//
//	data, err := semalock.Do(lock, func(f *os.File) ([]byte, error) {
//	    return io.ReadAll(f)
//	})
//
// Acquire and Handle.Release are available for callers that cannot
// structure their critical section as a function.
//
// # Protocol
//
// An acquisition resolves the target, opens it, registers as a participant,
// opens or creates the semaphore, waits on it and takes the file lock.
// Release unlocks the file, lets the CleanupPolicy decide whether the
// semaphore can be unlinked, closes the target and only then signals the
// semaphore, so a waiter woken by the gate never finds the file still
// locked.
//
// Participants mark themselves with open file description locks on bytes
// far past the end of the target: one while they take part, one while they
// hold the lock, and a door that arrivals pass while opening the semaphore.
// The marks never touch the file's data and vanish with the descriptor.
//
// Once through the gate, a process normally finds the file lock free. If
// another participant holds it, for instance because the semaphore was
// unlinked underneath a waiter, the process waits for it in the kernel.
// Only a holder that is not a participant at all runs into
// Options.ContentionTimeout and ErrExternalContention.
//
// A failure after the semaphore was taken releases it before the error is
// returned, so no failure can strand later waiters.
//
// # Crash Recovery
//
// A process killed inside its critical section leaves the semaphore at 0.
// Waiters wait in slices of Options.StaleAfter; when a full slice runs out
// they try the file lock, and if it is free the first one to take it
// proceeds. A slice shortened by Options.Timeout never leads to a takeover.
// Handle.Recovered reports such takeovers.
//
// # Errors
//
// Every error produced by the lock itself is a *LockError carrying one of
// ErrResolution, ErrSemaphore, ErrAcquireTimeout, ErrOpen,
// ErrExternalContention or ErrRelease. Errors returned by the critical
// section pass through untouched, and IsAcquireError tells the two apart.
//
// # Semaphore Lifecycle
//
// Named semaphores are kernel objects that outlive their users. With the
// default UnlinkWhenIdle policy a releaser unlinks the semaphore only when no
// other participant is registered, and the next acquisition creates a new
// one. The releaser closes the door while it decides, so nobody can open the
// old semaphore between the check and the unlink. Where the marks are not
// available the semaphore is kept.
//
// # Platform Support
//
// Semaphores use sem_open(3) through cgo and are available on Linux. Other
// platforms, and builds with CGO_ENABLED=0, compile but return
// ErrSemaphoreNotAvailable.
package semalock
