package semalock

import (
	"os"
	"time"
)

// Semaphore is an open handle on a kernel-resident named semaphore shared by
// every process that opens the same name. The lock engine only ever uses it
// as a binary gate (1 = free, 0 = held).
//
// Open a handle with OpenSemaphore. Closing a handle never removes the
// semaphore from the system; that is UnlinkSemaphore's job.
//
// Example:
//
//	sem, _ := semalock.OpenSemaphore("/my_sem", 0o644)
//	defer sem.Close()
//
//	sem.Wait()
//	// critical section
//	sem.Signal()
type Semaphore interface {
	// Name returns the name the semaphore was opened with.
	Name() string

	// Wait blocks in the kernel until the count is positive, then
	// decrements it.
	Wait() error

	// TryWait decrements the count if it is positive. It reports whether
	// the decrement happened.
	TryWait() (bool, error)

	// TimedWait is Wait bounded by d. It reports false, leaving the count
	// untouched, if d elapsed first.
	TimedWait(d time.Duration) (bool, error)

	// Signal increments the count, waking at most one waiter.
	Signal() error

	// Value samples the current count. The answer may be stale by the time
	// it is returned; use it for heuristics only.
	Value() (int, error)

	// Close releases this process's handle.
	Close() error
}

// OpenSemaphore opens the named semaphore, creating it with a count of 1 if
// it does not exist. Creation is atomic: concurrent first openers all end up
// with the same object.
func OpenSemaphore(name string, perm os.FileMode) (Semaphore, error) {
	return openSemaphore(name, perm)
}

// UnlinkSemaphore removes the name from the system. Processes that already
// hold a handle keep using the old object; later opens create a new one.
func UnlinkSemaphore(name string) error {
	return unlinkSemaphore(name)
}

// PeekSemaphore samples the count of the named semaphore without creating
// it. ok is false if no semaphore with that name is currently linked.
func PeekSemaphore(name string) (value int, ok bool, err error) {
	return peekSemaphore(name)
}
