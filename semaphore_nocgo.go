//go:build !linux || !cgo

package semalock

import (
	"os"
)

// Without cgo there is no portable way to reach sem_open(3), so every
// semaphore operation fails with ErrSemaphoreNotAvailable.

func openSemaphore(name string, perm os.FileMode) (Semaphore, error) {
	return nil, ErrSemaphoreNotAvailable
}

func unlinkSemaphore(name string) error {
	return ErrSemaphoreNotAvailable
}

func peekSemaphore(name string) (int, bool, error) {
	return 0, false, ErrSemaphoreNotAvailable
}
