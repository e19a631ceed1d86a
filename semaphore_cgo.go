//go:build linux && cgo

package semalock

/*
#cgo LDFLAGS: -pthread
#include <errno.h>
#include <fcntl.h>
#include <semaphore.h>
#include <stdlib.h>
#include <time.h>

// sem_open is variadic and cannot be called from Go directly.
static sem_t *semalock_open(const char *name, int oflag, unsigned int mode, unsigned int value) {
	return sem_open(name, oflag, (mode_t)mode, value);
}

static int semalock_failed(sem_t *sem) {
	return sem == SEM_FAILED;
}

static int semalock_timedwait(sem_t *sem, long long sec, long nsec) {
	struct timespec ts;
	ts.tv_sec = (time_t)sec;
	ts.tv_nsec = nsec;
	return sem_timedwait(sem, &ts);
}
*/
import "C"

import (
	"errors"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// posixSemaphore is a Semaphore backed by sem_open(3). Blocking waits run
// inside the cgo call, so a waiter parks its OS thread in the kernel instead
// of polling.
//
// A posixSemaphore is owned by a single acquisition and is not safe for
// concurrent use.
type posixSemaphore struct {
	// name is the POSIX name, including the leading slash.
	name string

	// sem is the mapped semaphore; nil once closed.
	sem *C.sem_t
}

func openSemaphore(name string, perm os.FileMode) (Semaphore, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	// Initial value 1: a fresh semaphore is a free gate.
	sem, err := C.semalock_open(cname, C.O_CREAT, C.uint(perm.Perm()), 1)
	if C.semalock_failed(sem) != 0 {
		return nil, err
	}
	return &posixSemaphore{name: name, sem: sem}, nil
}

func unlinkSemaphore(name string) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	if r, err := C.sem_unlink(cname); r != 0 {
		return err
	}
	return nil
}

func peekSemaphore(name string) (int, bool, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	sem, err := C.semalock_open(cname, 0, 0, 0)
	if C.semalock_failed(sem) != 0 {
		if errors.Is(err, unix.ENOENT) {
			return 0, false, nil
		}
		return 0, false, err
	}
	defer func() { C.sem_close(sem) }()

	var v C.int
	if r, err := C.sem_getvalue(sem, &v); r != 0 {
		return 0, true, err
	}
	return int(v), true, nil
}

func (s *posixSemaphore) Name() string {
	return s.name
}

func (s *posixSemaphore) Wait() error {
	if s.sem == nil {
		return os.ErrClosed
	}
	for {
		r, err := C.sem_wait(s.sem)
		if r == 0 {
			return nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return err
	}
}

func (s *posixSemaphore) TryWait() (bool, error) {
	if s.sem == nil {
		return false, os.ErrClosed
	}
	for {
		r, err := C.sem_trywait(s.sem)
		if r == 0 {
			return true, nil
		}
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return false, nil
		}
		return false, err
	}
}

func (s *posixSemaphore) TimedWait(d time.Duration) (bool, error) {
	if d <= 0 {
		return s.TryWait()
	}
	if s.sem == nil {
		return false, os.ErrClosed
	}

	// sem_timedwait takes an absolute CLOCK_REALTIME deadline, so retrying
	// after EINTR does not extend the bound.
	deadline := time.Now().Add(d)
	sec := C.longlong(deadline.Unix())
	nsec := C.long(deadline.Nanosecond())
	for {
		r, err := C.semalock_timedwait(s.sem, sec, nsec)
		if r == 0 {
			return true, nil
		}
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ETIMEDOUT):
			return false, nil
		}
		return false, err
	}
}

func (s *posixSemaphore) Signal() error {
	if s.sem == nil {
		return os.ErrClosed
	}
	if r, err := C.sem_post(s.sem); r != 0 {
		return err
	}
	return nil
}

func (s *posixSemaphore) Value() (int, error) {
	if s.sem == nil {
		return 0, os.ErrClosed
	}
	var v C.int
	if r, err := C.sem_getvalue(s.sem, &v); r != 0 {
		return 0, err
	}
	return int(v), nil
}

func (s *posixSemaphore) Close() error {
	if s.sem == nil {
		return nil
	}
	r, err := C.sem_close(s.sem)
	s.sem = nil
	if r != 0 {
		return err
	}
	return nil
}
