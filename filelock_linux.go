//go:build linux

package semalock

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// setMark places or removes an open file description lock on the single
// byte at off. It reports false if a conflicting lock is held elsewhere.
// OFD locks never interact with flock(2) and go away with the descriptor.
func setMark(f *os.File, off int64, mode markMode) (bool, error) {
	lk := unix.Flock_t{Whence: io.SeekStart, Start: off, Len: 1}
	switch mode {
	case markShared:
		lk.Type = unix.F_RDLCK
	case markExclusive:
		lk.Type = unix.F_WRLCK
	default:
		lk.Type = unix.F_UNLCK
	}
	for {
		err := unix.FcntlFlock(f.Fd(), unix.F_OFD_SETLK, &lk)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EACCES):
			return false, nil
		}
		return false, err
	}
}

// markTaken reports whether another open file description holds any lock
// on the byte at off. Locks held through f itself do not count.
func markTaken(f *os.File, off int64) (bool, error) {
	lk := unix.Flock_t{Type: unix.F_WRLCK, Whence: io.SeekStart, Start: off, Len: 1}
	if err := unix.FcntlFlock(f.Fd(), unix.F_OFD_GETLK, &lk); err != nil {
		return false, err
	}
	return lk.Type != unix.F_UNLCK, nil
}
