//go:build !linux

package semalock

import (
	"os"

	"github.com/juju/errors"
)

const errMarksNotAvailable = errors.ConstError("open file description locks are not available on this platform")

func setMark(f *os.File, off int64, mode markMode) (bool, error) {
	return false, errMarksNotAvailable
}

func markTaken(f *os.File, off int64) (bool, error) {
	return false, errMarksNotAvailable
}
