//go:build !unix

package semalock

import (
	"os"

	"github.com/juju/errors"
)

const errFlockNotAvailable = errors.ConstError("flock is not available on this platform")

func tryFlock(f *os.File) (bool, error) {
	return false, errFlockNotAvailable
}

func flock(f *os.File) error {
	return errFlockNotAvailable
}

func funlock(f *os.File) error {
	return errFlockNotAvailable
}
