package semalock

import (
	"os"
	"time"

	"github.com/juju/clock"
)

const (
	// DefaultStaleAfter is how long a waiter sits on the semaphore before
	// checking whether the holder is still alive.
	DefaultStaleAfter = 10 * time.Second

	// DefaultContentionTimeout bounds the wait for the file lock once the
	// semaphore gate has been passed.
	DefaultContentionTimeout = 10 * time.Second

	// DefaultPerm is used both for the semaphore and for a target file the
	// lock has to create.
	DefaultPerm os.FileMode = 0o644
)

// Options configures a Lock. The zero value of every field means "use the
// default", so a partially filled Options is valid.
type Options struct {
	// Timeout bounds the wait for the semaphore. Zero waits forever.
	Timeout time.Duration

	// StaleAfter is the semaphore wait slice. Every time a slice elapses
	// the waiter tries the file lock; if nobody holds it, the process that
	// last took the semaphore died inside its critical section and the
	// waiter takes over.
	StaleAfter time.Duration

	// ContentionTimeout bounds the wait for the file lock after the
	// semaphore has been taken. A negative value blocks indefinitely.
	ContentionTimeout time.Duration

	// Perm is the permission of a newly created semaphore or target file.
	Perm os.FileMode

	// Cleanup decides whether to unlink the semaphore after a release.
	Cleanup CleanupPolicy

	// Clock drives the contention backoff.
	Clock clock.Clock
}

// DefaultOptions returns the options used when New is given nil.
func DefaultOptions() Options {
	return Options{
		StaleAfter:        DefaultStaleAfter,
		ContentionTimeout: DefaultContentionTimeout,
		Perm:              DefaultPerm,
		Cleanup:           UnlinkWhenIdle{},
		Clock:             clock.WallClock,
	}
}

// withDefaults fills unset fields of opts from DefaultOptions.
func (opts *Options) withDefaults() Options {
	def := DefaultOptions()
	if opts == nil {
		return def
	}
	o := *opts
	if o.Timeout < 0 {
		o.Timeout = 0
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = def.StaleAfter
	}
	switch {
	case o.ContentionTimeout == 0:
		o.ContentionTimeout = def.ContentionTimeout
	case o.ContentionTimeout < 0:
		o.ContentionTimeout = 0
	}
	if o.Perm == 0 {
		o.Perm = def.Perm
	}
	if o.Cleanup == nil {
		o.Cleanup = def.Cleanup
	}
	if o.Clock == nil {
		o.Clock = def.Clock
	}
	return o
}
