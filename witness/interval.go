package witness

import (
	"os"
	"time"
)

// Interval is one stay inside a critical section.
type Interval struct {
	// PID is the process that held the lock.
	PID int `msgpack:"pid"`

	// Start and End are wall clock times in Unix nanoseconds.
	Start int64 `msgpack:"start"`
	End   int64 `msgpack:"end"`

	// Recovered marks a holder that took the lock over from a dead one.
	Recovered bool `msgpack:"recovered,omitempty"`
}

// Duration is how long the lock was held.
func (iv Interval) Duration() time.Duration {
	return time.Duration(iv.End - iv.Start)
}

// Hold sleeps for d and returns the Interval it spent doing so.
func Hold(d time.Duration) Interval {
	iv := Interval{PID: os.Getpid(), Start: time.Now().UnixNano()}
	if d > 0 {
		time.Sleep(d)
	}
	iv.End = time.Now().UnixNano()
	return iv
}

// Record holds for d and appends the resulting Interval to f. f must be
// locked by the caller.
func Record(f *os.File, d time.Duration) (Interval, error) {
	iv := Hold(d)
	return iv, Append(f, iv)
}
