//go:build unix

package semalock

import (
	"bufio"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"golang.org/x/sync/errgroup"

	"github.com/richinsley/semalock/witness"
)

func TestProcessesNeverOverlap(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns processes")
	}
	c := qt.New(t)
	lock := newTestLock(c, nil)

	const n = 20
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			out, err := helperCommand("witness", lock.Path()).CombinedOutput()
			if err != nil {
				c.Logf("helper %d: %s", i, out)
			}
			return err
		})
	}
	c.Assert(g.Wait(), qt.IsNil)

	ivs, err := Do(lock, func(f *os.File) ([]witness.Interval, error) {
		return witness.ReadAll(f)
	})
	c.Assert(err, qt.IsNil)
	c.Assert(witness.Verify(ivs, n), qt.IsNil)
	c.Assert(witness.Summarize(ivs).Processes, qt.Equals, n)
}

func TestRecoverFromKilledHolder(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns processes")
	}
	c := qt.New(t)
	lock := newTestLock(c, &Options{
		StaleAfter: 100 * time.Millisecond,
		Timeout:    5 * time.Second,
	})

	cmd := helperCommand("hold", lock.Path())
	stdout, err := cmd.StdoutPipe()
	c.Assert(err, qt.IsNil)
	c.Assert(cmd.Start(), qt.IsNil)
	line, err := bufio.NewReader(stdout).ReadString('\n')
	c.Assert(err, qt.IsNil)
	c.Assert(strings.TrimSpace(line), qt.Equals, "held")

	c.Assert(cmd.Process.Signal(syscall.SIGKILL), qt.IsNil)
	err = cmd.Wait()
	c.Assert(err, qt.Not(qt.IsNil))

	// The holder died with the gate closed.
	st, err := lock.Stat()
	c.Assert(err, qt.IsNil)
	c.Assert(st.Exists, qt.IsTrue)
	c.Assert(st.Value, qt.Equals, 0)

	start := time.Now()
	h, err := lock.Acquire()
	c.Assert(err, qt.IsNil)
	elapsed := time.Since(start)
	c.Assert(h.Recovered(), qt.IsTrue)
	c.Assert(elapsed < 2*time.Second, qt.IsTrue, qt.Commentf("recovery took %v", elapsed))
	c.Assert(h.Release(), qt.IsNil)

	assertAcquiresQuickly(c, lock)
}
