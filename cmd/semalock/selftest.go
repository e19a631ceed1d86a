package main

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/gosuri/uitable"
	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"

	"github.com/richinsley/semalock"
	"github.com/richinsley/semalock/witness"
)

// selftestCmd starts n copies of this executable in witness mode against
// the same target and then checks the journal they left behind.
func selftestCmd(ctx *cmdContext, args []string) error {
	var (
		lf   lockFlags
		n    int
		hold time.Duration
	)
	fs := ctx.newFlagSet("selftest")
	lf.set(fs)
	fs.IntVar(&n, "n", 50, "number of contending processes")
	fs.DurationVar(&hold, "hold", 2*time.Millisecond, "how long each process holds the lock")
	if err := parseArgs(fs, true, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.Annotate(errUsage, "selftest needs exactly one PATH")
	}
	if n < 1 {
		return errors.Annotate(errUsage, "-n must be at least 1")
	}

	lock, err := semalock.New(fs.Arg(0), lf.options())
	if err != nil {
		return errors.Trace(err)
	}
	// Start from an empty journal.
	if err := lock.With(func(f *os.File) error { return f.Truncate(0) }); err != nil {
		return errors.Annotate(err, "truncating journal")
	}

	self, err := os.Executable()
	if err != nil {
		return errors.Annotate(err, "locating semalock executable")
	}
	witnessArgs := []string{"witness",
		"--hold", hold.String(),
		"--timeout", lf.timeout.String(),
		"--stale", lf.stale.String(),
		"--contention", lf.contention.String(),
	}
	if lf.keep {
		witnessArgs = append(witnessArgs, "--keep-semaphore")
	}
	witnessArgs = append(witnessArgs, lock.Path())

	started := time.Now()
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			out, err := exec.Command(self, witnessArgs...).CombinedOutput()
			if err != nil {
				return errors.Annotatef(err, "witness %d: %s", i, out)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Trace(err)
	}
	elapsed := time.Since(started)

	ivs, err := semalock.Do(lock, func(f *os.File) ([]witness.Interval, error) {
		return witness.ReadAll(f)
	})
	if err != nil {
		return errors.Annotate(err, "reading journal")
	}
	verifyErr := witness.Verify(ivs, n)

	sum := witness.Summarize(ivs)
	table := uitable.New()
	table.AddRow("Processes", sum.Processes)
	table.AddRow("Intervals", sum.Intervals)
	table.AddRow("Recovered", sum.Recovered)
	table.AddRow("Mean hold", sum.MeanHold)
	table.AddRow("Max hold", sum.MaxHold)
	table.AddRow("Span", sum.Span)
	table.AddRow("Wall time", elapsed.Round(time.Millisecond))
	result := "ok"
	if verifyErr != nil {
		result = "FAILED"
	}
	table.AddRow("Result", result)
	fmt.Fprintln(ctx.stdout, table)

	return errors.Trace(verifyErr)
}

// witnessCmd holds the lock for --hold and appends the interval to the
// target.
func witnessCmd(ctx *cmdContext, args []string) error {
	var (
		lf   lockFlags
		hold time.Duration
	)
	fs := ctx.newFlagSet("witness")
	lf.set(fs)
	fs.DurationVar(&hold, "hold", 0, "how long to hold the lock")
	if err := parseArgs(fs, true, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.Annotate(errUsage, "witness needs exactly one PATH")
	}

	lock, err := semalock.New(fs.Arg(0), lf.options())
	if err != nil {
		return errors.Trace(err)
	}
	err = lock.WithHandle(func(h *semalock.Handle) error {
		iv := witness.Hold(hold)
		iv.Recovered = h.Recovered()
		return errors.Annotate(witness.Append(h.File(), iv), "appending interval")
	})
	return errors.Trace(err)
}
