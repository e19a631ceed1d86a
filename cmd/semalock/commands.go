package main

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/gosuri/uitable"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/richinsley/semalock"
)

// lockFlags are the flags shared by every command that takes the lock.
type lockFlags struct {
	timeout    time.Duration
	stale      time.Duration
	contention time.Duration
	keep       bool
}

func (f *lockFlags) set(fs *gnuflag.FlagSet) {
	fs.DurationVar(&f.timeout, "timeout", 0, "give up waiting for the lock after this long (0 waits forever)")
	fs.DurationVar(&f.timeout, "w", 0, "")
	fs.DurationVar(&f.stale, "stale", semalock.DefaultStaleAfter, "check for a dead holder after waiting this long")
	fs.DurationVar(&f.contention, "contention", semalock.DefaultContentionTimeout, "how long the file lock may stay held by a foreign party")
	fs.BoolVar(&f.keep, "keep-semaphore", false, "never unlink the semaphore after releasing")
}

func (f *lockFlags) options() *semalock.Options {
	opts := &semalock.Options{
		Timeout:           f.timeout,
		StaleAfter:        f.stale,
		ContentionTimeout: f.contention,
	}
	if f.keep {
		opts.Cleanup = semalock.NeverUnlink{}
	}
	return opts
}

// runCmd runs a command with the locked file inherited as fd 3, like
// flock(1). The child shares the lock's open file description, so the lock
// stays held until both the child has exited and semalock has released it.
func runCmd(ctx *cmdContext, args []string) error {
	var lf lockFlags
	fs := ctx.newFlagSet("run")
	lf.set(fs)
	// Stop at the first non-flag so CMD keeps its own flags.
	if err := parseArgs(fs, false, args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.Annotate(errUsage, "run needs PATH and CMD")
	}

	lock, err := semalock.New(fs.Arg(0), lf.options())
	if err != nil {
		return errors.Trace(err)
	}
	return lock.With(func(f *os.File) error {
		cmd := exec.Command(fs.Arg(1), fs.Args()[2:]...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = ctx.stdout
		cmd.Stderr = ctx.stderr
		// Extra files start at fd 3, after stdin, stdout and stderr.
		cmd.ExtraFiles = []*os.File{f}
		cmd.Env = append(os.Environ(), "SEMALOCK_FD=3", "SEMALOCK_PATH="+f.Name())

		logger.Debugf("running %v under %s", cmd.Args, f.Name())
		err := cmd.Run()
		if err == nil {
			return nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			if code < 0 {
				// Killed by a signal.
				fmt.Fprintf(ctx.stderr, "semalock: %s: %v\n", fs.Arg(1), exitErr)
				code = 1
			}
			return &exitError{code: code}
		}
		return errors.Annotatef(err, "running %s", fs.Arg(1))
	})
}

func infoCmd(ctx *cmdContext, args []string) error {
	fs := ctx.newFlagSet("info")
	if err := parseArgs(fs, true, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.Annotate(errUsage, "info needs exactly one PATH")
	}

	lock, err := semalock.New(fs.Arg(0), nil)
	if err != nil {
		return errors.Trace(err)
	}
	st, err := lock.Stat()
	if err != nil {
		return errors.Trace(err)
	}

	gate := "absent"
	if st.Exists {
		gate = "held"
		if st.Value > 0 {
			gate = "free"
		}
	}
	table := uitable.New()
	table.MaxColWidth = 80
	table.AddRow("Target", st.Path)
	table.AddRow("Semaphore", st.SemaphoreName)
	table.AddRow("Gate", gate)
	if st.Exists {
		table.AddRow("Value", st.Value)
	}
	fmt.Fprintln(ctx.stdout, table)
	return nil
}

func unlinkCmd(ctx *cmdContext, args []string) error {
	var lf lockFlags
	fs := ctx.newFlagSet("unlink")
	lf.set(fs)
	if err := parseArgs(fs, true, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.Annotate(errUsage, "unlink needs exactly one PATH")
	}

	lock, err := semalock.New(fs.Arg(0), lf.options())
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(lock.Unlink())
}
