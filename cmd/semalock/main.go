// Command semalock runs commands under a semalock and inspects lock state.
//
// Usage:
//
//	semalock [--log-config SPEC] <command> [flags] PATH [...]
//
// Commands:
//
//	run       run a command while holding the lock on PATH
//	info      show the canonical target, semaphore name and gate state
//	unlink    remove the semaphore of PATH from the system
//	selftest  spawn N processes contending for PATH and verify exclusion
//	witness   append one interval record to PATH under the lock
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("semalock.cmd")

// command is one subcommand of semalock.
type command struct {
	// name is the word that selects the command.
	name string

	// args is the argument synopsis shown in the usage text.
	args string

	// purpose is the one-line description shown in the usage text.
	purpose string

	// hidden keeps the command out of the usage text.
	hidden bool

	// run parses args and does the work.
	run func(ctx *cmdContext, args []string) error
}

// commands is filled in by init: the run functions refer back to it
// through newFlagSet, which a package-level initializer cannot do.
var commands []*command

func init() {
	commands = []*command{
		{name: "run", args: "[flags] PATH CMD [ARGS...]", purpose: "run CMD while holding the lock on PATH", run: runCmd},
		{name: "info", args: "PATH", purpose: "show the canonical target, semaphore name and gate state", run: infoCmd},
		{name: "unlink", args: "[flags] PATH", purpose: "remove the semaphore of PATH from the system", run: unlinkCmd},
		{name: "selftest", args: "[flags] PATH", purpose: "spawn processes contending for PATH and verify exclusion", run: selftestCmd},
		{name: "witness", args: "[flags] PATH", purpose: "append one interval record to PATH under the lock", hidden: true, run: witnessCmd},
	}
}

// cmdContext carries the streams a command writes to.
type cmdContext struct {
	stdout io.Writer
	stderr io.Writer
}

// exitError ends the program with a specific status, e.g. the status of
// the command run under the lock.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

const errUsage = errors.ConstError("invalid usage")

func main() {
	os.Exit(Main(os.Args[1:], os.Stdout, os.Stderr))
}

// Main runs semalock with args and returns the exit status.
func Main(args []string, stdout, stderr io.Writer) int {
	ctx := &cmdContext{stdout: stdout, stderr: stderr}

	fs := gnuflag.NewFlagSet("semalock", gnuflag.ContinueOnError)
	fs.SetOutput(stderr)
	logConfig := fs.String("log-config", "<root>=WARNING", "logging configuration, e.g. \"semalock=DEBUG\"")
	fs.Usage = func() { ctx.usage(fs) }
	if err := fs.Parse(false, args); err != nil {
		if err == gnuflag.ErrHelp {
			return 0
		}
		return 2
	}

	loggo.ReplaceDefaultWriter(loggo.NewSimpleWriter(stderr, loggo.DefaultFormatter))
	if err := loggo.ConfigureLoggers(*logConfig); err != nil {
		fmt.Fprintf(stderr, "semalock: invalid --log-config: %v\n", err)
		return 2
	}

	if fs.NArg() == 0 {
		ctx.usage(fs)
		return 2
	}
	name := fs.Arg(0)
	for _, c := range commands {
		if c.name == name {
			return ctx.exitCode(c.run(ctx, fs.Args()[1:]))
		}
	}
	fmt.Fprintf(stderr, "semalock: unknown command %q\n", name)
	ctx.usage(fs)
	return 2
}

func (ctx *cmdContext) usage(fs *gnuflag.FlagSet) {
	fmt.Fprintf(ctx.stderr, "Usage: semalock [--log-config SPEC] <command> ...\n\nCommands:\n")
	for _, c := range commands {
		if c.hidden {
			continue
		}
		fmt.Fprintf(ctx.stderr, "  %-9s %s\n  %-9s   %s\n", c.name, c.args, "", c.purpose)
	}
	fmt.Fprintf(ctx.stderr, "\nGlobal flags:\n")
	fs.PrintDefaults()
}

func (ctx *cmdContext) exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exitError
	switch {
	case errors.As(err, &exitErr):
		return exitErr.code
	case errors.Is(err, errUsage):
		fmt.Fprintf(ctx.stderr, "semalock: %v\n", err)
		return 2
	}
	logger.Debugf("%s", errors.ErrorStack(err))
	fmt.Fprintf(ctx.stderr, "semalock: %v\n", err)
	return 1
}

// parseArgs parses a subcommand's flags. gnuflag has already reported a
// bad flag by the time Parse returns, so only the exit status is left.
func parseArgs(fs *gnuflag.FlagSet, allowIntersperse bool, args []string) error {
	err := fs.Parse(allowIntersperse, args)
	switch {
	case err == nil:
		return nil
	case err == gnuflag.ErrHelp:
		return &exitError{code: 0}
	}
	return &exitError{code: 2}
}

// newFlagSet returns the flag set for a subcommand, wired to print the
// subcommand's synopsis on -h.
func (ctx *cmdContext) newFlagSet(name string) *gnuflag.FlagSet {
	fs := gnuflag.NewFlagSet(name, gnuflag.ContinueOnError)
	fs.SetOutput(ctx.stderr)
	fs.Usage = func() {
		for _, c := range commands {
			if c.name == name {
				fmt.Fprintf(ctx.stderr, "Usage: semalock %s %s\n\n%s.\n", c.name, c.args, strings.ToUpper(c.purpose[:1])+c.purpose[1:])
			}
		}
		fs.PrintDefaults()
	}
	return fs
}
