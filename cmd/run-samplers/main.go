package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const version = "dev"

// exitError carries the process exit code out of a cobra command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func failuref(format string, args ...any) error {
	return &exitError{code: 1, err: fmt.Errorf(format, args...)}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintln(stderr, exitErr.err)
		}
		return exitErr.code
	}
	// cobra's own errors: unknown command, bad flag, missing required flag
	fmt.Fprintln(stderr, err)
	return 2
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &launchOptions{}
	root := &cobra.Command{
		Use:   "run-samplers",
		Short: "Launch and supervise a fleet of sampler processes",
		Long: "run-samplers resolves a run plan from role counts, launches one process per\n" +
			"sampler (optionally after a check worker passes), and keeps every worker\n" +
			"tied to the launcher's lifetime.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageErrorf("unexpected argument: %s", args[0])
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLaunch(cmd, opts, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: 2, err: err}
	})
	bindLaunchFlags(root, opts)

	root.AddCommand(
		newWorkerCommand(stdout, stderr),
		newPlanCommand(stdout),
		newStatusCommand(stdout),
		newVersionCommand(stdout),
	)
	return root
}
