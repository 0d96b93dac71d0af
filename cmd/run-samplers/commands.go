package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SindhuVenna/catalyst/internal/runplan"
	"github.com/SindhuVenna/catalyst/internal/supervisor"
)

func newPlanCommand(stdout io.Writer) *cobra.Command {
	opts := &launchOptions{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the resolved run plan without spawning anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, resolved, plan, err := loadLaunch(cmd, opts)
			if err != nil {
				return err
			}
			counts := plan.Summary()
			fmt.Fprintf(stdout, "base seed: %d\n", plan.BaseSeed())
			for _, role := range runplan.Roles() {
				fmt.Fprintf(stdout, "%s: %d\n", role, counts[role])
			}
			if resolved.logDir != "" {
				fmt.Fprintf(stdout, "logdir: %s\n", resolved.logDir)
			}
			for _, spec := range plan.Specs() {
				fmt.Fprintf(stdout, "%-12s id=%d seed=%d mode=%s render=%t\n",
					spec.Name(), spec.ID, spec.Seed, spec.Mode(), spec.Render())
			}
			return nil
		},
	}
	bindLaunchFlags(cmd, opts)
	return cmd
}

func newStatusCommand(stdout io.Writer) *cobra.Command {
	var logDir string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarise the fleet event log of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(logDir) == "" {
				return usageErrorf("status requires --logdir")
			}
			path := supervisor.BuildRunPaths(logDir).EventsPath
			if _, err := os.Stat(path); err != nil {
				return failuref("status failed: no fleet event log at %s", path)
			}
			events, err := supervisor.ReadEvents(path)
			if err != nil {
				return failuref("status failed: %v", err)
			}
			status := supervisor.Summarize(events)
			if asJSON {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(status); err != nil {
					return failuref("status failed: %v", err)
				}
				return nil
			}
			fmt.Fprintf(stdout, "run: %s\n", status.RunID)
			fmt.Fprintf(stdout, "state: %s\n", status.State)
			if status.Stopped {
				fmt.Fprintln(stdout, "stopped: true")
			}
			fmt.Fprintf(stdout, "workers: %d crashed: %d\n", len(status.Workers), status.Crashes)
			for _, w := range status.Workers {
				line := fmt.Sprintf("  %-12s pid=%d state=%s exit=%d", w.Name, w.PID, w.State, w.ExitCode)
				if w.Crashed {
					line += " crashed"
				}
				fmt.Fprintln(stdout, line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logDir, "logdir", "", "log directory of the run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func newVersionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(stdout, "run-samplers %s\n", version)
		},
	}
}
