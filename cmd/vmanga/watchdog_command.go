package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vmanga/internal/ipc"
)

func newWatchdogCommand(ctx *commandContext) *cobra.Command {
	watchdogCmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Stuck-job watchdog controls",
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reset in-progress jobs that have not changed within the threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.WatchdogSweep()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if resp.Jobs == 0 && len(resp.Failed) == 0 {
					fmt.Fprintln(out, "No stuck jobs")
					return nil
				}
				fmt.Fprintf(out, "Reset %d stuck job(s) across %d spreadsheet(s)\n", resp.Jobs, resp.Files)
				if len(resp.Failed) > 0 {
					fmt.Fprintf(out, "Failed to reset: %s\n", strings.Join(resp.Failed, ", "))
				}
				return nil
			})
		},
	}

	watchdogCmd.AddCommand(sweepCmd)
	return watchdogCmd
}
