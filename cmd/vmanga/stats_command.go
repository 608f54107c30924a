package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vmanga/internal/ipc"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var (
		days       int
		clearStats bool
		day        string
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show completed job totals and recent history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if day != "" && !clearStats {
				return errors.New("--day requires --clear")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if clearStats {
					removed, err := client.StatsClear(day)
					if err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, ipc.StatsClearResponse{Removed: removed})
					}
					scope := "all days"
					if day != "" {
						scope = day
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d completion(s) for %s\n", removed, scope)
					return nil
				}
				resp, err := client.Stats(days)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Completed (all time): %d\n", resp.Total)
				rows := make([][]string, 0, len(resp.History))
				for _, day := range resp.History {
					rows = append(rows, []string{day.Day, fmt.Sprintf("%d", day.Count)})
				}
				fmt.Fprint(out, renderTable([]column{{header: "Day"}, {header: "Completed", align: alignRight}}, rows))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "Number of days of history")
	cmd.Flags().BoolVar(&clearStats, "clear", false, "Delete recorded completions instead of showing them")
	cmd.Flags().StringVar(&day, "day", "", "With --clear, delete only this day (YYYY-MM-DD)")
	return cmd
}
