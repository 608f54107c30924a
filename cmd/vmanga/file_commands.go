package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vmanga/internal/ipc"
)

func newFileCommands(ctx *commandContext) []*cobra.Command {
	openCmd := &cobra.Command{
		Use:   "open <xlsx>",
		Short: "Start tracking a spreadsheet and make it active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sheetArg(args, 0)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.FileOpen(path)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.File)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Opened %s (%s)\n", resp.File.DisplayName, summaryLine(resp.File.Summary))
				return nil
			})
		},
	}

	closeCmd := &cobra.Command{
		Use:   "close <xlsx>",
		Short: "Stop tracking a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sheetArg(args, 0)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.FileClose(path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Closed %s\n", path)
				return nil
			})
		},
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tracked spreadsheets",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.FileList()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				writeFileList(cmd.OutOrStdout(), *resp)
				return nil
			})
		},
	}

	showCmd := &cobra.Command{
		Use:   "show [xlsx]",
		Short: "Show the jobs of a spreadsheet (default: active)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sheetArg(args, 0)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.FileShow(path)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.File)
				}
				out := cmd.OutOrStdout()
				writeFileSnapshot(out, resp.File, shouldColorize(out))
				return nil
			})
		},
	}

	activateCmd := &cobra.Command{
		Use:   "activate <xlsx>",
		Short: "Select the active spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sheetArg(args, 0)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.FileActivate(path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Active spreadsheet: %s\n", path)
				return nil
			})
		},
	}

	rescanCmd := &cobra.Command{
		Use:   "rescan [xlsx]",
		Short: "Re-read a spreadsheet and its result folder (default: active)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sheetArg(args, 0)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.FileRescan(path); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Rescan requested")
				return nil
			})
		},
	}

	return []*cobra.Command{openCmd, closeCmd, listCmd, showCmd, activateCmd, rescanCmd}
}

func requireArg(args []string, idx int, name string) (string, error) {
	if idx >= len(args) || args[idx] == "" {
		return "", errors.New(name + " is required")
	}
	return args[idx], nil
}
