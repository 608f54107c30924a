package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vmanga/internal/config"
	"vmanga/internal/ipc"
)

func newJobCommands(ctx *commandContext) []*cobra.Command {
	retryCmd := &cobra.Command{
		Use:   "retry <xlsx> <job-id>",
		Short: "Clear a job's status so it is generated again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sheetArg(args, 0)
			if err != nil {
				return err
			}
			jobID, err := requireArg(args, 1, "job id")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.JobRetry(path, jobID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued for retry\n", jobID)
				return nil
			})
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset <xlsx>",
		Short: "Clear the status of every job that is not completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sheetArg(args, 0)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				n, err := client.JobResetIncomplete(path)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, ipc.JobResetIncompleteResponse{Reset: n})
				}
				if n == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to reset")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d job(s)\n", n)
				return nil
			})
		},
	}

	var deleteResultPath string
	deleteCmd := &cobra.Command{
		Use:   "delete <xlsx> <job-id>",
		Short: "Delete a job's result file and clear its status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sheetArg(args, 0)
			if err != nil {
				return err
			}
			jobID, err := requireArg(args, 1, "job id")
			if err != nil {
				return err
			}
			resultPath := ""
			if deleteResultPath != "" {
				if resultPath, err = config.ExpandPath(deleteResultPath); err != nil {
					return err
				}
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.JobDeleteResult(ipc.JobDeleteResultRequest{Path: path, JobID: jobID, ResultPath: resultPath}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted result of %s and cleared its status\n", jobID)
				return nil
			})
		},
	}
	deleteCmd.Flags().StringVar(&deleteResultPath, "result", "", "Result file to delete (default: the matched result)")

	linkCmd := &cobra.Command{
		Use:   "link <xlsx> <job-id> <file>",
		Short: "Record an existing file as a job's result",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sheetArg(args, 0)
			if err != nil {
				return err
			}
			jobID, err := requireArg(args, 1, "job id")
			if err != nil {
				return err
			}
			file, err := sheetArg(args, 2)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.JobLink(ipc.JobLinkRequest{Path: path, JobID: jobID, File: file}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Linked %s to %s\n", file, jobID)
				return nil
			})
		},
	}

	return []*cobra.Command{retryCmd, resetCmd, deleteCmd, linkCmd}
}
