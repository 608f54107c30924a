package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"vmanga/internal/api"
	"vmanga/internal/ipc"
)

func newLicenseCommand(ctx *commandContext) *cobra.Command {
	licenseCmd := &cobra.Command{
		Use:   "license",
		Short: "Device activation",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the machine id and activation state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LicenseStatus()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				writeLicense(cmd.OutOrStdout(), *resp)
				return nil
			})
		},
	}

	activateCmd := &cobra.Command{
		Use:   "activate <key>",
		Short: "Activate this machine with a license key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LicenseActivate(key)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "License activated")
				writeLicense(cmd.OutOrStdout(), *resp)
				return nil
			})
		},
	}

	licenseCmd.AddCommand(statusCmd, activateCmd)
	return licenseCmd
}

func writeLicense(out io.Writer, st api.LicenseStatus) {
	fmt.Fprintf(out, "Machine ID: %s\n", st.MachineID)
	fmt.Fprintf(out, "Required:   %s\n", yesNo(st.Required))
	fmt.Fprintf(out, "Activated:  %s\n", yesNo(st.Activated))
	if st.ActivatedAt != "" {
		fmt.Fprintf(out, "Since:      %s\n", st.ActivatedAt)
	}
}
