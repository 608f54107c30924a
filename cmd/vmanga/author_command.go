package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vmanga/internal/authoring"
	"vmanga/internal/config"
	"vmanga/internal/ipc"
)

type authorOptions struct {
	scenes     string
	characters string
	name       string
	mode       string
	out        string
	overwrite  bool
	open       bool
}

func newAuthorCommand(ctx *commandContext) *cobra.Command {
	var opts authorOptions
	cmd := &cobra.Command{
		Use:   "author",
		Short: "Build a job spreadsheet from a scene list and character images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, count, err := runAuthor(cmd, ctx, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %d job(s) to %s\n", count, path)
			if !opts.open {
				return nil
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.FileOpen(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Opened %s\n", resp.File.DisplayName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.scenes, "scenes", "", "Scene workbook with stt, Description and Characters columns")
	cmd.Flags().StringVar(&opts.characters, "characters", "", "Folder of character reference images")
	cmd.Flags().StringVar(&opts.name, "name", "", "Result name prefix (default: output file name)")
	cmd.Flags().StringVar(&opts.mode, "mode", string(authoring.ModeImage), "Job mode: image or video")
	cmd.Flags().StringVar(&opts.out, "out", "", "Output spreadsheet path")
	cmd.Flags().BoolVar(&opts.overwrite, "overwrite", false, "Replace an existing output spreadsheet")
	cmd.Flags().BoolVar(&opts.open, "open", false, "Open the new spreadsheet in the daemon")
	_ = cmd.MarkFlagRequired("scenes")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runAuthor(cmd *cobra.Command, ctx *commandContext, opts authorOptions) (string, int, error) {
	mode, err := authoring.ParseMode(opts.mode)
	if err != nil {
		return "", 0, err
	}
	scenesPath, err := config.ExpandPath(strings.TrimSpace(opts.scenes))
	if err != nil {
		return "", 0, err
	}
	outPath, err := config.ExpandPath(strings.TrimSpace(opts.out))
	if err != nil {
		return "", 0, err
	}
	if !strings.EqualFold(filepath.Ext(outPath), ".xlsx") {
		outPath += ".xlsx"
	}
	if !opts.overwrite {
		if _, err := os.Stat(outPath); err == nil {
			return "", 0, fmt.Errorf("%s already exists (use --overwrite to replace it)", outPath)
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("check output path: %w", err)
		}
	}

	scenes, err := authoring.LoadScenes(scenesPath)
	if err != nil {
		return "", 0, err
	}
	var characterFiles []string
	if dir := strings.TrimSpace(opts.characters); dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return "", 0, err
		}
		if characterFiles, err = authoring.LoadCharacters(expanded); err != nil {
			return "", 0, err
		}
	}

	name := strings.TrimSpace(opts.name)
	if name == "" {
		name = filepath.Base(outPath)
	}
	list, err := authoring.Build(scenes, characterFiles, authoring.Options{BaseName: name, Mode: mode})
	if err != nil {
		return "", 0, err
	}

	lockDir := ""
	if cfg := ctx.configValue(); cfg != nil {
		lockDir = cfg.SheetLockDir()
	}
	if err := authoring.Write(cmd.Context(), lockDir, outPath, list); err != nil {
		return "", 0, err
	}
	return outPath, len(list), nil
}
