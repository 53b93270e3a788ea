package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var workDirFlag string

	ctx := newCommandContext(&workDirFlag)

	rootCmd := &cobra.Command{
		Use:           "timestamps",
		Short:         "Transcribe talks and render clickable timestamp tags",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&workDirFlag, "work-dir", "w", "", "Directory holding audios/, jsons/ and timestamps/ (overrides WORK_DIR)")

	rootCmd.AddCommand(newTranscribeCommand(ctx))
	rootCmd.AddCommand(newRenderCommand())
	rootCmd.AddCommand(newServeCommand(ctx))

	return rootCmd
}
