package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/maauso/whisper-timestamps/internal/pipeline"
	"github.com/maauso/whisper-timestamps/internal/tagger"
	"github.com/maauso/whisper-timestamps/internal/transcript"
)

type renderFlags struct {
	sourceURL string
	group     string
}

func newRenderCommand() *cobra.Command {
	var flags renderFlags

	cmd := &cobra.Command{
		Use:         "render <transcription.json>",
		Short:       "Print timestamp tags for a saved transcription",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipConfigLoad: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read transcription: %w", err)
			}

			result, err := transcript.Parse(data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			if flags.sourceURL != "" {
				if err := tagger.CheckSourceURL(flags.sourceURL); err != nil {
					slog.Warn("source URL looks malformed", slog.String("error", err.Error()))
				}
			}

			group, err := pipeline.Render(result, flags.sourceURL).Lookup(flags.group)
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(group.Markdown)
			return err
		},
	}

	cmd.Flags().StringVar(&flags.sourceURL, "source-url", "", "URL timestamps link to; local anchors when empty")
	cmd.Flags().StringVar(&flags.group, "group", pipeline.GroupAll, "Segments to render: all, speech or no_speech")

	return cmd
}
