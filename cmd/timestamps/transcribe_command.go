package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maauso/whisper-timestamps/internal/pipeline"
)

// Conflict modes accepted by --on-conflict.
const (
	conflictPrompt    = "prompt"
	conflictOverwrite = "overwrite"
	conflictReuse     = "reuse"
)

type transcribeFlags struct {
	prompt     string
	language   string
	translate  bool
	onConflict string
	pushToS3   bool
	summary    bool
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var flags transcribeFlags

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file | video-url>",
		Short: "Transcribe audio and write timestamp tags",
		Long: `Transcribe a local audio file or a video URL and write:

  jsons/<name>.json        the transcription
  timestamps/<name>.md     one timestamp tag per segment

When some segments are classified as no speech, the speech and no_speech
partitions are written next to them with -speech and -no_speech suffixes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := resolverFor(flags.onConflict, cmd.InOrStdin(), cmd.ErrOrStderr(), isInteractive(cmd.InOrStdin()))
			if err != nil {
				return err
			}

			deps, err := ctx.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			defer deps.Close()

			out, err := deps.Pipeline.Run(cmd.Context(), pipeline.Options{
				Input:     args[0],
				Prompt:    flags.prompt,
				Language:  flags.language,
				Translate: flags.translate,
				PushToS3:  flags.pushToS3,
				Resolver:  resolver,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if flags.summary {
				_, err = fmt.Fprintln(w, summaryTable(out))
				return err
			}
			return printArtifacts(w, out)
		},
	}

	cmd.Flags().StringVarP(&flags.prompt, "prompt", "p", "", "Prompt passed to the transcriber, e.g. names and jargon")
	cmd.Flags().StringVarP(&flags.language, "language", "l", "", "Spoken language as an ISO-639-1 code")
	cmd.Flags().BoolVarP(&flags.translate, "translate", "t", false, "Translate to English")
	cmd.Flags().StringVar(&flags.onConflict, "on-conflict", conflictPrompt, "What to do with existing files: prompt, overwrite or reuse")
	cmd.Flags().BoolVar(&flags.pushToS3, "push-to-s3", false, "Upload written files to S3")
	cmd.Flags().BoolVar(&flags.summary, "summary", false, "Print a summary table instead of file paths")

	return cmd
}

// resolverFor maps --on-conflict to a resolver. Prompting needs someone at
// a terminal; otherwise existing files are reused.
func resolverFor(mode string, in io.Reader, out io.Writer, interactive bool) (pipeline.ConflictResolver, error) {
	if strings.EqualFold(strings.TrimSpace(mode), conflictPrompt) {
		if interactive {
			return pipeline.NewPromptResolver(in, out), nil
		}
		return pipeline.StaticResolver{Decision: pipeline.Reuse}, nil
	}

	decision, err := pipeline.ParseDecision(mode)
	if err != nil {
		return nil, fmt.Errorf("--on-conflict must be %s, %s or %s: %w", conflictPrompt, conflictOverwrite, conflictReuse, err)
	}
	return pipeline.StaticResolver{Decision: decision}, nil
}

func printArtifacts(w io.Writer, out *pipeline.Output) error {
	if out.Reused {
		if _, err := fmt.Fprintf(w, "reused %s\n", out.BaseName); err != nil {
			return err
		}
	}
	for _, a := range out.Artifacts {
		line := a.Path
		if a.URL != "" {
			line += " -> " + a.URL
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func summaryTable(out *pipeline.Output) string {
	source := out.SourceURL
	if source == "" {
		source = "(local anchors)"
	}

	counts := renderTable(
		[]string{"Name", "Source", "Segments", "Speech", "No speech", "Reused"},
		[][]string{{
			out.BaseName,
			source,
			strconv.Itoa(out.Segments),
			strconv.Itoa(out.Speech),
			strconv.Itoa(out.NoSpeech),
			yesNo(out.Reused),
		}},
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)

	rows := make([][]string, 0, len(out.Artifacts))
	for _, a := range out.Artifacts {
		rows = append(rows, []string{a.Group, a.Kind, a.Name, a.URL})
	}
	files := renderTable([]string{"Group", "Kind", "File", "URL"}, rows, nil)

	return counts + "\n" + files
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
