package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/privanote/internal/app"
	"github.com/MrWong99/privanote/internal/export"
	"github.com/MrWong99/privanote/internal/pipeline"
	"github.com/MrWong99/privanote/pkg/types"
)

// processFlags holds the flags of the process command.
type processFlags struct {
	title    string
	date     string
	notes    string
	provider string
	language string
	format   string
	output   string
	quiet    bool
}

func newProcessCommand() *cobra.Command {
	var f processFlags
	cmd := &cobra.Command{
		Use:   "process FILE",
		Short: "Transcribe and analyze one recording",
		Long: `Transcribe and analyze one recording and print the report.

Supported inputs are wav, mp3, m4a, flac, ogg, webm and mp4. The meeting is
saved to the configured store.

Examples:
  # Markdown report on stdout
  privanote process standup.m4a --title "Daily standup"

  # Analyze with the local Ollama server and write JSON to a file
  privanote process review.wav --provider ollama --format json -o review.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				return runProcess(cmd.Context(), a, args[0], f)
			})
		},
	}
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "Meeting title (default: file name)")
	cmd.Flags().StringVar(&f.date, "date", "", "Meeting date, e.g. 2026-03-02")
	cmd.Flags().StringVar(&f.notes, "notes", "", "Free-form notes stored with the meeting")
	cmd.Flags().StringVarP(&f.provider, "provider", "p", "", "Analysis backend: openai, ollama, lmstudio, fallback")
	cmd.Flags().StringVarP(&f.language, "language", "l", "", "ISO 639-1 language hint, or auto")
	cmd.Flags().StringVarP(&f.format, "format", "f", "markdown", "Report format: markdown, json")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Do not print progress")
	return cmd
}

func runProcess(ctx context.Context, a *app.App, path string, f processFlags) error {
	format, err := export.ParseFormat(f.format)
	if err != nil {
		return err
	}
	var provider types.ProviderID
	if f.provider != "" {
		if provider, err = types.ParseProviderID(f.provider); err != nil {
			return err
		}
	}
	title := f.title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	req := pipeline.Request{
		Path:     path,
		Title:    title,
		Date:     f.date,
		Notes:    f.notes,
		Provider: provider,
		Language: f.language,
		Source:   types.SourceUploaded,
	}
	if !f.quiet {
		req.Progress = func(stage pipeline.Stage, percent int, message string) {
			fmt.Fprintf(os.Stderr, "[%3d%%] %-10s %s\n", percent, stage, message)
		}
	}

	m, err := a.Process(ctx, req)
	if err != nil {
		return err
	}
	if w := m.Analysis.Warning; w != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	doc, err := export.Render(m, format)
	if err != nil {
		return err
	}
	return writeOutput(f.output, doc)
}

// writeOutput writes doc to path, or to stdout when path is empty.
func writeOutput(path, doc string) error {
	if path == "" {
		_, err := fmt.Fprint(os.Stdout, doc)
		return err
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	return nil
}
