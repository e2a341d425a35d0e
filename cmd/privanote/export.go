package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/MrWong99/privanote/internal/app"
	"github.com/MrWong99/privanote/internal/export"
)

var (
	exportFormat string
	exportOutput string
)

func newExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [ID]",
		Short: "Export a stored meeting, or the whole store",
		Long: `Export one meeting as Markdown or JSON, or every meeting as a JSON archive
when no id is given. Requires storage.postgres_dsn; the in-memory store is
empty in a fresh process.

Examples:
  privanote export 0194f1c2-... --format markdown
  privanote export -o backup.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if a.Config().Storage.PostgresDSN == "" {
					return errors.New("export needs a persistent store, set storage.postgres_dsn")
				}
				if len(args) == 0 {
					return runExportAll(cmd.Context(), a)
				}
				return runExport(cmd.Context(), a, args[0])
			})
		},
	}
	cmd.Flags().StringVarP(&exportFormat, "format", "f", "markdown", "Document format for a single meeting: markdown, json")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func runExport(ctx context.Context, a *app.App, id string) error {
	f, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	m, err := a.Store().Get(ctx, id)
	if err != nil {
		return err
	}
	doc, err := export.Render(m, f)
	if err != nil {
		return err
	}
	return writeOutput(exportOutput, doc)
}

func runExportAll(ctx context.Context, a *app.App) error {
	arch, err := a.Store().ExportAll(ctx)
	if err != nil {
		return err
	}
	doc, err := export.ArchiveJSON(arch)
	if err != nil {
		return err
	}
	return writeOutput(exportOutput, doc)
}
