package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/privanote/internal/app"
	"github.com/MrWong99/privanote/internal/resilience"
)

var providersJSON bool

func newProvidersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List the analysis backends and whether they are reachable",
		Long: `Probe the configured local model servers and list every analysis
backend with its availability and models.

Examples:
  privanote providers
  privanote providers --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				return runProviders(cmd.Context(), a)
			})
		},
	}
	cmd.Flags().BoolVar(&providersJSON, "json", false, "Print the descriptors as JSON")
	return cmd
}

func runProviders(ctx context.Context, a *app.App) error {
	ds := a.Registry().ListAvailable(ctx)
	if providersJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ds)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tAVAILABLE\tMODELS\tNOTE")
	for _, d := range ds {
		id := string(d.ID)
		if d.ID == a.Provider() {
			id += " *"
		}
		note := d.Note
		if d.Circuit != nil && d.Circuit.State != resilience.StateClosed {
			note = strings.TrimSpace(note + " circuit " + d.Circuit.State.String())
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\n", id, d.DisplayName, d.Available, strings.Join(d.Models, ","), note)
	}
	return tw.Flush()
}
