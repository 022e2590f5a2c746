package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List the configured datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCOLLECTION\tBAND\tSCALE (m)\tOUTPUT")
		for _, name := range cfg.DatasetNames() {
			ds := cfg.Datasets[name]
			band := ds.Band
			if band == "" {
				band = "(all)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%s\n", name, ds.Collection, band, ds.Scale, ds.Output)
		}
		return w.Flush()
	},
}
