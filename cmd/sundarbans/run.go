package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	runCmdFlags runFlags
	workers     int
)

var runCmd = &cobra.Command{
	Use:   "run [dataset...]",
	Short: "Extract every configured dataset, or the named ones",
	Example: `  sundarbans run
  sundarbans run ndvi precipitation --workers 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("workers") {
			cfg.Run.Workers = workers
		}
		if err := runCmdFlags.apply(cmd, cfg); err != nil {
			return err
		}

		datasets, err := cfg.Select(args...)
		if err != nil {
			return err
		}

		runner, err := newRunner(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		results, runErr := runner.Run(cmd.Context(), datasets)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATASET\tROWS\tNA\tSTATUS\tPATH")
		for _, res := range results {
			status := "ok"
			if res.Err != nil {
				status = "empty: " + res.Err.Error()
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", res.Name, res.Rows, res.Unavailable, status, res.Path)
		}
		w.Flush()

		return runErr
	},
}

func init() {
	runCmdFlags.register(runCmd)
	runCmd.Flags().IntVarP(&workers, "workers", "w", 0, "datasets extracted at once")
}
