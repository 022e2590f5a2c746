package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest-guardian/sundarbans-extraction/internal/extraction"
)

var windowsFlags runFlags

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "Print the window plan of the configured date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := windowsFlags.apply(cmd, cfg); err != nil {
			return err
		}

		rng, err := extraction.ParseDateRange(cfg.Run.StartDate, cfg.Run.EndDate)
		if err != nil {
			return err
		}

		windows := rng.Windows(cfg.Run.WindowDays, cfg.Run.ExcludeTail)
		for i, w := range windows {
			fmt.Printf("%4d  %s  %s\n", i+1, w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly))
		}
		fmt.Printf("%d windows of %d days over %s\n", len(windows), cfg.Run.WindowDays, rng)
		return nil
	},
}

func init() {
	windowsFlags.register(windowsCmd)
}
