package main

import (
	"context"
	"fmt"
	"os"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/forest-guardian/sundarbans-extraction/internal/delivery"
	"github.com/forest-guardian/sundarbans-extraction/internal/earthengine"
	"github.com/forest-guardian/sundarbans-extraction/internal/logging"
	"github.com/forest-guardian/sundarbans-extraction/internal/notification"
	"github.com/forest-guardian/sundarbans-extraction/internal/properties"
	"github.com/forest-guardian/sundarbans-extraction/internal/region"
	"github.com/forest-guardian/sundarbans-extraction/internal/vector"
)

var (
	cfg *properties.Config

	configPath string
	logLevel   string
	logFormat  string
	noBanner   bool
)

var rootCmd = &cobra.Command{
	Use:   "sundarbans",
	Short: "Extract environmental time series for the Sundarbans from Earth Engine",
	Long: `Extract 16-day composite time series of vegetation, climate and ocean
variables over the Sundarbans and write them as CSV tables.

Settings come from config.yaml (or SUNDARBANS_CONFIG), .env and
SUNDARBANS_* environment variables, in that order of precedence,
and can be overridden with flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := properties.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		logCfg := logging.DefaultConfig()
		logCfg.Level = cfg.Logging.Level
		logCfg.Format = cfg.Logging.Format
		if logLevel != "" {
			logCfg.Level = logLevel
		}
		if logFormat != "" {
			logCfg.Format = logFormat
		}
		logging.Init(logCfg)

		if !noBanner {
			printBanner()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json")
	rootCmd.PersistentFlags().BoolVar(&noBanner, "no-banner", false, "do not print the banner")

	rootCmd.AddCommand(extractCmd, runCmd, datasetsCmd, windowsCmd)
}

func printBanner() {
	banner := figure.NewFigure("Sundarbans", "small", true)
	bannercolor.Green(banner.String())
	fmt.Println()
}

// runFlags are the run settings every extraction command can override.
type runFlags struct {
	start, end     string
	windowDays     int
	excludeTail    bool
	concurrency    int
	region         string
	regionFile     string
	regionProperty string
	regionValue    string
	outputDir      string
	layout         string
	charts         bool
	cache          bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.start, "start", "", "first date, YYYY-MM-DD")
	fs.StringVar(&f.end, "end", "", "last date, YYYY-MM-DD")
	fs.IntVar(&f.windowDays, "window-days", 0, "window length in days")
	fs.BoolVar(&f.excludeTail, "exclude-tail", false, "drop the window starting exactly on the end date")
	fs.IntVar(&f.concurrency, "concurrency", 0, "window reductions in flight per dataset")
	fs.StringVar(&f.region, "region", "", `region as "lon,lat", "minLon,minLat,maxLon,maxLat" or GeoJSON`)
	fs.StringVar(&f.regionFile, "region-file", "", "vector file holding the region")
	fs.StringVar(&f.regionProperty, "region-property", "", "feature property to match in the region file")
	fs.StringVar(&f.regionValue, "region-value", "", "feature property value to match in the region file")
	fs.StringVarP(&f.outputDir, "output-dir", "o", "", "directory for the CSV tables")
	fs.StringVar(&f.layout, "layout", "", "table layout: wide or long")
	fs.BoolVar(&f.charts, "charts", false, "also draw a PNG chart per column")
	fs.BoolVar(&f.cache, "cache", false, "cache window reductions on disk")
}

// apply copies the flags the user set onto the loaded configuration.
func (f *runFlags) apply(cmd *cobra.Command, c *properties.Config) error {
	fs := cmd.Flags()
	if fs.Changed("start") {
		c.Run.StartDate = f.start
	}
	if fs.Changed("end") {
		c.Run.EndDate = f.end
	}
	if fs.Changed("window-days") {
		c.Run.WindowDays = f.windowDays
	}
	if fs.Changed("exclude-tail") {
		c.Run.ExcludeTail = f.excludeTail
	}
	if fs.Changed("concurrency") {
		c.Run.Concurrency = f.concurrency
	}
	if fs.Changed("region") {
		c.Run.Region = f.region
	}
	if fs.Changed("region-file") {
		c.Run.RegionFile = f.regionFile
	}
	if fs.Changed("region-property") {
		c.Run.RegionProperty = f.regionProperty
	}
	if fs.Changed("region-value") {
		c.Run.RegionValue = f.regionValue
	}
	if fs.Changed("output-dir") {
		c.Run.OutputDir = f.outputDir
	}
	if fs.Changed("layout") {
		c.Run.Layout = f.layout
	}
	if fs.Changed("charts") {
		c.Run.Charts = f.charts
	}
	if fs.Changed("cache") {
		c.Cache.Enabled = f.cache
	}
	return c.Validate()
}

// resolveRegion returns the configured region, or nil for the default.
func resolveRegion(c *properties.Config) (orb.Geometry, error) {
	switch {
	case c.Run.RegionFile != "":
		return vector.LoadRegion(c.Path(c.Run.RegionFile), c.Run.RegionProperty, c.Run.RegionValue)
	case c.Run.Region != "":
		return region.Parse(c.Run.Region)
	default:
		return nil, nil
	}
}

// newRunner wires the Earth Engine client, notifier and options.
func newRunner(ctx context.Context, c *properties.Config) (*delivery.Runner, error) {
	reg, err := resolveRegion(c)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve region: %w", err)
	}

	opts, err := delivery.OptionsFromConfig(c, reg)
	if err != nil {
		return nil, err
	}
	opts.Progress = os.Stderr

	client, err := earthengine.NewClient(ctx, earthengine.Config{
		BaseURL:         c.EarthEngine.BaseURL,
		Project:         c.EarthEngine.Project,
		CredentialsFile: c.EarthEngine.CredentialsFile,
		TokenURL:        c.EarthEngine.TokenURL,
		ClientID:        c.EarthEngine.ClientID,
		ClientSecret:    c.EarthEngine.ClientSecret,
		Timeout:         c.EarthEngine.Timeout,
	}, logging.Logger())
	if err != nil {
		return nil, err
	}

	notifier := &notification.Discord{
		SuccessURL: c.Discord.SuccessURL,
		WarnURL:    c.Discord.WarnURL,
		ErrorURL:   c.Discord.ErrorURL,
	}

	return delivery.NewRunner(client, opts, notifier, logging.Logger()), nil
}
