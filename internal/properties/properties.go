// Package properties loads the extraction settings: defaults, then an
// optional YAML file, then .env and SUNDARBANS_* environment variables.
package properties

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/forest-guardian/sundarbans-extraction/internal/validation"
)

const (
	EnvPrefix         = "SUNDARBANS_"
	ConfigPathEnvVar  = EnvPrefix + "CONFIG"
	DefaultConfigPath = "config.yaml"
)

type Config struct {
	RootPath    string             `koanf:"root_path"`
	Run         RunConfig          `koanf:"run"`
	EarthEngine EarthEngineConfig  `koanf:"earthengine"`
	Logging     LoggingConfig      `koanf:"logging"`
	Cache       CacheConfig        `koanf:"cache"`
	Discord     DiscordConfig      `koanf:"discord"`
	Datasets    map[string]Dataset `koanf:"datasets" validate:"required,dive"`
}

type RunConfig struct {
	StartDate   string `koanf:"start_date" validate:"required,isodate"`
	EndDate     string `koanf:"end_date" validate:"required,isodate"`
	WindowDays  int    `koanf:"window_days" validate:"gt=0"`
	ExcludeTail bool   `koanf:"exclude_tail"`

	// Concurrency bounds the window reductions in flight per dataset.
	Concurrency int `koanf:"concurrency" validate:"gte=1"`

	// Workers bounds the datasets extracted at once.
	Workers int `koanf:"workers" validate:"gte=1"`

	OutputDir string `koanf:"output_dir" validate:"required"`
	Layout    string `koanf:"layout" validate:"oneof=wide long"`
	Charts    bool   `koanf:"charts"`

	// Region is "lon,lat", "minLon,minLat,maxLon,maxLat" or GeoJSON. Empty
	// means the Sundarbans centroid.
	Region string `koanf:"region"`

	// RegionFile is a vector file whose feature replaces Region. With
	// RegionProperty and RegionValue set, the first feature whose property
	// matches is used, otherwise the first feature.
	RegionFile     string `koanf:"region_file"`
	RegionProperty string `koanf:"region_property"`
	RegionValue    string `koanf:"region_value"`
}

type EarthEngineConfig struct {
	BaseURL         string        `koanf:"base_url" validate:"required,url"`
	Project         string        `koanf:"project"`
	CredentialsFile string        `koanf:"credentials_file"`
	TokenURL        string        `koanf:"token_url"`
	ClientID        string        `koanf:"client_id"`
	ClientSecret    string        `koanf:"client_secret"`
	Timeout         time.Duration `koanf:"timeout"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error disabled off"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	Dir     string        `koanf:"dir"`
	MaxAge  time.Duration `koanf:"max_age"`
}

type DiscordConfig struct {
	SuccessURL string `koanf:"success_url" validate:"omitempty,url"`
	WarnURL    string `koanf:"warn_url" validate:"omitempty,url"`
	ErrorURL   string `koanf:"error_url" validate:"omitempty,url"`
}

func defaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			StartDate:   "2000-02-18",
			EndDate:     "2020-07-09",
			WindowDays:  16,
			Concurrency: 1,
			Workers:     1,
			OutputDir:   "data/processed",
			Layout:      "wide",
		},
		EarthEngine: EarthEngineConfig{
			BaseURL: "https://earthengine.googleapis.com",
			Timeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Cache: CacheConfig{
			Dir: "data/cache",
		},
		Datasets: Presets(),
	}
}

// legacyEnv maps variables that other tools already set to config keys.
var legacyEnv = map[string]string{
	"ROOT_PATH":                        "root_path",
	"GOOGLE_APPLICATION_CREDENTIALS":   "earthengine.credentials_file",
	"GOOGLE_CLOUD_PROJECT":             "earthengine.project",
	"DISCORD_SUCCESS_NOTIFICATION_URL": "discord.success_url",
	"DISCORD_WARN_NOTIFICATION_URL":    "discord.warn_url",
	"DISCORD_ERROR_NOTIFICATION_URL":   "discord.error_url",
}

// envTransform maps SUNDARBANS_RUN__START_DATE to run.start_date. Other
// variables are skipped unless listed in legacyEnv.
func envTransform(key string) string {
	if mapped, ok := legacyEnv[key]; ok {
		return mapped
	}
	if !strings.HasPrefix(key, EnvPrefix) || key == ConfigPathEnvVar {
		return ""
	}
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

// Load reads .env if present and builds the configuration. configPath may be
// empty, in which case SUNDARBANS_CONFIG or ./config.yaml is used when it
// exists.
func Load(configPath string) (*Config, error) {
	// A missing .env file is normal.
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	explicit := configPath != ""
	if configPath == "" {
		configPath = os.Getenv(ConfigPathEnvVar)
		explicit = configPath != ""
	}
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	if c.Run.StartDate > c.Run.EndDate {
		return fmt.Errorf("run.start_date %s is after run.end_date %s", c.Run.StartDate, c.Run.EndDate)
	}
	if (c.Run.RegionProperty == "") != (c.Run.RegionValue == "") {
		return fmt.Errorf("run.region_property and run.region_value must be set together")
	}
	return nil
}

// Path resolves p against RootPath when p is relative.
func (c *Config) Path(p string) string {
	if c.RootPath == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.RootPath, p)
}

// DatasetNames returns the configured dataset names in order.
func (c *Config) DatasetNames() []string {
	names := make([]string, 0, len(c.Datasets))
	for name := range c.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the named datasets, or all of them when names is empty.
func (c *Config) Select(names ...string) (map[string]Dataset, error) {
	if len(names) == 0 {
		return c.Datasets, nil
	}
	selected := make(map[string]Dataset, len(names))
	for _, name := range names {
		ds, ok := c.Datasets[name]
		if !ok {
			return nil, fmt.Errorf("unknown dataset %q, available: %s", name, strings.Join(c.DatasetNames(), ", "))
		}
		selected[name] = ds
	}
	return selected, nil
}
