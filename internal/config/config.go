package config

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths"`
	IMD        IMDConfig        `yaml:"imd" mapstructure:"imd"`
	LFR        LFRConfig        `yaml:"lfr" mapstructure:"lfr"`
	StopSearch StopSearchConfig `yaml:"stop_search" mapstructure:"stop_search"`
	LSOA       LSOAConfig       `yaml:"lsoa" mapstructure:"lsoa"`
	Stats      StatsConfig      `yaml:"stats" mapstructure:"stats"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// PathsConfig holds the stage boundary files. Every stage reads and writes
// through these paths; nothing is derived from the working directory.
type PathsConfig struct {
	IMDOut        string `yaml:"imd_out" mapstructure:"imd_out"`
	LFROut        string `yaml:"lfr_out" mapstructure:"lfr_out"`
	LFRCSVOut     string `yaml:"lfr_csv_out" mapstructure:"lfr_csv_out"`
	StopSearchOut string `yaml:"stop_search_out" mapstructure:"stop_search_out"`
	CombinedOut   string `yaml:"combined_out" mapstructure:"combined_out"`
	CombinedCSV   string `yaml:"combined_csv" mapstructure:"combined_csv"`
	SummaryOut    string `yaml:"summary_out" mapstructure:"summary_out"`
}

// IMDConfig configures the deprivation index loader.
type IMDConfig struct {
	Path      string       `yaml:"path" mapstructure:"path"`
	Sheet     string       `yaml:"sheet" mapstructure:"sheet"`
	Rename    []RenameRule `yaml:"rename" mapstructure:"rename"`
	KeyColumn string       `yaml:"key_column" mapstructure:"key_column"`
	DecileCol string       `yaml:"decile_column" mapstructure:"decile_column"`
}

// RenameRule renames one spreadsheet column. Kept as a list rather than a map
// because viper lowercases map keys read from files.
type RenameRule struct {
	From string `yaml:"from" mapstructure:"from"`
	To   string `yaml:"to" mapstructure:"to"`
}

// LFRConfig configures PDF extraction and geocoding of LFR deployments.
type LFRConfig struct {
	PDFPath       string         `yaml:"pdf_path" mapstructure:"pdf_path"`
	HeaderRows    int            `yaml:"header_rows" mapstructure:"header_rows"`
	OverridesPath string         `yaml:"overrides_path" mapstructure:"overrides_path"`
	Geocoder      GeocoderConfig `yaml:"geocoder" mapstructure:"geocoder"`
}

// GeocoderConfig configures the outbound geocoding lookups.
type GeocoderConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	QuerySuffix  string  `yaml:"query_suffix" mapstructure:"query_suffix"`
	CountryCodes string  `yaml:"country_codes" mapstructure:"country_codes"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	GoogleKey    string  `yaml:"google_api_key" mapstructure:"google_api_key"`

	// A provider failing BreakerThreshold times in a row is skipped for
	// BreakerCooldownSecs. Zero disables the breaker.
	BreakerThreshold    int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// StopSearchConfig configures the monthly stop-and-search CSV loader.
type StopSearchConfig struct {
	Dirs    map[string]string `yaml:"dirs" mapstructure:"dirs"`
	Pattern string            `yaml:"pattern" mapstructure:"pattern"`
	Years   []int             `yaml:"years" mapstructure:"years"`
}

// LSOAConfig configures the boundary polygon source.
type LSOAConfig struct {
	ZipPath    string `yaml:"zip_path" mapstructure:"zip_path"`
	Member     string `yaml:"member" mapstructure:"member"`
	Projection string `yaml:"projection" mapstructure:"projection"`
	TempDir    string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// StatsConfig configures the summary statistics stage.
type StatsConfig struct {
	Quantiles    []float64 `yaml:"quantiles" mapstructure:"quantiles"`
	BaselineYear int       `yaml:"baseline_year" mapstructure:"baseline_year"`
	CompareYear  int       `yaml:"compare_year" mapstructure:"compare_year"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. An empty path searches
// for config.yaml in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("LSOA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("paths.imd_out", "data/processed/imd_2019.csv")
	v.SetDefault("paths.lfr_out", "data/processed/lfr_deployments.gpkg")
	v.SetDefault("paths.lfr_csv_out", "data/processed/lfr_deployments.csv")
	v.SetDefault("paths.stop_search_out", "data/processed/stop_search_{year}.gpkg")
	v.SetDefault("paths.combined_out", "data/processed/combined_counts.gpkg")
	v.SetDefault("paths.combined_csv", "data/processed/combined_counts.csv")
	v.SetDefault("paths.summary_out", "outputs/tables/summary_stats.csv")
	v.SetDefault("imd.path", "data/raw/File_1_-_IMD2019_Index_of_Multiple_Deprivation.xlsx")
	v.SetDefault("imd.sheet", "IMD2019")
	v.SetDefault("imd.rename", []map[string]any{{"from": "LSOA code (2011)", "to": "LSOA11CD"}})
	v.SetDefault("imd.key_column", "LSOA11CD")
	v.SetDefault("imd.decile_column", "Index of Multiple Deprivation (IMD) Decile")
	v.SetDefault("lfr.pdf_path", "data/raw/live-facial-recognition---deployment-record-2025-to-date.pdf")
	v.SetDefault("lfr.header_rows", 2)
	v.SetDefault("lfr.geocoder.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("lfr.geocoder.user_agent", "lfr_deployment")
	v.SetDefault("lfr.geocoder.query_suffix", ", London, UK")
	v.SetDefault("lfr.geocoder.country_codes", "gb")
	v.SetDefault("lfr.geocoder.rate_limit", 1.0)
	v.SetDefault("lfr.geocoder.timeout_secs", 10)
	v.SetDefault("lfr.geocoder.google_api_key", "")
	v.SetDefault("lfr.geocoder.breaker_threshold", 5)
	v.SetDefault("lfr.geocoder.breaker_cooldown_secs", 60)
	v.SetDefault("lfr.overrides_path", "")
	v.SetDefault("stop_search.pattern", "{year}-*-metropolitan-stop-and-search.csv")
	v.SetDefault("stop_search.years", []int{2023, 2025})
	v.SetDefault("stop_search.dirs", map[string]any{
		"2023": "data/raw/stop_search_jan_nov_2023",
		"2025": "data/raw",
	})
	v.SetDefault("lsoa.zip_path", "data/raw/statistical-gis-boundaries-london.zip")
	v.SetDefault("lsoa.member", "statistical-gis-boundaries-london/ESRI/LSOA_2011_London_gen_MHW.shp")
	v.SetDefault("lsoa.projection", "epsg:27700")
	v.SetDefault("lsoa.temp_dir", "")
	v.SetDefault("stats.quantiles", []float64{0.9, 0.8})
	v.SetDefault("stats.baseline_year", 2023)
	v.SetDefault("stats.compare_year", 2025)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings every stage relies on.
func (c *Config) Validate() error {
	if c.IMD.KeyColumn == "" {
		return eris.New("config: imd.key_column is required")
	}
	if c.LFR.HeaderRows < 0 {
		return eris.Errorf("config: lfr.header_rows must be >= 0, got %d", c.LFR.HeaderRows)
	}
	if c.LFR.Geocoder.RateLimit <= 0 {
		return eris.Errorf("config: lfr.geocoder.rate_limit must be > 0, got %g", c.LFR.Geocoder.RateLimit)
	}
	if len(c.StopSearch.Years) == 0 {
		return eris.New("config: stop_search.years is empty")
	}
	if !strings.Contains(c.StopSearch.Pattern, "{year}") {
		return eris.Errorf("config: stop_search.pattern %q has no {year} placeholder", c.StopSearch.Pattern)
	}
	for _, y := range c.StopSearch.Years {
		if c.StopSearchDir(y) == "" {
			return eris.Errorf("config: stop_search.dirs has no directory for %d", y)
		}
	}
	if c.Stats.BaselineYear == c.Stats.CompareYear {
		return eris.Errorf("config: stats baseline and compare year are both %d", c.Stats.BaselineYear)
	}
	if !c.HasYear(c.Stats.BaselineYear) || !c.HasYear(c.Stats.CompareYear) {
		return eris.Errorf("config: stats years %d/%d must be listed in stop_search.years",
			c.Stats.BaselineYear, c.Stats.CompareYear)
	}
	for _, q := range c.Stats.Quantiles {
		if q <= 0 || q >= 1 {
			return eris.Errorf("config: stats quantile %g outside (0,1)", q)
		}
	}
	return nil
}

// HasYear reports whether y is one of the configured stop-and-search years.
func (c *Config) HasYear(y int) bool {
	for _, have := range c.StopSearch.Years {
		if have == y {
			return true
		}
	}
	return false
}

// StopSearchDir returns the raw CSV directory configured for one year.
func (c *Config) StopSearchDir(year int) string {
	return c.StopSearch.Dirs[strconv.Itoa(year)]
}

// StopSearchOut returns the point layer path for one year.
func (c *Config) StopSearchOut(year int) string {
	return strings.ReplaceAll(c.Paths.StopSearchOut, "{year}", strconv.Itoa(year))
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
