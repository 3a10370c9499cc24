package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Data        DataConfig        `yaml:"data" mapstructure:"data"`
	Match       MatchConfig       `yaml:"match" mapstructure:"match"`
	Sample      SampleConfig      `yaml:"sample" mapstructure:"sample"`
	Fetch       FetchConfig       `yaml:"fetch" mapstructure:"fetch"`
	Groundwater GroundwaterConfig `yaml:"groundwater" mapstructure:"groundwater"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the region database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DataConfig points at the local raster and boundary datasets.
type DataConfig struct {
	Dir           string `yaml:"dir" mapstructure:"dir"`
	ElevationPath string `yaml:"elevation_path" mapstructure:"elevation_path"`
	LandcoverPath string `yaml:"landcover_path" mapstructure:"landcover_path"`
	ClassMapPath  string `yaml:"class_map_path" mapstructure:"class_map_path"`

	// LandcoverSeries is the dataset prefix for per-year land-cover
	// rasters; year N is read from "<series>:<N>".
	LandcoverSeries string `yaml:"landcover_series" mapstructure:"landcover_series"`
}

// MatchConfig configures the terrain-similarity control matcher.
type MatchConfig struct {
	BufferMeters    float64 `yaml:"buffer_meters" mapstructure:"buffer_meters"`
	SlopeScale      float64 `yaml:"slope_scale" mapstructure:"slope_scale"`
	ElevationRaster string  `yaml:"elevation_raster" mapstructure:"elevation_raster"`
}

// SampleConfig configures the area-equivalent circle sampler.
type SampleConfig struct {
	Circles          int     `yaml:"circles" mapstructure:"circles"`
	SampleScale      float64 `yaml:"sample_scale" mapstructure:"sample_scale"`
	SampleBand       string  `yaml:"sample_band" mapstructure:"sample_band"`
	MinControlArea   float64 `yaml:"min_control_area" mapstructure:"min_control_area"`
	SubstituteFloor  float64 `yaml:"substitute_floor" mapstructure:"substitute_floor"`
	ClampFraction    float64 `yaml:"clamp_fraction" mapstructure:"clamp_fraction"`
	MinRadius        float64 `yaml:"min_radius" mapstructure:"min_radius"`
	CroplandClasses  []int   `yaml:"cropland_classes" mapstructure:"cropland_classes"`
	LandcoverRaster  string  `yaml:"landcover_raster" mapstructure:"landcover_raster"`
	Seed             int64   `yaml:"seed" mapstructure:"seed"`
}

// FetchConfig configures dataset downloads.
type FetchConfig struct {
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSecond  float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	TokenURL       string  `yaml:"token_url" mapstructure:"token_url"`
	ClientID       string  `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret   string  `yaml:"client_secret" mapstructure:"client_secret"`
}

// GroundwaterConfig configures the monitoring-station lookup.
type GroundwaterConfig struct {
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	MaxDistanceKM float64 `yaml:"max_distance_km" mapstructure:"max_distance_km"`
}

// BatchConfig configures multi-site batch evaluation.
type BatchConfig struct {
	MaxConcurrentSites int `yaml:"max_concurrent_sites" mapstructure:"max_concurrent_sites"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CONTROLSITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "controlsite.db")
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.elevation_path", "data/srtm_slope.tif")
	v.SetDefault("data.landcover_path", "data/landcover.tif")
	v.SetDefault("data.class_map_path", "data/classes.yaml")
	v.SetDefault("data.landcover_series", "indiasat")
	v.SetDefault("match.buffer_meters", 5000.0)
	v.SetDefault("match.slope_scale", 30.0)
	v.SetDefault("match.elevation_raster", "elevation")
	v.SetDefault("sample.circles", 10)
	v.SetDefault("sample.sample_scale", 50.0)
	v.SetDefault("sample.sample_band", "b1")
	v.SetDefault("sample.min_control_area", 10000.0)
	v.SetDefault("sample.substitute_floor", 100000.0)
	v.SetDefault("sample.clamp_fraction", 0.8)
	v.SetDefault("sample.min_radius", 30.0)
	v.SetDefault("sample.cropland_classes", []int{2, 3, 4, 5, 6, 13})
	v.SetDefault("sample.landcover_raster", "landcover")
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_second", 2.0)
	v.SetDefault("groundwater.max_distance_km", 10.0)
	v.SetDefault("batch.max_concurrent_sites", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the configuration for the given run mode. Modes: match,
// sample, ingest, serve, fetch.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Sample.Circles < 1 || c.Sample.Circles > 500 {
		errs = append(errs, "sample.circles must be between 1 and 500")
	}
	if c.Sample.ClampFraction <= 0 || c.Sample.ClampFraction > 1 {
		errs = append(errs, "sample.clamp_fraction must be in (0, 1]")
	}
	if c.Match.BufferMeters <= 0 {
		errs = append(errs, "match.buffer_meters must be > 0")
	}
	if c.Batch.MaxConcurrentSites < 1 || c.Batch.MaxConcurrentSites > 50 {
		errs = append(errs, "batch.max_concurrent_sites must be between 1 and 50")
	}

	switch mode {
	case "match":
		if c.Data.ElevationPath == "" {
			errs = append(errs, "data.elevation_path is required")
		}
	case "sample":
		if c.Data.LandcoverPath == "" {
			errs = append(errs, "data.landcover_path is required")
		}
	case "ingest":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "fetch":
		if c.Data.Dir == "" {
			errs = append(errs, "data.dir is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
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
