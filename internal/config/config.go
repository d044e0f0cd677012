package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Run     RunConfig     `yaml:"run" mapstructure:"run"`
	Spatial SpatialConfig `yaml:"spatial" mapstructure:"spatial"`
	Smooth  SmoothConfig  `yaml:"smooth" mapstructure:"smooth"`
	Loader  LoaderConfig  `yaml:"loader" mapstructure:"loader"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RunConfig bounds a single analysis run.
type RunConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the run deadline as a duration.
func (r RunConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSecs) * time.Second
}

// SpatialConfig holds the defaults of the spatial pattern tests.
type SpatialConfig struct {
	K                int     `yaml:"k" mapstructure:"k"`
	ClusterThreshold float64 `yaml:"cluster_threshold" mapstructure:"cluster_threshold"`
	LinearThreshold  float64 `yaml:"linear_threshold" mapstructure:"linear_threshold"`
}

// SmoothConfig holds the default effective degrees of freedom of the
// smoothed association model.
type SmoothConfig struct {
	DF int `yaml:"df" mapstructure:"df"`
}

// LoaderConfig names the columns of input tables and boundary files.
type LoaderConfig struct {
	IDColumn     string `yaml:"id_column" mapstructure:"id_column"`
	LonColumn    string `yaml:"lon_column" mapstructure:"lon_column"`
	LatColumn    string `yaml:"lat_column" mapstructure:"lat_column"`
	WeightColumn string `yaml:"weight_column" mapstructure:"weight_column"`
	IDWidth      int    `yaml:"id_width" mapstructure:"id_width"`
	ShapeIDField string `yaml:"shape_id_field" mapstructure:"shape_id_field"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("run.concurrency", 4)
	v.SetDefault("run.timeout_secs", 300)
	v.SetDefault("spatial.k", 6)
	v.SetDefault("spatial.cluster_threshold", 1.2)
	v.SetDefault("spatial.linear_threshold", 0.6)
	v.SetDefault("smooth.df", 4)
	v.SetDefault("loader.id_column", "GEOID")
	v.SetDefault("loader.lon_column", "INTPTLON")
	v.SetDefault("loader.lat_column", "INTPTLAT")
	v.SetDefault("loader.weight_column", "")
	v.SetDefault("loader.id_width", 0)
	v.SetDefault("loader.shape_id_field", "GEOID")

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

// Validate reports every out-of-range setting at once.
func (c *Config) Validate() error {
	var problems []string
	if c.Run.Concurrency < 1 {
		problems = append(problems, "run.concurrency must be > 0")
	}
	if c.Run.TimeoutSecs < 1 {
		problems = append(problems, "run.timeout_secs must be > 0")
	}
	if c.Spatial.K < 1 {
		problems = append(problems, "spatial.k must be > 0")
	}
	if c.Spatial.ClusterThreshold <= 0 {
		problems = append(problems, "spatial.cluster_threshold must be > 0")
	}
	if c.Spatial.LinearThreshold <= 0 || c.Spatial.LinearThreshold > 1 {
		problems = append(problems, "spatial.linear_threshold must be in (0, 1]")
	}
	if c.Smooth.DF < 2 {
		problems = append(problems, "smooth.df must be >= 2")
	}
	if c.Loader.IDColumn == "" {
		problems = append(problems, "loader.id_column is required")
	}
	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
	// Logs go to stderr so report output on stdout stays clean.
	zapCfg.OutputPaths = []string{"stderr"}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
