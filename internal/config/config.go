package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/gpkg-cli/internal/coerce"
	"github.com/sells-group/gpkg-cli/internal/loader"
)

// Config holds the full application configuration.
type Config struct {
	Convert ConvertConfig `yaml:"convert" mapstructure:"convert"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ConvertConfig configures the conversion pipeline.
type ConvertConfig struct {
	WorkDir string `yaml:"work_dir" mapstructure:"work_dir"`
	Charset string `yaml:"charset" mapstructure:"charset"`
	SRSID   int    `yaml:"srs_id" mapstructure:"srs_id"`
	Workers int    `yaml:"workers" mapstructure:"workers"`
	// DateNameMarker is the column name fragment that allows date coercion.
	DateNameMarker string `yaml:"date_name_marker" mapstructure:"date_name_marker"`
}

// ServerConfig configures the conversion HTTP service.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	PathPrefix        string   `yaml:"path_prefix" mapstructure:"path_prefix"`
	MaxUploadBytes    int64    `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	CacheTTLMins      int      `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
	RequestsPerMinute int      `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	AllowedOrigins    []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// CacheTTL returns how long finished jobs are kept.
func (s ServerConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLMins) * time.Minute
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. path names the
// config file; when empty, an optional config.yaml in the working
// directory is used.
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
	v.SetEnvPrefix("GPKG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("convert.work_dir", "lib/convertable_files")
	v.SetDefault("convert.charset", loader.DefaultCharset)
	v.SetDefault("convert.srs_id", 3067)
	v.SetDefault("convert.workers", 1)
	v.SetDefault("convert.date_name_marker", coerce.DefaultDateNameMarker)
	v.SetDefault("server.port", 80)
	v.SetDefault("server.path_prefix", "/vexline")
	v.SetDefault("server.max_upload_bytes", 100<<20)
	v.SetDefault("server.cache_ttl_mins", 60)
	v.SetDefault("server.requests_per_minute", 60)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is "convert" or
// "serve"; every problem found is reported in one error.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "convert", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if strings.TrimSpace(c.Convert.WorkDir) == "" {
		errs = append(errs, "convert.work_dir is required")
	}
	if _, err := loader.Charset(c.Convert.Charset); err != nil {
		errs = append(errs, "convert.charset "+strconv.Quote(c.Convert.Charset)+" is not a known encoding")
	}
	if c.Convert.SRSID <= 0 {
		errs = append(errs, "convert.srs_id must be > 0")
	}
	if c.Convert.Workers < 0 {
		errs = append(errs, "convert.workers must be >= 0")
	}
	if strings.TrimSpace(c.Convert.DateNameMarker) == "" {
		errs = append(errs, "convert.date_name_marker is required")
	}

	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.MaxUploadBytes <= 0 {
			errs = append(errs, "server.max_upload_bytes must be > 0")
		}
		if c.Server.CacheTTLMins <= 0 {
			errs = append(errs, "server.cache_ttl_mins must be > 0")
		}
		if c.Server.RequestsPerMinute <= 0 {
			errs = append(errs, "server.requests_per_minute must be > 0")
		}
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
