// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/graintrack/weighbridge-cli/internal/ingest"
	"github.com/graintrack/weighbridge-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Ingest IngestConfig `yaml:"ingest" mapstructure:"ingest"`
	Fetch  FetchConfig  `yaml:"fetch" mapstructure:"fetch"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// IngestConfig configures row normalization and batch processing.
type IngestConfig struct {
	// ReportingTimezone is the fixed zone used to derive the dedup day key.
	ReportingTimezone string `yaml:"reporting_timezone" mapstructure:"reporting_timezone"`
	// Unit is the fixed display unit stamped on every record.
	Unit        string           `yaml:"unit" mapstructure:"unit"`
	Concurrency int              `yaml:"concurrency" mapstructure:"concurrency"`
	SheetName   string           `yaml:"sheet_name" mapstructure:"sheet_name"`
	HeaderRow   int              `yaml:"header_row" mapstructure:"header_row"`
	Columns     ingest.ColumnMap `yaml:"columns" mapstructure:"columns"`
}

// FetchConfig configures remote source retrieval.
type FetchConfig struct {
	FTPUser     string  `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword string  `yaml:"ftp_password" mapstructure:"ftp_password"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	FileSuffix  string  `yaml:"file_suffix" mapstructure:"file_suffix"`
	DownloadDir string  `yaml:"download_dir" mapstructure:"download_dir"`
}

// ServerConfig configures the HTTP ingest/admin server.
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
	v.SetEnvPrefix("WEIGH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "weighbridge.db")
	v.SetDefault("ingest.reporting_timezone", "Asia/Bangkok")
	v.SetDefault("ingest.unit", "ton")
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("ingest.header_row", 0)
	cm := ingest.DefaultColumnMap()
	v.SetDefault("ingest.columns.company", cm.Company)
	v.SetDefault("ingest.columns.weigh_type", cm.WeighType)
	v.SetDefault("ingest.columns.product_name", cm.ProductName)
	v.SetDefault("ingest.columns.product_code", cm.ProductCode)
	v.SetDefault("ingest.columns.quantity_ton", cm.QuantityTon)
	v.SetDefault("ingest.columns.raw_weight_kg", cm.RawWeightKg)
	v.SetDefault("ingest.columns.date", cm.Date)
	v.SetDefault("ingest.columns.site_name", cm.SiteName)
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.rate_limit", 2.0)
	v.SetDefault("fetch.user_agent", "weighbridge-cli")
	v.SetDefault("fetch.file_suffix", ".xlsx")
	v.SetDefault("fetch.download_dir", "")
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
