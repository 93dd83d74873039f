package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	KingCounty KingCountyConfig `yaml:"kingcounty" mapstructure:"kingcounty"`
	Redfin     RedfinConfig     `yaml:"redfin" mapstructure:"redfin"`
	Organize   OrganizeConfig   `yaml:"organize" mapstructure:"organize"`
	Match      MatchConfig      `yaml:"match" mapstructure:"match"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DSN returns the connection string for the configured driver.
func (c StoreConfig) DSN() string {
	if c.Driver == "postgres" {
		return c.DatabaseURL
	}
	return c.SQLitePath
}

// FetchConfig configures outbound HTTP.
type FetchConfig struct {
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts   int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialWaitMS int    `yaml:"initial_wait_ms" mapstructure:"initial_wait_ms"`
}

// KingCountyConfig configures assessor downloads.
type KingCountyConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	CacheDir string `yaml:"cache_dir" mapstructure:"cache_dir"`
	Parallel int    `yaml:"parallel" mapstructure:"parallel"`
}

// RedfinConfig configures the listing export download.
type RedfinConfig struct {
	URL          string `yaml:"url" mapstructure:"url"`
	FallbackPath string `yaml:"fallback_path" mapstructure:"fallback_path"`
}

// OrganizeConfig configures county data cleaning.
type OrganizeConfig struct {
	// SchemaPath overrides the embedded schema when set.
	SchemaPath string   `yaml:"schema_path" mapstructure:"schema_path"`
	Zips       []string `yaml:"zips" mapstructure:"zips"`
	Start      string   `yaml:"start" mapstructure:"start"`
	End        string   `yaml:"end" mapstructure:"end"`
}

// MatchConfig configures the address join.
type MatchConfig struct {
	Cutoff     float64  `yaml:"cutoff" mapstructure:"cutoff"`
	Scorer     string   `yaml:"scorer" mapstructure:"scorer"`
	Workers    int      `yaml:"workers" mapstructure:"workers"`
	UnitTokens []string `yaml:"unit_tokens" mapstructure:"unit_tokens"`
}

// ExportConfig configures result files.
type ExportConfig struct {
	Dir   string `yaml:"dir" mapstructure:"dir"`
	Sheet string `yaml:"sheet" mapstructure:"sheet"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HOUSING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "data/housing.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("fetch.user_agent", "housing-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.initial_wait_ms", 1000)
	v.SetDefault("kingcounty.base_url", "https://aqua.kingcounty.gov/extranet/assessor")
	v.SetDefault("kingcounty.cache_dir", "data/kingcounty")
	v.SetDefault("kingcounty.parallel", 2)
	v.SetDefault("redfin.url", "")
	v.SetDefault("redfin.fallback_path", "data/redfin/All_King_Redfin.csv")
	v.SetDefault("organize.schema_path", "")
	v.SetDefault("organize.zips", []string{})
	v.SetDefault("organize.start", "2010-01-01")
	v.SetDefault("organize.end", "2020-01-01")
	v.SetDefault("match.cutoff", 0.6)
	v.SetDefault("match.scorer", "ratio")
	v.SetDefault("match.workers", 0)
	v.SetDefault("match.unit_tokens", []string{"unit"})
	v.SetDefault("export.dir", "data/output")
	v.SetDefault("export.sheet", "Sheet1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})

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

// Validate checks the settings a command mode depends on. Modes: "fetch",
// "organize", "join", "run", "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	needStore := false
	switch mode {
	case "fetch", "organize":
		errs = append(errs, c.validateFetch()...)
	case "join":
		errs = append(errs, c.validateMatch()...)
		needStore = true
	case "run":
		errs = append(errs, c.validateFetch()...)
		errs = append(errs, c.validateMatch()...)
		needStore = true
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		needStore = true
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	if needStore {
		errs = append(errs, c.validateStore()...)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return []string{"store.sqlite_path is required for sqlite"}
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for postgres"}
		}
	default:
		return []string{fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)}
	}
	return nil
}

func (c *Config) validateFetch() []string {
	var errs []string
	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, "fetch.max_attempts must be >= 1")
	}
	if c.Fetch.TimeoutSecs <= 0 {
		errs = append(errs, "fetch.timeout_secs must be > 0")
	}
	return errs
}

func (c *Config) validateMatch() []string {
	var errs []string
	if c.Match.Cutoff <= 0 || c.Match.Cutoff > 1 {
		errs = append(errs, fmt.Sprintf("match.cutoff must be in (0, 1], got %v", c.Match.Cutoff))
	}
	if c.Match.Workers < 0 {
		errs = append(errs, "match.workers must be >= 0")
	}
	switch c.Match.Scorer {
	case "ratio", "levenshtein":
	default:
		errs = append(errs, fmt.Sprintf("match.scorer must be ratio or levenshtein, got %q", c.Match.Scorer))
	}
	return errs
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
