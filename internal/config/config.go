// Package config loads cohortsql configuration from a YAML file, .env files
// and COHORTSQL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// AppFs is the filesystem config files are read from.
var AppFs = afero.NewOsFs()

// FileName is the config file name searched for, without extension.
const FileName = ".cohortsql"

// Config represents application configuration.
type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Catalog      CatalogConfig      `mapstructure:"catalog"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	LearnedFixes LearnedFixConfig   `mapstructure:"learned_fixes"`
	Repair       RepairConfig       `mapstructure:"repair"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Rewrite      RewriteConfig      `mapstructure:"rewrite"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	Provider       string        `mapstructure:"provider"`
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxRows        int           `mapstructure:"max_rows"`
}

// CatalogConfig locates the schema catalog document. An empty Path selects
// the built-in catalog.
type CatalogConfig struct {
	Path     string   `mapstructure:"path"`
	Storage  string   `mapstructure:"storage"`
	BasePath string   `mapstructure:"base_path"`
	Dialect  string   `mapstructure:"dialect"`
	Watch    bool     `mapstructure:"watch"`
	S3       S3Config `mapstructure:"s3"`
}

// S3Config configures the s3 catalog storage.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
	Prefix    string `mapstructure:"prefix"`
}

// OrchestratorConfig bounds repair runs.
type OrchestratorConfig struct {
	MaxErrorRepairs      int           `mapstructure:"max_error_repairs"`
	MaxZeroResultRepairs int           `mapstructure:"max_zero_result_repairs"`
	ExecutionTimeout     time.Duration `mapstructure:"execution_timeout"`
	RepairTimeout        time.Duration `mapstructure:"repair_timeout"`
}

// LearnedFixConfig selects the learned-fix store.
type LearnedFixConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RepairConfig selects the repair collaborator.
type RepairConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// TelemetryConfig selects the telemetry sink.
type TelemetryConfig struct {
	Type      string `mapstructure:"type"`
	Namespace string `mapstructure:"namespace"`
	// Listen is the address the prometheus handler is served on, if any.
	Listen string `mapstructure:"listen"`
}

// RewriteConfig tunes the rewrite engine.
type RewriteConfig struct {
	DefaultRowCap     int `mapstructure:"default_row_cap"`
	MaxValueExpansion int `mapstructure:"max_value_expansion"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Debug bool `mapstructure:"debug"`
	JSON  bool `mapstructure:"json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.provider", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_idle_time", "5m")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_rows", 10000)

	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.storage", "filesystem")
	v.SetDefault("catalog.base_path", ".")
	v.SetDefault("catalog.dialect", "")
	v.SetDefault("catalog.watch", false)
	v.SetDefault("catalog.s3.bucket", "")
	v.SetDefault("catalog.s3.region", "us-east-1")
	v.SetDefault("catalog.s3.endpoint", "")
	v.SetDefault("catalog.s3.path_style", false)
	v.SetDefault("catalog.s3.prefix", "")

	v.SetDefault("orchestrator.max_error_repairs", 3)
	v.SetDefault("orchestrator.max_zero_result_repairs", 2)
	v.SetDefault("orchestrator.execution_timeout", "30s")
	v.SetDefault("orchestrator.repair_timeout", "60s")

	v.SetDefault("learned_fixes.driver", "memory")
	v.SetDefault("learned_fixes.dsn", "")

	v.SetDefault("repair.provider", "none")
	v.SetDefault("repair.model", "")
	v.SetDefault("repair.api_key", "")
	v.SetDefault("repair.base_url", "")

	v.SetDefault("telemetry.type", "noop")
	v.SetDefault("telemetry.namespace", "cohortsql")
	v.SetDefault("telemetry.listen", "")

	v.SetDefault("rewrite.default_row_cap", 1000)
	v.SetDefault("rewrite.max_value_expansion", 5)

	v.SetDefault("logging.debug", false)
	v.SetDefault("logging.json", false)
}

// Default returns the configuration with every default applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// LoadConfig loads configuration. file overrides the config file search.
func LoadConfig(file string) (*Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetFs(AppFs)
	setDefaults(v)
	v.SetEnvPrefix("COHORTSQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
			v.AddConfigPath(filepath.Join(home, ".config", "cohortsql"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.Repair.APIKey == "" {
		cfg.Repair.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads .env and then .env.local, which takes priority. Variables
// already set in the environment win over .env but not over .env.local.
func loadDotEnv() {
	if _, err := AppFs.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	if _, err := AppFs.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local")
	}
}

var (
	providers        = []string{"", "postgres", "postgresql", "pgx", "mysql", "sqlite", "sqlite3", "oracle"}
	storages         = []string{"filesystem", "memory", "s3"}
	learnedDrivers   = []string{"memory", "sqlite", "postgres"}
	repairProviders  = []string{"none", "static", "genai"}
	telemetryTypes   = []string{"noop", "memory", "prometheus"}
	catalogDialects  = []string{"", "oracle", "postgres", "postgresql", "mysql", "sqlite"}
	errInvalidConfig = errors.New("invalid configuration")
)

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{errInvalidConfig}, args...)...))
	}
	oneOf := func(field, value string, allowed []string) {
		for _, a := range allowed {
			if strings.EqualFold(value, a) {
				return
			}
		}
		bad("%s %q is not one of %s", field, value, strings.Join(nonEmpty(allowed), ", "))
	}

	oneOf("database.provider", c.Database.Provider, providers)
	if c.Database.MaxRows <= 0 {
		bad("database.max_rows must be positive")
	}
	oneOf("catalog.storage", c.Catalog.Storage, storages)
	oneOf("catalog.dialect", c.Catalog.Dialect, catalogDialects)
	if c.Catalog.Storage == "s3" && c.Catalog.S3.Bucket == "" {
		bad("catalog.s3.bucket is required for s3 storage")
	}
	if c.Orchestrator.MaxErrorRepairs <= 0 {
		bad("orchestrator.max_error_repairs must be positive")
	}
	if c.Orchestrator.MaxZeroResultRepairs <= 0 {
		bad("orchestrator.max_zero_result_repairs must be positive")
	}
	if c.Orchestrator.ExecutionTimeout <= 0 || c.Orchestrator.RepairTimeout <= 0 {
		bad("orchestrator timeouts must be positive")
	}
	oneOf("learned_fixes.driver", c.LearnedFixes.Driver, learnedDrivers)
	if c.LearnedFixes.Driver != "memory" && c.LearnedFixes.DSN == "" {
		bad("learned_fixes.dsn is required for driver %q", c.LearnedFixes.Driver)
	}
	oneOf("repair.provider", c.Repair.Provider, repairProviders)
	if c.Repair.Provider == "genai" && c.Repair.APIKey == "" {
		bad("repair.api_key (or GEMINI_API_KEY) is required for genai")
	}
	oneOf("telemetry.type", c.Telemetry.Type, telemetryTypes)
	if c.Rewrite.DefaultRowCap <= 0 || c.Rewrite.MaxValueExpansion <= 0 {
		bad("rewrite.default_row_cap and rewrite.max_value_expansion must be positive")
	}
	return errors.Join(errs...)
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
