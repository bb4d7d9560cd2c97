package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8080"

	// DefaultSQLitePath is the default SQLite database location.
	DefaultSQLitePath = "./robodash.db"

	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "ROBODASH"
)

// Analysis engine defaults. These are the tunable bounds for the deep
// analysis KPIs (top-N sizes, sequence mining limits, sample caps).
const (
	DefaultAnalysisWorkers    = 2
	DefaultAnalysisQueueSize  = 64
	DefaultTopKeywords        = 20
	DefaultMinSequenceLength  = 2
	DefaultMaxSequenceLength  = 5
	DefaultMaxSequenceResults = 50
	DefaultMaxSequenceTests   = 10
	DefaultErrorSamples       = 5
	DefaultZeroAssertionLimit = 20
)

// Config is the root configuration for robodash.
type Config struct {
	Global       GlobalConfig       `yaml:"global" mapstructure:"global"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Database     DatabaseConfig     `yaml:"database" mapstructure:"database"`
	Auth         AuthConfig         `yaml:"auth,omitempty" mapstructure:"auth"`
	Analysis     AnalysisConfig     `yaml:"analysis,omitempty" mapstructure:"analysis"`
	Repositories []RepositoryConfig `yaml:"repositories,omitempty" mapstructure:"repositories"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Public        RateLimitTier `yaml:"public,omitempty" mapstructure:"public"`
	Authenticated RateLimitTier `yaml:"authenticated,omitempty" mapstructure:"authenticated"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// AuthConfig contains API authentication settings. Tokens are static
// bearer tokens; mutating endpoints require one when auth is enabled.
type AuthConfig struct {
	Enabled       bool     `yaml:"enabled" mapstructure:"enabled"`
	AnonymousRead bool     `yaml:"anonymous_read" mapstructure:"anonymous_read"`
	Tokens        []string `yaml:"tokens,omitempty" mapstructure:"tokens"`
}

// AnalysisConfig contains the tunable parameters of the deep analysis
// engine. Histogram buckets and error normalization rules live with
// their analyzers; everything size-related is configured here.
type AnalysisConfig struct {
	Workers            int `yaml:"workers,omitempty" mapstructure:"workers"`
	QueueSize          int `yaml:"queue_size,omitempty" mapstructure:"queue_size"`
	TopKeywords        int `yaml:"top_keywords,omitempty" mapstructure:"top_keywords"`
	MinSequenceLength  int `yaml:"min_sequence_length,omitempty" mapstructure:"min_sequence_length"`
	MaxSequenceLength  int `yaml:"max_sequence_length,omitempty" mapstructure:"max_sequence_length"`
	MaxSequenceResults int `yaml:"max_sequence_results,omitempty" mapstructure:"max_sequence_results"`
	MaxSequenceTests   int `yaml:"max_sequence_tests,omitempty" mapstructure:"max_sequence_tests"`
	ErrorSamples       int `yaml:"error_samples,omitempty" mapstructure:"error_samples"`
	ZeroAssertionLimit int `yaml:"zero_assertion_limit,omitempty" mapstructure:"zero_assertion_limit"`
}

// RepositoryConfig defines a test repository seeded at startup.
type RepositoryConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	Path string `yaml:"path" mapstructure:"path"`
}

// Load reads and merges one or more YAML configuration files (later files
// override earlier ones), applies ROBODASH_* environment overrides, and
// fills in defaults.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if i == 0 {
			if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}

			continue
		}

		if err := v.MergeConfig(strings.NewReader(string(data))); err != nil {
			return nil, fmt.Errorf("merging config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only kicks in for keys viper knows about, so bind every
	// key reachable from the struct shape explicitly.
	for _, key := range envBindableKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// envBindableKeys lists the scalar config keys that may be overridden
// via environment variables.
func envBindableKeys() []string {
	return []string{
		"global.log_level",
		"server.listen",
		"server.rate_limit.enabled",
		"server.rate_limit.public.requests_per_minute",
		"server.rate_limit.authenticated.requests_per_minute",
		"database.driver",
		"database.sqlite.path",
		"database.postgres.host",
		"database.postgres.port",
		"database.postgres.user",
		"database.postgres.password",
		"database.postgres.database",
		"database.postgres.ssl_mode",
		"auth.enabled",
		"auth.anonymous_read",
		"analysis.workers",
		"analysis.queue_size",
		"analysis.top_keywords",
		"analysis.min_sequence_length",
		"analysis.max_sequence_length",
		"analysis.max_sequence_results",
		"analysis.max_sequence_tests",
		"analysis.error_samples",
		"analysis.zero_assertion_limit",
	}
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.Database.Driver == "postgres" && c.Database.Postgres.SSLMode == "" {
		c.Database.Postgres.SSLMode = "disable"
	}

	a := &c.Analysis
	if a.Workers <= 0 {
		a.Workers = DefaultAnalysisWorkers
	}

	if a.QueueSize <= 0 {
		a.QueueSize = DefaultAnalysisQueueSize
	}

	if a.TopKeywords <= 0 {
		a.TopKeywords = DefaultTopKeywords
	}

	if a.MinSequenceLength < 2 {
		a.MinSequenceLength = DefaultMinSequenceLength
	}

	if a.MaxSequenceLength < a.MinSequenceLength {
		a.MaxSequenceLength = DefaultMaxSequenceLength
	}

	if a.MaxSequenceResults <= 0 {
		a.MaxSequenceResults = DefaultMaxSequenceResults
	}

	if a.MaxSequenceTests <= 0 {
		a.MaxSequenceTests = DefaultMaxSequenceTests
	}

	if a.ErrorSamples <= 0 {
		a.ErrorSamples = DefaultErrorSamples
	}

	if a.ZeroAssertionLimit <= 0 {
		a.ZeroAssertionLimit = DefaultZeroAssertionLimit
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		p := c.Database.Postgres
		if p.Host == "" || p.Database == "" {
			return fmt.Errorf("database.postgres.host and database are required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Auth.Enabled && len(c.Auth.Tokens) == 0 {
		return fmt.Errorf("auth.tokens must not be empty when auth is enabled")
	}

	seen := make(map[string]struct{}, len(c.Repositories))

	for i, repo := range c.Repositories {
		if repo.Name == "" {
			return fmt.Errorf("repositories[%d]: name is required", i)
		}

		if _, exists := seen[repo.Name]; exists {
			return fmt.Errorf("repositories[%d]: duplicate name %q", i, repo.Name)
		}

		seen[repo.Name] = struct{}{}
	}

	if c.Analysis.MaxSequenceLength < c.Analysis.MinSequenceLength {
		return fmt.Errorf(
			"analysis.max_sequence_length must be >= min_sequence_length",
		)
	}

	return nil
}
