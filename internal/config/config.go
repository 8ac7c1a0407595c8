// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Port          string         `yaml:"port"`
	AppEnv        string         `yaml:"app_env"`
	FrontendURL   string         `yaml:"frontend_url"`
	LogLevel      string         `yaml:"log_level"`
	StatsTimezone string         `yaml:"stats_timezone"`
	Database      DatabaseConfig `yaml:"database"`
	Voice         VoiceConfig    `yaml:"voice"`
	Session       SessionConfig  `yaml:"session"`

	// ConfigFile is the YAML overlay that was applied, if any.
	ConfigFile string `yaml:"-"`
}

// DatabaseConfig selects and locates the relational store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
}

// VoiceConfig configures the outbound voice provider client.
type VoiceConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Voice   string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`
}

// SessionConfig controls the duration cap and the abandoned-session reaper.
type SessionConfig struct {
	Cap            time.Duration `yaml:"cap"`
	ReaperInterval time.Duration `yaml:"reaper_interval"`
	ReaperGrace    time.Duration `yaml:"reaper_grace"`
}

// Load reads configuration from environment variables, then the optional
// YAML file named by CONFIG_FILE or --config, then command-line flags.
// Pass nil args when there is no command line. Returns pflag.ErrHelp when
// --help was requested.
func Load(args []string) (*Config, error) {
	cfg := fromEnv()

	fs := pflag.NewFlagSet("voiceos", pflag.ContinueOnError)
	flags := bindFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.Changed("config") {
		cfg.ConfigFile = flags.configFile
	}
	if cfg.ConfigFile != "" {
		if err := cfg.loadFile(cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", cfg.ConfigFile, err)
		}
	}
	flags.apply(fs, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		AppEnv:        getEnv("APP_ENV", "development"),
		FrontendURL:   getEnv("FRONTEND_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		StatsTimezone: getEnv("STATS_TIMEZONE", ""),
		ConfigFile:    getEnv("CONFIG_FILE", ""),
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", DriverSQLite),
			Path:   getEnv("DB_PATH", "./data/voiceos.db"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		Voice: VoiceConfig{
			APIKey:  getEnv("VOICE_API_KEY", ""),
			BaseURL: getEnv("VOICE_BASE_URL", "https://api.ultravox.ai"),
			Model:   getEnv("VOICE_MODEL", "fixie-ai/ultravox"),
			Voice:   getEnv("VOICE_NAME", ""),
			Timeout: getEnvDuration("VOICE_TIMEOUT", 15*time.Second),
		},
		Session: SessionConfig{
			Cap:            getEnvDuration("SESSION_CAP", 600*time.Second),
			ReaperInterval: getEnvDuration("SESSION_REAPER_INTERVAL", 5*time.Minute),
			ReaperGrace:    getEnvDuration("SESSION_REAPER_GRACE", 2*time.Minute),
		},
	}
}

// loadFile overlays the keys set in a YAML file onto the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

type flagValues struct {
	configFile  string
	port        string
	dbDriver    string
	dbPath      string
	databaseURL string
}

func bindFlags(fs *pflag.FlagSet, cfg *Config) *flagValues {
	v := &flagValues{}
	fs.StringVar(&v.configFile, "config", cfg.ConfigFile, "path to a YAML config file")
	fs.StringVar(&v.port, "port", cfg.Port, "HTTP listen port")
	fs.StringVar(&v.dbDriver, "db-driver", cfg.Database.Driver, "database driver: sqlite or postgres")
	fs.StringVar(&v.dbPath, "db-path", cfg.Database.Path, "SQLite database file")
	fs.StringVar(&v.databaseURL, "database-url", cfg.Database.URL, "Postgres connection URL")
	return v
}

// apply copies explicitly set flags so they win over env and file values.
func (v *flagValues) apply(fs *pflag.FlagSet, cfg *Config) {
	if fs.Changed("port") {
		cfg.Port = v.port
	}
	if fs.Changed("db-driver") {
		cfg.Database.Driver = v.dbDriver
	}
	if fs.Changed("db-path") {
		cfg.Database.Path = v.dbPath
	}
	if fs.Changed("database-url") {
		cfg.Database.URL = v.databaseURL
	}
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("DB_PATH cannot be empty")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}
	if c.Session.Cap <= 0 {
		return errors.New("SESSION_CAP must be > 0")
	}
	if c.Session.ReaperInterval < 0 {
		return errors.New("SESSION_REAPER_INTERVAL cannot be negative")
	}
	if c.Session.ReaperGrace < 0 {
		return errors.New("SESSION_REAPER_GRACE cannot be negative")
	}
	if c.Voice.Timeout <= 0 {
		return errors.New("VOICE_TIMEOUT must be > 0")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid STATS_TIMEZONE: %w", err)
	}
	return nil
}

// IsDevelopment returns true unless APP_ENV is production.
func (c *Config) IsDevelopment() bool {
	return !strings.EqualFold(c.AppEnv, "production")
}

// AllowedOrigins returns the CORS origins, "*" when FRONTEND_URL is unset.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

// Location returns the time zone used for stats; empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.StatsTimezone == "" || strings.EqualFold(c.StatsTimezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.StatsTimezone)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s", "5m") or bare seconds ("600").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
