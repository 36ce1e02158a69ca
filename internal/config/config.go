// Package config holds the process settings and loads them from flags,
// environment, an optional YAML file and a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/FranksOps/searchmcp/internal/fingerprint"
	"github.com/FranksOps/searchmcp/internal/webfetch"
)

// EnvPrefix prefixes every environment variable, e.g. SEARCHMCP_PORT.
const EnvPrefix = "SEARCHMCP"

// Config is the full process configuration.
type Config struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	SearchRPM int `mapstructure:"search_rpm"`
	FetchRPM  int `mapstructure:"fetch_rpm"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxConcurrent  int64         `mapstructure:"max_concurrent"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	Fingerprint    string        `mapstructure:"fingerprint"`
	ProxyFile      string        `mapstructure:"proxy_file"`

	// RotateUserAgents cycles fetch_content through a desktop browser pool
	// instead of the single generic agent.
	RotateUserAgents bool   `mapstructure:"rotate_user_agents"`
	// FetchMode is text, readability or markdown.
	FetchMode        string `mapstructure:"fetch_mode"`

	AuditDSN      string        `mapstructure:"audit_dsn"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	ScholarDelay  time.Duration `mapstructure:"scholar_delay"`
	LogLevel      string        `mapstructure:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8000,
		SearchRPM:      30,
		FetchRPM:       20,
		RequestTimeout: 30 * time.Second,
		MaxConcurrent:  8,
		MaxBodyBytes:   5 << 20,
		Fingerprint:    string(fingerprint.ProfileChrome),
		FetchMode:      string(webfetch.ModeText),
		ScholarDelay:   500 * time.Millisecond,
		LogLevel:       "info",
	}
}

// SetDefaults registers Default() on v so unset keys resolve and env
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("search_rpm", d.SearchRPM)
	v.SetDefault("fetch_rpm", d.FetchRPM)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("max_concurrent", d.MaxConcurrent)
	v.SetDefault("max_body_bytes", d.MaxBodyBytes)
	v.SetDefault("fingerprint", d.Fingerprint)
	v.SetDefault("proxy_file", d.ProxyFile)
	v.SetDefault("rotate_user_agents", d.RotateUserAgents)
	v.SetDefault("fetch_mode", d.FetchMode)
	v.SetDefault("audit_dsn", d.AuditDSN)
	v.SetDefault("respect_robots", d.RespectRobots)
	v.SetDefault("scholar_delay", d.ScholarDelay)
	v.SetDefault("log_level", d.LogLevel)
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads v into a Config. configFile, when set, must exist; otherwise
// searchmcp.yaml in the working directory is used if present.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("searchmcp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decoding: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.SearchRPM <= 0 {
		errs = append(errs, fmt.Errorf("search_rpm must be positive, got %d", c.SearchRPM))
	}
	if c.FetchRPM <= 0 {
		errs = append(errs, fmt.Errorf("fetch_rpm must be positive, got %d", c.FetchRPM))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("max_concurrent must be positive, got %d", c.MaxConcurrent))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_body_bytes must be positive, got %d", c.MaxBodyBytes))
	}
	if c.ScholarDelay < 0 {
		errs = append(errs, fmt.Errorf("scholar_delay must not be negative, got %s", c.ScholarDelay))
	}
	if _, err := fingerprint.ParseProfile(c.Fingerprint); err != nil {
		errs = append(errs, err)
	}
	if _, err := webfetch.ParseMode(c.FetchMode); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Addr is the host:port the tool server listens on.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ParseLevel maps debug, info, warn or error onto a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("unknown log_level %q", s)
	}
	return l, nil
}
