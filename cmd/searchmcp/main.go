// Package main is the entry point for the searchmcp tool server.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/FranksOps/searchmcp/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	settings = viper.New()
	cfg      config.Config
)

var rootCmd = &cobra.Command{
	Use:   "searchmcp",
	Short: "MCP tool server for web search, page fetching and Google Scholar",
	Long: `searchmcp exposes three tools over MCP: search (DuckDuckGo), fetch_content
(webpage to plain text) and scholar_search (Google Scholar with BibTeX).

Settings come from flags, SEARCHMCP_* environment variables, a .env file and
an optional searchmcp.yaml, in that order of precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		cfgFile, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(settings, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		logger, err := newLogger(os.Stderr, cfg.LogLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./searchmcp.yaml if present)")
	flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("audit-dsn", "", "request audit store: sqlite path, *.ndjson file or postgres:// DSN")

	bind("log_level", "log-level")
	bind("audit_dsn", "audit-dsn")
}

// bind exposes a persistent flag under a config key.
func bind(key, flag string) {
	if err := settings.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// newLogger builds the diagnostic JSON logger. Tool output goes over MCP, so
// logs always go to w (stderr in production).
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
