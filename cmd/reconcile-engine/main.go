// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the reconcile-engine CLI.
package main

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/reconcile-engine/internal/secrets"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// engineConfig is the merged configuration, filled in PersistentPreRunE.
var engineConfig types.EngineConfig

// logger is the diagnostic logger; command output goes to stdout.
var logger = slog.Default()

// rootCmd is the base command for the reconcile-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "reconcile-engine",
	Short: "Search, deduplicate, filter and enrich literature result sets",
	Long: `reconcile-engine queries a primary literature index and a secondary
citation index, flags secondary records that duplicate primary ones, and
lets the researcher refine the combined result set with AI filters and
enrichment columns. Every refinement is kept as a snapshot with its
provenance.

Use "search" for a one-shot query and "session" for the interactive shell.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger = newLogger(cfg.LogLevel)
		slog.SetDefault(logger)

		secretsDir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(secretsDir, logger)
		if err != nil {
			return err
		}
		s.Apply(&cfg)
		if len(s) > 0 {
			logger.Debug("loaded secrets", "keys", slices.Sorted(maps.Keys(s)))
		}
		engineConfig = cfg
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./reconcile-engine.yaml or ~/.config/reconcile-engine/reconcile-engine.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets", "directory holding one file per API key")
	rootCmd.PersistentFlags().String("log-level", "", "diagnostic log level: debug, info, warn, error")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("reconcile-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "reconcile-engine"))
		}
	}

	viper.SetEnvPrefix("RECONCILE_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper(), types.DefaultEngineConfig())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every default so that AutomaticEnv can override
// keys that appear in no config file.
func setDefaults(v *viper.Viper, d types.EngineConfig) {
	v.SetDefault("session.global_cap", d.Session.GlobalCap)
	v.SetDefault("session.display_cap", d.Session.DisplayCap)
	v.SetDefault("session.initial_page_size", d.Session.InitialPageSize)

	v.SetDefault("search.timeout", d.Search.Timeout)
	v.SetDefault("search.user_agent", d.Search.UserAgent)
	v.SetDefault("search.primary.batch_size", d.Search.Primary.BatchSize)
	v.SetDefault("search.primary.requests_per_second", d.Search.Primary.RequestsPerSecond)
	v.SetDefault("search.secondary.batch_size", d.Search.Secondary.BatchSize)
	v.SetDefault("search.secondary.requests_per_second", d.Search.Secondary.RequestsPerSecond)
	v.SetDefault("search.secondary_backend", d.Search.SecondaryBackend)
	v.SetDefault("search.ncbi_api_key", "")
	v.SetDefault("search.openalex_email", "")
	v.SetDefault("search.semantic_scholar_api_key", "")

	v.SetDefault("enrichment.model", d.Enrichment.Model)
	v.SetDefault("enrichment.api_key", "")
	v.SetDefault("enrichment.max_retries", d.Enrichment.MaxRetries)
	v.SetDefault("enrichment.concurrency", d.Enrichment.Concurrency)

	v.SetDefault("journal.dsn", d.Journal.DSN)
	v.SetDefault("log_level", d.LogLevel)
}

// loadConfig decodes the viper state into an EngineConfig.
func loadConfig() (types.EngineConfig, error) {
	var cfg types.EngineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return types.EngineConfig{}, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.Session = cfg.Session.WithDefaults()
	return cfg, nil
}

// newLogger builds the stderr text logger. Unknown levels fall back to warn.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
