// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the corpus-engine CLI: the pipeline
// that indexes fetched health-economics papers and derives the benchmark
// artifact stores from the index.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/corpus-engine/internal/logging"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// log is the process logger, built once per invocation.
var log zerolog.Logger

// rootCmd is the base command for the corpus-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "corpus-engine",
	Short: "Benchmark corpus pipeline for health-economics papers",
	Long: `corpus-engine curates a benchmark corpus for evaluating language models on
health-economics research tasks. Fetched papers are stored under stable
identifiers, indexed into a metadata catalog with a per-stage processing
ledger, and three derived stores are generated from the index: extraction
queries, evidence-synthesis queries, and labeling queries.

Each pipeline operation is a subcommand: ingest, run, status, and purge.
Repeated runs are idempotent; the ledger tracks which stages already
produced output for each paper.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log = logging.New(loggingConfig(cmd))
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./corpus-engine.yaml or ~/.config/corpus-engine/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "base directory for pipeline data (default: data)")
	rootCmd.PersistentFlags().String("log-level", "", "minimum log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: json or console")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("corpus-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "corpus-engine"))
		}
	}

	viper.SetDefault("store.data_dir", "data")
	viper.SetDefault("ingest.input_dir", filepath.Join("data", "fetched"))
	viper.SetDefault("pipeline.workers", 4)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
	viper.SetDefault("logging.output", "stderr")

	viper.SetEnvPrefix("CORPUS_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// engineConfig assembles the pipeline configuration from the config file,
// environment, and flags. Flags win when set.
func engineConfig(cmd *cobra.Command) types.Config {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Warn().Err(err).Msg("config file could not be decoded; using defaults")
		cfg = types.Config{}
	}

	if cfg.Store.DataDir == "" {
		cfg.Store.DataDir = viper.GetString("store.data_dir")
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.Store.DataDir = dataDir
	}
	if cfg.Ingest.InputDir == "" {
		cfg.Ingest.InputDir = viper.GetString("ingest.input_dir")
	}
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = viper.GetInt("pipeline.workers")
	}
	cfg.Logging = loggingConfig(cmd)

	return cfg
}

func loggingConfig(cmd *cobra.Command) types.LoggingConfig {
	cfg := types.LoggingConfig{
		Level:  viper.GetString("logging.level"),
		Format: viper.GetString("logging.format"),
		Output: viper.GetString("logging.output"),
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Format = format
	}
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
