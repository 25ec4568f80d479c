// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/courseware-labs/tally/pkg/storage/sqlite"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Assessment aggregation engine",
	Long: `Tally aggregates raw assessment events into tag-weighted metric scores
across the component/lesson/namespace/program hierarchy, with full
provenance for every computed score.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	defaultDBPath := filepath.Join(dataDir(), "tally.db")

	rootCmd.PersistentFlags().String("db", defaultDBPath, "SQLite database path")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	viper.SetEnvPrefix("TALLY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// dataDir returns the tally data directory, honoring TALLY_DATA_DIR.
func dataDir() string {
	if dir := os.Getenv("TALLY_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".tally")
}

// buildLogger constructs the zap logger per the logging flags.
func buildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(viper.GetString("logging.level"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var cfg zap.Config
	if viper.GetString("logging.format") == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// openStore opens the SQLite store at the configured path, creating the
// parent directory when needed.
func openStore(ctx context.Context, logger *zap.Logger) (*sqlite.Store, error) {
	path := viper.GetString("database.path")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return sqlite.NewStore(ctx, path, logger)
}
