// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/courseware-labs/tally/pkg/courseload"
)

var seedSkipEvents bool

var seedCmd = &cobra.Command{
	Use:   "seed <course.yaml> [course.yaml...]",
	Short: "Load course definitions into the database",
	Long: `Parses course YAML files, validates every metric against the rule
catalog, and writes the program/namespace/lesson tree plus any event
fixtures into the database.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := buildLogger()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		ctx := cmd.Context()
		store, err := openStore(ctx, logger)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		loader := courseload.NewLoader(nil, logger)
		for _, path := range args {
			course, err := loader.LoadFile(path)
			if err != nil {
				return err
			}
			var sink courseload.EventSink
			if !seedSkipEvents {
				sink = store
			}
			if err := loader.Seed(ctx, course, store, sink); err != nil {
				return err
			}
			logger.Info("Loaded course file", zap.String("path", path))
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedSkipEvents, "skip-events", false, "seed entities only, ignoring event fixtures")
	rootCmd.AddCommand(seedCmd)
}
