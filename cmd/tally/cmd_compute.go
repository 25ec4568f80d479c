// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/courseware-labs/tally/pkg/engine"
	"github.com/courseware-labs/tally/pkg/rules"
	"github.com/courseware-labs/tally/pkg/types"
)

var (
	computeLevel  string
	computeMetric string
	computeUsers  []string
)

var computeCmd = &cobra.Command{
	Use:   "compute <entity-id>",
	Short: "Compute a metric for one entity and a set of users",
	Long: `Computes the named metric of an entity for the given users and prints
the resulting instances, including provenance, as JSON.`,
	Args: cobra.ExactArgs(1),
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

		level := types.Level(computeLevel)
		entityID := types.EntityID(args[0])

		entity, err := store.GetEntity(ctx, level, entityID)
		if err != nil {
			return err
		}
		metric := entity.MetricByName(computeMetric)
		if metric == nil {
			return fmt.Errorf("entity %s has no metric %q", entityID, computeMetric)
		}

		eng, err := engine.New(engine.Config{
			Entities: store,
			Events:   store,
			Rules:    rules.NewRegistry(),
			Logger:   logger,
		})
		if err != nil {
			return err
		}

		users := make([]types.UserID, 0, len(computeUsers))
		for _, u := range computeUsers {
			users = append(users, types.UserID(u))
		}

		results, err := eng.Compute(ctx, entityID, metric, users, engine.Options{})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	computeCmd.Flags().StringVar(&computeLevel, "level", string(types.LevelLesson), "entity level (lesson, namespace, program, global)")
	computeCmd.Flags().StringVar(&computeMetric, "metric", "", "metric name defined on the entity")
	computeCmd.Flags().StringSliceVar(&computeUsers, "users", nil, "user IDs to compute for")
	_ = computeCmd.MarkFlagRequired("metric")
	_ = computeCmd.MarkFlagRequired("users")
	rootCmd.AddCommand(computeCmd)
}
