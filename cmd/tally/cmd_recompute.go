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

	"github.com/courseware-labs/tally/pkg/depcache"
	"github.com/courseware-labs/tally/pkg/engine"
	"github.com/courseware-labs/tally/pkg/rules"
	"github.com/courseware-labs/tally/pkg/types"
)

var (
	recomputeUser      string
	recomputeLesson    string
	recomputeNamespace string
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute <component-metric>",
	Short: "Propagate a component metric into a user's completions",
	Long: `Runs every auto-computed lesson and namespace metric that depends on
the given component metric for one user, persists the updated
completions, and prints them as JSON. This is the same propagation that
fires when a new assessment event arrives.`,
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

		registry := rules.NewRegistry()
		eng, err := engine.New(engine.Config{
			Entities: store,
			Events:   store,
			Rules:    registry,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		cache, err := depcache.New(depcache.Config{
			Engine:   eng,
			Entities: store,
			Users:    store,
			Rules:    registry,
			Logger:   logger,
		})
		if err != nil {
			return err
		}

		user, err := store.GetUser(ctx, types.UserID(recomputeUser))
		if err != nil {
			return err
		}

		updated, err := cache.UpdateAutoComputes(ctx, user, args[0],
			types.EntityID(recomputeLesson), types.EntityID(recomputeNamespace))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(updated.Completions)
	},
}

func init() {
	recomputeCmd.Flags().StringVar(&recomputeUser, "user", "", "user ID to recompute")
	recomputeCmd.Flags().StringVar(&recomputeLesson, "lesson", "", "lesson the component metric belongs to")
	recomputeCmd.Flags().StringVar(&recomputeNamespace, "namespace", "", "namespace containing the lesson")
	_ = recomputeCmd.MarkFlagRequired("user")
	_ = recomputeCmd.MarkFlagRequired("lesson")
	_ = recomputeCmd.MarkFlagRequired("namespace")
	rootCmd.AddCommand(recomputeCmd)
}
