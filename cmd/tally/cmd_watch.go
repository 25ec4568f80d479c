// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/courseware-labs/tally/pkg/courseload"
	"github.com/courseware-labs/tally/pkg/depcache"
	"github.com/courseware-labs/tally/pkg/engine"
	"github.com/courseware-labs/tally/pkg/rules"
	"github.com/courseware-labs/tally/pkg/scheduler"
	"github.com/courseware-labs/tally/pkg/types"
)

var (
	watchCron       string
	watchNamespaces []string
)

var watchCmd = &cobra.Command{
	Use:   "watch <course-dir>",
	Short: "Watch course files and run scheduled recomputation",
	Long: `Watches a directory of course YAML files, reseeding the database on
change. With --cron, also schedules periodic recomputation of every
auto-computed metric in the given namespaces. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := buildLogger()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx, logger)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		loader := courseload.NewLoader(nil, logger)
		watcher, err := courseload.NewWatcher(loader, store, store, logger)
		if err != nil {
			return err
		}
		defer watcher.Close()

		if err := watcher.Watch(args[0]); err != nil {
			return err
		}

		if watchCron != "" && len(watchNamespaces) > 0 {
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
			sched, err := scheduler.New(scheduler.Config{
				Cache:    cache,
				Entities: store,
				Users:    store,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			for _, ns := range watchNamespaces {
				if _, err := sched.ScheduleRefresh(watchCron, types.EntityID(ns)); err != nil {
					return err
				}
			}
			sched.Start()
			defer sched.Stop()
		}

		err = watcher.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchCron, "cron", "", "cron schedule for periodic recomputation (e.g. \"@every 15m\")")
	watchCmd.Flags().StringSliceVar(&watchNamespaces, "namespaces", nil, "namespace IDs to recompute on the schedule")
	rootCmd.AddCommand(watchCmd)
}
