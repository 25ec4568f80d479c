// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package scheduler runs periodic full recomputations of auto-computed
// metrics. Event-driven propagation keeps completions fresh for active
// users; the scheduled sweep heals users whose completions went stale
// through metric edits or missed updates.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/courseware-labs/tally/pkg/depcache"
	"github.com/courseware-labs/tally/pkg/storage"
	"github.com/courseware-labs/tally/pkg/types"
)

// Config carries the scheduler's dependencies.
type Config struct {
	Cache    *depcache.Cache
	Entities storage.EntityStore
	Users    storage.UserStore
	Logger   *zap.Logger
}

// Scheduler owns a cron runner and the set of registered refresh jobs.
type Scheduler struct {
	cache    *depcache.Cache
	entities storage.EntityStore
	users    storage.UserStore
	logger   *zap.Logger
	cron     *cron.Cron

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// New creates a scheduler. The cron runner is not started until Start.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.Entities == nil || cfg.Users == nil {
		return nil, fmt.Errorf("entity and user stores are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cache:    cfg.Cache,
		entities: cfg.Entities,
		users:    cfg.Users,
		logger:   logger,
		cron:     cron.New(),
		jobs:     make(map[string]cron.EntryID),
	}, nil
}

// ScheduleRefresh registers a cron job that refreshes every auto-computed
// metric under the namespace on the given schedule. Returns the job ID.
func (s *Scheduler) ScheduleRefresh(spec string, namespaceID types.EntityID) (string, error) {
	jobID := uuid.NewString()

	entryID, err := s.cron.AddFunc(spec, func() {
		ctx := context.Background()
		if err := s.Refresh(ctx, namespaceID); err != nil {
			s.logger.Error("Scheduled refresh failed",
				zap.String("job_id", jobID),
				zap.String("namespace", string(namespaceID)),
				zap.Error(err))
		}
	})
	if err != nil {
		return "", fmt.Errorf("failed to schedule refresh for %s: %w", namespaceID, err)
	}

	s.mu.Lock()
	s.jobs[jobID] = entryID
	s.mu.Unlock()

	s.logger.Info("Scheduled namespace refresh",
		zap.String("job_id", jobID),
		zap.String("namespace", string(namespaceID)),
		zap.String("cron", spec))
	return jobID, nil
}

// Unschedule removes a previously registered job.
func (s *Scheduler) Unschedule(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.jobs[jobID]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, jobID)
	}
}

// Refresh recomputes auto-computed metrics for every known user across
// every lesson of the namespace. Each lesson metric names the component
// metric it consumes; propagating that component metric recomputes the
// lesson metric and any namespace metric stacked on top of it.
func (s *Scheduler) Refresh(ctx context.Context, namespaceID types.EntityID) error {
	namespace, err := s.entities.GetEntity(ctx, types.LevelNamespace, namespaceID)
	if err != nil {
		return fmt.Errorf("fetch namespace %s: %w", namespaceID, err)
	}

	userIDs, err := s.users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if len(userIDs) == 0 {
		s.logger.Debug("No users to refresh", zap.String("namespace", string(namespaceID)))
		return nil
	}

	var refreshed, failed int
	for _, lessonID := range namespace.Children {
		lesson, err := s.entities.GetEntity(ctx, types.LevelLesson, lessonID)
		if err != nil {
			s.logger.Warn("Skipping missing lesson",
				zap.String("lesson", string(lessonID)),
				zap.Error(err))
			continue
		}

		// Component metrics feeding this lesson, deduplicated.
		seen := make(map[string]struct{})
		for _, metric := range lesson.Metrics {
			if metric.Submetric == "" {
				continue
			}
			if _, ok := seen[metric.Submetric]; ok {
				continue
			}
			seen[metric.Submetric] = struct{}{}

			for _, userID := range userIDs {
				if err := ctx.Err(); err != nil {
					return err
				}
				user, err := s.users.GetUser(ctx, userID)
				if err != nil {
					failed++
					s.logger.Warn("Failed to load user",
						zap.String("user", string(userID)),
						zap.Error(err))
					continue
				}
				_, err = s.cache.UpdateAutoComputes(ctx, user, metric.Submetric, lessonID, namespaceID)
				if err != nil {
					failed++
					s.logger.Warn("Failed to refresh completions",
						zap.String("user", string(userID)),
						zap.String("lesson", string(lessonID)),
						zap.String("component_metric", metric.Submetric),
						zap.Error(err))
					continue
				}
				refreshed++
			}
		}
	}

	s.logger.Info("Namespace refresh complete",
		zap.String("namespace", string(namespaceID)),
		zap.Int("refreshed", refreshed),
		zap.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("refresh of %s completed with %d failures", namespaceID, failed)
	}
	return nil
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop halts the cron runner, waiting for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}
