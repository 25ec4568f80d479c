// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/courseware-labs/tally/pkg/depcache"
	"github.com/courseware-labs/tally/pkg/engine"
	"github.com/courseware-labs/tally/pkg/rules"
	"github.com/courseware-labs/tally/pkg/storage"
	"github.com/courseware-labs/tally/pkg/types"
)

func newTestScheduler(t *testing.T) (*Scheduler, *storage.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	require.NoError(t, store.PutEntity(ctx, &types.Entity{
		ID:    "L",
		Level: types.LevelLesson,
		Metrics: []types.Metric{{
			Name:        "grade",
			Level:       types.LevelLesson,
			Rule:        types.RuleSpec{Name: "average", Missing: types.MissingZero},
			Submetric:   "score",
			AutoCompute: true,
		}},
	}))
	require.NoError(t, store.PutEntity(ctx, &types.Entity{
		ID:       "NS",
		Level:    types.LevelNamespace,
		Children: []types.EntityID{"L"},
		Metrics: []types.Metric{{
			Name:        "course-grade",
			Level:       types.LevelNamespace,
			Rule:        types.RuleSpec{Name: "average", Missing: types.MissingIgnore},
			Submetric:   "grade",
			AutoCompute: true,
		}},
	}))

	logger := zaptest.NewLogger(t)
	registry := rules.NewRegistry()
	eng, err := engine.New(engine.Config{Entities: store, Events: store, Rules: registry, Logger: logger})
	require.NoError(t, err)
	cache, err := depcache.New(depcache.Config{Engine: eng, Entities: store, Users: store, Rules: registry, Logger: logger})
	require.NoError(t, err)
	sched, err := New(Config{Cache: cache, Entities: store, Users: store, Logger: logger})
	require.NoError(t, err)
	return sched, store
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	store := storage.NewMemoryStore()
	_, err = New(Config{Entities: store, Users: store})
	assert.Error(t, err)
}

func TestRefreshRecomputesKnownUsers(t *testing.T) {
	sched, store := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, store.AddEvent(ctx, types.Event{
		ID: "e1", User: "u1", Lesson: "L", Component: "compX",
		MetricName: "score", Score: 90, Time: 10,
	}))
	// Only saved users are part of the roster.
	require.NoError(t, store.SaveUser(ctx, types.NewUser("u1")))

	require.NoError(t, sched.Refresh(ctx, "NS"))

	u, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Contains(t, u.Completions, "lesson-L-grade")
	require.Contains(t, u.Completions, "namespace-NS-course-grade")
	assert.InDelta(t, 90, u.Completions["lesson-L-grade"].Score, 1e-9)
	assert.InDelta(t, 90, u.Completions["namespace-NS-course-grade"].Score, 1e-9)
}

func TestRefreshWithEmptyRoster(t *testing.T) {
	sched, _ := newTestScheduler(t)
	assert.NoError(t, sched.Refresh(context.Background(), "NS"))
}

func TestRefreshUnknownNamespace(t *testing.T) {
	sched, _ := newTestScheduler(t)
	err := sched.Refresh(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScheduleRefreshAndUnschedule(t *testing.T) {
	sched, _ := newTestScheduler(t)

	jobID, err := sched.ScheduleRefresh("@every 1h", "NS")
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	_, err = sched.ScheduleRefresh("not a cron spec", "NS")
	assert.Error(t, err)

	sched.Unschedule(jobID)
	sched.Unschedule("unknown-job") // no-op

	sched.Start()
	sched.Stop()
}
