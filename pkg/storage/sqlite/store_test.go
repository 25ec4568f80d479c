// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/courseware-labs/tally/pkg/storage"
	"github.com/courseware-labs/tally/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := NewStore(ctx, filepath.Join(t.TempDir(), "tally.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEntityRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetEntity(ctx, types.LevelLesson, "L")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	entity := &types.Entity{
		ID:    "L",
		Level: types.LevelLesson,
		Tag:   "core",
		Metrics: []types.Metric{{
			Name:       "grade",
			Level:      types.LevelLesson,
			Coverage:   types.Coverage{Mode: types.CoverageExclude, IDs: []types.EntityID{"b"}},
			Rule:       types.RuleSpec{Name: "dropNLowest", Missing: types.MissingIgnore, Params: []float64{2}},
			Submetric:  "score",
			TagWeights: map[types.TagID]float64{"hw": 1, "exam": 3},
			TimeFilter: &types.TimeRange{Start: 100, End: 200},
			Multiples:  types.MultiplesMax,
		}},
	}
	require.NoError(t, s.PutEntity(ctx, entity))

	got, err := s.GetEntity(ctx, types.LevelLesson, "L")
	require.NoError(t, err)
	assert.Equal(t, entity, got)

	// Upsert replaces the stored document.
	entity.Tag = "elective"
	require.NoError(t, s.PutEntity(ctx, entity))
	got, err = s.GetEntity(ctx, types.LevelLesson, "L")
	require.NoError(t, err)
	assert.Equal(t, types.TagID("elective"), got.Tag)
}

func TestEventQueryAndOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	events := []types.Event{
		{ID: "e1", User: "u1", Lesson: "L", Component: "a", MetricName: "score", Score: 60, Time: 100, Tag: "hw"},
		{ID: "e2", User: "u1", Lesson: "L", Component: "a", MetricName: "score", Score: 90, Time: 100},
		{ID: "e3", User: "u2", Lesson: "L", Component: "b", MetricName: "score", Score: 40, Time: 50},
		{ID: "e4", User: "u1", Lesson: "M", Component: "c", MetricName: "score", Score: 10, Time: 10},
	}
	for _, ev := range events {
		require.NoError(t, s.AddEvent(ctx, ev))
	}

	got, err := s.QueryEvents(ctx, storage.EventFilter{
		Lesson: "L",
		Time:   types.FullTimeRange(),
	}, storage.SortAscending)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Equal times order by insertion sequence.
	assert.Equal(t, []string{"e3", "e1", "e2"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, types.TagID("hw"), got[1].Tag)
	assert.Positive(t, got[0].Seq)

	desc, err := s.QueryEvents(ctx, storage.EventFilter{
		Lesson:     "L",
		Components: []types.EntityID{"a"},
		Users:      []types.UserID{"u1"},
		MetricName: "score",
		Time:       types.FullTimeRange(),
	}, storage.SortDescending)
	require.NoError(t, err)
	require.Len(t, desc, 2)
	assert.Equal(t, "e2", desc[0].ID)

	windowed, err := s.QueryEvents(ctx, storage.EventFilter{
		Lesson: "L",
		Time:   types.TimeRange{Start: 0, End: 60},
	}, storage.SortAscending)
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, "e3", windowed[0].ID)
}

func TestListChildComponents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AddEvent(ctx, types.Event{ID: "e1", User: "u1", Lesson: "L", Component: "b", MetricName: "m"}))
	require.NoError(t, s.AddEvent(ctx, types.Event{ID: "e2", User: "u2", Lesson: "L", Component: "a", MetricName: "m"}))
	require.NoError(t, s.AddEvent(ctx, types.Event{ID: "e3", User: "u1", Lesson: "L", Component: "b", MetricName: "m"}))

	all, err := s.ListChildComponents(ctx, "L", nil)
	require.NoError(t, err)
	assert.Equal(t, []types.EntityID{"a", "b"}, all)

	scoped, err := s.ListChildComponents(ctx, "L", []types.UserID{"u1"})
	require.NoError(t, err)
	assert.Equal(t, []types.EntityID{"b"}, scoped)
}

func TestUserRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Unknown users materialize with an empty completions map.
	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, u.Completions)
	assert.Empty(t, u.Completions)

	leaf := types.NewInstance(types.LevelComponent, "compX", 100, types.TimeOf(10), nil, "")
	u.SetCompletion("lesson-L-grade",
		types.NewInstance(types.LevelLesson, "L", 100, types.TimeOf(10), []*types.Instance{leaf}, ""))
	require.NoError(t, s.SaveUser(ctx, u))

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Contains(t, got.Completions, "lesson-L-grade")
	inst := got.Completions["lesson-L-grade"]
	assert.InDelta(t, 100, inst.Score, 1e-9)
	require.Len(t, inst.Provenance, 1)
	assert.Equal(t, types.EntityID("compX"), inst.Provenance[0].Entity)

	ids, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.UserID{"u1"}, ids)
}
