// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseware-labs/tally/pkg/storage"
	"github.com/courseware-labs/tally/pkg/types"
)

func putNamespace(t *testing.T, store *storage.MemoryStore, id types.EntityID, children []types.EntityID, metrics ...types.Metric) {
	t.Helper()
	require.NoError(t, store.PutEntity(context.Background(), &types.Entity{
		ID:       id,
		Level:    types.LevelNamespace,
		Children: children,
		Metrics:  metrics,
	}))
}

func namespaceGrade(submetric string) types.Metric {
	return types.Metric{
		Name:      "course-grade",
		Level:     types.LevelNamespace,
		Coverage:  types.Coverage{Mode: types.CoverageAll},
		Rule:      types.RuleSpec{Name: "average", Missing: types.MissingIgnore},
		Submetric: submetric,
	}
}

func TestComputeNamespaceAveragesLessons(t *testing.T) {
	store := storage.NewMemoryStore()
	putLesson(t, store, "L1", lessonGrade())
	putLesson(t, store, "L2", lessonGrade())
	nsMetric := namespaceGrade("grade")
	putNamespace(t, store, "NS", []types.EntityID{"L1", "L2"}, nsMetric)
	addEvent(t, store, "u1", "L1", "c1", 100, 10, "")
	addEvent(t, store, "u1", "L2", "c2", 50, 20, "")

	eng := newTestEngine(t, store)
	got, err := eng.Compute(context.Background(), "NS", &nsMetric, []types.UserID{"u1"}, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 75, got["u1"].Score, 1e-9)
	require.NotNil(t, got["u1"].Time)
	assert.Equal(t, int64(20), *got["u1"].Time)
}

// Provenance depth equals the number of levels descended; leaves carry
// nil provenance.
func TestComputeNamespaceProvenanceDepth(t *testing.T) {
	store := storage.NewMemoryStore()
	putLesson(t, store, "L1", lessonGrade())
	nsMetric := namespaceGrade("grade")
	putNamespace(t, store, "NS", []types.EntityID{"L1"}, nsMetric)
	addEvent(t, store, "u1", "L1", "c1", 90, 10, "")

	eng := newTestEngine(t, store)
	got, err := eng.Compute(context.Background(), "NS", &nsMetric, []types.UserID{"u1"}, Options{})
	require.NoError(t, err)

	ns := got["u1"]
	require.Len(t, ns.Provenance, 1)
	assert.Equal(t, types.LevelLesson, ns.Provenance[0].Level)
	assert.Equal(t, types.EntityID("L1"), ns.Provenance[0].Entity)

	lesson := ns.Provenance[0]
	require.Len(t, lesson.Provenance, 1)
	leaf := lesson.Provenance[0]
	assert.Equal(t, types.LevelComponent, leaf.Level)
	assert.Nil(t, leaf.Provenance, "component instances are leaves")
}

// When the parent metric names no sub-metric, each child's first metric
// in declared order is used.
func TestComputeSubmetricTieBreak(t *testing.T) {
	store := storage.NewMemoryStore()
	putLesson(t, store, "L1", lessonGrade(), types.Metric{
		Name:      "effort",
		Level:     types.LevelLesson,
		Rule:      types.RuleSpec{Name: "binaryProportion"},
		Submetric: "score",
	})
	nsMetric := namespaceGrade("")
	putNamespace(t, store, "NS", []types.EntityID{"L1"}, nsMetric)
	addEvent(t, store, "u1", "L1", "c1", 80, 10, "")

	eng := newTestEngine(t, store)
	got, err := eng.Compute(context.Background(), "NS", &nsMetric, []types.UserID{"u1"}, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 80, got["u1"].Score, 1e-9, "first declared metric (grade) should be used")
}

// A child that declares neither the named sub-metric nor any metric is
// dropped; when every child is dropped the result is missing.
func TestComputeChildrenWithoutMetrics(t *testing.T) {
	store := storage.NewMemoryStore()
	putLesson(t, store, "bare") // no metrics at all
	putLesson(t, store, "L1", lessonGrade())
	addEvent(t, store, "u1", "L1", "c1", 60, 10, "")

	eng := newTestEngine(t, store)

	t.Run("dropped child is excluded", func(t *testing.T) {
		nsMetric := namespaceGrade("grade")
		putNamespace(t, store, "NS", []types.EntityID{"L1", "bare"}, nsMetric)
		got, err := eng.Compute(context.Background(), "NS", &nsMetric, []types.UserID{"u1"}, Options{})
		require.NoError(t, err)
		assert.InDelta(t, 60, got["u1"].Score, 1e-9)
	})

	t.Run("all children dropped yields missing", func(t *testing.T) {
		nsMetric := namespaceGrade("grade")
		putNamespace(t, store, "NS2", []types.EntityID{"bare"}, nsMetric)
		got, err := eng.Compute(context.Background(), "NS2", &nsMetric, []types.UserID{"u1"}, Options{})
		require.NoError(t, err)
		require.Contains(t, got, types.UserID("u1"))
		assert.True(t, got["u1"].IsMissing())
	})
}

// Lesson entities carry a tag; the namespace weighs its lessons by tag.
func TestComputeNamespaceTaggedLessons(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.PutEntity(context.Background(), &types.Entity{
		ID:      "L1",
		Level:   types.LevelLesson,
		Metrics: []types.Metric{lessonGrade()},
		Tag:     "core",
	}))
	require.NoError(t, store.PutEntity(context.Background(), &types.Entity{
		ID:      "L2",
		Level:   types.LevelLesson,
		Metrics: []types.Metric{lessonGrade()},
		Tag:     "elective",
	}))
	nsMetric := namespaceGrade("grade")
	nsMetric.TagWeights = map[types.TagID]float64{"core": 3, "elective": 1}
	putNamespace(t, store, "NS", []types.EntityID{"L1", "L2"}, nsMetric)
	addEvent(t, store, "u1", "L1", "c1", 100, 10, "")
	addEvent(t, store, "u1", "L2", "c2", 60, 20, "")

	eng := newTestEngine(t, store)
	got, err := eng.Compute(context.Background(), "NS", &nsMetric, []types.UserID{"u1"}, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 90, got["u1"].Score, 1e-9) // (100*3 + 60*1) / 4
}

func TestPickSubmetric(t *testing.T) {
	child := &types.Entity{
		ID:    "L1",
		Level: types.LevelLesson,
		Metrics: []types.Metric{
			{Name: "grade", Level: types.LevelLesson, Rule: types.RuleSpec{Name: "average"}},
			{Name: "effort", Level: types.LevelLesson, Rule: types.RuleSpec{Name: "average"}},
		},
	}
	named, err := pickSubmetric(child, "effort")
	require.NoError(t, err)
	assert.Equal(t, "effort", named.Name)

	first, err := pickSubmetric(child, "")
	require.NoError(t, err)
	assert.Equal(t, "grade", first.Name)

	_, err = pickSubmetric(child, "absent")
	assert.ErrorIs(t, err, ErrMissingSubmetric)

	_, err = pickSubmetric(&types.Entity{ID: "bare"}, "")
	assert.ErrorIs(t, err, ErrMissingSubmetric)
}
