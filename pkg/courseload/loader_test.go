// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package courseload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/courseware-labs/tally/pkg/rules"
	"github.com/courseware-labs/tally/pkg/storage"
	"github.com/courseware-labs/tally/pkg/types"
)

const sampleCourse = `
program:
  id: prog-1
  metrics:
    - name: overall
      rule: {name: average, missing: ignore}
      submetric: course-grade
  namespaces:
    - id: ns-1
      metrics:
        - name: course-grade
          rule: {name: average}
          submetric: grade
          auto_compute: true
      lessons:
        - id: lesson-1
          tag: core
          metrics:
            - name: grade
              rule: {name: dropNLowest, missing: zero, params: [1]}
              submetric: score
              coverage: {mode: exclude, ids: [practice]}
              tag_weights: {hw: 1, exam: 3}
              time_filter: [0, 9999]
              multiples: max
              auto_compute: true
events:
  - {user: u1, lesson: lesson-1, component: compX, metric: score, score: 80, time: 1000, tag: hw}
  - {user: u2, lesson: lesson-1, component: compX, metric: score, score: 60, time: 2000}
`

func writeCourse(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "course.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	loader := NewLoader(rules.NewRegistry(), zaptest.NewLogger(t))
	course, err := loader.LoadFile(writeCourse(t, sampleCourse))
	require.NoError(t, err)

	assert.Equal(t, "prog-1", course.Program.ID)
	require.Len(t, course.Program.Namespaces, 1)
	require.Len(t, course.Program.Namespaces[0].Lessons, 1)
	assert.Len(t, course.Events, 2)

	lesson := course.Program.Namespaces[0].Lessons[0]
	require.Len(t, lesson.Metrics, 1)
	m := lesson.Metrics[0]
	assert.Equal(t, "dropNLowest", m.Rule.Name)
	assert.Equal(t, []float64{1}, m.Rule.Params)
	assert.Equal(t, "exclude", m.Coverage.Mode)
	assert.Equal(t, []int64{0, 9999}, m.TimeFilter)
	assert.True(t, m.AutoCompute)
}

func TestLoadFileRejectsUnknownRule(t *testing.T) {
	content := `
program:
  id: prog-1
  namespaces:
    - id: ns-1
      lessons:
        - id: lesson-1
          metrics:
            - name: grade
              rule: {name: median}
`
	loader := NewLoader(rules.NewRegistry(), zaptest.NewLogger(t))
	_, err := loader.LoadFile(writeCourse(t, content))
	assert.ErrorIs(t, err, rules.ErrUnknownRule)
}

func TestLoadFileRejectsMissingIDs(t *testing.T) {
	loader := NewLoader(rules.NewRegistry(), zaptest.NewLogger(t))

	_, err := loader.LoadFile(writeCourse(t, "program: {id: \"\"}"))
	assert.ErrorIs(t, err, types.ErrInvalidMetric)

	content := `
program:
  id: prog-1
  namespaces:
    - id: ""
      lessons: []
`
	_, err = loader.LoadFile(writeCourse(t, content))
	assert.ErrorIs(t, err, types.ErrInvalidMetric)
}

func TestLoadFileRejectsMalformedMetric(t *testing.T) {
	content := `
program:
  id: prog-1
  namespaces:
    - id: ns-1
      lessons:
        - id: lesson-1
          metrics:
            - name: grade
              rule: {name: average}
              time_filter: [200, 100]
`
	loader := NewLoader(rules.NewRegistry(), zaptest.NewLogger(t))
	_, err := loader.LoadFile(writeCourse(t, content))
	assert.ErrorIs(t, err, types.ErrInvalidMetric)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	loader := NewLoader(rules.NewRegistry(), zaptest.NewLogger(t))

	course, err := loader.LoadFile(writeCourse(t, sampleCourse))
	require.NoError(t, err)
	require.NoError(t, loader.Seed(ctx, course, store, store))

	program, err := store.GetEntity(ctx, types.LevelProgram, "prog-1")
	require.NoError(t, err)
	assert.Equal(t, []types.EntityID{"ns-1"}, program.Children)
	require.Len(t, program.Metrics, 1)
	assert.Equal(t, types.LevelProgram, program.Metrics[0].Level)

	namespace, err := store.GetEntity(ctx, types.LevelNamespace, "ns-1")
	require.NoError(t, err)
	assert.Equal(t, []types.EntityID{"lesson-1"}, namespace.Children)
	assert.True(t, namespace.Metrics[0].AutoCompute)

	lesson, err := store.GetEntity(ctx, types.LevelLesson, "lesson-1")
	require.NoError(t, err)
	assert.Equal(t, types.TagID("core"), lesson.Tag)
	m := lesson.Metrics[0]
	assert.Equal(t, types.Coverage{Mode: types.CoverageExclude, IDs: []types.EntityID{"practice"}}, m.Coverage)
	assert.Equal(t, map[types.TagID]float64{"hw": 1, "exam": 3}, m.TagWeights)
	require.NotNil(t, m.TimeFilter)
	assert.Equal(t, types.TimeRange{Start: 0, End: 9999}, *m.TimeFilter)
	assert.Equal(t, types.MultiplesMax, m.Multiples)

	events, err := store.QueryEvents(ctx, storage.EventFilter{
		Lesson: "lesson-1",
		Time:   types.FullTimeRange(),
	}, storage.SortAscending)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.NotEmpty(t, events[0].ID, "fixture events are assigned IDs")
	assert.Equal(t, types.TagID("hw"), events[0].Tag)
}

func TestSeedWithoutEventSink(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	loader := NewLoader(rules.NewRegistry(), zaptest.NewLogger(t))

	course, err := loader.LoadFile(writeCourse(t, sampleCourse))
	require.NoError(t, err)
	require.NoError(t, loader.Seed(ctx, course, store, nil))

	events, err := store.QueryEvents(ctx, storage.EventFilter{
		Lesson: "lesson-1",
		Time:   types.FullTimeRange(),
	}, storage.SortAscending)
	require.NoError(t, err)
	assert.Empty(t, events)
}
