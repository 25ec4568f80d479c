// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelChild(t *testing.T) {
	tests := []struct {
		level Level
		child Level
		ok    bool
	}{
		{LevelGlobal, LevelProgram, true},
		{LevelProgram, LevelNamespace, true},
		{LevelNamespace, LevelLesson, true},
		{LevelLesson, LevelComponent, true},
		{LevelComponent, "", false},
	}
	for _, tt := range tests {
		child, ok := tt.level.Child()
		assert.Equal(t, tt.ok, ok, "level %s", tt.level)
		assert.Equal(t, tt.child, child, "level %s", tt.level)
	}
}

func TestLevelDistanceToComponent(t *testing.T) {
	assert.Equal(t, 0, LevelComponent.DistanceToComponent())
	assert.Equal(t, 1, LevelLesson.DistanceToComponent())
	assert.Equal(t, 4, LevelGlobal.DistanceToComponent())
	assert.Panics(t, func() { Level("bogus").DistanceToComponent() })
}

func TestTagOrDefault(t *testing.T) {
	assert.Equal(t, DefaultTag, TagID("").OrDefault())
	assert.Equal(t, TagID("homework"), TagID("homework").OrDefault())
}

func TestMissingScoreSentinel(t *testing.T) {
	assert.True(t, IsMissingScore(MissingScore))
	assert.False(t, IsMissingScore(0))
	assert.False(t, IsMissingScore(100))
}

func TestEntityMetricLookup(t *testing.T) {
	e := &Entity{
		ID:    "lesson-1",
		Level: LevelLesson,
		Metrics: []Metric{
			{Name: "grade", Level: LevelLesson, Rule: RuleSpec{Name: "average"}},
			{Name: "effort", Level: LevelLesson, Rule: RuleSpec{Name: "average"}},
		},
	}

	require.NotNil(t, e.MetricByName("effort"))
	assert.Equal(t, "effort", e.MetricByName("effort").Name)
	assert.Nil(t, e.MetricByName("absent"))

	first := e.FirstMetric()
	require.NotNil(t, first)
	assert.Equal(t, "grade", first.Name)

	empty := &Entity{ID: "bare", Level: LevelLesson}
	assert.Nil(t, empty.FirstMetric())
}

func TestCompletionKey(t *testing.T) {
	key := CompletionKey(LevelLesson, "lesson-1", "grade")
	assert.Equal(t, "lesson-lesson-1-grade", key)
}

func TestSetCompletionInitializesMap(t *testing.T) {
	u := &User{ID: "u1"}
	in := NewInstance(LevelLesson, "lesson-1", 80, nil, []*Instance{}, "")
	u.SetCompletion(CompletionKey(LevelLesson, "lesson-1", "grade"), in)
	require.NotNil(t, u.Completions)
	assert.Same(t, in, u.Completions["lesson-lesson-1-grade"])
}
