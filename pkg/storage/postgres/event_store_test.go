// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

//go:build integration

// Requires a reachable PostgreSQL instance; set TALLY_POSTGRES_DSN and
// run with -tags integration.
package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/courseware-labs/tally/pkg/storage"
	"github.com/courseware-labs/tally/pkg/types"
)

func newIntegrationStore(t *testing.T) *EventStore {
	t.Helper()
	dsn := os.Getenv("TALLY_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TALLY_POSTGRES_DSN not set")
	}
	store, err := NewEventStore(context.Background(), dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEventRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newIntegrationStore(t)

	lesson := types.EntityID("it-lesson-" + t.Name())
	require.NoError(t, s.AddEvent(ctx, types.Event{
		ID: "e1", User: "u1", Lesson: lesson, Component: "compX",
		MetricName: "score", Score: 80, Time: 100, Tag: "hw",
	}))
	require.NoError(t, s.AddEvent(ctx, types.Event{
		ID: "e2", User: "u2", Lesson: lesson, Component: "compY",
		MetricName: "score", Score: 60, Time: 200,
	}))

	got, err := s.QueryEvents(ctx, storage.EventFilter{
		Lesson: lesson,
		Time:   types.FullTimeRange(),
	}, storage.SortAscending)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].ID)
	assert.Equal(t, types.TagID("hw"), got[0].Tag)
	assert.Positive(t, got[0].Seq)

	comps, err := s.ListChildComponents(ctx, lesson, []types.UserID{"u1"})
	require.NoError(t, err)
	assert.Equal(t, []types.EntityID{"compX"}, comps)
}
