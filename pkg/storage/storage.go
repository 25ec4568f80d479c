// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package storage defines the persistence contracts the engine consumes.
// Concrete backends live in the sqlite and postgres subpackages; an
// in-memory implementation backs tests and embedded use.
package storage

import (
	"context"
	"errors"

	"github.com/courseware-labs/tally/pkg/types"
)

// ErrNotFound reports a missing entity or user document.
var ErrNotFound = errors.New("not found")

// SortDirection orders event query results by (time, seq).
type SortDirection int

const (
	SortAscending SortDirection = iota
	SortDescending
)

// EventFilter selects events. Nil/empty fields match everything; Users and
// Components are treated as "in" sets.
type EventFilter struct {
	Lesson     types.EntityID
	Components []types.EntityID
	Users      []types.UserID
	MetricName string
	Time       types.TimeRange
}

// EntityStore fetches entities of the hierarchy. Implementations are
// read-only from the engine's point of view during a computation.
type EntityStore interface {
	// GetEntity returns the entity at (level, id) or ErrNotFound.
	GetEntity(ctx context.Context, level types.Level, id types.EntityID) (*types.Entity, error)
}

// EventStore queries raw assessment events.
type EventStore interface {
	// QueryEvents returns events matching the filter, ordered by
	// (time, seq) in the requested direction.
	QueryEvents(ctx context.Context, filter EventFilter, dir SortDirection) ([]types.Event, error)

	// ListChildComponents returns the distinct components that appear in
	// events for the lesson, optionally scoped to the given users.
	ListChildComponents(ctx context.Context, lesson types.EntityID, users []types.UserID) ([]types.EntityID, error)
}

// UserStore loads and persists user documents.
type UserStore interface {
	GetUser(ctx context.Context, id types.UserID) (*types.User, error)
	SaveUser(ctx context.Context, user *types.User) error
	// ListUsers returns all known user IDs, for batch recomputation.
	ListUsers(ctx context.Context) ([]types.UserID, error)
}

// EntityWriter extends EntityStore with the mutations the seeding surface
// needs. The engine itself never writes entities.
type EntityWriter interface {
	EntityStore
	PutEntity(ctx context.Context, entity *types.Entity) error
}
