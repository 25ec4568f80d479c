// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/courseware-labs/tally/pkg/types"
)

// MemoryStore is an in-process implementation of every persistence
// contract. It backs tests and embedded single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[types.Level]map[types.EntityID]*types.Entity
	events   []types.Event
	users    map[types.UserID]*types.User
	nextSeq  int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities: make(map[types.Level]map[types.EntityID]*types.Entity),
		users:    make(map[types.UserID]*types.User),
	}
}

// GetEntity implements EntityStore.
func (s *MemoryStore) GetEntity(ctx context.Context, level types.Level, id types.EntityID) (*types.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entities[level][id]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, fmt.Errorf("entity %s/%s: %w", level, id, ErrNotFound)
}

// PutEntity implements EntityWriter.
func (s *MemoryStore) PutEntity(ctx context.Context, entity *types.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entity == nil || !entity.Level.Valid() {
		return fmt.Errorf("put entity: %w", types.ErrInvalidMetric)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entities[entity.Level] == nil {
		s.entities[entity.Level] = make(map[types.EntityID]*types.Entity)
	}
	copied := *entity
	s.entities[entity.Level][entity.ID] = &copied
	return nil
}

// AddEvent records an assessment event, assigning its insertion sequence.
func (s *MemoryStore) AddEvent(ctx context.Context, ev types.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	ev.Seq = s.nextSeq
	s.events = append(s.events, ev)
	return nil
}

// QueryEvents implements EventStore.
func (s *MemoryStore) QueryEvents(ctx context.Context, filter EventFilter, dir SortDirection) ([]types.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	components := make(map[types.EntityID]struct{}, len(filter.Components))
	for _, c := range filter.Components {
		components[c] = struct{}{}
	}
	users := make(map[types.UserID]struct{}, len(filter.Users))
	for _, u := range filter.Users {
		users[u] = struct{}{}
	}

	var out []types.Event
	for _, ev := range s.events {
		if filter.Lesson != "" && ev.Lesson != filter.Lesson {
			continue
		}
		if len(components) > 0 {
			if _, ok := components[ev.Component]; !ok {
				continue
			}
		}
		if len(users) > 0 {
			if _, ok := users[ev.User]; !ok {
				continue
			}
		}
		if filter.MetricName != "" && ev.MetricName != filter.MetricName {
			continue
		}
		if !filter.Time.Contains(ev.Time) {
			continue
		}
		out = append(out, ev)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			if dir == SortAscending {
				return out[i].Time < out[j].Time
			}
			return out[i].Time > out[j].Time
		}
		if dir == SortAscending {
			return out[i].Seq < out[j].Seq
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

// ListChildComponents implements EventStore.
func (s *MemoryStore) ListChildComponents(ctx context.Context, lesson types.EntityID, users []types.UserID) ([]types.EntityID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	scope := make(map[types.UserID]struct{}, len(users))
	for _, u := range users {
		scope[u] = struct{}{}
	}

	seen := make(map[types.EntityID]struct{})
	var out []types.EntityID
	for _, ev := range s.events {
		if ev.Lesson != lesson {
			continue
		}
		if len(scope) > 0 {
			if _, ok := scope[ev.User]; !ok {
				continue
			}
		}
		if _, ok := seen[ev.Component]; ok {
			continue
		}
		seen[ev.Component] = struct{}{}
		out = append(out, ev.Component)
	}
	return out, nil
}

// GetUser implements UserStore. Unknown users are materialized with an
// empty completions map so callers can treat every roster member alike.
func (s *MemoryStore) GetUser(ctx context.Context, id types.UserID) (*types.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		copied := types.User{ID: u.ID, Completions: make(map[string]*types.Instance, len(u.Completions))}
		for k, v := range u.Completions {
			copied.Completions[k] = v
		}
		return &copied, nil
	}
	return types.NewUser(id), nil
}

// SaveUser implements UserStore.
func (s *MemoryStore) SaveUser(ctx context.Context, user *types.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := types.User{ID: user.ID, Completions: make(map[string]*types.Instance, len(user.Completions))}
	for k, v := range user.Completions {
		copied.Completions[k] = v
	}
	s.users[user.ID] = &copied
	return nil
}

// ListUsers implements UserStore.
func (s *MemoryStore) ListUsers(ctx context.Context) ([]types.UserID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.UserID, 0, len(s.users))
	for id := range s.users {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
