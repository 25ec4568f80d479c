// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package engine implements the hierarchical, tag-weighted, rule-driven
// aggregation pipeline: coverage resolution, recursive branch loading
// terminating at the component loader, per-tag reduction, and cross-tag
// weighting. One Compute call reduces per-user component events into one
// provenance-carrying instance per user at the requested level.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/courseware-labs/tally/pkg/rules"
	"github.com/courseware-labs/tally/pkg/storage"
	"github.com/courseware-labs/tally/pkg/types"
)

// ErrMissingSubmetric reports a named sub-metric that no child entity
// declares. It is non-fatal: the child is excluded and the call continues.
var ErrMissingSubmetric = errors.New("missing submetric")

// defaultMaxFanout bounds concurrent child computations per call so a
// wide entity tree cannot overwhelm the event store.
const defaultMaxFanout = 8

// Config wires the engine's collaborators.
type Config struct {
	Entities storage.EntityStore
	Events   storage.EventStore
	Rules    *rules.Registry
	Logger   *zap.Logger
	// MaxFanout bounds concurrent child computations; 0 means the default.
	MaxFanout int
}

// Engine computes aggregates over the entity tree. It holds no mutable
// state of its own; all state lives in the stores.
type Engine struct {
	entities  storage.EntityStore
	events    storage.EventStore
	rules     *rules.Registry
	logger    *zap.Logger
	maxFanout int
}

// New creates an engine. The entity and event stores are required; the
// rule registry defaults to the built-in catalog and the logger to a nop.
func New(cfg Config) (*Engine, error) {
	if cfg.Entities == nil {
		return nil, fmt.Errorf("entity store is required")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if cfg.Rules == nil {
		cfg.Rules = rules.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxFanout <= 0 {
		cfg.MaxFanout = defaultMaxFanout
	}
	return &Engine{
		entities:  cfg.Entities,
		events:    cfg.Events,
		rules:     cfg.Rules,
		logger:    cfg.Logger,
		maxFanout: cfg.MaxFanout,
	}, nil
}

// Compute aggregates the metric over the subtree rooted at entityID and
// returns exactly one instance per requested user. Component-level
// metrics are never top-level targets; passing one is a programming
// error. The call is cancelable through ctx: in-flight child computations
// are cancelled and no partial state is committed.
func (e *Engine) Compute(ctx context.Context, entityID types.EntityID, metric *types.Metric, users []types.UserID, opts Options) (map[types.UserID]*types.Instance, error) {
	if err := metric.Validate(); err != nil {
		return nil, err
	}
	if metric.Level == types.LevelComponent {
		return nil, fmt.Errorf("%w: metric %q targets the component level", types.ErrInvalidMetric, metric.Name)
	}

	entity, err := e.entities.GetEntity(ctx, metric.Level, entityID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", metric.Level, entityID, err)
	}

	return e.computeEntity(ctx, entity, metric, users, opts)
}

// computeEntity runs one level of the descent for an already-fetched
// entity. The policy is recomputed here so each level's metric overrides
// apply while the caller options remain the outer bound.
func (e *Engine) computeEntity(ctx context.Context, entity *types.Entity, metric *types.Metric, users []types.UserID, opts Options) (map[types.UserID]*types.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pol := MakePolicy(opts, metric)

	cs, err := e.resolveCoverage(ctx, entity, metric, users)
	if err != nil {
		return nil, err
	}

	tagged, err := e.loadBranch(ctx, metric, cs, users, opts, pol)
	if err != nil {
		return nil, err
	}

	tags := tagUnion(pol.TagWeights, tagged)
	tagged.Ensure(tags, users)

	reduced := e.reduce(tagged, metric, entity.ID)
	return e.weight(reduced, pol, metric.Level, entity.ID, users)
}
