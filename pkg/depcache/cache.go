// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package depcache maintains the incremental dependency forest: for every
// (lesson, component-metric) pair it caches the ordered list of
// auto-compute plans a component event must trigger, and it keeps those
// plans current as metrics are created, mutated, and deleted.
package depcache

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/courseware-labs/tally/pkg/engine"
	"github.com/courseware-labs/tally/pkg/rules"
	"github.com/courseware-labs/tally/pkg/storage"
	"github.com/courseware-labs/tally/pkg/types"
)

// Config wires the cache's collaborators.
type Config struct {
	Engine   *engine.Engine
	Entities storage.EntityStore
	Users    storage.UserStore
	Rules    *rules.Registry
	Logger   *zap.Logger
}

// Cache is the process-wide dependency forest. Reads and writes of one
// tree are serialized per forest key; index and tree mutation during
// invalidation take a short exclusive lock over the whole cache.
type Cache struct {
	mu       sync.Mutex
	forest   map[string][]Plan
	index    map[string]struct{}
	keyLocks map[string]*sync.Mutex

	engine   *engine.Engine
	entities storage.EntityStore
	users    storage.UserStore
	rules    *rules.Registry
	logger   *zap.Logger
}

// New creates an empty cache.
func New(cfg Config) (*Cache, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Entities == nil {
		return nil, fmt.Errorf("entity store is required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if cfg.Rules == nil {
		cfg.Rules = rules.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Cache{
		forest:   make(map[string][]Plan),
		index:    make(map[string]struct{}),
		keyLocks: make(map[string]*sync.Mutex),
		engine:   cfg.Engine,
		entities: cfg.Entities,
		users:    cfg.Users,
		rules:    cfg.Rules,
		logger:   cfg.Logger,
	}, nil
}

// keyLock returns the per-tree mutex for a forest key.
func (c *Cache) keyLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.keyLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.keyLocks[key] = lock
	}
	return lock
}

// plansFor returns the cached plan list for (lesson, componentMetric),
// building and storing it on first use.
func (c *Cache) plansFor(ctx context.Context, componentMetric string, lessonID, namespaceID types.EntityID) ([]Plan, error) {
	key := ForestKey(lessonID, componentMetric)

	c.mu.Lock()
	plans, ok := c.forest[key]
	c.mu.Unlock()
	if ok {
		return plans, nil
	}

	lesson, err := c.entities.GetEntity(ctx, types.LevelLesson, lessonID)
	if err != nil {
		return nil, fmt.Errorf("fetch lesson %s: %w", lessonID, err)
	}
	namespace, err := c.entities.GetEntity(ctx, types.LevelNamespace, namespaceID)
	if err != nil {
		return nil, fmt.Errorf("fetch namespace %s: %w", namespaceID, err)
	}

	plans = buildPlans(componentMetric, lesson, namespace)

	c.mu.Lock()
	c.forest[key] = plans
	for _, plan := range plans {
		for _, k := range plan.Keys() {
			c.index[k] = struct{}{}
		}
	}
	c.mu.Unlock()

	c.logger.Debug("Built dependency tree",
		zap.String("key", key),
		zap.Int("plans", len(plans)))
	return plans, nil
}

// UpdateAutoComputes runs every auto-compute plan affected by a component
// event for the given user and persists the resulting aggregates to the
// user's completions map. Plans are not cancelable mid-plan; the user
// save is the final step. The updated user is returned.
func (c *Cache) UpdateAutoComputes(ctx context.Context, user *types.User, componentMetric string, lessonID, namespaceID types.EntityID) (*types.User, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: nil user", types.ErrInvalidMetric)
	}

	key := ForestKey(lessonID, componentMetric)
	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	plans, err := c.plansFor(ctx, componentMetric, lessonID, namespaceID)
	if err != nil {
		return nil, err
	}

	for _, plan := range plans {
		if err := c.runPlan(ctx, user, plan); err != nil {
			return nil, err
		}
	}

	if err := c.users.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("save user %s: %w", user.ID, err)
	}
	return user, nil
}

// runPlan computes one plan and records its aggregates on the user. Dual
// plans compute only the namespace aggregate and extract the lesson-level
// child from its provenance.
func (c *Cache) runPlan(ctx context.Context, user *types.User, plan Plan) error {
	users := []types.UserID{user.ID}

	if plan.NamespaceMetric == nil {
		result, err := c.engine.Compute(ctx, plan.LessonID, plan.LessonMetric, users, engine.Options{})
		if err != nil {
			return fmt.Errorf("auto-compute lesson %s metric %q: %w", plan.LessonID, plan.LessonMetric.Name, err)
		}
		user.SetCompletion(types.CompletionKey(types.LevelLesson, plan.LessonID, plan.LessonMetric.Name), result[user.ID])
		return nil
	}

	result, err := c.engine.Compute(ctx, plan.NamespaceID, plan.NamespaceMetric, users, engine.Options{})
	if err != nil {
		return fmt.Errorf("auto-compute namespace %s metric %q: %w", plan.NamespaceID, plan.NamespaceMetric.Name, err)
	}
	aggregate := result[user.ID]
	user.SetCompletion(types.CompletionKey(types.LevelNamespace, plan.NamespaceID, plan.NamespaceMetric.Name), aggregate)

	if plan.Dual() {
		lessonInstance := findLessonChild(aggregate, plan.LessonID)
		if lessonInstance == nil {
			c.logger.Warn("Lesson instance absent from namespace provenance",
				zap.String("namespace", string(plan.NamespaceID)),
				zap.String("lesson", string(plan.LessonID)))
			return nil
		}
		user.SetCompletion(types.CompletionKey(types.LevelLesson, plan.LessonID, plan.LessonMetric.Name), lessonInstance)
	}
	return nil
}

// findLessonChild locates the lesson-level child of a namespace aggregate
// by entity ID.
func findLessonChild(aggregate *types.Instance, lessonID types.EntityID) *types.Instance {
	if aggregate == nil {
		return nil
	}
	for _, child := range aggregate.Provenance {
		if child.Level == types.LevelLesson && child.Entity == lessonID {
			return child
		}
	}
	return nil
}

// UpdateDependencyCache reacts to a metric mutation. A metric that leaves
// autoCompute is invalidated out of every tree that references it; a
// metric that becomes autoCompute, or a lesson metric whose container
// becomes autoCompute, forces the affected trees to rebuild. Invalid
// input is rejected without mutating state.
func (c *Cache) UpdateDependencyCache(ctx context.Context, level types.Level, entityID types.EntityID, metricName string, autoCompute, containerAutoCompute *bool) error {
	if level != types.LevelLesson && level != types.LevelNamespace {
		return fmt.Errorf("%w: dependency cache tracks lesson and namespace metrics, got %q", types.ErrInvalidMetric, level)
	}
	if entityID == "" || metricName == "" {
		return fmt.Errorf("%w: empty entity or metric name", types.ErrInvalidMetric)
	}

	key := types.CompletionKey(level, entityID, metricName)

	c.mu.Lock()
	_, indexed := c.index[key]
	c.mu.Unlock()

	if indexed && autoCompute != nil && !*autoCompute {
		c.invalidate(key)
		return nil
	}

	becameAuto := autoCompute != nil && *autoCompute
	gainedContainer := level == types.LevelLesson && containerAutoCompute != nil && *containerAutoCompute
	if !becameAuto && !gainedContainer {
		return nil
	}

	if level == types.LevelLesson {
		return c.rebuildForLessonMetric(ctx, entityID, metricName)
	}
	return c.rebuildForNamespaceMetric(ctx, entityID, metricName)
}

// invalidate removes every plan that persists the given aggregate key and
// recomputes the index from the surviving plans.
func (c *Cache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for forestKey, plans := range c.forest {
		kept := plans[:0]
		for _, plan := range plans {
			if !plan.references(key) {
				kept = append(kept, plan)
			}
		}
		c.forest[forestKey] = kept
	}
	c.reindexLocked()
	c.logger.Debug("Invalidated aggregate key", zap.String("key", key))
}

// rebuildForLessonMetric drops the tree the lesson metric joins so the
// next event for its component metric rebuilds it with the new metric.
// The namespace half of the path is only known at event time, so the
// rebuild is deferred rather than eager.
func (c *Cache) rebuildForLessonMetric(ctx context.Context, lessonID types.EntityID, metricName string) error {
	lesson, err := c.entities.GetEntity(ctx, types.LevelLesson, lessonID)
	if err != nil {
		return fmt.Errorf("fetch lesson %s: %w", lessonID, err)
	}
	metric := lesson.MetricByName(metricName)
	if metric == nil {
		return fmt.Errorf("%w: lesson %s has no metric %q", types.ErrInvalidMetric, lessonID, metricName)
	}
	if err := c.rules.Validate(metric.Rule); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.forest, ForestKey(lessonID, metric.Submetric))
	c.reindexLocked()
	return nil
}

// rebuildForNamespaceMetric rebuilds every tree whose component metric
// now feeds the namespace metric: each lesson of the namespace is walked
// for lesson metrics the namespace metric consumes, and the trees for
// their component metrics are replaced wholesale.
func (c *Cache) rebuildForNamespaceMetric(ctx context.Context, namespaceID types.EntityID, metricName string) error {
	namespace, err := c.entities.GetEntity(ctx, types.LevelNamespace, namespaceID)
	if err != nil {
		return fmt.Errorf("fetch namespace %s: %w", namespaceID, err)
	}
	metric := namespace.MetricByName(metricName)
	if metric == nil {
		return fmt.Errorf("%w: namespace %s has no metric %q", types.ErrInvalidMetric, namespaceID, metricName)
	}
	if err := c.rules.Validate(metric.Rule); err != nil {
		return err
	}

	type rebuilt struct {
		key   string
		plans []Plan
	}
	var updates []rebuilt
	for _, lessonID := range namespace.Children {
		lesson, err := c.entities.GetEntity(ctx, types.LevelLesson, lessonID)
		if err != nil {
			return fmt.Errorf("fetch lesson %s: %w", lessonID, err)
		}
		for i := range lesson.Metrics {
			lm := &lesson.Metrics[i]
			if lm.Name != metric.Submetric {
				continue
			}
			updates = append(updates, rebuilt{
				key:   ForestKey(lessonID, lm.Submetric),
				plans: buildPlans(lm.Submetric, lesson, namespace),
			})
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range updates {
		c.forest[u.key] = u.plans
	}
	c.reindexLocked()
	return nil
}

// reindexLocked recomputes the persisted-key index from the forest.
// Callers hold c.mu.
func (c *Cache) reindexLocked() {
	c.index = make(map[string]struct{})
	for _, plans := range c.forest {
		for _, plan := range plans {
			for _, key := range plan.Keys() {
				c.index[key] = struct{}{}
			}
		}
	}
}

// Plans returns a copy of the cached plan list for inspection. The second
// return value reports whether a tree exists for the key.
func (c *Cache) Plans(lessonID types.EntityID, componentMetric string) ([]Plan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	plans, ok := c.forest[ForestKey(lessonID, componentMetric)]
	if !ok {
		return nil, false
	}
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out, true
}

// Indexed reports whether an aggregate key is referenced by any plan.
func (c *Cache) Indexed(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[key]
	return ok
}
