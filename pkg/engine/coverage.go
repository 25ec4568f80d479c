// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package engine

import (
	"context"
	"fmt"

	"github.com/courseware-labs/tally/pkg/types"
)

// childSet is the resolved set of children a metric aggregates over.
// LessonID is the typed side channel that scopes the component loader's
// event query; it is set only when Level is the component level.
type childSet struct {
	Level    types.Level
	IDs      []types.EntityID
	LessonID types.EntityID
}

// resolveCoverage enumerates the concrete children of entity per the
// metric's coverage. Lessons have no stored child list; their components
// are discovered by distinct query over the event table, scoped to the
// requested users.
func (e *Engine) resolveCoverage(ctx context.Context, entity *types.Entity, metric *types.Metric, users []types.UserID) (childSet, error) {
	childLevel, ok := metric.Level.Child()
	if !ok {
		return childSet{}, fmt.Errorf("%w: metric %q targets the component level", types.ErrInvalidMetric, metric.Name)
	}

	if metric.Level == types.LevelLesson {
		components, err := e.events.ListChildComponents(ctx, entity.ID, users)
		if err != nil {
			return childSet{}, fmt.Errorf("list components of lesson %s: %w", entity.ID, err)
		}
		return childSet{
			Level:    types.LevelComponent,
			IDs:      metric.Coverage.Resolve(components),
			LessonID: entity.ID,
		}, nil
	}

	return childSet{
		Level: childLevel,
		IDs:   metric.Coverage.Resolve(entity.Children),
	}, nil
}
