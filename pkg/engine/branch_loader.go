// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/courseware-labs/tally/pkg/types"
)

// childBranch is one child entity's contribution to a branch: its tag and
// its per-user aggregate.
type childBranch struct {
	tag       types.TagID
	aggregate map[types.UserID]*types.Instance
}

// loadBranch loads the tagged-user map for one level of the descent. At
// the component level it delegates to the component loader; above it, it
// fetches each child entity, picks the sub-metric, and computes the child
// aggregates concurrently. A child that declares neither the named
// sub-metric nor any metric at all contributes nothing and is dropped.
func (e *Engine) loadBranch(ctx context.Context, metric *types.Metric, cs childSet, users []types.UserID, opts Options, pol Policy) (TaggedUsers, error) {
	if cs.Level == types.LevelComponent {
		return e.loadComponents(ctx, metric.Submetric, cs, users, pol)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxFanout)
	branches := make([]*childBranch, len(cs.IDs))
	errsChan := make(chan error, len(cs.IDs))

	for i, id := range cs.IDs {
		wg.Add(1)
		go func(idx int, childID types.EntityID) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errsChan <- ctx.Err()
				return
			}

			child, err := e.entities.GetEntity(ctx, cs.Level, childID)
			if err != nil {
				errsChan <- fmt.Errorf("fetch child %s/%s: %w", cs.Level, childID, err)
				return
			}

			sub, err := pickSubmetric(child, metric.Submetric)
			if err != nil {
				e.logger.Warn("Child excluded from aggregation",
					zap.String("child", string(childID)),
					zap.Error(err))
				return
			}

			aggregate, err := e.computeEntity(ctx, child, sub, users, opts)
			if err != nil {
				errsChan <- fmt.Errorf("compute child %s/%s: %w", cs.Level, childID, err)
				return
			}

			branches[idx] = &childBranch{tag: child.Tag.OrDefault(), aggregate: aggregate}
		}(i, id)
	}

	wg.Wait()
	close(errsChan)
	for err := range errsChan {
		if err != nil {
			return nil, err
		}
	}

	out := NewTaggedUsers()
	for _, branch := range branches {
		if branch == nil {
			continue
		}
		for user, inst := range branch.aggregate {
			out.Append(branch.tag, user, inst)
		}
	}
	return out, nil
}

// pickSubmetric selects the metric to consume from a child entity. When
// the parent does not name one, the child's first metric in declared
// order is used. A child that cannot supply the metric yields
// ErrMissingSubmetric.
func pickSubmetric(child *types.Entity, name string) (*types.Metric, error) {
	if name != "" {
		if m := child.MetricByName(name); m != nil {
			return m, nil
		}
		return nil, fmt.Errorf("%w: entity %s declares no metric %q", ErrMissingSubmetric, child.ID, name)
	}
	if m := child.FirstMetric(); m != nil {
		return m, nil
	}
	return nil, fmt.Errorf("%w: entity %s declares no metrics", ErrMissingSubmetric, child.ID)
}
