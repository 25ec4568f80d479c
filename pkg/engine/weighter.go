// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package engine

import (
	"sort"

	"github.com/courseware-labs/tally/pkg/types"
)

// effectiveWeights resolves the weights used to combine per-tag
// aggregates. When the policy lists at least one positive weight, the
// listed weights apply verbatim and an unlisted tag inherits the default
// tag's weight, or 0 if the default tag is unlisted too. Without any
// positive weight, every observed tag weighs 1.
func effectiveWeights(configured map[types.TagID]float64, tags []types.TagID) map[types.TagID]float64 {
	anyPositive := false
	for _, w := range configured {
		if w > 0 {
			anyPositive = true
			break
		}
	}

	out := make(map[types.TagID]float64, len(tags))
	for _, tag := range tags {
		if !anyPositive {
			out[tag] = 1
			continue
		}
		if w, ok := configured[tag]; ok {
			out[tag] = w
		} else if w, ok := configured[types.DefaultTag]; ok {
			out[tag] = w
		} else {
			out[tag] = 0
		}
	}
	return out
}

// weight combines the per-tag reduced instances into one aggregate per
// user. A present-but-missing tag instance still consumes its weight
// slot, imputed to zero. The aggregate's provenance joins the provenance
// of every tag instance for the user; its time is the maximum across
// tags. A zero total weight, or a user whose every tag instance is
// missing, yields a missing instance.
func (e *Engine) weight(reduced map[types.TagID]map[types.UserID]*types.Instance, pol Policy, level types.Level, entity types.EntityID, users []types.UserID) (map[types.UserID]*types.Instance, error) {
	tags := make([]types.TagID, 0, len(reduced))
	for tag := range reduced {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	weights := effectiveWeights(pol.TagWeights, tags)

	out := make(map[types.UserID]*types.Instance, len(users))
	for _, user := range users {
		numerator := 0.0
		denominator := 0.0
		scoredAny := false
		var t *int64
		joined := types.NewInstance(level, entity, 0, nil, []*types.Instance{}, "")

		for _, tag := range tags {
			inst := reduced[tag][user]
			if inst == nil {
				continue
			}
			w := weights[tag]
			if !inst.IsMissing() {
				numerator += inst.Score * w
				t = types.MaxTime(t, inst.Time)
				scoredAny = true
			}
			denominator += w
			if err := types.JoinProvenances(joined, inst); err != nil {
				return nil, err
			}
		}

		if denominator == 0 || !scoredAny {
			out[user] = types.MissingInstance(level, entity, "")
			continue
		}
		joined.Score = numerator / denominator
		joined.Time = t
		out[user] = joined
	}
	return out, nil
}
