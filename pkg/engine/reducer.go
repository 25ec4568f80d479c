// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package engine

import "github.com/courseware-labs/tally/pkg/types"

// reduce applies the metric's rule per (tag, user). A rule that returns
// the missing sentinel yields a missing instance; otherwise the reduced
// instance carries the rule's score, the maximum defined time across the
// inputs, and the input list as its provenance. Reduction never raises.
func (e *Engine) reduce(tagged TaggedUsers, metric *types.Metric, entity types.EntityID) map[types.TagID]map[types.UserID]*types.Instance {
	fn := e.rules.Lookup(metric.Rule.Name)

	out := make(map[types.TagID]map[types.UserID]*types.Instance, len(tagged))
	for tag, byUser := range tagged {
		reduced := make(map[types.UserID]*types.Instance, len(byUser))
		for user, instances := range byUser {
			score := fn(instances, metric.Rule)
			if types.IsMissingScore(score) {
				reduced[user] = types.MissingInstance(metric.Level, entity, tag)
				continue
			}
			var t *int64
			for _, in := range instances {
				t = types.MaxTime(t, in.Time)
			}
			provenance := make([]*types.Instance, len(instances))
			copy(provenance, instances)
			reduced[user] = types.NewInstance(metric.Level, entity, score, t, provenance, tag)
		}
		out[tag] = reduced
	}
	return out
}
