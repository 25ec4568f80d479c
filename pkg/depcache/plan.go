// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package depcache

import (
	"fmt"

	"github.com/courseware-labs/tally/pkg/types"
)

// Plan is one auto-compute task triggered by a component-level event.
// Plans are immutable once built; the cache replaces plan lists wholesale.
//
// Three shapes exist:
//   - lesson-only: LessonMetric set, NamespaceMetric nil — an autoCompute
//     lesson metric with no autoCompute parent.
//   - namespace-only: NamespaceMetric set, LessonMetric nil — the
//     intermediate lesson metric is not autoCompute.
//   - dual: both set — the lesson aggregate is extracted from the
//     namespace computation's provenance instead of being recomputed.
type Plan struct {
	LessonID        types.EntityID
	LessonMetric    *types.Metric
	NamespaceID     types.EntityID
	NamespaceMetric *types.Metric
}

// Dual reports whether the plan persists both levels from one
// namespace computation.
func (p Plan) Dual() bool {
	return p.LessonMetric != nil && p.NamespaceMetric != nil
}

// Keys returns the completion keys the plan persists.
func (p Plan) Keys() []string {
	var keys []string
	if p.NamespaceMetric != nil {
		keys = append(keys, types.CompletionKey(types.LevelNamespace, p.NamespaceID, p.NamespaceMetric.Name))
	}
	if p.LessonMetric != nil {
		keys = append(keys, types.CompletionKey(types.LevelLesson, p.LessonID, p.LessonMetric.Name))
	}
	return keys
}

// references reports whether the plan persists the given aggregate key.
func (p Plan) references(key string) bool {
	for _, k := range p.Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// ForestKey identifies one dependency tree: all plans triggered by events
// for a component metric inside a lesson.
func ForestKey(lessonID types.EntityID, componentMetric string) string {
	return fmt.Sprintf("%s-%s", lessonID, componentMetric)
}

// buildPlans applies the construction rules to one (componentMetric,
// lesson, namespace) triple: every lesson metric consuming the component
// metric is paired with every autoCompute namespace metric consuming it
// in turn; a lesson metric with no autoCompute namespace parents yields a
// lesson-only plan when it is itself autoCompute.
func buildPlans(componentMetric string, lesson, namespace *types.Entity) []Plan {
	var plans []Plan
	for i := range lesson.Metrics {
		lm := &lesson.Metrics[i]
		if lm.Submetric != componentMetric {
			continue
		}

		var nsMetrics []*types.Metric
		for j := range namespace.Metrics {
			nm := &namespace.Metrics[j]
			if nm.Submetric == lm.Name && nm.AutoCompute {
				nsMetrics = append(nsMetrics, nm)
			}
		}

		if len(nsMetrics) == 0 {
			if lm.AutoCompute {
				plans = append(plans, Plan{LessonID: lesson.ID, LessonMetric: lm})
			}
			continue
		}

		for _, nm := range nsMetrics {
			plan := Plan{
				LessonID:        lesson.ID,
				NamespaceID:     namespace.ID,
				NamespaceMetric: nm,
			}
			if lm.AutoCompute {
				plan.LessonMetric = lm
			}
			plans = append(plans, plan)
		}
	}
	return plans
}
