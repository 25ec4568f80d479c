// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package engine

import "github.com/courseware-labs/tally/pkg/types"

// Options are the caller-supplied aggregation options for one compute
// call. They form the outer bound: metric-level overrides are merged on
// top at every recursion level.
type Options struct {
	TimeFilter *types.TimeRange
	Multiples  types.Multiples
	TagWeights map[types.TagID]float64
}

// Policy is the merged set of aggregation options in effect at one level
// of the descent. A nil TagWeights means uniform weighting over observed
// tags.
type Policy struct {
	TimeFilter types.TimeRange
	Multiples  types.Multiples
	TagWeights map[types.TagID]float64
}

// MakePolicy merges defaults, caller options, and metric overrides, in
// that order. TagWeights are replaced wholesale, the time filter is
// intersected (max of starts, min of ends), and multiples is replaced
// when provided. The policy is recomputed at each recursion step so that
// metric overrides apply per level while caller options remain the outer
// bound.
func MakePolicy(opts Options, m *types.Metric) Policy {
	p := Policy{
		TimeFilter: types.FullTimeRange(),
		Multiples:  types.MultiplesLast,
	}

	if opts.TimeFilter != nil {
		p.TimeFilter = *opts.TimeFilter
	}
	if opts.Multiples != "" {
		p.Multiples = opts.Multiples
	}
	if opts.TagWeights != nil {
		p.TagWeights = copyWeights(opts.TagWeights)
	}

	if m != nil {
		if m.TagWeights != nil {
			p.TagWeights = copyWeights(m.TagWeights)
		}
		if m.TimeFilter != nil {
			p.TimeFilter = p.TimeFilter.Intersect(*m.TimeFilter)
		}
		if m.Multiples != "" {
			p.Multiples = m.Multiples
		}
	}

	return p
}

func copyWeights(w map[types.TagID]float64) map[types.TagID]float64 {
	out := make(map[types.TagID]float64, len(w))
	for tag, weight := range w {
		out[tag] = weight
	}
	return out
}
