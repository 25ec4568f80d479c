// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidMetric reports an absent or malformed metric. It is fatal for
// the call that detected it and never mutates state.
var ErrInvalidMetric = errors.New("invalid metric")

// CoverageMode selects how a metric's coverage list is interpreted.
type CoverageMode string

const (
	CoverageAll     CoverageMode = "all"
	CoverageInclude CoverageMode = "include"
	CoverageExclude CoverageMode = "exclude"
)

// Coverage declares which children of an entity a metric aggregates over.
type Coverage struct {
	Mode CoverageMode `json:"mode" yaml:"mode"`
	IDs  []EntityID   `json:"ids,omitempty" yaml:"ids,omitempty"`
}

// Resolve filters the concrete child ID list per the coverage mode.
// Include returns the listed IDs in their declared order, so an include
// list may name a component that has not produced events yet.
func (c Coverage) Resolve(children []EntityID) []EntityID {
	switch c.Mode {
	case CoverageInclude:
		out := make([]EntityID, len(c.IDs))
		copy(out, c.IDs)
		return out
	case CoverageExclude:
		excluded := make(map[EntityID]struct{}, len(c.IDs))
		for _, id := range c.IDs {
			excluded[id] = struct{}{}
		}
		out := make([]EntityID, 0, len(children))
		for _, id := range children {
			if _, ok := excluded[id]; !ok {
				out = append(out, id)
			}
		}
		return out
	default:
		// "all" and the zero value
		out := make([]EntityID, len(children))
		copy(out, children)
		return out
	}
}

// MissingMode controls how a rule treats missing scores: impute them to
// zero before computing, or drop them.
type MissingMode string

const (
	MissingZero   MissingMode = "zero"
	MissingIgnore MissingMode = "ignore"
)

// RuleSpec names a rule from the catalog together with its arguments.
// Missing defaults to "zero" when empty. Params carries the rule-specific
// numeric arguments (e.g. N for dropNLowest, deadline/halving/cap for
// decayedAverage).
type RuleSpec struct {
	Name    string      `json:"name" yaml:"name"`
	Missing MissingMode `json:"missing,omitempty" yaml:"missing,omitempty"`
	Params  []float64   `json:"params,omitempty" yaml:"params,omitempty"`
}

// Mode returns the effective missing-data mode.
func (r RuleSpec) Mode() MissingMode {
	if r.Missing == "" {
		return MissingZero
	}
	return r.Missing
}

// Multiples reconciles multiple events for the same (component, user, tag).
type Multiples string

const (
	MultiplesLast        Multiples = "last"
	MultiplesFirst       Multiples = "first"
	MultiplesMax         Multiples = "max"
	MultiplesPassThrough Multiples = "pass-through"
)

// Valid reports whether m is a known multiples policy.
func (m Multiples) Valid() bool {
	switch m {
	case MultiplesLast, MultiplesFirst, MultiplesMax, MultiplesPassThrough:
		return true
	}
	return false
}

// TimeRange is an inclusive [Start, End] window in milliseconds from epoch.
type TimeRange struct {
	Start int64 `json:"start" yaml:"start"`
	End   int64 `json:"end" yaml:"end"`
}

// FullTimeRange covers all representable event times.
func FullTimeRange() TimeRange {
	return TimeRange{Start: 0, End: math.MaxInt64}
}

// Contains reports whether t falls inside the window.
func (r TimeRange) Contains(t int64) bool {
	return t >= r.Start && t <= r.End
}

// Intersect narrows r by o: max of starts, min of ends. The result may be
// empty (Start > End), which simply matches no events.
func (r TimeRange) Intersect(o TimeRange) TimeRange {
	out := r
	if o.Start > out.Start {
		out.Start = o.Start
	}
	if o.End < out.End {
		out.End = o.End
	}
	return out
}

// Metric specifies how to aggregate a subtree at one level.
type Metric struct {
	Name              string            `json:"name"`
	Level             Level             `json:"level"`
	Coverage          Coverage          `json:"coverage"`
	Rule              RuleSpec          `json:"rule"`
	Submetric         string            `json:"submetric,omitempty"`
	TagWeights        map[TagID]float64 `json:"tagWeights,omitempty"`
	TimeFilter        *TimeRange        `json:"timeFilter,omitempty"`
	Multiples         Multiples         `json:"multiples,omitempty"`
	AutoCompute       bool              `json:"autoCompute,omitempty"`
	VisibleToStudents bool              `json:"visibleToStudents,omitempty"`
}

// Validate checks the structural invariants that every stored metric must
// satisfy. Rule-name existence is checked separately against a registry.
func (m *Metric) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil metric", ErrInvalidMetric)
	}
	if m.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidMetric)
	}
	if !m.Level.Valid() {
		return fmt.Errorf("%w: unknown level %q", ErrInvalidMetric, m.Level)
	}
	if m.Rule.Name == "" {
		return fmt.Errorf("%w: metric %q has no rule", ErrInvalidMetric, m.Name)
	}
	switch m.Rule.Mode() {
	case MissingZero, MissingIgnore:
	default:
		return fmt.Errorf("%w: metric %q has unknown missing mode %q", ErrInvalidMetric, m.Name, m.Rule.Missing)
	}
	if m.Multiples != "" && !m.Multiples.Valid() {
		return fmt.Errorf("%w: metric %q has unknown multiples policy %q", ErrInvalidMetric, m.Name, m.Multiples)
	}
	switch m.Coverage.Mode {
	case CoverageAll, CoverageInclude, CoverageExclude, "":
	default:
		return fmt.Errorf("%w: metric %q has unknown coverage mode %q", ErrInvalidMetric, m.Name, m.Coverage.Mode)
	}
	for tag, w := range m.TagWeights {
		if w < 0 {
			return fmt.Errorf("%w: metric %q has negative weight for tag %q", ErrInvalidMetric, m.Name, tag)
		}
	}
	if m.TimeFilter != nil && m.TimeFilter.Start > m.TimeFilter.End {
		return fmt.Errorf("%w: metric %q has inverted time filter", ErrInvalidMetric, m.Name)
	}
	return nil
}
