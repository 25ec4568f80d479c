// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package types contains the shared data model of the aggregation engine:
// entity levels, identifier newtypes, the score domain, entities, metrics,
// assessment events, instances, and users. It sits below every other package
// and breaks import cycles between the engine, the stores, and the cache.
package types

import "fmt"

// Level identifies a position in the fixed entity hierarchy.
// The hierarchy is component ⊂ lesson ⊂ namespace ⊂ program, with an
// optional global level above program.
type Level string

const (
	LevelComponent Level = "component"
	LevelLesson    Level = "lesson"
	LevelNamespace Level = "namespace"
	LevelProgram   Level = "program"
	LevelGlobal    Level = "global"
)

// levelOrder maps each level to its depth, components lowest.
var levelOrder = map[Level]int{
	LevelComponent: 0,
	LevelLesson:    1,
	LevelNamespace: 2,
	LevelProgram:   3,
	LevelGlobal:    4,
}

// Valid reports whether l is one of the five known levels.
func (l Level) Valid() bool {
	_, ok := levelOrder[l]
	return ok
}

// Child returns the level directly below l. The second return value is
// false for the component level, which has no children.
func (l Level) Child() (Level, bool) {
	switch l {
	case LevelGlobal:
		return LevelProgram, true
	case LevelProgram:
		return LevelNamespace, true
	case LevelNamespace:
		return LevelLesson, true
	case LevelLesson:
		return LevelComponent, true
	default:
		return "", false
	}
}

// DistanceToComponent returns the number of levels between l and the
// component level. It panics on an unknown level; callers validate first.
func (l Level) DistanceToComponent() int {
	d, ok := levelOrder[l]
	if !ok {
		panic(fmt.Sprintf("types: unknown level %q", l))
	}
	return d
}

// EntityID identifies an entity at any level of the hierarchy.
type EntityID string

// UserID identifies a user.
type UserID string

// TagID is a grouping label for events and entities. Aggregation happens
// per tag, then weights across tags.
type TagID string

// DefaultTag is the reserved sentinel used when no tag is provided.
const DefaultTag TagID = "_default_tag"

// OrDefault returns t, or DefaultTag when t is empty.
func (t TagID) OrDefault() TagID {
	if t == "" {
		return DefaultTag
	}
	return t
}

// MissingScore marks a score as absent. It lives outside the valid [0,100]
// score domain and must never be treated as a numeric zero unless a rule's
// missing-data mode explicitly imputes it.
const MissingScore float64 = -999

// IsMissingScore reports whether s is the missing-score sentinel.
func IsMissingScore(s float64) bool {
	return s == MissingScore
}

// Entity is one node of the hierarchy as returned by an EntityStore.
// Components are not stored as entities; they are discovered by distinct
// query over the event table, so Children is always one level below Level
// and empty at the lesson level.
type Entity struct {
	ID       EntityID `json:"id"`
	Level    Level    `json:"level"`
	Children []EntityID `json:"children,omitempty"`
	Metrics  []Metric   `json:"metrics"`
	Tag      TagID      `json:"tag,omitempty"`
}

// MetricByName returns the entity's metric with the given name, or nil.
func (e *Entity) MetricByName(name string) *Metric {
	for i := range e.Metrics {
		if e.Metrics[i].Name == name {
			return &e.Metrics[i]
		}
	}
	return nil
}

// FirstMetric returns the entity's first metric in declared order, or nil
// when the entity declares none. It is the tie-break used when a parent
// metric does not name a sub-metric.
func (e *Entity) FirstMetric() *Metric {
	if len(e.Metrics) == 0 {
		return nil
	}
	return &e.Metrics[0]
}
