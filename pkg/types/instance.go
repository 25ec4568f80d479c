// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"errors"
	"fmt"
)

// ErrInvariant reports a runtime assertion failure inside the engine, such
// as joining provenances of instances that belong to different entities.
// It indicates a bug, never bad input.
var ErrInvariant = errors.New("invariant violation")

// Instance is one scored-or-missing aggregation result with provenance.
//
// Time is the maximum event time in the subtree, or nil when the subtree
// holds no events. Provenance is the ordered list of child instances that
// produced this one: nil at the component level, and an empty non-nil list
// for a missing instance at any higher level. Tag is set only when the
// instance carries a non-default tag, so downstream code can distinguish
// "explicitly tagged" from "default" without comparing sentinel strings.
type Instance struct {
	Level      Level       `json:"level"`
	Entity     EntityID    `json:"entity"`
	Score      float64     `json:"score"`
	Time       *int64      `json:"time,omitempty"`
	Provenance []*Instance `json:"provenance"`
	Tag        TagID       `json:"tag,omitempty"`
}

// NewInstance builds a scored instance. The tag is recorded only when it
// is non-empty and different from the default sentinel.
func NewInstance(level Level, entity EntityID, score float64, t *int64, provenance []*Instance, tag TagID) *Instance {
	in := &Instance{
		Level:      level,
		Entity:     entity,
		Score:      score,
		Time:       t,
		Provenance: provenance,
	}
	if tag != "" && tag != DefaultTag {
		in.Tag = tag
	}
	return in
}

// MissingInstance builds a missing instance for the given node. Component
// instances are leaves and carry nil provenance; missing instances at any
// higher level carry an empty provenance list.
func MissingInstance(level Level, entity EntityID, tag TagID) *Instance {
	var provenance []*Instance
	if level != LevelComponent {
		provenance = []*Instance{}
	}
	return NewInstance(level, entity, MissingScore, nil, provenance, tag)
}

// IsMissing reports whether the instance carries the missing-score sentinel.
func (in *Instance) IsMissing() bool {
	return in == nil || IsMissingScore(in.Score)
}

// EffectiveTag returns the instance's tag, or the default sentinel when
// the instance is untagged.
func (in *Instance) EffectiveTag() TagID {
	return in.Tag.OrDefault()
}

// JoinProvenances appends sibling's provenance children to base's. Both
// instances must describe the same logical node; joining across entities
// or levels is a bug and returns ErrInvariant.
func JoinProvenances(base, sibling *Instance) error {
	if base == nil || sibling == nil {
		return fmt.Errorf("%w: join with nil instance", ErrInvariant)
	}
	if base.Level != sibling.Level || base.Entity != sibling.Entity {
		return fmt.Errorf("%w: join across nodes %s/%s and %s/%s",
			ErrInvariant, base.Level, base.Entity, sibling.Level, sibling.Entity)
	}
	if base.Level == LevelComponent {
		return fmt.Errorf("%w: component instances carry no provenance", ErrInvariant)
	}
	if base.Provenance == nil {
		base.Provenance = []*Instance{}
	}
	base.Provenance = append(base.Provenance, sibling.Provenance...)
	return nil
}

// MaxTime returns the later of two optional times.
func MaxTime(a, b *int64) *int64 {
	if a == nil {
		return b
	}
	if b == nil || *a >= *b {
		return a
	}
	return b
}

// TimeOf is a convenience for building optional times from literals.
func TimeOf(t int64) *int64 {
	return &t
}
