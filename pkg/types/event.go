// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

// Event is one raw assessment record produced by the surrounding system.
// The engine only ever reads events; it never writes them.
type Event struct {
	ID            string   `json:"id"`
	User          UserID   `json:"user"`
	Lesson        EntityID `json:"lesson"`
	Component     EntityID `json:"component"`
	ComponentType string   `json:"componentType,omitempty"`
	MetricName    string   `json:"metricName"`
	Score         float64  `json:"score"`
	Time          int64    `json:"time"`
	Tag           TagID    `json:"tag,omitempty"`

	// Seq is the store's insertion order. Events with equal Time are
	// ordered by Seq so multiples resolution is repeatable across runs.
	Seq int64 `json:"seq"`
}
