// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import "fmt"

// User is the slice of a user document the engine reads and writes: the
// per-user mapping from completion keys to persisted aggregate instances.
type User struct {
	ID          UserID               `json:"id"`
	Completions map[string]*Instance `json:"completions"`
}

// NewUser returns a user with an initialized completions map.
func NewUser(id UserID) *User {
	return &User{ID: id, Completions: make(map[string]*Instance)}
}

// CompletionKey is the persisted-aggregate key "<level>-<entityId>-<metricName>".
func CompletionKey(level Level, entity EntityID, metricName string) string {
	return fmt.Sprintf("%s-%s-%s", level, entity, metricName)
}

// SetCompletion records an aggregate under its completion key, creating
// the map on first write.
func (u *User) SetCompletion(key string, in *Instance) {
	if u.Completions == nil {
		u.Completions = make(map[string]*Instance)
	}
	u.Completions[key] = in
}
