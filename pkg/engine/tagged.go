// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package engine

import (
	"sort"

	"github.com/courseware-labs/tally/pkg/types"
)

// TaggedUsers groups loaded instances by tag, then by user. Explicit
// nested maps with newtype keys keep tag and user keys from being
// confused.
type TaggedUsers map[types.TagID]map[types.UserID][]*types.Instance

// NewTaggedUsers returns an empty container.
func NewTaggedUsers() TaggedUsers {
	return make(TaggedUsers)
}

// Append adds an instance under (tag, user).
func (t TaggedUsers) Append(tag types.TagID, user types.UserID, in *types.Instance) {
	byUser, ok := t[tag]
	if !ok {
		byUser = make(map[types.UserID][]*types.Instance)
		t[tag] = byUser
	}
	byUser[user] = append(byUser[user], in)
}

// Ensure fills every (tag, user) slot so that the tag closure and user
// closure invariants hold: each listed tag exists with an entry (possibly
// empty) for each listed user.
func (t TaggedUsers) Ensure(tags []types.TagID, users []types.UserID) {
	for _, tag := range tags {
		byUser, ok := t[tag]
		if !ok {
			byUser = make(map[types.UserID][]*types.Instance, len(users))
			t[tag] = byUser
		}
		for _, user := range users {
			if _, ok := byUser[user]; !ok {
				byUser[user] = []*types.Instance{}
			}
		}
	}
}

// Tags returns the container's tag keys in sorted order. Sibling child
// computations finish in arbitrary order; canonicalizing by tag keeps
// results repeatable.
func (t TaggedUsers) Tags() []types.TagID {
	out := make([]types.TagID, 0, len(t))
	for tag := range t {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// tagUnion merges weight keys and observed tags into the branch's tag
// set, falling back to the default tag so a branch with no children still
// reduces to a missing instance per user.
func tagUnion(weights map[types.TagID]float64, observed TaggedUsers) []types.TagID {
	seen := make(map[types.TagID]struct{})
	for tag := range weights {
		seen[tag] = struct{}{}
	}
	for tag := range observed {
		seen[tag] = struct{}{}
	}
	if len(seen) == 0 {
		seen[types.DefaultTag] = struct{}{}
	}
	out := make([]types.TagID, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
