// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/courseware-labs/tally/pkg/storage"
	"github.com/courseware-labs/tally/pkg/types"
)

// componentSlots holds the loaded instances for one lesson's components
// before they are flattened into a tagged-user map. Keeping the component
// dimension until the missing fill runs lets the loader detect users with
// no events anywhere in a component.
type componentSlots struct {
	byComponent map[types.EntityID]map[types.TagID]map[types.UserID][]*types.Instance
	tagCounts   map[types.EntityID]map[types.TagID]int
}

// loadComponents queries raw events for the resolved components, applies
// the multiples policy and the time filter, and fills a missing instance
// for every (component, user) that recorded nothing. The returned map
// carries one or more component-level instances per (tag, user).
func (e *Engine) loadComponents(ctx context.Context, metricName string, cs childSet, users []types.UserID, pol Policy) (TaggedUsers, error) {
	var events []types.Event
	if len(cs.IDs) > 0 {
		dir := storage.SortAscending
		if pol.Multiples == types.MultiplesFirst {
			dir = storage.SortDescending
		}
		var err error
		events, err = e.events.QueryEvents(ctx, storage.EventFilter{
			Lesson:     cs.LessonID,
			Components: cs.IDs,
			Users:      users,
			MetricName: metricName,
			Time:       pol.TimeFilter,
		}, dir)
		if err != nil {
			return nil, fmt.Errorf("query events for lesson %s: %w", cs.LessonID, err)
		}
	}

	tags := observedTagUnion(pol.TagWeights, events)

	slots := componentSlots{
		byComponent: make(map[types.EntityID]map[types.TagID]map[types.UserID][]*types.Instance, len(cs.IDs)),
		tagCounts:   make(map[types.EntityID]map[types.TagID]int, len(cs.IDs)),
	}
	for _, comp := range cs.IDs {
		byTag := make(map[types.TagID]map[types.UserID][]*types.Instance, len(tags))
		for _, tag := range tags {
			byUser := make(map[types.UserID][]*types.Instance, len(users))
			for _, user := range users {
				byUser[user] = []*types.Instance{}
			}
			byTag[tag] = byUser
		}
		slots.byComponent[comp] = byTag
		slots.tagCounts[comp] = make(map[types.TagID]int)
	}

	for _, ev := range events {
		byTag, ok := slots.byComponent[ev.Component]
		if !ok {
			continue
		}
		tag := ev.Tag.OrDefault()
		slots.tagCounts[ev.Component][tag]++
		inst := types.NewInstance(types.LevelComponent, ev.Component, ev.Score, types.TimeOf(ev.Time), nil, tag)

		slot := byTag[tag][ev.User]
		switch pol.Multiples {
		case types.MultiplesLast, types.MultiplesFirst:
			// The query direction makes the wanted event the last write.
			byTag[tag][ev.User] = []*types.Instance{inst}
		case types.MultiplesMax:
			if len(slot) == 0 || inst.Score > slot[0].Score {
				byTag[tag][ev.User] = []*types.Instance{inst}
			}
		case types.MultiplesPassThrough:
			byTag[tag][ev.User] = append(slot, inst)
		default:
			byTag[tag][ev.User] = []*types.Instance{inst}
		}
	}

	// Missing fill: a user with no events anywhere in a component gets one
	// missing instance under the component's dominant tag.
	for _, comp := range cs.IDs {
		dominant := dominantTag(slots.tagCounts[comp])
		byTag := slots.byComponent[comp]
		for _, user := range users {
			seen := false
			for _, tag := range tags {
				if len(byTag[tag][user]) > 0 {
					seen = true
					break
				}
			}
			if !seen {
				byTag[dominant][user] = append(byTag[dominant][user],
					types.MissingInstance(types.LevelComponent, comp, dominant))
			}
		}
	}

	out := NewTaggedUsers()
	out.Ensure(tags, users)
	for _, comp := range cs.IDs {
		for _, tag := range tags {
			for user, instances := range slots.byComponent[comp][tag] {
				if len(instances) > 0 {
					out[tag][user] = append(out[tag][user], instances...)
				}
			}
		}
	}
	return out, nil
}

// observedTagUnion merges the policy's weighted tags, the tags carried by
// events, and the default sentinel into the component loader's tag set.
func observedTagUnion(weights map[types.TagID]float64, events []types.Event) []types.TagID {
	seen := map[types.TagID]struct{}{types.DefaultTag: {}}
	for tag := range weights {
		seen[tag] = struct{}{}
	}
	for _, ev := range events {
		seen[ev.Tag.OrDefault()] = struct{}{}
	}
	out := make([]types.TagID, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sortTags(out)
	return out
}

// dominantTag is the tag with the highest event count for a component,
// with ties broken by tag order. A component with no events at all uses
// the default sentinel.
func dominantTag(counts map[types.TagID]int) types.TagID {
	best := types.DefaultTag
	bestCount := 0
	tags := make([]types.TagID, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sortTags(tags)
	for _, tag := range tags {
		if counts[tag] > bestCount {
			best = tag
			bestCount = counts[tag]
		}
	}
	return best
}

func sortTags(tags []types.TagID) {
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
}
