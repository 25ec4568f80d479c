// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package courseload loads declarative course definitions from YAML and
// seeds them into an entity store: the program/namespace/lesson tree,
// each entity's metrics, and optional assessment-event fixtures.
package courseload

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/courseware-labs/tally/pkg/rules"
	"github.com/courseware-labs/tally/pkg/storage"
	"github.com/courseware-labs/tally/pkg/types"
)

// CourseYAML is the YAML document structure for one course definition.
type CourseYAML struct {
	Program ProgramYAML `yaml:"program"`
	Events  []EventYAML `yaml:"events,omitempty"`
}

type ProgramYAML struct {
	ID         string          `yaml:"id"`
	Tag        string          `yaml:"tag,omitempty"`
	Metrics    []MetricYAML    `yaml:"metrics,omitempty"`
	Namespaces []NamespaceYAML `yaml:"namespaces"`
}

type NamespaceYAML struct {
	ID      string       `yaml:"id"`
	Tag     string       `yaml:"tag,omitempty"`
	Metrics []MetricYAML `yaml:"metrics,omitempty"`
	Lessons []LessonYAML `yaml:"lessons"`
}

type LessonYAML struct {
	ID      string       `yaml:"id"`
	Tag     string       `yaml:"tag,omitempty"`
	Metrics []MetricYAML `yaml:"metrics,omitempty"`
}

type MetricYAML struct {
	Name              string             `yaml:"name"`
	Coverage          CoverageYAML       `yaml:"coverage,omitempty"`
	Rule              RuleYAML           `yaml:"rule"`
	Submetric         string             `yaml:"submetric,omitempty"`
	TagWeights        map[string]float64 `yaml:"tag_weights,omitempty"`
	TimeFilter        []int64            `yaml:"time_filter,omitempty,flow"`
	Multiples         string             `yaml:"multiples,omitempty"`
	AutoCompute       bool               `yaml:"auto_compute,omitempty"`
	VisibleToStudents bool               `yaml:"visible_to_students,omitempty"`
}

type CoverageYAML struct {
	Mode string   `yaml:"mode,omitempty"`
	IDs  []string `yaml:"ids,omitempty,flow"`
}

type RuleYAML struct {
	Name    string    `yaml:"name"`
	Missing string    `yaml:"missing,omitempty"`
	Params  []float64 `yaml:"params,omitempty,flow"`
}

type EventYAML struct {
	User      string  `yaml:"user"`
	Lesson    string  `yaml:"lesson"`
	Component string  `yaml:"component"`
	Metric    string  `yaml:"metric"`
	Score     float64 `yaml:"score"`
	Time      int64   `yaml:"time"`
	Tag       string  `yaml:"tag,omitempty"`
}

// Loader parses and validates course YAML and writes it to a store.
type Loader struct {
	registry *rules.Registry
	logger   *zap.Logger
}

// NewLoader creates a loader validating rule names against the registry.
func NewLoader(registry *rules.Registry, logger *zap.Logger) *Loader {
	if registry == nil {
		registry = rules.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{registry: registry, logger: logger}
}

// LoadFile parses and validates one course definition file.
func (l *Loader) LoadFile(path string) (*CourseYAML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read course file: %w", err)
	}

	var course CourseYAML
	if err := yaml.Unmarshal(data, &course); err != nil {
		return nil, fmt.Errorf("failed to parse course file %s: %w", path, err)
	}

	if err := l.validate(&course); err != nil {
		return nil, fmt.Errorf("invalid course file %s: %w", path, err)
	}
	return &course, nil
}

// validate checks structure: IDs present, every metric well formed, and
// every rule name known to the registry.
func (l *Loader) validate(course *CourseYAML) error {
	if course.Program.ID == "" {
		return fmt.Errorf("%w: program id is required", types.ErrInvalidMetric)
	}

	check := func(level types.Level, owner string, specs []MetricYAML) error {
		for _, my := range specs {
			m := metricFromYAML(my, level)
			if err := m.Validate(); err != nil {
				return fmt.Errorf("metric %q of %s: %w", my.Name, owner, err)
			}
			if err := l.registry.Validate(m.Rule); err != nil {
				return fmt.Errorf("metric %q of %s: %w", my.Name, owner, err)
			}
		}
		return nil
	}

	if err := check(types.LevelProgram, course.Program.ID, course.Program.Metrics); err != nil {
		return err
	}
	for _, ns := range course.Program.Namespaces {
		if ns.ID == "" {
			return fmt.Errorf("%w: namespace id is required", types.ErrInvalidMetric)
		}
		if err := check(types.LevelNamespace, ns.ID, ns.Metrics); err != nil {
			return err
		}
		for _, lesson := range ns.Lessons {
			if lesson.ID == "" {
				return fmt.Errorf("%w: lesson id is required in namespace %s", types.ErrInvalidMetric, ns.ID)
			}
			if err := check(types.LevelLesson, lesson.ID, lesson.Metrics); err != nil {
				return err
			}
		}
	}
	return nil
}

// Seed writes the course's entities to the store and its event fixtures
// to the event sink, when one is provided.
func (l *Loader) Seed(ctx context.Context, course *CourseYAML, entities storage.EntityWriter, events EventSink) error {
	program := &types.Entity{
		ID:      types.EntityID(course.Program.ID),
		Level:   types.LevelProgram,
		Tag:     types.TagID(course.Program.Tag),
		Metrics: metricsFromYAML(course.Program.Metrics, types.LevelProgram),
	}
	for _, ns := range course.Program.Namespaces {
		program.Children = append(program.Children, types.EntityID(ns.ID))
	}
	if err := entities.PutEntity(ctx, program); err != nil {
		return fmt.Errorf("seed program %s: %w", program.ID, err)
	}

	for _, ns := range course.Program.Namespaces {
		namespace := &types.Entity{
			ID:      types.EntityID(ns.ID),
			Level:   types.LevelNamespace,
			Tag:     types.TagID(ns.Tag),
			Metrics: metricsFromYAML(ns.Metrics, types.LevelNamespace),
		}
		for _, lesson := range ns.Lessons {
			namespace.Children = append(namespace.Children, types.EntityID(lesson.ID))
		}
		if err := entities.PutEntity(ctx, namespace); err != nil {
			return fmt.Errorf("seed namespace %s: %w", namespace.ID, err)
		}

		for _, lessonYAML := range ns.Lessons {
			lesson := &types.Entity{
				ID:      types.EntityID(lessonYAML.ID),
				Level:   types.LevelLesson,
				Tag:     types.TagID(lessonYAML.Tag),
				Metrics: metricsFromYAML(lessonYAML.Metrics, types.LevelLesson),
			}
			if err := entities.PutEntity(ctx, lesson); err != nil {
				return fmt.Errorf("seed lesson %s: %w", lesson.ID, err)
			}
		}
	}

	if events != nil {
		for _, ev := range course.Events {
			err := events.AddEvent(ctx, types.Event{
				ID:         uuid.NewString(),
				User:       types.UserID(ev.User),
				Lesson:     types.EntityID(ev.Lesson),
				Component:  types.EntityID(ev.Component),
				MetricName: ev.Metric,
				Score:      ev.Score,
				Time:       ev.Time,
				Tag:        types.TagID(ev.Tag),
			})
			if err != nil {
				return fmt.Errorf("seed event for user %s: %w", ev.User, err)
			}
		}
	}

	l.logger.Info("Seeded course",
		zap.String("program", course.Program.ID),
		zap.Int("namespaces", len(course.Program.Namespaces)),
		zap.Int("events", len(course.Events)))
	return nil
}

// EventSink accepts event fixtures during seeding.
type EventSink interface {
	AddEvent(ctx context.Context, ev types.Event) error
}

func metricsFromYAML(specs []MetricYAML, level types.Level) []types.Metric {
	out := make([]types.Metric, 0, len(specs))
	for _, my := range specs {
		out = append(out, metricFromYAML(my, level))
	}
	return out
}

func metricFromYAML(my MetricYAML, level types.Level) types.Metric {
	m := types.Metric{
		Name:  my.Name,
		Level: level,
		Coverage: types.Coverage{
			Mode: types.CoverageMode(my.Coverage.Mode),
		},
		Rule: types.RuleSpec{
			Name:    my.Rule.Name,
			Missing: types.MissingMode(my.Rule.Missing),
			Params:  my.Rule.Params,
		},
		Submetric:         my.Submetric,
		Multiples:         types.Multiples(my.Multiples),
		AutoCompute:       my.AutoCompute,
		VisibleToStudents: my.VisibleToStudents,
	}
	if m.Coverage.Mode == "" {
		m.Coverage.Mode = types.CoverageAll
	}
	for _, id := range my.Coverage.IDs {
		m.Coverage.IDs = append(m.Coverage.IDs, types.EntityID(id))
	}
	if len(my.TagWeights) > 0 {
		m.TagWeights = make(map[types.TagID]float64, len(my.TagWeights))
		for tag, w := range my.TagWeights {
			m.TagWeights[types.TagID(tag)] = w
		}
	}
	if len(my.TimeFilter) == 2 {
		m.TimeFilter = &types.TimeRange{Start: my.TimeFilter[0], End: my.TimeFilter[1]}
	}
	return m
}
