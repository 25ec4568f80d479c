// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package postgres provides a PostgreSQL-backed event store for
// deployments where the assessment event stream is shared across several
// services. Entities and users stay in the document store; only the
// high-volume event table moves here.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // registers the "postgres" driver
	"go.uber.org/zap"

	"github.com/courseware-labs/tally/pkg/storage"
	"github.com/courseware-labs/tally/pkg/types"
)

// EventStore implements storage.EventStore on PostgreSQL.
type EventStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEventStore connects with the given DSN and ensures the schema.
func NewEventStore(ctx context.Context, dsn string, logger *zap.Logger) (*EventStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &EventStore{db: db, logger: logger}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *EventStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS assessment_events (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		lesson TEXT NOT NULL,
		component TEXT NOT NULL,
		component_type TEXT,
		metric_name TEXT NOT NULL,
		score DOUBLE PRECISION NOT NULL,
		time BIGINT NOT NULL,
		tag TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_assessment_events_lesson
		ON assessment_events (lesson, metric_name, time);
	CREATE INDEX IF NOT EXISTS idx_assessment_events_user
		ON assessment_events (user_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// AddEvent records an assessment event. The sequence is assigned by the
// database.
func (s *EventStore) AddEvent(ctx context.Context, ev types.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessment_events
			(id, user_id, lesson, component, component_type, metric_name, score, time, tag)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, string(ev.User), string(ev.Lesson), string(ev.Component),
		ev.ComponentType, ev.MetricName, ev.Score, ev.Time, string(ev.Tag))
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// QueryEvents implements storage.EventStore.
func (s *EventStore) QueryEvents(ctx context.Context, filter storage.EventFilter, dir storage.SortDirection) ([]types.Event, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Lesson != "" {
		conds = append(conds, "lesson = "+arg(string(filter.Lesson)))
	}
	if len(filter.Components) > 0 {
		ph := make([]string, len(filter.Components))
		for i, c := range filter.Components {
			ph[i] = arg(string(c))
		}
		conds = append(conds, "component IN ("+strings.Join(ph, ", ")+")")
	}
	if len(filter.Users) > 0 {
		ph := make([]string, len(filter.Users))
		for i, u := range filter.Users {
			ph[i] = arg(string(u))
		}
		conds = append(conds, "user_id IN ("+strings.Join(ph, ", ")+")")
	}
	if filter.MetricName != "" {
		conds = append(conds, "metric_name = "+arg(filter.MetricName))
	}
	conds = append(conds, "time >= "+arg(filter.Time.Start))
	conds = append(conds, "time <= "+arg(filter.Time.End))

	order := "ORDER BY time ASC, seq ASC"
	if dir == storage.SortDescending {
		order = "ORDER BY time DESC, seq DESC"
	}

	query := `SELECT seq, id, user_id, lesson, component, component_type, metric_name, score, time, tag
		FROM assessment_events WHERE ` + strings.Join(conds, " AND ") + " " + order

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var (
			ev            types.Event
			componentType sql.NullString
			tag           sql.NullString
		)
		err := rows.Scan(&ev.Seq, &ev.ID, &ev.User, &ev.Lesson, &ev.Component,
			&componentType, &ev.MetricName, &ev.Score, &ev.Time, &tag)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if componentType.Valid {
			ev.ComponentType = componentType.String
		}
		if tag.Valid {
			ev.Tag = types.TagID(tag.String)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// ListChildComponents implements storage.EventStore.
func (s *EventStore) ListChildComponents(ctx context.Context, lesson types.EntityID, users []types.UserID) ([]types.EntityID, error) {
	args := []any{string(lesson)}
	query := "SELECT DISTINCT component FROM assessment_events WHERE lesson = $1"
	if len(users) > 0 {
		ph := make([]string, len(users))
		for i, u := range users {
			args = append(args, string(u))
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		query += " AND user_id IN (" + strings.Join(ph, ", ") + ")"
	}
	query += " ORDER BY component ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query components: %w", err)
	}
	defer rows.Close()

	var components []types.EntityID
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan component: %w", err)
		}
		components = append(components, types.EntityID(c))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating components: %w", err)
	}
	return components, nil
}

// Close closes the connection pool.
func (s *EventStore) Close() error {
	return s.db.Close()
}
