// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package sqlite persists the entity tree, assessment events, and user
// completions in a single SQLite database. Entities and completions are
// stored as JSON documents; events are relational so the component
// loader's filters and distinct queries stay in SQL.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "github.com/courseware-labs/tally/internal/sqlitedriver" // registers "sqlite3" driver
	"github.com/courseware-labs/tally/pkg/storage"
	"github.com/courseware-labs/tally/pkg/types"
)

// Store implements storage.EntityWriter, storage.EventStore, and
// storage.UserStore on SQLite. Uses WAL mode for concurrent read/write
// access.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewStore opens (or creates) the database at dbPath and initializes the
// schema.
func NewStore(ctx context.Context, dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &Store{db: db, logger: logger}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates the tables if they don't exist.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		level TEXT NOT NULL,
		id TEXT NOT NULL,
		doc TEXT NOT NULL,
		PRIMARY KEY (level, id)
	);

	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		user TEXT NOT NULL,
		lesson TEXT NOT NULL,
		component TEXT NOT NULL,
		component_type TEXT,
		metric_name TEXT NOT NULL,
		score REAL NOT NULL,
		time INTEGER NOT NULL,
		tag TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_lesson ON events(lesson, metric_name, time);
	CREATE INDEX IF NOT EXISTS idx_events_user ON events(user);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		completions TEXT NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// GetEntity implements storage.EntityStore.
func (s *Store) GetEntity(ctx context.Context, level types.Level, id types.EntityID) (*types.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT doc FROM entities WHERE level = ? AND id = ?", string(level), string(id)).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entity %s/%s: %w", level, id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entity: %w", err)
	}

	var entity types.Entity
	if err := json.Unmarshal([]byte(doc), &entity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity %s/%s: %w", level, id, err)
	}
	return &entity, nil
}

// PutEntity implements storage.EntityWriter.
func (s *Store) PutEntity(ctx context.Context, entity *types.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (level, id, doc) VALUES (?, ?, ?)
		 ON CONFLICT(level, id) DO UPDATE SET doc = excluded.doc`,
		string(entity.Level), string(entity.ID), string(doc))
	if err != nil {
		return fmt.Errorf("failed to upsert entity: %w", err)
	}
	return nil
}

// AddEvent records an assessment event. The store assigns the sequence.
func (s *Store) AddEvent(ctx context.Context, ev types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, user, lesson, component, component_type, metric_name, score, time, tag)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.User), string(ev.Lesson), string(ev.Component),
		ev.ComponentType, ev.MetricName, ev.Score, ev.Time, string(ev.Tag))
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// QueryEvents implements storage.EventStore. Results are ordered by
// (time, seq) so multiples resolution is repeatable across runs.
func (s *Store) QueryEvents(ctx context.Context, filter storage.EventFilter, dir storage.SortDirection) ([]types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		conds []string
		args  []any
	)
	if filter.Lesson != "" {
		conds = append(conds, "lesson = ?")
		args = append(args, string(filter.Lesson))
	}
	if len(filter.Components) > 0 {
		conds = append(conds, "component IN ("+placeholders(len(filter.Components))+")")
		for _, c := range filter.Components {
			args = append(args, string(c))
		}
	}
	if len(filter.Users) > 0 {
		conds = append(conds, "user IN ("+placeholders(len(filter.Users))+")")
		for _, u := range filter.Users {
			args = append(args, string(u))
		}
	}
	if filter.MetricName != "" {
		conds = append(conds, "metric_name = ?")
		args = append(args, filter.MetricName)
	}
	conds = append(conds, "time >= ? AND time <= ?")
	args = append(args, filter.Time.Start, filter.Time.End)

	order := "ORDER BY time ASC, seq ASC"
	if dir == storage.SortDescending {
		order = "ORDER BY time DESC, seq DESC"
	}

	query := `SELECT seq, id, user, lesson, component, component_type, metric_name, score, time, tag
		FROM events WHERE ` + strings.Join(conds, " AND ") + " " + order

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
func (s *Store) ListChildComponents(ctx context.Context, lesson types.EntityID, users []types.UserID) ([]types.EntityID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT DISTINCT component FROM events WHERE lesson = ?"
	args := []any{string(lesson)}
	if len(users) > 0 {
		query += " AND user IN (" + placeholders(len(users)) + ")"
		for _, u := range users {
			args = append(args, string(u))
		}
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

// GetUser implements storage.UserStore. Unknown users are materialized
// with an empty completions map.
func (s *Store) GetUser(ctx context.Context, id types.UserID) (*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var completions string
	err := s.db.QueryRowContext(ctx,
		"SELECT completions FROM users WHERE id = ?", string(id)).Scan(&completions)
	if err == sql.ErrNoRows {
		return types.NewUser(id), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	user := types.User{ID: id}
	if err := json.Unmarshal([]byte(completions), &user.Completions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completions for %s: %w", id, err)
	}
	return &user, nil
}

// SaveUser implements storage.UserStore.
func (s *Store) SaveUser(ctx context.Context, user *types.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	completions := user.Completions
	if completions == nil {
		completions = map[string]*types.Instance{}
	}
	doc, err := json.Marshal(completions)
	if err != nil {
		return fmt.Errorf("failed to marshal completions: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, completions) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET completions = excluded.completions`,
		string(user.ID), string(doc))
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// ListUsers implements storage.UserStore.
func (s *Store) ListUsers(ctx context.Context) ([]types.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM users ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var ids []types.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, types.UserID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return ids, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
