// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package rules

import (
	"errors"
	"fmt"
	"sync"

	"github.com/courseware-labs/tally/pkg/types"
)

// ErrUnknownRule reports a rule name that is not in the catalog. It is
// raised by Validate at metric-mutation time; dispatch itself falls back
// to "average" so a stored metric never breaks a computation.
var ErrUnknownRule = errors.New("unknown rule")

// FallbackRule is the rule used when dispatch encounters an unknown name.
const FallbackRule = "average"

// Registry is a catalog of reduction rules keyed by name. Rules are added
// by registering, not by subclassing; the built-in catalog is installed by
// NewRegistry.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Func
}

// NewRegistry returns a registry pre-populated with the built-in rules.
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[string]Func)}
	r.Register("average", Average)
	r.Register("dropLowest", DropLowest)
	r.Register("dropNLowest", DropNLowest)
	r.Register("binaryProportion", BinaryProportion)
	r.Register("decayedAverage", DecayedAverage)
	return r
}

// Register adds or replaces a rule under the given name.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[name] = fn
}

// Lookup returns the rule registered under name, falling back to the
// average rule for unknown names.
func (r *Registry) Lookup(name string) Func {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.rules[name]; ok {
		return fn
	}
	return r.rules[FallbackRule]
}

// Has reports whether a rule is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rules[name]
	return ok
}

// Validate checks a rule spec against the catalog. Metric CRUD and cache
// mutation call this so malformed metrics are rejected before they are
// stored.
func (r *Registry) Validate(spec types.RuleSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: empty rule name", types.ErrInvalidMetric)
	}
	if !r.Has(spec.Name) {
		return fmt.Errorf("%w: %q", ErrUnknownRule, spec.Name)
	}
	return nil
}
