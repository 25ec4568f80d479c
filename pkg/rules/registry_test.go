// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseware-labs/tally/pkg/types"
)

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"average", "dropLowest", "dropNLowest", "binaryProportion", "decayedAverage"} {
		assert.True(t, r.Has(name), "builtin %s should be registered", name)
	}
	assert.False(t, r.Has("median"))
}

func TestRegistryLookupFallsBackToAverage(t *testing.T) {
	r := NewRegistry()
	fn := r.Lookup("definitely-not-a-rule")
	require.NotNil(t, fn)

	// The fallback behaves exactly like average.
	in := scored(70, 90)
	spec := types.RuleSpec{Name: "definitely-not-a-rule"}
	assert.InDelta(t, Average(in, spec), fn(in, spec), 1e-9)
}

func TestRegistryRegisterCustomRule(t *testing.T) {
	r := NewRegistry()
	r.Register("constant", func(in []*types.Instance, spec types.RuleSpec) float64 {
		return 42
	})
	require.True(t, r.Has("constant"))
	assert.Equal(t, 42.0, r.Lookup("constant")(nil, types.RuleSpec{}))
}

func TestRegistryValidate(t *testing.T) {
	r := NewRegistry()

	assert.NoError(t, r.Validate(types.RuleSpec{Name: "average"}))

	err := r.Validate(types.RuleSpec{Name: ""})
	assert.ErrorIs(t, err, types.ErrInvalidMetric)

	err = r.Validate(types.RuleSpec{Name: "median"})
	assert.ErrorIs(t, err, ErrUnknownRule)
}
