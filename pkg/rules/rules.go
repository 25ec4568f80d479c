// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package rules implements the catalog of reduction rules. A rule is a
// pure function from an instance list to a single score; every rule
// returns the missing-score sentinel on empty post-filter input.
package rules

import (
	"math"
	"sort"

	"github.com/courseware-labs/tally/pkg/types"
)

// Func is one reduction rule. The spec supplies the missing-data mode and
// any numeric parameters.
type Func func(in []*types.Instance, spec types.RuleSpec) float64

// filtered applies the missing-data mode and returns the surviving scores.
// Under "zero" mode missing scores are imputed to 0; under "ignore" they
// are dropped.
func filtered(in []*types.Instance, mode types.MissingMode) []float64 {
	scores := make([]float64, 0, len(in))
	for _, inst := range in {
		if inst == nil {
			continue
		}
		if inst.IsMissing() {
			if mode == types.MissingZero {
				scores = append(scores, 0)
			}
			continue
		}
		scores = append(scores, inst.Score)
	}
	return scores
}

func mean(scores []float64) float64 {
	if len(scores) == 0 {
		return types.MissingScore
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// Average is the arithmetic mean of the surviving scores.
func Average(in []*types.Instance, spec types.RuleSpec) float64 {
	return mean(filtered(in, spec.Mode()))
}

// DropLowest is the mean after removing the single smallest score. With
// exactly one surviving score, that score is returned unchanged.
func DropLowest(in []*types.Instance, spec types.RuleSpec) float64 {
	scores := filtered(in, spec.Mode())
	switch len(scores) {
	case 0:
		return types.MissingScore
	case 1:
		return scores[0]
	}
	lowest := 0
	for i, s := range scores {
		if s < scores[lowest] {
			lowest = i
		}
	}
	scores = append(scores[:lowest], scores[lowest+1:]...)
	return mean(scores)
}

// DropNLowest is the mean of the top len-N scores, where N is the first
// rule parameter. When N or more scores would be dropped, the maximum
// surviving score is returned instead.
func DropNLowest(in []*types.Instance, spec types.RuleSpec) float64 {
	scores := filtered(in, spec.Mode())
	if len(scores) == 0 {
		return types.MissingScore
	}
	n := 0
	if len(spec.Params) > 0 {
		n = int(spec.Params[0])
	}
	sort.Float64s(scores)
	if len(scores) <= n {
		return scores[len(scores)-1]
	}
	return mean(scores[n:])
}

// BinaryProportion is the percentage of surviving scores at or above 50.
func BinaryProportion(in []*types.Instance, spec types.RuleSpec) float64 {
	scores := filtered(in, spec.Mode())
	if len(scores) == 0 {
		return types.MissingScore
	}
	passing := 0
	for _, s := range scores {
		if s >= 50 {
			passing++
		}
	}
	return float64(passing) / float64(len(scores)) * 100
}

// DecayedAverage is the mean of scores after exponential lateness decay.
// Parameters are [deadline, halving, cap]: an instance submitted L minutes
// after the deadline keeps 2^(-L/halving) of its score, with L clamped to
// cap when a cap is given. Instances without a time are not decayed.
// Missing scores are always ignored; the spec's missing mode does not
// apply to this rule.
func DecayedAverage(in []*types.Instance, spec types.RuleSpec) float64 {
	var deadline, halving float64
	latenessCap := math.Inf(1)
	if len(spec.Params) > 0 {
		deadline = spec.Params[0]
	}
	if len(spec.Params) > 1 {
		halving = spec.Params[1]
	}
	if len(spec.Params) > 2 {
		latenessCap = spec.Params[2]
	}

	scores := make([]float64, 0, len(in))
	for _, inst := range in {
		if inst == nil || inst.IsMissing() {
			continue
		}
		score := inst.Score
		if inst.Time != nil && halving > 0 {
			late := (float64(*inst.Time) - deadline) / 60000.0
			if late < 0 {
				late = 0
			}
			if late > latenessCap {
				late = latenessCap
			}
			score *= math.Pow(2, -late/halving)
		}
		scores = append(scores, score)
	}
	return mean(scores)
}
