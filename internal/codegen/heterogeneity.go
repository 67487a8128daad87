package codegen

import (
	"math"

	"spikegen/internal/model"
)

// IsParamValueHeterogeneous decides whether the parameter called name must
// become a runtime field. values holds one value per member, archetype
// first. A parameter no code references is always folded, whatever its
// spread.
//
// The reference test is a plain substring search for the $(name) token, so a
// token inside a comment in the code also counts as a reference.
func IsParamValueHeterogeneous(codes []string, name string, values []float64) bool {
	if !model.References(codes, name) {
		return false
	}
	return isValueHeterogeneous(values)
}

func isValueHeterogeneous(values []float64) bool {
	if len(values) == 0 {
		return false
	}
	archetype := math.Float64bits(values[0])
	for _, v := range values[1:] {
		if math.Float64bits(v) != archetype {
			return true
		}
	}
	return false
}

// classify gathers one value per member and applies IsParamValueHeterogeneous.
func classify(codes []string, name string, members int, value func(member int) float64) bool {
	if !model.References(codes, name) {
		return false
	}
	values := make([]float64, members)
	for i := range values {
		values[i] = value(i)
	}
	return isValueHeterogeneous(values)
}

// at indexes s, treating an out of range index as a broken precondition.
func at[T any](s []T, i int, what string) T {
	if i < 0 || i >= len(s) {
		fatalf("index", "%s index %d out of range [0,%d)", what, i, len(s))
	}
	return s[i]
}
