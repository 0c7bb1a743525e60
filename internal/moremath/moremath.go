// Package moremath implements the float operations whose WebAssembly
// semantics differ from the Go standard library.
package moremath

import "math"

// WasmMin is math.Min with WebAssembly NaN handling: if either operand is
// NaN the result is NaN, even when the other is -Inf.
func WasmMin(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, -1) || math.IsInf(y, -1):
		return math.Inf(-1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

// WasmMax is math.Max with WebAssembly NaN handling: if either operand is
// NaN the result is NaN, even when the other is +Inf.
func WasmMax(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, 1) || math.IsInf(y, 1):
		return math.Inf(1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}
