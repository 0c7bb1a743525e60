package wasm

import (
	"bytes"
	"fmt"
)

// FunctionType is the signature of a function: zero or more parameter types
// and, in WebAssembly 1.0 (MVP), at most one result type.
// See https://www.w3.org/TR/wasm-core-1/#function-types%E2%91%A4
type FunctionType struct {
	Params  []ValueType
	Results []ValueType
}

// EqualsSignature returns true when params and results match exactly. This is
// the equality used by call_indirect type checks.
func (t *FunctionType) EqualsSignature(params []ValueType, results []ValueType) bool {
	return bytes.Equal(t.Params, params) && bytes.Equal(t.Results, results)
}

// String returns a unique key for the signature, e.g. "i32i32_i32".
func (t *FunctionType) String() (ret string) {
	for _, b := range t.Params {
		ret += ValueTypeName(b)
	}
	if len(t.Params) == 0 {
		ret += "null"
	}
	ret += "_"
	for _, b := range t.Results {
		ret += ValueTypeName(b)
	}
	if len(t.Results) == 0 {
		ret += "null"
	}
	return
}

// LimitsType holds the minimum and optional maximum of a table or memory.
// See https://www.w3.org/TR/wasm-core-1/#limits%E2%91%A6
type LimitsType struct {
	Min uint32
	Max *uint32
}

// Valid returns an error unless Min <= Max (when Max is present).
func (l *LimitsType) Valid() error {
	if l.Max != nil && *l.Max < l.Min {
		return fmt.Errorf("limits: min %d exceeds max %d", l.Min, *l.Max)
	}
	return nil
}

// TableType describes a table: its element type (always funcref in the MVP)
// and size limits in elements.
type TableType struct {
	ElemType byte
	Limits   *LimitsType
}

// MemoryType describes a linear memory's size limits in pages.
type MemoryType = LimitsType

// GlobalType describes a global's value type and mutability.
// See https://www.w3.org/TR/wasm-core-1/#global-types%E2%91%A0
type GlobalType struct {
	ValType ValueType
	Mutable bool
}
