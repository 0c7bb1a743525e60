package wasm

import "fmt"

// Errors returned while decoding a module from the binary format.
var (
	ErrInvalidMagicNumber = fmt.Errorf("invalid magic number")
	ErrInvalidVersion     = fmt.Errorf("invalid version header")
	ErrInvalidSectionID   = fmt.Errorf("invalid section id")
	ErrInvalidByte        = fmt.Errorf("invalid byte")
)

// Runtime errors returned by Engine.Call when execution traps. Traps leave
// the Store and all module instances in their state at the moment of the
// trap, but abandon the computation. Use errors.Is to test for them: they
// may be wrapped with call position information.
var (
	// ErrRuntimeCallStackOverflow is returned when the nested function call
	// depth exceeds the engine's limit.
	ErrRuntimeCallStackOverflow = fmt.Errorf("callstack overflow")

	// ErrRuntimeInvalidConversionToInteger is returned when i32.trunc_* or
	// i64.trunc_* is given a NaN operand.
	ErrRuntimeInvalidConversionToInteger = fmt.Errorf("invalid conversion to integer")

	// ErrRuntimeIntegerOverflow is returned when an integer arithmetic or
	// truncation result cannot be represented, e.g. INT32_MIN / -1.
	ErrRuntimeIntegerOverflow = fmt.Errorf("integer overflow")

	// ErrRuntimeIntegerDivideByZero is returned by the integer div and rem
	// instructions when the divisor is zero.
	ErrRuntimeIntegerDivideByZero = fmt.Errorf("integer divide by zero")

	// ErrRuntimeUnreachable is returned when an unreachable instruction is
	// executed.
	ErrRuntimeUnreachable = fmt.Errorf("unreachable")

	// ErrRuntimeOutOfBoundsMemoryAccess is returned when a load or store
	// touches bytes outside the current length of linear memory.
	ErrRuntimeOutOfBoundsMemoryAccess = fmt.Errorf("out of bounds memory access")

	// ErrRuntimeInvalidTableAccess is returned by call_indirect when the
	// table index is out of range or the element is uninitialized.
	ErrRuntimeInvalidTableAccess = fmt.Errorf("invalid table access")

	// ErrRuntimeIndirectCallTypeMismatch is returned by call_indirect when
	// the callee's actual type differs from the expected type.
	ErrRuntimeIndirectCallTypeMismatch = fmt.Errorf("indirect call type mismatch")

	// ErrRuntimeFuelExhausted is returned when the engine's configured
	// instruction budget runs out.
	ErrRuntimeFuelExhausted = fmt.Errorf("fuel exhausted")
)

// ValidationError describes why a function body failed validation. Offset is
// the byte position within the function body where validation stopped.
type ValidationError struct {
	FuncIndex Index
	Offset    uint64
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid function (%d) at offset %d: %s", e.FuncIndex, e.Offset, e.Reason)
}

// UnresolvedImportError is returned by Store.Instantiate when an import has
// no matching entity registered in the store.
type UnresolvedImportError struct {
	ModuleName string
	FieldName  string
}

func (e *UnresolvedImportError) Error() string {
	return fmt.Sprintf("unresolved import %q.%q", e.ModuleName, e.FieldName)
}
