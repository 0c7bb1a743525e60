package interpreter_test

import (
	"math"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmkit/wasmkit/wasm"
	"github.com/wasmkit/wasmkit/wasm/binary"
	"github.com/wasmkit/wasmkit/wasm/interpreter"
)

func instantiate(t *testing.T, m *wasm.Module, opts ...interpreter.Option) *wasm.Store {
	t.Helper()
	store := wasm.NewStore(interpreter.NewEngine(opts...))
	require.NoError(t, store.Instantiate(m, "test"))
	return store
}

func call(t *testing.T, store *wasm.Store, fn string, args ...uint64) []uint64 {
	t.Helper()
	returns, _, err := store.CallFunction("test", fn, args...)
	require.NoError(t, err)
	return returns
}

func exportFunc(name string, index wasm.Index) map[string]*wasm.ExportSegment {
	return map[string]*wasm.ExportSegment{
		name: {Name: name, Kind: wasm.ExportKindFunc, Index: index},
	}
}

func TestCall_Add(t *testing.T) {
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   exportFunc("add", 0),
		CodeSection: []*wasm.CodeSegment{{
			Body: []byte{wasm.OpcodeLocalGet, 0x00, wasm.OpcodeLocalGet, 0x01, wasm.OpcodeI32Add, wasm.OpcodeEnd},
		}},
	}
	store := instantiate(t, m)

	assert.Equal(t, []uint64{5}, call(t, store, "add", 2, 3))
	// Wrapping semantics: INT32_MAX + 1 = INT32_MIN.
	assert.Equal(t, []uint64{0x80000000}, call(t, store, "add", 0x7fffffff, 1))
	// Deterministic across repeated calls.
	assert.Equal(t, []uint64{5}, call(t, store, "add", 2, 3))
}

func TestCall_IntegerDivision(t *testing.T) {
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}},
		FunctionSection: []wasm.Index{0, 0},
		ExportSection: map[string]*wasm.ExportSegment{
			"div_s": {Name: "div_s", Kind: wasm.ExportKindFunc, Index: 0},
			"rem_s": {Name: "rem_s", Kind: wasm.ExportKindFunc, Index: 1},
		},
		CodeSection: []*wasm.CodeSegment{
			{Body: []byte{wasm.OpcodeLocalGet, 0x00, wasm.OpcodeLocalGet, 0x01, wasm.OpcodeI32DivS, wasm.OpcodeEnd}},
			{Body: []byte{wasm.OpcodeLocalGet, 0x00, wasm.OpcodeLocalGet, 0x01, wasm.OpcodeI32RemS, wasm.OpcodeEnd}},
		},
	}
	store := instantiate(t, m)

	assert.Equal(t, []uint64{3}, call(t, store, "div_s", 7, 2))
	negOne := uint64(uint32(0xffffffff))
	assert.Equal(t, []uint64{negOne}, call(t, store, "div_s", uint64(uint32(0xfffffff9)), 7))

	_, _, err := store.CallFunction("test", "div_s", 1, 0)
	assert.ErrorIs(t, err, wasm.ErrRuntimeIntegerDivideByZero)

	_, _, err = store.CallFunction("test", "div_s", uint64(uint32(0x80000000)), negOne)
	assert.ErrorIs(t, err, wasm.ErrRuntimeIntegerOverflow)

	// INT32_MIN % -1 is 0, not a trap.
	assert.Equal(t, []uint64{0}, call(t, store, "rem_s", uint64(uint32(0x80000000)), negOne))

	_, _, err = store.CallFunction("test", "rem_s", 1, 0)
	assert.ErrorIs(t, err, wasm.ErrRuntimeIntegerDivideByZero)
}

func TestCall_TruncTraps(t *testing.T) {
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeF64},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   exportFunc("trunc", 0),
		CodeSection: []*wasm.CodeSegment{{
			Body: []byte{wasm.OpcodeLocalGet, 0x00, wasm.OpcodeI32TruncF64S, wasm.OpcodeEnd},
		}},
	}
	store := instantiate(t, m)

	assert.Equal(t, []uint64{42}, call(t, store, "trunc", math.Float64bits(42.9)))
	assert.Equal(t, []uint64{uint64(uint32(0xffffffd6))}, call(t, store, "trunc", math.Float64bits(-42.9)))

	_, _, err := store.CallFunction("test", "trunc", math.Float64bits(math.NaN()))
	assert.ErrorIs(t, err, wasm.ErrRuntimeInvalidConversionToInteger)

	_, _, err = store.CallFunction("test", "trunc", math.Float64bits(1e10))
	assert.ErrorIs(t, err, wasm.ErrRuntimeIntegerOverflow)
}

func TestCall_FloatSemantics(t *testing.T) {
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeF64, wasm.ValueTypeF64},
			Results: []wasm.ValueType{wasm.ValueTypeF64},
		}},
		FunctionSection: []wasm.Index{0, 0},
		ExportSection: map[string]*wasm.ExportSegment{
			"min": {Name: "min", Kind: wasm.ExportKindFunc, Index: 0},
			"max": {Name: "max", Kind: wasm.ExportKindFunc, Index: 1},
		},
		CodeSection: []*wasm.CodeSegment{
			{Body: []byte{wasm.OpcodeLocalGet, 0x00, wasm.OpcodeLocalGet, 0x01, wasm.OpcodeF64Min, wasm.OpcodeEnd}},
			{Body: []byte{wasm.OpcodeLocalGet, 0x00, wasm.OpcodeLocalGet, 0x01, wasm.OpcodeF64Max, wasm.OpcodeEnd}},
		},
	}
	store := instantiate(t, m)

	// NaN wins against -Inf under min, unlike math.Min.
	ret := call(t, store, "min", math.Float64bits(math.NaN()), math.Float64bits(math.Inf(-1)))
	assert.True(t, math.IsNaN(math.Float64frombits(ret[0])))

	ret = call(t, store, "max", math.Float64bits(math.NaN()), math.Float64bits(math.Inf(1)))
	assert.True(t, math.IsNaN(math.Float64frombits(ret[0])))

	ret = call(t, store, "min", math.Float64bits(1.5), math.Float64bits(2.5))
	assert.Equal(t, 1.5, math.Float64frombits(ret[0]))
}

func TestCall_LoopSum(t *testing.T) {
	// sum(n): local 1 accumulates n + (n-1) + ... + 1.
	body := []byte{
		wasm.OpcodeBlock, 0x40,
		wasm.OpcodeLoop, 0x40,
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeI32Eqz,
		wasm.OpcodeBrIf, 0x01,
		wasm.OpcodeLocalGet, 0x01,
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeI32Add,
		wasm.OpcodeLocalSet, 0x01,
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeI32Const, 0x01,
		wasm.OpcodeI32Sub,
		wasm.OpcodeLocalSet, 0x00,
		wasm.OpcodeBr, 0x00,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
		wasm.OpcodeLocalGet, 0x01,
		wasm.OpcodeEnd,
	}
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   exportFunc("sum", 0),
		CodeSection: []*wasm.CodeSegment{{
			LocalTypes: []wasm.ValueType{wasm.ValueTypeI32},
			Body:       body,
		}},
	}
	store := instantiate(t, m)

	assert.Equal(t, []uint64{55}, call(t, store, "sum", 10))
	assert.Equal(t, []uint64{0}, call(t, store, "sum", 0))
	assert.Equal(t, []uint64{500500}, call(t, store, "sum", 1000))
}

func TestCall_BrTable(t *testing.T) {
	// Returns 10, 20 or 99 depending on the argument.
	body := []byte{
		wasm.OpcodeBlock, 0x40,
		wasm.OpcodeBlock, 0x40,
		wasm.OpcodeBlock, 0x40,
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeBrTable, 0x02, 0x00, 0x01, 0x02,
		wasm.OpcodeEnd,
		wasm.OpcodeI32Const, 0x0a,
		wasm.OpcodeReturn,
		wasm.OpcodeEnd,
		wasm.OpcodeI32Const, 0x14,
		wasm.OpcodeReturn,
		wasm.OpcodeEnd,
		wasm.OpcodeI32Const, 0xe3, 0x00, // 99
		wasm.OpcodeEnd,
	}
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   exportFunc("pick", 0),
		CodeSection:     []*wasm.CodeSegment{{Body: body}},
	}
	store := instantiate(t, m)

	assert.Equal(t, []uint64{10}, call(t, store, "pick", 0))
	assert.Equal(t, []uint64{20}, call(t, store, "pick", 1))
	assert.Equal(t, []uint64{99}, call(t, store, "pick", 2))
	assert.Equal(t, []uint64{99}, call(t, store, "pick", 100))
}

func TestCall_Memory(t *testing.T) {
	two := uint32(2)
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{
			{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}},
			{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
			{Results: []wasm.ValueType{wasm.ValueTypeI32}},
		},
		FunctionSection: []wasm.Index{0, 1, 2, 1},
		MemorySection:   []*wasm.MemoryType{{Min: 1, Max: &two}},
		ExportSection: map[string]*wasm.ExportSegment{
			"put":  {Name: "put", Kind: wasm.ExportKindFunc, Index: 0},
			"get":  {Name: "get", Kind: wasm.ExportKindFunc, Index: 1},
			"size": {Name: "size", Kind: wasm.ExportKindFunc, Index: 2},
			"grow": {Name: "grow", Kind: wasm.ExportKindFunc, Index: 3},
		},
		CodeSection: []*wasm.CodeSegment{
			{Body: []byte{
				wasm.OpcodeLocalGet, 0x00, wasm.OpcodeLocalGet, 0x01,
				wasm.OpcodeI32Store, 0x02, 0x00, wasm.OpcodeEnd,
			}},
			{Body: []byte{
				wasm.OpcodeLocalGet, 0x00,
				wasm.OpcodeI32Load, 0x02, 0x00, wasm.OpcodeEnd,
			}},
			{Body: []byte{wasm.OpcodeMemorySize, 0x00, wasm.OpcodeEnd}},
			{Body: []byte{
				wasm.OpcodeLocalGet, 0x00,
				wasm.OpcodeMemoryGrow, 0x00, wasm.OpcodeEnd,
			}},
		},
	}
	store := instantiate(t, m)

	call(t, store, "put", 16, 0xdeadbeef)
	assert.Equal(t, []uint64{0xdeadbeef}, call(t, store, "get", 16))

	assert.Equal(t, []uint64{1}, call(t, store, "size"))
	assert.Equal(t, []uint64{1}, call(t, store, "grow", 1))
	assert.Equal(t, []uint64{2}, call(t, store, "size"))
	// Growing past the declared maximum fails with -1 and does not trap.
	assert.Equal(t, []uint64{uint64(uint32(0xffffffff))}, call(t, store, "grow", 1))
	assert.Equal(t, []uint64{2}, call(t, store, "size"))
	// grow 0 reports the current size without changing it.
	assert.Equal(t, []uint64{2}, call(t, store, "grow", 0))

	// The page grown above is readable.
	assert.Equal(t, []uint64{0}, call(t, store, "get", wasm.MemoryPageSize+100))

	// One past the end of the second page is not.
	_, _, err := store.CallFunction("test", "get", 2*wasm.MemoryPageSize-3)
	assert.ErrorIs(t, err, wasm.ErrRuntimeOutOfBoundsMemoryAccess)

	// Address arithmetic must not wrap around.
	_, _, err = store.CallFunction("test", "get", 0xffffffff)
	assert.ErrorIs(t, err, wasm.ErrRuntimeOutOfBoundsMemoryAccess)

	// A trapped store must not have clobbered earlier writes.
	assert.Equal(t, []uint64{0xdeadbeef}, call(t, store, "get", 16))
}

func TestCall_MemoryDataSegment(t *testing.T) {
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{
			{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		},
		FunctionSection: []wasm.Index{0},
		MemorySection:   []*wasm.MemoryType{{Min: 1}},
		ExportSection:   exportFunc("byte_at", 0),
		DataSection: []*wasm.DataSegment{{
			OffsetExpr: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0x08}},
			Init:       []byte("hello"),
		}},
		CodeSection: []*wasm.CodeSegment{{
			Body: []byte{
				wasm.OpcodeLocalGet, 0x00,
				wasm.OpcodeI32Load8U, 0x00, 0x00, wasm.OpcodeEnd,
			},
		}},
	}
	store := instantiate(t, m)

	assert.Equal(t, []uint64{'h'}, call(t, store, "byte_at", 8))
	assert.Equal(t, []uint64{'o'}, call(t, store, "byte_at", 12))
	assert.Equal(t, []uint64{0}, call(t, store, "byte_at", 13))
}

func TestCall_CallIndirect(t *testing.T) {
	three := uint32(3)
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{
			{Results: []wasm.ValueType{wasm.ValueTypeI32}},
			{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		},
		FunctionSection: []wasm.Index{0, 1, 1},
		TableSection: []*wasm.TableType{{
			ElemType: wasm.ElemTypeFuncref,
			Limits:   &wasm.LimitsType{Min: 3, Max: &three},
		}},
		ElementSection: []*wasm.ElementSegment{{
			OffsetExpr: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0x00}},
			Init:       []wasm.Index{0, 1},
		}},
		ExportSection: exportFunc("dispatch", 2),
		CodeSection: []*wasm.CodeSegment{
			{Body: []byte{wasm.OpcodeI32Const, 0x2a, wasm.OpcodeEnd}},
			{Body: []byte{wasm.OpcodeLocalGet, 0x00, wasm.OpcodeEnd}},
			{Body: []byte{
				wasm.OpcodeLocalGet, 0x00,
				wasm.OpcodeCallIndirect, 0x00, 0x00, wasm.OpcodeEnd,
			}},
		},
	}
	store := instantiate(t, m)

	assert.Equal(t, []uint64{42}, call(t, store, "dispatch", 0))

	// Element 1 has type (i32)->i32, not the expected ()->i32.
	_, _, err := store.CallFunction("test", "dispatch", 1)
	assert.ErrorIs(t, err, wasm.ErrRuntimeIndirectCallTypeMismatch)

	// Element 2 is uninitialized.
	_, _, err = store.CallFunction("test", "dispatch", 2)
	assert.ErrorIs(t, err, wasm.ErrRuntimeInvalidTableAccess)

	// Out of table bounds.
	_, _, err = store.CallFunction("test", "dispatch", 9)
	assert.ErrorIs(t, err, wasm.ErrRuntimeInvalidTableAccess)
}

func TestCall_Unreachable(t *testing.T) {
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{{}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   exportFunc("boom", 0),
		CodeSection: []*wasm.CodeSegment{{
			Body: []byte{wasm.OpcodeUnreachable, wasm.OpcodeEnd},
		}},
	}
	store := instantiate(t, m)

	_, _, err := store.CallFunction("test", "boom")
	assert.ErrorIs(t, err, wasm.ErrRuntimeUnreachable)
}

func TestCall_CallStackOverflow(t *testing.T) {
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{{}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   exportFunc("recurse", 0),
		CodeSection: []*wasm.CodeSegment{{
			Body: []byte{wasm.OpcodeCall, 0x00, wasm.OpcodeEnd},
		}},
	}
	store := instantiate(t, m, interpreter.WithCallDepthLimit(64))

	_, _, err := store.CallFunction("test", "recurse")
	assert.ErrorIs(t, err, wasm.ErrRuntimeCallStackOverflow)

	// The engine recovers: subsequent calls still work after the trap.
	m2 := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{{Results: []wasm.ValueType{wasm.ValueTypeI32}}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   exportFunc("one", 0),
		CodeSection: []*wasm.CodeSegment{{
			Body: []byte{wasm.OpcodeI32Const, 0x01, wasm.OpcodeEnd},
		}},
	}
	require.NoError(t, store.Instantiate(m2, "test2"))
	ret, _, err := store.CallFunction("test2", "one")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, ret)
}

func TestCall_FuelExhaustion(t *testing.T) {
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{{}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   exportFunc("spin", 0),
		CodeSection: []*wasm.CodeSegment{{
			Body: []byte{
				wasm.OpcodeLoop, 0x40,
				wasm.OpcodeBr, 0x00,
				wasm.OpcodeEnd,
				wasm.OpcodeEnd,
			},
		}},
	}
	store := instantiate(t, m, interpreter.WithFuel(10000))

	_, _, err := store.CallFunction("test", "spin")
	assert.ErrorIs(t, err, wasm.ErrRuntimeFuelExhausted)
}

func TestCall_HostFunction(t *testing.T) {
	store := wasm.NewStore(interpreter.NewEngine())

	var observed []uint64
	require.NoError(t, store.AddHostFunction("env", "mul2",
		reflect.ValueOf(func(ctx *wasm.HostFunctionCallContext, v uint32) uint32 {
			observed = append(observed, uint64(v))
			return v * 2
		})))

	zero := wasm.Index(0)
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}},
		ImportSection: []*wasm.ImportSegment{{
			Module: "env", Name: "mul2",
			Desc: &wasm.ImportDesc{Kind: wasm.ImportKindFunc, TypeIndexPtr: &zero},
		}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   exportFunc("via_host", 1),
		CodeSection: []*wasm.CodeSegment{{
			Body: []byte{
				wasm.OpcodeLocalGet, 0x00,
				wasm.OpcodeCall, 0x00,
				wasm.OpcodeI32Const, 0x01,
				wasm.OpcodeI32Add,
				wasm.OpcodeEnd,
			},
		}},
	}
	require.NoError(t, store.Instantiate(m, "test"))

	ret, _, err := store.CallFunction("test", "via_host", 21)
	require.NoError(t, err)
	assert.Equal(t, []uint64{43}, ret)
	assert.Equal(t, []uint64{21}, observed)
}

func TestCall_HostFunctionMemoryAccess(t *testing.T) {
	store := wasm.NewStore(interpreter.NewEngine())

	require.NoError(t, store.AddHostFunction("env", "peek",
		reflect.ValueOf(func(ctx *wasm.HostFunctionCallContext, addr uint32) uint32 {
			view, ok := ctx.Memory.ViewBytes(addr, 1)
			if !ok {
				return 0
			}
			return uint32(view[0])
		})))

	zero := wasm.Index(0)
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}},
		ImportSection: []*wasm.ImportSegment{{
			Module: "env", Name: "peek",
			Desc: &wasm.ImportDesc{Kind: wasm.ImportKindFunc, TypeIndexPtr: &zero},
		}},
		FunctionSection: []wasm.Index{0},
		MemorySection:   []*wasm.MemoryType{{Min: 1}},
		DataSection: []*wasm.DataSegment{{
			OffsetExpr: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0x00}},
			Init:       []byte{0x7b},
		}},
		ExportSection: exportFunc("peek0", 1),
		CodeSection: []*wasm.CodeSegment{{
			Body: []byte{wasm.OpcodeLocalGet, 0x00, wasm.OpcodeCall, 0x00, wasm.OpcodeEnd},
		}},
	}
	require.NoError(t, store.Instantiate(m, "test"))

	ret, _, err := store.CallFunction("test", "peek0", 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{123}, ret)
}

func TestCall_Globals(t *testing.T) {
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{
			{Results: []wasm.ValueType{wasm.ValueTypeI32}},
			{Params: []wasm.ValueType{wasm.ValueTypeI32}},
		},
		FunctionSection: []wasm.Index{0, 1},
		GlobalSection: []*wasm.GlobalSegment{{
			Type: &wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: true},
			Init: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0x0a}},
		}},
		ExportSection: map[string]*wasm.ExportSegment{
			"get": {Name: "get", Kind: wasm.ExportKindFunc, Index: 0},
			"set": {Name: "set", Kind: wasm.ExportKindFunc, Index: 1},
		},
		CodeSection: []*wasm.CodeSegment{
			{Body: []byte{wasm.OpcodeGlobalGet, 0x00, wasm.OpcodeEnd}},
			{Body: []byte{wasm.OpcodeLocalGet, 0x00, wasm.OpcodeGlobalSet, 0x00, wasm.OpcodeEnd}},
		},
	}
	store := instantiate(t, m)

	assert.Equal(t, []uint64{10}, call(t, store, "get"))
	call(t, store, "set", 99)
	assert.Equal(t, []uint64{99}, call(t, store, "get"))
}

func TestCall_IfElse(t *testing.T) {
	// abs(x) via if/else on the sign.
	body := []byte{
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeI32Const, 0x00,
		wasm.OpcodeI32LtS,
		wasm.OpcodeIf, 0x7f,
		wasm.OpcodeI32Const, 0x00,
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeI32Sub,
		wasm.OpcodeElse,
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
	}
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   exportFunc("abs", 0),
		CodeSection:     []*wasm.CodeSegment{{Body: body}},
	}
	store := instantiate(t, m)

	assert.Equal(t, []uint64{7}, call(t, store, "abs", 7))
	assert.Equal(t, []uint64{7}, call(t, store, "abs", uint64(uint32(0xfffffff9))))
	assert.Equal(t, []uint64{0}, call(t, store, "abs", 0))
}

func TestCall_ShiftMasking(t *testing.T) {
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   exportFunc("shl", 0),
		CodeSection: []*wasm.CodeSegment{{
			Body: []byte{wasm.OpcodeLocalGet, 0x00, wasm.OpcodeLocalGet, 0x01, wasm.OpcodeI32Shl, wasm.OpcodeEnd},
		}},
	}
	store := instantiate(t, m)

	// The shift count is taken modulo 32.
	assert.Equal(t, []uint64{2}, call(t, store, "shl", 1, 33))
	assert.Equal(t, []uint64{1}, call(t, store, "shl", 1, 32))
}

func TestCall_StartFunction(t *testing.T) {
	// The start function runs during instantiation and flips a global read
	// back by an export.
	zero := wasm.Index(1)
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{
			{Results: []wasm.ValueType{wasm.ValueTypeI32}},
			{},
		},
		FunctionSection: []wasm.Index{0, 1},
		GlobalSection: []*wasm.GlobalSegment{{
			Type: &wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: true},
			Init: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0x00}},
		}},
		StartSection:  &zero,
		ExportSection: exportFunc("started", 0),
		CodeSection: []*wasm.CodeSegment{
			{Body: []byte{wasm.OpcodeGlobalGet, 0x00, wasm.OpcodeEnd}},
			{Body: []byte{wasm.OpcodeI32Const, 0x01, wasm.OpcodeGlobalSet, 0x00, wasm.OpcodeEnd}},
		},
	}
	store := instantiate(t, m)

	assert.Equal(t, []uint64{1}, call(t, store, "started"))
}

func TestCall_RawBinaryComparisons(t *testing.T) {
	// Module bytes written out in the wire encoding byte for byte, rather
	// than assembled from the opcode constants, so a drift between the
	// constants and the encoding cannot hide behind fixtures built from the
	// same table. Covers i64.ge_u (0x5a) and f32.eq (0x5b).
	bin := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		// type: (f32,f32)->i32 and (i64,i64)->i32
		0x01, 0x0d, 0x02,
		0x60, 0x02, 0x7d, 0x7d, 0x01, 0x7f,
		0x60, 0x02, 0x7e, 0x7e, 0x01, 0x7f,
		// function
		0x03, 0x03, 0x02, 0x00, 0x01,
		// export "f32_eq" func 0, "i64_ge_u" func 1
		0x07, 0x15, 0x02,
		0x06, 'f', '3', '2', '_', 'e', 'q', 0x00, 0x00,
		0x08, 'i', '6', '4', '_', 'g', 'e', '_', 'u', 0x00, 0x01,
		// code: both bodies are local.get 0; local.get 1; <op>; end
		0x0a, 0x11, 0x02,
		0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x5b, 0x0b,
		0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x5a, 0x0b,
	}
	m, err := binary.DecodeModule(bin)
	require.NoError(t, err)
	store := instantiate(t, m)

	one := uint64(math.Float32bits(1.0))
	two := uint64(math.Float32bits(2.0))
	assert.Equal(t, []uint64{1}, call(t, store, "f32_eq", one, one))
	assert.Equal(t, []uint64{0}, call(t, store, "f32_eq", one, two))

	assert.Equal(t, []uint64{1}, call(t, store, "i64_ge_u", math.MaxUint64, 1))
	assert.Equal(t, []uint64{0}, call(t, store, "i64_ge_u", 1, 2))
	assert.Equal(t, []uint64{1}, call(t, store, "i64_ge_u", 5, 5))
}

func TestCall_StartFunctionReentersStore(t *testing.T) {
	store := wasm.NewStore(interpreter.NewEngine())

	answer := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{{Results: []wasm.ValueType{wasm.ValueTypeI32}}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   exportFunc("answer", 0),
		CodeSection:     []*wasm.CodeSegment{{Body: []byte{wasm.OpcodeI32Const, 0x2a, wasm.OpcodeEnd}}},
	}
	require.NoError(t, store.Instantiate(answer, "answers"))

	// A host function reached from a start function must be able to read the
	// store: the registry lock is released before the start function runs.
	var resolved bool
	require.NoError(t, store.AddHostFunction("env", "poke",
		reflect.ValueOf(func(ctx *wasm.HostFunctionCallContext) {
			exp, err := store.GetExport("answers", "answer")
			resolved = err == nil && exp != nil
		})))

	zero := wasm.Index(0)
	start := wasm.Index(0)
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{}},
		ImportSection: []*wasm.ImportSegment{{
			Module: "env", Name: "poke",
			Desc: &wasm.ImportDesc{Kind: wasm.ImportKindFunc, TypeIndexPtr: &zero},
		}},
		StartSection: &start,
	}
	require.NoError(t, store.Instantiate(m, "test"))
	assert.True(t, resolved)
}

func TestCall_ModuleSharedAcrossStores(t *testing.T) {
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   exportFunc("add", 0),
		CodeSection: []*wasm.CodeSegment{{
			Body: []byte{wasm.OpcodeLocalGet, 0x00, wasm.OpcodeLocalGet, 0x01, wasm.OpcodeI32Add, wasm.OpcodeEnd},
		}},
	}
	raw := make([]byte, len(m.CodeSection[0].Body))
	copy(raw, m.CodeSection[0].Body)

	// One decoded module instantiated into two stores: instantiation must not
	// rewrite the module's bytes out from under the other store.
	s1 := instantiate(t, m)
	assert.Equal(t, raw, m.CodeSection[0].Body)
	s2 := instantiate(t, m)
	assert.Equal(t, raw, m.CodeSection[0].Body)

	assert.Equal(t, []uint64{5}, call(t, s1, "add", 2, 3))
	assert.Equal(t, []uint64{9}, call(t, s2, "add", 4, 5))
}
