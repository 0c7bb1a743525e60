package wasm

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine records compiled functions and returns canned call results so
// store behavior can be tested without an interpreter.
type fakeEngine struct {
	compiled []*FunctionInstance
	callErr  error
	callRet  []uint64
}

func (e *fakeEngine) Compile(f *FunctionInstance) error {
	e.compiled = append(e.compiled, f)
	return nil
}

func (e *fakeEngine) Call(f *FunctionInstance, args ...uint64) ([]uint64, error) {
	return e.callRet, e.callErr
}

func validModule() *Module {
	return &Module{
		TypeSection:     []*FunctionType{{Results: []ValueType{ValueTypeI32}}},
		FunctionSection: []Index{0},
		ExportSection: map[string]*ExportSegment{
			"f": {Name: "f", Kind: ExportKindFunc, Index: 0},
		},
		CodeSection: []*CodeSegment{{Body: []byte{OpcodeI32Const, 0x01, OpcodeEnd}}},
	}
}

func TestInstantiate(t *testing.T) {
	engine := &fakeEngine{}
	s := NewStore(engine)

	require.NoError(t, s.Instantiate(validModule(), "mod"))
	require.Len(t, engine.compiled, 1)
	require.Len(t, s.Functions, 1)

	exp, err := s.GetExport("mod", "f")
	require.NoError(t, err)
	assert.Equal(t, ExportKindFunc, exp.Kind)
	assert.Same(t, engine.compiled[0], exp.Function)
}

func TestInstantiate_RejectsInvalidModule(t *testing.T) {
	s := NewStore(&fakeEngine{})
	m := validModule()
	m.CodeSection[0].Body = []byte{OpcodeI32Add, OpcodeEnd}

	err := s.Instantiate(m, "mod")
	require.Error(t, err)
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Empty(t, s.ModuleInstances)
}

func TestInstantiate_DuplicateName(t *testing.T) {
	s := NewStore(&fakeEngine{})
	require.NoError(t, s.Instantiate(validModule(), "mod"))
	err := s.Instantiate(validModule(), "mod")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already instantiated")
}

func TestInstantiate_UnresolvedImport(t *testing.T) {
	zero := Index(0)
	m := &Module{
		TypeSection: []*FunctionType{{}},
		ImportSection: []*ImportSegment{{
			Module: "env", Name: "missing",
			Desc: &ImportDesc{Kind: ImportKindFunc, TypeIndexPtr: &zero},
		}},
		FunctionSection: []Index{},
		CodeSection:     []*CodeSegment{},
	}
	s := NewStore(&fakeEngine{})

	err := s.Instantiate(m, "mod")
	require.Error(t, err)
	var ue *UnresolvedImportError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "env", ue.ModuleName)
	assert.Equal(t, "missing", ue.FieldName)
}

func TestInstantiate_ImportSignatureMismatch(t *testing.T) {
	s := NewStore(&fakeEngine{})
	require.NoError(t, s.AddHostFunction("env", "f",
		reflect.ValueOf(func(ctx *HostFunctionCallContext) uint32 { return 0 })))

	zero := Index(0)
	m := &Module{
		TypeSection: []*FunctionType{{Params: []ValueType{ValueTypeI64}}},
		ImportSection: []*ImportSegment{{
			Module: "env", Name: "f",
			Desc: &ImportDesc{Kind: ImportKindFunc, TypeIndexPtr: &zero},
		}},
	}
	err := s.Instantiate(m, "mod")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature mismatch")
}

func TestInstantiate_ImportKindMismatch(t *testing.T) {
	s := NewStore(&fakeEngine{})
	require.NoError(t, s.AddGlobal("env", "g", 1, ValueTypeI32, false))

	zero := Index(0)
	m := &Module{
		TypeSection: []*FunctionType{{}},
		ImportSection: []*ImportSegment{{
			Module: "env", Name: "g",
			Desc: &ImportDesc{Kind: ImportKindFunc, TypeIndexPtr: &zero},
		}},
	}
	err := s.Instantiate(m, "mod")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want func")
}

func TestInstantiate_MemoryImportLimits(t *testing.T) {
	s := NewStore(&fakeEngine{})
	require.NoError(t, s.AddMemoryInstance("env", "mem", 1, nil))

	// The import requires at least 2 pages, the registered memory has 1.
	m := &Module{
		ImportSection: []*ImportSegment{{
			Module: "env", Name: "mem",
			Desc: &ImportDesc{Kind: ImportKindMemory, MemTypePtr: &MemoryType{Min: 2}},
		}},
	}
	err := s.Instantiate(m, "mod")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimum size mismatch")

	// An unbounded memory cannot satisfy an import that demands a maximum.
	max := uint32(4)
	m.ImportSection[0].Desc.MemTypePtr = &MemoryType{Min: 1, Max: &max}
	err = s.Instantiate(m, "mod")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum size mismatch")
}

func TestInstantiate_GlobalImport(t *testing.T) {
	s := NewStore(&fakeEngine{})
	require.NoError(t, s.AddGlobal("env", "base", 32, ValueTypeI32, false))

	// A module global initialized from the imported one.
	m := &Module{
		ImportSection: []*ImportSegment{{
			Module: "env", Name: "base",
			Desc: &ImportDesc{Kind: ImportKindGlobal, GlobalTypePtr: &GlobalType{ValType: ValueTypeI32}},
		}},
		GlobalSection: []*GlobalSegment{{
			Type: &GlobalType{ValType: ValueTypeI32},
			Init: &ConstantExpression{Opcode: OpcodeGlobalGet, Data: []byte{0x00}},
		}},
	}
	require.NoError(t, s.Instantiate(m, "mod"))

	instance := s.ModuleInstances["mod"]
	require.Len(t, instance.Globals, 2)
	assert.Equal(t, uint64(32), instance.Globals[1].Val)
}

func TestInstantiate_DataSegmentOutOfBounds(t *testing.T) {
	s := NewStore(&fakeEngine{})
	m := &Module{
		MemorySection: []*MemoryType{{Min: 1}},
		DataSection: []*DataSegment{{
			// Offset one page in, so the 4 byte payload does not fit.
			OffsetExpr: &ConstantExpression{Opcode: OpcodeI32Const, Data: []byte{0xfe, 0xff, 0x03}},
			Init:       []byte{1, 2, 3, 4},
		}},
	}
	err := s.Instantiate(m, "mod")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not fit")

	// Failed instantiation leaves no trace in the store.
	assert.Empty(t, s.ModuleInstances)
	assert.Empty(t, s.Memories)
}

func TestInstantiate_ElementSegmentRollback(t *testing.T) {
	s := NewStore(&fakeEngine{})
	require.NoError(t, s.AddTableInstance("env", "tbl", 2, nil))

	exp, err := s.GetExport("env", "tbl")
	require.NoError(t, err)
	sharedTable := exp.Table

	two := uint32(2)
	m := &Module{
		TypeSection:     []*FunctionType{{}},
		FunctionSection: []Index{0},
		CodeSection:     []*CodeSegment{{Body: []byte{OpcodeEnd}}},
		ImportSection: []*ImportSegment{{
			Module: "env", Name: "tbl",
			Desc: &ImportDesc{
				Kind:         ImportKindTable,
				TableTypePtr: &TableType{ElemType: ElemTypeFuncref, Limits: &LimitsType{Min: 2, Max: &two}},
			},
		}},
		ElementSection: []*ElementSegment{
			{
				OffsetExpr: &ConstantExpression{Opcode: OpcodeI32Const, Data: []byte{0x00}},
				Init:       []Index{0},
			},
			{
				// Does not fit, so the first segment's write into the
				// shared table must be rolled back.
				OffsetExpr: &ConstantExpression{Opcode: OpcodeI32Const, Data: []byte{0x02}},
				Init:       []Index{0},
			},
		},
	}
	err = s.Instantiate(m, "mod")
	require.Error(t, err)
	assert.Nil(t, sharedTable.Table[0])
}

func TestInstantiate_StartFunctionTrap(t *testing.T) {
	engine := &fakeEngine{callErr: ErrRuntimeUnreachable}
	s := NewStore(engine)

	zero := Index(0)
	m := &Module{
		TypeSection:     []*FunctionType{{}},
		FunctionSection: []Index{0},
		StartSection:    &zero,
		CodeSection:     []*CodeSegment{{Body: []byte{OpcodeUnreachable, OpcodeEnd}}},
	}
	err := s.Instantiate(m, "mod")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRuntimeUnreachable)
	assert.Empty(t, s.ModuleInstances)
	assert.Empty(t, s.Functions)
}

func TestCallFunction_Errors(t *testing.T) {
	s := NewStore(&fakeEngine{callRet: []uint64{1}})
	require.NoError(t, s.Instantiate(validModule(), "mod"))

	_, _, err := s.CallFunction("nope", "f")
	require.Error(t, err)

	_, _, err = s.CallFunction("mod", "nope")
	require.Error(t, err)

	_, _, err = s.CallFunction("mod", "f", 1, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arguments")

	ret, types, err := s.CallFunction("mod", "f")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, ret)
	assert.Equal(t, []ValueType{ValueTypeI32}, types)
}

func TestAddHostFunction(t *testing.T) {
	s := NewStore(&fakeEngine{})

	err := s.AddHostFunction("env", "f", reflect.ValueOf(func() {}))
	require.Error(t, err, "missing context parameter")

	err = s.AddHostFunction("env", "f", reflect.ValueOf(
		func(ctx *HostFunctionCallContext, v string) {}))
	require.Error(t, err, "unsupported parameter kind")

	err = s.AddHostFunction("env", "f", reflect.ValueOf(
		func(ctx *HostFunctionCallContext, a uint32, b float64) int64 { return 0 }))
	require.NoError(t, err)

	exp, err := s.GetExport("env", "f")
	require.NoError(t, err)
	assert.Equal(t, &FunctionType{
		Params:  []ValueType{ValueTypeI32, ValueTypeF64},
		Results: []ValueType{ValueTypeI64},
	}, exp.Function.Signature)

	// Duplicate registration is rejected.
	err = s.AddHostFunction("env", "f", reflect.ValueOf(
		func(ctx *HostFunctionCallContext) {}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestAddGlobal(t *testing.T) {
	s := NewStore(&fakeEngine{})
	require.NoError(t, s.AddGlobal("env", "g", 7, ValueTypeI64, true))

	exp, err := s.GetExport("env", "g")
	require.NoError(t, err)
	require.Equal(t, ExportKindGlobal, exp.Kind)
	assert.Equal(t, uint64(7), exp.Global.Val)
	assert.True(t, exp.Global.Type.Mutable)
}
