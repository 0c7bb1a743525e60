package wasm

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sync"

	"github.com/wasmkit/wasmkit/wasm/ieee754"
	"github.com/wasmkit/wasmkit/wasm/leb128"
)

type (
	// Store holds every entity instantiated or registered so far and the
	// engine that executes functions. Instantiated modules can import from
	// any module already in the store. A Store is safe for concurrent use;
	// its mutex serializes instantiation and registration.
	Store struct {
		mux sync.RWMutex
		// execMux serializes engine calls: engines are single threaded.
		execMux         sync.Mutex
		engine          Engine
		ModuleInstances map[string]*ModuleInstance

		Functions []*FunctionInstance
		Globals   []*GlobalInstance
		Memories  []*MemoryInstance
		Tables    []*TableInstance
	}

	// ModuleInstance is the runtime representation of one instantiated
	// module: its index spaces resolved to concrete instances, imports
	// first.
	ModuleInstance struct {
		Exports   map[string]*ExportInstance
		Functions []*FunctionInstance
		Globals   []*GlobalInstance
		Memory    *MemoryInstance
		Tables    []*TableInstance

		Types []*FunctionType
	}

	// ExportInstance is one entry of a module instance's export map. The
	// field selected by Kind is set.
	ExportInstance struct {
		Kind     ExportKind
		Function *FunctionInstance
		Global   *GlobalInstance
		Memory   *MemoryInstance
		Table    *TableInstance
	}

	// FunctionInstance is a callable function: either a module function
	// with a validated Body and Blocks, or a host function wrapping a Go
	// reflect.Value.
	FunctionInstance struct {
		Name           string
		ModuleInstance *ModuleInstance
		Body           []byte
		Signature      *FunctionType
		LocalTypes     []ValueType
		Blocks         map[uint64]*CodeBlock
		HostFunction   *reflect.Value
	}

	GlobalInstance struct {
		Type *GlobalType
		Val  uint64
	}

	TableInstance struct {
		Table    []*TableElement
		Min      uint32
		Max      *uint32
		ElemType byte
	}

	// TableElement is one table slot. A nil entry or nil Function traps
	// call_indirect.
	TableElement struct {
		Function *FunctionInstance
	}
)

// NewStore returns an empty store executing functions with engine.
func NewStore(engine Engine) *Store {
	return &Store{ModuleInstances: map[string]*ModuleInstance{}, engine: engine}
}

// Instantiate validates module, resolves its imports against previously
// instantiated modules, allocates its instances and runs its start function.
// On any failure the store is left as it was before the call.
func (s *Store) Instantiate(module *Module, name string) error {
	if err := module.Validate(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	// The build steps below mutate the store, so on error every completed
	// step must be rolled back.
	var rollbackFuncs []func()
	rollback := func() {
		for _, f := range rollbackFuncs {
			f()
		}
	}

	s.mux.Lock()
	fail := func(err error) error {
		rollback()
		s.mux.Unlock()
		return err
	}
	if _, ok := s.ModuleInstances[name]; ok {
		s.mux.Unlock()
		return fmt.Errorf("module %q already instantiated", name)
	}

	instance := &ModuleInstance{Types: module.TypeSection}
	// Resolve imports before mutating the store.
	if err := s.resolveImports(module, instance); err != nil {
		s.mux.Unlock()
		return fmt.Errorf("resolve imports: %w", err)
	}
	rs, err := s.buildGlobalInstances(module, instance)
	rollbackFuncs = append(rollbackFuncs, rs...)
	if err != nil {
		return fail(fmt.Errorf("globals: %w", err))
	}
	rs, err = s.buildFunctionInstances(module, instance)
	rollbackFuncs = append(rollbackFuncs, rs...)
	if err != nil {
		return fail(fmt.Errorf("functions: %w", err))
	}
	rs, err = s.buildTableInstances(module, instance)
	rollbackFuncs = append(rollbackFuncs, rs...)
	if err != nil {
		return fail(fmt.Errorf("tables: %w", err))
	}
	rs, err = s.buildMemoryInstances(module, instance)
	rollbackFuncs = append(rollbackFuncs, rs...)
	if err != nil {
		return fail(fmt.Errorf("memories: %w", err))
	}
	if err = s.buildExportInstances(module, instance); err != nil {
		return fail(fmt.Errorf("exports: %w", err))
	}

	s.ModuleInstances[name] = instance
	rollbackFuncs = append(rollbackFuncs, func() {
		delete(s.ModuleInstances, name)
	})
	s.mux.Unlock()

	// The start function runs after the registry lock is released, so host
	// functions it reaches may re-enter the store, and under execMux so it
	// serializes with CallFunction's engine entry. A trap here fails
	// instantiation and rolls the new module back out.
	if module.StartSection != nil {
		f := instance.Functions[*module.StartSection]
		s.execMux.Lock()
		_, err := s.engine.Call(f)
		s.execMux.Unlock()
		if err != nil {
			s.mux.Lock()
			rollback()
			s.mux.Unlock()
			return fmt.Errorf("start function: %w", err)
		}
	}
	return nil
}

// CallFunction invokes the exported function funcName of moduleName. Each
// argument and result is the raw 64bit representation of its value type;
// returnTypes describes how to interpret the results.
func (s *Store) CallFunction(moduleName, funcName string, args ...uint64) (returns []uint64, returnTypes []ValueType, err error) {
	s.mux.RLock()
	m, ok := s.ModuleInstances[moduleName]
	s.mux.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("module %q not instantiated", moduleName)
	}

	exp, ok := m.Exports[funcName]
	if !ok {
		return nil, nil, fmt.Errorf("function %q not exported by %q", funcName, moduleName)
	}
	if exp.Kind != ExportKindFunc {
		return nil, nil, fmt.Errorf("export %q is a %s, not a function", funcName, ExportKindName(exp.Kind))
	}

	f := exp.Function
	if len(f.Signature.Params) != len(args) {
		return nil, nil, fmt.Errorf("%q expects %d arguments, got %d", funcName, len(f.Signature.Params), len(args))
	}

	s.execMux.Lock()
	ret, err := s.engine.Call(f, args...)
	s.execMux.Unlock()
	return ret, f.Signature.Results, err
}

// GetExport looks up an export of an instantiated module.
func (s *Store) GetExport(moduleName, name string) (*ExportInstance, error) {
	s.mux.RLock()
	m, ok := s.ModuleInstances[moduleName]
	s.mux.RUnlock()
	if !ok {
		return nil, fmt.Errorf("module %q not instantiated", moduleName)
	}
	exp, ok := m.Exports[name]
	if !ok {
		return nil, fmt.Errorf("%q not exported by %q", name, moduleName)
	}
	return exp, nil
}

func (s *Store) resolveImports(module *Module, target *ModuleInstance) error {
	for _, is := range module.ImportSection {
		if err := s.resolveImport(target, is); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) resolveImport(target *ModuleInstance, is *ImportSegment) error {
	em, ok := s.ModuleInstances[is.Module]
	if !ok {
		return &UnresolvedImportError{ModuleName: is.Module, FieldName: is.Name}
	}
	e, ok := em.Exports[is.Name]
	if !ok {
		return &UnresolvedImportError{ModuleName: is.Module, FieldName: is.Name}
	}
	if is.Desc.Kind != e.Kind {
		return fmt.Errorf("import %q.%q: want %s, export is %s",
			is.Module, is.Name, ExportKindName(is.Desc.Kind), ExportKindName(e.Kind))
	}
	switch is.Desc.Kind {
	case ImportKindFunc:
		return s.applyFunctionImport(target, is, e)
	case ImportKindTable:
		return s.applyTableImport(target, is, e)
	case ImportKindMemory:
		return s.applyMemoryImport(target, is, e)
	case ImportKindGlobal:
		return s.applyGlobalImport(target, is, e)
	default:
		return fmt.Errorf("import %q.%q: invalid kind 0x%x", is.Module, is.Name, is.Desc.Kind)
	}
}

func (s *Store) applyFunctionImport(target *ModuleInstance, is *ImportSegment, e *ExportInstance) error {
	f := e.Function
	typeIndex := *is.Desc.TypeIndexPtr
	expected := target.Types[typeIndex]
	if !f.Signature.EqualsSignature(expected.Params, expected.Results) {
		return fmt.Errorf("import %q.%q: signature mismatch: want %s, got %s",
			is.Module, is.Name, expected.String(), f.Signature.String())
	}
	target.Functions = append(target.Functions, f)
	return nil
}

func (s *Store) applyTableImport(target *ModuleInstance, is *ImportSegment, e *ExportInstance) error {
	table := e.Table
	tt := is.Desc.TableTypePtr
	if table.ElemType != tt.ElemType {
		return fmt.Errorf("import %q.%q: table element type mismatch", is.Module, is.Name)
	}
	if table.Min < tt.Limits.Min {
		return fmt.Errorf("import %q.%q: table minimum size mismatch", is.Module, is.Name)
	}
	if tt.Limits.Max != nil {
		if table.Max == nil || *table.Max > *tt.Limits.Max {
			return fmt.Errorf("import %q.%q: table maximum size mismatch", is.Module, is.Name)
		}
	}
	target.Tables = append(target.Tables, table)
	return nil
}

func (s *Store) applyMemoryImport(target *ModuleInstance, is *ImportSegment, e *ExportInstance) error {
	memory := e.Memory
	mt := is.Desc.MemTypePtr
	if memory.Min < mt.Min {
		return fmt.Errorf("import %q.%q: memory minimum size mismatch", is.Module, is.Name)
	}
	if mt.Max != nil {
		if memory.Max == nil || *memory.Max > *mt.Max {
			return fmt.Errorf("import %q.%q: memory maximum size mismatch", is.Module, is.Name)
		}
	}
	target.Memory = memory
	return nil
}

func (s *Store) applyGlobalImport(target *ModuleInstance, is *ImportSegment, e *ExportInstance) error {
	g := e.Global
	gt := is.Desc.GlobalTypePtr
	if gt.Mutable != g.Type.Mutable {
		return fmt.Errorf("import %q.%q: global mutability mismatch", is.Module, is.Name)
	}
	if gt.ValType != g.Type.ValType {
		return fmt.Errorf("import %q.%q: global value type mismatch", is.Module, is.Name)
	}
	target.Globals = append(target.Globals, g)
	return nil
}

// executeConstExpression evaluates an initializer expression against the
// imported globals resolved so far. Validate already checked the expression's
// shape and type.
func (s *Store) executeConstExpression(target *ModuleInstance, expr *ConstantExpression) (v uint64, valueType ValueType, err error) {
	r := bytes.NewReader(expr.Data)
	switch expr.Opcode {
	case OpcodeI32Const:
		val, _, err := leb128.DecodeInt32(r)
		if err != nil {
			return 0, 0, fmt.Errorf("read i32: %w", err)
		}
		return uint64(uint32(val)), ValueTypeI32, nil
	case OpcodeI64Const:
		val, _, err := leb128.DecodeInt64(r)
		if err != nil {
			return 0, 0, fmt.Errorf("read i64: %w", err)
		}
		return uint64(val), ValueTypeI64, nil
	case OpcodeF32Const:
		val, err := ieee754.DecodeFloat32(r)
		if err != nil {
			return 0, 0, fmt.Errorf("read f32: %w", err)
		}
		return uint64(math.Float32bits(val)), ValueTypeF32, nil
	case OpcodeF64Const:
		val, err := ieee754.DecodeFloat64(r)
		if err != nil {
			return 0, 0, fmt.Errorf("read f64: %w", err)
		}
		return math.Float64bits(val), ValueTypeF64, nil
	case OpcodeGlobalGet:
		index, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return 0, 0, fmt.Errorf("read global index: %w", err)
		}
		if int(index) >= len(target.Globals) {
			return 0, 0, fmt.Errorf("global index %d out of range", index)
		}
		g := target.Globals[index]
		return g.Val, g.Type.ValType, nil
	}
	return 0, 0, fmt.Errorf("invalid opcode 0x%x in constant expression", expr.Opcode)
}

func (s *Store) buildGlobalInstances(module *Module, target *ModuleInstance) (rollbackFuncs []func(), err error) {
	prevLen := len(s.Globals)
	rollbackFuncs = append(rollbackFuncs, func() {
		s.Globals = s.Globals[:prevLen]
	})
	for _, gs := range module.GlobalSection {
		val, t, err := s.executeConstExpression(target, gs.Init)
		if err != nil {
			return rollbackFuncs, fmt.Errorf("initializer: %w", err)
		}
		if gs.Type.ValType != t {
			return rollbackFuncs, fmt.Errorf("global initializer type mismatch")
		}
		g := &GlobalInstance{Type: gs.Type, Val: val}
		target.Globals = append(target.Globals, g)
		s.Globals = append(s.Globals, g)
	}
	return rollbackFuncs, nil
}

func (s *Store) buildFunctionInstances(module *Module, target *ModuleInstance) (rollbackFuncs []func(), err error) {
	prevLen := len(s.Functions)
	rollbackFuncs = append(rollbackFuncs, func() {
		s.Functions = s.Functions[:prevLen]
	})
	for codeIndex, typeIndex := range module.FunctionSection {
		code := module.CodeSection[codeIndex]
		f := &FunctionInstance{
			Signature:      module.TypeSection[typeIndex],
			Body:           code.Body,
			LocalTypes:     code.LocalTypes,
			Blocks:         code.Blocks,
			ModuleInstance: target,
		}
		if err := s.engine.Compile(f); err != nil {
			return rollbackFuncs, fmt.Errorf("compile function %d: %w", codeIndex, err)
		}
		target.Functions = append(target.Functions, f)
		s.Functions = append(s.Functions, f)
	}
	return rollbackFuncs, nil
}

func (s *Store) buildMemoryInstances(module *Module, target *ModuleInstance) (rollbackFuncs []func(), err error) {
	prevLen := len(s.Memories)
	rollbackFuncs = append(rollbackFuncs, func() {
		s.Memories = s.Memories[:prevLen]
	})
	for _, memSec := range module.MemorySection {
		target.Memory = &MemoryInstance{
			Buffer: make([]byte, uint64(memSec.Min)*MemoryPageSize),
			Min:    memSec.Min,
			Max:    memSec.Max,
		}
		s.Memories = append(s.Memories, target.Memory)
	}

	for _, d := range module.DataSection {
		if target.Memory == nil {
			return rollbackFuncs, fmt.Errorf("data segment with no memory")
		}
		rawOffset, _, err := s.executeConstExpression(target, d.OffsetExpr)
		if err != nil {
			return rollbackFuncs, fmt.Errorf("data segment offset: %w", err)
		}
		offset := int32(rawOffset)
		if offset < 0 {
			return rollbackFuncs, fmt.Errorf("data segment offset must be non-negative: %d", offset)
		}
		memory := target.Memory
		end := uint64(offset) + uint64(len(d.Init))
		if end > uint64(len(memory.Buffer)) {
			return rollbackFuncs, fmt.Errorf("data segment [%d, %d) does not fit in memory of %d bytes",
				offset, end, len(memory.Buffer))
		}
		// Record the overwritten bytes before mutating the memory.
		original := make([]byte, len(d.Init))
		copy(original, memory.Buffer[offset:])
		rollbackFuncs = append(rollbackFuncs, func() {
			copy(memory.Buffer[offset:], original)
		})
		copy(memory.Buffer[offset:], d.Init)
	}
	return rollbackFuncs, nil
}

func (s *Store) buildTableInstances(module *Module, target *ModuleInstance) (rollbackFuncs []func(), err error) {
	prevLen := len(s.Tables)
	rollbackFuncs = append(rollbackFuncs, func() {
		s.Tables = s.Tables[:prevLen]
	})
	for _, tableSeg := range module.TableSection {
		tableInst := &TableInstance{
			Table:    make([]*TableElement, tableSeg.Limits.Min),
			Min:      tableSeg.Limits.Min,
			Max:      tableSeg.Limits.Max,
			ElemType: tableSeg.ElemType,
		}
		target.Tables = append(target.Tables, tableInst)
		s.Tables = append(s.Tables, tableInst)
	}

	for _, elem := range module.ElementSection {
		if int(elem.TableIndex) >= len(target.Tables) {
			return rollbackFuncs, fmt.Errorf("element segment for unknown table %d", elem.TableIndex)
		}
		rawOffset, _, err := s.executeConstExpression(target, elem.OffsetExpr)
		if err != nil {
			return rollbackFuncs, fmt.Errorf("element segment offset: %w", err)
		}
		offset32 := int32(rawOffset)
		if offset32 < 0 {
			return rollbackFuncs, fmt.Errorf("element segment offset must be non-negative: %d", offset32)
		}
		offset := int(offset32)
		tableInst := target.Tables[elem.TableIndex]
		if offset+len(elem.Init) > len(tableInst.Table) {
			return rollbackFuncs, fmt.Errorf("element segment [%d, %d) does not fit in table of %d elements",
				offset, offset+len(elem.Init), len(tableInst.Table))
		}
		for i, funcIndex := range elem.Init {
			if int(funcIndex) >= len(target.Functions) {
				return rollbackFuncs, fmt.Errorf("element segment references unknown function %d", funcIndex)
			}
			pos := i + offset
			original := tableInst.Table[pos]
			rollbackFuncs = append(rollbackFuncs, func() {
				tableInst.Table[pos] = original
			})
			tableInst.Table[pos] = &TableElement{Function: target.Functions[funcIndex]}
		}
	}
	return rollbackFuncs, nil
}

func (s *Store) buildExportInstances(module *Module, target *ModuleInstance) error {
	target.Exports = make(map[string]*ExportInstance, len(module.ExportSection))
	for name, exp := range module.ExportSection {
		index := int(exp.Index)
		instance := &ExportInstance{Kind: exp.Kind}
		switch exp.Kind {
		case ExportKindFunc:
			instance.Function = target.Functions[index]
		case ExportKindGlobal:
			instance.Global = target.Globals[index]
		case ExportKindMemory:
			instance.Memory = target.Memory
		case ExportKindTable:
			instance.Table = target.Tables[index]
		}
		target.Exports[name] = instance
	}
	return nil
}

// AddHostFunction makes a Go function callable from modules as
// moduleName.funcName. fn must take *HostFunctionCallContext as its first
// parameter; the remaining parameters and the results must be (u)int32,
// (u)int64, float32 or float64, which map onto the wasm value types.
func (s *Store) AddHostFunction(moduleName, funcName string, fn reflect.Value) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	sig, err := hostFunctionSignature(fn.Type())
	if err != nil {
		return fmt.Errorf("invalid signature for %s.%s: %w", moduleName, funcName, err)
	}

	m := s.hostModule(moduleName)
	if _, ok := m.Exports[funcName]; ok {
		return fmt.Errorf("%q already exists in module %q", funcName, moduleName)
	}

	f := &FunctionInstance{
		Name:           fmt.Sprintf("%s.%s", moduleName, funcName),
		HostFunction:   &fn,
		Signature:      sig,
		ModuleInstance: m,
	}
	if err := s.engine.Compile(f); err != nil {
		return fmt.Errorf("compile %s: %w", f.Name, err)
	}
	m.Exports[funcName] = &ExportInstance{Kind: ExportKindFunc, Function: f}
	s.Functions = append(s.Functions, f)
	return nil
}

// AddGlobal registers a global under moduleName.name for other modules to
// import.
func (s *Store) AddGlobal(moduleName, name string, value uint64, valueType ValueType, mutable bool) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	m := s.hostModule(moduleName)
	if _, ok := m.Exports[name]; ok {
		return fmt.Errorf("%q already exists in module %q", name, moduleName)
	}
	g := &GlobalInstance{
		Val:  value,
		Type: &GlobalType{Mutable: mutable, ValType: valueType},
	}
	m.Exports[name] = &ExportInstance{Kind: ExportKindGlobal, Global: g}
	s.Globals = append(s.Globals, g)
	return nil
}

// AddTableInstance registers an empty table under moduleName.name for other
// modules to import.
func (s *Store) AddTableInstance(moduleName, name string, min uint32, max *uint32) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	m := s.hostModule(moduleName)
	if _, ok := m.Exports[name]; ok {
		return fmt.Errorf("%q already exists in module %q", name, moduleName)
	}
	table := &TableInstance{
		Table:    make([]*TableElement, min),
		Min:      min,
		Max:      max,
		ElemType: ElemTypeFuncref,
	}
	m.Exports[name] = &ExportInstance{Kind: ExportKindTable, Table: table}
	s.Tables = append(s.Tables, table)
	return nil
}

// AddMemoryInstance registers a zeroed memory under moduleName.name for other
// modules to import.
func (s *Store) AddMemoryInstance(moduleName, name string, min uint32, max *uint32) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	m := s.hostModule(moduleName)
	if _, ok := m.Exports[name]; ok {
		return fmt.Errorf("%q already exists in module %q", name, moduleName)
	}
	memory := &MemoryInstance{
		Buffer: make([]byte, uint64(min)*MemoryPageSize),
		Min:    min,
		Max:    max,
	}
	m.Exports[name] = &ExportInstance{Kind: ExportKindMemory, Memory: memory}
	s.Memories = append(s.Memories, memory)
	return nil
}

func (s *Store) hostModule(moduleName string) *ModuleInstance {
	m, ok := s.ModuleInstances[moduleName]
	if !ok {
		m = &ModuleInstance{Exports: map[string]*ExportInstance{}}
		s.ModuleInstances[moduleName] = m
	}
	return m
}

// hostFunctionSignature derives a FunctionType from a Go function's type.
func hostFunctionSignature(p reflect.Type) (*FunctionType, error) {
	valueTypeOf := func(kind reflect.Kind) (ValueType, error) {
		switch kind {
		case reflect.Int32, reflect.Uint32:
			return ValueTypeI32, nil
		case reflect.Int64, reflect.Uint64:
			return ValueTypeI64, nil
		case reflect.Float32:
			return ValueTypeF32, nil
		case reflect.Float64:
			return ValueTypeF64, nil
		default:
			return 0x00, fmt.Errorf("unsupported kind %s", kind)
		}
	}
	if p.Kind() != reflect.Func {
		return nil, fmt.Errorf("not a function: %s", p.Kind())
	}
	if p.NumIn() == 0 || p.In(0) != reflect.TypeOf(&HostFunctionCallContext{}) {
		return nil, fmt.Errorf("the first parameter must be *wasm.HostFunctionCallContext")
	}
	var err error
	in := make([]ValueType, p.NumIn()-1)
	for i := range in {
		if in[i], err = valueTypeOf(p.In(i + 1).Kind()); err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
	}
	out := make([]ValueType, p.NumOut())
	for i := range out {
		if out[i], err = valueTypeOf(p.Out(i).Kind()); err != nil {
			return nil, fmt.Errorf("result %d: %w", i, err)
		}
	}
	return &FunctionType{Params: in, Results: out}, nil
}
