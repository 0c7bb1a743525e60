package wasm

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/wasmkit/wasmkit/wasm/leb128"
)

// Validate checks the module against the WebAssembly 1.0 (MVP) validation
// rules: cross-section index references, constant expressions and the type
// soundness of every function body. Function body failures are reported as a
// *ValidationError carrying the function index and body offset.
//
// As a side effect, Validate records the control metadata of each structured
// instruction into CodeSegment.Blocks. Engines rely on this: an unvalidated
// module must never be executed.
func (m *Module) Validate() error {
	if err := m.validateImports(); err != nil {
		return err
	}

	functions := m.funcTypeIndexes()
	globals := m.globalTypes()

	if len(m.FunctionSection) != len(m.CodeSection) {
		return fmt.Errorf("function and code section length mismatch: %d vs %d",
			len(m.FunctionSection), len(m.CodeSection))
	}
	for i, typeIndex := range m.FunctionSection {
		if int(typeIndex) >= len(m.TypeSection) {
			return fmt.Errorf("invalid type index %d for function %d", typeIndex, i)
		}
	}

	// WebAssembly 1.0 (MVP) allows at most one table and one memory.
	if m.tableCount() > 1 {
		return fmt.Errorf("multiple tables are not supported")
	}
	if m.memoryCount() > 1 {
		return fmt.Errorf("multiple memories are not supported")
	}
	for _, t := range m.TableSection {
		if t.ElemType != ElemTypeFuncref {
			return fmt.Errorf("invalid element type 0x%x", t.ElemType)
		}
		if err := t.Limits.Valid(); err != nil {
			return fmt.Errorf("invalid table: %w", err)
		}
	}
	for _, mem := range m.MemorySection {
		if err := m.validateMemoryType(mem); err != nil {
			return err
		}
	}

	for i, g := range m.GlobalSection {
		if err := m.validateConstExpression(g.Init, g.Type.ValType); err != nil {
			return fmt.Errorf("invalid initializer for global %d: %w", i, err)
		}
	}

	if err := m.validateExports(functions, globals); err != nil {
		return err
	}

	if m.StartSection != nil {
		index := *m.StartSection
		if int(index) >= len(functions) {
			return fmt.Errorf("invalid start function index: %d", index)
		}
		ft := m.TypeSection[functions[index]]
		if len(ft.Params) != 0 || len(ft.Results) != 0 {
			return fmt.Errorf("start function must have an empty signature, got %s", ft.String())
		}
	}

	for i, elem := range m.ElementSection {
		if elem.TableIndex >= m.tableCount() {
			return fmt.Errorf("element segment %d: unknown table %d", i, elem.TableIndex)
		}
		if err := m.validateConstExpression(elem.OffsetExpr, ValueTypeI32); err != nil {
			return fmt.Errorf("element segment %d: invalid offset: %w", i, err)
		}
		for _, fi := range elem.Init {
			if int(fi) >= len(functions) {
				return fmt.Errorf("element segment %d: unknown function %d", i, fi)
			}
		}
	}

	for i, data := range m.DataSection {
		if data.MemoryIndex >= m.memoryCount() {
			return fmt.Errorf("data segment %d: unknown memory %d", i, data.MemoryIndex)
		}
		if err := m.validateConstExpression(data.OffsetExpr, ValueTypeI32); err != nil {
			return fmt.Errorf("data segment %d: invalid offset: %w", i, err)
		}
	}

	importedFuncs := m.ImportFuncCount()
	for i, code := range m.CodeSection {
		funcIndex := importedFuncs + uint32(i)
		sig := m.TypeSection[m.FunctionSection[i]]
		if err := m.validateFunction(funcIndex, sig, code, functions, globals); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) validateImports() error {
	for i, im := range m.ImportSection {
		switch im.Desc.Kind {
		case ImportKindFunc:
			if int(*im.Desc.TypeIndexPtr) >= len(m.TypeSection) {
				return fmt.Errorf("import %d: invalid type index %d", i, *im.Desc.TypeIndexPtr)
			}
		case ImportKindTable:
			if im.Desc.TableTypePtr.ElemType != ElemTypeFuncref {
				return fmt.Errorf("import %d: invalid element type", i)
			}
			if err := im.Desc.TableTypePtr.Limits.Valid(); err != nil {
				return fmt.Errorf("import %d: %w", i, err)
			}
		case ImportKindMemory:
			if err := m.validateMemoryType(im.Desc.MemTypePtr); err != nil {
				return fmt.Errorf("import %d: %w", i, err)
			}
		case ImportKindGlobal:
			// Nothing beyond what decoding already enforced.
		default:
			return fmt.Errorf("import %d: invalid kind 0x%x", i, im.Desc.Kind)
		}
	}
	return nil
}

func (m *Module) validateMemoryType(mem *MemoryType) error {
	if mem.Min > MemoryMaxPages {
		return fmt.Errorf("memory min %d pages exceeds the maximum of %d", mem.Min, MemoryMaxPages)
	}
	if mem.Max != nil && *mem.Max > MemoryMaxPages {
		return fmt.Errorf("memory max %d pages exceeds the maximum of %d", *mem.Max, MemoryMaxPages)
	}
	if err := mem.Valid(); err != nil {
		return fmt.Errorf("invalid memory: %w", err)
	}
	return nil
}

func (m *Module) validateExports(functions []Index, globals []*GlobalType) error {
	for name, exp := range m.ExportSection {
		switch exp.Kind {
		case ExportKindFunc:
			if int(exp.Index) >= len(functions) {
				return fmt.Errorf("export %q: unknown function %d", name, exp.Index)
			}
		case ExportKindGlobal:
			if int(exp.Index) >= len(globals) {
				return fmt.Errorf("export %q: unknown global %d", name, exp.Index)
			}
		case ExportKindMemory:
			if exp.Index >= m.memoryCount() {
				return fmt.Errorf("export %q: unknown memory %d", name, exp.Index)
			}
		case ExportKindTable:
			if exp.Index >= m.tableCount() {
				return fmt.Errorf("export %q: unknown table %d", name, exp.Index)
			}
		default:
			return fmt.Errorf("export %q: invalid kind 0x%x", name, exp.Kind)
		}
	}
	return nil
}

// validateConstExpression checks that an initializer expression evaluates to
// the expected type. global.get may only refer to an imported immutable
// global since module-defined globals are not yet initialized.
func (m *Module) validateConstExpression(expr *ConstantExpression, expected ValueType) error {
	if expr == nil {
		return fmt.Errorf("empty expression")
	}
	var actual ValueType
	r := bytes.NewReader(expr.Data)
	switch expr.Opcode {
	case OpcodeI32Const:
		if _, _, err := leb128.DecodeInt32(r); err != nil {
			return fmt.Errorf("read i32: %w", err)
		}
		actual = ValueTypeI32
	case OpcodeI64Const:
		if _, _, err := leb128.DecodeInt64(r); err != nil {
			return fmt.Errorf("read i64: %w", err)
		}
		actual = ValueTypeI64
	case OpcodeF32Const:
		actual = ValueTypeF32
	case OpcodeF64Const:
		actual = ValueTypeF64
	case OpcodeGlobalGet:
		index, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("read global index: %w", err)
		}
		if index >= m.ImportGlobalCount() {
			return fmt.Errorf("global.get %d does not refer to an imported global", index)
		}
		var count uint32
		for _, im := range m.ImportSection {
			if im.Desc.Kind != ImportKindGlobal {
				continue
			}
			if count == index {
				if im.Desc.GlobalTypePtr.Mutable {
					return fmt.Errorf("global.get %d refers to a mutable global", index)
				}
				actual = im.Desc.GlobalTypePtr.ValType
			}
			count++
		}
	default:
		return fmt.Errorf("invalid opcode 0x%x in constant expression", expr.Opcode)
	}
	if actual != expected {
		return fmt.Errorf("type mismatch: want %s, got %s", ValueTypeName(expected), ValueTypeName(actual))
	}
	return nil
}

// valueTypeUnknown marks a stack slot of polymorphic type, pushed after
// stack-polymorphic instructions such as unreachable and br. It matches any
// expected type during verification.
const valueTypeUnknown = ValueType(0xff)

// valueTypeStack tracks operand types during function body validation.
// stackLimits holds, for each enclosing block, the stack height at block
// entry: instructions inside a block may not pop below it.
type valueTypeStack struct {
	stack       []ValueType
	stackLimits []int
}

func (s *valueTypeStack) pop() (ValueType, error) {
	limit := 0
	if len(s.stackLimits) > 0 {
		limit = s.stackLimits[len(s.stackLimits)-1]
	}
	if len(s.stack) <= limit {
		return 0, fmt.Errorf("stack underflow: pop at height %d with limit %d", len(s.stack), limit)
	} else if len(s.stack) == limit+1 && s.stack[limit] == valueTypeUnknown {
		return valueTypeUnknown, nil
	}
	ret := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return ret, nil
}

func (s *valueTypeStack) popAndVerifyType(expected ValueType) error {
	actual, err := s.pop()
	if err != nil {
		return err
	}
	if actual != expected && actual != valueTypeUnknown && expected != valueTypeUnknown {
		return fmt.Errorf("type mismatch: want %s, got %s", ValueTypeName(expected), ValueTypeName(actual))
	}
	return nil
}

func (s *valueTypeStack) push(v ValueType) {
	s.stack = append(s.stack, v)
}

func (s *valueTypeStack) unreachable() {
	s.resetAtStackLimit()
	s.stack = append(s.stack, valueTypeUnknown)
}

func (s *valueTypeStack) resetAtStackLimit() {
	if len(s.stackLimits) != 0 {
		s.stack = s.stack[:s.stackLimits[len(s.stackLimits)-1]]
	} else {
		s.stack = []ValueType{}
	}
}

func (s *valueTypeStack) popStackLimit() {
	if len(s.stackLimits) != 0 {
		s.stackLimits = s.stackLimits[:len(s.stackLimits)-1]
	}
}

func (s *valueTypeStack) pushStackLimit() {
	s.stackLimits = append(s.stackLimits, len(s.stack))
}

func (s *valueTypeStack) popResults(expResults []ValueType, checkAboveLimit bool) error {
	limit := 0
	if len(s.stackLimits) > 0 {
		limit = s.stackLimits[len(s.stackLimits)-1]
	}
	for _, exp := range expResults {
		if err := s.popAndVerifyType(exp); err != nil {
			return err
		}
	}
	if checkAboveLimit {
		if !(limit == len(s.stack) || (limit+1 == len(s.stack) && s.stack[limit] == valueTypeUnknown)) {
			return fmt.Errorf("leftover values on the stack")
		}
	}
	return nil
}

// validateFunction performs a single pass over a function body, checking
// every instruction against the current operand type stack and recording the
// boundaries of each structured instruction into code.Blocks.
func (m *Module) validateFunction(
	funcIndex Index,
	sig *FunctionType,
	code *CodeSegment,
	functions []Index,
	globals []*GlobalType,
) error {
	var pc uint64
	fail := func(format string, args ...interface{}) error {
		return &ValidationError{FuncIndex: funcIndex, Offset: pc, Reason: fmt.Sprintf(format, args...)}
	}

	body := code.Body
	if len(body) == 0 || body[len(body)-1] != OpcodeEnd {
		return fail("function body must end with the end opcode")
	}
	code.Blocks = map[uint64]*CodeBlock{}

	hasMemory := m.memoryCount() > 0
	hasTable := m.tableCount() > 0
	numLocals := uint32(len(sig.Params)) + uint32(len(code.LocalTypes))
	localType := func(index uint32) ValueType {
		if index < uint32(len(sig.Params)) {
			return sig.Params[index]
		}
		return code.LocalTypes[index-uint32(len(sig.Params))]
	}

	// The implicit outer block has the function's own signature. StartAt is
	// a sentinel so it is never confused with a real block offset.
	labelStack := []*CodeBlock{{BlockType: sig, StartAt: math.MaxUint64}}
	stack := &valueTypeStack{}
	for pc = 0; pc < uint64(len(body)); pc++ {
		op := body[pc]
		if OpcodeI32Load <= op && op <= OpcodeI64Store32 {
			if !hasMemory {
				return fail("memory instruction with no memory defined")
			}
			pc++
			align, num, err := leb128.DecodeUint32(bytes.NewReader(body[pc:]))
			if err != nil {
				return fail("read memory align: %v", err)
			}
			maxAlign := map[Opcode]uint32{
				OpcodeI32Load: 32 / 8, OpcodeF32Load: 32 / 8, OpcodeI32Store: 32 / 8, OpcodeF32Store: 32 / 8,
				OpcodeI64Load: 64 / 8, OpcodeF64Load: 64 / 8, OpcodeI64Store: 64 / 8, OpcodeF64Store: 64 / 8,
				OpcodeI32Load8S: 1, OpcodeI32Load8U: 1, OpcodeI64Load8S: 1, OpcodeI64Load8U: 1,
				OpcodeI32Store8: 1, OpcodeI64Store8: 1,
				OpcodeI32Load16S: 2, OpcodeI32Load16U: 2, OpcodeI64Load16S: 2, OpcodeI64Load16U: 2,
				OpcodeI32Store16: 2, OpcodeI64Store16: 2,
				OpcodeI64Load32S: 4, OpcodeI64Load32U: 4, OpcodeI64Store32: 4,
			}[op]
			if align > 16 || 1<<align > maxAlign {
				return fail("invalid memory alignment 2^%d for opcode 0x%x", align, op)
			}
			switch op {
			case OpcodeI32Load, OpcodeI32Load8S, OpcodeI32Load8U, OpcodeI32Load16S, OpcodeI32Load16U:
				if err := stack.popAndVerifyType(ValueTypeI32); err != nil {
					return fail("%v", err)
				}
				stack.push(ValueTypeI32)
			case OpcodeI64Load, OpcodeI64Load8S, OpcodeI64Load8U, OpcodeI64Load16S, OpcodeI64Load16U,
				OpcodeI64Load32S, OpcodeI64Load32U:
				if err := stack.popAndVerifyType(ValueTypeI32); err != nil {
					return fail("%v", err)
				}
				stack.push(ValueTypeI64)
			case OpcodeF32Load:
				if err := stack.popAndVerifyType(ValueTypeI32); err != nil {
					return fail("%v", err)
				}
				stack.push(ValueTypeF32)
			case OpcodeF64Load:
				if err := stack.popAndVerifyType(ValueTypeI32); err != nil {
					return fail("%v", err)
				}
				stack.push(ValueTypeF64)
			case OpcodeI32Store, OpcodeI32Store8, OpcodeI32Store16:
				if err := stack.popAndVerifyType(ValueTypeI32); err != nil {
					return fail("%v", err)
				}
				if err := stack.popAndVerifyType(ValueTypeI32); err != nil {
					return fail("%v", err)
				}
			case OpcodeI64Store, OpcodeI64Store8, OpcodeI64Store16, OpcodeI64Store32:
				if err := stack.popAndVerifyType(ValueTypeI64); err != nil {
					return fail("%v", err)
				}
				if err := stack.popAndVerifyType(ValueTypeI32); err != nil {
					return fail("%v", err)
				}
			case OpcodeF32Store:
				if err := stack.popAndVerifyType(ValueTypeF32); err != nil {
					return fail("%v", err)
				}
				if err := stack.popAndVerifyType(ValueTypeI32); err != nil {
					return fail("%v", err)
				}
			case OpcodeF64Store:
				if err := stack.popAndVerifyType(ValueTypeF64); err != nil {
					return fail("%v", err)
				}
				if err := stack.popAndVerifyType(ValueTypeI32); err != nil {
					return fail("%v", err)
				}
			}
			pc += num
			_, num, err = leb128.DecodeUint32(bytes.NewReader(body[pc:]))
			if err != nil {
				return fail("read memory offset: %v", err)
			}
			pc += num - 1
		} else if op == OpcodeMemorySize || op == OpcodeMemoryGrow {
			if !hasMemory {
				return fail("memory instruction with no memory defined")
			}
			pc++
			if pc >= uint64(len(body)) || body[pc] != 0x00 {
				return fail("memory instruction reserved byte must be zero")
			}
			if op == OpcodeMemoryGrow {
				if err := stack.popAndVerifyType(ValueTypeI32); err != nil {
					return fail("%v", err)
				}
			}
			stack.push(ValueTypeI32)
		} else if OpcodeI32Const <= op && op <= OpcodeF64Const {
			pc++
			switch op {
			case OpcodeI32Const:
				_, num, err := leb128.DecodeInt32(bytes.NewReader(body[pc:]))
				if err != nil {
					return fail("read i32 immediate: %v", err)
				}
				pc += num - 1
				stack.push(ValueTypeI32)
			case OpcodeI64Const:
				_, num, err := leb128.DecodeInt64(bytes.NewReader(body[pc:]))
				if err != nil {
					return fail("read i64 immediate: %v", err)
				}
				pc += num - 1
				stack.push(ValueTypeI64)
			case OpcodeF32Const:
				pc += 3
				stack.push(ValueTypeF32)
			case OpcodeF64Const:
				pc += 7
				stack.push(ValueTypeF64)
			}
		} else if OpcodeLocalGet <= op && op <= OpcodeGlobalSet {
			pc++
			index, num, err := leb128.DecodeUint32(bytes.NewReader(body[pc:]))
			if err != nil {
				return fail("read immediate: %v", err)
			}
			pc += num - 1
			switch op {
			case OpcodeLocalGet:
				if index >= numLocals {
					return fail("local.get %d out of range (%d locals)", index, numLocals)
				}
				stack.push(localType(index))
			case OpcodeLocalSet:
				if index >= numLocals {
					return fail("local.set %d out of range (%d locals)", index, numLocals)
				}
				if err := stack.popAndVerifyType(localType(index)); err != nil {
					return fail("%v", err)
				}
			case OpcodeLocalTee:
				if index >= numLocals {
					return fail("local.tee %d out of range (%d locals)", index, numLocals)
				}
				if err := stack.popAndVerifyType(localType(index)); err != nil {
					return fail("%v", err)
				}
				stack.push(localType(index))
			case OpcodeGlobalGet:
				if int(index) >= len(globals) {
					return fail("global.get %d out of range (%d globals)", index, len(globals))
				}
				stack.push(globals[index].ValType)
			case OpcodeGlobalSet:
				if int(index) >= len(globals) {
					return fail("global.set %d out of range (%d globals)", index, len(globals))
				}
				if !globals[index].Mutable {
					return fail("global.set on immutable global %d", index)
				}
				if err := stack.popAndVerifyType(globals[index].ValType); err != nil {
					return fail("%v", err)
				}
			}
		} else if op == OpcodeBr {
			pc++
			index, num, err := leb128.DecodeUint32(bytes.NewReader(body[pc:]))
			if err != nil {
				return fail("read immediate: %v", err)
			}
			if int(index) >= len(labelStack) {
				return fail("br depth %d exceeds label stack height %d", index, len(labelStack))
			}
			pc += num - 1
			target := labelStack[len(labelStack)-int(index)-1]
			// A loop label's continuation is its start, so a branch to it
			// carries no result values.
			targetResults := target.BlockType.Results
			if target.IsLoop {
				targetResults = nil
			}
			if err := stack.popResults(targetResults, false); err != nil {
				return fail("br: %v", err)
			}
			stack.unreachable()
		} else if op == OpcodeBrIf {
			pc++
			index, num, err := leb128.DecodeUint32(bytes.NewReader(body[pc:]))
			if err != nil {
				return fail("read immediate: %v", err)
			}
			if int(index) >= len(labelStack) {
				return fail("br_if depth %d exceeds label stack height %d", index, len(labelStack))
			}
			pc += num - 1
			if err := stack.popAndVerifyType(ValueTypeI32); err != nil {
				return fail("br_if condition: %v", err)
			}
			target := labelStack[len(labelStack)-int(index)-1]
			targetResults := target.BlockType.Results
			if target.IsLoop {
				targetResults = nil
			}
			if err := stack.popResults(targetResults, false); err != nil {
				return fail("br_if: %v", err)
			}
			// The fallthrough path keeps the label's result values.
			for _, t := range targetResults {
				stack.push(t)
			}
		} else if op == OpcodeBrTable {
			pc++
			r := bytes.NewReader(body[pc:])
			nl, num, err := leb128.DecodeUint32(r)
			if err != nil {
				return fail("read immediate: %v", err)
			}
			list := make([]uint32, nl)
			for i := uint32(0); i < nl; i++ {
				l, n, err := leb128.DecodeUint32(r)
				if err != nil {
					return fail("read immediate: %v", err)
				}
				num += n
				list[i] = l
			}
			ln, n, err := leb128.DecodeUint32(r)
			if err != nil {
				return fail("read immediate: %v", err)
			}
			if int(ln) >= len(labelStack) {
				return fail("br_table default depth %d exceeds label stack height %d", ln, len(labelStack))
			}
			pc += num + n - 1
			if err := stack.popAndVerifyType(ValueTypeI32); err != nil {
				return fail("br_table index: %v", err)
			}
			defaultLabel := labelStack[len(labelStack)-1-int(ln)]
			expResults := defaultLabel.BlockType.Results
			if defaultLabel.IsLoop {
				expResults = nil
			}
			for _, l := range list {
				if int(l) >= len(labelStack) {
					return fail("br_table depth %d exceeds label stack height %d", l, len(labelStack))
				}
				label := labelStack[len(labelStack)-1-int(l)]
				results := label.BlockType.Results
				if label.IsLoop {
					results = nil
				}
				if len(results) != len(expResults) {
					return fail("br_table targets have inconsistent result arity")
				}
				for i := range results {
					if results[i] != expResults[i] {
						return fail("br_table targets have inconsistent result types")
					}
				}
			}
			if err := stack.popResults(expResults, false); err != nil {
				return fail("br_table: %v", err)
			}
			stack.unreachable()
		} else if op == OpcodeCall {
			pc++
			index, num, err := leb128.DecodeUint32(bytes.NewReader(body[pc:]))
			if err != nil {
				return fail("read immediate: %v", err)
			}
			pc += num - 1
			if int(index) >= len(functions) {
				return fail("call to unknown function %d", index)
			}
			ft := m.TypeSection[functions[index]]
			for i := len(ft.Params) - 1; i >= 0; i-- {
				if err := stack.popAndVerifyType(ft.Params[i]); err != nil {
					return fail("call argument %d: %v", i, err)
				}
			}
			for _, t := range ft.Results {
				stack.push(t)
			}
		} else if op == OpcodeCallIndirect {
			pc++
			typeIndex, num, err := leb128.DecodeUint32(bytes.NewReader(body[pc:]))
			if err != nil {
				return fail("read immediate: %v", err)
			}
			pc += num
			if pc >= uint64(len(body)) || body[pc] != 0x00 {
				return fail("call_indirect reserved byte must be zero")
			}
			if !hasTable {
				return fail("call_indirect with no table defined")
			}
			if int(typeIndex) >= len(m.TypeSection) {
				return fail("call_indirect to unknown type %d", typeIndex)
			}
			if err := stack.popAndVerifyType(ValueTypeI32); err != nil {
				return fail("call_indirect table index: %v", err)
			}
			ft := m.TypeSection[typeIndex]
			for i := len(ft.Params) - 1; i >= 0; i-- {
				if err := stack.popAndVerifyType(ft.Params[i]); err != nil {
					return fail("call_indirect argument %d: %v", i, err)
				}
			}
			for _, t := range ft.Results {
				stack.push(t)
			}
		} else if OpcodeI32Eqz <= op && op <= OpcodeF64ReinterpretI64 {
			if err := validateNumericOp(op, stack); err != nil {
				return fail("%v", err)
			}
		} else if op == OpcodeBlock {
			bt, num, err := m.readBlockType(bytes.NewReader(body[pc+1:]))
			if err != nil {
				return fail("read block type: %v", err)
			}
			labelStack = append(labelStack, &CodeBlock{
				StartAt:        pc,
				BlockType:      bt,
				BlockTypeBytes: num,
			})
			stack.pushStackLimit()
			pc += num
		} else if op == OpcodeLoop {
			bt, num, err := m.readBlockType(bytes.NewReader(body[pc+1:]))
			if err != nil {
				return fail("read block type: %v", err)
			}
			labelStack = append(labelStack, &CodeBlock{
				StartAt:        pc,
				BlockType:      bt,
				BlockTypeBytes: num,
				IsLoop:         true,
			})
			stack.pushStackLimit()
			pc += num
		} else if op == OpcodeIf {
			bt, num, err := m.readBlockType(bytes.NewReader(body[pc+1:]))
			if err != nil {
				return fail("read block type: %v", err)
			}
			labelStack = append(labelStack, &CodeBlock{
				StartAt:        pc,
				BlockType:      bt,
				BlockTypeBytes: num,
				IsIf:           true,
			})
			if err := stack.popAndVerifyType(ValueTypeI32); err != nil {
				return fail("if condition: %v", err)
			}
			stack.pushStackLimit()
			pc += num
		} else if op == OpcodeElse {
			if len(labelStack) == 0 {
				return fail("else outside any block")
			}
			bl := labelStack[len(labelStack)-1]
			if !bl.IsIf || bl.ElseAt != 0 {
				return fail("else outside an if block")
			}
			bl.ElseAt = pc
			if err := stack.popResults(bl.BlockType.Results, true); err != nil {
				return fail("then arm results: %v", err)
			}
			// The else arm starts from the block's entry stack, not from
			// whatever the then arm left.
			stack.resetAtStackLimit()
		} else if op == OpcodeEnd {
			if len(labelStack) == 0 {
				return fail("end instruction with no open block")
			}
			bl := labelStack[len(labelStack)-1]
			bl.EndAt = pc
			labelStack = labelStack[:len(labelStack)-1]
			if len(labelStack) == 0 && pc != uint64(len(body))-1 {
				return fail("instructions after the function's final end")
			}
			if bl.StartAt != math.MaxUint64 {
				code.Blocks[bl.StartAt] = bl
			}
			if bl.IsIf && bl.ElseAt <= bl.StartAt {
				if len(bl.BlockType.Results) > 0 {
					return fail("if with results requires an else arm")
				}
				// An if without else: point the false branch just before end
				// so execution falls through to it.
				bl.ElseAt = bl.EndAt - 1
			}
			if err := stack.popResults(bl.BlockType.Results, true); err != nil {
				return fail("block results: %v", err)
			}
			// Re-push the results after discarding any unknown slots left
			// between the limit and the top.
			stack.resetAtStackLimit()
			for _, t := range bl.BlockType.Results {
				stack.push(t)
			}
			stack.popStackLimit()
		} else if op == OpcodeReturn {
			for i := len(sig.Results) - 1; i >= 0; i-- {
				if err := stack.popAndVerifyType(sig.Results[i]); err != nil {
					return fail("return: %v", err)
				}
			}
			stack.unreachable()
		} else if op == OpcodeDrop {
			if _, err := stack.pop(); err != nil {
				return fail("drop: %v", err)
			}
		} else if op == OpcodeSelect {
			if err := stack.popAndVerifyType(ValueTypeI32); err != nil {
				return fail("select condition: %v", err)
			}
			v1, err := stack.pop()
			if err != nil {
				return fail("select: %v", err)
			}
			v2, err := stack.pop()
			if err != nil {
				return fail("select: %v", err)
			}
			if v1 != v2 && v1 != valueTypeUnknown && v2 != valueTypeUnknown {
				return fail("select operands have mismatched types")
			}
			if v1 == valueTypeUnknown {
				stack.push(v2)
			} else {
				stack.push(v1)
			}
		} else if op == OpcodeUnreachable {
			stack.unreachable()
		} else if op == OpcodeNop {
		} else {
			return fail("invalid instruction 0x%x", op)
		}
	}

	if len(labelStack) > 0 {
		return fail("unclosed block")
	}
	return nil
}

// validateNumericOp checks one of the immediate-free numeric instructions
// (0x45 to 0xbf) against the operand type stack.
func validateNumericOp(op Opcode, stack *valueTypeStack) error {
	var pops []ValueType
	var push ValueType
	switch op {
	case OpcodeI32Eqz:
		pops, push = []ValueType{ValueTypeI32}, ValueTypeI32
	case OpcodeI32Eq, OpcodeI32Ne, OpcodeI32LtS, OpcodeI32LtU, OpcodeI32GtS,
		OpcodeI32GtU, OpcodeI32LeS, OpcodeI32LeU, OpcodeI32GeS, OpcodeI32GeU:
		pops, push = []ValueType{ValueTypeI32, ValueTypeI32}, ValueTypeI32
	case OpcodeI64Eqz:
		pops, push = []ValueType{ValueTypeI64}, ValueTypeI32
	case OpcodeI64Eq, OpcodeI64Ne, OpcodeI64LtS, OpcodeI64LtU, OpcodeI64GtS,
		OpcodeI64GtU, OpcodeI64LeS, OpcodeI64LeU, OpcodeI64GeS, OpcodeI64GeU:
		pops, push = []ValueType{ValueTypeI64, ValueTypeI64}, ValueTypeI32
	case OpcodeF32Eq, OpcodeF32Ne, OpcodeF32Lt, OpcodeF32Gt, OpcodeF32Le, OpcodeF32Ge:
		pops, push = []ValueType{ValueTypeF32, ValueTypeF32}, ValueTypeI32
	case OpcodeF64Eq, OpcodeF64Ne, OpcodeF64Lt, OpcodeF64Gt, OpcodeF64Le, OpcodeF64Ge:
		pops, push = []ValueType{ValueTypeF64, ValueTypeF64}, ValueTypeI32
	case OpcodeI32Clz, OpcodeI32Ctz, OpcodeI32Popcnt:
		pops, push = []ValueType{ValueTypeI32}, ValueTypeI32
	case OpcodeI32Add, OpcodeI32Sub, OpcodeI32Mul, OpcodeI32DivS, OpcodeI32DivU,
		OpcodeI32RemS, OpcodeI32RemU, OpcodeI32And, OpcodeI32Or, OpcodeI32Xor,
		OpcodeI32Shl, OpcodeI32ShrS, OpcodeI32ShrU, OpcodeI32Rotl, OpcodeI32Rotr:
		pops, push = []ValueType{ValueTypeI32, ValueTypeI32}, ValueTypeI32
	case OpcodeI64Clz, OpcodeI64Ctz, OpcodeI64Popcnt:
		pops, push = []ValueType{ValueTypeI64}, ValueTypeI64
	case OpcodeI64Add, OpcodeI64Sub, OpcodeI64Mul, OpcodeI64DivS, OpcodeI64DivU,
		OpcodeI64RemS, OpcodeI64RemU, OpcodeI64And, OpcodeI64Or, OpcodeI64Xor,
		OpcodeI64Shl, OpcodeI64ShrS, OpcodeI64ShrU, OpcodeI64Rotl, OpcodeI64Rotr:
		pops, push = []ValueType{ValueTypeI64, ValueTypeI64}, ValueTypeI64
	case OpcodeF32Abs, OpcodeF32Neg, OpcodeF32Ceil, OpcodeF32Floor, OpcodeF32Trunc,
		OpcodeF32Nearest, OpcodeF32Sqrt:
		pops, push = []ValueType{ValueTypeF32}, ValueTypeF32
	case OpcodeF32Add, OpcodeF32Sub, OpcodeF32Mul, OpcodeF32Div, OpcodeF32Min,
		OpcodeF32Max, OpcodeF32Copysign:
		pops, push = []ValueType{ValueTypeF32, ValueTypeF32}, ValueTypeF32
	case OpcodeF64Abs, OpcodeF64Neg, OpcodeF64Ceil, OpcodeF64Floor, OpcodeF64Trunc,
		OpcodeF64Nearest, OpcodeF64Sqrt:
		pops, push = []ValueType{ValueTypeF64}, ValueTypeF64
	case OpcodeF64Add, OpcodeF64Sub, OpcodeF64Mul, OpcodeF64Div, OpcodeF64Min,
		OpcodeF64Max, OpcodeF64Copysign:
		pops, push = []ValueType{ValueTypeF64, ValueTypeF64}, ValueTypeF64
	case OpcodeI32WrapI64:
		pops, push = []ValueType{ValueTypeI64}, ValueTypeI32
	case OpcodeI32TruncF32S, OpcodeI32TruncF32U:
		pops, push = []ValueType{ValueTypeF32}, ValueTypeI32
	case OpcodeI32TruncF64S, OpcodeI32TruncF64U:
		pops, push = []ValueType{ValueTypeF64}, ValueTypeI32
	case OpcodeI64ExtendI32S, OpcodeI64ExtendI32U:
		pops, push = []ValueType{ValueTypeI32}, ValueTypeI64
	case OpcodeI64TruncF32S, OpcodeI64TruncF32U:
		pops, push = []ValueType{ValueTypeF32}, ValueTypeI64
	case OpcodeI64TruncF64S, OpcodeI64TruncF64U:
		pops, push = []ValueType{ValueTypeF64}, ValueTypeI64
	case OpcodeF32ConvertI32S, OpcodeF32ConvertI32U:
		pops, push = []ValueType{ValueTypeI32}, ValueTypeF32
	case OpcodeF32ConvertI64S, OpcodeF32ConvertI64U:
		pops, push = []ValueType{ValueTypeI64}, ValueTypeF32
	case OpcodeF32DemoteF64:
		pops, push = []ValueType{ValueTypeF64}, ValueTypeF32
	case OpcodeF64ConvertI32S, OpcodeF64ConvertI32U:
		pops, push = []ValueType{ValueTypeI32}, ValueTypeF64
	case OpcodeF64ConvertI64S, OpcodeF64ConvertI64U:
		pops, push = []ValueType{ValueTypeI64}, ValueTypeF64
	case OpcodeF64PromoteF32:
		pops, push = []ValueType{ValueTypeF32}, ValueTypeF64
	case OpcodeI32ReinterpretF32:
		pops, push = []ValueType{ValueTypeF32}, ValueTypeI32
	case OpcodeI64ReinterpretF64:
		pops, push = []ValueType{ValueTypeF64}, ValueTypeI64
	case OpcodeF32ReinterpretI32:
		pops, push = []ValueType{ValueTypeI32}, ValueTypeF32
	case OpcodeF64ReinterpretI64:
		pops, push = []ValueType{ValueTypeI64}, ValueTypeF64
	default:
		return fmt.Errorf("invalid numeric instruction 0x%x", op)
	}
	for _, t := range pops {
		if err := stack.popAndVerifyType(t); err != nil {
			return fmt.Errorf("operand for 0x%x: %v", op, err)
		}
	}
	stack.push(push)
	return nil
}

// readBlockType decodes the blocktype immediate of a structured instruction.
// Negative values are the shorthand value type encodings, non-negative values
// index the type section.
func (m *Module) readBlockType(r io.Reader) (*FunctionType, uint64, error) {
	raw, num, err := leb128.DecodeInt33AsInt64(r)
	if err != nil {
		return nil, 0, fmt.Errorf("decode int33: %w", err)
	}
	switch raw {
	case -64: // 0x40
		return &FunctionType{}, num, nil
	case -1: // 0x7f
		return &FunctionType{Results: []ValueType{ValueTypeI32}}, num, nil
	case -2: // 0x7e
		return &FunctionType{Results: []ValueType{ValueTypeI64}}, num, nil
	case -3: // 0x7d
		return &FunctionType{Results: []ValueType{ValueTypeF32}}, num, nil
	case -4: // 0x7c
		return &FunctionType{Results: []ValueType{ValueTypeF64}}, num, nil
	default:
		if raw < 0 || raw >= int64(len(m.TypeSection)) {
			return nil, 0, fmt.Errorf("invalid block type: %d", raw)
		}
		return m.TypeSection[raw], num, nil
	}
}
