package interpreter

import (
	"encoding/binary"

	"github.com/wasmkit/wasmkit/wasm"
)

// memoryView consumes the alignment and offset immediates, pops the base
// address and returns the n bytes at base+offset. Out of range accesses,
// including address overflow, trap.
func memoryView(e *Engine, n uint64) []byte {
	e.activeFrame.pc++
	_ = e.fetchUint32() // Alignment is a hint only.
	e.activeFrame.pc++
	offset := uint64(e.fetchUint32())
	e.activeFrame.pc++
	base := uint64(uint32(e.operands.pop()))

	memory := e.activeFrame.f.ModuleInstance.Memory
	if memory == nil {
		panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
	}
	addr := base + offset
	if addr+n > uint64(len(memory.Buffer)) {
		panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
	}
	return memory.Buffer[addr : addr+n]
}

func i32Load(e *Engine) {
	e.operands.push(uint64(binary.LittleEndian.Uint32(memoryView(e, 4))))
}

func i64Load(e *Engine) {
	e.operands.push(binary.LittleEndian.Uint64(memoryView(e, 8)))
}

func f32Load(e *Engine) {
	e.operands.push(uint64(binary.LittleEndian.Uint32(memoryView(e, 4))))
}

func f64Load(e *Engine) {
	e.operands.push(binary.LittleEndian.Uint64(memoryView(e, 8)))
}

func i32Load8S(e *Engine) {
	e.operands.push(uint64(uint32(int32(int8(memoryView(e, 1)[0])))))
}

func i32Load8U(e *Engine) {
	e.operands.push(uint64(memoryView(e, 1)[0]))
}

func i32Load16S(e *Engine) {
	e.operands.push(uint64(uint32(int32(int16(binary.LittleEndian.Uint16(memoryView(e, 2)))))))
}

func i32Load16U(e *Engine) {
	e.operands.push(uint64(binary.LittleEndian.Uint16(memoryView(e, 2))))
}

func i64Load8S(e *Engine) {
	e.operands.push(uint64(int64(int8(memoryView(e, 1)[0]))))
}

func i64Load8U(e *Engine) {
	e.operands.push(uint64(memoryView(e, 1)[0]))
}

func i64Load16S(e *Engine) {
	e.operands.push(uint64(int64(int16(binary.LittleEndian.Uint16(memoryView(e, 2))))))
}

func i64Load16U(e *Engine) {
	e.operands.push(uint64(binary.LittleEndian.Uint16(memoryView(e, 2))))
}

func i64Load32S(e *Engine) {
	e.operands.push(uint64(int64(int32(binary.LittleEndian.Uint32(memoryView(e, 4))))))
}

func i64Load32U(e *Engine) {
	e.operands.push(uint64(binary.LittleEndian.Uint32(memoryView(e, 4))))
}

func i32Store(e *Engine) {
	v := uint32(e.operands.pop())
	binary.LittleEndian.PutUint32(memoryView(e, 4), v)
}

func i64Store(e *Engine) {
	v := e.operands.pop()
	binary.LittleEndian.PutUint64(memoryView(e, 8), v)
}

func f32Store(e *Engine) {
	v := uint32(e.operands.pop())
	binary.LittleEndian.PutUint32(memoryView(e, 4), v)
}

func f64Store(e *Engine) {
	v := e.operands.pop()
	binary.LittleEndian.PutUint64(memoryView(e, 8), v)
}

func i32Store8(e *Engine) {
	v := byte(e.operands.pop())
	memoryView(e, 1)[0] = v
}

func i32Store16(e *Engine) {
	v := uint16(e.operands.pop())
	binary.LittleEndian.PutUint16(memoryView(e, 2), v)
}

func i64Store8(e *Engine) {
	v := byte(e.operands.pop())
	memoryView(e, 1)[0] = v
}

func i64Store16(e *Engine) {
	v := uint16(e.operands.pop())
	binary.LittleEndian.PutUint16(memoryView(e, 2), v)
}

func i64Store32(e *Engine) {
	v := uint32(e.operands.pop())
	binary.LittleEndian.PutUint32(memoryView(e, 4), v)
}

func memorySize(e *Engine) {
	e.activeFrame.pc += 2 // Skip the reserved zero byte.
	memory := e.activeFrame.f.ModuleInstance.Memory
	e.operands.push(uint64(memory.PageCount()))
}

// memoryGrow pushes the previous page count, or an i32 -1 when the request
// cannot be satisfied. It never traps.
func memoryGrow(e *Engine) {
	e.activeFrame.pc += 2
	memory := e.activeFrame.f.ModuleInstance.Memory
	delta := uint32(e.operands.pop())
	result := memory.Grow(delta)
	e.operands.push(uint64(uint32(result)))
}
