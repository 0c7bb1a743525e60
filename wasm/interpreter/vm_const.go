package interpreter

import "math"

func i32Const(e *Engine) {
	e.activeFrame.pc++
	v := e.fetchInt32()
	e.activeFrame.pc++
	e.operands.push(uint64(uint32(v)))
}

func i64Const(e *Engine) {
	e.activeFrame.pc++
	v := e.fetchInt64()
	e.activeFrame.pc++
	e.operands.push(uint64(v))
}

func f32Const(e *Engine) {
	e.activeFrame.pc++
	v := e.fetchFloat32()
	e.activeFrame.pc++
	e.operands.push(uint64(math.Float32bits(v)))
}

func f64Const(e *Engine) {
	e.activeFrame.pc++
	v := e.fetchFloat64()
	e.activeFrame.pc++
	e.operands.push(math.Float64bits(v))
}
