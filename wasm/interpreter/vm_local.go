package interpreter

func localGet(e *Engine) {
	frame := e.activeFrame
	frame.pc++
	index := e.fetchUint32()
	frame.pc++
	e.operands.push(frame.locals[index])
}

func localSet(e *Engine) {
	frame := e.activeFrame
	frame.pc++
	index := e.fetchUint32()
	frame.pc++
	frame.locals[index] = e.operands.pop()
}

func localTee(e *Engine) {
	frame := e.activeFrame
	frame.pc++
	index := e.fetchUint32()
	frame.pc++
	frame.locals[index] = e.operands.peek()
}
