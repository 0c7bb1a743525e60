package interpreter

func globalGet(e *Engine) {
	frame := e.activeFrame
	frame.pc++
	index := e.fetchUint32()
	frame.pc++
	e.operands.push(frame.f.ModuleInstance.Globals[index].Val)
}

func globalSet(e *Engine) {
	frame := e.activeFrame
	frame.pc++
	index := e.fetchUint32()
	frame.pc++
	frame.f.ModuleInstance.Globals[index].Val = e.operands.pop()
}
