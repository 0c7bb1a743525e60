package interpreter

func block(e *Engine) {
	frame := e.activeFrame
	cb := frame.f.Blocks[frame.pc]
	frame.labels.push(&label{
		arity:          len(cb.BlockType.Results),
		continuationPC: cb.EndAt + 1,
		operandSP:      e.operands.sp,
	})
	frame.pc += cb.BlockTypeBytes + 1
}

func loop(e *Engine) {
	frame := e.activeFrame
	cb := frame.f.Blocks[frame.pc]
	// A branch to a loop label re-executes this instruction, so the
	// continuation is the loop opcode itself and the arity is the number
	// of block parameters, none in the MVP.
	frame.labels.push(&label{
		arity:          len(cb.BlockType.Params),
		continuationPC: cb.StartAt,
		operandSP:      e.operands.sp,
	})
	frame.pc += cb.BlockTypeBytes + 1
}

func ifOp(e *Engine) {
	frame := e.activeFrame
	cb := frame.f.Blocks[frame.pc]
	cond := e.operands.pop()
	frame.labels.push(&label{
		arity:          len(cb.BlockType.Results),
		continuationPC: cb.EndAt + 1,
		operandSP:      e.operands.sp,
	})
	if cond != 0 {
		frame.pc += cb.BlockTypeBytes + 1
	} else {
		// ElseAt is EndAt-1 when the if has no else arm, landing on end.
		frame.pc = cb.ElseAt + 1
	}
}

// elseOp only runs when the then arm falls through into it. The results are
// already on the operand stack, so just jump past the end.
func elseOp(e *Engine) {
	l := e.activeFrame.labels.pop()
	e.activeFrame.pc = l.continuationPC
}

func end(e *Engine) {
	e.activeFrame.labels.pop()
	e.activeFrame.pc++
}

func br(e *Engine) {
	e.activeFrame.pc++
	index := e.fetchUint32()
	e.activeFrame.pc++
	brAt(e, index)
}

func brIf(e *Engine) {
	e.activeFrame.pc++
	index := e.fetchUint32()
	e.activeFrame.pc++
	if e.operands.pop() != 0 {
		brAt(e, index)
	}
}

func brTable(e *Engine) {
	frame := e.activeFrame
	frame.pc++
	count := e.fetchUint32()
	frame.pc++
	targets := make([]uint32, count)
	for i := range targets {
		targets[i] = e.fetchUint32()
		frame.pc++
	}
	defaultTarget := e.fetchUint32()
	frame.pc++

	index := uint32(e.operands.pop())
	if index < count {
		brAt(e, targets[index])
	} else {
		brAt(e, defaultTarget)
	}
}

// brAt branches to the label index levels up: pops the intervening labels,
// carries the target's arity values over the values being abandoned and
// resumes at the continuation.
func brAt(e *Engine, index uint32) {
	var l *label
	for i := uint32(0); i < index+1; i++ {
		l = e.activeFrame.labels.pop()
	}
	values := make([]uint64, l.arity)
	for i := l.arity - 1; i >= 0; i-- {
		values[i] = e.operands.pop()
	}
	e.operands.sp = l.operandSP
	for _, v := range values {
		e.operands.push(v)
	}
	e.activeFrame.pc = l.continuationPC
}

// returnOp pops the active frame. Values below the results left over from an
// early return are discarded so the caller sees exactly the declared arity.
func returnOp(e *Engine) {
	frame := e.popFrame()
	l := frame.labels.stack[0]
	values := make([]uint64, l.arity)
	for i := l.arity - 1; i >= 0; i-- {
		values[i] = e.operands.pop()
	}
	e.operands.sp = l.operandSP
	for _, v := range values {
		e.operands.push(v)
	}
}
