package interpreter

import "github.com/wasmkit/wasmkit/wasm"

const initialStackHeight = 1024

type frame struct {
	pc     uint64
	f      *wasm.FunctionInstance
	locals []uint64
	labels *labelStack
}

// label is a control structure target. continuationPC is where a branch to
// this label resumes, operandSP the operand stack height below the label's
// result values.
type label struct {
	arity          int
	continuationPC uint64
	operandSP      int
}

type operandStack struct {
	stack []uint64
	sp    int
}

func newOperandStack() *operandStack {
	return &operandStack{stack: make([]uint64, initialStackHeight), sp: -1}
}

func (s *operandStack) push(v uint64) {
	if s.sp+1 == len(s.stack) {
		s.stack = append(s.stack, make([]uint64, initialStackHeight)...)
	}
	s.sp++
	s.stack[s.sp] = v
}

func (s *operandStack) pop() uint64 {
	ret := s.stack[s.sp]
	s.sp--
	return ret
}

func (s *operandStack) peek() uint64 {
	return s.stack[s.sp]
}

type labelStack struct {
	stack []*label
	sp    int
}

func newLabelStack() *labelStack {
	return &labelStack{stack: make([]*label, initialStackHeight), sp: -1}
}

func (s *labelStack) push(l *label) {
	if s.sp+1 == len(s.stack) {
		s.stack = append(s.stack, make([]*label, initialStackHeight)...)
	}
	s.sp++
	s.stack[s.sp] = l
}

func (s *labelStack) pop() *label {
	ret := s.stack[s.sp]
	s.sp--
	return ret
}

type frameStack struct {
	stack []*frame
	sp    int
}

func newFrameStack() *frameStack {
	return &frameStack{stack: make([]*frame, initialStackHeight), sp: -1}
}

func (s *frameStack) push(f *frame) {
	if s.sp+1 == len(s.stack) {
		s.stack = append(s.stack, make([]*frame, initialStackHeight)...)
	}
	s.sp++
	s.stack[s.sp] = f
}

func (s *frameStack) pop() *frame {
	ret := s.stack[s.sp]
	s.sp--
	return ret
}

func (s *frameStack) peek() *frame {
	if s.sp < 0 {
		return nil
	}
	return s.stack[s.sp]
}

func drop(e *Engine) {
	e.operands.pop()
	e.activeFrame.pc++
}

func selectOp(e *Engine) {
	cond := e.operands.pop()
	v2 := e.operands.pop()
	if cond == 0 {
		_ = e.operands.pop()
		e.operands.push(v2)
	}
	e.activeFrame.pc++
}

// FrameInfo describes one call frame for debugging.
type FrameInfo struct {
	FunctionName string
	PC           uint64
	Locals       []uint64
}

// StackSnapshot reports the current operand values and call frames, deepest
// frame last. It is only meaningful while a call is suspended in a host
// function.
func (e *Engine) StackSnapshot() (operands []uint64, frames []FrameInfo) {
	operands = make([]uint64, e.operands.sp+1)
	copy(operands, e.operands.stack[:e.operands.sp+1])
	for i := 0; i <= e.frames.sp; i++ {
		f := e.frames.stack[i]
		locals := make([]uint64, len(f.locals))
		copy(locals, f.locals)
		frames = append(frames, FrameInfo{
			FunctionName: f.f.Name,
			PC:           f.pc,
			Locals:       locals,
		})
	}
	return
}
