package interpreter

import (
	"fmt"
	"math"
	"reflect"

	"github.com/wasmkit/wasmkit/wasm"
)

func call(e *Engine) {
	frame := e.activeFrame
	frame.pc++
	index := e.fetchUint32()
	frame.pc++
	callIn(e, frame.f.ModuleInstance.Functions[index])
}

func callIndirect(e *Engine) {
	frame := e.activeFrame
	frame.pc++
	typeIndex := e.fetchUint32()
	frame.pc += 2 // The reserved zero byte after the type index.

	expected := frame.f.ModuleInstance.Types[typeIndex]
	table := frame.f.ModuleInstance.Tables[0]
	offset := uint32(e.operands.pop())
	if offset >= uint32(len(table.Table)) {
		panic(wasm.ErrRuntimeInvalidTableAccess)
	}
	elem := table.Table[offset]
	if elem == nil || elem.Function == nil {
		panic(wasm.ErrRuntimeInvalidTableAccess)
	}
	f := elem.Function
	if !f.Signature.EqualsSignature(expected.Params, expected.Results) {
		panic(wasm.ErrRuntimeIndirectCallTypeMismatch)
	}
	callIn(e, f)
}

// callIn transfers control to f. Host functions run to completion here;
// module functions get a new frame and the dispatch loop continues inside
// it.
func callIn(e *Engine, f *wasm.FunctionInstance) {
	if f.HostFunction != nil {
		args := make([]uint64, len(f.Signature.Params))
		for i := len(args) - 1; i >= 0; i-- {
			args[i] = e.operands.pop()
		}
		returns, err := callHostFunction(f, e.activeFrame.f.ModuleInstance.Memory, args)
		if err != nil {
			panic(err)
		}
		for _, v := range returns {
			e.operands.push(v)
		}
		return
	}

	paramCount := len(f.Signature.Params)
	locals := make([]uint64, paramCount+len(f.LocalTypes))
	for i := paramCount - 1; i >= 0; i-- {
		locals[i] = e.operands.pop()
	}
	frame := &frame{
		f:      f,
		locals: locals,
		labels: newLabelStack(),
	}
	frame.labels.push(&label{
		arity:          len(f.Signature.Results),
		continuationPC: uint64(len(f.Body)) - 1,
		operandSP:      e.operands.sp,
	})
	e.pushFrame(frame)
}

// callHostFunction converts raw operand values into the Go function's
// parameter types, invokes it via reflect and converts the results back.
func callHostFunction(f *wasm.FunctionInstance, memory *wasm.MemoryInstance, args []uint64) ([]uint64, error) {
	tp := f.HostFunction.Type()
	in := make([]reflect.Value, tp.NumIn())
	in[0] = reflect.ValueOf(&wasm.HostFunctionCallContext{Memory: memory})
	for i, raw := range args {
		val := reflect.New(tp.In(i + 1)).Elem()
		switch val.Kind() {
		case reflect.Float32:
			val.SetFloat(float64(math.Float32frombits(uint32(raw))))
		case reflect.Float64:
			val.SetFloat(math.Float64frombits(raw))
		case reflect.Uint32, reflect.Uint64:
			val.SetUint(raw)
		case reflect.Int32, reflect.Int64:
			val.SetInt(int64(raw))
		}
		in[i+1] = val
	}

	out := f.HostFunction.Call(in)
	returns := make([]uint64, len(out))
	for i, ret := range out {
		switch ret.Kind() {
		case reflect.Float32:
			returns[i] = uint64(math.Float32bits(float32(ret.Float())))
		case reflect.Float64:
			returns[i] = math.Float64bits(ret.Float())
		case reflect.Uint32, reflect.Uint64:
			returns[i] = ret.Uint()
		case reflect.Int32, reflect.Int64:
			returns[i] = uint64(ret.Int())
		default:
			return nil, fmt.Errorf("unsupported result kind %s", ret.Kind())
		}
	}
	return returns, nil
}

func checkHostFunctionType(tp reflect.Type) error {
	if tp.Kind() != reflect.Func {
		return fmt.Errorf("host function must be a func, got %s", tp.Kind())
	}
	if tp.NumIn() == 0 || tp.In(0) != reflect.TypeOf(&wasm.HostFunctionCallContext{}) {
		return fmt.Errorf("host function must take *wasm.HostFunctionCallContext first")
	}
	return nil
}
