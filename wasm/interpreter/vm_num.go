package interpreter

import (
	"math"
	"math/bits"

	"github.com/wasmkit/wasmkit/internal/moremath"
	"github.com/wasmkit/wasmkit/wasm"
)

func (e *Engine) pushBool(b bool) {
	if b {
		e.operands.push(1)
	} else {
		e.operands.push(0)
	}
}

func (e *Engine) popF32() float32 {
	return math.Float32frombits(uint32(e.operands.pop()))
}

func (e *Engine) pushF32(v float32) {
	e.operands.push(uint64(math.Float32bits(v)))
}

func (e *Engine) popF64() float64 {
	return math.Float64frombits(e.operands.pop())
}

func (e *Engine) pushF64(v float64) {
	e.operands.push(math.Float64bits(v))
}

func i32Eqz(e *Engine) {
	e.pushBool(uint32(e.operands.pop()) == 0)
	e.activeFrame.pc++
}

func i32Eq(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	e.pushBool(v1 == v2)
	e.activeFrame.pc++
}

func i32Ne(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	e.pushBool(v1 != v2)
	e.activeFrame.pc++
}

func i32LtS(e *Engine) {
	v2, v1 := int32(e.operands.pop()), int32(e.operands.pop())
	e.pushBool(v1 < v2)
	e.activeFrame.pc++
}

func i32LtU(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	e.pushBool(v1 < v2)
	e.activeFrame.pc++
}

func i32GtS(e *Engine) {
	v2, v1 := int32(e.operands.pop()), int32(e.operands.pop())
	e.pushBool(v1 > v2)
	e.activeFrame.pc++
}

func i32GtU(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	e.pushBool(v1 > v2)
	e.activeFrame.pc++
}

func i32LeS(e *Engine) {
	v2, v1 := int32(e.operands.pop()), int32(e.operands.pop())
	e.pushBool(v1 <= v2)
	e.activeFrame.pc++
}

func i32LeU(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	e.pushBool(v1 <= v2)
	e.activeFrame.pc++
}

func i32GeS(e *Engine) {
	v2, v1 := int32(e.operands.pop()), int32(e.operands.pop())
	e.pushBool(v1 >= v2)
	e.activeFrame.pc++
}

func i32GeU(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	e.pushBool(v1 >= v2)
	e.activeFrame.pc++
}

func i64Eqz(e *Engine) {
	e.pushBool(e.operands.pop() == 0)
	e.activeFrame.pc++
}

func i64Eq(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	e.pushBool(v1 == v2)
	e.activeFrame.pc++
}

func i64Ne(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	e.pushBool(v1 != v2)
	e.activeFrame.pc++
}

func i64LtS(e *Engine) {
	v2, v1 := int64(e.operands.pop()), int64(e.operands.pop())
	e.pushBool(v1 < v2)
	e.activeFrame.pc++
}

func i64LtU(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	e.pushBool(v1 < v2)
	e.activeFrame.pc++
}

func i64GtS(e *Engine) {
	v2, v1 := int64(e.operands.pop()), int64(e.operands.pop())
	e.pushBool(v1 > v2)
	e.activeFrame.pc++
}

func i64GtU(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	e.pushBool(v1 > v2)
	e.activeFrame.pc++
}

func i64LeS(e *Engine) {
	v2, v1 := int64(e.operands.pop()), int64(e.operands.pop())
	e.pushBool(v1 <= v2)
	e.activeFrame.pc++
}

func i64LeU(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	e.pushBool(v1 <= v2)
	e.activeFrame.pc++
}

func i64GeS(e *Engine) {
	v2, v1 := int64(e.operands.pop()), int64(e.operands.pop())
	e.pushBool(v1 >= v2)
	e.activeFrame.pc++
}

func i64GeU(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	e.pushBool(v1 >= v2)
	e.activeFrame.pc++
}

func f32Eq(e *Engine) {
	v2, v1 := e.popF32(), e.popF32()
	e.pushBool(v1 == v2)
	e.activeFrame.pc++
}

func f32Ne(e *Engine) {
	v2, v1 := e.popF32(), e.popF32()
	e.pushBool(v1 != v2)
	e.activeFrame.pc++
}

func f32Lt(e *Engine) {
	v2, v1 := e.popF32(), e.popF32()
	e.pushBool(v1 < v2)
	e.activeFrame.pc++
}

func f32Gt(e *Engine) {
	v2, v1 := e.popF32(), e.popF32()
	e.pushBool(v1 > v2)
	e.activeFrame.pc++
}

func f32Le(e *Engine) {
	v2, v1 := e.popF32(), e.popF32()
	e.pushBool(v1 <= v2)
	e.activeFrame.pc++
}

func f32Ge(e *Engine) {
	v2, v1 := e.popF32(), e.popF32()
	e.pushBool(v1 >= v2)
	e.activeFrame.pc++
}

func f64Eq(e *Engine) {
	v2, v1 := e.popF64(), e.popF64()
	e.pushBool(v1 == v2)
	e.activeFrame.pc++
}

func f64Ne(e *Engine) {
	v2, v1 := e.popF64(), e.popF64()
	e.pushBool(v1 != v2)
	e.activeFrame.pc++
}

func f64Lt(e *Engine) {
	v2, v1 := e.popF64(), e.popF64()
	e.pushBool(v1 < v2)
	e.activeFrame.pc++
}

func f64Gt(e *Engine) {
	v2, v1 := e.popF64(), e.popF64()
	e.pushBool(v1 > v2)
	e.activeFrame.pc++
}

func f64Le(e *Engine) {
	v2, v1 := e.popF64(), e.popF64()
	e.pushBool(v1 <= v2)
	e.activeFrame.pc++
}

func f64Ge(e *Engine) {
	v2, v1 := e.popF64(), e.popF64()
	e.pushBool(v1 >= v2)
	e.activeFrame.pc++
}

func i32Clz(e *Engine) {
	v := uint32(e.operands.pop())
	e.operands.push(uint64(bits.LeadingZeros32(v)))
	e.activeFrame.pc++
}

func i32Ctz(e *Engine) {
	v := uint32(e.operands.pop())
	e.operands.push(uint64(bits.TrailingZeros32(v)))
	e.activeFrame.pc++
}

func i32Popcnt(e *Engine) {
	v := uint32(e.operands.pop())
	e.operands.push(uint64(bits.OnesCount32(v)))
	e.activeFrame.pc++
}

func i32Add(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	e.operands.push(uint64(v1 + v2))
	e.activeFrame.pc++
}

func i32Sub(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	e.operands.push(uint64(v1 - v2))
	e.activeFrame.pc++
}

func i32Mul(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	e.operands.push(uint64(v1 * v2))
	e.activeFrame.pc++
}

func i32DivS(e *Engine) {
	v2, v1 := int32(e.operands.pop()), int32(e.operands.pop())
	if v2 == 0 {
		panic(wasm.ErrRuntimeIntegerDivideByZero)
	}
	if v1 == math.MinInt32 && v2 == -1 {
		panic(wasm.ErrRuntimeIntegerOverflow)
	}
	e.operands.push(uint64(uint32(v1 / v2)))
	e.activeFrame.pc++
}

func i32DivU(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	if v2 == 0 {
		panic(wasm.ErrRuntimeIntegerDivideByZero)
	}
	e.operands.push(uint64(v1 / v2))
	e.activeFrame.pc++
}

func i32RemS(e *Engine) {
	v2, v1 := int32(e.operands.pop()), int32(e.operands.pop())
	if v2 == 0 {
		panic(wasm.ErrRuntimeIntegerDivideByZero)
	}
	e.operands.push(uint64(uint32(v1 % v2)))
	e.activeFrame.pc++
}

func i32RemU(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	if v2 == 0 {
		panic(wasm.ErrRuntimeIntegerDivideByZero)
	}
	e.operands.push(uint64(v1 % v2))
	e.activeFrame.pc++
}

func i32And(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	e.operands.push(uint64(v1 & v2))
	e.activeFrame.pc++
}

func i32Or(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	e.operands.push(uint64(v1 | v2))
	e.activeFrame.pc++
}

func i32Xor(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	e.operands.push(uint64(v1 ^ v2))
	e.activeFrame.pc++
}

func i32Shl(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	e.operands.push(uint64(v1 << (v2 % 32)))
	e.activeFrame.pc++
}

func i32ShrS(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), int32(e.operands.pop())
	e.operands.push(uint64(uint32(v1 >> (v2 % 32))))
	e.activeFrame.pc++
}

func i32ShrU(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	e.operands.push(uint64(v1 >> (v2 % 32)))
	e.activeFrame.pc++
}

func i32Rotl(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	e.operands.push(uint64(bits.RotateLeft32(v1, int(v2))))
	e.activeFrame.pc++
}

func i32Rotr(e *Engine) {
	v2, v1 := uint32(e.operands.pop()), uint32(e.operands.pop())
	e.operands.push(uint64(bits.RotateLeft32(v1, -int(v2))))
	e.activeFrame.pc++
}

func i64Clz(e *Engine) {
	v := e.operands.pop()
	e.operands.push(uint64(bits.LeadingZeros64(v)))
	e.activeFrame.pc++
}

func i64Ctz(e *Engine) {
	v := e.operands.pop()
	e.operands.push(uint64(bits.TrailingZeros64(v)))
	e.activeFrame.pc++
}

func i64Popcnt(e *Engine) {
	v := e.operands.pop()
	e.operands.push(uint64(bits.OnesCount64(v)))
	e.activeFrame.pc++
}

func i64Add(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	e.operands.push(v1 + v2)
	e.activeFrame.pc++
}

func i64Sub(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	e.operands.push(v1 - v2)
	e.activeFrame.pc++
}

func i64Mul(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	e.operands.push(v1 * v2)
	e.activeFrame.pc++
}

func i64DivS(e *Engine) {
	v2, v1 := int64(e.operands.pop()), int64(e.operands.pop())
	if v2 == 0 {
		panic(wasm.ErrRuntimeIntegerDivideByZero)
	}
	if v1 == math.MinInt64 && v2 == -1 {
		panic(wasm.ErrRuntimeIntegerOverflow)
	}
	e.operands.push(uint64(v1 / v2))
	e.activeFrame.pc++
}

func i64DivU(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	if v2 == 0 {
		panic(wasm.ErrRuntimeIntegerDivideByZero)
	}
	e.operands.push(v1 / v2)
	e.activeFrame.pc++
}

func i64RemS(e *Engine) {
	v2, v1 := int64(e.operands.pop()), int64(e.operands.pop())
	if v2 == 0 {
		panic(wasm.ErrRuntimeIntegerDivideByZero)
	}
	e.operands.push(uint64(v1 % v2))
	e.activeFrame.pc++
}

func i64RemU(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	if v2 == 0 {
		panic(wasm.ErrRuntimeIntegerDivideByZero)
	}
	e.operands.push(v1 % v2)
	e.activeFrame.pc++
}

func i64And(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	e.operands.push(v1 & v2)
	e.activeFrame.pc++
}

func i64Or(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	e.operands.push(v1 | v2)
	e.activeFrame.pc++
}

func i64Xor(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	e.operands.push(v1 ^ v2)
	e.activeFrame.pc++
}

func i64Shl(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	e.operands.push(v1 << (v2 % 64))
	e.activeFrame.pc++
}

func i64ShrS(e *Engine) {
	v2, v1 := e.operands.pop(), int64(e.operands.pop())
	e.operands.push(uint64(v1 >> (v2 % 64)))
	e.activeFrame.pc++
}

func i64ShrU(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	e.operands.push(v1 >> (v2 % 64))
	e.activeFrame.pc++
}

func i64Rotl(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	e.operands.push(bits.RotateLeft64(v1, int(v2)))
	e.activeFrame.pc++
}

func i64Rotr(e *Engine) {
	v2, v1 := e.operands.pop(), e.operands.pop()
	e.operands.push(bits.RotateLeft64(v1, -int(v2)))
	e.activeFrame.pc++
}

func f32Abs(e *Engine) {
	e.pushF32(float32(math.Abs(float64(e.popF32()))))
	e.activeFrame.pc++
}

func f32Neg(e *Engine) {
	v := e.popF32()
	e.pushF32(-v)
	e.activeFrame.pc++
}

func f32Ceil(e *Engine) {
	e.pushF32(float32(math.Ceil(float64(e.popF32()))))
	e.activeFrame.pc++
}

func f32Floor(e *Engine) {
	e.pushF32(float32(math.Floor(float64(e.popF32()))))
	e.activeFrame.pc++
}

func f32Trunc(e *Engine) {
	e.pushF32(float32(math.Trunc(float64(e.popF32()))))
	e.activeFrame.pc++
}

func f32Nearest(e *Engine) {
	e.pushF32(float32(math.RoundToEven(float64(e.popF32()))))
	e.activeFrame.pc++
}

func f32Sqrt(e *Engine) {
	e.pushF32(float32(math.Sqrt(float64(e.popF32()))))
	e.activeFrame.pc++
}

func f32Add(e *Engine) {
	v2, v1 := e.popF32(), e.popF32()
	e.pushF32(v1 + v2)
	e.activeFrame.pc++
}

func f32Sub(e *Engine) {
	v2, v1 := e.popF32(), e.popF32()
	e.pushF32(v1 - v2)
	e.activeFrame.pc++
}

func f32Mul(e *Engine) {
	v2, v1 := e.popF32(), e.popF32()
	e.pushF32(v1 * v2)
	e.activeFrame.pc++
}

func f32Div(e *Engine) {
	v2, v1 := e.popF32(), e.popF32()
	e.pushF32(v1 / v2)
	e.activeFrame.pc++
}

func f32Min(e *Engine) {
	v2, v1 := e.popF32(), e.popF32()
	e.pushF32(float32(moremath.WasmMin(float64(v1), float64(v2))))
	e.activeFrame.pc++
}

func f32Max(e *Engine) {
	v2, v1 := e.popF32(), e.popF32()
	e.pushF32(float32(moremath.WasmMax(float64(v1), float64(v2))))
	e.activeFrame.pc++
}

func f32Copysign(e *Engine) {
	v2, v1 := e.popF32(), e.popF32()
	e.pushF32(float32(math.Copysign(float64(v1), float64(v2))))
	e.activeFrame.pc++
}

func f64Abs(e *Engine) {
	e.pushF64(math.Abs(e.popF64()))
	e.activeFrame.pc++
}

func f64Neg(e *Engine) {
	v := e.popF64()
	e.pushF64(-v)
	e.activeFrame.pc++
}

func f64Ceil(e *Engine) {
	e.pushF64(math.Ceil(e.popF64()))
	e.activeFrame.pc++
}

func f64Floor(e *Engine) {
	e.pushF64(math.Floor(e.popF64()))
	e.activeFrame.pc++
}

func f64Trunc(e *Engine) {
	e.pushF64(math.Trunc(e.popF64()))
	e.activeFrame.pc++
}

func f64Nearest(e *Engine) {
	e.pushF64(math.RoundToEven(e.popF64()))
	e.activeFrame.pc++
}

func f64Sqrt(e *Engine) {
	e.pushF64(math.Sqrt(e.popF64()))
	e.activeFrame.pc++
}

func f64Add(e *Engine) {
	v2, v1 := e.popF64(), e.popF64()
	e.pushF64(v1 + v2)
	e.activeFrame.pc++
}

func f64Sub(e *Engine) {
	v2, v1 := e.popF64(), e.popF64()
	e.pushF64(v1 - v2)
	e.activeFrame.pc++
}

func f64Mul(e *Engine) {
	v2, v1 := e.popF64(), e.popF64()
	e.pushF64(v1 * v2)
	e.activeFrame.pc++
}

func f64Div(e *Engine) {
	v2, v1 := e.popF64(), e.popF64()
	e.pushF64(v1 / v2)
	e.activeFrame.pc++
}

func f64Min(e *Engine) {
	v2, v1 := e.popF64(), e.popF64()
	e.pushF64(moremath.WasmMin(v1, v2))
	e.activeFrame.pc++
}

func f64Max(e *Engine) {
	v2, v1 := e.popF64(), e.popF64()
	e.pushF64(moremath.WasmMax(v1, v2))
	e.activeFrame.pc++
}

func f64Copysign(e *Engine) {
	v2, v1 := e.popF64(), e.popF64()
	e.pushF64(math.Copysign(v1, v2))
	e.activeFrame.pc++
}

func i32WrapI64(e *Engine) {
	v := e.operands.pop()
	e.operands.push(uint64(uint32(v)))
	e.activeFrame.pc++
}

// truncToI32 validates that the truncated float fits an i32, trapping on NaN
// or range overflow as conversion to integer requires.
func truncToI32(v float64, signed bool) uint64 {
	if math.IsNaN(v) {
		panic(wasm.ErrRuntimeInvalidConversionToInteger)
	}
	t := math.Trunc(v)
	if signed {
		if t < math.MinInt32 || t > math.MaxInt32 {
			panic(wasm.ErrRuntimeIntegerOverflow)
		}
		return uint64(uint32(int32(t)))
	}
	if t < 0 || t > math.MaxUint32 {
		panic(wasm.ErrRuntimeIntegerOverflow)
	}
	return uint64(uint32(t))
}

// truncToI64 is truncToI32 for the 64bit range. The bounds 2^63 and 2^64 are
// exactly representable as float64, so >= catches every out of range value.
func truncToI64(v float64, signed bool) uint64 {
	if math.IsNaN(v) {
		panic(wasm.ErrRuntimeInvalidConversionToInteger)
	}
	t := math.Trunc(v)
	if signed {
		if t >= 9223372036854775808.0 || t < -9223372036854775808.0 {
			panic(wasm.ErrRuntimeIntegerOverflow)
		}
		return uint64(int64(t))
	}
	if t < 0 || t >= 18446744073709551616.0 {
		panic(wasm.ErrRuntimeIntegerOverflow)
	}
	return uint64(t)
}

func i32TruncF32S(e *Engine) {
	e.operands.push(truncToI32(float64(e.popF32()), true))
	e.activeFrame.pc++
}

func i32TruncF32U(e *Engine) {
	e.operands.push(truncToI32(float64(e.popF32()), false))
	e.activeFrame.pc++
}

func i32TruncF64S(e *Engine) {
	e.operands.push(truncToI32(e.popF64(), true))
	e.activeFrame.pc++
}

func i32TruncF64U(e *Engine) {
	e.operands.push(truncToI32(e.popF64(), false))
	e.activeFrame.pc++
}

func i64ExtendI32S(e *Engine) {
	v := int32(e.operands.pop())
	e.operands.push(uint64(int64(v)))
	e.activeFrame.pc++
}

func i64ExtendI32U(e *Engine) {
	v := uint32(e.operands.pop())
	e.operands.push(uint64(v))
	e.activeFrame.pc++
}

func i64TruncF32S(e *Engine) {
	e.operands.push(truncToI64(float64(e.popF32()), true))
	e.activeFrame.pc++
}

func i64TruncF32U(e *Engine) {
	e.operands.push(truncToI64(float64(e.popF32()), false))
	e.activeFrame.pc++
}

func i64TruncF64S(e *Engine) {
	e.operands.push(truncToI64(e.popF64(), true))
	e.activeFrame.pc++
}

func i64TruncF64U(e *Engine) {
	e.operands.push(truncToI64(e.popF64(), false))
	e.activeFrame.pc++
}

func f32ConvertI32S(e *Engine) {
	v := int32(e.operands.pop())
	e.pushF32(float32(v))
	e.activeFrame.pc++
}

func f32ConvertI32U(e *Engine) {
	v := uint32(e.operands.pop())
	e.pushF32(float32(v))
	e.activeFrame.pc++
}

func f32ConvertI64S(e *Engine) {
	v := int64(e.operands.pop())
	e.pushF32(float32(v))
	e.activeFrame.pc++
}

func f32ConvertI64U(e *Engine) {
	v := e.operands.pop()
	e.pushF32(float32(v))
	e.activeFrame.pc++
}

func f32DemoteF64(e *Engine) {
	e.pushF32(float32(e.popF64()))
	e.activeFrame.pc++
}

func f64ConvertI32S(e *Engine) {
	v := int32(e.operands.pop())
	e.pushF64(float64(v))
	e.activeFrame.pc++
}

func f64ConvertI32U(e *Engine) {
	v := uint32(e.operands.pop())
	e.pushF64(float64(v))
	e.activeFrame.pc++
}

func f64ConvertI64S(e *Engine) {
	v := int64(e.operands.pop())
	e.pushF64(float64(v))
	e.activeFrame.pc++
}

func f64ConvertI64U(e *Engine) {
	v := e.operands.pop()
	e.pushF64(float64(v))
	e.activeFrame.pc++
}

func f64PromoteF32(e *Engine) {
	e.pushF64(float64(e.popF32()))
	e.activeFrame.pc++
}
