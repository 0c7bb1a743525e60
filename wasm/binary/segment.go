package binary

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/wasmkit/wasmkit/wasm"
	"github.com/wasmkit/wasmkit/wasm/ieee754"
	"github.com/wasmkit/wasmkit/wasm/leb128"
)

func decodeImport(r io.Reader) (i *wasm.ImportSegment, err error) {
	i = &wasm.ImportSegment{Desc: &wasm.ImportDesc{}}
	if i.Module, _, err = decodeUTF8(r, "import module"); err != nil {
		return nil, err
	}
	if i.Name, _, err = decodeUTF8(r, "import name"); err != nil {
		return nil, err
	}

	b := make([]byte, 1)
	if _, err = io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read import kind: %w", err)
	}

	i.Desc.Kind = b[0]
	switch i.Desc.Kind {
	case wasm.ImportKindFunc:
		typeIndex, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read imported function type index: %w", err)
		}
		i.Desc.TypeIndexPtr = &typeIndex
	case wasm.ImportKindTable:
		if i.Desc.TableTypePtr, err = decodeTableType(r); err != nil {
			return nil, fmt.Errorf("read imported table type: %w", err)
		}
	case wasm.ImportKindMemory:
		if i.Desc.MemTypePtr, err = decodeLimitsType(r); err != nil {
			return nil, fmt.Errorf("read imported memory type: %w", err)
		}
	case wasm.ImportKindGlobal:
		if i.Desc.GlobalTypePtr, err = decodeGlobalType(r); err != nil {
			return nil, fmt.Errorf("read imported global type: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: invalid importdesc 0x%x", wasm.ErrInvalidByte, b[0])
	}
	return
}

func decodeExport(r io.Reader) (e *wasm.ExportSegment, err error) {
	e = &wasm.ExportSegment{}
	if e.Name, _, err = decodeUTF8(r, "export name"); err != nil {
		return nil, err
	}

	b := make([]byte, 1)
	if _, err = io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read export kind: %w", err)
	}

	e.Kind = b[0]
	switch e.Kind {
	case wasm.ExportKindFunc, wasm.ExportKindTable, wasm.ExportKindMemory, wasm.ExportKindGlobal:
		if e.Index, _, err = leb128.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("read export index: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: invalid exportdesc 0x%x", wasm.ErrInvalidByte, b[0])
	}
	return
}

func decodeGlobal(r io.Reader) (*wasm.GlobalSegment, error) {
	gt, err := decodeGlobalType(r)
	if err != nil {
		return nil, fmt.Errorf("read global type: %w", err)
	}
	init, err := decodeConstantExpression(r)
	if err != nil {
		return nil, fmt.Errorf("read init expression: %w", err)
	}
	return &wasm.GlobalSegment{Type: gt, Init: init}, nil
}

func decodeElementSegment(r io.Reader) (*wasm.ElementSegment, error) {
	ti, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read table index: %w", err)
	}

	expr, err := decodeConstantExpression(r)
	if err != nil {
		return nil, fmt.Errorf("read offset expression: %w", err)
	}

	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get size of vector: %w", err)
	}
	init := make([]wasm.Index, vs)
	for i := range init {
		if init[i], _, err = leb128.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("read function index: %w", err)
		}
	}

	return &wasm.ElementSegment{TableIndex: ti, OffsetExpr: expr, Init: init}, nil
}

func decodeDataSegment(r io.Reader) (*wasm.DataSegment, error) {
	mi, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read memory index: %w", err)
	}

	expr, err := decodeConstantExpression(r)
	if err != nil {
		return nil, fmt.Errorf("read offset expression: %w", err)
	}

	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get size of vector: %w", err)
	}
	init := make([]byte, vs)
	if _, err := io.ReadFull(r, init); err != nil {
		return nil, fmt.Errorf("read init bytes: %w", err)
	}

	return &wasm.DataSegment{MemoryIndex: mi, OffsetExpr: expr, Init: init}, nil
}

// decodeCode reads one entry of the code section: its byte size, the local
// declarations (run-length encoded) and the instruction body.
func decodeCode(r io.Reader) (*wasm.CodeSegment, error) {
	ss, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get size of code: %w", err)
	}

	r = io.LimitReader(r, int64(ss))

	ls, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get count of local declarations: %w", err)
	}

	var counts []uint64
	var types []wasm.ValueType
	var sum uint64
	b := make([]byte, 1)
	for i := uint32(0); i < ls; i++ {
		n, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read count of locals: %w", err)
		}
		sum += uint64(n)
		counts = append(counts, uint64(n))

		if _, err = io.ReadFull(r, b); err != nil {
			return nil, fmt.Errorf("read type of local: %w", err)
		}
		switch vt := b[0]; vt {
		case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64:
			types = append(types, vt)
		default:
			return nil, fmt.Errorf("invalid local type 0x%x", vt)
		}
	}
	if sum > math.MaxUint32 {
		return nil, fmt.Errorf("too many locals: %d", sum)
	}

	var localTypes []wasm.ValueType
	for i, count := range counts {
		for j := uint64(0); j < count; j++ {
			localTypes = append(localTypes, types[i])
		}
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 || body[len(body)-1] != wasm.OpcodeEnd {
		return nil, fmt.Errorf("body does not end with the end opcode")
	}

	return &wasm.CodeSegment{Body: body, LocalTypes: localTypes}, nil
}

// decodeConstantExpression reads an initializer expression, keeping the
// immediate in its binary encoding so instantiation can evaluate it later.
func decodeConstantExpression(r io.Reader) (*wasm.ConstantExpression, error) {
	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read opcode: %w", err)
	}
	buf := new(bytes.Buffer)
	teeR := io.TeeReader(r, buf)

	opcode := b[0]
	var err error
	switch opcode {
	case wasm.OpcodeI32Const:
		_, _, err = leb128.DecodeInt32(teeR)
	case wasm.OpcodeI64Const:
		_, _, err = leb128.DecodeInt64(teeR)
	case wasm.OpcodeF32Const:
		_, err = ieee754.DecodeFloat32(teeR)
	case wasm.OpcodeF64Const:
		_, err = ieee754.DecodeFloat64(teeR)
	case wasm.OpcodeGlobalGet:
		_, _, err = leb128.DecodeUint32(teeR)
	default:
		return nil, fmt.Errorf("%w: invalid constant expression opcode 0x%x", wasm.ErrInvalidByte, opcode)
	}
	if err != nil {
		return nil, fmt.Errorf("read immediate: %w", err)
	}

	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("look for end opcode: %w", err)
	}
	if b[0] != wasm.OpcodeEnd {
		return nil, fmt.Errorf("constant expression not terminated with end")
	}

	return &wasm.ConstantExpression{Opcode: opcode, Data: buf.Bytes()}, nil
}
