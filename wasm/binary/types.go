package binary

import (
	"fmt"
	"io"

	"github.com/wasmkit/wasmkit/wasm"
	"github.com/wasmkit/wasmkit/wasm/leb128"
)

func decodeFunctionType(r io.Reader) (*wasm.FunctionType, error) {
	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read leading byte: %w", err)
	}
	if b[0] != 0x60 {
		return nil, fmt.Errorf("%w: 0x%x != 0x60 for functype", wasm.ErrInvalidByte, b[0])
	}

	s, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read parameter count: %w", err)
	}
	params, err := decodeValueTypes(r, s)
	if err != nil {
		return nil, fmt.Errorf("read parameter types: %w", err)
	}

	s, _, err = leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read result count: %w", err)
	} else if s > 1 {
		// Multi-value results arrived after 1.0 (MVP).
		return nil, fmt.Errorf("multiple results are not supported")
	}
	results, err := decodeValueTypes(r, s)
	if err != nil {
		return nil, fmt.Errorf("read result types: %w", err)
	}

	return &wasm.FunctionType{Params: params, Results: results}, nil
}

// decodeLimitsType reads table or memory size limits.
// See https://www.w3.org/TR/wasm-core-1/#limits%E2%91%A6
func decodeLimitsType(r io.Reader) (*wasm.LimitsType, error) {
	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read leading byte: %w", err)
	}

	ret := &wasm.LimitsType{}
	switch b[0] {
	case 0x00:
		var err error
		if ret.Min, _, err = leb128.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("read min: %w", err)
		}
	case 0x01:
		var err error
		if ret.Min, _, err = leb128.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("read min: %w", err)
		}
		m, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read max: %w", err)
		}
		ret.Max = &m
	default:
		return nil, fmt.Errorf("%w: 0x%x for limits flag", wasm.ErrInvalidByte, b[0])
	}
	return ret, nil
}

func decodeTableType(r io.Reader) (*wasm.TableType, error) {
	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read element type: %w", err)
	}
	if b[0] != wasm.ElemTypeFuncref {
		return nil, fmt.Errorf("%w: 0x%x for element type", wasm.ErrInvalidByte, b[0])
	}
	lm, err := decodeLimitsType(r)
	if err != nil {
		return nil, fmt.Errorf("read limits: %w", err)
	}
	return &wasm.TableType{ElemType: b[0], Limits: lm}, nil
}

func decodeGlobalType(r io.Reader) (*wasm.GlobalType, error) {
	vt, err := decodeValueTypes(r, 1)
	if err != nil {
		return nil, fmt.Errorf("read value type: %w", err)
	}

	ret := &wasm.GlobalType{ValType: vt[0]}
	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read mutability: %w", err)
	}
	switch b[0] {
	case 0x00:
	case 0x01:
		ret.Mutable = true
	default:
		return nil, fmt.Errorf("%w: 0x%x for mutability", wasm.ErrInvalidByte, b[0])
	}
	return ret, nil
}
