package binary

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/wasmkit/wasmkit/wasm"
	"github.com/wasmkit/wasmkit/wasm/leb128"
)

func decodeValueTypes(r io.Reader, num uint32) ([]wasm.ValueType, error) {
	ret := make([]wasm.ValueType, num)
	if _, err := io.ReadFull(r, ret); err != nil {
		return nil, err
	}
	for _, v := range ret {
		switch v {
		case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64:
		default:
			return nil, fmt.Errorf("invalid value type 0x%x", v)
		}
	}
	return ret, nil
}

// decodeUTF8 reads a size prefixed name, rejecting invalid UTF-8. The context
// string names the field being read for error messages.
func decodeUTF8(r io.Reader, context string) (string, uint32, error) {
	size, sizeOfSize, err := leb128.DecodeUint32(r)
	if err != nil {
		return "", 0, fmt.Errorf("read size of %s: %w", context, err)
	}

	buf := make([]byte, size)
	if _, err = io.ReadFull(r, buf); err != nil {
		return "", 0, fmt.Errorf("read %s: %w", context, err)
	}
	if !utf8.Valid(buf) {
		return "", 0, fmt.Errorf("%s must be valid UTF-8", context)
	}
	return string(buf), size + uint32(sizeOfSize), nil
}

// encodeSizePrefixed prepends the LEB128 encoded length of b.
func encodeSizePrefixed(b []byte) []byte {
	return append(leb128.EncodeUint32(uint32(len(b))), b...)
}

func encodeValTypes(vt []wasm.ValueType) []byte {
	return append(leb128.EncodeUint32(uint32(len(vt))), vt...)
}

func encodeUTF8(s string) []byte {
	return encodeSizePrefixed([]byte(s))
}
