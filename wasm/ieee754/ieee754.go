// Package ieee754 reads and writes the fixed-width little-endian IEEE 754
// floating point values embedded in the WebAssembly binary format.
package ieee754

import (
	"encoding/binary"
	"io"
	"math"
)

// DecodeFloat32 reads a float32 from 4 little-endian encoded bytes.
func DecodeFloat32(r io.Reader) (float32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(buf)), nil
}

// DecodeFloat64 reads a float64 from 8 little-endian encoded bytes.
func DecodeFloat64(r io.Reader) (float64, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
}

// EncodeFloat32 returns the 4-byte little-endian encoding of the value.
func EncodeFloat32(v float32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	return buf
}

// EncodeFloat64 returns the 8-byte little-endian encoding of the value.
func EncodeFloat64(v float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}
