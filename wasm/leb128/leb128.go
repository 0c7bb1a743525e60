// Package leb128 decodes and encodes the variable-length integers used
// throughout the WebAssembly binary format.
// See https://www.w3.org/TR/wasm-core-1/#integers%E2%91%A4
package leb128

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrOverflow32 is returned when an encoding exceeds the range of a 32-bit integer.
	ErrOverflow32 = errors.New("overflows a 32-bit integer")
	// ErrOverflow33 is returned when an encoding exceeds the range of a 33-bit integer.
	ErrOverflow33 = errors.New("overflows a 33-bit integer")
	// ErrOverflow64 is returned when an encoding exceeds the range of a 64-bit integer.
	ErrOverflow64 = errors.New("overflows a 64-bit integer")
)

// DecodeUint32 reads an unsigned 32-bit integer in LEB128 encoding, returning
// the value and the number of bytes consumed.
func DecodeUint32(r io.Reader) (ret uint32, num uint64, err error) {
	var shift int
	b := make([]byte, 1)
	for {
		if _, err = io.ReadFull(r, b); err != nil {
			return 0, 0, fmt.Errorf("read byte: %w", err)
		}
		num++
		// A uint32 spans at most ceil(32/7) = 5 bytes, and the final byte may
		// only carry the low 4 bits.
		if shift == 28 && b[0]&0xf0 != 0 {
			return 0, 0, ErrOverflow32
		}
		ret |= uint32(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			return ret, num, nil
		}
		shift += 7
		if shift >= 32 {
			return 0, 0, ErrOverflow32
		}
	}
}

// DecodeUint64 reads an unsigned 64-bit integer in LEB128 encoding.
func DecodeUint64(r io.Reader) (ret uint64, num uint64, err error) {
	var shift int
	b := make([]byte, 1)
	for {
		if _, err = io.ReadFull(r, b); err != nil {
			return 0, 0, fmt.Errorf("read byte: %w", err)
		}
		num++
		if shift == 63 && b[0]&0xfe != 0 {
			return 0, 0, ErrOverflow64
		}
		ret |= uint64(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			return ret, num, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, 0, ErrOverflow64
		}
	}
}

// DecodeInt32 reads a signed 32-bit integer in LEB128 encoding.
func DecodeInt32(r io.Reader) (ret int32, num uint64, err error) {
	var shift int
	var b byte
	buf := make([]byte, 1)
	for {
		if _, err = io.ReadFull(r, buf); err != nil {
			return 0, 0, fmt.Errorf("read byte: %w", err)
		}
		b = buf[0]
		num++
		if shift == 28 {
			// The final byte carries the low 4 bits plus sign; the unused bits
			// must agree with the sign bit.
			if high := b & 0x78; high != 0 && high != 0x78 {
				return 0, 0, ErrOverflow32
			}
		}
		ret |= int32(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 32 {
			return 0, 0, ErrOverflow32
		}
	}
	if shift < 32 && b&0x40 != 0 {
		ret |= -1 << shift
	}
	return ret, num, nil
}

// DecodeInt33AsInt64 reads a signed 33-bit integer in LEB128 encoding. Block
// types use this width: negative values name singular value types and
// non-negative values index the type section.
func DecodeInt33AsInt64(r io.Reader) (ret int64, num uint64, err error) {
	var shift int
	var b byte
	buf := make([]byte, 1)
	for {
		if _, err = io.ReadFull(r, buf); err != nil {
			return 0, 0, fmt.Errorf("read byte: %w", err)
		}
		b = buf[0]
		num++
		if shift == 28 {
			if high := b & 0x70; high != 0 && high != 0x70 {
				return 0, 0, ErrOverflow33
			}
		}
		ret |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 33 {
			return 0, 0, ErrOverflow33
		}
	}
	if shift < 33 && b&0x40 != 0 {
		ret |= -1 << shift
	}
	// Fold down to the signed 33-bit range.
	const mask33 = 1<<33 - 1
	ret &= mask33
	if ret&(1<<32) != 0 {
		ret -= 1 << 33
	}
	return ret, num, nil
}

// DecodeInt64 reads a signed 64-bit integer in LEB128 encoding.
func DecodeInt64(r io.Reader) (ret int64, num uint64, err error) {
	var shift int
	var b byte
	buf := make([]byte, 1)
	for {
		if _, err = io.ReadFull(r, buf); err != nil {
			return 0, 0, fmt.Errorf("read byte: %w", err)
		}
		b = buf[0]
		num++
		if shift == 63 {
			if high := b & 0x7e; high != 0 && high != 0x7e {
				return 0, 0, ErrOverflow64
			}
		}
		ret |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 64 {
			return 0, 0, ErrOverflow64
		}
	}
	if shift < 64 && b&0x40 != 0 {
		ret |= -1 << shift
	}
	return ret, num, nil
}

// EncodeUint32 returns the LEB128 encoding of the value.
func EncodeUint32(v uint32) []byte {
	return EncodeUint64(uint64(v))
}

// EncodeUint64 returns the LEB128 encoding of the value.
func EncodeUint64(v uint64) (buf []byte) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

// EncodeInt32 returns the signed LEB128 encoding of the value.
func EncodeInt32(v int32) []byte {
	return EncodeInt64(int64(v))
}

// EncodeInt64 returns the signed LEB128 encoding of the value.
func EncodeInt64(v int64) (buf []byte) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		buf = append(buf, b)
		if done {
			return buf
		}
	}
}
