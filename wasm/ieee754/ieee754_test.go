package ieee754

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFloat32(t *testing.T) {
	for _, exp := range []float32{0, 1.5, -4.25, math.MaxFloat32, float32(math.Inf(1))} {
		actual, err := DecodeFloat32(bytes.NewReader(EncodeFloat32(exp)))
		require.NoError(t, err)
		assert.Equal(t, exp, actual)
	}
	_, err := DecodeFloat32(bytes.NewReader([]byte{0x00, 0x00}))
	require.Error(t, err)
}

func TestDecodeFloat64(t *testing.T) {
	for _, exp := range []float64{0, 1.5, -4.25, math.MaxFloat64, math.Inf(-1)} {
		actual, err := DecodeFloat64(bytes.NewReader(EncodeFloat64(exp)))
		require.NoError(t, err)
		assert.Equal(t, exp, actual)
	}
	_, err := DecodeFloat64(bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x00}))
	require.Error(t, err)
}

func TestDecodeNaNPreservesBits(t *testing.T) {
	nanBits := uint32(0x7fc00001)
	buf := []byte{0x01, 0x00, 0xc0, 0x7f}
	actual, err := DecodeFloat32(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, nanBits, math.Float32bits(actual))
}
