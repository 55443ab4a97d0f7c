package binproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint16(t *testing.T) {
	v, err := Uint16([]byte{0x01, 0x02}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), v)
}

func TestUint32ShortBuffer(t *testing.T) {
	_, err := Uint32([]byte{0x01, 0x02}, 0)
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestUintN(t *testing.T) {
	v, err := UintN([]byte{0x00, 0x00, 0x01, 0x00}, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(256), v)
}

func TestIPAddrIPv4Mapped(t *testing.T) {
	buf := make([]byte, 16)
	copy(buf[12:], []byte{10, 0, 0, 1})
	ip, err := IPAddr(buf, 0, false)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", ip.String())
}

func TestIPAddrIPv6(t *testing.T) {
	buf := []byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01}
	ip, err := IPAddr(buf, 0, true)
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::1", ip.String())
}
