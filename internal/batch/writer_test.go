package batch

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmpcollector/bmpcollectord/internal/route"
)

func TestRouteUpdatesCopySourceValuesOrder(t *testing.T) {
	asn := uint32(65001)
	rows := []route.RouteUpdate{
		{
			Time:      time.Unix(0, 0),
			BMPPeerIP: net.ParseIP("192.0.2.1"),
			BGPPeerIP: net.ParseIP("192.0.2.2"),
			Family:    route.FamilyIPv4Unicast,
			Prefix:    "10.0.0.0/24",
			NextHop:   net.ParseIP("192.0.2.2"),
			BMPPeerASN: &asn,
		},
	}
	src := &routeUpdatesCopySource{rows: rows}

	require.True(t, src.Next())
	values, err := src.Values()
	require.NoError(t, err)
	require.Len(t, values, 18)
	assert.Equal(t, "192.0.2.1", values[1])
	assert.Equal(t, &asn, values[2])
	assert.Equal(t, route.FamilyIPv4Unicast, values[5])
	assert.Equal(t, "10.0.0.0/24", values[6])
	assert.False(t, src.Next())
}

func TestRouteUpdatesCopySourceAppendsRawPDUWhenEnabled(t *testing.T) {
	rows := []route.RouteUpdate{{
		Time:      time.Unix(0, 0),
		BMPPeerIP: net.ParseIP("192.0.2.1"),
		BGPPeerIP: net.ParseIP("192.0.2.2"),
		Family:    route.FamilyIPv4Unicast,
	}}
	raw := [][]byte{[]byte{0x01, 0x02, 0x03}}
	src := &routeUpdatesCopySource{rows: rows, raw: raw, storeRaw: true, compress: false}

	require.True(t, src.Next())
	values, err := src.Values()
	require.NoError(t, err)
	require.Len(t, values, 19)
	assert.Equal(t, raw[0], values[18])
}

func TestRouteUpdatesCopySourceCompressesRawPDU(t *testing.T) {
	rows := []route.RouteUpdate{{Time: time.Unix(0, 0), BMPPeerIP: net.ParseIP("192.0.2.1"), BGPPeerIP: net.ParseIP("192.0.2.2")}}
	raw := [][]byte{[]byte("a payload worth compressing, repeated repeated repeated")}
	src := &routeUpdatesCopySource{rows: rows, raw: raw, storeRaw: true, compress: true}

	require.True(t, src.Next())
	values, err := src.Values()
	require.NoError(t, err)
	compressed, ok := values[18].([]byte)
	require.True(t, ok)
	assert.NotEqual(t, raw[0], compressed)
}

func TestNullableStringEmptyIsNil(t *testing.T) {
	assert.Nil(t, nullableString(""))
	assert.Equal(t, "x", nullableString("x"))
}

func TestNullableIPNilIsNil(t *testing.T) {
	var ip net.IP
	assert.Nil(t, nullableIP(ip))
	assert.Equal(t, "192.0.2.1", nullableIP(net.ParseIP("192.0.2.1")))
}

// Checks the buffer-full condition Add evaluates; Add itself is not
// called here because the flush it triggers needs a live pool.
func TestWriterBufferAtBatchSizeMeetsFlushThreshold(t *testing.T) {
	w := &Writer{batchSize: 1}
	w.mu.Lock()
	w.buf = append(w.buf, route.RouteUpdate{})
	full := len(w.buf) >= w.batchSize
	w.mu.Unlock()
	assert.True(t, full)
}
