package bgp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bgpHeader(length int) []byte {
	buf := make([]byte, BGPHeaderSize)
	for i := range buf[:16] {
		buf[i] = 0xff
	}
	buf[16] = byte(length >> 8)
	buf[17] = byte(length)
	buf[18] = BGPMsgTypeUpdate
	return buf
}

func attr(flags, typ uint8, value []byte) []byte {
	out := []byte{flags, typ, byte(len(value))}
	return append(out, value...)
}

func prefixBytes(bits int, ip []byte) []byte {
	byteLen := (bits + 7) / 8
	return append([]byte{byte(bits)}, ip[:byteLen]...)
}

func TestParseUpdateSimpleAnnouncement(t *testing.T) {
	origin := attr(0x40, AttrTypeOrigin, []byte{0})
	asPath := attr(0x40, AttrTypeASPath, []byte{ASPathSegmentSequence, 2, 0, 0, 0xfd, 0xe9, 0, 0, 0xfd, 0xea})
	nextHop := attr(0x40, AttrTypeNextHop, []byte{192, 0, 2, 1})
	pathAttrs := append(append([]byte{}, origin...), asPath...)
	pathAttrs = append(pathAttrs, nextHop...)

	payload := []byte{0, 0} // withdrawn_routes_length = 0
	payload = append(payload, byte(len(pathAttrs)>>8), byte(len(pathAttrs)))
	payload = append(payload, pathAttrs...)
	payload = append(payload, prefixBytes(24, []byte{198, 51, 100, 0})...)

	msg := append(bgpHeader(len(payload)), payload...)

	update, err := ParseUpdate(msg)
	require.NoError(t, err)
	require.NotNil(t, update)
	assert.False(t, update.IsWithdrawal)
	require.Len(t, update.Announced, 1)
	assert.Equal(t, "198.51.100.0/24", update.Announced[0].IPPrefix)
	assert.Equal(t, "IGP", update.Origin)
	assert.Equal(t, []uint32{65001, 65002}, update.ASPath)
	assert.Equal(t, "192.0.2.1", update.NextHop.String())
}

func TestParseUpdateWithdrawalOnly(t *testing.T) {
	withdrawn := prefixBytes(24, []byte{203, 0, 113, 0})
	payload := []byte{0, byte(len(withdrawn))}
	payload = append(payload, withdrawn...)
	payload = append(payload, 0, 0) // total_path_attr_len = 0

	msg := append(bgpHeader(len(payload)), payload...)

	update, err := ParseUpdate(msg)
	require.NoError(t, err)
	require.NotNil(t, update)
	assert.True(t, update.IsWithdrawal)
	require.Len(t, update.Withdrawn, 1)
	assert.Equal(t, "203.0.113.0/24", update.Withdrawn[0].IPPrefix)
	assert.Empty(t, update.Announced)
}

func TestParseUpdateNonUpdateMessageIsNil(t *testing.T) {
	msg := bgpHeader(BGPHeaderSize)
	msg[18] = 4 // KEEPALIVE
	update, err := ParseUpdate(msg)
	require.NoError(t, err)
	assert.Nil(t, update)
}

func TestParseASPathTwoByteFallback(t *testing.T) {
	// A single 2-byte ASN segment: valid at width 2, not at width 4
	// (would misalign and fail to consume exactly).
	value := []byte{ASPathSegmentSequence, 1, 0xfd, 0xe9}
	asns, err := parseASPath(value)
	require.NoError(t, err)
	assert.Equal(t, []uint32{65001}, asns)
}

func TestParseExtendedCommunityRouteTargetAndOrigin(t *testing.T) {
	rt := []byte{0x00, 0x02, 0xfd, 0xe9, 0, 0, 0, 100} // two-octet AS RT
	ro := []byte{0x02, 0x00, 0xfd, 0xe9, 0, 0, 0, 200} // two-octet AS RO
	out, err := parseExtendedCommunities(append(append([]byte{}, rt...), ro...))
	require.NoError(t, err)
	assert.Equal(t, []string{"RT:65001:100", "RO:65001:200"}, out)
}

func TestParseExtendedCommunityFourOctetASRouteOrigin(t *testing.T) {
	raw := []byte{0x0a, 0x02, 0, 0, 0xfd, 0xe9, 0, 200}
	out := decodeExtendedCommunity(raw)
	assert.Equal(t, "RO:65001:200", out)
}

func TestParseExtendedCommunityIPv4RouteOrigin(t *testing.T) {
	raw := []byte{0x03, 0x00, 192, 168, 1, 1, 0, 100}
	out := decodeExtendedCommunity(raw)
	assert.Equal(t, "RO:192.168.1.1:100", out)
}

func TestParseExtendedCommunityOSPFDomainIDBeforeOpaqueCatchAll(t *testing.T) {
	raw := []byte{0x03, 0x0c, 0, 0, 0, 0, 0, 0x0a}
	out := decodeExtendedCommunity(raw)
	assert.Equal(t, "OSPF-Domain:0.0.0.10", out)
}

func TestParseExtendedCommunityUnknown(t *testing.T) {
	raw := []byte{0x99, 0x01, 0, 0, 0, 0, 0, 1}
	out := decodeExtendedCommunity(raw)
	assert.Contains(t, out, "Unknown-99:")
}

func TestParseCommunitiesRejectsBadLength(t *testing.T) {
	_, err := parseCommunities([]byte{0, 1, 2})
	require.Error(t, err)
}
