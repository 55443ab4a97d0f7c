package route

import (
	"net"
	"testing"
	"time"

	"github.com/bmpcollector/bmpcollectord/internal/bgp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peers() (PeerIdentity, PeerIdentity) {
	return PeerIdentity{IP: net.ParseIP("192.0.2.1"), ASN: 65000},
		PeerIdentity{IP: net.ParseIP("192.0.2.2"), ASN: 65001}
}

func TestProjectIPv4Announcement(t *testing.T) {
	bmpPeer, bgpPeer := peers()
	med := uint32(100)
	update := &bgp.ParsedUpdate{
		Announced: []bgp.Nlri{{Kind: bgp.NlriKindIPPrefix, AFI: bgp.AFIIPv4, IPPrefix: "10.0.0.0/24"}},
		NextHop:   net.ParseIP("192.0.2.2"),
		ASPath:    []uint32{65001, 65002},
		MED:       &med,
	}

	rows := Project(update, bmpPeer, bgpPeer, time.Unix(0, 0))
	require.Len(t, rows, 1)
	assert.Equal(t, FamilyIPv4Unicast, rows[0].Family)
	assert.Equal(t, "10.0.0.0/24", rows[0].Prefix)
	assert.False(t, rows[0].IsWithdrawn)
	assert.Equal(t, []uint32{65001, 65002}, rows[0].ASPath)
	require.NotNil(t, rows[0].BMPPeerASN)
	assert.Equal(t, uint32(65000), *rows[0].BMPPeerASN)
}

func TestProjectMixedAFIWithdrawalKeepsPerEntryFamily(t *testing.T) {
	bmpPeer, bgpPeer := peers()
	// A single UPDATE carrying a classic IPv4 withdrawal alongside an
	// MP_UNREACH_NLRI for IPv6 must not let the IPv6 AFI leak onto the
	// IPv4 entry's family.
	update := &bgp.ParsedUpdate{
		Withdrawn: []bgp.Nlri{
			{Kind: bgp.NlriKindIPPrefix, AFI: bgp.AFIIPv4, IPPrefix: "10.0.0.0/24"},
			{Kind: bgp.NlriKindIPPrefix, AFI: bgp.AFIIPv6, IPPrefix: "2001:db8::/32"},
		},
		AFI:          bgp.AFIIPv6,
		IsWithdrawal: true,
	}

	rows := Project(update, bmpPeer, bgpPeer, time.Unix(0, 0))
	require.Len(t, rows, 2)
	assert.Equal(t, FamilyIPv4Unicast, rows[0].Family)
	assert.Equal(t, "10.0.0.0/24", rows[0].Prefix)
	assert.True(t, rows[0].IsWithdrawn)
	assert.Equal(t, FamilyIPv6Unicast, rows[1].Family)
	assert.Equal(t, "2001:db8::/32", rows[1].Prefix)
}

func TestProjectEVPNWithIP(t *testing.T) {
	bmpPeer, bgpPeer := peers()
	routeType := bgp.EVPNRouteTypeMACIPAdvertisement
	update := &bgp.ParsedUpdate{
		Announced: []bgp.Nlri{{
			Kind: bgp.NlriKindEVPN,
			AFI:  bgp.AFIL2VPN,
			EVPN: &bgp.EVPNRoute{
				RouteType: routeType,
				RD:        "65001:1",
				ESI:       "00:00:00:00:00:00:00:00:00:00",
				MAC:       "aa:bb:cc:dd:ee:ff",
				IP:        "10.0.0.1",
			},
		}},
	}

	rows := Project(update, bmpPeer, bgpPeer, time.Unix(0, 0))
	require.Len(t, rows, 1)
	assert.Equal(t, FamilyEVPN, rows[0].Family)
	assert.Equal(t, "10.0.0.1/32", rows[0].Prefix)
	assert.Equal(t, "65001:1", rows[0].EVPNRD)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", rows[0].MACAddress)
	require.NotNil(t, rows[0].EVPNRouteType)
	assert.Equal(t, routeType, *rows[0].EVPNRouteType)
}

func TestProjectEVPNWithoutIPYieldsEmptyPrefix(t *testing.T) {
	bmpPeer, bgpPeer := peers()
	update := &bgp.ParsedUpdate{
		Announced: []bgp.Nlri{{
			Kind: bgp.NlriKindEVPN,
			AFI:  bgp.AFIL2VPN,
			EVPN: &bgp.EVPNRoute{RouteType: bgp.EVPNRouteTypeMACIPAdvertisement, MAC: "aa:bb:cc:dd:ee:ff"},
		}},
	}

	rows := Project(update, bmpPeer, bgpPeer, time.Unix(0, 0))
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Prefix)
}

func TestAsnPtrNilsZero(t *testing.T) {
	assert.Nil(t, asnPtr(0))
	require.NotNil(t, asnPtr(65000))
	assert.Equal(t, uint32(65000), *asnPtr(65000))
}
