// Package route projects a decoded BGP UPDATE plus its BMP peer
// context into the flat RouteUpdate rows the store persists — one row
// per announced or withdrawn prefix, per spec.
package route

import (
	"net"
	"strings"
	"time"

	"github.com/bmpcollector/bmpcollectord/internal/bgp"
)

// Family strings, matching the reference decoder's route.family values
// exactly so downstream SQL/dashboards built against them keep working.
const (
	FamilyIPv4Unicast = "ipv4_unicast"
	FamilyIPv6Unicast = "ipv6_unicast"
	FamilyEVPN        = "evpn"
)

// PeerIdentity is the BMP or BGP peer address/ASN pair attached to
// every RouteUpdate.
type PeerIdentity struct {
	IP  net.IP
	ASN uint32 // 0 when unknown — rendered as NULL, not 0
}

// RouteUpdate is one persisted row of the route_updates table.
type RouteUpdate struct {
	Time        time.Time
	BMPPeerIP   net.IP
	BMPPeerASN  *uint32
	BGPPeerIP   net.IP
	BGPPeerASN  *uint32
	Family      string
	Prefix      string
	NextHop     net.IP
	ASPath      []uint32
	Communities []string
	ExtendedCommunities []string
	MED         *uint32
	LocalPref   *uint32
	IsWithdrawn bool

	EVPNRouteType *uint8
	EVPNRD        string
	EVPNESI       string
	MACAddress    string
}

func asnPtr(asn uint32) *uint32 {
	if asn == 0 {
		return nil
	}
	return &asn
}

func familyForAFI(afi uint16) string {
	switch afi {
	case bgp.AFIIPv6:
		return FamilyIPv6Unicast
	case bgp.AFIL2VPN:
		return FamilyEVPN
	default:
		return FamilyIPv4Unicast
	}
}

// evpnIPPrefix renders the EVPN route's optional IP as a host prefix:
// /32 for IPv4, /128 for IPv6. Pure MAC advertisements (no IP in the
// NLRI) produce an empty prefix, persisted as NULL.
func evpnIPPrefix(ip string) string {
	if ip == "" {
		return ""
	}
	if strings.Contains(ip, ":") {
		return ip + "/128"
	}
	return ip + "/32"
}

// Project fans a ParsedUpdate out into one RouteUpdate per NLRI entry:
// withdrawn first, then announced, preserving the invariant
// len(out) == len(update.Withdrawn) + len(update.Announced).
func Project(update *bgp.ParsedUpdate, bmpPeer, bgpPeer PeerIdentity, ts time.Time) []RouteUpdate {
	out := make([]RouteUpdate, 0, len(update.Withdrawn)+len(update.Announced))

	for _, nlri := range update.Withdrawn {
		out = append(out, projectOne(nlri, update, bmpPeer, bgpPeer, ts, true))
	}
	for _, nlri := range update.Announced {
		out = append(out, projectOne(nlri, update, bmpPeer, bgpPeer, ts, false))
	}
	return out
}

func projectOne(nlri bgp.Nlri, update *bgp.ParsedUpdate, bmpPeer, bgpPeer PeerIdentity, ts time.Time, withdrawn bool) RouteUpdate {
	r := RouteUpdate{
		Time:        ts,
		BMPPeerIP:   bmpPeer.IP,
		BMPPeerASN:  asnPtr(bmpPeer.ASN),
		BGPPeerIP:   bgpPeer.IP,
		BGPPeerASN:  asnPtr(bgpPeer.ASN),
		IsWithdrawn: withdrawn,
	}

	if !withdrawn {
		r.NextHop = update.NextHop
		r.ASPath = update.ASPath
		r.Communities = update.Communities
		r.ExtendedCommunities = update.ExtendedCommunities
		r.MED = update.MED
		r.LocalPref = update.LocalPref
	}

	switch nlri.Kind {
	case bgp.NlriKindEVPN:
		r.Family = FamilyEVPN
		routeType := nlri.EVPN.RouteType
		r.EVPNRouteType = &routeType
		r.EVPNRD = nlri.EVPN.RD
		r.EVPNESI = nlri.EVPN.ESI
		r.MACAddress = nlri.EVPN.MAC
		r.Prefix = evpnIPPrefix(nlri.EVPN.IP)
	default:
		r.Family = familyForAFI(nlri.AFI)
		r.Prefix = nlri.IPPrefix
	}

	return r
}
