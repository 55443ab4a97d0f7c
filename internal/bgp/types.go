package bgp

import "net"

// BGP path attribute type codes, RFC 4271 / RFC 4760.
const (
	AttrTypeOrigin         uint8 = 1
	AttrTypeASPath         uint8 = 2
	AttrTypeNextHop        uint8 = 3
	AttrTypeMED            uint8 = 4
	AttrTypeLocalPref      uint8 = 5
	AttrTypeAtomicAggregate uint8 = 6
	AttrTypeAggregator     uint8 = 7
	AttrTypeCommunity      uint8 = 8
	AttrTypeMPReachNLRI    uint8 = 14
	AttrTypeMPUnreachNLRI  uint8 = 15
	AttrTypeExtCommunity   uint8 = 16
	AttrTypeLargeCommunity uint8 = 32
)

// Attribute flag bits, RFC 4271 §4.3.
const (
	AttrFlagExtendedLength uint8 = 0x10
)

// AFI codes (RFC 4760 + IANA).
const (
	AFIIPv4  uint16 = 1
	AFIIPv6  uint16 = 2
	AFIL2VPN uint16 = 25
)

// SAFI codes.
const (
	SAFIUnicast uint8 = 1
	SAFIEVPN    uint8 = 70
)

// AS_PATH segment types, RFC 4271 §4.3.
const (
	ASPathSegmentSet      uint8 = 1
	ASPathSegmentSequence uint8 = 2
)

// OriginValues maps the ORIGIN attribute's single byte to its name.
var OriginValues = map[uint8]string{
	0: "IGP",
	1: "EGP",
	2: "INCOMPLETE",
}

const BGPMsgTypeUpdate uint8 = 2

// BGPHeaderSize: marker(16) + length(2) + type(1).
const BGPHeaderSize = 19

// EVPN route types, RFC 7432 §7.
const (
	EVPNRouteTypeEthernetAutoDiscovery uint8 = 1
	EVPNRouteTypeMACIPAdvertisement    uint8 = 2
	EVPNRouteTypeInclusiveMulticastTag uint8 = 3
	EVPNRouteTypeEthernetSegment       uint8 = 4
)

// EVPNRoute is the decoded form of an EVPN Type 2 (MAC/IP Advertisement)
// NLRI. Other EVPN route types are consumed structurally and do not
// populate these fields beyond RouteType.
type EVPNRoute struct {
	RouteType uint8
	RD        string
	ESI       string
	MAC       string
	IP        string // empty when the route carries no IP
}

// NlriKind tags which variant an Nlri value holds — the tagged sum
// design note: the decoder never flattens a route to a bare string
// early, since EVPN routes need reassembly into a synthetic prefix
// downstream (internal/route), not just a withdrawal flag.
type NlriKind int

const (
	NlriKindIPPrefix NlriKind = iota
	NlriKindEVPN
)

// Nlri is one announced or withdrawn route carried by an UPDATE. AFI
// is recorded per entry (not just once on ParsedUpdate) so that a
// single UPDATE mixing classic IPv4 withdrawals with an MP_REACH for a
// different AFI still tags each route with its own family downstream.
type Nlri struct {
	Kind     NlriKind
	AFI      uint16
	IPPrefix string // CIDR notation, set when Kind == NlriKindIPPrefix
	EVPN     *EVPNRoute
}

// ParsedUpdate is the fully decoded form of one BGP UPDATE PDU.
type ParsedUpdate struct {
	Withdrawn []Nlri
	Announced []Nlri

	ASPath               []uint32
	Origin               string
	NextHop              net.IP
	MED                  *uint32
	LocalPref            *uint32
	Communities          []string
	ExtendedCommunities  []string
	LargeCommunities     []string

	AFI  uint16
	SAFI uint8

	// IsWithdrawal is true when this UPDATE carries no announcements and
	// either withdraws at least one prefix (withdrawn_routes or
	// MP_UNREACH_NLRI) or carries an MP_UNREACH_NLRI attribute. An
	// UPDATE with both announcements and withdrawals is not a
	// withdrawal; its Withdrawn entries are still listed.
	IsWithdrawal bool
}
