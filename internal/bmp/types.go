package bmp

import "net"

// BMP message types, RFC 7854 §4.
const (
	MsgTypeRouteMonitoring  uint8 = 0
	MsgTypeStatisticsReport uint8 = 1
	MsgTypePeerDown         uint8 = 2
	MsgTypePeerUp           uint8 = 3
	MsgTypeInitiation       uint8 = 4
	MsgTypeTermination      uint8 = 5
	MsgTypeRouteMirroring   uint8 = 6
)

// Peer types, RFC 7854 §4.2 plus the Loc-RIB peer type of RFC 9069.
const (
	PeerTypeGlobalInstance uint8 = 0
	PeerTypeRDInstance     uint8 = 1
	PeerTypeLocalInstance  uint8 = 2
	PeerTypeLocRIB         uint8 = 3
)

// Per-peer header flag bits, RFC 7854 §4.2.
const (
	PeerFlagIPv6         uint8 = 0x80
	PeerFlagPostPolicy   uint8 = 0x40
	PeerFlagLegacyASPath uint8 = 0x20
	PeerFlagAdjRIBOut    uint8 = 0x10
)

// Peer-down reason codes, RFC 7854 §4.9.
const (
	PeerDownLocalNotification    uint8 = 1
	PeerDownLocalFSMEvent        uint8 = 2
	PeerDownRemoteNotification   uint8 = 3
	PeerDownRemoteNoNotification uint8 = 4
	PeerDownPeerDeConfigured     uint8 = 5
)

// Information/Statistics TLV type codes this decoder interprets;
// anything else is retained opaquely rather than rejected.
const (
	TLVTypeString       uint16 = 0
	TLVTypeSysDescr     uint16 = 1
	TLVTypeSysName      uint16 = 2
	TLVTypeVRFTableName uint16 = 3
)

const (
	CommonHeaderSize  = 6
	PerPeerHeaderSize = 42
	Version           = 3
)

// CommonHeader is the 6-byte header present on every BMP message.
type CommonHeader struct {
	Version uint8
	Length  uint32
	MsgType uint8
}

// PerPeerHeader is the 42-byte header carried by every per-peer BMP
// message (route monitoring, peer up/down, statistics report).
type PerPeerHeader struct {
	PeerType          uint8
	Flags             uint8
	PeerDistinguisher [8]byte
	PeerAddress       net.IP
	PeerASN           uint32
	PeerBGPID         net.IP
	TimestampSec      uint32
	TimestampUsec     uint32
}

func (h PerPeerHeader) IsIPv6() bool       { return h.Flags&PeerFlagIPv6 != 0 }
func (h PerPeerHeader) IsPostPolicy() bool { return h.Flags&PeerFlagPostPolicy != 0 }
func (h PerPeerHeader) IsLocRIB() bool     { return h.PeerType == PeerTypeLocRIB }

// RawTLV is an information TLV this decoder does not interpret further,
// retained opaquely per spec rather than rejected.
type RawTLV struct {
	Type  uint16
	Value []byte
}

// RawStat is a single statistics-report TLV, decoded to the widest
// integer representation its declared length supports.
type RawStat struct {
	Type   uint16
	Length uint16
	Value  uint64
	Raw    []byte // populated instead of Value when Length is 0 or > 8
}

// Message is the fully decoded envelope for one BMP PDU. Only the
// fields relevant to MsgType are populated; BGPData carries the raw
// BGP UPDATE payload for route-monitoring messages, unparsed — BGP
// decoding is a separate concern (internal/bgp).
type Message struct {
	MsgType uint8
	Peer    *PerPeerHeader // nil for Initiation/Termination

	// Route monitoring
	BGPData []byte

	// Peer up
	LocalAddress net.IP
	LocalPort    uint16
	RemotePort   uint16
	SentOpen     []byte
	ReceivedOpen []byte

	// Peer down
	ReasonCode uint8
	ReasonData []byte

	// Initiation / termination / peer up info TLVs
	TLVs []RawTLV

	// Statistics report
	Stats []RawStat
}
