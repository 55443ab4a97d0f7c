package bmp

import (
	"github.com/bmpcollector/bmpcollectord/internal/binproto"
)

// ParseCommonHeader decodes the 6-byte BMP common header.
//
// A bad version or unrecognized msg_type is a per-message parse error,
// not a framing failure: the declared Length is still populated on the
// returned header whenever it could be read, so a caller can skip the
// remaining length-6 body bytes and resume reading the next frame
// instead of tearing down the connection. Length is left zero only
// when the data slice is shorter than the header itself or the
// declared length is below the 6-byte header size, since the frame
// boundary can't be determined then.
func ParseCommonHeader(data []byte) (CommonHeader, error) {
	if len(data) < CommonHeaderSize {
		return CommonHeader{}, parseErr("", "message too short for common header (%d bytes)", len(data))
	}
	version, err := binproto.Uint8(data, 0)
	if err != nil {
		return CommonHeader{}, parseErr("", "reading version: %v", err)
	}
	length, err := binproto.Uint32(data, 1)
	if err != nil {
		return CommonHeader{Version: version}, parseErr("", "reading length: %v", err)
	}
	if length < CommonHeaderSize {
		return CommonHeader{Version: version}, parseErr("", "declared length %d smaller than common header", length)
	}
	if version != Version {
		return CommonHeader{Version: version, Length: length}, parseErr("", "unsupported version %d (expected %d)", version, Version)
	}
	msgType, err := binproto.Uint8(data, 5)
	if err != nil {
		return CommonHeader{Version: version, Length: length}, parseErr("", "reading msg_type: %v", err)
	}
	switch msgType {
	case MsgTypeRouteMonitoring, MsgTypeStatisticsReport, MsgTypePeerDown,
		MsgTypePeerUp, MsgTypeInitiation, MsgTypeTermination, MsgTypeRouteMirroring:
	default:
		return CommonHeader{Version: version, Length: length}, parseErr("", "unknown msg_type %d", msgType)
	}
	return CommonHeader{Version: version, Length: length, MsgType: msgType}, nil
}

// ParsePerPeerHeader decodes the 42-byte per-peer header at the start
// of data. Byte offsets follow RFC 7854 §4.2: peer_type@0, flags@1,
// distinguisher@2, address@10 (16 bytes), asn@26, bgp_id@30,
// timestamp_sec@34, timestamp_usec@38.
func ParsePerPeerHeader(data []byte) (PerPeerHeader, error) {
	if len(data) < PerPeerHeaderSize {
		return PerPeerHeader{}, parseErr("", "too short for per-peer header (%d bytes)", len(data))
	}
	peerType, err := binproto.Uint8(data, 0)
	if err != nil {
		return PerPeerHeader{}, err
	}
	flags, err := binproto.Uint8(data, 1)
	if err != nil {
		return PerPeerHeader{}, err
	}
	dist, err := binproto.Bytes(data, 2, 8)
	if err != nil {
		return PerPeerHeader{}, err
	}
	addr, err := binproto.IPAddr(data, 10, flags&PeerFlagIPv6 != 0)
	if err != nil {
		return PerPeerHeader{}, err
	}
	asn, err := binproto.Uint32(data, 26)
	if err != nil {
		return PerPeerHeader{}, err
	}
	bgpIDRaw, err := binproto.Uint32(data, 30)
	if err != nil {
		return PerPeerHeader{}, err
	}
	tsSec, err := binproto.Uint32(data, 34)
	if err != nil {
		return PerPeerHeader{}, err
	}
	tsUsec, err := binproto.Uint32(data, 38)
	if err != nil {
		return PerPeerHeader{}, err
	}

	h := PerPeerHeader{
		PeerType:      peerType,
		Flags:         flags,
		PeerASN:       asn,
		PeerAddress:   addr,
		TimestampSec:  tsSec,
		TimestampUsec: tsUsec,
	}
	copy(h.PeerDistinguisher[:], dist)
	bgpIDBytes := []byte{byte(bgpIDRaw >> 24), byte(bgpIDRaw >> 16), byte(bgpIDRaw >> 8), byte(bgpIDRaw)}
	h.PeerBGPID = bgpIDBytes
	return h, nil
}

// ParseInformationTLVs decodes a run of type(2)+length(2)+value TLVs
// occupying data[off:end]. Unknown types are retained as RawTLV rather
// than rejected.
func ParseInformationTLVs(data []byte, off, end int) ([]RawTLV, error) {
	var tlvs []RawTLV
	for off < end {
		if off+4 > end {
			return nil, parseErr("", "incomplete TLV header at offset %d", off)
		}
		tlvType, err := binproto.Uint16(data, off)
		if err != nil {
			return nil, err
		}
		tlvLen, err := binproto.Uint16(data, off+2)
		if err != nil {
			return nil, err
		}
		off += 4
		if off+int(tlvLen) > end {
			return nil, parseErr("", "incomplete TLV value at offset %d (len %d)", off, tlvLen)
		}
		value, err := binproto.Bytes(data, off, int(tlvLen))
		if err != nil {
			return nil, err
		}
		tlvs = append(tlvs, RawTLV{Type: tlvType, Value: value})
		off += int(tlvLen)
	}
	return tlvs, nil
}

// Parse decodes a complete BMP message, dispatching on message type.
// data must be exactly one message: the caller (internal/session) is
// responsible for framing via the common header's declared length.
func Parse(data []byte) (*Message, error) {
	hdr, err := ParseCommonHeader(data)
	if err != nil {
		return nil, err
	}
	if int(hdr.Length) > len(data) {
		return nil, parseErr("", "declared length %d exceeds available data %d", hdr.Length, len(data))
	}
	body := data[:hdr.Length]

	switch hdr.MsgType {
	case MsgTypeRouteMonitoring:
		return parseRouteMonitoring(body)
	case MsgTypeStatisticsReport:
		return parseStatisticsReport(body)
	case MsgTypePeerDown:
		return parsePeerDown(body)
	case MsgTypePeerUp:
		return parsePeerUp(body)
	case MsgTypeInitiation:
		return parseInitiationOrTermination(body, MsgTypeInitiation)
	case MsgTypeTermination:
		return parseInitiationOrTermination(body, MsgTypeTermination)
	default:
		return &Message{MsgType: hdr.MsgType}, nil
	}
}

func parseRouteMonitoring(body []byte) (*Message, error) {
	if len(body) < CommonHeaderSize+PerPeerHeaderSize {
		return nil, parseErr("", "route monitoring message too short")
	}
	peer, err := ParsePerPeerHeader(body[CommonHeaderSize:])
	if err != nil {
		return nil, err
	}
	bgpData, err := binproto.Bytes(body, CommonHeaderSize+PerPeerHeaderSize, len(body)-CommonHeaderSize-PerPeerHeaderSize)
	if err != nil {
		return nil, err
	}
	return &Message{MsgType: MsgTypeRouteMonitoring, Peer: &peer, BGPData: bgpData}, nil
}

func parseStatisticsReport(body []byte) (*Message, error) {
	if len(body) < CommonHeaderSize+PerPeerHeaderSize+4 {
		return nil, parseErr("", "statistics report too short")
	}
	peer, err := ParsePerPeerHeader(body[CommonHeaderSize:])
	if err != nil {
		return nil, err
	}
	off := CommonHeaderSize + PerPeerHeaderSize
	count, err := binproto.Uint32(body, off)
	if err != nil {
		return nil, err
	}
	off += 4

	stats := make([]RawStat, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+4 > len(body) {
			return nil, parseErr(peer.PeerAddress.String(), "incomplete statistics TLV header")
		}
		statType, err := binproto.Uint16(body, off)
		if err != nil {
			return nil, err
		}
		statLen, err := binproto.Uint16(body, off+2)
		if err != nil {
			return nil, err
		}
		off += 4
		if off+int(statLen) > len(body) {
			return nil, parseErr(peer.PeerAddress.String(), "incomplete statistics TLV value")
		}
		stat := RawStat{Type: statType, Length: statLen}
		switch {
		case statLen >= 1 && statLen <= 8:
			v, err := binproto.UintN(body, off, int(statLen))
			if err != nil {
				return nil, err
			}
			stat.Value = v
		default:
			raw, err := binproto.Bytes(body, off, int(statLen))
			if err != nil {
				return nil, err
			}
			stat.Raw = raw
		}
		stats = append(stats, stat)
		off += int(statLen)
	}
	return &Message{MsgType: MsgTypeStatisticsReport, Peer: &peer, Stats: stats}, nil
}

func parsePeerDown(body []byte) (*Message, error) {
	if len(body) < CommonHeaderSize+PerPeerHeaderSize+1 {
		return nil, parseErr("", "peer down message too short")
	}
	peer, err := ParsePerPeerHeader(body[CommonHeaderSize:])
	if err != nil {
		return nil, err
	}
	off := CommonHeaderSize + PerPeerHeaderSize
	reason, err := binproto.Uint8(body, off)
	if err != nil {
		return nil, err
	}
	switch reason {
	case PeerDownLocalNotification, PeerDownLocalFSMEvent, PeerDownRemoteNotification,
		PeerDownRemoteNoNotification, PeerDownPeerDeConfigured:
	default:
		return nil, parseErr(peer.PeerAddress.String(), "unknown peer-down reason code %d", reason)
	}
	off++
	var rest []byte
	if off < len(body) {
		rest, err = binproto.Bytes(body, off, len(body)-off)
		if err != nil {
			return nil, err
		}
	}
	return &Message{MsgType: MsgTypePeerDown, Peer: &peer, ReasonCode: reason, ReasonData: rest}, nil
}

func parsePeerUp(body []byte) (*Message, error) {
	if len(body) < CommonHeaderSize+PerPeerHeaderSize+20 {
		return nil, parseErr("", "peer up message too short")
	}
	peer, err := ParsePerPeerHeader(body[CommonHeaderSize:])
	if err != nil {
		return nil, err
	}
	off := CommonHeaderSize + PerPeerHeaderSize

	localAddr, err := binproto.IPAddr(body, off, peer.IsIPv6())
	if err != nil {
		return nil, err
	}
	off += 16
	localPort, err := binproto.Uint16(body, off)
	if err != nil {
		return nil, err
	}
	off += 2
	remotePort, err := binproto.Uint16(body, off)
	if err != nil {
		return nil, err
	}
	off += 2

	sentOpen, n, err := readSelfDelimitedOpen(body, off)
	if err != nil {
		return nil, parseErr(peer.PeerAddress.String(), "reading sent OPEN: %v", err)
	}
	off += n

	recvOpen, n, err := readSelfDelimitedOpen(body, off)
	if err != nil {
		return nil, parseErr(peer.PeerAddress.String(), "reading received OPEN: %v", err)
	}
	off += n

	var tlvs []RawTLV
	if off < len(body) {
		tlvs, err = ParseInformationTLVs(body, off, len(body))
		if err != nil {
			return nil, err
		}
	}

	return &Message{
		MsgType:      MsgTypePeerUp,
		Peer:         &peer,
		LocalAddress: localAddr,
		LocalPort:    localPort,
		RemotePort:   remotePort,
		SentOpen:     sentOpen,
		ReceivedOpen: recvOpen,
		TLVs:         tlvs,
	}, nil
}

// readSelfDelimitedOpen reads one BGP OPEN PDU starting at off, whose
// own length field (bytes 16-17 of the BGP header) delimits it. Returns
// the PDU bytes and the number of bytes consumed.
func readSelfDelimitedOpen(data []byte, off int) ([]byte, int, error) {
	if off+19 > len(data) {
		return nil, 0, parseErr("", "too short for BGP OPEN header")
	}
	length, err := binproto.Uint16(data, off+16)
	if err != nil {
		return nil, 0, err
	}
	if int(length) < 19 {
		return nil, 0, parseErr("", "invalid BGP message length %d", length)
	}
	pdu, err := binproto.Bytes(data, off, int(length))
	if err != nil {
		return nil, 0, err
	}
	return pdu, int(length), nil
}

func parseInitiationOrTermination(body []byte, msgType uint8) (*Message, error) {
	tlvs, err := ParseInformationTLVs(body, CommonHeaderSize, len(body))
	if err != nil {
		return nil, err
	}
	return &Message{MsgType: msgType, TLVs: tlvs}, nil
}

// StringTLV returns the decoded string value of the first TLV of the
// given type, if present.
func StringTLV(tlvs []RawTLV, typ uint16) (string, bool) {
	for _, t := range tlvs {
		if t.Type == typ {
			return string(t.Value), true
		}
	}
	return "", false
}
