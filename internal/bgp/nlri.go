package bgp

import (
	"fmt"
	"net"

	"github.com/bmpcollector/bmpcollectord/internal/binproto"
)

// parsePrefix reads one length-prefixed IP prefix (RFC 4271 §4.3 NLRI
// encoding: 1-byte prefix length in bits, then ceil(bits/8) address
// bytes) at off. maxBytes is 4 for IPv4, 16 for IPv6. Returns the CIDR
// string and the number of bytes consumed.
func parsePrefix(data []byte, off, maxBytes int) (string, int, error) {
	bits, err := binproto.Uint8(data, off)
	if err != nil {
		return "", 0, err
	}
	byteLen := (int(bits) + 7) / 8
	if byteLen > maxBytes {
		return "", 0, parseErr("prefix length %d bits exceeds address width", bits)
	}
	raw, err := binproto.Bytes(data, off+1, byteLen)
	if err != nil {
		return "", 0, err
	}
	addr := make([]byte, maxBytes)
	copy(addr, raw)
	cidr := fmt.Sprintf("%s/%d", net.IP(addr).String(), bits)
	return cidr, 1 + byteLen, nil
}

func parsePrefixList(data []byte, maxBytes int) ([]Nlri, error) {
	afi := AFIIPv4
	if maxBytes == 16 {
		afi = AFIIPv6
	}
	var out []Nlri
	off := 0
	for off < len(data) {
		cidr, n, err := parsePrefix(data, off, maxBytes)
		if err != nil {
			return nil, err
		}
		out = append(out, Nlri{Kind: NlriKindIPPrefix, AFI: afi, IPPrefix: cidr})
		off += n
	}
	return out, nil
}

// parseEVPNNLRI reads one EVPN route from data starting at off:
// route_type(1) + length(1) + body(length bytes). Only Type 2
// (MAC/IP Advertisement) is fully decoded; other route types are
// consumed structurally so framing stays correct, with only RouteType
// populated. Returns the Nlri and bytes consumed.
func parseEVPNNLRI(data []byte, off int) (Nlri, int, error) {
	routeType, err := binproto.Uint8(data, off)
	if err != nil {
		return Nlri{}, 0, err
	}
	length, err := binproto.Uint8(data, off+1)
	if err != nil {
		return Nlri{}, 0, err
	}
	body, err := binproto.Bytes(data, off+2, int(length))
	if err != nil {
		return Nlri{}, 0, err
	}
	consumed := 2 + int(length)

	if routeType != EVPNRouteTypeMACIPAdvertisement {
		return Nlri{Kind: NlriKindEVPN, AFI: AFIL2VPN, EVPN: &EVPNRoute{RouteType: routeType}}, consumed, nil
	}

	route, err := parseEVPNType2(body)
	if err != nil {
		return Nlri{}, 0, err
	}
	return Nlri{Kind: NlriKindEVPN, AFI: AFIL2VPN, EVPN: route}, consumed, nil
}

// parseEVPNType2 decodes a MAC/IP Advertisement route body: RD(8) +
// ESI(10) + Ethernet Tag ID(4) + MAC Address Length(1, bits) + MAC(6) +
// IP Address Length(1, bits: 0/32/128) + IP(0/4/16) + one or two MPLS
// labels (3 bytes each, ignored). Minimum length (no IP, one label
// present) is 33 bytes.
func parseEVPNType2(body []byte) (*EVPNRoute, error) {
	const minLen = 33
	if len(body) < minLen {
		return nil, parseErr("EVPN Type 2 NLRI shorter than minimum %d bytes (got %d)", minLen, len(body))
	}
	rd, err := parseRouteDistinguisher(body[0:8])
	if err != nil {
		return nil, err
	}
	esi, err := parseESI(body[8:18])
	if err != nil {
		return nil, err
	}
	// body[18:22] is the Ethernet Tag ID, not currently surfaced.
	macLenBits := body[22]
	if macLenBits != 48 {
		return nil, parseErr("EVPN Type 2 MAC address length %d bits, expected 48", macLenBits)
	}
	mac := net.HardwareAddr(body[23:29]).String()

	off := 29
	ipLenBits, err := binproto.Uint8(body, off)
	if err != nil {
		return nil, err
	}
	off++

	var ip string
	switch ipLenBits {
	case 0:
		// no IP carried
	case 32:
		raw, err := binproto.Bytes(body, off, 4)
		if err != nil {
			return nil, err
		}
		ip = net.IP(raw).String()
		off += 4
	case 128:
		raw, err := binproto.Bytes(body, off, 16)
		if err != nil {
			return nil, err
		}
		ip = net.IP(raw).String()
		off += 16
	default:
		return nil, parseErr("EVPN Type 2 IP address length %d bits is not 0, 32, or 128", ipLenBits)
	}

	return &EVPNRoute{
		RouteType: EVPNRouteTypeMACIPAdvertisement,
		RD:        rd,
		ESI:       esi,
		MAC:       mac,
		IP:        ip,
	}, nil
}

// parseEVPNNLRIList decodes a run of EVPN NLRI entries until data is
// exhausted.
func parseEVPNNLRIList(data []byte) ([]Nlri, error) {
	var out []Nlri
	off := 0
	for off < len(data) {
		nlri, n, err := parseEVPNNLRI(data, off)
		if err != nil {
			return nil, err
		}
		out = append(out, nlri)
		off += n
	}
	return out, nil
}

func maxIPLenForAFI(afi uint16) int {
	if afi == AFIIPv6 {
		return 16
	}
	return 4
}

// parseMPReachNLRI decodes MP_REACH_NLRI (attribute type 14): AFI(2) +
// SAFI(1) + next-hop-length(1) + next-hop(var) + reserved(1, SNPA
// count) + NLRI(var). Dispatches NLRI decoding by AFI/SAFI: IPv4/IPv6
// unicast use length-prefixed prefixes; L2VPN/EVPN uses the EVPN NLRI
// format.
func parseMPReachNLRI(value []byte) (afi uint16, safi uint8, nextHop net.IP, nlri []Nlri, err error) {
	afi, err = binproto.Uint16(value, 0)
	if err != nil {
		return
	}
	safiV, err2 := binproto.Uint8(value, 2)
	if err2 != nil {
		err = err2
		return
	}
	safi = safiV
	nhLen, err3 := binproto.Uint8(value, 3)
	if err3 != nil {
		err = err3
		return
	}
	nhBytes, err4 := binproto.Bytes(value, 4, int(nhLen))
	if err4 != nil {
		err = err4
		return
	}
	nextHop = net.IP(nhBytes)

	off := 4 + int(nhLen)
	// Reserved byte (SNPA count, legacy and always 0 in practice).
	off++
	if off > len(value) {
		err = parseErr("MP_REACH_NLRI truncated before NLRI")
		return
	}
	rest := value[off:]

	switch {
	case afi == AFIL2VPN && safi == SAFIEVPN:
		nlri, err = parseEVPNNLRIList(rest)
	case (afi == AFIIPv4 || afi == AFIIPv6) && safi == SAFIUnicast:
		nlri, err = parsePrefixList(rest, maxIPLenForAFI(afi))
	default:
		// Unsupported AFI/SAFI combination: leave nlri empty rather
		// than reject the whole UPDATE.
	}
	return
}

// parseMPUnreachNLRI decodes MP_UNREACH_NLRI (attribute type 15):
// AFI(2) + SAFI(1) + withdrawn NLRI(var). Same per-AFI/SAFI dispatch
// as parseMPReachNLRI, without a next hop.
func parseMPUnreachNLRI(value []byte) (afi uint16, safi uint8, nlri []Nlri, err error) {
	afi, err = binproto.Uint16(value, 0)
	if err != nil {
		return
	}
	safiV, err2 := binproto.Uint8(value, 2)
	if err2 != nil {
		err = err2
		return
	}
	safi = safiV
	rest := value[3:]

	switch {
	case afi == AFIL2VPN && safi == SAFIEVPN:
		nlri, err = parseEVPNNLRIList(rest)
	case (afi == AFIIPv4 || afi == AFIIPv6) && safi == SAFIUnicast:
		nlri, err = parsePrefixList(rest, maxIPLenForAFI(afi))
	default:
	}
	return
}
