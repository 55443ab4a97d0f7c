package bgp

import (
	"encoding/hex"
	"fmt"
	"net"

	"github.com/bmpcollector/bmpcollectord/internal/binproto"
)

// parseASPath decodes the AS_PATH attribute value. Per spec design
// note, the width of each ASN (2 or 4 bytes) is not signaled on the
// wire for plain AS_PATH; it is detected by trying a 4-byte-ASN parse
// first and falling back to 2-byte only if the 4-byte parse cannot
// consume the value exactly.
func parseASPath(value []byte) ([]uint32, error) {
	if asns, ok := tryASPathWidth(value, 4); ok {
		return asns, nil
	}
	if asns, ok := tryASPathWidth(value, 2); ok {
		return asns, nil
	}
	return nil, parseErr("AS_PATH does not parse cleanly at 2 or 4 byte ASN width (%d bytes)", len(value))
}

func tryASPathWidth(value []byte, width int) ([]uint32, bool) {
	var asns []uint32
	off := 0
	for off < len(value) {
		if off+2 > len(value) {
			return nil, false
		}
		segType := value[off]
		segCount := int(value[off+1])
		off += 2
		if segType != ASPathSegmentSet && segType != ASPathSegmentSequence {
			return nil, false
		}
		needed := segCount * width
		if off+needed > len(value) {
			return nil, false
		}
		for i := 0; i < segCount; i++ {
			var asn uint32
			for b := 0; b < width; b++ {
				asn = asn<<8 | uint32(value[off+b])
			}
			asns = append(asns, asn)
			off += width
		}
	}
	return asns, off == len(value)
}

func parseOrigin(value []byte) (string, error) {
	if len(value) != 1 {
		return "", parseErr("ORIGIN attribute must be 1 byte, got %d", len(value))
	}
	name, ok := OriginValues[value[0]]
	if !ok {
		return "", parseErr("unknown ORIGIN value %d", value[0])
	}
	return name, nil
}

func parseNextHop(value []byte) (net.IP, error) {
	switch len(value) {
	case 4, 16:
		return net.IP(append([]byte(nil), value...)), nil
	default:
		return nil, parseErr("NEXT_HOP attribute has invalid length %d", len(value))
	}
}

func parseUint32Attr(value []byte, name string) (uint32, error) {
	if len(value) != 4 {
		return 0, parseErr("%s attribute must be 4 bytes, got %d", name, len(value))
	}
	v, err := binproto.Uint32(value, 0)
	if err != nil {
		return 0, err
	}
	return v, nil
}

func parseCommunities(value []byte) ([]string, error) {
	if len(value)%4 != 0 {
		return nil, parseErr("COMMUNITY attribute length %d is not a multiple of 4", len(value))
	}
	var out []string
	for off := 0; off < len(value); off += 4 {
		hi, _ := binproto.Uint16(value, off)
		lo, _ := binproto.Uint16(value, off+2)
		out = append(out, fmt.Sprintf("%d:%d", hi, lo))
	}
	return out, nil
}

func parseLargeCommunities(value []byte) ([]string, error) {
	if len(value)%12 != 0 {
		return nil, parseErr("LARGE_COMMUNITY attribute length %d is not a multiple of 12", len(value))
	}
	var out []string
	for off := 0; off < len(value); off += 12 {
		global, _ := binproto.Uint32(value, off)
		local1, _ := binproto.Uint32(value, off+4)
		local2, _ := binproto.Uint32(value, off+8)
		out = append(out, fmt.Sprintf("%d:%d:%d", global, local1, local2))
	}
	return out, nil
}

func parseExtendedCommunities(value []byte) ([]string, error) {
	if len(value)%8 != 0 {
		return nil, parseErr("EXTENDED_COMMUNITIES attribute length %d is not a multiple of 8", len(value))
	}
	var out []string
	for off := 0; off < len(value); off += 8 {
		out = append(out, decodeExtendedCommunity(value[off:off+8]))
	}
	return out, nil
}

// decodeExtendedCommunity dispatches on the exact (type, subtype) pair,
// RFC 4360 / RFC 7153 / RFC 7432. The table is not keyed on type alone:
// the same subtype byte means different things in different type
// spaces (e.g. subtype 0x02 is "two-octet AS RT" under type 0x00 and
// "EVPN ES-Import" under type 0x06), so each case below names
// both bytes it matches. OSPF Domain ID (0x03/0x0c) is checked before
// the generic 0x03 opaque rule.
func decodeExtendedCommunity(raw []byte) string {
	typ := raw[0]
	subtype := raw[1]

	switch {
	case typ == 0x03 && subtype == 0x0c:
		// Last 4 of the 6 body bytes are the domain ID.
		return fmt.Sprintf("OSPF-Domain:%s", net.IP(raw[4:8]))

	case typ == 0x00 && subtype == 0x02: // two-octet AS Route Target
		asn, _ := binproto.Uint16(raw, 2)
		val, _ := binproto.Uint32(raw, 4)
		return fmt.Sprintf("RT:%d:%d", asn, val)
	case typ == 0x02 && subtype == 0x00: // two-octet AS Route Origin
		asn, _ := binproto.Uint16(raw, 2)
		val, _ := binproto.Uint32(raw, 4)
		return fmt.Sprintf("RO:%d:%d", asn, val)

	case typ == 0x01 && subtype == 0x02: // IPv4 address Route Target
		ip := net.IP(raw[2:6])
		val, _ := binproto.Uint16(raw, 6)
		return fmt.Sprintf("RT:%s:%d", ip, val)
	case typ == 0x03 && subtype == 0x00: // IPv4 address Route Origin
		ip := net.IP(raw[2:6])
		val, _ := binproto.Uint16(raw, 6)
		return fmt.Sprintf("RO:%s:%d", ip, val)

	case typ == 0x02 && subtype == 0x02: // four-octet AS Route Target
		asn, _ := binproto.Uint32(raw, 2)
		val, _ := binproto.Uint16(raw, 6)
		return fmt.Sprintf("RT:%d:%d", asn, val)
	case typ == 0x0a && subtype == 0x02: // four-octet AS Route Origin
		asn, _ := binproto.Uint32(raw, 2)
		val, _ := binproto.Uint16(raw, 6)
		return fmt.Sprintf("RO:%d:%d", asn, val)

	case typ == 0x03: // generic opaque
		return fmt.Sprintf("Opaque:%s", hex.EncodeToString(raw[2:8]))

	case typ == 0x06: // EVPN
		switch subtype {
		case 0x00: // MAC Mobility: flags(1) + seq(4) + reserved(1)
			seq, _ := binproto.Uint32(raw, 3)
			return fmt.Sprintf("EVPN-MAC-Mobility:%d", seq)
		case 0x01: // ESI Label: flags(1) + reserved(2) + label(3)
			label := uint32(raw[5])<<12 | uint32(raw[6])<<4 | uint32(raw[7])>>4
			return fmt.Sprintf("EVPN-ESI-Label:%d", label)
		case 0x02: // ES-Import RT: 6-byte MAC address
			mac := raw[2:8]
			return fmt.Sprintf("EVPN-ES-Import:%02x:%02x:%02x:%02x:%02x:%02x",
				mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
		default:
			return fmt.Sprintf("EVPN-%02x:%s", subtype, hex.EncodeToString(raw[2:8]))
		}

	case typ == 0x08: // flow spec redirect
		asn, _ := binproto.Uint16(raw, 2)
		val, _ := binproto.Uint32(raw, 4)
		return fmt.Sprintf("Redirect:%d:%d", asn, val)

	default:
		return fmt.Sprintf("Unknown-%02x:%s", typ, hex.EncodeToString(raw))
	}
}

// parseRouteDistinguisher decodes an 8-byte Route Distinguisher,
// RFC 4364 §4.2. Types 0 and 2 carry a 2-or-4-byte admin ASN plus a
// numeric assigned number; type 1 carries an IPv4 address. Unknown
// types fall back to a raw hex rendering.
func parseRouteDistinguisher(raw []byte) (string, error) {
	if len(raw) != 8 {
		return "", parseErr("route distinguisher must be 8 bytes, got %d", len(raw))
	}
	rdType, _ := binproto.Uint16(raw, 0)
	switch rdType {
	case 0: // 2-byte ASN : 4-byte assigned number
		asn, _ := binproto.Uint16(raw, 2)
		val, _ := binproto.Uint32(raw, 4)
		return fmt.Sprintf("%d:%d", asn, val), nil
	case 1: // 4-byte IPv4 address : 2-byte assigned number
		ip := net.IP(raw[2:6])
		val, _ := binproto.Uint16(raw, 6)
		return fmt.Sprintf("%s:%d", ip, val), nil
	case 2: // 4-byte ASN : 2-byte assigned number
		asn, _ := binproto.Uint32(raw, 2)
		val, _ := binproto.Uint16(raw, 6)
		return fmt.Sprintf("%d:%d", asn, val), nil
	default:
		return hex.EncodeToString(raw), nil
	}
}

// parseESI renders a 10-byte Ethernet Segment Identifier as
// colon-separated hex octets.
func parseESI(raw []byte) (string, error) {
	if len(raw) != 10 {
		return "", parseErr("ESI must be 10 bytes, got %d", len(raw))
	}
	out := make([]byte, 0, 29)
	for i, b := range raw {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, []byte(fmt.Sprintf("%02x", b))...)
	}
	return string(out), nil
}
