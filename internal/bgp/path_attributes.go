package bgp

import (
	"net"

	"github.com/bmpcollector/bmpcollectord/internal/binproto"
)

// mpAttr holds one decoded multiprotocol attribute (MP_REACH_NLRI or
// MP_UNREACH_NLRI); nextHop is unset (nil) for MP_UNREACH_NLRI.
type mpAttr struct {
	afi     uint16
	safi    uint8
	nextHop net.IP
	nlri    []Nlri
}

// parseAttributes walks the path attribute TLV sequence and fills in
// the scalar fields of update directly, returning the two
// multiprotocol attributes (if present) since they interact with NLRI
// parsing in the caller. A malformed individual attribute attribute is
// skipped without aborting the rest of the UPDATE — mirrors the
// reference decoder's per-attribute isolation (catch one, continue).
func parseAttributes(data []byte, update *ParsedUpdate) (mpReach, mpUnreach *mpAttr) {
	off := 0
	for off < len(data) {
		flags, err := binproto.Uint8(data, off)
		if err != nil {
			return mpReach, mpUnreach
		}
		typ, err := binproto.Uint8(data, off+1)
		if err != nil {
			return mpReach, mpUnreach
		}
		off += 2

		var length int
		if flags&AttrFlagExtendedLength != 0 {
			l, err := binproto.Uint16(data, off)
			if err != nil {
				return mpReach, mpUnreach
			}
			length = int(l)
			off += 2
		} else {
			l, err := binproto.Uint8(data, off)
			if err != nil {
				return mpReach, mpUnreach
			}
			length = int(l)
			off++
		}

		if off+length > len(data) {
			// Truncated attribute value: stop processing, offsets can
			// no longer be trusted past this point.
			return mpReach, mpUnreach
		}
		value := data[off : off+length]
		off += length

		switch typ {
		case AttrTypeOrigin:
			if v, err := parseOrigin(value); err == nil {
				update.Origin = v
			}
		case AttrTypeASPath:
			if v, err := parseASPath(value); err == nil {
				update.ASPath = v
			}
		case AttrTypeNextHop:
			if v, err := parseNextHop(value); err == nil {
				update.NextHop = v
			}
		case AttrTypeMED:
			if v, err := parseUint32Attr(value, "MED"); err == nil {
				update.MED = &v
			}
		case AttrTypeLocalPref:
			if v, err := parseUint32Attr(value, "LOCAL_PREF"); err == nil {
				update.LocalPref = &v
			}
		case AttrTypeCommunity:
			if v, err := parseCommunities(value); err == nil {
				update.Communities = v
			}
		case AttrTypeExtCommunity:
			if v, err := parseExtendedCommunities(value); err == nil {
				update.ExtendedCommunities = v
			}
		case AttrTypeLargeCommunity:
			if v, err := parseLargeCommunities(value); err == nil {
				update.LargeCommunities = v
			}
		case AttrTypeMPReachNLRI:
			if afi, safi, nh, nlri, err := parseMPReachNLRI(value); err == nil {
				mpReach = &mpAttr{afi: afi, safi: safi, nextHop: nh, nlri: nlri}
			}
		case AttrTypeMPUnreachNLRI:
			if afi, safi, nlri, err := parseMPUnreachNLRI(value); err == nil {
				mpUnreach = &mpAttr{afi: afi, safi: safi, nlri: nlri}
			}
		default:
			// Unknown attribute: skip silently, same as the reference
			// decoder's generic "skip unrecognized attribute" path.
		}
	}
	return mpReach, mpUnreach
}
