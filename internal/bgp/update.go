package bgp

import "github.com/bmpcollector/bmpcollectord/internal/binproto"

// ParseUpdate parses a complete BGP message and returns the decoded
// UPDATE body. Non-UPDATE messages (OPEN, KEEPALIVE, NOTIFICATION) are
// not this decoder's concern and return a nil, nil pair so callers can
// skip them without treating it as an error.
func ParseUpdate(data []byte) (*ParsedUpdate, error) {
	if len(data) < BGPHeaderSize {
		return nil, parseErr("message too short for BGP header (%d bytes)", len(data))
	}
	msgType, err := binproto.Uint8(data, 18)
	if err != nil {
		return nil, err
	}
	if msgType != BGPMsgTypeUpdate {
		return nil, nil
	}
	return parseUpdatePayload(data[BGPHeaderSize:])
}

func parseUpdatePayload(data []byte) (*ParsedUpdate, error) {
	if len(data) < 2 {
		return nil, parseErr("update payload too short for withdrawn-routes length")
	}
	off := 0

	withdrawnLen, err := binproto.Uint16(data, off)
	off += 2
	if err != nil {
		return nil, err
	}
	if off+int(withdrawnLen) > len(data) {
		return nil, parseErr("withdrawn-routes length %d exceeds payload", withdrawnLen)
	}
	withdrawn, err := parsePrefixList(data[off:off+int(withdrawnLen)], 4)
	if err != nil {
		return nil, err
	}
	off += int(withdrawnLen)

	if off+2 > len(data) {
		return nil, parseErr("no room for total path attribute length")
	}
	attrLen, err := binproto.Uint16(data, off)
	off += 2
	if err != nil {
		return nil, err
	}
	if off+int(attrLen) > len(data) {
		return nil, parseErr("path attribute length %d exceeds payload", attrLen)
	}

	update := &ParsedUpdate{Withdrawn: withdrawn, AFI: AFIIPv4, SAFI: SAFIUnicast}

	// Per-attribute isolation: a malformed attribute is simply skipped
	// by parseAttributes rather than failing the whole UPDATE,
	// mirroring the reference decoder's catch-and-continue behavior.
	mpReach, mpUnreach := parseAttributes(data[off:off+int(attrLen)], update)
	off += int(attrLen)

	hasMPUnreach := mpUnreach != nil
	if mpReach != nil {
		update.Announced = append(update.Announced, mpReach.nlri...)
		update.NextHop = mpReach.nextHop
		update.AFI = mpReach.afi
		update.SAFI = mpReach.safi
	}
	if mpUnreach != nil {
		update.Withdrawn = append(update.Withdrawn, mpUnreach.nlri...)
		if mpReach == nil {
			update.AFI = mpUnreach.afi
			update.SAFI = mpUnreach.safi
		}
	}

	if off < len(data) {
		v4NLRI, err := parsePrefixList(data[off:], 4)
		if err != nil {
			return nil, err
		}
		update.Announced = append(update.Announced, v4NLRI...)
	}

	update.IsWithdrawal = (len(update.Withdrawn) > 0 || hasMPUnreach) &&
		len(update.Announced) == 0

	return update, nil
}
