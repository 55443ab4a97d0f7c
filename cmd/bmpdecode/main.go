// bmpdecode is a one-off operator tool: it decodes a single raw BMP
// message and prints its structure, for debugging a capture or a
// router's wire format without standing up the full collector.
// Adapted from the teacher's cmd/debug-raw, which decoded OpenBMP-over-
// Kafka frames; this version reads a raw RFC 7854 BMP message directly,
// matching the direct-TCP architecture this collector speaks.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/bmpcollector/bmpcollectord/internal/bgp"
	"github.com/bmpcollector/bmpcollectord/internal/bmp"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: bmpdecode <path-to-raw-bmp-message>\n")
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	msg, err := bmp.Parse(data)
	if err != nil {
		fmt.Printf("bmp.Parse error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("MsgType: %d (%s)\n", msg.MsgType, msgTypeName(msg.MsgType))
	if msg.Peer != nil {
		fmt.Printf("PeerAddress: %s\n", msg.Peer.PeerAddress)
		fmt.Printf("PeerASN: %d\n", msg.Peer.PeerASN)
		fmt.Printf("PeerFlags: 0x%02x (IsIPv6=%v)\n", msg.Peer.Flags, msg.Peer.IsIPv6())
	}

	switch msg.MsgType {
	case bmp.MsgTypeRouteMonitoring:
		fmt.Printf("BGPData: %d bytes\n", len(msg.BGPData))
		if len(msg.BGPData) >= bgp.BGPHeaderSize {
			fmt.Printf("BGP header hex: %s\n", hex.EncodeToString(msg.BGPData[:bgp.BGPHeaderSize]))
		}
		update, err := bgp.ParseUpdate(msg.BGPData)
		if err != nil {
			fmt.Printf("bgp.ParseUpdate error: %v\n", err)
			os.Exit(1)
		}
		if update == nil {
			fmt.Println("Non-UPDATE BGP message (OPEN/KEEPALIVE/NOTIFICATION)")
			break
		}
		fmt.Printf("Withdrawn: %d, Announced: %d, ASPath: %v, NextHop: %s\n",
			len(update.Withdrawn), len(update.Announced), update.ASPath, update.NextHop)
	case bmp.MsgTypePeerUp:
		fmt.Printf("LocalAddress: %s, LocalPort: %d, RemotePort: %d\n", msg.LocalAddress, msg.LocalPort, msg.RemotePort)
	case bmp.MsgTypePeerDown:
		fmt.Printf("ReasonCode: %d\n", msg.ReasonCode)
	case bmp.MsgTypeStatisticsReport:
		fmt.Printf("Stats: %d entries\n", len(msg.Stats))
	}
}

func msgTypeName(t uint8) string {
	switch t {
	case bmp.MsgTypeRouteMonitoring:
		return "RouteMonitoring"
	case bmp.MsgTypeStatisticsReport:
		return "StatisticsReport"
	case bmp.MsgTypePeerDown:
		return "PeerDown"
	case bmp.MsgTypePeerUp:
		return "PeerUp"
	case bmp.MsgTypeInitiation:
		return "Initiation"
	case bmp.MsgTypeTermination:
		return "Termination"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}
