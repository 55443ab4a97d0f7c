// Package session implements one Handler per accepted BMP TCP
// connection: framed reads, per-message dispatch, peer bookkeeping, and
// error isolation, per spec.md §4.F. It replaces the teacher's
// Kafka-driven state.Pipeline/history.Pipeline dispatch loop with a
// framed-socket read loop, keeping the same per-message action table.
package session

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/bmpcollector/bmpcollectord/internal/batch"
	"github.com/bmpcollector/bmpcollectord/internal/bgp"
	"github.com/bmpcollector/bmpcollectord/internal/bmp"
	"github.com/bmpcollector/bmpcollectord/internal/metrics"
	"github.com/bmpcollector/bmpcollectord/internal/route"
	"github.com/bmpcollector/bmpcollectord/internal/stats"
	"github.com/bmpcollector/bmpcollectord/internal/store"
)

// ErrorReporter is an optional construction-injected sink for parser
// errors, nil-safe at the call site. It exists so a deployment can wire
// up an external error-tracking service without this package depending
// on any particular vendor SDK.
type ErrorReporter interface {
	ReportParseError(peerIP string, err error)
}

// Handler owns one accepted net.Conn for its lifetime: reads framed BMP
// messages until the peer closes or a framing error occurs.
type Handler struct {
	conn   net.Conn
	store  *store.Store
	writer *batch.Writer
	stats  *stats.Collector
	logger *zap.Logger

	errorReporter   ErrorReporter
	readTimeout     time.Duration
	maxMessageBytes int

	storeRawPDUs bool
}

// NewHandler builds a Handler for one accepted connection.
func NewHandler(conn net.Conn, st *store.Store, writer *batch.Writer, collector *stats.Collector, logger *zap.Logger, reporter ErrorReporter, readTimeout time.Duration, maxMessageBytes int, storeRawPDUs bool) *Handler {
	return &Handler{
		conn:            conn,
		store:           st,
		writer:          writer,
		stats:           collector,
		logger:          logger,
		errorReporter:   reporter,
		readTimeout:     readTimeout,
		maxMessageBytes: maxMessageBytes,
		storeRawPDUs:    storeRawPDUs,
	}
}

// Serve reads and dispatches frames until the connection closes or a
// framing error occurs, then closes the socket. Start-time is recorded
// on entry and elapsed session duration logged on any termination path.
func (h *Handler) Serve(ctx context.Context) {
	start := time.Now()
	peerIP, _, err := net.SplitHostPort(h.conn.RemoteAddr().String())
	if err != nil {
		peerIP = h.conn.RemoteAddr().String()
	}

	metrics.ActiveBMPSessions.Inc()
	defer metrics.ActiveBMPSessions.Dec()
	defer h.stats.Remove(peerIP)
	defer h.conn.Close()

	h.logger.Info("bmp session started", zap.String("bmp_peer", peerIP))

	for {
		if err := h.readOne(ctx, peerIP); err != nil {
			if errors.Is(err, io.EOF) {
				h.logger.Info("bmp session closed by peer",
					zap.String("bmp_peer", peerIP),
					zap.Duration("duration", time.Since(start)))
			} else {
				h.logger.Warn("bmp session terminated",
					zap.String("bmp_peer", peerIP),
					zap.Duration("duration", time.Since(start)),
					zap.Error(err))
			}
			return
		}
	}
}

// readOne reads exactly one framed BMP message and dispatches it.
// Short reads and connection errors are returned unwrapped so the
// caller terminates the session; parser errors on an otherwise
// well-framed message are handled internally (logged, counted,
// optionally reported) and never returned.
func (h *Handler) readOne(ctx context.Context, peerIP string) error {
	if h.readTimeout > 0 {
		if err := h.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
			return err
		}
	}

	hdr := make([]byte, bmp.CommonHeaderSize)
	if _, err := io.ReadFull(h.conn, hdr); err != nil {
		return err
	}
	common, err := bmp.ParseCommonHeader(hdr)
	if err != nil {
		// A bad version or unknown msg_type is a per-message parse
		// error, not a framing failure: the declared length is still
		// usable, so skip the rest of this frame's body and resume
		// reading the next one instead of tearing down the session.
		bodyLen := int(common.Length) - bmp.CommonHeaderSize
		if bodyLen < 0 || bodyLen > h.maxMessageBytes {
			return err
		}
		h.stats.IncErrors(peerIP)
		metrics.ParseErrorsTotal.WithLabelValues("bmp", "header").Inc()
		h.reportParseError("bmp", peerIP, err)
		h.logger.Error("bmp_header_parse_error", zap.String("bmp_peer", peerIP), zap.Error(err))
		if bodyLen > 0 {
			if _, err := io.CopyN(io.Discard, h.conn, int64(bodyLen)); err != nil {
				return err
			}
		}
		return nil
	}

	bodyLen := int(common.Length) - bmp.CommonHeaderSize
	if bodyLen < 0 || bodyLen > h.maxMessageBytes {
		return errors.New("session: declared message length out of bounds")
	}
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(h.conn, body); err != nil {
			return err
		}
	}

	full := append(hdr, body...)

	h.stats.IncReceived(peerIP)
	if err := h.store.TouchBMPPeer(ctx, net.ParseIP(peerIP)); err != nil {
		h.logger.Warn("touch_bmp_peer_failed", zap.String("bmp_peer", peerIP), zap.Error(err))
	}
	metrics.BMPMessagesTotal.WithLabelValues(peerIP, msgTypeLabel(common.MsgType)).Inc()

	msg, err := bmp.Parse(full)
	if err != nil {
		h.stats.IncErrors(peerIP)
		metrics.ParseErrorsTotal.WithLabelValues("bmp", "decode").Inc()
		h.reportParseError("bmp", peerIP, err)
		h.logger.Error("bmp_parse_error", zap.String("bmp_peer", peerIP), zap.Error(err))
		return nil
	}

	h.dispatch(ctx, peerIP, msg, body)
	return nil
}

func (h *Handler) dispatch(ctx context.Context, peerIP string, msg *bmp.Message, rawBody []byte) {
	switch msg.MsgType {
	case bmp.MsgTypeRouteMonitoring:
		h.handleRouteMonitoring(ctx, peerIP, msg, rawBody)
	case bmp.MsgTypePeerUp:
		h.handlePeerUp(ctx, peerIP)
	case bmp.MsgTypePeerDown:
		h.handlePeerDown(ctx, peerIP, msg)
	case bmp.MsgTypeInitiation, bmp.MsgTypeTermination, bmp.MsgTypeStatisticsReport:
		h.logger.Debug("bmp message ignored by design",
			zap.String("bmp_peer", peerIP), zap.Uint8("msg_type", msg.MsgType))
	default:
		h.logger.Debug("bmp message type not dispatched",
			zap.String("bmp_peer", peerIP), zap.Uint8("msg_type", msg.MsgType))
	}
}

func (h *Handler) handleRouteMonitoring(ctx context.Context, peerIP string, msg *bmp.Message, rawBody []byte) {
	update, err := bgp.ParseUpdate(msg.BGPData)
	if err != nil {
		h.stats.IncErrors(peerIP)
		metrics.ParseErrorsTotal.WithLabelValues("bgp", "decode").Inc()
		h.reportParseError("bgp", peerIP, err)
		h.logger.Error("bgp_parse_error", zap.String("bmp_peer", peerIP), zap.Error(err))
		return
	}
	if update == nil {
		// Non-UPDATE BGP message wrapped in route monitoring (e.g. a
		// keepalive-only PDU) — nothing to project.
		return
	}

	bmpPeer := route.PeerIdentity{IP: net.ParseIP(peerIP)}
	bgpPeer := route.PeerIdentity{IP: msg.Peer.PeerAddress, ASN: msg.Peer.PeerASN}
	rows := route.Project(update, bmpPeer, bgpPeer, time.Now())

	var raw []byte
	if h.storeRawPDUs {
		raw = rawBody
	}
	for _, r := range rows {
		if err := h.writer.Add(ctx, r, raw); err != nil {
			h.logger.Error("batch_add_failed", zap.String("bmp_peer", peerIP), zap.Error(err))
			continue
		}
		h.stats.IncProcessed(peerIP, r.Family)
	}
}

func (h *Handler) handlePeerUp(ctx context.Context, peerIP string) {
	if err := h.store.UpsertBMPPeer(ctx, net.ParseIP(peerIP), true); err != nil {
		h.logger.Error("upsert_bmp_peer_failed", zap.String("bmp_peer", peerIP), zap.Error(err))
		return
	}
	if err := h.store.InsertPeerEvent(ctx, net.ParseIP(peerIP), store.PeerEventUp, 0); err != nil {
		h.logger.Error("insert_peer_event_failed", zap.String("bmp_peer", peerIP), zap.Error(err))
	}
	metrics.PeerUpDownTotal.WithLabelValues(peerIP, "up").Inc()
}

func (h *Handler) handlePeerDown(ctx context.Context, peerIP string, msg *bmp.Message) {
	if err := h.store.MarkPeerInactive(ctx, net.ParseIP(peerIP)); err != nil {
		h.logger.Error("mark_peer_inactive_failed", zap.String("bmp_peer", peerIP), zap.Error(err))
		return
	}
	if err := h.store.InsertPeerEvent(ctx, net.ParseIP(peerIP), store.PeerEventDown, msg.ReasonCode); err != nil {
		h.logger.Error("insert_peer_event_failed", zap.String("bmp_peer", peerIP), zap.Error(err))
	}
	metrics.PeerUpDownTotal.WithLabelValues(peerIP, "down").Inc()
}

func (h *Handler) reportParseError(stage, peerIP string, err error) {
	if h.errorReporter != nil {
		h.errorReporter.ReportParseError(peerIP, err)
	}
	_ = stage
}

func msgTypeLabel(t uint8) string {
	switch t {
	case bmp.MsgTypeRouteMonitoring:
		return "route_monitoring"
	case bmp.MsgTypeStatisticsReport:
		return "statistics_report"
	case bmp.MsgTypePeerDown:
		return "peer_down"
	case bmp.MsgTypePeerUp:
		return "peer_up"
	case bmp.MsgTypeInitiation:
		return "initiation"
	case bmp.MsgTypeTermination:
		return "termination"
	case bmp.MsgTypeRouteMirroring:
		return "route_mirroring"
	default:
		return "unknown"
	}
}
