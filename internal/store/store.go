// Package store owns the connection pool and the thin, parameterized
// CRUD helpers around the peer and event tables. It is not where the
// interesting engineering lives — that is internal/batch and
// internal/migrate.
package store

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TableBMPPeers   = "bmp_peers"
	TablePeerEvents = "peer_events"

	PeerEventUp   = "peer_up"
	PeerEventDown = "peer_down"
)

// macCodec implements pgtype.Codec for the store's native 6-byte MAC
// address column, encoding/decoding the colon-separated hex form used
// throughout internal/route and internal/batch.
type macCodec struct{}

func (macCodec) FormatSupported(format int16) bool { return true }
func (macCodec) PreferredFormat() int16            { return pgtype.BinaryFormatCode }

func (macCodec) PlanEncode(m *pgtype.Map, oid uint32, format int16, value any) pgtype.EncodePlan {
	if _, ok := value.(string); !ok {
		return nil
	}
	return macEncodePlan{}
}

func (macCodec) PlanScan(m *pgtype.Map, oid uint32, format int16, target any) pgtype.ScanPlan {
	if _, ok := target.(*string); !ok {
		return nil
	}
	return macScanPlan{}
}

func (macCodec) DecodeValue(m *pgtype.Map, oid uint32, format int16, src []byte) (any, error) {
	return decodeMAC(src)
}

type macEncodePlan struct{}

func (macEncodePlan) Encode(value any, buf []byte) ([]byte, error) {
	s := value.(string)
	raw, err := encodeMAC(s)
	if err != nil {
		return nil, err
	}
	return append(buf, raw...), nil
}

type macScanPlan struct{}

func (macScanPlan) Scan(src []byte, target any) error {
	s, err := decodeMAC(src)
	if err != nil {
		return err
	}
	*(target.(*string)) = s
	return nil
}

func encodeMAC(s string) ([]byte, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return nil, fmt.Errorf("encoding MAC %q: %w", s, err)
	}
	if len(hw) != 6 {
		return nil, fmt.Errorf("MAC %q is not a 6-byte EUI-48 address", s)
	}
	return []byte(hw), nil
}

func decodeMAC(src []byte) (string, error) {
	if len(src) != 6 {
		return "", fmt.Errorf("MAC column value has %d bytes, expected 6", len(src))
	}
	return net.HardwareAddr(src).String(), nil
}

// NewPool opens a pgxpool sized per min/max and registers the MAC codec
// on every connection, mirroring the teacher's NewPool but adding the
// per-connection type registration the store surface requires.
func NewPool(ctx context.Context, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		conn.TypeMap().RegisterType(&pgtype.Type{
			Name:  "macaddr",
			OID:   829, // well-known OID for the builtin macaddr type
			Codec: macCodec{},
		})
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	return pool.Ping(ctx)
}

// Store wraps a pool with the typed peer/event helpers 4.J specifies.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertBMPPeer inserts a new bmp_peers row or refreshes last_seen (and
// is_active, when set true) for an existing one.
func (s *Store) UpsertBMPPeer(ctx context.Context, peerIP net.IP, isActive bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bmp_peers (peer_ip, first_seen, last_seen, is_active)
		VALUES ($1, now(), now(), $2)
		ON CONFLICT (peer_ip) DO UPDATE SET
			last_seen = now(),
			is_active = CASE WHEN $2 THEN true ELSE bmp_peers.is_active END`,
		peerIP.String(), isActive,
	)
	return err
}

// TouchBMPPeer refreshes last_seen only, called on every received
// message regardless of type.
func (s *Store) TouchBMPPeer(ctx context.Context, peerIP net.IP) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bmp_peers (peer_ip, first_seen, last_seen, is_active)
		VALUES ($1, now(), now(), true)
		ON CONFLICT (peer_ip) DO UPDATE SET last_seen = now()`,
		peerIP.String(),
	)
	return err
}

// MarkPeerInactive sets bmp_peers.is_active=false on PEER_DOWN.
func (s *Store) MarkPeerInactive(ctx context.Context, peerIP net.IP) error {
	_, err := s.pool.Exec(ctx, `UPDATE bmp_peers SET is_active = false, last_seen = now() WHERE peer_ip = $1`,
		peerIP.String())
	return err
}

// InsertPeerEvent appends a peer_up/peer_down row. reasonCode is only
// meaningful for peer_down; pass 0 for peer_up.
func (s *Store) InsertPeerEvent(ctx context.Context, peerIP net.IP, eventType string, reasonCode uint8) error {
	if eventType != PeerEventUp && eventType != PeerEventDown {
		return fmt.Errorf("insert peer event: unknown event type %q", eventType)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO peer_events (peer_ip, event_type, reason_code, event_time)
		VALUES ($1, $2, $3, now())`,
		peerIP.String(), eventType, reasonCode,
	)
	return err
}

// CountRows returns the number of rows in table. Nothing in the
// collector's serving path calls it, and no test in this module does.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	if strings.ContainsAny(table, " ;") {
		return 0, fmt.Errorf("count rows: invalid table name %q", table)
	}
	var n int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", table)).Scan(&n)
	return n, err
}

// IsActive reports bmp_peers.is_active for peerIP. Nothing in the
// collector's serving path calls it, and no test in this module does.
func (s *Store) IsActive(ctx context.Context, peerIP net.IP) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx, `SELECT is_active FROM bmp_peers WHERE peer_ip = $1`, peerIP.String()).Scan(&active)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, fmt.Errorf("peer %s not found", peerIP)
		}
		return false, err
	}
	return active, nil
}
