package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var registerOnce sync.Once

var (
	BMPMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bmpcollectord_bmp_messages_total",
			Help: "Total BMP messages received, by peer and message type.",
		},
		[]string{"bmp_peer", "msg_type"},
	)

	DBWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bmpcollectord_db_write_duration_seconds",
			Help:    "DB write latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	DBRowsAffectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bmpcollectord_db_rows_affected_total",
			Help: "DB rows written via batch COPY or stored-procedure calls.",
		},
		[]string{"table", "op"},
	)

	ParseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bmpcollectord_parse_errors_total",
			Help: "Parse failures by protocol layer.",
		},
		[]string{"stage", "reason"},
	)

	RoutesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bmpcollectord_routes_received_total",
			Help: "Routes received per BMP peer and family, before batching.",
		},
		[]string{"bmp_peer", "family"},
	)

	BatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bmpcollectord_batch_size",
			Help:    "Batch sizes flushed to the database.",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2000, 5000},
		},
		[]string{"table"},
	)

	ActiveBMPSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bmpcollectord_active_bmp_sessions",
			Help: "Currently connected BMP peer sessions.",
		},
	)

	PeerUpDownTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bmpcollectord_peer_updown_total",
			Help: "PEER_UP_NOTIFICATION / PEER_DOWN_NOTIFICATION events by peer and direction.",
		},
		[]string{"bmp_peer", "direction"},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			BMPMessagesTotal,
			DBWriteDuration,
			DBRowsAffectedTotal,
			ParseErrorsTotal,
			RoutesReceivedTotal,
			BatchSize,
			ActiveBMPSessions,
			PeerUpDownTotal,
		)
	})
}
