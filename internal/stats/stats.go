// Package stats holds the in-memory per-BMP-peer counters and the
// periodic rollup that logs and resets them, per the zero-activity
// skip rule: a peer with no received/processed messages and no errors
// in a window is neither logged nor reset.
package stats

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bmpcollector/bmpcollectord/internal/metrics"
)

// PeerCounters tracks one BMP peer's activity within the current
// rollup window.
type PeerCounters struct {
	Received   uint64
	Processed  uint64
	IPv4       uint64
	IPv6       uint64
	EVPN       uint64
	Errors     uint64
	LastUpdate time.Time
}

func (c *PeerCounters) isActive() bool {
	return c.Received != 0 || c.Processed != 0 || c.Errors != 0
}

// Collector is the shared-resource-policy-compliant stats map: mutated
// from every session under one lock, read by the rollup task under the
// same lock.
type Collector struct {
	mu     sync.Mutex
	peers  map[string]*PeerCounters
	logger *zap.Logger
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(logger *zap.Logger, rollupInterval time.Duration) *Collector {
	return &Collector{
		peers:    make(map[string]*PeerCounters),
		logger:   logger,
		interval: rollupInterval,
	}
}

func (c *Collector) peer(peerIP string) *PeerCounters {
	p, ok := c.peers[peerIP]
	if !ok {
		p = &PeerCounters{}
		c.peers[peerIP] = p
	}
	return p
}

// IncReceived records one message received from peerIP, before
// dispatch, per spec: every message, regardless of type.
func (c *Collector) IncReceived(peerIP string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.peer(peerIP)
	p.Received++
	p.LastUpdate = time.Now()
}

// IncProcessed records one route (one projected RouteUpdate handed to
// the batch writer) for the given family.
func (c *Collector) IncProcessed(peerIP, family string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.peer(peerIP)
	p.Processed++
	switch family {
	case "ipv4_unicast":
		p.IPv4++
	case "ipv6_unicast":
		p.IPv6++
	case "evpn":
		p.EVPN++
	}
	p.LastUpdate = time.Now()
	metrics.RoutesReceivedTotal.WithLabelValues(peerIP, family).Inc()
}

// IncErrors records one parse failure attributed to peerIP.
func (c *Collector) IncErrors(peerIP string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peer(peerIP).Errors++
}

// Remove drops peerIP's counters on session disconnect.
func (c *Collector) Remove(peerIP string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.peers, peerIP)
}

// Start launches the background rollup ticker.
func (c *Collector) Start() {
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})

	go func() {
		defer close(c.doneCh)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.rollupOnce()
			}
		}
	}()
}

func (c *Collector) Stop() {
	if c.stopCh != nil {
		close(c.stopCh)
		<-c.doneCh
	}
}

// rollupOnce emits one log record per peer with nonzero activity and
// resets that peer's counters; peers with zero activity are skipped
// entirely — neither logged nor reset.
func (c *Collector) rollupOnce() {
	c.mu.Lock()
	defer c.mu.Unlock()

	intervalSeconds := c.interval.Seconds()
	for peerIP, p := range c.peers {
		if !p.isActive() {
			continue
		}

		throughput := float64(p.Processed) / intervalSeconds
		c.logger.Info("bmp peer activity",
			zap.String("bmp_peer", peerIP),
			zap.Uint64("received", p.Received),
			zap.Uint64("processed", p.Processed),
			zap.Uint64("ipv4", p.IPv4),
			zap.Uint64("ipv6", p.IPv6),
			zap.Uint64("evpn", p.EVPN),
			zap.Uint64("errors", p.Errors),
			zap.Float64("throughput_per_sec", throughput),
		)

		*p = PeerCounters{LastUpdate: p.LastUpdate}
	}
}

// Snapshot returns a copy of one peer's counters, for tests.
func (c *Collector) Snapshot(peerIP string) PeerCounters {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.peers[peerIP]; ok {
		return *p
	}
	return PeerCounters{}
}
