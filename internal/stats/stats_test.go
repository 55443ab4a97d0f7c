package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestIncReceivedAndProcessed(t *testing.T) {
	c := New(zap.NewNop(), time.Second)
	c.IncReceived("192.0.2.1")
	c.IncProcessed("192.0.2.1", "ipv4_unicast")

	snap := c.Snapshot("192.0.2.1")
	assert.Equal(t, uint64(1), snap.Received)
	assert.Equal(t, uint64(1), snap.Processed)
	assert.Equal(t, uint64(1), snap.IPv4)
}

func TestRollupSkipsInactivePeers(t *testing.T) {
	c := New(zap.NewNop(), time.Second)
	c.peer("192.0.2.1") // zero-activity peer present but untouched

	c.rollupOnce()

	snap := c.Snapshot("192.0.2.1")
	assert.Equal(t, uint64(0), snap.Received)
	_, stillPresent := c.peers["192.0.2.1"]
	assert.True(t, stillPresent, "inactive peer must not be removed by rollup")
}

func TestRollupResetsActivePeerAfterEmit(t *testing.T) {
	c := New(zap.NewNop(), time.Second)
	c.IncReceived("192.0.2.2")
	c.IncProcessed("192.0.2.2", "evpn")

	c.rollupOnce()

	snap := c.Snapshot("192.0.2.2")
	assert.Equal(t, uint64(0), snap.Received)
	assert.Equal(t, uint64(0), snap.Processed)
	assert.Equal(t, uint64(0), snap.EVPN)
}

func TestRemoveDropsPeer(t *testing.T) {
	c := New(zap.NewNop(), time.Second)
	c.IncReceived("192.0.2.3")
	c.Remove("192.0.2.3")

	_, present := c.peers["192.0.2.3"]
	assert.False(t, present)
}

func TestIncErrorsMarksPeerActive(t *testing.T) {
	c := New(zap.NewNop(), time.Second)
	c.IncErrors("192.0.2.4")
	snap := c.Snapshot("192.0.2.4")
	assert.True(t, snap.isActive())
}
