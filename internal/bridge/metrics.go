package bridge

import (
	"sync/atomic"
	"time"
)

// metrics holds the bridge's runtime counters and gauges.
//
// Counters only ever increase (until ResetMetrics); gauges are
// overwritten by each sample. Everything is atomic so the hot paths
// never take a lock to count.
type metrics struct {
	messagesSent        atomic.Uint64
	messagesReceived    atomic.Uint64
	connectionFailures  atomic.Uint64
	sensorReadErrors    atomic.Uint64
	actuatorErrors      atomic.Uint64
	commandsDropped     atomic.Uint64
	commandsProcessed   atomic.Uint64
	linkReconnects      atomic.Uint64
	transportReconnects atomic.Uint64

	// Gauges.
	freeMemory atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the bridge metrics.
type MetricsSnapshot struct {
	MessagesSent        uint64 `json:"messages_sent"`
	MessagesReceived    uint64 `json:"messages_received"`
	ConnectionFailures  uint64 `json:"connection_failures"`
	SensorReadErrors    uint64 `json:"sensor_read_errors"`
	ActuatorErrors      uint64 `json:"actuator_errors"`
	CommandsDropped     uint64 `json:"commands_dropped"`
	CommandsProcessed   uint64 `json:"commands_processed"`
	LinkReconnects      uint64 `json:"link_reconnects"`
	TransportReconnects uint64 `json:"transport_reconnects"`

	FreeMemory uint64 `json:"free_memory"`
	Uptime     int64  `json:"uptime"`
}

// snapshot copies the current counter and gauge values.
func (m *metrics) snapshot(uptime time.Duration) MetricsSnapshot {
	return MetricsSnapshot{
		MessagesSent:        m.messagesSent.Load(),
		MessagesReceived:    m.messagesReceived.Load(),
		ConnectionFailures:  m.connectionFailures.Load(),
		SensorReadErrors:    m.sensorReadErrors.Load(),
		ActuatorErrors:      m.actuatorErrors.Load(),
		CommandsDropped:     m.commandsDropped.Load(),
		CommandsProcessed:   m.commandsProcessed.Load(),
		LinkReconnects:      m.linkReconnects.Load(),
		TransportReconnects: m.transportReconnects.Load(),
		FreeMemory:          m.freeMemory.Load(),
		Uptime:              int64(uptime.Seconds()),
	}
}

// reset zeroes the counters. Gauges keep their last sampled value and
// uptime is untouched; both describe the present, not history.
func (m *metrics) reset() {
	m.messagesSent.Store(0)
	m.messagesReceived.Store(0)
	m.connectionFailures.Store(0)
	m.sensorReadErrors.Store(0)
	m.actuatorErrors.Store(0)
	m.commandsDropped.Store(0)
	m.commandsProcessed.Store(0)
	m.linkReconnects.Store(0)
	m.transportReconnects.Store(0)
}

// Metrics returns a snapshot of the current counters and gauges.
func (b *Bridge) Metrics() MetricsSnapshot {
	return b.metrics.snapshot(b.uptime())
}

// ResetMetrics zeroes all counters. Gauges are left alone.
func (b *Bridge) ResetMetrics() {
	b.metrics.reset()
}
