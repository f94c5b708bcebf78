// Package metrics provides application-level metrics collection.
// This is a lightweight metrics foundation using atomic counters, exported to
// Prometheus through Collector.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics holds bridge metrics using atomic counters for thread safety.
type Metrics struct {
	// Page provider metrics
	providerCalls    atomic.Int64
	providerTimeouts atomic.Int64
	providerRejected atomic.Int64
	lateReplies      atomic.Int64

	// Content relay metrics
	relayedTotal        atomic.Int64
	relayFailures       atomic.Int64
	relayLatencyNanos   atomic.Int64
	droppedUnauthorized atomic.Int64
	linksIntercepted    atomic.Int64

	// Broker metrics
	brokerRequests  atomic.Int64
	brokerFailures  atomic.Int64
	brokerUnhandled atomic.Int64
	heartbeats      atomic.Int64
	tabsOpened      atomic.Int64

	// Transport metrics
	rateLimited atomic.Int64
}

// Global is the global metrics instance.
// Use this for recording metrics throughout the application.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = &Metrics{}

// RecordProviderCall records the outcome of a page provider operation.
func (m *Metrics) RecordProviderCall(timedOut bool, err error) {
	m.providerCalls.Add(1)
	if timedOut {
		m.providerTimeouts.Add(1)
		return
	}
	if err != nil {
		m.providerRejected.Add(1)
	}
}

// RecordLateReply records a reply that arrived for an unknown or settled call.
func (m *Metrics) RecordLateReply() {
	m.lateReplies.Add(1)
}

// RecordRelay records a page request forwarded to the broker.
func (m *Metrics) RecordRelay(duration time.Duration, err error) {
	m.relayedTotal.Add(1)
	m.relayLatencyNanos.Add(duration.Nanoseconds())
	if err != nil {
		m.relayFailures.Add(1)
	}
}

// RecordUnauthorized records a page message dropped by the provenance check.
func (m *Metrics) RecordUnauthorized() {
	m.droppedUnauthorized.Add(1)
}

// RecordLinkIntercepted records an intercepted crypto URI click.
func (m *Metrics) RecordLinkIntercepted() {
	m.linksIntercepted.Add(1)
}

// RecordBrokerRequest records a routed broker request.
func (m *Metrics) RecordBrokerRequest(unhandled bool, err error) {
	m.brokerRequests.Add(1)
	if unhandled {
		m.brokerUnhandled.Add(1)
	}
	if err != nil {
		m.brokerFailures.Add(1)
	}
}

// RecordHeartbeat records a keep-alive tick.
func (m *Metrics) RecordHeartbeat() {
	m.heartbeats.Add(1)
}

// RecordTabOpened records a wallet tab being opened or focused.
func (m *Metrics) RecordTabOpened() {
	m.tabsOpened.Add(1)
}

// RecordRateLimited records a message rejected by the rate limiter.
func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Add(1)
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	ProviderCalls       int64
	ProviderTimeouts    int64
	ProviderRejected    int64
	LateReplies         int64
	RelayedTotal        int64
	RelayFailures       int64
	RelayLatencyNanos   int64
	DroppedUnauthorized int64
	LinksIntercepted    int64
	BrokerRequests      int64
	BrokerFailures      int64
	BrokerUnhandled     int64
	Heartbeats          int64
	TabsOpened          int64
	RateLimited         int64
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		ProviderCalls:       m.providerCalls.Load(),
		ProviderTimeouts:    m.providerTimeouts.Load(),
		ProviderRejected:    m.providerRejected.Load(),
		LateReplies:         m.lateReplies.Load(),
		RelayedTotal:        m.relayedTotal.Load(),
		RelayFailures:       m.relayFailures.Load(),
		RelayLatencyNanos:   m.relayLatencyNanos.Load(),
		DroppedUnauthorized: m.droppedUnauthorized.Load(),
		LinksIntercepted:    m.linksIntercepted.Load(),
		BrokerRequests:      m.brokerRequests.Load(),
		BrokerFailures:      m.brokerFailures.Load(),
		BrokerUnhandled:     m.brokerUnhandled.Load(),
		Heartbeats:          m.heartbeats.Load(),
		TabsOpened:          m.tabsOpened.Load(),
		RateLimited:         m.rateLimited.Load(),
	}
}

// RelayLatencyAvgMs returns the average relay round trip in milliseconds.
// Returns 0 if nothing has been relayed.
func (m *Metrics) RelayLatencyAvgMs() float64 {
	n := m.relayedTotal.Load()
	if n == 0 {
		return 0
	}
	return float64(m.relayLatencyNanos.Load()) / float64(n) / 1e6
}

// Reset resets all metrics to zero.
// Useful for testing.
func (m *Metrics) Reset() {
	m.providerCalls.Store(0)
	m.providerTimeouts.Store(0)
	m.providerRejected.Store(0)
	m.lateReplies.Store(0)
	m.relayedTotal.Store(0)
	m.relayFailures.Store(0)
	m.relayLatencyNanos.Store(0)
	m.droppedUnauthorized.Store(0)
	m.linksIntercepted.Store(0)
	m.brokerRequests.Store(0)
	m.brokerFailures.Store(0)
	m.brokerUnhandled.Store(0)
	m.heartbeats.Store(0)
	m.tabsOpened.Store(0)
	m.rateLimited.Store(0)
}
