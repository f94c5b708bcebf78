package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sigil_bridge"

type counterDesc struct {
	desc  *prometheus.Desc
	value func(Snapshot) float64
}

// Collector exports a Metrics instance in Prometheus format.
type Collector struct {
	m        *Metrics
	counters []counterDesc
	latency  *prometheus.Desc
}

// NewCollector returns a prometheus.Collector reading from m.
func NewCollector(m *Metrics) *Collector {
	c := &Collector{
		m: m,
		latency: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "relay", "latency_avg_ms"),
			"Average relay to broker round trip in milliseconds.",
			nil, nil,
		),
	}

	add := func(subsystem, name, help string, value func(Snapshot) float64) {
		c.counters = append(c.counters, counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, nil),
			value: value,
		})
	}

	add("provider", "calls_total", "Page provider operations started.",
		func(s Snapshot) float64 { return float64(s.ProviderCalls) })
	add("provider", "timeouts_total", "Page provider operations that timed out.",
		func(s Snapshot) float64 { return float64(s.ProviderTimeouts) })
	add("provider", "rejected_total", "Page provider operations rejected by an error reply.",
		func(s Snapshot) float64 { return float64(s.ProviderRejected) })
	add("provider", "late_replies_total", "Replies dropped because their call had already settled.",
		func(s Snapshot) float64 { return float64(s.LateReplies) })
	add("relay", "forwarded_total", "Page requests forwarded to the broker.",
		func(s Snapshot) float64 { return float64(s.RelayedTotal) })
	add("relay", "failures_total", "Page requests the relay could not forward.",
		func(s Snapshot) float64 { return float64(s.RelayFailures) })
	add("relay", "unauthorized_total", "Page messages dropped by the provenance check.",
		func(s Snapshot) float64 { return float64(s.DroppedUnauthorized) })
	add("relay", "links_intercepted_total", "Crypto URI clicks intercepted.",
		func(s Snapshot) float64 { return float64(s.LinksIntercepted) })
	add("broker", "requests_total", "Requests routed by the broker.",
		func(s Snapshot) float64 { return float64(s.BrokerRequests) })
	add("broker", "failures_total", "Broker handlers that failed.",
		func(s Snapshot) float64 { return float64(s.BrokerFailures) })
	add("broker", "unhandled_total", "Requests acknowledged without a handler.",
		func(s Snapshot) float64 { return float64(s.BrokerUnhandled) })
	add("broker", "heartbeats_total", "Keep-alive heartbeats emitted.",
		func(s Snapshot) float64 { return float64(s.Heartbeats) })
	add("broker", "tabs_opened_total", "Wallet tabs opened or focused.",
		func(s Snapshot) float64 { return float64(s.TabsOpened) })
	add("transport", "rate_limited_total", "Messages rejected by the rate limiter.",
		func(s Snapshot) float64 { return float64(s.RateLimited) })

	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.latency
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.m.Snapshot()
	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, cd.value(snap))
	}
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, c.m.RelayLatencyAvgMs())
}
