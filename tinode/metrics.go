package tinode

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects client statistics. It implements prometheus.Collector.
type Metrics struct {
	client *Client

	framesIn    atomic.Int64
	framesOut   atomic.Int64
	malformed   atomic.Int64
	disconnects atomic.Int64

	connected     *prometheus.Desc
	authenticated *prometheus.Desc
	in            *prometheus.Desc
	out           *prometheus.Desc
	bad           *prometheus.Desc
	dropped       *prometheus.Desc
	pending       *prometheus.Desc
	reconnects    *prometheus.Desc
	topics        *prometheus.Desc
	attached      *prometheus.Desc
}

func newMetrics(c *Client, namespace string) *Metrics {
	return &Metrics{
		client: c,
		connected: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "connected"),
			"If the client is connected to the server.",
			nil,
			nil,
		),
		authenticated: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "authenticated"),
			"If the session is authenticated.",
			nil,
			nil,
		),
		in: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "frames_received_total"),
			"Total number of frames received from the server.",
			nil,
			nil,
		),
		out: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "frames_sent_total"),
			"Total number of frames sent to the server.",
			nil,
			nil,
		),
		bad: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "frames_malformed_total"),
			"Total number of received frames which could not be parsed.",
			nil,
			nil,
		),
		dropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "disconnects_total"),
			"Total number of times the connection was lost.",
			nil,
			nil,
		),
		pending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_pending_count"),
			"Number of requests waiting for a response.",
			nil,
			nil,
		),
		reconnects: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "reconnect_attempts"),
			"Number of failed connection attempts since the last successful one.",
			nil,
			nil,
		),
		topics: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "topics_count"),
			"Number of topics known to the client.",
			nil,
			nil,
		),
		attached: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "topics_attached_count"),
			"Number of topics the client is subscribed to.",
			nil,
			nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.connected
	ch <- m.authenticated
	ch <- m.in
	ch <- m.out
	ch <- m.bad
	ch <- m.dropped
	ch <- m.pending
	ch <- m.reconnects
	ch <- m.topics
	ch <- m.attached
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	c := m.client

	ch <- prometheus.MustNewConstMetric(m.connected, prometheus.GaugeValue, boolToFloat(c.IsConnected()))
	ch <- prometheus.MustNewConstMetric(m.authenticated, prometheus.GaugeValue, boolToFloat(c.IsAuthenticated()))
	ch <- prometheus.MustNewConstMetric(m.in, prometheus.CounterValue, float64(m.framesIn.Load()))
	ch <- prometheus.MustNewConstMetric(m.out, prometheus.CounterValue, float64(m.framesOut.Load()))
	ch <- prometheus.MustNewConstMetric(m.bad, prometheus.CounterValue, float64(m.malformed.Load()))
	ch <- prometheus.MustNewConstMetric(m.dropped, prometheus.CounterValue, float64(m.disconnects.Load()))
	ch <- prometheus.MustNewConstMetric(m.pending, prometheus.GaugeValue, float64(c.pendingCount()))
	ch <- prometheus.MustNewConstMetric(m.reconnects, prometheus.GaugeValue, float64(c.conn.ReconnectAttempts()))

	var total, attached int
	c.topics.Range(func(_, v any) bool {
		total++
		if v.(*Topic).IsAttached() {
			attached++
		}
		return true
	})
	ch <- prometheus.MustNewConstMetric(m.topics, prometheus.GaugeValue, float64(total))
	ch <- prometheus.MustNewConstMetric(m.attached, prometheus.GaugeValue, float64(attached))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
