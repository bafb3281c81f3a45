// Package metrics exposes per-link SRTLA stats as Prometheus gauges.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/srtla-go/sender/link"
)

const namespace = "srtla_sender"

// Collector mirrors the link.Stats snapshots handed to the core's stats
// callback, keyed by virtual IP so a removed link's series disappears
// from the next scrape instead of reporting stale values.
type Collector struct {
	mu    sync.Mutex
	stats map[string]link.Stats

	window      *prometheus.Desc
	inFlight    *prometheus.Desc
	nakCount    *prometheus.Desc
	bytesSent   *prometheus.Desc
	packetsSent *prometheus.Desc
	score       *prometheus.Desc
}

// NewCollector builds a Collector ready to register with a
// prometheus.Registry.
func NewCollector() *Collector {
	labels := []string{"virtual_ip", "transport"}
	return &Collector{
		stats:       make(map[string]link.Stats),
		window:      prometheus.NewDesc(namespace+"_window", "Congestion window, scaled by 1000.", labels, nil),
		inFlight:    prometheus.NewDesc(namespace+"_inflight", "Unresolved SRT sequences on this link.", labels, nil),
		nakCount:    prometheus.NewDesc(namespace+"_nak_total", "Cumulative SRT NAKs resolved on this link.", labels, nil),
		bytesSent:   prometheus.NewDesc(namespace+"_bytes_sent_total", "Cumulative bytes sent on this link.", labels, nil),
		packetsSent: prometheus.NewDesc(namespace+"_packets_sent_total", "Cumulative packets sent on this link.", labels, nil),
		score:       prometheus.NewDesc(namespace+"_score", "Current scheduler score (window / (in_flight+1)).", labels, nil),
	}
}

// Update replaces the recorded stats for s.VirtualIP. Intended as the
// core's stats callback (core.SetStatsCallback(collector.Update)).
func (c *Collector) Update(s link.Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[s.VirtualIP] = s
}

// Forget drops a link's series immediately, used when a link is known
// to be gone (zombie reaped) rather than waiting for the next scrape to
// notice it stopped updating.
func (c *Collector) Forget(virtualIP string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stats, virtualIP)
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.window
	descs <- c.inFlight
	descs <- c.nakCount
	descs <- c.bytesSent
	descs <- c.packetsSent
	descs <- c.score
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for vip, s := range c.stats {
		labels := []string{vip, s.Transport.String()}
		metrics <- prometheus.MustNewConstMetric(c.window, prometheus.GaugeValue, float64(s.Window), labels...)
		metrics <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(s.InFlight), labels...)
		metrics <- prometheus.MustNewConstMetric(c.nakCount, prometheus.CounterValue, float64(s.NakCount), labels...)
		metrics <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(s.BytesSent), labels...)
		metrics <- prometheus.MustNewConstMetric(c.packetsSent, prometheus.CounterValue, float64(s.PacketsSent), labels...)
		metrics <- prometheus.MustNewConstMetric(c.score, prometheus.GaugeValue, s.Score, labels...)
	}
}
