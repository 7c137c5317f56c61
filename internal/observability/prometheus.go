package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncCollector exports the sync engine state on every scrape.
// It reads through the same gauges callback used by the OTel instruments.
type SyncCollector struct {
	gauges  SyncGauges
	pending *prometheus.Desc
	online  *prometheus.Desc
	syncing *prometheus.Desc
}

// NewSyncCollector creates a collector backed by gauges
func NewSyncCollector(gauges SyncGauges) *SyncCollector {
	return &SyncCollector{
		gauges: gauges,
		pending: prometheus.NewDesc("fonosync_queue_pending_operations",
			"Operations waiting to be replayed against the remote service.", nil, nil),
		online: prometheus.NewDesc("fonosync_online",
			"1 when the remote service is reachable.", nil, nil),
		syncing: prometheus.NewDesc("fonosync_syncing",
			"1 while the offline queue is being drained.", nil, nil),
	}
}

// Describe implements prometheus.Collector
func (c *SyncCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pending
	ch <- c.online
	ch <- c.syncing
}

// Collect implements prometheus.Collector
func (c *SyncCollector) Collect(ch chan<- prometheus.Metric) {
	pending, online, syncing := c.gauges()
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(pending))
	ch <- prometheus.MustNewConstMetric(c.online, prometheus.GaugeValue, float64(boolToInt(online)))
	ch <- prometheus.MustNewConstMetric(c.syncing, prometheus.GaugeValue, float64(boolToInt(syncing)))
}

// NewMetricsRegistry returns a registry with the sync collector and the Go runtime collectors
func NewMetricsRegistry(gauges SyncGauges) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewSyncCollector(gauges)); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	return reg, nil
}

// MetricsHandler serves reg in the Prometheus text format
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
