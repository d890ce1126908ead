package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sarchlab/nssim/nix"
)

// NixCollector reports the cache statistics of a Nix-vector routing domain
// at scrape time.
type NixCollector struct {
	domain *nix.Domain

	lookups *prometheus.Desc
	flushes *prometheus.Desc
	noRoute *prometheus.Desc
	epoch   *prometheus.Desc
}

// NewNixCollector creates a collector for d. Register it with a registry to
// expose it.
func NewNixCollector(d *nix.Domain) *NixCollector {
	return &NixCollector{
		domain: d,
		lookups: prometheus.NewDesc(
			"nssim_nix_cache_lookups_total",
			"Cache lookups, by cache and result.",
			[]string{"cache", "result"}, nil),
		flushes: prometheus.NewDesc(
			"nssim_nix_cache_flushes_total",
			"Cache flushes caused by topology changes, summed over nodes.",
			nil, nil),
		noRoute: prometheus.NewDesc(
			"nssim_nix_no_route_total",
			"Packets that could not be routed from their source.",
			nil, nil),
		epoch: prometheus.NewDesc(
			"nssim_nix_topology_epoch",
			"Number of topology changes taken into account.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *NixCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lookups
	ch <- c.flushes
	ch <- c.noRoute
	ch <- c.epoch
}

// Collect implements prometheus.Collector.
func (c *NixCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.domain.Stats()

	counter := func(desc *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}

	counter(c.lookups, s.NixHits, "nix", "hit")
	counter(c.lookups, s.NixMisses, "nix", "miss")
	counter(c.lookups, s.RouteHits, "route", "hit")
	counter(c.lookups, s.RouteMisses, "route", "miss")
	counter(c.flushes, s.Flushes)
	counter(c.noRoute, s.NoRoute)

	ch <- prometheus.MustNewConstMetric(c.epoch, prometheus.GaugeValue,
		float64(c.domain.Epoch()))
}
