// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package configaudit

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "luna_config"

// Collector is a prometheus.Collector that collects metrics about the
// configuration audit.
type Collector struct {
	audits   prometheus.Counter
	degraded prometheus.Gauge
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		audits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "audits_total",
			Help:      "The number of configuration audits run.",
		}),
		degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "degraded",
			Help:      "1 while rendered configuration holds invalid values.",
		}),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.audits.Describe(ch)
	c.degraded.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.audits.Collect(ch)
	c.degraded.Collect(ch)
}

func (c *Collector) audited() {
	if c == nil {
		return
	}
	c.audits.Inc()
}

func (c *Collector) setDegraded(degraded bool) {
	if c == nil {
		return
	}
	if degraded {
		c.degraded.Set(1)
	} else {
		c.degraded.Set(0)
	}
}
