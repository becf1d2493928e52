// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package tablehash

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector is a prometheus.Collector for table repairs.
type Collector struct {
	repairs *prometheus.CounterVec
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		repairs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "luna_tablehash",
				Name:      "repairs_total",
				Help:      "The number of tracked tables replaced from a peer.",
			}, []string{"table"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.repairs.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.repairs.Collect(ch)
}

func (c *Collector) repaired(table string) {
	if c == nil {
		return
	}
	c.repairs.WithLabelValues(table).Inc()
}
