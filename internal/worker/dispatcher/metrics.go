// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "luna_dispatcher"

// Collector is a prometheus.Collector that collects metrics about the
// lane drainers.
type Collector struct {
	tasks          *prometheus.CounterVec
	drainerStarts  *prometheus.CounterVec
	activeDrainers prometheus.Gauge
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		tasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tasks_total",
				Help:      "The number of tasks executed by lane and outcome.",
			}, []string{"lane", "outcome"},
		),
		drainerStarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "drainer_starts_total",
				Help:      "The number of drainers started by lane.",
			}, []string{"lane"},
		),
		activeDrainers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "active_drainers",
				Help:      "The number of lanes currently being drained.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.tasks.Describe(ch)
	c.drainerStarts.Describe(ch)
	c.activeDrainers.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.tasks.Collect(ch)
	c.drainerStarts.Collect(ch)
	c.activeDrainers.Collect(ch)
}

func (c *Collector) taskDone(lane, outcome string) {
	if c == nil {
		return
	}
	c.tasks.WithLabelValues(lane, outcome).Inc()
}

func (c *Collector) drainerStarted(lane string) {
	if c == nil {
		return
	}
	c.drainerStarts.WithLabelValues(lane).Inc()
	c.activeDrainers.Inc()
}

func (c *Collector) drainerStopped() {
	if c == nil {
		return
	}
	c.activeDrainers.Dec()
}
