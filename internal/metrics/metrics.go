// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes the daemon's internal counters on an optional
// Prometheus HTTP listener. Nothing in the request path blocks on this —
// collection is register-once, increment-in-place.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the daemon's metric collectors behind one struct so
// callers don't thread individual prometheus.Collector values around.
type Registry struct {
	reg *prometheus.Registry

	RequestsTotal  *prometheus.CounterVec
	SearchDuration prometheus.Histogram
	QueueDepth     prometheus.Gauge
	ActiveTenants  prometheus.Gauge
	MappedFiles    prometheus.Gauge
	MappedBytes    prometheus.Gauge
}

// New constructs a Registry with all daemon collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memsearchd_requests_total",
			Help: "Requests handled, partitioned by request type and outcome.",
		}, []string{"type", "status"}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "memsearchd_search_duration_seconds",
			Help:    "Wall-clock time spent executing a search request.",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memsearchd_queue_depth",
			Help: "Current number of requests waiting in the worker queue.",
		}),
		ActiveTenants: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memsearchd_active_tenants",
			Help: "Number of currently allocated tenants.",
		}),
		MappedFiles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memsearchd_mapped_files",
			Help: "Total number of memory-mapped files across all active tenants.",
		}),
		MappedBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memsearchd_mapped_bytes",
			Help: "Total bytes memory-mapped across all active tenants.",
		}),
	}
}

// Handler returns the HTTP handler to mount at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveSearch records the duration of one completed search request.
func (r *Registry) ObserveSearch(d time.Duration) {
	r.SearchDuration.Observe(d.Seconds())
}

// IncRequest increments the request counter for one completed request,
// satisfying pkg/ipc.Metrics.
func (r *Registry) IncRequest(requestType, status string) {
	r.RequestsTotal.WithLabelValues(requestType, status).Inc()
}

// SetQueueDepth reports the current worker queue depth.
func (r *Registry) SetQueueDepth(n int) {
	r.QueueDepth.Set(float64(n))
}

// SetActiveTenants reports the current tenant table size.
func (r *Registry) SetActiveTenants(n int) {
	r.ActiveTenants.Set(float64(n))
}

// SetMappedFiles reports the aggregate mapped file count across all
// active tenants.
func (r *Registry) SetMappedFiles(n int) {
	r.MappedFiles.Set(float64(n))
}

// SetMappedBytes reports the aggregate mapped byte count across all
// active tenants.
func (r *Registry) SetMappedBytes(n int64) {
	r.MappedBytes.Set(float64(n))
}
