// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharelink_http_requests_total",
			Help: "Total HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sharelink_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// AccessDecisions counts view attempts by outcome
	// (allowed, denied, expired, not_found).
	AccessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharelink_access_decisions_total",
			Help: "Link view attempts by access decision.",
		},
		[]string{"decision"},
	)

	LinksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharelink_links_created_total",
		Help: "Links created.",
	})

	LinksDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharelink_links_deleted_total",
			Help: "Links deleted, by trigger (request, cleanup).",
		},
		[]string{"trigger"},
	)

	PreviewCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharelink_preview_cache_hits_total",
		Help: "Text previews served from the in-memory cache.",
	})

	PreviewCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharelink_preview_cache_misses_total",
		Help: "Text previews fetched from the blob store.",
	})
)
