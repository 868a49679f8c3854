package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoleChecks counts organization role evaluations and their outcome (allow|deny|error).
	RoleChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalforge_role_checks_total",
			Help: "Total number of organization role checks",
		},
		[]string{"result"},
	)

	// MirrorFailures counts best-effort identity-provider mirror operations that failed.
	MirrorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalforge_identity_mirror_failures_total",
			Help: "Total number of failed identity-provider mirror operations",
		},
		[]string{"operation"},
	)

	// UpstreamCalls counts calls to external services by service and result.
	UpstreamCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalforge_upstream_calls_total",
			Help: "Total number of external service calls",
		},
		[]string{"service", "result"},
	)

	// VideoBytesServed totals the number of video bytes proxied to clients.
	VideoBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evalforge_video_bytes_served_total",
			Help: "Total video payload bytes served through the proxy",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evalforge_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
