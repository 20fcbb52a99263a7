// # internal/observability/metrics.go
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "blockscope_parse_seconds",
		Help:    "Time spent parsing a source file.",
		Buckets: prometheus.DefBuckets,
	})

	CheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "blockscope_check_seconds",
		Help:    "Time spent scope-checking a source file.",
		Buckets: prometheus.DefBuckets,
	})

	FilesChecked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blockscope_files_checked_total",
		Help: "Total number of files the checker has processed.",
	})

	FilesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blockscope_files_failed_total",
		Help: "Total number of files that could not be parsed or checked.",
	})

	DiagnosticsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blockscope_diagnostics_total",
		Help: "Total number of scoping diagnostics reported.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blockscope_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})
)
