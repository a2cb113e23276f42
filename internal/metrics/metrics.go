// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Derivations counts artifact productions by kind and result.
	Derivations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filmstrip_derivations_total",
		Help: "Artifact derivations by kind (frame, sprite, vtt, chapters, clip) and result (ok, error).",
	}, []string{"kind", "result"})

	// CacheLookups counts artifact cache probes by kind and outcome.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filmstrip_cache_lookups_total",
		Help: "Artifact cache lookups by kind and outcome (hit, miss).",
	}, []string{"kind", "outcome"})

	// CoalescedWaiters counts requests served from another request's work.
	CoalescedWaiters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filmstrip_coalesced_waiters_total",
		Help: "Requests that piggybacked on an in-flight derivation, by kind.",
	}, []string{"kind"})

	// SweepDeletions counts cache files removed by the TTL sweepers.
	SweepDeletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filmstrip_cache_sweep_deleted_total",
		Help: "Files removed by cache eviction sweeps, per cache root.",
	}, []string{"root"})

	// ScanRuns counts completed library scans by result.
	ScanRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filmstrip_library_scans_total",
		Help: "Library scan runs by result (ok, error, dropped).",
	}, []string{"result"})

	// ScanDuration observes how long full library scans take.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "filmstrip_library_scan_seconds",
		Help:    "Duration of full library scans.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

// RegisterFFmpegPool exposes the current ffmpeg subprocess count as a gauge.
// Called once from main with a closure over the runner.
func RegisterFFmpegPool(inUse func() float64) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "filmstrip_ffmpeg_in_use",
		Help: "Currently running ffmpeg/ffprobe subprocesses.",
	}, inUse)
}
