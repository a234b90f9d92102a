// Package telemetry exposes Prometheus metrics for the release cache.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "release_cache"

// Metrics holds the Prometheus instruments for the engine and the fetcher.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	metadataMemoHits   prometheus.Counter
	metadataStoreHits  prometheus.Counter
	metadataFetches    prometheus.Counter
	metadataFetchFails prometheus.Counter

	downloadCacheHits prometheus.Counter
	staleCacheReuse   prometheus.Counter
	downloads         *prometheus.CounterVec
}

// New creates the metric instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		metadataMemoHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_memo_hits_total",
			Help:      "Metadata lookups answered from the in-process memo.",
		}),
		metadataStoreHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_store_hits_total",
			Help:      "Metadata lookups answered from the persistent cache.",
		}),
		metadataFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_fetches_total",
			Help:      "Metadata constructions performed by the provider.",
		}),
		metadataFetchFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_fetch_failures_total",
			Help:      "Metadata constructions that failed or produced invalid metadata.",
		}),
		downloadCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_cache_hits_total",
			Help:      "Fetches answered from a fresh download cache file.",
		}),
		staleCacheReuse: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_cache_reuse_total",
			Help:      "Fetches that degraded to a stale download cache file.",
		}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Download attempts by transport and outcome.",
		}, []string{"transport", "outcome"}),
	}

	reg.MustRegister(
		m.metadataMemoHits,
		m.metadataStoreHits,
		m.metadataFetches,
		m.metadataFetchFails,
		m.downloadCacheHits,
		m.staleCacheReuse,
		m.downloads,
	)

	return m
}

// MetadataMemoHit records a metadata lookup served from the memo.
func (m *Metrics) MetadataMemoHit() {
	if m == nil {
		return
	}
	m.metadataMemoHits.Inc()
}

// MetadataStoreHit records a metadata lookup served from the persistent cache.
func (m *Metrics) MetadataStoreHit() {
	if m == nil {
		return
	}
	m.metadataStoreHits.Inc()
}

// MetadataFetch records a provider construction.
func (m *Metrics) MetadataFetch() {
	if m == nil {
		return
	}
	m.metadataFetches.Inc()
}

// MetadataFetchFailure records a failed or invalid provider construction.
func (m *Metrics) MetadataFetchFailure() {
	if m == nil {
		return
	}
	m.metadataFetchFails.Inc()
}

// DownloadCacheHit records a fetch served from a fresh cache file.
func (m *Metrics) DownloadCacheHit() {
	if m == nil {
		return
	}
	m.downloadCacheHits.Inc()
}

// StaleCacheReuse records a fetch that degraded to a stale cache file.
func (m *Metrics) StaleCacheReuse() {
	if m == nil {
		return
	}
	m.staleCacheReuse.Inc()
}

// Download records a download attempt for the given transport and outcome.
func (m *Metrics) Download(transport, outcome string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(transport, outcome).Inc()
}
