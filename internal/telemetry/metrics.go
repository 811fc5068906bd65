package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// DocumentsFetched counts successful document retrievals by source
	// (network or cache).
	DocumentsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "certpipe",
			Name:      "documents_fetched_total",
			Help:      "Total number of documents retrieved",
		},
		[]string{"source"},
	)

	// FetchFailures counts terminal fetch failures per host.
	FetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "certpipe",
			Name:      "fetch_failures_total",
			Help:      "Total number of terminal fetch failures",
		},
		[]string{"host"},
	)

	// CacheHits counts content-cache hits by entry kind.
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "certpipe",
			Name:      "cache_hits_total",
			Help:      "Total number of content cache hits",
		},
		[]string{"kind"},
	)

	// DocumentsParsed counts successfully parsed documents.
	DocumentsParsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "certpipe",
			Name:      "documents_parsed_total",
			Help:      "Total number of documents parsed",
		},
		[]string{"framework", "kind"},
	)

	// ParseFailures counts documents that could not be parsed.
	ParseFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "certpipe",
			Name:      "parse_failures_total",
			Help:      "Total number of unparseable documents",
		},
		[]string{"framework"},
	)

	// RecordsEnriched counts certificates run through the heuristics engine.
	RecordsEnriched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "certpipe",
			Name:      "records_enriched_total",
			Help:      "Total number of certificate records enriched",
		},
		[]string{"framework"},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// Idempotent; safe to call from every entry point.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(DocumentsFetched)
		prometheus.DefaultRegisterer.Register(FetchFailures)
		prometheus.DefaultRegisterer.Register(CacheHits)
		prometheus.DefaultRegisterer.Register(DocumentsParsed)
		prometheus.DefaultRegisterer.Register(ParseFailures)
		prometheus.DefaultRegisterer.Register(RecordsEnriched)
	})
}
