package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	corpusEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wordmap_corpus_entries",
			Help: "Entries seen in the last corpus parse, by outcome",
		},
		[]string{"outcome"},
	)
	indexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wordmap_index_entries",
			Help: "Entries in the loaded vector index",
		},
	)
	loads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordmap_index_loads_total",
			Help: "Vector index load attempts, by source and status",
		},
		[]string{"source", "status"},
	)
	trainings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordmap_model_trainings_total",
			Help: "Projection model trainings, by sample source and status",
		},
		[]string{"source", "status"},
	)
	lookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordmap_lookups_total",
			Help: "Vector lookups, by result",
		},
		[]string{"result"},
	)
	projectionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordmap_projection_failures_total",
			Help: "Failed projections, by reason",
		},
		[]string{"reason"},
	)
	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordmap_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"path", "method", "status"},
	)
	apiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wordmap_api_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(corpusEntries, indexSize, loads)
	prometheus.MustRegister(trainings, lookups, projectionFailures)
	prometheus.MustRegister(apiRequests, apiDuration)
}

// Lookup results.
const (
	LookupHit         = "hit"
	LookupOOV         = "oov"
	LookupUnsupported = "unsupported"
	LookupUnavailable = "unavailable"
)

// ObserveParse records the outcome counts of a corpus parse.
func ObserveParse(parsed, filtered, skipped int) {
	corpusEntries.WithLabelValues("parsed").Set(float64(parsed))
	corpusEntries.WithLabelValues("filtered").Set(float64(filtered))
	corpusEntries.WithLabelValues("skipped").Set(float64(skipped))
}

// SetIndexSize records the number of loaded entries.
func SetIndexSize(n int) { indexSize.Set(float64(n)) }

// IncLoad counts an index load attempt; source is "storage" or "corpus".
func IncLoad(source string, err error) { loads.WithLabelValues(source, status(err)).Inc() }

// IncTraining counts a training attempt; source is "sample", "seed" or "storage".
func IncTraining(source string, err error) { trainings.WithLabelValues(source, status(err)).Inc() }

// IncLookup counts a vector lookup.
func IncLookup(result string) { lookups.WithLabelValues(result).Inc() }

// IncProjectionFailure counts a projection that produced no point.
func IncProjectionFailure(reason string) { projectionFailures.WithLabelValues(reason).Inc() }

// ObserveRequest records an HTTP request.
func ObserveRequest(path, method, code string, d time.Duration) {
	apiRequests.WithLabelValues(path, method, code).Inc()
	apiDuration.WithLabelValues(path, method).Observe(d.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
