package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "everything2pdf",
			Name:      "jobs_total",
			Help:      "Conversion jobs by result (done, failed)",
		},
		[]string{"result"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "everything2pdf",
			Name:      "job_duration_seconds",
			Help:      "Duration of conversion jobs by result",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	filesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "everything2pdf",
			Name:      "files_total",
			Help:      "Input files by kind and conversion method",
		},
		[]string{"kind", "method"},
	)

	pagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "everything2pdf",
			Name:      "pages_total",
			Help:      "Total pages written to output PDFs",
		},
	)

	officeFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "everything2pdf",
			Name:      "office_fallback_total",
			Help:      "Office fallback conversions by family and outcome",
		},
		[]string{"family", "outcome"},
	)

	initOnce sync.Once
)

// Init registers collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(jobsTotal, jobDuration, filesTotal, pagesTotal, officeFallbacks)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

// WriteTextfile dumps the default registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

func ObserveJob(result string, dur time.Duration) {
	jobsTotal.WithLabelValues(result).Inc()
	jobDuration.WithLabelValues(result).Observe(dur.Seconds())
}

func IncFile(kind, method string) { filesTotal.WithLabelValues(kind, method).Inc() }
func AddPages(n int)              { pagesTotal.Add(float64(n)) }

func IncFallback(family string, ok bool) {
	outcome := "failed"
	if ok {
		outcome = "ok"
	}
	officeFallbacks.WithLabelValues(family, outcome).Inc()
}
