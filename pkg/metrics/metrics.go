// Package metrics exposes Prometheus metrics for the song pipeline and the
// HTTP server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "goatmusic"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	submissions     *prometheus.CounterVec
	lyricsDuration  *prometheus.HistogramVec
	taskStatuses    *prometheus.CounterVec
	surveys         prometheus.Counter
	downloadedBytes prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"method", "route"},
		),
		submissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "song",
				Name:      "submissions_total",
				Help:      "Total number of generation submissions by result",
			},
			[]string{"result"},
		),
		lyricsDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "lyrics",
				Name:      "duration_seconds",
				Help:      "Time spent producing lyrics in seconds",
				Buckets:   []float64{1, 3, 6, 10, 20, 30, 60, 90, 120},
			},
			[]string{"result"},
		),
		taskStatuses: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "song",
				Name:      "task_status_total",
				Help:      "Observed generation task statuses",
			},
			[]string{"status"},
		),
		surveys: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "survey",
				Name:      "created_total",
				Help:      "Total number of survey records created",
			},
		),
		downloadedBytes: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "download",
				Name:      "bytes_total",
				Help:      "Total number of audio bytes proxied to clients",
			},
		),
	}
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) Submission(result string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveLyrics(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.lyricsDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) TaskStatus(status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.taskStatuses.WithLabelValues(status).Inc()
}

func (m *Metrics) SurveyCreated() {
	if m == nil {
		return
	}
	m.surveys.Inc()
}

func (m *Metrics) Downloaded(n int64) {
	if m == nil {
		return
	}
	m.downloadedBytes.Add(float64(n))
}
