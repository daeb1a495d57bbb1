package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "caulicare"

// Rejection reasons.
const (
	ReasonUnsupportedMediaType = "unsupported_media_type"
	ReasonTooLarge             = "too_large"
	ReasonUnknownModel         = "unknown_model"
	ReasonLowConfidence        = "low_confidence"
	ReasonFailure              = "failure"
)

// Metrics holds the service collectors.
type Metrics struct {
	registry    *prometheus.Registry
	predictions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rejections  *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions served, by model and label.",
		}, []string{"model", "label"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Time spent preparing and running one model on one image.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"model"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Requests rejected, by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(m.predictions, m.duration, m.rejections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// ObservePrediction records one successful model run.
func (m *Metrics) ObservePrediction(model, label string, elapsed time.Duration) {
	m.predictions.WithLabelValues(model, label).Inc()
	m.duration.WithLabelValues(model).Observe(elapsed.Seconds())
}

// ObserveRejection records a request that ended without a prediction.
func (m *Metrics) ObserveRejection(reason string) {
	m.rejections.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
