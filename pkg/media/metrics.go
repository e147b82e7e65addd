package media

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for uploader operations.
type Observer interface {
	RecordUpload(provider Provider, duration time.Duration, sizeBytes int64, err error)
	RecordDelete(provider Provider, duration time.Duration, err error)
	RecordList(provider Provider, duration time.Duration, err error)
}

// PrometheusObserver exports uploader metrics to Prometheus.
type PrometheusObserver struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
	bytes    *prometheus.CounterVec
}

// NewPrometheusObserver registers upload, delete and list metrics.
// Collectors already registered under the same name are reused.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "media"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Latency of media operations by provider.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "provider"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_errors_total",
		Help:      "Count of failed media operations by normalized error kind.",
	}, []string{"operation", "provider", "kind"})
	bytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploaded_bytes_total",
		Help:      "Cumulative payload size successfully uploaded.",
	}, []string{"provider"})

	var err error
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if failures, err = register(reg, failures); err != nil {
		return nil, err
	}
	if bytes, err = register(reg, bytes); err != nil {
		return nil, err
	}

	return &PrometheusObserver{duration: duration, failures: failures, bytes: bytes}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register media metric: %w", err)
	}
	return c, nil
}

// RecordUpload tracks upload duration, size and failures.
func (o *PrometheusObserver) RecordUpload(provider Provider, duration time.Duration, sizeBytes int64, err error) {
	if o == nil {
		return
	}
	o.record("upload", provider, duration, err)
	if err == nil && sizeBytes > 0 {
		o.bytes.WithLabelValues(string(provider)).Add(float64(sizeBytes))
	}
}

func (o *PrometheusObserver) RecordDelete(provider Provider, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.record("delete", provider, duration, err)
}

func (o *PrometheusObserver) RecordList(provider Provider, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.record("list", provider, duration, err)
}

func (o *PrometheusObserver) record(op string, provider Provider, duration time.Duration, err error) {
	o.duration.WithLabelValues(op, string(provider)).Observe(duration.Seconds())
	if err != nil {
		o.failures.WithLabelValues(op, string(provider), string(KindOf(err))).Inc()
	}
}

type nopObserver struct{}

func (nopObserver) RecordUpload(Provider, time.Duration, int64, error) {}

func (nopObserver) RecordDelete(Provider, time.Duration, error) {}

func (nopObserver) RecordList(Provider, time.Duration, error) {}
