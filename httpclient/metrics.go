package httpclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors updated by an instrumented Client.
type Metrics struct {
	inFlight prometheus.Gauge
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// NewMetrics creates the client collectors and registers them on reg.
// Collectors already registered by another Client are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "oauthhttp",
			Subsystem: "client",
			Name:      "in_flight_requests",
			Help:      "Requests currently waiting for a response.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oauthhttp",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Completed requests by status code and method.",
		}, []string{"code", "method"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oauthhttp",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Round trip latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oauthhttp",
			Subsystem: "client",
			Name:      "transport_failures_total",
			Help:      "Calls that failed at the transport level by method and failure class.",
		}, []string{"method", "reason"}),
	}

	var err error
	if m.inFlight, err = register(reg, m.inFlight); err != nil {
		return nil, err
	}
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.failures, err = register(reg, m.failures); err != nil {
		return nil, err
	}

	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("httpclient: register metrics: %w", err)
	}
	return c, nil
}

func (m *Metrics) instrument(next http.RoundTripper) http.RoundTripper {
	return promhttp.InstrumentRoundTripperInFlight(m.inFlight,
		promhttp.InstrumentRoundTripperCounter(m.requests,
			promhttp.InstrumentRoundTripperDuration(m.duration, next),
		),
	)
}

func (m *Metrics) observeFailure(method string, code ErrorCode) {
	m.failures.WithLabelValues(method, string(code)).Inc()
}
