// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package metrics exposes Prometheus collectors for the proxy and the small
// admin handler that serves them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "prediction_proxy"

// Outcomes recorded per inbound request.
const (
	OutcomePreflight     = "preflight"
	OutcomeRejected      = "method_not_allowed"
	OutcomeConfigError   = "config_error"
	OutcomeBadRequest    = "bad_request"
	OutcomeUpstreamError = "upstream_error"
	OutcomeRelayed       = "relayed"
)

// Reasons recorded for upstream failures.
const (
	ReasonTransport = "transport"
	ReasonTimeout   = "timeout"
	ReasonDecode    = "decode"
	ReasonTooLarge  = "too_large"
)

// Metrics groups the proxy collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Inbound requests by method and outcome.",
			},
			[]string{"method", "outcome"},
		),
		upstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Latency of upstream prediction calls by response status.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_errors_total",
				Help:      "Upstream calls that failed before a JSON response was received.",
			},
			[]string{"reason"},
		),
	}

	for _, c := range []prometheus.Collector{m.requests, m.upstreamLatency, m.upstreamErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveRequest counts one inbound request.
func (m *Metrics) ObserveRequest(method, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
}

// ObserveUpstream records the latency of a completed upstream call.
func (m *Metrics) ObserveUpstream(status int, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(strconv.Itoa(status)).Observe(d.Seconds())
}

// ObserveUpstreamError counts a failed upstream call.
func (m *Metrics) ObserveUpstreamError(reason string) {
	if m == nil {
		return
	}
	m.upstreamErrors.WithLabelValues(reason).Inc()
}

// Handler serves /metrics from g and a /healthz liveness probe.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", serveHealth)
	return mux
}

type healthStatus struct {
	Status string `json:"status"`
}

func serveHealth(w http.ResponseWriter, _ *http.Request) {
	body, err := sonic.Marshal(healthStatus{Status: "ok"})
	if err != nil {
		log.Error().Err(err).Msg("encode health response failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("write health response failed")
	}
}
