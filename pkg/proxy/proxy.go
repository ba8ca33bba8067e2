// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package proxy

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/go-core-stack/prediction-proxy/pkg/auth"
	"github.com/go-core-stack/prediction-proxy/pkg/config"
	"github.com/go-core-stack/prediction-proxy/pkg/cors"
	"github.com/go-core-stack/prediction-proxy/pkg/metrics"
	"github.com/go-core-stack/prediction-proxy/pkg/payload"
)

const (
	HeaderPrefer    = "Prefer"
	HeaderRequestID = "X-Request-Id"

	contentTypeJSON = "application/json"
	contentTypeText = "text/plain; charset=utf-8"
	preferWait      = "wait"

	// MethodNotAllowedMessage is the body returned for anything but OPTIONS and POST.
	MethodNotAllowedMessage = "this proxy only supports POST requests"

	maxUpstreamBody = 32 << 20
	maxLogBody      = 64 * 1024
)

var (
	errInvalidUpstreamJSON  = errors.New("upstream response is not valid JSON")
	errUpstreamBodyTooLarge = errors.New("upstream response too large")
)

// Proxy forwards prediction requests to a single upstream endpoint.
type Proxy struct {
	// cfg keeps runtime knobs such as the upstream URL and body limits.
	cfg config.Config
	// client performs outbound HTTP requests with tuned transport settings.
	client *http.Client
	// bearer injects the upstream credential.
	bearer *auth.Bearer
	// metrics may be nil, in which case nothing is recorded.
	metrics *metrics.Metrics
	// logger emits structured logs for observability.
	logger zerolog.Logger
	// endpoint is the fixed upstream URL every POST is sent to.
	endpoint string
	// maxUpstreamBytes caps the relayed upstream body.
	maxUpstreamBytes int64
}

// Option customises a Proxy at construction.
type Option func(*Proxy)

// WithMetrics records request outcomes and upstream latency into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Proxy) {
		p.metrics = m
	}
}

// New constructs a Proxy backed by an http.Client configured with sensible
// connection pooling defaults and the provided runtime configuration.
func New(cfg config.Config, opts ...Option) (*Proxy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.UpstreamInsecure, // nolint:gosec -- opt-in for development scenarios
		},
	}

	p := &Proxy{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		bearer:   auth.NewBearer(cfg.APIToken),
		logger:   log.With().Str("component", "proxy").Logger(),
		endpoint:         cfg.Upstream.String(),
		maxUpstreamBytes: maxUpstreamBody,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.logger.Debug().
		Str("upstream", p.endpoint).
		Stringer("credential", p.bearer).
		Msg("proxy configured")
	if !p.bearer.Configured() {
		p.logger.Warn().Msg("REPLICATE_API_TOKEN is not set; POST requests will fail until it is configured")
	}

	return p, nil
}

// ServeHTTP dispatches on method. Every response carries the CORS headers.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	event := p.logger.With().
		Str("request_id", requestID).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Logger()

	cors.Apply(w.Header())
	w.Header().Set(HeaderRequestID, requestID)

	switch r.Method {
	case http.MethodOptions:
		p.servePreflight(w, event)
	case http.MethodPost:
		p.serveForward(w, r, event, start)
	default:
		p.serveMethodNotAllowed(w, r, event)
	}
}

func (p *Proxy) servePreflight(w http.ResponseWriter, event zerolog.Logger) {
	w.WriteHeader(http.StatusNoContent)
	p.metrics.ObserveRequest(http.MethodOptions, metrics.OutcomePreflight)
	event.Debug().Msg("preflight answered")
}

func (p *Proxy) serveMethodNotAllowed(w http.ResponseWriter, r *http.Request, event zerolog.Logger) {
	w.Header().Set("Content-Type", contentTypeText)
	w.WriteHeader(http.StatusMethodNotAllowed)
	if _, err := io.WriteString(w, MethodNotAllowedMessage); err != nil {
		event.Error().Err(err).Msg("write method not allowed response failed")
	}
	p.metrics.ObserveRequest(methodLabel(r.Method), metrics.OutcomeRejected)
	event.Debug().Msg("method not allowed")
}

func (p *Proxy) serveForward(w http.ResponseWriter, r *http.Request, event zerolog.Logger, start time.Time) {
	resp, err := p.forward(r, event)
	if err != nil {
		p.writeError(w, err, event, start)
		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(resp.status)
	p.metrics.ObserveRequest(http.MethodPost, metrics.OutcomeRelayed)

	if _, err := w.Write(resp.body); err != nil {
		event.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("write response failed")
		return
	}

	event.Info().
		Int("status", resp.status).
		Dur("duration", time.Since(start)).
		Msg("request proxied")
}

type upstreamResponse struct {
	status int
	body   []byte
}

// forward validates and rewrites the inbound body, performs exactly one
// upstream call and returns its status and JSON body.
func (p *Proxy) forward(r *http.Request, event zerolog.Logger) (*upstreamResponse, error) {
	if !p.bearer.Configured() {
		return nil, configError(auth.ErrMissingCredential)
	}

	raw, err := p.readBody(r, event)
	if err != nil {
		return nil, err
	}

	prepared, err := payload.Prepare(raw, p.cfg.DefaultVersion)
	if err != nil {
		return nil, badRequestError(msgInvalidBody, err)
	}

	upstreamReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, p.endpoint, bytes.NewReader(prepared.Body))
	if err != nil {
		return nil, upstreamError(fmt.Errorf("build upstream request: %w", err))
	}
	upstreamReq.Header.Set("Content-Type", contentTypeJSON)
	upstreamReq.Header.Set("Accept", contentTypeJSON)
	if prefer := preferHeader(r, prepared.Wait); prefer != "" {
		upstreamReq.Header.Set(HeaderPrefer, prefer)
	}
	if err := p.bearer.Attach(upstreamReq); err != nil {
		return nil, configError(err)
	}

	event.Debug().
		Bool("wait", prepared.Wait).
		Int("body_bytes", len(prepared.Body)).
		Msg("forwarding to upstream")

	begin := time.Now()
	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		p.metrics.ObserveUpstreamError(failureReason(err))
		return nil, upstreamError(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			event.Error().
				Err(closeErr).
				Msg("close upstream response body failed")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxUpstreamBytes+1))
	if err != nil {
		p.metrics.ObserveUpstreamError(failureReason(err))
		return nil, upstreamError(fmt.Errorf("read upstream response: %w", err))
	}
	p.metrics.ObserveUpstream(resp.StatusCode, time.Since(begin))

	if int64(len(body)) > p.maxUpstreamBytes {
		p.metrics.ObserveUpstreamError(metrics.ReasonTooLarge)
		return nil, upstreamError(fmt.Errorf("read upstream response (status %d): %w: limit %d bytes", resp.StatusCode, errUpstreamBodyTooLarge, p.maxUpstreamBytes))
	}

	if !gjson.ValidBytes(body) {
		p.metrics.ObserveUpstreamError(metrics.ReasonDecode)
		return nil, upstreamError(fmt.Errorf("decode upstream response (status %d): %w", resp.StatusCode, errInvalidUpstreamJSON))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		logged := body
		if len(logged) > maxLogBody {
			logged = logged[:maxLogBody]
		}
		event.Warn().
			Int("status", resp.StatusCode).
			Bytes("upstream_body", logged).
			Msg("upstream returned error")
	}

	return &upstreamResponse{status: resp.StatusCode, body: body}, nil
}

// readBody reads at most MaxBodyBytes of the inbound body.
func (p *Proxy) readBody(r *http.Request, event zerolog.Logger) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			event.Error().
				Err(err).
				Msg("close request body failed")
		}
	}()

	limit := p.cfg.MaxBodyBytes
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, badRequestError(msgInvalidBody, fmt.Errorf("read request body: %w", err))
	}
	if int64(len(body)) > limit {
		e := badRequestError(msgBodyTooLarge, fmt.Errorf("body larger than %d bytes", limit))
		e.Status = http.StatusRequestEntityTooLarge
		return nil, e
	}
	return body, nil
}

// writeError renders err as the proxy's JSON error body.
func (p *Proxy) writeError(w http.ResponseWriter, err error, event zerolog.Logger, start time.Time) {
	var perr *Error
	if !errors.As(err, &perr) {
		perr = upstreamError(err)
	}

	body := errorBody{Error: perr.Message}
	outcome := metrics.OutcomeBadRequest
	level := zerolog.WarnLevel
	switch {
	case errors.Is(perr, ErrUpstream):
		outcome = metrics.OutcomeUpstreamError
		level = zerolog.ErrorLevel
		if perr.Err != nil {
			body.Details = p.bearer.Redact(perr.Err.Error())
		}
	case errors.Is(perr, ErrConfig):
		outcome = metrics.OutcomeConfigError
		level = zerolog.ErrorLevel
	}

	encoded, mErr := sonic.Marshal(body)
	if mErr != nil {
		event.Error().Err(mErr).Msg("encode error body failed")
		encoded = []byte(`{"error":"internal error"}`)
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(perr.Status)
	if _, wErr := w.Write(encoded); wErr != nil {
		event.Error().Err(wErr).Msg("write error response failed")
	}
	p.metrics.ObserveRequest(http.MethodPost, outcome)

	event.WithLevel(level).
		Str("error", p.bearer.Redact(perr.Error())).
		Int("status", perr.Status).
		Dur("duration", time.Since(start)).
		Msg("request failed")
}

// preferHeader keeps a Prefer header sent by the client (for example
// "wait=10") and otherwise derives one from the body signal.
func preferHeader(r *http.Request, wait bool) string {
	if v := r.Header.Get(HeaderPrefer); v != "" {
		return v
	}
	if wait {
		return preferWait
	}
	return ""
}

func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return metrics.ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return metrics.ReasonTimeout
	}
	return metrics.ReasonTransport
}

// methodLabel bounds the cardinality of the method metric label.
func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodConnect, http.MethodTrace:
		return method
	default:
		return "OTHER"
	}
}
