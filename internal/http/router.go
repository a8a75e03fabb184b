package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/factorybrain/api/internal/oracle"
	"github.com/factorybrain/api/internal/service/prediction"
	"github.com/factorybrain/api/internal/service/stats"
	"github.com/factorybrain/api/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux          *http.ServeMux
	logger       *slog.Logger
	predictions  prediction.Service
	stats        stats.Service
	feed         *ws.Hub
	upgrader     websocket.Upgrader
	limiter      RateLimiter
	dbHealth     func(context.Context) error
	oracleHealth func(context.Context) error
	sseHeartbeat time.Duration

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault    = time.Minute
	rateLimitPredict     = 120
	healthCheckTimeout   = 2 * time.Second
	sseHeartbeatInterval = 25 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, predictionSvc prediction.Service, statsSvc stats.Service, feed *ws.Hub, limiter RateLimiter, dbHealth, oracleHealth func(context.Context) error) *Router {
	r := &Router{
		mux:         http.NewServeMux(),
		logger:      logger,
		predictions: predictionSvc,
		stats:       statsSvc,
		feed:        feed,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:      limiter,
		dbHealth:     dbHealth,
		oracleHealth: oracleHealth,
		sseHeartbeat: sseHeartbeatInterval,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/predict", r.audit("predict", r.withRateLimit("predict", rateLimitPredict, rateWindowDefault, r.handlePredict)))
	r.mux.HandleFunc("/dashboard/stats", r.audit("dashboard_stats", r.handleDashboardStats))
	r.mux.HandleFunc("/dashboard/recent", r.audit("dashboard_recent", r.handleDashboardRecent))
	r.mux.HandleFunc("/health", r.audit("health", r.handleHealth))
	r.mux.HandleFunc("/ws/predictions", r.handlePredictionsWS)
	r.mux.HandleFunc("/events/predictions", r.handlePredictionsSSE)
	r.mux.Handle("/metrics", promhttp.Handler())
}

func (r *Router) handlePredict(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload prediction.IngestInput
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeFailure(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	result, err := r.predictions.Ingest(req.Context(), payload)
	if err != nil {
		r.writePredictError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"status":   result.Status,
		"failures": result.Failures,
	})
}

// writePredictError maps pipeline errors onto the response contract.
// Oracle rejection and unreachability share a failure category but carry
// different diagnostic detail.
func (r *Router) writePredictError(w http.ResponseWriter, err error) {
	var validationErr *prediction.ValidationError
	if errors.As(err, &validationErr) {
		writeFailure(w, http.StatusBadRequest, "validation_error", validationErr.Error())
		return
	}
	var rejected *oracle.RejectedError
	if errors.As(err, &rejected) {
		details := map[string]any{"oracle_status": rejected.StatusCode}
		if body := strings.TrimSpace(rejected.Body); body != "" {
			details["oracle_body"] = body
		}
		writeFailure(w, http.StatusBadGateway, "oracle_rejected", details)
		return
	}
	var unreachable *oracle.UnreachableError
	if errors.As(err, &unreachable) {
		writeFailure(w, http.StatusBadGateway, "oracle_unreachable", "failed to get prediction from classification service")
		return
	}
	if errors.Is(err, prediction.ErrRecordingFailed) {
		writeFailure(w, http.StatusInternalServerError, "recording_failed", "prediction classified but could not be recorded")
		return
	}
	r.logger.Error("unexpected ingest error", "error", err)
	writeFailure(w, http.StatusInternalServerError, "internal_error", nil)
}

func (r *Router) handleDashboardStats(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	snapshot, err := r.stats.DashboardSnapshot(req.Context())
	if err != nil {
		r.logger.Error("dashboard snapshot failed", "error", err)
		writeFailure(w, http.StatusInternalServerError, "aggregation_failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    snapshot,
	})
}

func (r *Router) handleDashboardRecent(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	limit := stats.DefaultRecentLimit
	if raw := strings.TrimSpace(req.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "validation_error", "limit must be an integer")
			return
		}
		limit = parsed
	}
	recent, err := r.stats.RecentFeed(req.Context(), limit)
	if err != nil {
		if errors.Is(err, stats.ErrInvalidLimit) {
			writeFailure(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		r.logger.Error("recent feed failed", "error", err)
		writeFailure(w, http.StatusInternalServerError, "aggregation_failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"recentPredictions": recent},
	})
}

// handleHealth reports liveness of the api itself, the record store and
// the oracle. Dependency checks run in parallel with their own timeouts so
// one dead dependency cannot hang the whole probe.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	type componentStatus struct {
		name   string
		status string
		detail string
	}
	checks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{name: "database", fn: r.dbHealth},
		{name: "oracle", fn: r.oracleHealth},
	}

	results := make(chan componentStatus, len(checks))
	var wg sync.WaitGroup
	for _, check := range checks {
		if check.fn == nil {
			continue
		}
		wg.Add(1)
		go func(name string, fn func(context.Context) error) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
			defer cancel()
			if err := fn(ctx); err != nil {
				results <- componentStatus{name: name, status: "offline", detail: err.Error()}
				return
			}
			results <- componentStatus{name: name, status: "online"}
		}(check.name, check.fn)
	}
	wg.Wait()
	close(results)

	components := map[string]any{
		"api": map[string]any{"status": "online"},
	}
	overall := "ok"
	for res := range results {
		entry := map[string]any{"status": res.status}
		if res.detail != "" {
			entry["error"] = res.detail
		}
		components[res.name] = entry
		if res.status != "online" {
			overall = "degraded"
		}
	}

	code := http.StatusOK
	if overall != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     overall,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (r *Router) handlePredictionsWS(w http.ResponseWriter, req *http.Request) {
	if r.feed == nil {
		writeFailure(w, http.StatusNotFound, "not_found", "prediction feed disabled")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.feed.Register(client)
	go func() {
		defer func() {
			r.feed.Unregister(client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// handlePredictionsSSE serves the live feed for EventSource consumers that
// cannot hold a websocket.
func (r *Router) handlePredictionsSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if r.feed == nil {
		writeFailure(w, http.StatusNotFound, "not_found", "prediction feed disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeFailure(w, http.StatusInternalServerError, "streaming_unsupported", nil)
		return
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.feed.Register(client)
	defer func() {
		r.feed.Unregister(client)
		client.Close()
	}()

	heartbeat := time.NewTicker(r.sseHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-heartbeat.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeFailure(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}
