package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
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

	"github.com/deploytrack/deploytrack/internal/badge"
	"github.com/deploytrack/deploytrack/internal/domain"
	"github.com/deploytrack/deploytrack/internal/service/stats"
	"github.com/deploytrack/deploytrack/internal/service/track"
	"github.com/deploytrack/deploytrack/internal/service/usage"
	"github.com/deploytrack/deploytrack/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	track    *track.Service
	stats    *stats.Service
	usage    *usage.Service
	enricher stats.Enricher
	hub      *ws.Hub
	upgrader websocket.Upgrader
	limiter  RateLimiter
	apiKey   string
	devMode  bool
	baseURL  string
	dbHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	eventsIngested     *prometheus.CounterVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateLimitIngest    = 120
	healthCheckTimeout = 2 * time.Second
	sseHeartbeat       = 30 * time.Second

	// feedTopic is the hub topic the ingestion service publishes to.
	feedTopic = "events"
)

// Options carries the router's static configuration.
type Options struct {
	APIKey  string
	DevMode bool
	BaseURL string
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, trackSvc *track.Service, statsSvc *stats.Service, usageSvc *usage.Service, enricher stats.Enricher, hub *ws.Hub, limiter RateLimiter, opts Options, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		track:    trackSvc,
		stats:    statsSvc,
		usage:    usageSvc,
		enricher: enricher,
		hub:      hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  limiter,
		apiKey:   strings.TrimSpace(opts.APIKey),
		devMode:  opts.DevMode,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		dbHealth: dbHealth,
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
	r.mux.HandleFunc("/", r.audit(r.handleRoot))
	r.mux.HandleFunc("/api/v1/track", r.audit(r.withRateLimit("track", rateLimitIngest, rateWindowDefault, r.handleTrackJSON)))
	r.mux.HandleFunc("/stats", r.audit(r.requireKey(r.handleStatsOverview)))
	r.mux.HandleFunc("/stats/", r.audit(r.handleStatsSubroutes))
	r.mux.HandleFunc("/repos", r.audit(r.requireKey(r.handleRepos)))
	r.mux.HandleFunc("/api/v1/stats", r.audit(r.requireKey(r.handleRepoLookup)))
	r.mux.HandleFunc("/usage/", r.audit(r.requireKey(r.handleUsage)))
	r.mux.HandleFunc("/ws/events", r.audit(r.requireKey(r.handleEventsWS)))
	r.mux.HandleFunc("/events", r.audit(r.requireKey(r.handleEventsSSE)))
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/robots.txt", r.handleRobots)
}

// handleRoot serves the legacy ingestion endpoint: agents POST events to
// the root path, form-encoded or JSON.
func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		r.notFound(w)
		return
	}
	switch req.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{
			"name":  "deployment tracker",
			"track": "POST / or POST /api/v1/track",
			"stats": "GET /stats",
		})
	case http.MethodPost:
		r.withRateLimit("track", rateLimitIngest, rateWindowDefault, r.handleTrackForm)(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTrackForm(w http.ResponseWriter, req *http.Request) {
	contentType := req.Header.Get("Content-Type")
	if strings.Contains(contentType, "json") {
		r.handleTrackJSON(w, req)
		return
	}
	if err := req.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "could not parse form body")
		return
	}
	if len(req.PostForm) == 0 {
		writeError(w, http.StatusBadRequest, "empty body")
		return
	}
	r.ingest(w, req, track.RawEventFromForm(req.PostForm), "form")
}

func (r *Router) handleTrackJSON(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var raw track.RawEvent
	if err := json.NewDecoder(req.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	r.ingest(w, req, raw, "json")
}

// ingest runs the shared validate/store path. A payload flagged test is a
// dry run: it is validated against the required-field contract and never
// stored.
func (r *Router) ingest(w http.ResponseWriter, req *http.Request, raw track.RawEvent, source string) {
	if raw.Test {
		if missing := track.Missing(raw); len(missing) > 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"ok":      false,
				"missing": missing,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	event, err := r.track.Track(req.Context(), raw)
	if err != nil {
		r.logger.Error("event insert failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not store event")
		return
	}
	r.recordEventIngested(source)
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": event.ID})
}

func (r *Router) handleStatsOverview(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	overview, err := r.stats.Overview(req.Context())
	if err != nil {
		if errors.Is(err, stats.ErrNoData) {
			writeError(w, http.StatusNotFound, "no deployment data")
			return
		}
		r.logger.Error("stats overview failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not compute stats")
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// handleStatsSubroutes serves /stats/{hash}, /stats/{hash}/badge.svg and
// /stats/{hash}/button.svg. The SVG routes are public: they are embedded
// in third-party READMEs and must render without credentials.
func (r *Router) handleStatsSubroutes(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	trimmed := strings.TrimPrefix(req.URL.Path, "/stats/")
	parts := strings.Split(trimmed, "/")
	hash := parts[0]
	if hash == "" {
		r.notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		r.requireKey(func(w http.ResponseWriter, req *http.Request) {
			r.handleRepoStats(w, req, hash)
		})(w, req)
	case len(parts) == 2 && parts[1] == "badge.svg":
		r.handleSVG(w, req, hash, badge.RenderBadge)
	case len(parts) == 2 && parts[1] == "button.svg":
		r.handleSVG(w, req, hash, badge.RenderButton)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleRepoStats(w http.ResponseWriter, req *http.Request, hash string) {
	repoStats, err := r.stats.RepoStats(req.Context(), hash, r.requestBaseURL(req))
	if err != nil {
		if errors.Is(err, stats.ErrNoData) {
			writeError(w, http.StatusNotFound, "no deployments for this repository")
			return
		}
		r.logger.Error("repo stats failed", "hash", hash, "error", err)
		writeError(w, http.StatusInternalServerError, "could not compute stats")
		return
	}
	writeJSON(w, http.StatusOK, repoStats)
}

func (r *Router) handleSVG(w http.ResponseWriter, req *http.Request, hash string, render func(wr io.Writer, count int64) error) {
	count, err := r.stats.BadgeCount(req.Context(), hash)
	if err != nil {
		r.logger.Error("badge count failed", "hash", hash, "error", err)
		writeError(w, http.StatusInternalServerError, "could not count deployments")
		return
	}
	svgHeaders(w)
	if err := render(w, count); err != nil {
		r.logger.Error("svg render failed", "hash", hash, "error", err)
	}
}

func (r *Router) handleRepos(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	repos, err := r.stats.Repositories(req.Context())
	if err != nil {
		r.logger.Error("repository list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list repositories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repositories": repos})
}

// handleRepoLookup proxies a single github-stats lookup for one repository.
func (r *Router) handleRepoLookup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	repo := strings.TrimSpace(req.URL.Query().Get("repo"))
	if repo == "" {
		writeError(w, http.StatusBadRequest, "repo query parameter required")
		return
	}
	if r.enricher == nil {
		writeError(w, http.StatusNotFound, "repository stats not configured")
		return
	}
	ghStats, err := r.enricher.Stats(req.Context(), repo)
	if err != nil {
		r.logger.Warn("repo lookup failed", "repo", repo, "error", err)
		writeError(w, http.StatusBadGateway, "repository stats unavailable")
		return
	}
	if ghStats == nil {
		writeError(w, http.StatusNotFound, "repository stats not configured")
		return
	}
	writeJSON(w, http.StatusOK, ghStats)
}

func (r *Router) handleUsage(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/usage/")
	parts := strings.Split(trimmed, "/")

	if req.Method == http.MethodPost {
		if len(parts) == 1 && parts[0] == "snapshot" {
			r.handleUsageSnapshot(w, req)
			return
		}
		r.methodNotAllowed(w)
		return
	}
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}

	var payload any
	var err error
	switch {
	case len(parts) == 1 && parts[0] == "users":
		payload, err = r.usage.Users(req.Context())
	case len(parts) == 1 && parts[0] == "chatbots":
		payload, err = r.usage.Chatbots(req.Context())
	case len(parts) == 1 && parts[0] == "platform":
		payload, err = r.usage.Platform(req.Context())
	case len(parts) == 1 && parts[0] == "services":
		payload, err = r.usage.Graphs(req.Context())
	case len(parts) == 2 && parts[0] == "services" && parts[1] != "":
		payload, err = r.usage.Service(req.Context(), parts[1])
	case len(parts) == 2 && parts[0] == "companies" && parts[1] != "":
		payload, err = r.usage.Company(req.Context(), parts[1])
	case len(parts) == 4 && parts[0] == "companies" && parts[2] == "services" && parts[3] != "":
		payload, err = r.usage.CompanyService(req.Context(), parts[1], parts[3])
	default:
		r.notFound(w)
		return
	}
	if err != nil {
		if errors.Is(err, usage.ErrNoData) {
			writeError(w, http.StatusNotFound, "no usage data")
			return
		}
		r.logger.Error("usage view failed", "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load usage data")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleUsageSnapshot replaces the stored usage summary document. Snapshots
// are produced by an out-of-band reporting job and pushed here.
func (r *Router) handleUsageSnapshot(w http.ResponseWriter, req *http.Request) {
	var snapshot domain.UsageSnapshot
	if err := json.NewDecoder(req.Body).Decode(&snapshot); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.usage.Store(req.Context(), &snapshot); err != nil {
		r.logger.Error("usage snapshot store failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not store usage snapshot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (r *Router) handleEventsWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(feedTopic, client)
	go func() {
		defer func() {
			r.hub.Unregister(feedTopic, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// handleEventsSSE is the fallback live feed for clients without websocket
// support. The handler blocks until the client disconnects.
func (r *Router) handleEventsSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.hub.Register(feedTopic, client)
	defer func() {
		r.hub.Unregister(feedTopic, client)
		client.Close()
	}()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) handleRobots(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("User-agent: *\nDisallow: /\n"))
}

// requestBaseURL is the externally visible scheme://host used to build
// badge links. The configured base URL wins; otherwise it is derived from
// the request the way proxies forward it.
func (r *Router) requestBaseURL(req *http.Request) string {
	if r.baseURL != "" {
		return r.baseURL
	}
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-Proto")); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + req.Host
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
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
		r.recordRequestMetrics(req.Method, req.URL.Path, status, duration)

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

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
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

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
