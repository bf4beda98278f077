package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"

	"github.com/agentworkforce/rowsync/internal/poke"
	"github.com/agentworkforce/rowsync/internal/rowsync"
)

// ServerConfig carries the HTTP-layer knobs. Zero values get
// production-safe defaults in NewServerWithConfig.
type ServerConfig struct {
	JWTSecret       string
	MaxBodyBytes    int64
	RateLimitMax    int
	RateLimitWindow time.Duration
}

type Server struct {
	svc         *rowsync.Service
	hub         *poke.Hub
	lg          log.Logger
	cfg         ServerConfig
	schemas     *requestSchemas
	rateLimiter *rateLimiter
	router      *mux.Router
}

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]rateEntry
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func NewServer(svc *rowsync.Service, hub *poke.Hub, lg log.Logger) (*Server, error) {
	return NewServerWithConfig(svc, hub, lg, ServerConfig{})
}

func NewServerWithConfig(svc *rowsync.Service, hub *poke.Hub, lg log.Logger, cfg ServerConfig) (*Server, error) {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
	}
	if cfg.RateLimitMax < 0 {
		cfg.RateLimitMax = 0
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if lg == nil {
		lg = log.NewNopLogger()
	}
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	var limiter *rateLimiter
	if cfg.RateLimitMax > 0 {
		limiter = &rateLimiter{
			window:  cfg.RateLimitWindow,
			max:     cfg.RateLimitMax,
			entries: map[string]rateEntry{},
		}
	}
	s := &Server{
		svc:         svc,
		hub:         hub,
		lg:          lg,
		cfg:         cfg,
		schemas:     schemas,
		rateLimiter: limiter,
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestLogMiddleware)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/sync/v1").Subrouter()
	api.HandleFunc("/push", s.handlePush).Methods(http.MethodPost)
	api.HandleFunc("/pull", s.handlePull).Methods(http.MethodPost)
	api.HandleFunc("/poke", s.handlePoke).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
	})
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Correlation-Id") == "" {
			r.Header.Set("X-Correlation-Id", uuid.NewString())
		}
		m := httpsnoop.CaptureMetrics(next, w, r)
		level.Info(s.lg).Log(
			"msg", "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"duration_ms", m.Duration.Milliseconds(),
			"correlation_id", getCorrelationID(r),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	claims, authErr := authorizeBearer(r.Header.Get("Authorization"), s.cfg.JWTSecret, time.Now())
	if authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message, correlationID)
		return
	}
	if s.rateLimiter != nil && !s.rateLimiter.allow(claims.UserID, time.Now()) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", correlationID)
		return
	}

	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return
	}
	if err := validateBody(s.schemas.push, body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), correlationID)
		return
	}
	var req rowsync.PushRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", correlationID)
		return
	}

	if err := s.svc.Push(r.Context(), claims.UserID, req); err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	claims, authErr := authorizeBearer(r.Header.Get("Authorization"), s.cfg.JWTSecret, time.Now())
	if authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message, correlationID)
		return
	}
	if s.rateLimiter != nil && !s.rateLimiter.allow(claims.UserID, time.Now()) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", correlationID)
		return
	}

	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return
	}
	if err := validateBody(s.schemas.pull, body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), correlationID)
		return
	}
	var req rowsync.PullRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", correlationID)
		return
	}

	resp, err := s.svc.Pull(r.Context(), claims.UserID, req)
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePoke upgrades to a websocket and relays poke channel names to
// the client. The payload is just the channel name; the client reacts
// by scheduling a pull.
func (s *Server) handlePoke(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	claims, authErr := authorizeBearer(r.Header.Get("Authorization"), s.cfg.JWTSecret, time.Now())
	if authErr != nil {
		// Browsers cannot set headers on websocket dials, so the token
		// may arrive as a query parameter instead.
		claims, authErr = authorizeBearer("Bearer "+r.URL.Query().Get("token"), s.cfg.JWTSecret, time.Now())
		if authErr != nil {
			writeError(w, authErr.status, authErr.code, authErr.message, correlationID)
			return
		}
	}

	channels := r.URL.Query()["channel"]
	channels = append(channels, "user/"+claims.UserID)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		level.Debug(s.lg).Log("msg", "websocket accept failed", "err", err, "correlation_id", correlationID)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	pokes, cancel := s.hub.Subscribe(channels)
	defer cancel()

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case channel := <-pokes:
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, []byte(channel))
			cancelWrite()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error, correlationID string) {
	switch {
	case errors.Is(err, rowsync.ErrMutationFromFuture):
		writeError(w, http.StatusConflict, "protocol_violation", err.Error(), correlationID)
	case errors.Is(err, rowsync.ErrWrongClientGroup):
		writeError(w, http.StatusConflict, "protocol_violation", err.Error(), correlationID)
	case errors.Is(err, rowsync.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "forbidden", err.Error(), correlationID)
	case errors.Is(err, rowsync.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), correlationID)
	default:
		level.Error(s.lg).Log("msg", "internal error", "err", err, "correlation_id", correlationID)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", correlationID)
	}
}

func getCorrelationID(r *http.Request) string {
	return r.Header.Get("X-Correlation-Id")
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request, correlationID string) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", correlationID)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", correlationID)
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}

func (r *rateLimiter) allow(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || now.After(entry.resetAt) {
		r.entries[key] = rateEntry{
			count:   1,
			resetAt: now.Add(r.window),
		}
		return true
	}
	if entry.count >= r.max {
		return false
	}
	entry.count++
	r.entries[key] = entry
	return true
}
