package web

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"hwshim/internal/core"
	"hwshim/internal/storage"
	"hwshim/internal/transports/common"
)

type contextKey string

const (
	ctxSubjectID  contextKey = "subject_id"
	ctxAuthMethod contextKey = "auth_method"
)

// Config определяет параметры HTTP-транспорта.
type Config struct {
	ListenAddr         string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	RequestTimeout     time.Duration
	MaxRequestBody     int64
	AllowSubjectHeader bool
	// Tokens сопоставляет subject sha256-хешу его bearer-токена (hex).
	Tokens map[string]string
}

// Adapter реализует web transport поверх net/http.
type Adapter struct {
	svc    *common.Service
	store  storage.Store
	cfg    Config
	logger *slog.Logger

	subjectsByHash map[string]string

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

type executeRequest struct {
	Module  string   `json:"module"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// NewAdapter создает web transport. Команды идут через общий пайплайн svc.
func NewAdapter(svc *common.Service, store storage.Store, cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8080"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 3 * time.Second
	}
	if cfg.MaxRequestBody <= 0 {
		cfg.MaxRequestBody = 1 << 20
	}

	byHash := make(map[string]string, len(cfg.Tokens))
	for subject, hash := range cfg.Tokens {
		h := strings.ToLower(strings.TrimSpace(hash))
		if len(h) != sha256.Size*2 || subject == "" {
			logger.Warn("ignoring malformed web token", "subject", subject)
			continue
		}
		byHash[h] = subject
	}
	return &Adapter{svc: svc, store: store, cfg: cfg, logger: logger, subjectsByHash: byHash}
}

func (a *Adapter) Name() string { return "web" }

// Start открывает порт синхронно и обслуживает запросы в фоне.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return errors.New("web transport already started")
	}
	ln, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:      a.routes(),
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
	}
	a.server = srv
	a.listener = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("web server stopped", "error", err)
		}
	}()
	a.logger.Info("web transport listening", "addr", ln.Addr().String())
	return nil
}

// Addr возвращает фактический адрес после Start.
func (a *Adapter) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Stop завершает HTTP server.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.server
	a.server = nil
	a.listener = nil
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	stopCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(stopCtx)
}

type middleware func(http.Handler) http.Handler

func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func (a *Adapter) routes() http.Handler {
	mux := http.NewServeMux()
	protected := func(h http.HandlerFunc) http.Handler {
		return chain(h, a.timeoutMiddleware(), a.authSubjectMiddleware())
	}

	mux.Handle("GET /v1/health", http.HandlerFunc(a.handleHealth))
	mux.Handle("GET /v1/modules", protected(a.handleModules))
	mux.Handle("POST /v1/commands/execute", chain(http.HandlerFunc(a.handleExecute),
		a.timeoutMiddleware(), a.authSubjectMiddleware(), a.maxBodyMiddleware()))
	mux.Handle("GET /v1/metrics/latest", protected(a.authorized(core.Action{Module: "metrics", Command: "read"}, a.handleLatestMetric)))
	mux.Handle("GET /v1/audit", protected(a.authorized(core.Action{Module: "audit", Command: "read"}, a.handleAudit)))

	return chain(mux, a.requestIDMiddleware())
}

func (a *Adapter) requestIDMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := sanitizeRequestID(r.Header.Get("X-Request-ID"))
			if requestID == "" {
				requestID = common.NewRequestID()
			}
			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(common.WithRequestID(r.Context(), requestID)))
		})
	}
}

func (a *Adapter) timeoutMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), a.cfg.RequestTimeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Adapter) authSubjectMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subjectID, method, code := a.resolveSubject(r)
			if code != "" {
				writeError(w, r, http.StatusUnauthorized, code)
				return
			}
			ctx := context.WithValue(r.Context(), ctxSubjectID, subjectID)
			ctx = context.WithValue(ctx, ctxAuthMethod, method)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Adapter) resolveSubject(r *http.Request) (subject, method, code string) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		token := strings.TrimSpace(authHeader[7:])
		if token == "" {
			return "", "", "invalid_token"
		}
		sum := sha256.Sum256([]byte(token))
		got := hex.EncodeToString(sum[:])
		for hash, subj := range a.subjectsByHash {
			if subtle.ConstantTimeCompare([]byte(hash), []byte(got)) == 1 {
				return subj, "bearer", ""
			}
		}
		return "", "", "invalid_token"
	}
	if a.cfg.AllowSubjectHeader {
		if id := strings.TrimSpace(r.Header.Get("X-Subject-ID")); id != "" {
			return id, "subject_header", ""
		}
	}
	return "", "", "auth_required"
}

func (a *Adapter) maxBodyMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxRequestBody)
			next.ServeHTTP(w, r)
		})
	}
}

// authorized проверяет доступ к служебным ресурсам, не являющимся командами модулей.
func (a *Adapter) authorized(action core.Action, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := core.Subject{Source: a.svc.Source, ID: subjectIDFromContext(r.Context())}
		if a.svc.Authorizer != nil {
			if err := a.svc.Authorizer.Authorize(subject, action); err != nil {
				writeError(w, r, http.StatusForbidden, "access_denied")
				return
			}
		}
		h(w, r)
	}
}

func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *Adapter) handleModules(w http.ResponseWriter, r *http.Request) {
	type moduleDTO struct {
		Name     string   `json:"name"`
		Commands []string `json:"commands,omitempty"`
	}
	names := a.svc.Registry.Providers()
	items := make([]moduleDTO, 0, len(names))
	for _, name := range names {
		cmds, _ := a.svc.Registry.Commands(name)
		items = append(items, moduleDTO{Name: name, Commands: cmds})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"request_id": common.RequestID(r.Context()),
		"items":      items,
	})
}

func (a *Adapter) handleExecute(w http.ResponseWriter, r *http.Request) {
	req, code, status := decodeExecuteRequest(r)
	if code != "" {
		writeError(w, r, status, code)
		return
	}

	resp, err := a.svc.Execute(r.Context(), subjectIDFromContext(r.Context()), req.Module, req.Command, req.Args)
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(r.Context().Err(), context.DeadlineExceeded):
			writeError(w, r, http.StatusGatewayTimeout, "request_timeout")
			return
		case errors.Is(err, core.ErrDenied):
			status = http.StatusForbidden
		case errors.Is(err, common.ErrRateLimited):
			status = http.StatusTooManyRequests
		case errors.Is(err, core.ErrUnknownProvider), errors.Is(err, core.ErrUnknownCommand):
			status = http.StatusNotFound
		case resp.ErrorCode != "" && !errors.Is(err, core.ErrInvalidArguments):
			status = http.StatusBadGateway
		}
		writeJSON(w, r, status, map[string]any{
			"request_id": common.RequestID(r.Context()),
			"status":     core.StatusError,
			"error_code": resp.ErrorCode,
			"message":    err.Error(),
		})
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"request_id": common.RequestID(r.Context()),
		"status":     resp.Status,
		"data":       resp.Data,
		"error_code": resp.ErrorCode,
	})
}

func (a *Adapter) handleLatestMetric(w http.ResponseWriter, r *http.Request) {
	module := r.URL.Query().Get("module")
	if module == "" {
		writeError(w, r, http.StatusBadRequest, "module_required")
		return
	}
	rec, err := a.store.LatestMetric(r.Context(), module)
	if err != nil {
		if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
			writeError(w, r, http.StatusGatewayTimeout, "request_timeout")
			return
		}
		writeError(w, r, http.StatusNotFound, "metric_not_found")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"request_id": common.RequestID(r.Context()),
		"module":     rec.Module,
		"ts":         rec.TS.UTC().Format(time.RFC3339),
		"payload":    json.RawMessage(rec.Payload),
	})
}

func (a *Adapter) handleAudit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := storage.AuditQuery{
		Subject: query.Get("subject"),
		Source:  query.Get("source"),
		Limit:   parseLimit(query.Get("limit")),
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		v := query.Get(p.name)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_"+p.name)
			return
		}
		*p.dst = ts
	}

	events, err := a.store.QueryAudit(r.Context(), q)
	if err != nil {
		a.logger.Error("audit query failed", "request_id", common.RequestID(r.Context()), "error", err)
		writeError(w, r, http.StatusInternalServerError, "query_failed")
		return
	}

	type eventDTO struct {
		Subject   string          `json:"subject"`
		Action    string          `json:"action"`
		Source    string          `json:"source"`
		Status    string          `json:"status"`
		RequestID string          `json:"request_id"`
		Payload   json.RawMessage `json:"payload,omitempty"`
		TS        string          `json:"ts"`
	}
	items := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		items = append(items, eventDTO{
			Subject:   ev.Subject,
			Action:    ev.Action,
			Source:    ev.Source,
			Status:    ev.Status,
			RequestID: ev.RequestID,
			Payload:   json.RawMessage(ev.Payload),
			TS:        ev.TS.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"request_id": common.RequestID(r.Context()),
		"items":      items,
	})
}

func decodeExecuteRequest(r *http.Request) (executeRequest, string, int) {
	var req executeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return executeRequest{}, "payload_too_large", http.StatusRequestEntityTooLarge
		}
		return executeRequest{}, "invalid_json", http.StatusBadRequest
	}
	if dec.More() {
		return executeRequest{}, "invalid_json", http.StatusBadRequest
	}
	if req.Module == "" || req.Command == "" {
		return executeRequest{}, "bad_command", http.StatusBadRequest
	}
	return req, "", 0
}

func sanitizeRequestID(v string) string {
	id := strings.TrimSpace(v)
	if id == "" || len(id) > 64 {
		return ""
	}
	for _, ch := range id {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			continue
		}
		switch ch {
		case '-', '_', '.', ':':
			continue
		default:
			return ""
		}
	}
	return id
}

func subjectIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxSubjectID).(string)
	return v
}

func parseLimit(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 50
	}
	return n
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code string) {
	writeJSON(w, r, statusCode, map[string]string{
		"request_id": common.RequestID(r.Context()),
		"error_code": code,
		"message":    errorMessage(code),
	})
}

func errorMessage(code string) string {
	switch code {
	case "auth_required":
		return "authentication is required"
	case "invalid_token":
		return "token is invalid"
	case "access_denied":
		return "access denied"
	case "payload_too_large":
		return "request payload is too large"
	case "request_timeout":
		return "request timeout"
	default:
		return code
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
