// Package httpadapter exposes the engine over HTTP: the dashboard aggregation
// endpoint, the extension messaging surface (plain POST and websocket), cache
// lookups for the warning page and banner, and metrics.
package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"phishguard/internal/domain"
	"phishguard/internal/ports"
	"phishguard/internal/services/dispatch"
	"phishguard/internal/services/reconcile"
)

const maxBodyBytes = 8 << 20

type Reconciler interface {
	Scan(ctx context.Context, req reconcile.Request) (reconcile.Result, error)
}

type Dispatcher interface {
	Handle(ctx context.Context, from dispatch.Sender, msg dispatch.Message) (any, error)
}

// SettingsStore is the settings record plus the block rules and banner check
// derived from it.
type SettingsStore interface {
	Settings(ctx context.Context) domain.Settings
	SaveSettings(ctx context.Context, s domain.Settings) error
	ShowBanner(ctx context.Context, host string) bool
	Rules(ctx context.Context) ([]domain.BlockRule, error)
}

type Server struct {
	verdicts   ports.Verdicts
	reconciler Reconciler
	dispatcher Dispatcher
	settings   SettingsStore
	ws         http.Handler
	origins    []string
}

func New(verdicts ports.Verdicts, reconciler Reconciler, dispatcher Dispatcher, settings SettingsStore, ws http.Handler, allowedOrigins []string) *Server {
	return &Server{
		verdicts:   verdicts,
		reconciler: reconciler,
		dispatcher: dispatcher,
		settings:   settings,
		ws:         ws,
		origins:    allowedOrigins,
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	if s.ws != nil {
		r.Handle("/ws", s.ws)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/scan", s.handle(s.postScan))
		r.Post("/messages", s.handle(s.postMessage))
		r.Get("/verdict", s.handle(s.getVerdict))
		r.Get("/reasons", s.handle(s.getReasons))
		r.Get("/banner", s.handle(s.getBanner))
		r.Get("/rules", s.handle(s.getRules))
		r.Get("/settings", s.handle(s.getSettings))
		r.Put("/settings", s.handle(s.putSettings))
	})
	return r
}

type runtimeError struct {
	code int
	msg  string
}

func (e *runtimeError) Error() string { return e.msg }

func badRequest(msg string) error { return &runtimeError{code: http.StatusBadRequest, msg: msg} }

// handle turns a returned error into a JSON error body: runtimeErrors keep
// their status, anything else is a 500.
func (s *Server) handle(h func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		var re *runtimeError
		if errors.As(err, &re) {
			writeJSON(w, re.code, map[string]string{"error": re.msg})
			return
		}
		zap.L().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Unexpected error", "details": err.Error()})
	}
}

// decodeBody reads a JSON body into v; an empty or malformed body leaves v
// at its zero value.
func decodeBody(r *http.Request, v any) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(body) == 0 {
		return
	}
	if err := json.Unmarshal(body, v); err != nil {
		zap.L().Debug("request body not json", zap.String("path", r.URL.Path), zap.Error(err))
	}
}

func (s *Server) postScan(w http.ResponseWriter, r *http.Request) error {
	var req reconcile.Request
	decodeBody(r, &req)
	res, err := s.reconciler.Scan(r.Context(), req)
	if errors.Is(err, reconcile.ErrMissingURL) {
		return badRequest(reconcile.ErrMissingURL.Error())
	}
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) error {
	var msg dispatch.Message
	decodeBody(r, &msg)
	if msg.Type == "" {
		return badRequest("missing message type")
	}
	resp, err := s.dispatcher.Handle(r.Context(), dispatch.Sender{}, msg)
	if errors.Is(err, dispatch.ErrUnknownMessage) {
		return badRequest(err.Error())
	}
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (s *Server) getVerdict(w http.ResponseWriter, r *http.Request) error {
	target := r.URL.Query().Get("url")
	if target == "" {
		return badRequest("missing url")
	}
	writeJSON(w, http.StatusOK, s.verdicts.Get(r.Context(), target))
	return nil
}

func (s *Server) getReasons(w http.ResponseWriter, r *http.Request) error {
	target := r.URL.Query().Get("url")
	if target == "" {
		return badRequest("missing url")
	}
	entry, ok := s.verdicts.GetReasons(r.Context(), target)
	if !ok {
		return &runtimeError{code: http.StatusNotFound, msg: "no reasons available"}
	}
	writeJSON(w, http.StatusOK, entry)
	return nil
}

func (s *Server) getBanner(w http.ResponseWriter, r *http.Request) error {
	host := strings.TrimSpace(r.URL.Query().Get("host"))
	writeJSON(w, http.StatusOK, map[string]bool{"show": s.settings.ShowBanner(r.Context(), host)})
	return nil
}

func (s *Server) getRules(w http.ResponseWriter, r *http.Request) error {
	rules, err := s.settings.Rules(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rules)
	return nil
}

// getSettings never echoes provider keys back.
func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) error {
	st := s.settings.Settings(r.Context())
	st.Credentials = domain.Credentials{}
	writeJSON(w, http.StatusOK, st)
	return nil
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) error {
	var st domain.Settings
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, &st); err != nil {
		return badRequest("invalid json")
	}
	if err := s.settings.SaveSettings(r.Context(), st); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
