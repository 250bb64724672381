package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/runner"
)

// Options configures a Server.
type Options struct {
	// AppName is the default application for Run messages.
	AppName string
	// ShutdownTimeout bounds graceful shutdown in ListenAndServe.
	ShutdownTimeout time.Duration
	Logger          logging.Logger
}

// Server exposes a Runner over HTTP. Run responses stream frames as
// server-sent events; every other route answers with one JSON document.
type Server struct {
	runner     *runner.Runner
	dispatcher *Dispatcher
	mux        *http.ServeMux
	handler    http.Handler
	opts       Options
}

// New creates a Server for r.
func New(r *runner.Runner, optFns ...func(o *Options)) *Server {
	opts := Options{
		AppName:         "agentrun",
		ShutdownTimeout: 10 * time.Second,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		runner: r,
		dispatcher: NewDispatcher(r, func(o *DispatcherOptions) {
			o.AppName = opts.AppName
			o.Logger = opts.Logger
		}),
		mux:  http.NewServeMux(),
		opts: opts,
	}

	s.routes()
	s.handler = otelhttp.NewHandler(s.mux, "agentrun.server")

	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/apps/{app}/users/{user}/sessions/{session}/run", s.handleRun)
	s.mux.HandleFunc("GET /v1/apps/{app}/users/{user}/sessions/{session}", s.handleGetSession)
	s.mux.HandleFunc("POST /v1/invocations/{id}/cancel", s.handleCancel)
	s.mux.HandleFunc("GET /v1/invocations/{id}/status", s.handleStatus)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

// Handler returns the instrumented HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)

	go func() {
		s.opts.Logger.Info("server.listen", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

type runBody struct {
	NewMessage string `json:"newMessage"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var body runBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if body.NewMessage == "" {
		writeError(w, http.StatusBadRequest, "newMessage is required")
		return
	}

	sse := newSSEWriter(w)

	msg := ClientMessage{
		Type:       MessageRun,
		AppName:    r.PathValue("app"),
		UserID:     r.PathValue("user"),
		SessionID:  r.PathValue("session"),
		NewMessage: body.NewMessage,
	}

	if err := s.dispatcher.Dispatch(r.Context(), msg, sse.frame); err != nil {
		s.opts.Logger.Debug("server.run.stream_closed", "session_id", msg.SessionID, "error", err)
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.ack(w, r, ClientMessage{Type: MessageCancel, InvocationID: r.PathValue("id")})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.ack(w, r, ClientMessage{Type: MessageStatus, InvocationID: r.PathValue("id")})
}

// ack dispatches a single-frame message and writes the frame as JSON.
func (s *Server) ack(w http.ResponseWriter, r *http.Request, msg ClientMessage) {
	_ = s.dispatcher.Dispatch(r.Context(), msg, func(f Frame) error {
		status := http.StatusOK
		if f.Type == FrameError {
			status = http.StatusBadRequest
		}

		return writeJSON(w, status, f)
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	key := core.SessionKey{
		AppName:   r.PathValue("app"),
		UserID:    r.PathValue("user"),
		SessionID: r.PathValue("session"),
	}

	sess, err := s.runner.Sessions().Get(r.Context(), key)
	if errors.Is(err, core.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	if err != nil {
		s.opts.Logger.Error("server.session.get_failed", "session", key.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "session unavailable")

		return
	}

	_ = writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	_ = writeJSON(w, status, map[string]string{"error": msg})
}
