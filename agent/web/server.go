package web

import (
	"bufio"
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m4xw311/homework-helper/agent"
	"github.com/m4xw311/homework-helper/config"
	"github.com/m4xw311/homework-helper/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// maxQuestionBytes bounds the body of a submission.
const maxQuestionBytes = 64 << 10

// Server serves the question page, the JSON API and the websocket stream.
type Server struct {
	pipeline  *agent.Pipeline
	limiter   *rate.Limiter
	logger    *zap.Logger
	templates *template.Template
	upgrader  websocket.Upgrader
}

type pageView struct {
	Title    string
	Examples []string
}

type askRequest struct {
	Question string `json:"question"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewServer(p *agent.Pipeline, cfg config.ServerConfig, logger *zap.Logger) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse templates")
	}
	return &Server{
		pipeline:  p,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		logger:    logger,
		templates: tmpl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}, nil
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.HandleIndex)
	mux.HandleFunc("POST /api/ask", s.HandleAsk)
	mux.HandleFunc("GET /ws", s.HandleStream)
	mux.HandleFunc("GET /healthz", s.HandleHealth)
	return s.logRequests(mux)
}

// ListenAndServe serves on addr until ctx is done, then shuts down and waits
// up to five seconds for open requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrapf(err, "server failed")
	}
	return nil
}

func (s *Server) HandleIndex(w http.ResponseWriter, r *http.Request) {
	view := pageView{
		Title: "Homework Helper",
		Examples: []string{
			"What is photosynthesis?",
			"How do I solve 2x + 5 = 15?",
			"Compare mitosis and meiosis.",
		},
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index", view); err != nil {
		s.logger.Error("failed to render page", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleAsk answers one question and replies with the finished run.
func (s *Server) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQuestionBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body must be JSON with a question field"})
		return
	}
	if !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many questions, please wait a moment"})
		return
	}

	run, err := s.pipeline.Run(r.Context(), req.Question, agent.ProcessCallbacks{})
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: messageFor(err)})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// statusFor maps a pipeline error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, errors.ErrService), errors.Is(err, errors.ErrEmptyGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageFor is the text shown to the student for err. Configuration and
// service errors keep their detail; the rest use the fixed sentinel text.
func messageFor(err error) string {
	switch {
	case errors.Is(err, errors.ErrEmptyQuestion):
		return errors.ErrEmptyQuestion.Error()
	case errors.Is(err, errors.ErrEmptyGeneration):
		return errors.ErrEmptyGeneration.Error()
	default:
		return err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status = http.StatusSwitchingProtocols
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
