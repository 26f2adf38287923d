package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/MimeLyc/clip-scraper/internal/jobs"
	"github.com/MimeLyc/clip-scraper/internal/twitch"
)

type tokenChecker interface {
	Token(ctx context.Context, forceRefresh bool) (twitch.Token, error)
	Validate(ctx context.Context) bool
}

type artifactStore interface {
	Contains(path string) bool
}

type schedule interface {
	NextRun(ref time.Time) (time.Time, bool)
}

type Server struct {
	engine    *jobs.Engine
	tokens    tokenChecker
	artifacts artifactStore
	schedule  schedule

	allowedOrigin  string
	streamInterval time.Duration

	router *httprouter.Router
	server *http.Server
}

type Option func(*Server)

// WithTokens enables the health check. Without it the service reports itself unconfigured.
func WithTokens(tokens tokenChecker) Option {
	return func(s *Server) {
		s.tokens = tokens
	}
}

// WithArtifacts restricts downloads to files owned by the store.
func WithArtifacts(store artifactStore) Option {
	return func(s *Server) {
		s.artifacts = store
	}
}

func WithSchedule(sched schedule) Option {
	return func(s *Server) {
		s.schedule = sched
	}
}

func WithAllowedOrigin(origin string) Option {
	return func(s *Server) {
		s.allowedOrigin = origin
	}
}

func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamInterval = d
		}
	}
}

func NewServer(engine *jobs.Engine, opts ...Option) *Server {
	s := &Server{
		engine:         engine,
		streamInterval: time.Second,
		router:         httprouter.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return &corsHandler{router: s.router, origin: s.allowedOrigin}
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.router.GET("/api/health", s.handleHealth)
	s.router.GET("/api/presets", s.handleListPresets)
	s.router.GET("/api/presets/:name", s.handleGetPreset)
	s.router.POST("/api/scrape/top-clips", s.handleTopClips)
	s.router.POST("/api/scrape/channel-highlights", s.handleChannelHighlights)
	s.router.GET("/api/jobs", s.handleListJobs)
	s.router.GET("/api/jobs/:id", s.handleGetJob)
	s.router.DELETE("/api/jobs/:id", s.handleDeleteJob)
	s.router.GET("/api/jobs/:id/download", s.handleDownload)
	s.router.GET("/api/stream/jobs", s.handleJobStream)

	s.router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

type corsHandler struct {
	router *httprouter.Router
	origin string
}

func (h *corsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", h.origin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.router.ServeHTTP(w, r)
}
