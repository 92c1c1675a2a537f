package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/exam-engine/internal/config"
	"github.com/terra-clan/exam-engine/internal/languages"
	"github.com/terra-clan/exam-engine/internal/session"
)

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	sessions       *session.Manager
	catalog        *languages.Catalog
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	sessions *session.Manager,
	catalog *languages.Catalog,
) *Server {
	s := &Server{
		config:         cfg,
		sessions:       sessions,
		catalog:        catalog,
		authMiddleware: NewAuthMiddleware(cfg.APIKey),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	// Session events stream (websocket; token-less, session id is the handle)
	r.Get("/ws/sessions/{id}/events", s.handleSessionEventsWS)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware.Authenticate)

		r.Get("/languages", s.handleListLanguages)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/next", s.handleNextQuestion)
				r.Post("/previous", s.handlePreviousQuestion)
				r.Post("/submit", s.handleSubmitSession)
				r.Put("/answers/{questionID}", s.handleRecordAnswer)

				r.Route("/questions/{questionID}", func(r chi.Router) {
					r.Get("/workspace", s.handleGetWorkspace)
					r.Post("/workspace/files", s.handleAddFile)
					r.Delete("/workspace/files/{name}", s.handleDeleteFile)
					r.Post("/workspace/files/{name}/rename", s.handleRenameFile)
					r.Put("/workspace/files/{name}/content", s.handleUpdateFileContent)
					r.Put("/workspace/active-file", s.handleSetActiveFile)
					r.Put("/workspace/language", s.handleSetLanguage)
					r.Get("/attachments", s.handleListAttachments)
					r.Post("/attachments", s.handleUploadAttachment)
					r.Post("/run", s.handleRun)
					r.Get("/result", s.handleGetRunResult)
				})
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
