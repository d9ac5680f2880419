package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(s.logger))
	router.Use(s.observe)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/health", s.health)
	if s.deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		r.Post("/ask", s.ask)
		r.Post("/chat", s.chat)
		r.Post("/assistant", s.assistant)
		r.Post("/save", s.save)
		r.Post("/ignore-last", s.ignoreLast)
		r.Post("/search", s.search)

		r.Get("/lists", s.lists)
		r.Post("/goal.create", s.createGoal)
		r.Post("/task.create", s.createTask)
		r.Post("/task.complete", s.completeTask)
		r.Post("/task.reorder", s.reorderTask)
		r.Post("/task.update", s.updateTask)

		r.Get("/contacts", s.searchContacts)
		r.Post("/contacts", s.upsertContact)
		r.Post("/contacts/key-dates", s.addKeyDate)

		r.Get("/turns", s.recentTurns)
		r.Get("/turns/{turnID}", s.turnTranscript)
	})

	return router
}

// requestLogger logs one line per request.
func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("requestID", chimiddleware.GetReqID(r.Context())).
				Msg("HTTP request")
		})
	}
}

// observe records request counts and latency by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.deps.Metrics.ObserveHTTP(r.Method, route, status, time.Since(start))
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"started_at": s.startedAt.UTC().Format(time.RFC3339),
	})
}
