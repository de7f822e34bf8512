package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/soochol/connreg/internal/metrics"
	"github.com/soochol/connreg/internal/services"
)

type Server struct {
	connectionSvc *services.ConnectionService
	metrics       *metrics.Metrics
	allowOrigins  []string
}

func NewServer(connectionSvc *services.ConnectionService) *Server {
	return &Server{
		connectionSvc: connectionSvc,
		allowOrigins:  []string{"*"},
	}
}

// SetMetrics enables operation metrics and the /metrics endpoint.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetAllowedOrigins restricts CORS to the given origins.
func (s *Server) SetAllowedOrigins(origins []string) {
	if len(origins) > 0 {
		s.allowOrigins = origins
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/connections", func(r chi.Router) {
			r.Post("/", s.createConnection)
			r.Get("/", s.listConnections)
			r.Get("/defaults", s.defaultConnections)
			r.Get("/{id}", s.getConnection)
			r.Put("/{id}", s.updateConnection)
			r.Patch("/{id}", s.updateConnection)
			r.Delete("/{id}", s.deleteConnection)
		})
	})

	return r
}
