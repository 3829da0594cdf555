// Package httpserver provides the HTTP REST API of the research registry.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/helixir/research-registry-service/internal/bibliometrics"
	"github.com/helixir/research-registry-service/internal/database"
	"github.com/helixir/research-registry-service/internal/importer"
	"github.com/helixir/research-registry-service/internal/registry"
	"github.com/helixir/research-registry-service/internal/storage"
	"github.com/helixir/research-registry-service/internal/temporal"
)

// HealthChecker reports database health.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// JobsClient starts and inspects the background jobs.
type JobsClient interface {
	StartImport(ctx context.Context, input temporal.ImportJobInput) (string, error)
	StartDuplicateScan(ctx context.Context) (string, error)
	Job(ctx context.Context, jobID string) (*temporal.JobStatus, error)
	Cancel(ctx context.Context, jobID string) error
	Health(ctx context.Context) error
}

// IndicatorRefresher refreshes the bibliometric indicators of one person.
type IndicatorRefresher interface {
	RefreshByID(ctx context.Context, personID int64) (*bibliometrics.RefreshReport, error)
}

// FileStore stores the PDF files attached to publications.
type FileStore interface {
	Save(ctx context.Context, kind storage.Kind, publicationID int64, r io.Reader) (*storage.FileInfo, error)
	Open(ctx context.Context, kind storage.Kind, publicationID int64) (afero.File, error)
	Fetch(ctx context.Context, kind storage.Kind, publicationID int64, url string) (*storage.FileInfo, error)
}

// ImportDefaults are the import options applied when a request leaves them out.
type ImportDefaults struct {
	JournalPolicy    importer.VenuePolicy
	ConferencePolicy importer.VenuePolicy
	Similarity       bool
	AllowDuplicates  bool
}

// Deps bundles the services behind the API. Jobs, Refresher and Files are
// optional; their routes answer 503 when they are nil.
type Deps struct {
	Registry  *registry.Service
	Importer  *importer.Importer
	Jobs      JobsClient
	Refresher IndicatorRefresher
	Files     FileStore
	DB        HealthChecker
	Imports   ImportDefaults
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	deps       Deps
	validate   *validator.Validate
	maxBody    int64
	maxImport  int64
	// sseInterval is the poll interval of job event streams.
	sseInterval time.Duration
	logger      zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
	// MaxImportBytes caps bibliography uploads and PDF files.
	MaxImportBytes int64
}

// Default body limits.
const (
	defaultMaxBodyBytes   = 1 << 20
	defaultMaxImportBytes = 16 << 20
)

// NewServer creates a new HTTP server with all dependencies.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		deps:        deps,
		validate:    newValidator(),
		maxBody:     cfg.MaxBodyBytes,
		maxImport:   cfg.MaxImportBytes,
		sseInterval: sseQueryInterval,
		logger:      logger.With().Str("component", "http-server").Logger(),
	}
	if s.maxBody <= 0 {
		s.maxBody = defaultMaxBodyBytes
	}
	if s.maxImport <= 0 {
		s.maxImport = defaultMaxImportBytes
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(s.requestLogMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/persons", func(r chi.Router) {
			r.Get("/", s.listPersons)
			r.Post("/", s.createPerson)
			r.Get("/duplicates", s.findDuplicates)
			r.Post("/merge", s.mergePersons)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getPerson)
				r.Put("/", s.updatePerson)
				r.Delete("/", s.deletePerson)
				r.Get("/publications", s.personPublications)
				r.Get("/memberships", s.listMemberships)
				r.Post("/indicators/refresh", s.refreshIndicators)
			})
		})

		r.Route("/publications", func(r chi.Router) {
			r.Get("/", s.listPublications)
			r.Post("/", s.createPublication)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getPublication)
				r.Put("/", s.updatePublication)
				r.Delete("/", s.deletePublication)
				r.Put("/authors", s.setAuthors)
				r.Post("/transform", s.transformPublication)
				r.Put("/file", s.uploadFile)
				r.Get("/file", s.downloadFile)
			})
		})

		r.Post("/imports", s.importBibliography)
		r.Post("/imports/jobs", s.startImportJob)
		r.Get("/jobs/{id}", s.getJob)
		r.Delete("/jobs/{id}", s.cancelJob)
		r.Get("/jobs/{id}/events", s.streamJob)

		r.Get("/exports", s.exportPublications)

		r.Post("/memberships", s.createMembership)
		r.Delete("/memberships/{id}", s.deleteMembership)

		r.Route("/organizations", func(r chi.Router) {
			r.Get("/", s.listOrganizations)
			r.Post("/", s.createOrganization)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getOrganization)
				r.Get("/subs", s.subOrganizations)
				r.Post("/subs", s.addSubOrganization)
				r.Delete("/subs/{subID}", s.removeSubOrganization)
			})
		})
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	health := s.deps.DB.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status including Temporal connectivity
// when background jobs are enabled.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ready"}
	if s.deps.DB != nil {
		health := s.deps.DB.Health(r.Context())
		resp["database"] = health.Status
		if health.Status != "healthy" {
			resp["status"] = "not_ready"
			resp["error"] = health.Error
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	if s.deps.Jobs != nil {
		if err := s.deps.Jobs.Health(r.Context()); err != nil {
			resp["status"] = "not_ready"
			resp["temporal"] = "unhealthy"
			resp["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["temporal"] = "healthy"
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}
