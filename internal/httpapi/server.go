package httpapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/example/bannerdesk/internal/config"
	"github.com/example/bannerdesk/internal/gallery"
	"github.com/example/bannerdesk/internal/leads"
	"github.com/example/bannerdesk/internal/media"
	"github.com/example/bannerdesk/internal/site"
	"github.com/example/bannerdesk/internal/store"
	"github.com/example/bannerdesk/internal/swaggerui"
)

//go:embed openapi.yaml
var openapiSpec []byte

// maxJSONBytes bounds every JSON request body.
const maxJSONBytes = 1 << 20

// Readiness is what /readyz checks. *store.Store satisfies it.
type Readiness interface {
	Ping(ctx context.Context) error
	Tables(ctx context.Context) error
}

type Deps struct {
	Ready    Readiness
	Gallery  *gallery.Service
	Leads    *leads.Service
	Settings *site.Settings
	Catalog  *Catalog
	Sessions *Sessions
}

type Server struct {
	cfg      *config.Config
	ready    Readiness
	gallery  *gallery.Service
	leads    *leads.Service
	settings *site.Settings
	catalog  *Catalog
	sessions *Sessions
	logger   *slog.Logger
	now      func() time.Time
}

type apiError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details *map[string]any `json:"details,omitempty"`
}

type health struct {
	Status string `json:"status"`
}

func NewRouter(cfg *config.Config, deps Deps, logger *slog.Logger) (http.Handler, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	if deps.Catalog == nil {
		deps.Catalog = DefaultCatalog()
	}
	if deps.Sessions == nil {
		sessions, err := NewSessions(cfg.SessionSecret, cfg.SessionTTL)
		if err != nil {
			return nil, err
		}
		deps.Sessions = sessions
	}
	s := &Server{
		cfg:      cfg,
		ready:    deps.Ready,
		gallery:  deps.Gallery,
		leads:    deps.Leads,
		settings: deps.Settings,
		catalog:  deps.Catalog,
		sessions: deps.Sessions,
		logger:   logger,
		now:      time.Now,
	}

	leadLimiter := newIPLimiter(cfg.LeadRatePerMinute)
	loginLimiter := newIPLimiter(cfg.LoginRatePerMinute)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(logger))

	if len(cfg.CORSAllowedOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
			AllowCredentials: true,
		})
		r.Use(c.Handler)
	}

	r.Get("/healthz", s.getHealthz)
	r.Get("/readyz", s.getReadyz)
	r.Get(cfg.OpenAPIPath, s.serveOpenAPI)
	r.Mount(cfg.SwaggerUIPath, swaggerui.Handler(cfg.OpenAPIPath, cfg.SwaggerUIPath))

	// Streams stay open for the lifetime of the client, so they sit outside
	// the request timeout.
	r.Get("/api/banners/stream", s.streamBanners)
	r.With(s.authMiddleware()).Get("/api/admin/customers/stream", s.streamCustomers)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/api/banners", s.listBanners)
		r.Get("/api/policies", s.getPolicies)
		r.Get("/api/options", s.getOptions)
		r.With(leadLimiter.middleware).Post("/api/leads", s.submitLead)
		r.With(loginLimiter.middleware).Post("/api/admin/login", s.login)
		r.Post("/api/admin/logout", s.logout)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(s.authMiddleware())

			r.Get("/customers", s.listCustomers)
			r.Get("/customers/export", s.exportCustomers)
			r.Delete("/customers/{id}", s.deleteCustomer)

			r.Post("/banners", s.uploadBanners)
			r.Post("/banners/reorder", s.reorderBanners)
			r.Delete("/banners/{id}", s.deleteBanner)
			r.Post("/banners/{id}/up", s.moveBannerUp)
			r.Post("/banners/{id}/down", s.moveBannerDown)

			r.Put("/pin", s.changePin)
			r.Put("/policies/privacy", s.updatePrivacyPolicy)
			r.Put("/policies/third-party", s.updateThirdPartyPolicy)
			r.Get("/storage-status", s.getStorageStatus)
		})
	})

	return r, nil
}

func (s *Server) serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapiSpec)
}

func (s *Server) getHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, health{Status: "ok"})
}

func (s *Server) getReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.ready.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "database unreachable", map[string]any{"error": err.Error()})
		return
	}
	if err := s.ready.Tables(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "schema not migrated", map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, health{Status: "ok"})
}

// writeServiceError maps domain errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", action+": not found", nil)
	case errors.Is(err, media.ErrInvalidFile), errors.Is(err, media.ErrInvalidImage):
		writeError(w, http.StatusBadRequest, "invalid_image", err.Error(), nil)
	case errors.Is(err, media.ErrTooLarge):
		writeError(w, http.StatusUnprocessableEntity, "too_large", err.Error(), nil)
	case errors.Is(err, site.ErrEmptyPin):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, store.ErrMissingTable):
		s.logger.Error(action, "err", err, "request_id", middleware.GetReqID(r.Context()))
		writeError(w, http.StatusInternalServerError, "missing_table", "storage is not initialised; run migrations", nil)
	default:
		s.logger.Error(action, "err", err, "request_id", middleware.GetReqID(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal", action+" failed", map[string]any{"error": err.Error()})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json", map[string]any{"error": err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	e := apiError{Code: code, Message: message}
	if details != nil {
		e.Details = &details
	}
	writeJSON(w, status, e)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
