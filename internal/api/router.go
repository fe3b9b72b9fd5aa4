package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router, passed from main so CORS
// and auth come from the environment.
type RouterConfig struct {
	// BackendAPIKey must be provided by clients in X-API-Key or
	// Authorization: Bearer <key>. Empty skips auth (development mode).
	BackendAPIKey string

	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// Empty defaults to "*" (development mode).
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	allowedOrigins := []string{"*"}
	if cfg.CorsAllowedOrigins != "" {
		origins := strings.Split(cfg.CorsAllowedOrigins, ",")
		trimmed := make([]string, 0, len(origins))
		for _, o := range origins {
			if s := strings.TrimSpace(o); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			allowedOrigins = trimmed
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check — public, no auth required
	r.Get("/health", h.Health)

	r.Route("/v1", func(r chi.Router) {
		if cfg.BackendAPIKey != "" {
			r.Use(APIKeyAuth(cfg.BackendAPIKey))
		}

		r.Post("/projects", h.CreateProject)

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Get("/", h.GetProject)

			// Renders
			r.Get("/videos", h.ListVideos)
			r.Post("/videos/render", h.RenderVideo)
			r.Get("/videos/{videoID}", h.GetVideo)
			r.Get("/videos/{videoID}/download", h.GetVideoDownload)

			// Narrative drafting
			r.Post("/narratives/generate", h.GenerateNarrative)

			// Photo analysis
			r.Post("/content/{contentID}/analyze", h.AnalyzeContent)
		})
	})

	return r
}
