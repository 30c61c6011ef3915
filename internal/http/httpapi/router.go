package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"adminpanel/internal/http/handlers"
	"adminpanel/internal/infra"
	"adminpanel/internal/infra/geoip"
	"adminpanel/internal/middleware"
)

// NewRouter mounts the API under /v1. Everything except health, docs and the
// static image route requires a bearer token.
func NewRouter(app *handlers.App, cfg *infra.Config, logger zerolog.Logger, geo geoip.CountryResolver) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(logger, geo),
		chimw.Recoverer,
		middleware.CORS(cfg.CORSAllowedOrigins),
	)

	r.Get("/static/"+cfg.StorageBucket+"/*", app.ServeObject)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.Get("/openapi.json", app.OpenAPIJSON)
		r.Get("/docs", app.OpenAPIDocs)

		r.Group(func(r chi.Router) {
			r.Use(
				middleware.AuthJWT(cfg.JWTSecret),
				middleware.RateLimit(cfg.RateLimitPerMin, time.Minute),
			)

			r.Post("/generate", app.Generate)
			r.Post("/generate/download", app.DownloadURL)

			r.Route("/characters/{character_id}", func(r chi.Router) {
				r.Get("/images", app.ListImages)
				r.Get("/images.zip", app.ExportImages)
				r.Get("/references", app.ListReferences)
			})
			r.Patch("/images/{image_id}/archive", app.ArchiveImage)
		})
	})

	return r
}
