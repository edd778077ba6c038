package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/blessandsoul/glow-server/internal/http/handlers"
	"github.com/blessandsoul/glow-server/internal/infra"
	"github.com/blessandsoul/glow-server/internal/middleware"
)

// NewRouter assembles the HTTP surface.
func NewRouter(app *handlers.App, cfg *infra.Config, logger zerolog.Logger, geo middleware.CountryLookup) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.CORS(cfg.CORSOrigins),
		middleware.RateLimit(cfg.RateLimitPerMin, time.Minute),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		// Guest-reachable surface: trial submission plus polling/download by
		// id. Ownership checks happen inside the handlers.
		r.With(middleware.Geo(geo)).Post("/guest", app.JobsCreateGuest)
		r.Get("/{job_id}", app.JobGet)
		r.Get("/{job_id}/download", app.JobDownload)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(cfg.JWTSecret))
			r.Post("/", app.JobsCreate)
			r.Post("/batch", app.JobsCreateBatch)
			r.Get("/", app.JobsList)
			r.Get("/stats", app.JobsStats)
			r.Get("/daily-usage", app.DailyUsage)
			r.Delete("/{job_id}", app.JobDelete)
			r.Post("/bulk-delete", app.JobsBulkDelete)
		})
	})

	// Stored originals and results for development deployments.
	r.Handle("/static/*", stdhttp.StripPrefix("/static/", stdhttp.FileServer(stdhttp.Dir(cfg.StoragePath))))

	return r
}
