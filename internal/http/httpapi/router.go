// Package httpapi wires the handlers and middleware into the chi router.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aruniapsara/DrapeStudio/internal/http/handlers"
	"github.com/aruniapsara/DrapeStudio/internal/infra/geoip"
	"github.com/aruniapsara/DrapeStudio/internal/middleware"
)

func NewRouter(app *handlers.App, resolver geoip.CountryResolver) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(*app.Logger),
		middleware.CORS(app.Config.AllowedOrigins),
		middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute),
		middleware.Session(app.Config.AppEnv == "production"),
		middleware.Geo(resolver),
	)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)

		r.Route("/uploads", func(r chi.Router) {
			r.Post("/sign", app.UploadsSign)
			r.Put("/direct/{session}/{filename}", app.UploadsDirect)
			r.Post("/direct/{session}/{filename}", app.UploadsDirect)
		})
		r.Get("/files/*", app.FilesServe)

		r.Route("/generations", func(r chi.Router) {
			r.Post("/", app.GenerationsCreate)
			r.Get("/{id}", app.GenerationStatus)
			r.Get("/{id}/outputs", app.GenerationOutputs)
			r.Get("/{id}/outputs.zip", app.GenerationOutputsZip)
			r.Post("/{id}/regenerate", app.GenerationRegenerate)
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/", app.History)
			r.Delete("/{id}", app.HistoryDelete)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(app.RequireAdmin)
			r.Get("/reports/usage", app.AdminUsageReport)
		})
	})

	return r
}
