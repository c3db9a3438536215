package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"storyreel/internal/http/handlers"
	"storyreel/internal/middleware"
)

// NewRouter assembles the API surface. Everything under /api requires a
// bearer token except the token exchange itself.
func NewRouter(app *handlers.App, countryLookup middleware.CountryLookup) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(app.Config.CORSOrigins),
		middleware.Locale("en", countryLookup),
		middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute),
	)

	r.Get("/v1/healthz", app.Health)

	r.Post("/api/auth/token", app.AuthToken)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(app.Config.JWTSecret))

		r.Get("/api/me", app.Me)

		r.Route("/api/credits", func(r chi.Router) {
			r.Get("/", app.CreditsBalance)
			r.Get("/transactions", app.CreditsTransactions)
		})

		// Flat aliases matching the original client, next to the REST
		// scene routes below. Both shapes hit the same handlers.
		r.Post("/api/parse-scenes", app.ScenesParse)
		r.Post("/api/generate-image-prompt", app.GenerateImagePrompt)
		r.Post("/api/generate-images", app.GenerateImages)
		r.Post("/api/describe-image", app.DescribeImage)
		r.Post("/api/generate-video", app.GenerateVideo)
		r.Post("/api/check-video-status", app.CheckVideoStatus)

		r.Post("/api/scenes/parse", app.ScenesParse)
		r.Route("/api/scenes/{scene_id}", func(r chi.Router) {
			r.Get("/", app.SceneGet)
			r.Patch("/", app.SceneUpdate)
			r.Delete("/", app.SceneDelete)
			r.Post("/image-prompt", app.SceneImagePrompt)
			r.Post("/images", app.SceneImages)
			r.Post("/select-image", app.SceneSelectImage)
			r.Post("/video-prompt", app.SceneVideoPrompt)
			r.Post("/video", app.SceneVideo)
			r.Get("/video", app.SceneVideoStatus)
		})

		r.Route("/api/sessions/{session_id}", func(r chi.Router) {
			r.Get("/scenes", app.SessionScenes)
			r.Post("/scenes", app.SessionAddScene)
			r.Get("/export", app.SessionExport)
		})
	})

	return r
}
