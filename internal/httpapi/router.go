package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Use(WithRequestID, WithLogging, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/", app.rootHandler)
	r.Get("/healthz", app.healthHandler)
	r.Post("/ingest/", app.ingestHandler)
	r.Delete("/catalog/", app.resetCatalogHandler)
	r.With(app.Limiter.Middleware).Post("/query/", app.queryHandler)
	r.With(app.Limiter.Middleware).Post("/voice-query", app.voiceQueryHandler)

	r.Get("/cart/", app.getCartHandler)
	r.Post("/cart/add", app.addCartHandler)
	r.Post("/cart/remove", app.removeCartHandler)
	r.Post("/cart/edit/", app.editCartHandler)

	r.Post("/esewa-payment", app.paymentHandler)
	r.Post("/esewa-verify", app.verifyHandler)

	r.Get("/discount/", app.discountHandler)
	r.Post("/discount/reset", app.resetDiscountHandler)
	r.Get("/history/", app.historyHandler)
	r.Post("/history/save", app.saveHistoryHandler)

	r.Get("/voice/state", app.voiceStateHandler)
	r.Post("/voice/speaking", app.speakingHandler)

	r.Get("/ws/cart", app.cartSocketHandler)
	if app.ImageDir != "" {
		r.Handle("/images/*", http.StripPrefix("/images/", http.FileServer(http.Dir(app.ImageDir))))
	}
	return r
}
