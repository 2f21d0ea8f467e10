package server

import (
	"net/http"

	"github.com/cloo-solutions/kbindex/internal/api"
	"github.com/cloo-solutions/kbindex/internal/api/handlers"
	"github.com/cloo-solutions/kbindex/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	IndexHandler    *handlers.IndexHandler
	IndexJobHandler *handlers.IndexJobHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/entities/{entityID}", func(r chi.Router) {
		r.Put("/index", cfg.IndexHandler.Index)
		r.Delete("/index", cfg.IndexHandler.Delete)
		r.Get("/records", cfg.IndexHandler.Records)

		r.Post("/index-jobs", cfg.IndexJobHandler.Enqueue)
		r.Get("/index-jobs", cfg.IndexJobHandler.List)
	})

	r.Get("/index-jobs/{id}", cfg.IndexJobHandler.Get)
	r.Post("/namespaces/delete", cfg.IndexHandler.DeleteNamespace)

	return r
}
