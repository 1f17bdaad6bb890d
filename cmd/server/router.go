package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lightlogic3/popflow/internal/api"
	apimiddleware "github.com/lightlogic3/popflow/internal/api/middleware"
)

// setupRouter builds the HTTP routing table with its middleware chain.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	gameHandler := api.NewGameHandler(app.engine)
	cleanupMaxAge := 60 * time.Minute
	if app.config.Task.CleanupMaxAgeMinutes > 0 {
		cleanupMaxAge = time.Duration(app.config.Task.CleanupMaxAgeMinutes) * time.Minute
	}
	taskHandler := api.NewTaskHandler(app.manager, cleanupMaxAge)
	jobHandler := api.NewJobHandler(app.scheduler)
	authMiddleware := apimiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/game/init", gameHandler.Init)
			r.Post("/game/chat", gameHandler.Chat)

			r.Get("/tasks", taskHandler.List)
			r.Get("/tasks/{id}", taskHandler.Get)
			r.Post("/tasks/{id}/cancel", taskHandler.Cancel)
			r.Post("/tasks/cleanup", taskHandler.Cleanup)

			r.Post("/jobs", jobHandler.Create)
			r.Get("/jobs", jobHandler.List)
			r.Get("/jobs/{id}", jobHandler.Get)
			r.Get("/jobs/{id}/runs", jobHandler.Runs)
			r.Delete("/jobs/{id}", jobHandler.Remove)
			r.Post("/jobs/{id}/pause", jobHandler.Pause)
			r.Post("/jobs/{id}/resume", jobHandler.Resume)
			r.Post("/jobs/{id}/trigger", jobHandler.Trigger)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
