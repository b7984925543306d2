// Package httpapi exposes task submission and polling over HTTP.
package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/forPelevin/autoclip/internal/media"
	"github.com/forPelevin/autoclip/internal/pipeline"
	"github.com/forPelevin/autoclip/internal/task"
	"github.com/forPelevin/autoclip/internal/types"
)

// Service is the task lifecycle the API fronts.
type Service interface {
	SpoolUpload(ctx context.Context, r io.Reader, filename string) (media.Source, error)
	Submit(sub pipeline.Submission) (pipeline.SubmitResult, error)
	Status(id string) (task.StatusView, error)
	List(kind types.SourceKind) []task.Summary
}

type API struct {
	svc Service
	log zerolog.Logger

	// MaxUploadBytes caps multipart request bodies; 0 disables the cap.
	MaxUploadBytes int64
	// ClipsDir, when set, is served read-only under /clips/.
	ClipsDir string
}

func New(svc Service, log zerolog.Logger) *API {
	return &API{svc: svc, log: log}
}

func NewRouter(api *API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, Logger(api.log))

	// Health
	r.Get("/v1/healthz", api.Health)

	r.Route("/v1/clips", func(r chi.Router) {
		r.Post("/upload", api.SubmitUpload)
		r.Post("/url", api.SubmitURL)
		r.Post("/file", api.SubmitFile)
	})

	r.Route("/v1/tasks", func(r chi.Router) {
		r.Get("/", api.ListTasks)
		r.Get("/{id}", api.GetTask)
	})

	if api.ClipsDir != "" {
		r.Handle("/clips/*", http.StripPrefix("/clips/", http.FileServer(http.Dir(api.ClipsDir))))
	}
	return r
}
