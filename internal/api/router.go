package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kdimtricp/arcwatch/internal/logging"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)
	r.Get("/health", app.HealthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", app.CreateJobHandler)
			r.Get("/", app.ListJobsHandler)
			r.Get("/{jobID}", app.GetJobHandler)
			r.Get("/{jobID}/files", app.ListJobFilesHandler)
			r.Post("/{jobID}/files", app.UploadHandler)
		})
		r.Route("/files/{fileID}", func(r chi.Router) {
			r.Get("/", app.GetFileHandler)
			r.Get("/events", app.ListEventsHandler)
			r.Get("/snapshots", app.ListSnapshotsHandler)
			r.Get("/video", app.StreamVideoHandler)
			r.Post("/reanalyze", app.ReanalyzeHandler)
		})
		r.Get("/snapshots/{snapshotID}/image", app.SnapshotImageHandler)
	})

	return r
}

// requestLogger logs one line per request through the global zerolog logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
