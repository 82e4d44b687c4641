package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kdimtricp/arcwatch/internal/api"
	"github.com/kdimtricp/arcwatch/internal/config"
	"github.com/kdimtricp/arcwatch/internal/database"
	"github.com/kdimtricp/arcwatch/internal/logging"
	"github.com/kdimtricp/arcwatch/internal/processing"
	"github.com/kdimtricp/arcwatch/internal/queue"
	"github.com/kdimtricp/arcwatch/internal/storage"
	"github.com/kdimtricp/arcwatch/internal/supervisor"
	"github.com/kdimtricp/arcwatch/internal/vision"
	"github.com/kdimtricp/arcwatch/internal/vision/cvops"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging)

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logging.Fatal().Err(err).Msg("Failed to run migrations")
	}

	uploads, err := storage.NewLocalStorage(cfg.Storage.UploadDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize upload storage")
	}
	images, err := storage.NewLocalStorage(cfg.Storage.SnapshotDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize snapshot storage")
	}

	jobs := database.NewJobRepository(db)
	files := database.NewFileRepository(db)
	events := database.NewEventRepository(db)
	snapshots := database.NewSnapshotRepository(db)

	var prober processing.MediaProber
	if cfg.Worker.FFProbe {
		if p, err := vision.NewProbe(""); err != nil {
			logging.Warn().Err(err).Msg("ffprobe unavailable, unknown frame rates fall back to the default")
		} else {
			prober = p
		}
	}

	processor := processing.NewProcessor(processing.Dependencies{
		Files:     files,
		Events:    events,
		Snapshots: snapshots,
		Progress:  jobs,
		Videos:    uploads,
		Images:    images,
		Decoder:   cvops.Decoder{},
		Analyzer:  cvops.NewAnalyzer(cfg.Detection),
		Prober:    prober,
	}, processing.Options{
		Detection:        cfg.Detection,
		SnapshotsPerFile: cfg.Worker.SnapshotsPerFile,
		FrameKeepMs:      cfg.Worker.FrameKeepMs,
	})

	q := queue.New(cfg.Queue.Capacity)
	defer q.Close()

	app := &api.App{
		Uploads:       uploads,
		Images:        images,
		Jobs:          jobs,
		Files:         files,
		Events:        events,
		Snapshots:     snapshots,
		Queue:         q,
		Reanalyzer:    processor,
		DB:            db,
		MaxUploadSize: cfg.Server.MaxUploadSize,
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(app),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddProcessingService(processing.NewWorker(q, processor, nil))
	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("addr", server.Addr).
		Str("db", db.Type()).
		Int("queue_capacity", q.Cap()).
		Msg("Starting arcwatch")

	done := tree.ServeBackground(ctx)

	if cfg.Worker.RequeueOnStart {
		// The worker is already draining, so a backlog larger than the queue
		// only blocks this goroutine.
		go func() {
			if _, err := processing.RequeueUnfinished(ctx, files, q); err != nil && ctx.Err() == nil {
				logging.Error().Err(err).Msg("Failed to requeue unfinished files")
			}
		}()
	}

	err = <-done
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor stopped with error")
	}
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, s := range report {
			logging.Warn().Str("service", s.Name).Msg("Service did not stop in time")
		}
	}
	logging.Info().Msg("Shutdown complete")
}
