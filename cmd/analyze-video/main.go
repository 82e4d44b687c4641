// Command analyze-video processes one stored file synchronously, outside the
// server's queue, and prints the resulting events.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/kdimtricp/arcwatch/internal/config"
	"github.com/kdimtricp/arcwatch/internal/database"
	"github.com/kdimtricp/arcwatch/internal/logging"
	"github.com/kdimtricp/arcwatch/internal/processing"
	"github.com/kdimtricp/arcwatch/internal/storage"
	"github.com/kdimtricp/arcwatch/internal/vision"
	"github.com/kdimtricp/arcwatch/internal/vision/cvops"
)

func main() {
	var (
		fileID    = flag.String("id", "", "File ID to analyze")
		reanalyze = flag.Bool("reanalyze", false, "Clear previous results of a finished file first")
	)
	flag.Parse()

	if *fileID == "" {
		fmt.Fprintln(os.Stderr, "Please provide a file ID with -id")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging)

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	uploads, err := storage.NewLocalStorage(cfg.Storage.UploadDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open upload storage")
	}
	images, err := storage.NewLocalStorage(cfg.Storage.SnapshotDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open snapshot storage")
	}

	files := database.NewFileRepository(db)
	events := database.NewEventRepository(db)

	deps := processing.Dependencies{
		Files:     files,
		Events:    events,
		Snapshots: database.NewSnapshotRepository(db),
		Progress:  database.NewJobRepository(db),
		Videos:    uploads,
		Images:    images,
		Decoder:   cvops.Decoder{},
		Analyzer:  cvops.NewAnalyzer(cfg.Detection),
	}
	if cfg.Worker.FFProbe {
		if p, err := vision.NewProbe(""); err == nil {
			deps.Prober = p
		}
	}
	processor := processing.NewProcessor(deps, processing.Options{
		Detection:        cfg.Detection,
		SnapshotsPerFile: cfg.Worker.SnapshotsPerFile,
		FrameKeepMs:      cfg.Worker.FrameKeepMs,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *reanalyze {
		if err := processor.Reanalyze(ctx, *fileID); err != nil {
			logging.Fatal().Err(err).Msg("Failed to reset file")
		}
	}
	if err := processor.ProcessFile(ctx, *fileID); err != nil {
		logging.Fatal().Err(err).Msg("Processing failed")
	}

	f, err := files.Get(ctx, *fileID)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load file")
	}
	fmt.Printf("File %s (%s): %s %s\n", f.ID, f.OriginalName, f.Status, f.Message)

	list, err := events.ListByFile(ctx, *fileID)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to list events")
	}
	for _, ev := range list {
		fmt.Printf("  #%d %-5s %7.2fs-%7.2fs peak %7.2fs conf %.2f\n",
			ev.Sequence, ev.Type, ev.StartTimeSec, ev.EndTimeSec, ev.PeakTimeSec, ev.Confidence)
	}
}
