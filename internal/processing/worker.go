package processing

import (
	"context"
	"errors"

	"github.com/thejerf/suture/v4"

	"github.com/kdimtricp/arcwatch/internal/logging"
	"github.com/kdimtricp/arcwatch/internal/queue"
)

// Dequeuer is the consumer side of the ingestion queue.
type Dequeuer interface {
	Dequeue(ctx context.Context) (string, error)
	Len() int
}

// FileProcessor processes one file by ID.
type FileProcessor interface {
	ProcessFile(ctx context.Context, fileID string) error
}

// Worker is the single consumer loop of the ingestion queue. It implements
// suture.Service.
type Worker struct {
	queue     Dequeuer
	processor FileProcessor
	runner    Runner
	name      string
}

func NewWorker(q Dequeuer, p FileProcessor, r Runner) *Worker {
	if r == nil {
		r = NewRunner()
	}
	return &Worker{queue: q, processor: p, runner: r, name: "ingest-worker"}
}

// Serve dequeues and processes files until ctx is cancelled or the queue is
// closed. A failing or panicking file is logged and the loop continues.
func (w *Worker) Serve(ctx context.Context) error {
	log := logging.Component(w.name)
	log.Info().Msg("Worker started")

	for {
		ObserveQueueDepth(w.queue.Len())

		fileID, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				log.Info().Msg("Queue closed, worker stopping")
				return suture.ErrDoNotRestart
			}
			if ctx.Err() != nil {
				log.Info().Msg("Worker stopping")
				return ctx.Err()
			}
			return err
		}

		fileLog := log.With().Str("file_id", fileID).Logger()
		fctx := logging.ContextWithLogger(ctx, fileLog)

		err = w.runner.Run(fctx, func(ctx context.Context) error {
			return w.processor.ProcessFile(ctx, fileID)
		})
		switch {
		case err == nil:
		case ctx.Err() != nil:
			fileLog.Info().Msg("Worker stopping, file abandoned")
			return ctx.Err()
		default:
			fileLog.Error().Err(err).Msg("File processing failed")
		}
	}
}

// String implements fmt.Stringer for suture's logs.
func (w *Worker) String() string {
	return w.name
}
