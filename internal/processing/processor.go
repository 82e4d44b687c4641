// Package processing runs the per-video detection unit and the worker that
// feeds it from the ingestion queue.
package processing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/kdimtricp/arcwatch/internal/detect"
	"github.com/kdimtricp/arcwatch/internal/evidence"
	"github.com/kdimtricp/arcwatch/internal/logging"
	"github.com/kdimtricp/arcwatch/internal/models"
	"github.com/kdimtricp/arcwatch/internal/vision"
)

const (
	// DefaultFPS is assumed when neither the container nor ffprobe reports a rate.
	DefaultFPS = 25.0
	maxFPS     = 1000.0
)

var (
	// ErrFileBusy is returned by Reanalyze while the file is being processed.
	ErrFileBusy = errors.New("file is being processed")

	errNoFrames = errors.New("no decodable frames")
)

// Dependencies wires a Processor to its collaborators. Prober may be nil.
type Dependencies struct {
	Files     FileStore
	Events    EventStore
	Snapshots SnapshotStore
	Progress  ProgressRecorder
	Videos    VideoPaths
	Images    SnapshotFiles
	Decoder   vision.Decoder
	Analyzer  vision.Analyzer
	Prober    MediaProber
}

// Options tune a Processor.
type Options struct {
	Detection        detect.AlgorithmConfig
	SnapshotsPerFile int
	FrameKeepMs      int64
}

// Processor is the per-video processing unit. Every piece of per-file state
// lives in a fileRun, so one Processor may serve files sequentially.
type Processor struct {
	deps   Dependencies
	opts   Options
	runner Runner
}

func NewProcessor(deps Dependencies, opts Options) *Processor {
	opts.Detection = opts.Detection.Clamp()
	if opts.SnapshotsPerFile <= 0 {
		opts.SnapshotsPerFile = evidence.DefaultK
	}
	return &Processor{deps: deps, opts: opts, runner: NewRunner()}
}

// ProcessFile analyzes one uploaded video. Decode failures mark the file
// failed; cancellation leaves it as last committed and returns ctx.Err().
// Both terminal outcomes enforce the snapshot bound and record job progress
// exactly once.
func (p *Processor) ProcessFile(ctx context.Context, fileID string) error {
	log := logging.With().Str("file_id", fileID).Logger()
	ctx = logging.ContextWithLogger(ctx, log)

	file, err := p.deps.Files.Get(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to load file %s: %w", fileID, err)
	}
	if file.Terminal() {
		log.Info().Str("status", file.Status).Msg("File already processed, skipping")
		return nil
	}

	log = log.With().Str("job_id", file.JobID).Logger()
	ctx = logging.ContextWithLogger(ctx, log)

	// A file left in processing was interrupted; its partial results are
	// discarded so the rerun starts clean.
	if file.Status == models.FileStatusProcessing {
		log.Warn().Msg("Resuming interrupted file, clearing partial results")
		if err := p.clearResults(ctx, file.ID); err != nil {
			persistenceErrors.WithLabelValues("clear_results").Inc()
			log.Error().Err(err).Msg("Failed to clear partial results, continuing")
		}
	}

	// The terminal write in finish still happens if this one fails.
	if err := p.deps.Files.UpdateStatus(ctx, fileID, models.FileStatusProcessing, ""); err != nil {
		persistenceErrors.WithLabelValues("file_status").Inc()
		log.Error().Err(err).Msg("Failed to mark file processing, continuing")
	}

	start := time.Now()
	log.Info().Str("name", file.OriginalName).Msg("Processing file")

	var summary runSummary
	err = p.runner.Run(ctx, func(ctx context.Context) error {
		var err error
		summary, err = p.analyze(ctx, file)
		return err
	})
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		log.Info().Msg("Processing cancelled")
		return err
	}

	if err != nil {
		log.Error().Err(err).Msg("Processing failed")
		p.finish(ctx, file, models.FileStatusFailed, err.Error())
		fileDuration.Observe(time.Since(start).Seconds())
		return err
	}

	p.finish(ctx, file, models.FileStatusDone, "")
	fileDuration.Observe(time.Since(start).Seconds())
	log.Info().
		Object("summary", summary).
		Dur("elapsed", time.Since(start)).
		Msg("Processing finished")
	return nil
}

// finish performs the terminal bookkeeping. It runs on a context detached
// from cancellation so a shutdown cannot leave a half-finished file.
func (p *Processor) finish(ctx context.Context, file *models.File, status, message string) {
	log := logging.Ctx(ctx)
	ctx = context.WithoutCancel(ctx)

	if _, err := EnforceTopK(ctx, p.deps.Snapshots, p.deps.Images, file.ID, p.opts.SnapshotsPerFile); err != nil {
		log.Error().Err(err).Msg("Failed to enforce snapshot limit")
	}

	if err := p.deps.Files.UpdateStatus(ctx, file.ID, status, message); err != nil {
		log.Warn().Err(err).Str("status", status).Msg("Failed to update file status, retrying")
		if err := p.deps.Files.UpdateStatus(ctx, file.ID, status, message); err != nil {
			persistenceErrors.WithLabelValues("file_status").Inc()
			log.Error().Err(err).Str("status", status).Msg("Failed to update file status")
		}
	}
	filesProcessed.WithLabelValues(status).Inc()

	if err := p.deps.Progress.RecomputeProgress(ctx, file.JobID); err != nil {
		log.Error().Err(err).Msg("Failed to recompute job progress")
	}
}

type runSummary struct {
	sampled   int
	events    int
	snapshots int
}

// fileRun holds the state private to one file's processing.
type fileRun struct {
	file     *models.File
	detector *detect.Detector
	merger   *detect.EventMerger
	ring     *evidence.FrameRing
	keeper   *snapshotKeeper
	summary  runSummary
}

func (p *Processor) analyze(ctx context.Context, file *models.File) (runSummary, error) {
	log := logging.Ctx(ctx)

	path, err := p.deps.Videos.Path(file.StoredName)
	if err != nil {
		return runSummary{}, fmt.Errorf("invalid stored file: %w", err)
	}
	src, err := p.deps.Decoder.Open(path)
	if err != nil {
		return runSummary{}, fmt.Errorf("failed to open video: %w", err)
	}
	defer src.Close()

	info := src.Info()
	fps := p.frameRate(ctx, path, info.FPS)
	duration := p.duration(ctx, path, info.FrameCount, fps)
	if err := p.deps.Files.UpdateMedia(ctx, file.ID, fps, info.FrameCount, duration); err != nil {
		persistenceErrors.WithLabelValues("file_media").Inc()
		log.Warn().Err(err).Msg("Failed to record media info")
	}

	cfg := p.opts.Detection
	step := SampleStep(fps, cfg.SampleFps)
	log.Debug().Float64("fps", fps).Int("step", step).Int("frames", info.FrameCount).Msg("Decoding video")

	run := p.newRun(ctx, file, fps, step)

	var prev vision.Plane
	defer func() {
		if prev != nil {
			prev.Close()
		}
	}()

	decoded := 0
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return run.summary, err
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, vision.ErrBadFrame) {
			framesSkipped.Inc()
			continue
		}
		if err != nil {
			return run.summary, fmt.Errorf("failed to decode frame %d: %w", index, err)
		}
		decoded++

		if index%step != 0 {
			frame.Close()
			continue
		}

		plane, ok := p.sample(ctx, run, frame, index, fps, prev)
		frame.Close()
		if !ok {
			continue
		}
		if prev != nil {
			prev.Close()
		}
		prev = plane
	}

	if decoded == 0 {
		return run.summary, errNoFrames
	}

	p.handleOutcome(ctx, run, run.detector.Flush())
	return run.summary, nil
}

// newRun sets up the per-file state. Read failures fall back to an empty
// seed; the end-of-video Top-K pass still bounds the snapshot count.
func (p *Processor) newRun(ctx context.Context, file *models.File, fps float64, step int) *fileRun {
	log := logging.Ctx(ctx)

	lastSeq, err := p.deps.Events.MaxSequence(ctx, file.ID)
	if err != nil {
		persistenceErrors.WithLabelValues("event").Inc()
		log.Error().Err(err).Msg("Failed to load event sequence, starting at 0")
		lastSeq = 0
	}

	return &fileRun{
		file:     file,
		detector: detect.NewDetector(p.opts.Detection, fps),
		merger:   detect.NewEventMerger(p.opts.Detection.MergeGapSec, lastSeq),
		ring:     evidence.NewFrameRing(fps/float64(step), p.opts.FrameKeepMs),
		keeper:   newSnapshotKeeper(ctx, file.ID, p.opts.SnapshotsPerFile, p.deps.Snapshots, p.deps.Images),
	}
}

// sample runs one sampled frame through the detector. It returns the
// prepared plane, which becomes the previous plane for the next sample.
func (p *Processor) sample(ctx context.Context, run *fileRun, frame vision.Frame, index int, fps float64, prev vision.Plane) (vision.Plane, bool) {
	log := logging.Ctx(ctx)
	an := p.deps.Analyzer

	plane, err := an.Prepare(frame)
	if err != nil {
		framesSkipped.Inc()
		log.Debug().Err(err).Int("frame", index).Msg("Skipping frame")
		return nil, false
	}
	st, err := an.Measure(plane)
	if err != nil {
		plane.Close()
		framesSkipped.Inc()
		log.Debug().Err(err).Int("frame", index).Msg("Skipping frame")
		return nil, false
	}

	ts := FrameTimestampMs(index, fps)
	obs := detect.Observation{
		FrameIndex:  index,
		TimestampMs: ts,
		Width:       frame.Width(),
		Height:      frame.Height(),
		Mean:        st.Mean,
		Std:         st.Std,
		BrightRatio: st.BrightRatio,
	}

	var find detect.RegionFinder
	if prev != nil {
		find = func() (detect.Region, bool) {
			return an.LargestChange(prev, plane)
		}
	}

	res := run.detector.Step(obs, find)
	framesSampled.Inc()
	run.summary.sampled++

	if jpeg, err := an.Encode(frame); err == nil {
		run.ring.Push(evidence.Frame{
			FrameIndex:  index,
			TimestampMs: ts,
			Width:       frame.Width(),
			Height:      frame.Height(),
			JPEG:        jpeg,
		})
	} else {
		log.Debug().Err(err).Int("frame", index).Msg("Failed to encode frame")
	}

	p.handleOutcome(ctx, run, res)
	return plane, true
}

func (p *Processor) handleOutcome(ctx context.Context, run *fileRun, res detect.StepResult) {
	if res.Outcome == detect.OutcomeNone {
		return
	}
	pulseOutcomes.WithLabelValues(res.Outcome.String()).Inc()

	log := logging.Ctx(ctx)
	switch res.Outcome {
	case detect.OutcomeConfirmed:
		p.onConfirmed(ctx, run, res.Result)
	case detect.OutcomeRejected:
		log.Debug().Int64("peak_ms", res.Result.Peak.TimestampMs).
			Str("reason", rejectReason(res.Result)).Msg("Pulse rejected")
	case detect.OutcomeSustained:
		log.Debug().Int64("at_ms", res.Sample.TimestampMs).Msg("Sustained light, pulse abandoned")
	}
}

func (p *Processor) onConfirmed(ctx context.Context, run *fileRun, r detect.ConfirmResult) {
	log := logging.Ctx(ctx)

	state, created := run.merger.Add(detect.PulseFromResult(r))
	ev := models.EventFromState(run.file.ID, state)

	if created {
		if err := p.deps.Events.Create(ctx, ev); err != nil {
			persistenceErrors.WithLabelValues("event").Inc()
			log.Error().Err(err).Str("event_id", ev.ID).Msg("Failed to create event")
			run.merger.Drop()
			return
		}
		run.summary.events++
		eventsWritten.WithLabelValues("created", ev.Type).Inc()
	} else {
		if err := p.deps.Events.Update(ctx, ev); err != nil {
			persistenceErrors.WithLabelValues("event").Inc()
			log.Error().Err(err).Str("event_id", ev.ID).Msg("Failed to update event")
		} else {
			eventsWritten.WithLabelValues("merged", ev.Type).Inc()
		}
	}

	log.Info().
		Str("event_id", ev.ID).
		Str("type", ev.Type).
		Float64("peak_sec", float64(r.Peak.TimestampMs)/1000).
		Float64("confidence", r.Confidence).
		Bool("merged", !created).
		Msg("Pulse confirmed")

	frame, ok := run.ring.Nearest(r.Peak.TimestampMs)
	if !ok {
		log.Warn().Str("event_id", ev.ID).Msg("No buffered frame for snapshot")
		return
	}

	jpeg, err := p.deps.Analyzer.Annotate(frame.JPEG, r.Box)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to annotate snapshot, storing plain frame")
		jpeg = frame.JPEG
	}

	snap := models.NewSnapshot(run.file.ID, ev.ID)
	snap.TimeSec = float64(frame.TimestampMs) / 1000
	snap.FrameIndex = frame.FrameIndex
	snap.Width = frame.Width
	snap.Height = frame.Height
	snap.Confidence = r.Confidence
	if run.keeper.keep(ctx, snap, jpeg) {
		run.summary.snapshots++
	}
}

// Reanalyze clears a file's events and snapshots and resets it to pending.
// The caller is responsible for enqueueing it again.
func (p *Processor) Reanalyze(ctx context.Context, fileID string) error {
	log := logging.With().Str("file_id", fileID).Logger()
	ctx = logging.ContextWithLogger(ctx, log)

	file, err := p.deps.Files.Get(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to load file %s: %w", fileID, err)
	}
	if file.Status == models.FileStatusProcessing {
		return ErrFileBusy
	}

	if err := p.clearResults(ctx, fileID); err != nil {
		return err
	}
	if err := p.deps.Files.UpdateStatus(ctx, fileID, models.FileStatusPending, ""); err != nil {
		return fmt.Errorf("failed to reset file status: %w", err)
	}
	if err := p.deps.Progress.RecomputeProgress(ctx, file.JobID); err != nil {
		log.Warn().Err(err).Msg("Failed to recompute job progress")
	}

	log.Info().Msg("File reset for reanalysis")
	return nil
}

// clearResults deletes the events and snapshots (images and rows) of a file.
func (p *Processor) clearResults(ctx context.Context, fileID string) error {
	snaps, err := p.deps.Snapshots.ListByConfidence(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}
	for _, s := range snaps {
		if err := p.deps.Images.DeleteFile(s.ImagePath); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("snapshot_id", s.ID).Msg("Failed to delete snapshot image")
		}
	}
	if err := p.deps.Snapshots.DeleteByFile(ctx, fileID); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}
	if err := p.deps.Events.DeleteByFile(ctx, fileID); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}
	return nil
}

func (p *Processor) frameRate(ctx context.Context, path string, reported float64) float64 {
	if validFPS(reported) {
		return reported
	}
	if p.deps.Prober != nil {
		fps, err := p.deps.Prober.FPS(ctx, path)
		if err == nil && validFPS(fps) {
			return fps
		}
		logging.Ctx(ctx).Warn().Err(err).Msg("Could not probe frame rate")
	}
	logging.Ctx(ctx).Warn().Float64("fps", DefaultFPS).Msg("Frame rate unknown, using default")
	return DefaultFPS
}

// duration derives the length from the frame count, or asks the prober when
// the container does not report one. Zero means unknown.
func (p *Processor) duration(ctx context.Context, path string, frameCount int, fps float64) float64 {
	if frameCount > 0 {
		return float64(frameCount) / fps
	}
	if p.deps.Prober == nil {
		return 0
	}
	d, err := p.deps.Prober.Duration(ctx, path)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("Could not read duration")
		return 0
	}
	return d
}

func validFPS(fps float64) bool {
	return fps > 0 && fps <= maxFPS && !math.IsNaN(fps)
}

// SampleStep is the decode stride that brings fps down to roughly sampleFps.
func SampleStep(fps, sampleFps float64) int {
	if sampleFps <= 0 || fps <= sampleFps {
		return 1
	}
	return max(1, int(math.Round(fps/sampleFps)))
}

// FrameTimestampMs is the presentation time of a frame index at fps.
func FrameTimestampMs(index int, fps float64) int64 {
	return int64(math.Round(float64(index) * 1000 / fps))
}

func rejectReason(r detect.ConfirmResult) string {
	switch {
	case r.Sustained:
		return "sustained"
	case r.Moving:
		return "moving"
	default:
		return r.Reason
	}
}

var _ zerolog.LogObjectMarshaler = runSummary{}

func (s runSummary) MarshalZerologObject(e *zerolog.Event) {
	e.Int("sampled", s.sampled).Int("events", s.events).Int("snapshots", s.snapshots)
}
