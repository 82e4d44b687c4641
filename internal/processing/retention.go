package processing

import (
	"context"
	"errors"
	"fmt"

	"github.com/kdimtricp/arcwatch/internal/evidence"
	"github.com/kdimtricp/arcwatch/internal/logging"
	"github.com/kdimtricp/arcwatch/internal/models"
)

// EnforceTopK deletes every snapshot of fileID beyond the k best (file and
// row). It keeps going past individual failures and reports them joined.
func EnforceTopK(ctx context.Context, snaps SnapshotStore, files SnapshotFiles, fileID string, k int) (int, error) {
	if k <= 0 {
		k = evidence.DefaultK
	}

	all, err := snaps.ListByConfidence(ctx, fileID)
	if err != nil {
		return 0, fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(all) <= k {
		return 0, nil
	}

	var errs []error
	removed := 0
	for _, s := range all[k:] {
		if err := files.DeleteFile(s.ImagePath); err != nil {
			logging.Warn().Err(err).Str("file_id", fileID).Str("snapshot_id", s.ID).
				Msg("Failed to delete snapshot image")
		}
		if err := snaps.Delete(ctx, s.ID); err != nil {
			errs = append(errs, fmt.Errorf("snapshot %s: %w", s.ID, err))
			continue
		}
		removed++
	}
	snapshotOps.WithLabelValues("enforced").Add(float64(removed))

	return removed, errors.Join(errs...)
}

// snapshotKeeper applies the per-file Top-K policy as snapshots are taken.
type snapshotKeeper struct {
	fileID string
	topk   *evidence.TopK
	snaps  SnapshotStore
	files  SnapshotFiles
	seq    int
}

// newSnapshotKeeper seeds the keeper from persisted snapshots. If they cannot
// be read it starts empty and logs the failure.
func newSnapshotKeeper(ctx context.Context, fileID string, k int, snaps SnapshotStore, files SnapshotFiles) *snapshotKeeper {
	log := logging.Ctx(ctx)
	topk := evidence.NewTopK(k)

	existing, err := snaps.ListByConfidence(ctx, fileID)
	if err != nil {
		persistenceErrors.WithLabelValues("snapshot").Inc()
		log.Error().Err(err).Msg("Failed to load snapshots, starting with an empty set")
	}
	entries := make([]evidence.Entry, 0, len(existing))
	for _, s := range existing {
		entries = append(entries, evidence.Entry{ID: s.ID, Confidence: s.Confidence, ImagePath: s.ImagePath})
	}
	topk.Seed(entries)

	seq, err := snaps.MaxSequence(ctx, fileID)
	if err != nil {
		persistenceErrors.WithLabelValues("snapshot").Inc()
		log.Error().Err(err).Msg("Failed to load snapshot sequence, starting at 0")
		seq = 0
	}

	return &snapshotKeeper{fileID: fileID, topk: topk, snaps: snaps, files: files, seq: seq}
}

// keep stores snap with the given image when the Top-K policy accepts its
// confidence, evicting the current minimum if the set is full. It reports
// whether the snapshot was stored.
func (k *snapshotKeeper) keep(ctx context.Context, snap *models.Snapshot, jpeg []byte) bool {
	log := logging.Ctx(ctx)

	d := k.topk.Decide(snap.Confidence)
	if !d.Keep {
		snapshotOps.WithLabelValues("rejected").Inc()
		return false
	}

	k.seq++
	name, err := k.files.SaveSnapshot(k.fileID, k.seq, jpeg)
	if err != nil {
		persistenceErrors.WithLabelValues("snapshot_file").Inc()
		log.Warn().Err(err).Msg("Failed to save snapshot image")
		return false
	}
	snap.ImagePath = name
	snap.Sequence = k.seq

	if err := k.snaps.Create(ctx, snap); err != nil {
		persistenceErrors.WithLabelValues("snapshot").Inc()
		log.Warn().Err(err).Msg("Failed to record snapshot")
		if err := k.files.DeleteFile(name); err != nil {
			log.Warn().Err(err).Str("path", name).Msg("Failed to remove orphaned snapshot image")
		}
		return false
	}

	if d.Evict != nil {
		if err := k.files.DeleteFile(d.Evict.ImagePath); err != nil {
			log.Warn().Err(err).Str("snapshot_id", d.Evict.ID).Msg("Failed to delete evicted snapshot image")
		}
		if err := k.snaps.Delete(ctx, d.Evict.ID); err != nil {
			persistenceErrors.WithLabelValues("snapshot").Inc()
			log.Warn().Err(err).Str("snapshot_id", d.Evict.ID).Msg("Failed to delete evicted snapshot")
		}
		snapshotOps.WithLabelValues("evicted").Inc()
	}

	k.topk.CommitKept(evidence.Entry{ID: snap.ID, Confidence: snap.Confidence, ImagePath: name}, d)
	snapshotOps.WithLabelValues("kept").Inc()
	return true
}
