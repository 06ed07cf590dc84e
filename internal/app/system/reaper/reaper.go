// internal/app/system/reaper/reaper.go
//
// Package reaper permanently removes trashed files. A sweep claims each
// flagged file, deletes its blob, then its record, then its favourites.
// Restores are refused while the claim is held; a file restored before the
// claim is skipped.
package reaper

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/blob"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel entry processing when Config leaves it
// unset.
const DefaultConcurrency = 4

// FileStore is the part of the file store a sweep needs.
type FileStore interface {
	ListFlagged(ctx context.Context) ([]models.File, error)
	ClaimForReap(ctx context.Context, id primitive.ObjectID) (bool, error)
	ReleaseReap(ctx context.Context, id primitive.ObjectID) error
	BlobRefShared(ctx context.Context, ref string, exceptID primitive.ObjectID) (bool, error)
	DeleteIfFlagged(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// FavouriteStore removes favourites that point at a reaped file.
type FavouriteStore interface {
	DeleteByFile(ctx context.Context, fileID primitive.ObjectID) (int64, error)
}

// Recorder receives sweep totals. *metrics.Reaper satisfies it.
type Recorder interface {
	ObserveSweep(scanned, reaped, skipped, failed int, took time.Duration)
}

type Config struct {
	Concurrency int
	Metrics     Recorder
}

// SweepResult counts what happened to the entries of one sweep.
type SweepResult struct {
	Scanned int
	Reaped  int
	Skipped int
	Failed  int
}

type Reaper struct {
	files       FileStore
	favs        FavouriteStore
	blobs       blob.Store
	log         *zap.Logger
	concurrency int
	metrics     Recorder
}

func New(files FileStore, favs FavouriteStore, blobs blob.Store, logger *zap.Logger, cfg Config) *Reaper {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Reaper{
		files:       files,
		favs:        favs,
		blobs:       blobs,
		log:         logger,
		concurrency: cfg.Concurrency,
		metrics:     cfg.Metrics,
	}
}

type outcome int

const (
	reaped outcome = iota
	skipped
	failed
)

// Sweep processes every file flagged at the time it starts. Failures on
// single entries are logged and counted; the only errors returned are a
// failed listing or a cancelled context.
func (r *Reaper) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()

	flagged, err := r.files.ListFlagged(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list flagged files: %w", err)
	}

	var nReaped, nSkipped, nFailed atomic.Int64
	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for _, f := range flagged {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			switch r.reapOne(ctx, f) {
			case reaped:
				nReaped.Add(1)
			case skipped:
				nSkipped.Add(1)
			default:
				nFailed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{
		Scanned: len(flagged),
		Reaped:  int(nReaped.Load()),
		Skipped: int(nSkipped.Load()),
		Failed:  int(nFailed.Load()),
	}
	took := time.Since(start)
	if r.metrics != nil {
		r.metrics.ObserveSweep(res.Scanned, res.Reaped, res.Skipped, res.Failed, took)
	}
	if res.Scanned > 0 {
		r.log.Info("trash sweep finished",
			zap.Int("scanned", res.Scanned),
			zap.Int("reaped", res.Reaped),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
			zap.Duration("took", took))
	}
	return res, ctx.Err()
}

func (r *Reaper) reapOne(ctx context.Context, f models.File) outcome {
	log := r.log.With(zap.String("file_id", f.ID.Hex()), zap.String("org_id", f.OrgID))

	claimed, err := r.files.ClaimForReap(ctx, f.ID)
	if err != nil {
		log.Warn("reaper: claim failed", zap.Error(err))
		return failed
	}
	if !claimed {
		log.Debug("reaper: file restored or held elsewhere")
		return skipped
	}

	shared, err := r.files.BlobRefShared(ctx, f.BlobRef, f.ID)
	if err != nil {
		log.Warn("reaper: blob ref check failed", zap.Error(err))
		r.release(ctx, log, f)
		return failed
	}
	if shared {
		log.Warn("reaper: blob still referenced by another file; keeping blob",
			zap.String("blob_ref", f.BlobRef))
	} else if err := r.blobs.Delete(ctx, f.BlobRef); err != nil {
		log.Error("reaper: blob delete failed; file stays in trash",
			zap.String("blob_ref", f.BlobRef), zap.Error(err))
		r.release(ctx, log, f)
		return failed
	}

	deleted, err := r.files.DeleteIfFlagged(ctx, f.ID)
	if err != nil {
		log.Error("reaper: record delete failed", zap.Error(err))
		return failed
	}
	if !deleted {
		log.Warn("reaper: record vanished during reap")
		return skipped
	}

	if n, err := r.favs.DeleteByFile(ctx, f.ID); err != nil {
		log.Warn("reaper: favourite cleanup failed", zap.Error(err))
	} else if n > 0 {
		log.Debug("reaper: favourites removed", zap.Int64("count", n))
	}
	return reaped
}

func (r *Reaper) release(ctx context.Context, log *zap.Logger, f models.File) {
	if err := r.files.ReleaseReap(ctx, f.ID); err != nil {
		log.Warn("reaper: release failed; claim expires on its own", zap.Error(err))
	}
}
