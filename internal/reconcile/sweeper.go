package reconcile

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"adminpanel/internal/domain"
	"adminpanel/internal/infra"
)

// BlobRemover deletes stored objects. Missing objects are not an error.
type BlobRemover interface {
	Remove(ctx context.Context, keys ...string) error
}

// Sweeper deletes blobs whose upload never got committed, then drops their markers.
type Sweeper struct {
	uploads   domain.UploadRepository
	blobs     BlobRemover
	logger    *infra.Logger
	deadline  time.Duration
	batchSize int
	interval  time.Duration
	now       func() time.Time
}

type Options struct {
	Deadline  time.Duration
	BatchSize int
	Interval  time.Duration
	Logger    *infra.Logger
}

func NewSweeper(uploads domain.UploadRepository, blobs BlobRemover, opts Options) *Sweeper {
	if opts.Deadline <= 0 {
		opts.Deadline = 30 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &Sweeper{
		uploads:   uploads,
		blobs:     blobs,
		logger:    logger,
		deadline:  opts.Deadline,
		batchSize: opts.BatchSize,
		interval:  opts.Interval,
		now:       time.Now,
	}
}

// SweepOnce handles one batch of markers older than the deadline and returns
// how many were cleared. A marker whose blob cannot be removed is kept for the
// next sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	stale, err := s.uploads.ListStale(ctx, s.now().Add(-s.deadline), s.batchSize)
	if err != nil {
		return 0, err
	}
	cleared := 0
	var errs []error
	for _, p := range stale {
		if p.Committed {
			// The path belongs to a saved image; only the marker is stale.
			if err := s.uploads.Discard(ctx, p.ID); err != nil {
				s.logger.Error().Err(err).Str("pending_id", p.ID).Msg("reconciler: discard marker failed")
				errs = append(errs, err)
				continue
			}
			cleared++
			s.logger.Info().Str("pending_id", p.ID).Str("storage_path", p.StoragePath).Msg("reconciler: marker for committed image dropped")
			continue
		}
		if err := s.blobs.Remove(ctx, p.StoragePath); err != nil {
			s.logger.Error().Err(err).Str("pending_id", p.ID).Str("storage_path", p.StoragePath).Msg("reconciler: remove blob failed")
			errs = append(errs, err)
			continue
		}
		if err := s.uploads.Discard(ctx, p.ID); err != nil {
			s.logger.Error().Err(err).Str("pending_id", p.ID).Msg("reconciler: discard marker failed")
			errs = append(errs, err)
			continue
		}
		cleared++
		s.logger.Info().
			Str("pending_id", p.ID).
			Str("character_id", p.CharacterID).
			Int("sequence", p.Sequence).
			Str("storage_path", p.StoragePath).
			Msg("reconciler: orphaned upload removed")
	}
	return cleared, errors.Join(errs...)
}

// Run sweeps at a fixed interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Dur("deadline", s.deadline).Msg("reconciler: started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if n, err := s.SweepOnce(ctx); err != nil {
			s.logger.Error().Err(err).Int("cleared", n).Msg("reconciler: sweep finished with errors")
		} else if n > 0 {
			s.logger.Info().Int("cleared", n).Msg("reconciler: sweep finished")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
