package generation

import (
	"context"
	"fmt"

	"adminpanel/internal/domain"
	"adminpanel/internal/infra"
)

// SequenceAllocator hands out the next per-character artifact number.
type SequenceAllocator interface {
	Next(ctx context.Context, characterID string) (int, error)
}

// CounterAllocator reserves numbers through an atomic database counter, so
// concurrent generations for one character never share a number.
type CounterAllocator struct {
	Artifacts domain.ArtifactRepository
}

func (a CounterAllocator) Next(ctx context.Context, characterID string) (int, error) {
	seq, err := a.Artifacts.NextSequence(ctx, characterID)
	if err != nil {
		return 0, fmt.Errorf("allocate sequence: %w", err)
	}
	return seq, nil
}

// ScanAllocator returns the highest stored number plus one. It takes no lock:
// two calls made before either artifact is committed return the same number,
// and the second commit then fails on the unique index.
type ScanAllocator struct {
	Artifacts domain.ArtifactRepository
}

func (a ScanAllocator) Next(ctx context.Context, characterID string) (int, error) {
	latest, err := a.Artifacts.LatestSequence(ctx, characterID)
	if err != nil {
		return 0, fmt.Errorf("allocate sequence: %w", err)
	}
	return latest + 1, nil
}

// NewSequenceAllocator picks the allocator named by strategy.
func NewSequenceAllocator(strategy string, artifacts domain.ArtifactRepository) (SequenceAllocator, error) {
	switch strategy {
	case "", infra.SequenceStrategyCounter:
		return CounterAllocator{Artifacts: artifacts}, nil
	case infra.SequenceStrategyScan:
		return ScanAllocator{Artifacts: artifacts}, nil
	default:
		return nil, fmt.Errorf("%w: unknown sequence strategy %q", domain.ErrInvalidConfiguration, strategy)
	}
}
