package domain

import (
	"context"
	"time"
)

// ArtifactRepository handles persistence for generated character images.
type ArtifactRepository interface {
	ListByCharacter(ctx context.Context, characterID string, archived *bool) ([]GeneratedArtifact, error)
	GetByID(ctx context.Context, id string) (*GeneratedArtifact, error)
	SetArchived(ctx context.Context, id string, archived bool) (*GeneratedArtifact, error)
	// LatestSequence returns the highest sequence stored for the character, or 0.
	LatestSequence(ctx context.Context, characterID string) (int, error)
	// NextSequence atomically reserves the next sequence for the character.
	NextSequence(ctx context.Context, characterID string) (int, error)
}

// UploadRepository tracks blob uploads between the pending marker and the committed record.
type UploadRepository interface {
	CreatePending(ctx context.Context, pending *PendingArtifact) error
	// Commit inserts the artifact and removes the pending marker in one transaction.
	Commit(ctx context.Context, pendingID string, artifact *GeneratedArtifact) error
	Discard(ctx context.Context, pendingID string) error
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]PendingArtifact, error)
}

// ReferenceRepository reads reference images used as conditioning input.
type ReferenceRepository interface {
	ListByCharacter(ctx context.Context, characterID string) ([]ReferenceInput, error)
	ListDefaults(ctx context.Context, characterID string) ([]ReferenceInput, error)
	ListByIDs(ctx context.Context, characterID string, ids []string) ([]ReferenceInput, error)
}
