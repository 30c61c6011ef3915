package repo

import (
	"context"
	"fmt"

	"adminpanel/internal/domain"
	"adminpanel/internal/infra"
	"adminpanel/internal/sqlinline"
)

// ArtifactRepositoryPG implements domain.ArtifactRepository using PostgreSQL.
type ArtifactRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewArtifactRepository constructs a new artifact repository instance.
func NewArtifactRepository(sql infra.SQLExecutor) *ArtifactRepositoryPG {
	return &ArtifactRepositoryPG{sql: sql}
}

// ListByCharacter returns the character's images, newest sequence first.
// A nil archived filter returns both archived and active images.
func (r *ArtifactRepositoryPG) ListByCharacter(ctx context.Context, characterID string, archived *bool) ([]domain.GeneratedArtifact, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListImagesByCharacter, characterID, archived)
	if err != nil {
		return nil, fmt.Errorf("%w: list images: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var artifacts []domain.GeneratedArtifact
	for rows.Next() {
		var a domain.GeneratedArtifact
		if err := scanArtifact(rows, &a); err != nil {
			return nil, fmt.Errorf("%w: scan image: %v", domain.ErrPersistence, err)
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list images: %v", domain.ErrPersistence, err)
	}
	return artifacts, nil
}

// GetByID fetches a single image.
func (r *ArtifactRepositoryPG) GetByID(ctx context.Context, id string) (*domain.GeneratedArtifact, error) {
	var a domain.GeneratedArtifact
	if err := scanArtifact(r.sql.QueryRow(ctx, sqlinline.QSelectImageByID, id), &a); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get image: %v", domain.ErrPersistence, err)
	}
	return &a, nil
}

// SetArchived toggles the archived flag, the only mutable attribute of an image.
func (r *ArtifactRepositoryPG) SetArchived(ctx context.Context, id string, archived bool) (*domain.GeneratedArtifact, error) {
	var a domain.GeneratedArtifact
	if err := scanArtifact(r.sql.QueryRow(ctx, sqlinline.QSetImageArchived, id, archived), &a); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: archive image: %v", domain.ErrPersistence, err)
	}
	return &a, nil
}

// LatestSequence returns the highest stored sequence, or 0 when the character has none.
func (r *ArtifactRepositoryPG) LatestSequence(ctx context.Context, characterID string) (int, error) {
	var seq int
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectLatestSequence, characterID).Scan(&seq); err != nil {
		if infra.IsNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: latest sequence: %v", domain.ErrPersistence, err)
	}
	return seq, nil
}

// NextSequence reserves the next sequence through the counter table.
func (r *ArtifactRepositoryPG) NextSequence(ctx context.Context, characterID string) (int, error) {
	var seq int
	if err := r.sql.QueryRow(ctx, sqlinline.QNextImageSequence, characterID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("%w: next sequence: %v", domain.ErrPersistence, err)
	}
	return seq, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row scanner, a *domain.GeneratedArtifact) error {
	return row.Scan(
		&a.ID,
		&a.CharacterID,
		&a.ImageURL,
		&a.StoragePath,
		&a.Prompt,
		&a.PredictionID,
		&a.Sequence,
		&a.Archived,
		&a.CreatedAt,
	)
}

var _ domain.ArtifactRepository = (*ArtifactRepositoryPG)(nil)
