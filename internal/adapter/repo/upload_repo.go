package repo

import (
	"context"
	"fmt"
	"time"

	"adminpanel/internal/domain"
	"adminpanel/internal/infra"
	"adminpanel/internal/sqlinline"
)

// UploadRepositoryPG implements domain.UploadRepository.
type UploadRepositoryPG struct {
	sql infra.SQLTransactor
}

// NewUploadRepository creates an upload marker repository backed by PostgreSQL.
func NewUploadRepository(sql infra.SQLTransactor) *UploadRepositoryPG {
	return &UploadRepositoryPG{sql: sql}
}

// CreatePending writes the marker row before any blob is uploaded.
func (r *UploadRepositoryPG) CreatePending(ctx context.Context, pending *domain.PendingArtifact) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertPendingUpload,
		pending.ID,
		pending.CharacterID,
		pending.StoragePath,
		pending.Sequence,
		pending.PredictionID,
	)
	if err := row.Scan(&pending.CreatedAt); err != nil {
		return fmt.Errorf("%w: create pending upload: %v", domain.ErrPersistence, err)
	}
	return nil
}

// Commit records the artifact and clears its marker atomically.
func (r *UploadRepositoryPG) Commit(ctx context.Context, pendingID string, artifact *domain.GeneratedArtifact) error {
	err := r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		row := tx.QueryRow(ctx, sqlinline.QInsertGeneratedImage,
			artifact.CharacterID,
			artifact.ImageURL,
			artifact.StoragePath,
			artifact.Prompt,
			artifact.PredictionID,
			artifact.Sequence,
		)
		if err := row.Scan(&artifact.ID, &artifact.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, sqlinline.QDeletePendingUpload, pendingID)
		return err
	})
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return fmt.Errorf("%w: sequence %d already used for character %s", domain.ErrPersistence, artifact.Sequence, artifact.CharacterID)
		}
		return fmt.Errorf("%w: commit image: %v", domain.ErrPersistence, err)
	}
	artifact.Archived = false
	return nil
}

// Discard removes a marker without touching blob storage.
func (r *UploadRepositoryPG) Discard(ctx context.Context, pendingID string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QDeletePendingUpload, pendingID); err != nil {
		return fmt.Errorf("%w: discard pending upload: %v", domain.ErrPersistence, err)
	}
	return nil
}

// ListStale returns markers created before olderThan, oldest first.
func (r *UploadRepositoryPG) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]domain.PendingArtifact, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListStaleUploads, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list stale uploads: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.PendingArtifact
	for rows.Next() {
		var p domain.PendingArtifact
		if err := rows.Scan(&p.ID, &p.CharacterID, &p.StoragePath, &p.Sequence, &p.PredictionID, &p.CreatedAt, &p.Committed); err != nil {
			return nil, fmt.Errorf("%w: scan stale upload: %v", domain.ErrPersistence, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list stale uploads: %v", domain.ErrPersistence, err)
	}
	return out, nil
}

var _ domain.UploadRepository = (*UploadRepositoryPG)(nil)
