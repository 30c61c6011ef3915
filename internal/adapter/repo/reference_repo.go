package repo

import (
	"context"
	"fmt"

	"adminpanel/internal/domain"
	"adminpanel/internal/infra"
	"adminpanel/internal/sqlinline"
)

// ReferenceRepositoryPG implements domain.ReferenceRepository.
type ReferenceRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewReferenceRepository(sql infra.SQLExecutor) *ReferenceRepositoryPG {
	return &ReferenceRepositoryPG{sql: sql}
}

func (r *ReferenceRepositoryPG) ListByCharacter(ctx context.Context, characterID string) ([]domain.ReferenceInput, error) {
	return r.list(ctx, sqlinline.QListReferencesByCharacter, characterID)
}

func (r *ReferenceRepositoryPG) ListDefaults(ctx context.Context, characterID string) ([]domain.ReferenceInput, error) {
	return r.list(ctx, sqlinline.QListDefaultReferences, characterID)
}

// ListByIDs returns only the requested references that belong to the character.
func (r *ReferenceRepositoryPG) ListByIDs(ctx context.Context, characterID string, ids []string) ([]domain.ReferenceInput, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, sqlinline.QListReferencesByIDs, characterID, ids)
}

func (r *ReferenceRepositoryPG) list(ctx context.Context, query string, args ...any) ([]domain.ReferenceInput, error) {
	rows, err := r.sql.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list references: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var refs []domain.ReferenceInput
	for rows.Next() {
		var ref domain.ReferenceInput
		if err := rows.Scan(&ref.ID, &ref.CharacterID, &ref.ImageURL, &ref.IsDefault, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan reference: %v", domain.ErrPersistence, err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list references: %v", domain.ErrPersistence, err)
	}
	return refs, nil
}

var _ domain.ReferenceRepository = (*ReferenceRepositoryPG)(nil)
