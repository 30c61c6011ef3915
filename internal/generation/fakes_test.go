package generation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"adminpanel/internal/domain"
	"adminpanel/internal/providers/replicate"
)

type fakeJobs struct {
	submitted   []replicate.Input
	submitJob   *domain.GenerationJob
	submitErr   error
	statuses    []*domain.GenerationJob
	fetchCalls  int
	fetchErr    error
	downloads   map[string][]byte
	downloadErr error
}

func (f *fakeJobs) Submit(ctx context.Context, model string, input replicate.Input) (*domain.GenerationJob, error) {
	f.submitted = append(f.submitted, input)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	job := *f.submitJob
	return &job, nil
}

func (f *fakeJobs) FetchStatus(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.statuses) == 0 {
		return nil, fmt.Errorf("%w: no scripted status", domain.ErrRemoteService)
	}
	idx := f.fetchCalls
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.fetchCalls++
	job := *f.statuses[idx]
	job.ID = jobID
	return &job, nil
}

func (f *fakeJobs) Download(ctx context.Context, uri string) ([]byte, string, error) {
	if f.downloadErr != nil {
		return nil, "", f.downloadErr
	}
	data, ok := f.downloads[uri]
	if !ok {
		return nil, "", fmt.Errorf("%w: status 404", domain.ErrDownload)
	}
	return data, "", nil
}

type memoryStore struct {
	mu        sync.Mutex
	artifacts []domain.GeneratedArtifact
	pending   map[string]domain.PendingArtifact
	counters  map[string]int
	refs      []domain.ReferenceInput
	commitErr error
	nextID    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{pending: map[string]domain.PendingArtifact{}, counters: map[string]int{}}
}

func (m *memoryStore) ListByCharacter(ctx context.Context, characterID string, archived *bool) ([]domain.GeneratedArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GeneratedArtifact
	for _, a := range m.artifacts {
		if a.CharacterID != characterID {
			continue
		}
		if archived != nil && a.Archived != *archived {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })
	return out, nil
}

func (m *memoryStore) GetByID(ctx context.Context, id string) (*domain.GeneratedArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.artifacts {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memoryStore) SetArchived(ctx context.Context, id string, archived bool) (*domain.GeneratedArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.artifacts {
		if m.artifacts[i].ID == id {
			m.artifacts[i].Archived = archived
			a := m.artifacts[i]
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memoryStore) LatestSequence(ctx context.Context, characterID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestLocked(characterID), nil
}

func (m *memoryStore) latestLocked(characterID string) int {
	latest := 0
	for _, a := range m.artifacts {
		if a.CharacterID == characterID && a.Sequence > latest {
			latest = a.Sequence
		}
	}
	return latest
}

func (m *memoryStore) NextSequence(ctx context.Context, characterID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.counters[characterID]
	if !ok {
		current = m.latestLocked(characterID)
	}
	current++
	m.counters[characterID] = current
	return current, nil
}

func (m *memoryStore) CreatePending(ctx context.Context, p *domain.PendingArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.CreatedAt = time.Now()
	m.pending[p.ID] = *p
	return nil
}

func (m *memoryStore) Commit(ctx context.Context, pendingID string, a *domain.GeneratedArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	for _, existing := range m.artifacts {
		if existing.CharacterID == a.CharacterID && existing.Sequence == a.Sequence {
			return fmt.Errorf("%w: sequence %d already used for character %s", domain.ErrPersistence, a.Sequence, a.CharacterID)
		}
	}
	m.nextID++
	a.ID = fmt.Sprintf("img-%d", m.nextID)
	a.CreatedAt = time.Now()
	a.Archived = false
	m.artifacts = append(m.artifacts, *a)
	delete(m.pending, pendingID)
	return nil
}

func (m *memoryStore) Discard(ctx context.Context, pendingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, pendingID)
	return nil
}

func (m *memoryStore) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]domain.PendingArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PendingArtifact
	for _, p := range m.pending {
		if !p.CreatedAt.Before(olderThan) {
			continue
		}
		for _, a := range m.artifacts {
			if a.StoragePath == p.StoragePath {
				p.Committed = true
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryStore) ListDefaults(ctx context.Context, characterID string) ([]domain.ReferenceInput, error) {
	var out []domain.ReferenceInput
	for _, r := range m.refs {
		if r.CharacterID == characterID && r.IsDefault {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryStore) ListByIDs(ctx context.Context, characterID string, ids []string) ([]domain.ReferenceInput, error) {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.ReferenceInput
	for _, r := range m.refs {
		if r.CharacterID == characterID && want[r.ID] {
			out = append(out, r)
		}
	}
	return out, nil
}

// referenceView exposes the reference methods under the repository interface
// without clashing with the artifact ListByCharacter.
type referenceView struct{ *memoryStore }

func (r referenceView) ListByCharacter(ctx context.Context, characterID string) ([]domain.ReferenceInput, error) {
	var out []domain.ReferenceInput
	for _, ref := range r.refs {
		if ref.CharacterID == characterID {
			out = append(out, ref)
		}
	}
	return out, nil
}

var (
	_ domain.ArtifactRepository  = (*memoryStore)(nil)
	_ domain.UploadRepository    = (*memoryStore)(nil)
	_ domain.ReferenceRepository = referenceView{}
)
