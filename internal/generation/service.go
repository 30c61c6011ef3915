package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"adminpanel/internal/domain"
	"adminpanel/internal/events"
	"adminpanel/internal/infra"
	"adminpanel/internal/providers/replicate"
	"adminpanel/internal/storage"
)

const DefaultModel = "google/nano-banana-pro"

// JobClient is the part of the predictions API the service drives.
type JobClient interface {
	Submit(ctx context.Context, model string, input replicate.Input) (*domain.GenerationJob, error)
	FetchStatus(ctx context.Context, jobID string) (*domain.GenerationJob, error)
	Download(ctx context.Context, uri string) ([]byte, string, error)
}

// JobWaiter blocks until a submitted job is terminal.
type JobWaiter interface {
	Wait(ctx context.Context, job *domain.GenerationJob, onProgress func(domain.JobStatus)) (*domain.GenerationJob, error)
}

// ObjectStore stores generated image bytes.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	PublicURL(key string) string
	Remove(ctx context.Context, keys ...string) error
	BucketName() string
}

type Options struct {
	Model  string
	Logger *infra.Logger
	Events events.Publisher
}

// Service turns a generation request into a committed character image.
type Service struct {
	jobs       JobClient
	waiter     JobWaiter
	references domain.ReferenceRepository
	uploads    domain.UploadRepository
	sequences  SequenceAllocator
	store      ObjectStore
	model      string
	logger     *infra.Logger
	events     events.Publisher
	newID      func() string
}

func NewService(
	jobs JobClient,
	waiter JobWaiter,
	references domain.ReferenceRepository,
	uploads domain.UploadRepository,
	sequences SequenceAllocator,
	store ObjectStore,
	opts Options,
) *Service {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	publisher := opts.Events
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		jobs:       jobs,
		waiter:     waiter,
		references: references,
		uploads:    uploads,
		sequences:  sequences,
		store:      store,
		model:      model,
		logger:     logger,
		events:     publisher,
		newID:      func() string { return uuid.NewString() },
	}
}

// Generate runs one generation end to end. Steps run strictly in order and the
// first failure is returned; nothing is retried.
func (s *Service) Generate(ctx context.Context, req Request) (*domain.GeneratedArtifact, error) {
	characterID := strings.TrimSpace(req.CharacterID)
	if _, err := uuid.Parse(characterID); err != nil {
		return nil, fmt.Errorf("%w: character_id must be a UUID", domain.ErrInvalidInput)
	}
	promptText, err := req.Prompt.Resolve()
	if err != nil {
		return nil, err
	}

	refs, err := s.resolveReferences(ctx, characterID, req.ReferenceIDs)
	if err != nil {
		return nil, err
	}
	imageInput := make([]string, 0, len(refs))
	for _, ref := range refs {
		if u := strings.TrimSpace(ref.ImageURL); u != "" {
			imageInput = append(imageInput, u)
		}
	}

	input := replicate.Input{
		Prompt:       promptText,
		ImageInput:   imageInput,
		AspectRatio:  strings.TrimSpace(req.AspectRatio),
		Resolution:   cases.Upper(language.Und).String(strings.TrimSpace(req.Resolution)),
		OutputFormat: strings.ToLower(strings.TrimSpace(req.OutputFormat)),
	}
	log := s.logger.With().Str("character_id", characterID).Str("model", s.model).Logger()

	job, err := s.jobs.Submit(ctx, s.model, input)
	if err != nil {
		return nil, fmt.Errorf("submit generation job: %w", err)
	}
	log.Info().Str("prediction_id", job.ID).Int("references", len(imageInput)).Msg("generation job submitted")

	job, err = s.waiter.Wait(ctx, job, func(status domain.JobStatus) {
		log.Debug().Str("prediction_id", job.ID).Str("status", string(status)).Msg("generation job in progress")
	})
	if err != nil {
		return nil, fmt.Errorf("await generation job: %w", err)
	}

	outputURI := job.Output.First()
	if outputURI == "" {
		return nil, fmt.Errorf("%w: job %s succeeded without output", domain.ErrRemoteService, job.ID)
	}
	data, contentType, err := s.jobs.Download(ctx, outputURI)
	if err != nil {
		return nil, fmt.Errorf("download generated image: %w", err)
	}

	seq, err := s.sequences.Next(ctx, characterID)
	if err != nil {
		return nil, err
	}

	ext := extensionFromURI(outputURI)
	if strings.TrimSpace(contentType) == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = contentTypeForExt(ext)
	}
	artifact, err := s.persist(ctx, log, &domain.PendingArtifact{
		ID:           s.newID(),
		CharacterID:  characterID,
		StoragePath:  storage.ObjectKey(characterID, seq, ext),
		Sequence:     seq,
		PredictionID: job.ID,
	}, data, contentType, promptText)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("image_id", artifact.ID).
		Str("prediction_id", artifact.PredictionID).
		Int("sequence", artifact.Sequence).
		Msg("generated image stored")
	if err := s.events.Publish(ctx, events.NewImageEvent(events.TypeImageGenerated, *artifact)); err != nil {
		log.Warn().Err(err).Msg("publish image event failed")
	}
	return artifact, nil
}

// persist writes the pending marker, uploads the blob and commits the record.
// On failure it undoes what it did, best effort.
func (s *Service) persist(ctx context.Context, log zerolog.Logger, pending *domain.PendingArtifact, data []byte, contentType, prompt string) (*domain.GeneratedArtifact, error) {
	if err := s.uploads.CreatePending(ctx, pending); err != nil {
		return nil, fmt.Errorf("record pending upload: %w: %w", domain.ErrArtifactNotSaved, err)
	}
	cleanupCtx := context.WithoutCancel(ctx)

	key, err := s.store.Upload(ctx, pending.StoragePath, data, contentType)
	if err != nil {
		if derr := s.uploads.Discard(cleanupCtx, pending.ID); derr != nil {
			log.Error().Err(derr).Str("pending_id", pending.ID).Msg("discard pending upload failed")
		}
		if errors.Is(err, domain.ErrBucketNotFound) {
			return nil, fmt.Errorf("storage bucket %q does not exist, create it before generating images: %w", s.store.BucketName(), err)
		}
		return nil, fmt.Errorf("upload generated image: %w", err)
	}

	artifact := &domain.GeneratedArtifact{
		CharacterID:  pending.CharacterID,
		ImageURL:     s.store.PublicURL(key),
		StoragePath:  key,
		Prompt:       prompt,
		PredictionID: pending.PredictionID,
		Sequence:     pending.Sequence,
	}
	if err := s.uploads.Commit(ctx, pending.ID, artifact); err != nil {
		if rerr := s.store.Remove(cleanupCtx, key); rerr != nil {
			log.Error().Err(rerr).Str("storage_path", key).Msg("remove uploaded image failed")
		} else if derr := s.uploads.Discard(cleanupCtx, pending.ID); derr != nil {
			log.Error().Err(derr).Str("pending_id", pending.ID).Msg("discard pending upload failed")
		}
		return nil, fmt.Errorf("save generated image: %w: %w", domain.ErrArtifactNotSaved, err)
	}
	return artifact, nil
}

// resolveReferences returns the explicitly selected references that belong to
// the character, or the character's defaults when none were selected.
func (s *Service) resolveReferences(ctx context.Context, characterID string, ids []string) ([]domain.ReferenceInput, error) {
	selected := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		selected = append(selected, id)
	}
	if len(selected) == 0 {
		refs, err := s.references.ListDefaults(ctx, characterID)
		if err != nil {
			return nil, fmt.Errorf("load default references: %w", err)
		}
		return refs, nil
	}
	refs, err := s.references.ListByIDs(ctx, characterID, selected)
	if err != nil {
		return nil, fmt.Errorf("load selected references: %w", err)
	}
	return refs, nil
}

// OutputURL returns the original remote output URL of a finished job.
func (s *Service) OutputURL(ctx context.Context, predictionID string) (string, error) {
	predictionID = strings.TrimSpace(predictionID)
	if predictionID == "" {
		return "", fmt.Errorf("%w: prediction_id is required", domain.ErrInvalidInput)
	}
	job, err := s.jobs.FetchStatus(ctx, predictionID)
	if err != nil {
		if replicate.IsNotFound(err) {
			return "", fmt.Errorf("%w: prediction %s", domain.ErrNotFound, predictionID)
		}
		return "", fmt.Errorf("fetch prediction: %w", err)
	}
	uri := job.Output.First()
	if job.Status != domain.JobStatusSucceeded || uri == "" {
		return "", fmt.Errorf("%w: prediction %s has no output", domain.ErrNotFound, predictionID)
	}
	return uri, nil
}

func extensionFromURI(uri string) string {
	p := uri
	if parsed, err := url.Parse(uri); err == nil {
		p = parsed.Path
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if ext == "" || len(ext) > 5 || strings.IndexFunc(ext, func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	}) >= 0 {
		return "png"
	}
	return ext
}

func contentTypeForExt(ext string) string {
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		return ct
	}
	return "image/png"
}
