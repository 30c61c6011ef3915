package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"adminpanel/internal/domain"
	"adminpanel/internal/events"
	"adminpanel/internal/generation"
	"adminpanel/internal/infra"
)

// Generator runs generations and resolves remote job outputs.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*domain.GeneratedArtifact, error)
	OutputURL(ctx context.Context, predictionID string) (string, error)
}

// ObjectReader reads stored image bytes.
type ObjectReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Config     *infra.Config
	Logger     infra.Logger
	Generator  Generator
	Artifacts  domain.ArtifactRepository
	References domain.ReferenceRepository
	Objects    ObjectReader
	Events     events.Publisher
	DB         Pinger
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, msg string, cause error) {
	body := errorResponse{Error: msg}
	if cause != nil && a.Config != nil && a.Config.IsDevelopment() {
		body.Detail = cause.Error()
	}
	a.json(w, code, body)
}

// fail maps err onto a status code and writes it.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusForError(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		switch {
		case errors.Is(err, domain.ErrArtifactNotSaved):
			msg = "failed to save generated image"
		case errors.Is(err, domain.ErrPersistence):
			msg = "database error"
		case !isDomainError(err):
			msg = "internal error"
		}
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	a.error(w, code, msg, err)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func isDomainError(err error) bool {
	for _, kind := range []error{
		domain.ErrInvalidConfiguration,
		domain.ErrMissingCredential,
		domain.ErrTransport,
		domain.ErrRemoteService,
		domain.ErrJobFailed,
		domain.ErrJobTimeout,
		domain.ErrDownload,
		domain.ErrStorage,
		domain.ErrBucketNotFound,
		domain.ErrObjectExists,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func (a *App) publish(ctx context.Context, evt events.Event) {
	if a.Events == nil {
		return
	}
	if err := a.Events.Publish(ctx, evt); err != nil {
		a.Logger.Warn().Err(err).Str("type", evt.Type).Msg("publish image event failed")
	}
}
