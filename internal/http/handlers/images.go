package handlers

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"adminpanel/internal/domain"
	"adminpanel/internal/events"
	"adminpanel/pkg/zip"
)

type archiveRequest struct {
	Archived *bool `json:"archived"`
}

func characterIDParam(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "character_id"))
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: character_id must be a UUID", domain.ErrInvalidInput)
	}
	return id, nil
}

// ListImages handles GET /v1/characters/{character_id}/images.
func (a *App) ListImages(w http.ResponseWriter, r *http.Request) {
	characterID, err := characterIDParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var archived *bool
	if raw := strings.TrimSpace(r.URL.Query().Get("archived")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			a.fail(w, r, fmt.Errorf("%w: archived must be true or false", domain.ErrInvalidInput))
			return
		}
		archived = &v
	}
	items, err := a.Artifacts.ListByCharacter(r.Context(), characterID, archived)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.GeneratedArtifact{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// ArchiveImage handles PATCH /v1/images/{image_id}/archive.
func (a *App) ArchiveImage(w http.ResponseWriter, r *http.Request) {
	imageID := strings.TrimSpace(chi.URLParam(r, "image_id"))
	if _, err := uuid.Parse(imageID); err != nil {
		a.fail(w, r, fmt.Errorf("%w: image_id must be a UUID", domain.ErrInvalidInput))
		return
	}
	var body archiveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil || body.Archived == nil {
		a.fail(w, r, fmt.Errorf("%w: archived flag is required", domain.ErrInvalidInput))
		return
	}
	artifact, err := a.Artifacts.SetArchived(r.Context(), imageID, *body.Archived)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.publish(r.Context(), events.NewImageEvent(events.TypeImageArchived, *artifact))
	a.json(w, http.StatusOK, artifact)
}

// ListReferences handles GET /v1/characters/{character_id}/references.
func (a *App) ListReferences(w http.ResponseWriter, r *http.Request) {
	characterID, err := characterIDParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items, err := a.References.ListByCharacter(r.Context(), characterID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.ReferenceInput{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// ExportImages handles GET /v1/characters/{character_id}/images.zip. Only
// images that are not archived are included; objects missing from storage are
// skipped.
func (a *App) ExportImages(w http.ResponseWriter, r *http.Request) {
	characterID, err := characterIDParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	active := false
	items, err := a.Artifacts.ListByCharacter(r.Context(), characterID, &active)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	assets := make([]zip.Asset, 0, len(items))
	for _, item := range items {
		data, err := a.Objects.Read(r.Context(), item.StoragePath)
		if err != nil {
			a.Logger.Warn().Err(err).Str("storage_path", item.StoragePath).Msg("export: skipping image")
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("%03d%s", item.Sequence, path.Ext(item.StoragePath)),
			Data:     data,
			Modified: item.CreatedAt,
		})
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: build archive: %v", domain.ErrStorage, err))
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=character-%s.zip", characterID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// ServeObject serves stored images under the public base URL when the bucket
// has no CDN in front of it.
func (a *App) ServeObject(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	data, err := a.Objects.Read(r.Context(), key)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
