package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"adminpanel/internal/domain"
	"adminpanel/internal/generation"
	"adminpanel/internal/middleware"
)

const maxBodyBytes = 1 << 20

type downloadRequest struct {
	PredictionID string `json:"prediction_id"`
}

type downloadResponse struct {
	ImageURL     string `json:"imageUrl"`
	PredictionID string `json:"predictionId"`
}

// Generate handles POST /v1/generate. It blocks until the remote job is done.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		a.fail(w, r, domain.ErrUnauthorized)
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: request body too large or unreadable", domain.ErrInvalidInput))
		return
	}
	req, err := generation.DecodeRequest(raw)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.Logger.Info().
		Str("caller", caller.ID).
		Str("character_id", req.CharacterID).
		Int("selected_references", len(req.ReferenceIDs)).
		Msg("generate: request accepted")

	artifact, err := a.Generator.Generate(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, artifact)
}

// DownloadURL handles POST /v1/generate/download and returns the original
// remote output URL of a prediction.
func (a *App) DownloadURL(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.CallerFromContext(r.Context()); !ok {
		a.fail(w, r, domain.ErrUnauthorized)
		return
	}
	var body downloadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		a.fail(w, r, fmt.Errorf("%w: invalid payload", domain.ErrInvalidInput))
		return
	}
	uri, err := a.Generator.OutputURL(r.Context(), body.PredictionID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, downloadResponse{ImageURL: uri, PredictionID: body.PredictionID})
}
