package domain

import "time"

// GeneratedArtifact is a generated character image persisted after a successful job.
type GeneratedArtifact struct {
	ID           string    `json:"id"`
	CharacterID  string    `json:"character_id"`
	ImageURL     string    `json:"image_url"`
	StoragePath  string    `json:"storage_path"`
	Prompt       string    `json:"prompt"`
	PredictionID string    `json:"prediction_id"`
	Sequence     int       `json:"sequence"`
	Archived     bool      `json:"archived"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReferenceInput is an image supplied as conditioning context for generation.
type ReferenceInput struct {
	ID          string    `json:"id"`
	CharacterID string    `json:"character_id"`
	ImageURL    string    `json:"image_url"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
}

// PendingArtifact marks a blob upload that has not been committed yet.
type PendingArtifact struct {
	ID           string
	CharacterID  string
	StoragePath  string
	Sequence     int
	PredictionID string
	CreatedAt    time.Time
	// Committed is set when a generated image already owns StoragePath.
	Committed bool
}
