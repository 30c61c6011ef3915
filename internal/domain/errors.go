package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingCredential    = errors.New("missing credential")
	ErrTransport            = errors.New("transport error")
	ErrRemoteService        = errors.New("remote service error")
	ErrJobFailed            = errors.New("job failed")
	ErrJobTimeout           = errors.New("job timed out")
	ErrDownload             = errors.New("download failed")
	ErrStorage              = errors.New("storage error")
	ErrBucketNotFound       = errors.New("bucket not found")
	ErrObjectExists         = errors.New("object already exists")
	ErrPersistence          = errors.New("persistence error")
	// ErrArtifactNotSaved marks failures while recording a generated image,
	// as opposed to failures reading existing rows.
	ErrArtifactNotSaved = errors.New("generated image not saved")
)
