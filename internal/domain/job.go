package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// JobStatus enumerates the lifecycle states reported by the generation service.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusStarting   JobStatus = "starting"
	JobStatusRunning    JobStatus = "running"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// NormalizeJobStatus maps remote spellings onto the known statuses.
func NormalizeJobStatus(s string) JobStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "starting":
		return JobStatusStarting
	case "running":
		return JobStatusRunning
	case "processing":
		return JobStatusProcessing
	case "succeeded", "successful", "success":
		return JobStatusSucceeded
	case "failed", "error":
		return JobStatusFailed
	case "canceled", "cancelled":
		return JobStatusCanceled
	default:
		return JobStatusPending
	}
}

// Terminal reports whether the remote service will no longer change the job.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// JobOutput holds the output URIs of a job. The remote service returns either
// a single string or an array of strings.
type JobOutput []string

func (o *JobOutput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = nil
		return nil
	}
	if data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		if strings.TrimSpace(single) == "" {
			*o = nil
			return nil
		}
		*o = JobOutput{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*o = JobOutput(many)
	return nil
}

// First returns the first non-empty output URI.
func (o JobOutput) First() string {
	for _, uri := range o {
		if uri = strings.TrimSpace(uri); uri != "" {
			return uri
		}
	}
	return ""
}

// GenerationJob is a snapshot of one external image generation request. It is
// never persisted; its ID is stored on the resulting artifact.
type GenerationJob struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
	Output JobOutput `json:"output,omitempty"`
	Error  string    `json:"error,omitempty"`
}
