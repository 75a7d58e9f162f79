package model

import (
	"encoding/json"
	"time"
)

// Outbound event message types.
const (
	MessageJobStatus          MessageType = "job.status"
	MessageProcessingComplete MessageType = "processing.complete"
)

// JobStatus is the coarse progress label reported in JobStatusUpdate events.
type JobStatus string

const (
	// JobStatusProcessing is emitted once the job aggregate has been (re)initialised.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusBranchResolved is recorded when one branch result has been applied.
	JobStatusBranchResolved JobStatus = "branch_resolved"
	// JobStatusCompleted is recorded after a successful completion notification.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed is recorded after a failed completion notification.
	JobStatusFailed JobStatus = "failed"
)

// JobStatusUpdate reports a job status transition.
type JobStatusUpdate struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Details   *string   `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewJobStatusUpdate builds a status update with optional details.
func NewJobStatusUpdate(jobID string, status JobStatus, details string, at time.Time) JobStatusUpdate {
	u := JobStatusUpdate{JobID: jobID, Status: status, Timestamp: at.UTC()}
	if details != "" {
		u.Details = &details
	}
	return u
}

// StatusForCompletion maps a terminal completion status to the status label recorded after notification.
func StatusForCompletion(c CompletionStatus) JobStatus {
	if c == CompletionSuccess {
		return JobStatusCompleted
	}
	return JobStatusFailed
}

// ProcessingComplete is the terminal event emitted exactly once per job.
type ProcessingComplete struct {
	JobID              string           `json:"job_id"`
	Email              string           `json:"email"`
	StartingAddress    string           `json:"starting_address"`
	DestinationAddress string           `json:"destination_address"`
	Outcome            CompletionStatus `json:"outcome"`
	Geocoding          json.RawMessage  `json:"geocoding,omitempty"`
	Directions         json.RawMessage  `json:"directions,omitempty"`
	Weather            json.RawMessage  `json:"weather,omitempty"`
	Imaging            json.RawMessage  `json:"imaging,omitempty"`
	CompletedAt        time.Time        `json:"completed_at"`
}

// NewProcessingComplete builds the terminal event from a job snapshot.
func NewProcessingComplete(job *Job, outcome CompletionStatus, at time.Time) ProcessingComplete {
	return ProcessingComplete{
		JobID:              job.ID,
		Email:              job.Email,
		StartingAddress:    job.StartingAddress,
		DestinationAddress: job.DestinationAddress,
		Outcome:            outcome,
		Geocoding:          job.Geocoding.Result,
		Directions:         job.Directions.Result,
		Weather:            job.Weather.Result,
		Imaging:            job.Imaging.Result,
		CompletedAt:        at.UTC(),
	}
}
