package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// jobTransitions is the complete set of legal status moves.
// failed -> pending is reserved for operator requeue.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing},
	JobStatusProcessing: {JobStatusCompleted, JobStatusPending, JobStatusFailed},
	JobStatusFailed:     {JobStatusPending},
}

// CanTransition reports whether a job may move from s to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no automatic transition leaves s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Job is one unit of analysis work for a single archived media item.
// Rows are inserted by the ingestion pipeline and only ever mutated by
// workers, the lease sweep, and operator requeue.
type Job struct {
	ID              uuid.UUID        `db:"id"               json:"id"`
	SubjectID       string           `db:"subject_id"       json:"subject_id"       validate:"required,max=255"`
	MediaKind       MediaKind        `db:"media_kind"       json:"media_kind"       validate:"oneof=image video audio"`
	MediaLocator    string           `db:"media_locator"    json:"media_locator"    validate:"required"`
	MediaDescriptor *MediaDescriptor `db:"media_descriptor" json:"media_descriptor,omitempty"`
	TenantID        *string          `db:"tenant_id"        json:"tenant_id,omitempty"`
	Status          JobStatus        `db:"status"           json:"status"           validate:"omitempty,oneof=pending processing completed failed"`
	Attempts        int              `db:"attempts"         json:"attempts"         validate:"gte=0"`
	LastError       *string          `db:"last_error"       json:"last_error,omitempty"`
	NotBefore       *time.Time       `db:"not_before"       json:"not_before,omitempty"`
	StartedAt       *time.Time       `db:"started_at"       json:"started_at,omitempty"`
	CompletedAt     *time.Time       `db:"completed_at"     json:"completed_at,omitempty"`
	CreatedAt       time.Time        `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at"       json:"updated_at"`
}

// DescriptorJSON encodes the descriptor for a jsonb column. A nil descriptor
// encodes as SQL NULL.
func (j *Job) DescriptorJSON() ([]byte, error) {
	if j.MediaDescriptor == nil {
		return nil, nil
	}
	return json.Marshal(j.MediaDescriptor)
}
