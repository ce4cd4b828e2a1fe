package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisKind names the output produced for a subject.
type AnalysisKind string

const (
	AnalysisKindDescription   AnalysisKind = "description"
	AnalysisKindTranscription AnalysisKind = "transcription"
)

// AnalysisResult is the persisted outcome of a successful analysis.
// At most one row exists per (SubjectID, AnalysisKind); later writes replace it.
type AnalysisResult struct {
	ID           uuid.UUID    `db:"id"            json:"id"`
	JobID        uuid.UUID    `db:"job_id"        json:"job_id"`
	SubjectID    string       `db:"subject_id"    json:"subject_id"`
	MediaKind    MediaKind    `db:"media_kind"    json:"media_kind"`
	AnalysisKind AnalysisKind `db:"analysis_kind" json:"analysis_kind"`
	Content      string       `db:"content"       json:"content"`
	Provider     string       `db:"provider"      json:"provider"`
	Model        string       `db:"model"         json:"model,omitempty"`
	TokensUsed   *int         `db:"tokens_used"   json:"tokens_used,omitempty"`
	ProcessingMS int64        `db:"processing_ms" json:"processing_ms"`
	CreatedAt    time.Time    `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"    json:"updated_at"`
}
