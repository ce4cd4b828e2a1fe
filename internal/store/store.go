package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/medialens/pkg/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicateKey      = errors.New("duplicate key violation")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrInvalidJob        = errors.New("invalid job")
)

// JobStore is the queue contract used by workers. ClaimNextJob must hand a
// given pending job to exactly one caller and never block on rows another
// caller holds.
type JobStore interface {
	ClaimNextJob(ctx context.Context, now time.Time) (*models.Job, error)
	FinalizeSuccess(ctx context.Context, id uuid.UUID) error
	// FinalizeFailure records errText and returns the resulting status. A nil
	// retryAfter forces a terminal failure.
	FinalizeFailure(ctx context.Context, id uuid.UUID, errText string, retryAfter *time.Duration) (models.JobStatus, error)
	ReclaimStaleJobs(ctx context.Context, leaseTimeout time.Duration) (int64, error)
}

// JobAdmin covers operator-facing job operations.
type JobAdmin interface {
	GetJobBySubject(ctx context.Context, subjectID string) (*models.Job, error)
	RequeueJob(ctx context.Context, subjectID string) (*models.Job, error)
	CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

type ResultStore interface {
	UpsertAnalysisResult(ctx context.Context, result *models.AnalysisResult) (*models.AnalysisResult, error)
	ListResultsBySubject(ctx context.Context, subjectID string) ([]*models.AnalysisResult, error)
}

type PromptStore interface {
	ListActivePrompts(ctx context.Context, kind models.MediaKind, tenantID *string) ([]*models.PromptRecord, error)
	SetPrompt(ctx context.Context, tier models.PromptTier, tenantID *string, content string) (*models.PromptRecord, error)
}

type KeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	CreateJob(ctx context.Context, job *models.Job) error

	JobStore
	JobAdmin
	ResultStore
	PromptStore
	KeyStore
}

// Option configures a PostgresStore.
type Option func(*PostgresStore)

// WithMaxAttempts sets the claim ceiling. Jobs at or above it are never
// claimed and fail terminally on their next failure.
func WithMaxAttempts(n int) Option {
	return func(s *PostgresStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithClock overrides the time source used for finalize bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *PostgresStore) {
		s.now = now
	}
}
