package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/medialens/pkg/models"
)

const leaseExpiredError = "lease expired"

var validate = validator.New()

const jobColumns = `id, subject_id, media_kind, media_locator, media_descriptor, tenant_id, status,
	attempts, last_error, not_before, started_at, completed_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j          models.Job
		descriptor []byte
	)
	err := row.Scan(&j.ID, &j.SubjectID, &j.MediaKind, &j.MediaLocator, &descriptor, &j.TenantID,
		&j.Status, &j.Attempts, &j.LastError, &j.NotBefore, &j.StartedAt, &j.CompletedAt,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(descriptor) > 0 {
		var d models.MediaDescriptor
		if err := json.Unmarshal(descriptor, &d); err != nil {
			return nil, fmt.Errorf("decode media descriptor: %w", err)
		}
		j.MediaDescriptor = &d
	}
	return &j, nil
}

// CreateJob inserts a pending job. Producers normally own this; it is used by
// tooling and tests.
func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	if err := validate.Struct(job); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}

	descriptor, err := job.DescriptorJSON()
	if err != nil {
		return fmt.Errorf("encode media descriptor: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_jobs (id, subject_id, media_kind, media_locator, media_descriptor, tenant_id,
		   status, attempts, not_before, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, job.SubjectID, string(job.MediaKind), job.MediaLocator, descriptor, job.TenantID,
		string(job.Status), job.Attempts, job.NotBefore, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// ClaimNextJob moves the oldest eligible pending job to processing and returns
// it, or returns nil when nothing is eligible. Rows locked by concurrent
// claimants are skipped rather than waited on.
func (s *PostgresStore) ClaimNextJob(ctx context.Context, now time.Time) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`WITH next AS (
		   SELECT id FROM analysis_jobs
		   WHERE status = 'pending'
		     AND attempts < $2
		     AND (not_before IS NULL OR not_before <= $1)
		   ORDER BY created_at ASC
		   LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 UPDATE analysis_jobs j
		 SET status = 'processing',
		     attempts = j.attempts + 1,
		     started_at = $1,
		     not_before = NULL,
		     updated_at = $1
		 FROM next
		 WHERE j.id = next.id
		 RETURNING j.id, j.subject_id, j.media_kind, j.media_locator, j.media_descriptor, j.tenant_id, j.status,
		   j.attempts, j.last_error, j.not_before, j.started_at, j.completed_at, j.created_at, j.updated_at`,
		now, s.maxAttempts)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

// lockJob loads a job row under FOR UPDATE inside tx.
func lockJob(ctx context.Context, tx pgx.Tx, where string, arg any) (*models.Job, error) {
	job, err := scanJob(tx.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs WHERE `+where+` FOR UPDATE`, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock job: %w", err)
	}
	return job, nil
}

func checkTransition(job *models.Job, next models.JobStatus) error {
	if !job.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, next)
	}
	return nil
}

func (s *PostgresStore) FinalizeSuccess(ctx context.Context, id uuid.UUID) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		job, err := lockJob(ctx, tx, "id = $1", id)
		if err != nil {
			return err
		}
		if err := checkTransition(job, models.JobStatusCompleted); err != nil {
			return err
		}

		now := s.now()
		_, err = tx.Exec(ctx,
			`UPDATE analysis_jobs
			 SET status = 'completed', completed_at = $2, last_error = NULL, updated_at = $2
			 WHERE id = $1`, id, now)
		if err != nil {
			return fmt.Errorf("finalize success: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) FinalizeFailure(ctx context.Context, id uuid.UUID, errText string, retryAfter *time.Duration) (models.JobStatus, error) {
	var result models.JobStatus
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		job, err := lockJob(ctx, tx, "id = $1", id)
		if err != nil {
			return err
		}

		next := models.JobStatusPending
		if retryAfter == nil || job.Attempts >= s.maxAttempts {
			next = models.JobStatusFailed
		}
		if err := checkTransition(job, next); err != nil {
			return err
		}

		now := s.now()
		if next == models.JobStatusFailed {
			_, err = tx.Exec(ctx,
				`UPDATE analysis_jobs
				 SET status = 'failed', last_error = $2, completed_at = $3, not_before = NULL, updated_at = $3
				 WHERE id = $1`, id, errText, now)
		} else {
			_, err = tx.Exec(ctx,
				`UPDATE analysis_jobs
				 SET status = 'pending', last_error = $2, not_before = $3, started_at = NULL, updated_at = $4
				 WHERE id = $1`, id, errText, now.Add(*retryAfter), now)
		}
		if err != nil {
			return fmt.Errorf("finalize failure: %w", err)
		}
		result = next
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// ReclaimStaleJobs returns processing jobs whose lease has expired to the
// queue, or fails them when their attempts are exhausted.
func (s *PostgresStore) ReclaimStaleJobs(ctx context.Context, leaseTimeout time.Duration) (int64, error) {
	now := s.now()
	tag, err := s.pool.Exec(ctx,
		`WITH stale AS (
		   SELECT id FROM analysis_jobs
		   WHERE status = 'processing' AND started_at < $1
		   FOR UPDATE SKIP LOCKED
		 )
		 UPDATE analysis_jobs j
		 SET status = CASE WHEN j.attempts >= $2::int THEN 'failed' ELSE 'pending' END,
		     completed_at = CASE WHEN j.attempts >= $2::int THEN $3::timestamptz ELSE NULL END,
		     started_at = CASE WHEN j.attempts >= $2::int THEN j.started_at ELSE NULL END,
		     last_error = $4,
		     updated_at = $3::timestamptz
		 FROM stale
		 WHERE j.id = stale.id`,
		now.Add(-leaseTimeout), s.maxAttempts, now, leaseExpiredError)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) GetJobBySubject(ctx context.Context, subjectID string) (*models.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs WHERE subject_id = $1`, subjectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// RequeueJob is the operator escape hatch for failed jobs: it resets the
// attempt budget and makes the job immediately claimable.
func (s *PostgresStore) RequeueJob(ctx context.Context, subjectID string) (*models.Job, error) {
	var requeued *models.Job
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		job, err := lockJob(ctx, tx, "subject_id = $1", subjectID)
		if err != nil {
			return err
		}
		if job.Status != models.JobStatusFailed {
			return fmt.Errorf("%w: only failed jobs can be requeued, job is %s", ErrInvalidTransition, job.Status)
		}

		now := s.now()
		requeued, err = scanJob(tx.QueryRow(ctx,
			`UPDATE analysis_jobs
			 SET status = 'pending', attempts = 0, last_error = NULL, not_before = NULL,
			     started_at = NULL, completed_at = NULL, updated_at = $2
			 WHERE id = $1
			 RETURNING `+jobColumns, job.ID, now))
		if err != nil {
			return fmt.Errorf("requeue job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return requeued, nil
}

func (s *PostgresStore) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM analysis_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := map[models.JobStatus]int{
		models.JobStatusPending:    0,
		models.JobStatusProcessing: 0,
		models.JobStatusCompleted:  0,
		models.JobStatusFailed:     0,
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[models.JobStatus(status)] = n
	}
	return counts, rows.Err()
}
