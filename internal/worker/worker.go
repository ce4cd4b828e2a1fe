// Package worker runs the analysis pipeline: claim a job, fetch its media,
// compose a prompt, call the provider, store the result and finalize.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/medialens/internal/ai"
	"github.com/kiranshivaraju/medialens/internal/cache"
	"github.com/kiranshivaraju/medialens/internal/config"
	"github.com/kiranshivaraju/medialens/internal/media"
	"github.com/kiranshivaraju/medialens/internal/prompt"
	"github.com/kiranshivaraju/medialens/internal/store"
	"github.com/kiranshivaraju/medialens/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// statusTTL bounds how long a mirrored job status lives in the cache.
const statusTTL = 24 * time.Hour

// maxErrorText bounds last_error.
const maxErrorText = 2000

// ProviderLookup resolves the provider for a media kind.
type ProviderLookup interface {
	ProviderFor(kind models.MediaKind) (models.AnalysisProvider, bool)
}

type MediaFetcher interface {
	Fetch(ctx context.Context, locator string, hint *models.MediaDescriptor) (*media.Media, error)
}

type PromptComposer interface {
	Compose(ctx context.Context, kind models.MediaKind, tenantID *string) (string, error)
}

type ResultWriter interface {
	Store(ctx context.Context, job *models.Job, out models.AnalysisOutput, providerName string) (*models.AnalysisResult, error)
}

// Deps are the collaborators a Worker drives. Cache, Logger and Now are optional.
type Deps struct {
	Jobs      store.JobStore
	Providers ProviderLookup
	Fetcher   MediaFetcher
	Prompts   PromptComposer
	Results   ResultWriter
	Cache     cache.Cache
	Logger    *slog.Logger
	Now       func() time.Time
}

type Worker struct {
	deps    Deps
	cfg     config.WorkerConfig
	logger  *slog.Logger
	now     func() time.Time
	tracer  trace.Tracer
	metrics *instruments
}

func New(deps Deps, cfg config.WorkerConfig) *Worker {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Worker{
		deps:    deps,
		cfg:     cfg,
		logger:  logger.With("component", "worker"),
		now:     now,
		tracer:  otel.Tracer(instrumentationName),
		metrics: newInstruments(),
	}
}

// Run polls until ctx is cancelled. Each of the Concurrency loops holds at
// most one job; on cancellation no new job is claimed and Run returns once
// in-flight jobs are finalized.
func (w *Worker) Run(ctx context.Context) error {
	if !w.cfg.Enabled {
		w.logger.Info("analysis disabled, worker idle")
		<-ctx.Done()
		return nil
	}

	w.logger.Info("worker started",
		"concurrency", w.cfg.Concurrency,
		"poll_interval", w.cfg.PollInterval,
		"max_attempts", w.cfg.MaxAttempts,
	)

	var wg sync.WaitGroup
	if w.cfg.LeaseTimeout > 0 && w.cfg.LeaseSweepInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.sweepLoop(ctx)
		}()
	}

	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.pollLoop(ctx, slot)
		}(i)
	}

	wg.Wait()
	w.logger.Info("worker stopped")
	return nil
}

func (w *Worker) pollLoop(ctx context.Context, slot int) {
	for ctx.Err() == nil {
		if w.RunOnce(ctx) {
			continue
		}
		if err := sleep(ctx, w.cfg.PollInterval); err != nil {
			return
		}
	}
	w.logger.Debug("poll loop exiting", "slot", slot)
}

// RunOnce claims and processes at most one job. It reports whether a job was
// claimed. Claim errors are logged and treated as an empty queue.
func (w *Worker) RunOnce(ctx context.Context) bool {
	job, err := w.deps.Jobs.ClaimNextJob(ctx, w.now())
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("claim failed", "error", err)
		}
		return false
	}
	if job == nil {
		return false
	}

	// A claimed job always runs to finalization, even during shutdown.
	w.process(context.WithoutCancel(ctx), job)
	return true
}

// jobError carries the retry classification of a pipeline failure.
type jobError struct {
	err       error
	permanent bool
}

func (e *jobError) Error() string { return e.err.Error() }
func (e *jobError) Unwrap() error { return e.err }

func permanent(err error) error { return &jobError{err: err, permanent: true} }
func retryable(err error) error { return &jobError{err: err} }

func (w *Worker) process(ctx context.Context, job *models.Job) {
	start := w.now()
	kindAttr := attribute.String("media_kind", string(job.MediaKind))

	ctx, span := w.tracer.Start(ctx, "analysis.job", trace.WithAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.subject_id", job.SubjectID),
		attribute.Int("job.attempt", job.Attempts),
		kindAttr,
	))
	defer span.End()

	logger := w.logger.With("job_id", job.ID, "subject_id", job.SubjectID,
		"media_kind", job.MediaKind, "attempt", job.Attempts)
	logger.Info("job claimed")
	w.metrics.claimed.Add(ctx, 1, metric.WithAttributes(kindAttr))
	w.mirrorStatus(ctx, job.SubjectID, models.JobStatusProcessing)

	defer func() {
		w.metrics.duration.Record(ctx, w.now().Sub(start).Seconds(), metric.WithAttributes(kindAttr))
	}()

	err := w.safeExecute(ctx, job, logger)

	if err == nil {
		if ferr := w.deps.Jobs.FinalizeSuccess(ctx, job.ID); ferr != nil {
			logger.Error("finalize success failed", "error", ferr)
			span.RecordError(ferr)
			span.SetStatus(codes.Error, "finalize failed")
			return
		}
		w.metrics.completed.Add(ctx, 1, metric.WithAttributes(kindAttr))
		w.mirrorStatus(ctx, job.SubjectID, models.JobStatusCompleted)
		logger.Info("job completed", "duration_ms", w.now().Sub(start).Milliseconds())
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var retryAfter *time.Duration
	var je *jobError
	isPermanent := errors.As(err, &je) && je.permanent
	if !isPermanent {
		d := Backoff(job.Attempts, w.cfg.RetryBackoffBase, w.cfg.RetryBackoffMax)
		retryAfter = &d
	}

	status, ferr := w.deps.Jobs.FinalizeFailure(ctx, job.ID, errorText(err), retryAfter)
	if ferr != nil {
		logger.Error("finalize failure failed", "error", ferr, "job_error", err)
		return
	}

	if status == models.JobStatusFailed || retryAfter == nil {
		w.metrics.failed.Add(ctx, 1, metric.WithAttributes(kindAttr))
		logger.Warn("job failed", "error", err, "permanent", isPermanent)
	} else {
		w.metrics.retried.Add(ctx, 1, metric.WithAttributes(kindAttr))
		logger.Warn("job will retry", "error", err, "retry_after", *retryAfter)
	}
	w.mirrorStatus(ctx, job.SubjectID, status)
}

// safeExecute turns a panic inside the pipeline into a retryable failure.
func (w *Worker) safeExecute(ctx context.Context, job *models.Job, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in pipeline", "panic", r)
			err = retryable(fmt.Errorf("panic: %v", r))
		}
	}()
	return w.execute(ctx, job, logger)
}

func (w *Worker) execute(ctx context.Context, job *models.Job, logger *slog.Logger) error {
	provider, ok := w.deps.Providers.ProviderFor(job.MediaKind)
	if !ok {
		return permanent(fmt.Errorf("no provider configured for %s", job.MediaKind))
	}

	if job.MediaKind == models.MediaKindVideo {
		limit := videoLimit(w.cfg.MaxVideoDuration, provider.Capabilities().MaxVideoDuration)
		if d := job.MediaDescriptor.DurationValue(); limit > 0 && d > limit {
			return permanent(fmt.Errorf("video duration %s exceeds limit %s", d, limit))
		}
	}

	m, err := w.deps.Fetcher.Fetch(ctx, job.MediaLocator, job.MediaDescriptor)
	if err != nil {
		if media.IsPermanent(err) {
			return permanent(fmt.Errorf("fetch media: %w", err))
		}
		return retryable(fmt.Errorf("fetch media: %w", err))
	}
	logger.Debug("media fetched", "bytes", len(m.Data), "content_type", m.ContentType)

	text, err := w.deps.Prompts.Compose(ctx, job.MediaKind, job.TenantID)
	if err != nil {
		return retryable(fmt.Errorf("compose prompt: %w", err))
	}
	if text == "" {
		text = prompt.DefaultFor(job.MediaKind)
	}

	out, err := ai.Analyze(ctx, provider, job.MediaKind, m.Data, m.ContentType, text)
	if err != nil {
		if ai.IsPermanent(err) {
			return permanent(fmt.Errorf("%s: %w", provider.Name(), err))
		}
		return retryable(fmt.Errorf("%s: %w", provider.Name(), err))
	}

	if _, err := w.deps.Results.Store(ctx, job, out, provider.Name()); err != nil {
		return retryable(err)
	}
	return nil
}

// videoLimit is the tighter of the configured and provider limits; zero
// means unbounded.
func videoLimit(configured, provider time.Duration) time.Duration {
	switch {
	case configured <= 0:
		return provider
	case provider <= 0:
		return configured
	case provider < configured:
		return provider
	}
	return configured
}

func (w *Worker) mirrorStatus(ctx context.Context, subjectID string, status models.JobStatus) {
	if w.deps.Cache == nil {
		return
	}
	if err := w.deps.Cache.SetJobStatus(ctx, subjectID, string(status), statusTTL); err != nil {
		w.logger.Debug("status mirror failed", "subject_id", subjectID, "error", err)
	}
}

// errorText renders err for last_error. Postgres rejects invalid UTF-8 and NUL
// bytes in text columns, so both are scrubbed and the cut lands on a rune start.
func errorText(err error) string {
	s := strings.ToValidUTF8(err.Error(), "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "")
	if len(s) <= maxErrorText {
		return s
	}
	cut := maxErrorText
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
