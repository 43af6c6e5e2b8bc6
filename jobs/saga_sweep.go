package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/barangaylink/barangaylink/internal/identity"
	jobmetrics "github.com/barangaylink/barangaylink/internal/jobs"
	"github.com/barangaylink/barangaylink/internal/saga"
)

// SagaSweepJob scans for invite/activation sequences stuck in an
// intermediate state. It resolves activation records whose password step
// evidently succeeded (the user has signed in since) and flags the rest for
// manual remediation. Nothing is rolled back or retried automatically.
type SagaSweepJob struct {
	Sagas    saga.Repository
	Identity identity.AdminClient
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewSagaSweepJob initialises the sweep handler.
func NewSagaSweepJob(sagas saga.Repository, identityClient identity.AdminClient, logger *slog.Logger, metrics *jobmetrics.Metrics) *SagaSweepJob {
	return &SagaSweepJob{
		Sagas:    sagas,
		Identity: identityClient,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one sweep.
func (j *SagaSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("saga sweep: handler not configured")
	}
	var payload SagaSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.StallAfterMinutes <= 0 {
		payload.StallAfterMinutes = 30
	}

	tracker := j.Metrics.Track(TaskSagaSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.clock().Add(-time.Duration(payload.StallAfterMinutes) * time.Minute)
	records, err := j.Sagas.ListStalled(ctx, cutoff)
	if err != nil {
		resultErr = err
		return resultErr
	}

	stalled := 0
	for _, rec := range records {
		if rec.Kind == saga.KindActivate && rec.Status == saga.StatusPendingPassword && j.passwordEvidentlySet(ctx, rec) {
			if err := j.Sagas.Advance(ctx, rec.ID, saga.StatusComplete, nil); err != nil {
				j.Logger.Warn("saga sweep advance", slog.Any("error", err))
			}
			continue
		}
		stalled++
		j.Logger.Warn("stalled saga needs manual remediation",
			slog.String("saga_id", rec.ID.String()),
			slog.String("kind", string(rec.Kind)),
			slog.String("status", string(rec.Status)),
			slog.String("email", rec.Email),
		)
	}
	j.Metrics.SetStalled(stalled)
	return nil
}

// passwordEvidentlySet reports whether the invited user has signed in since
// the activation record was last touched. A sign-in requires a working
// password, so the out-of-band password step must have completed.
func (j *SagaSweepJob) passwordEvidentlySet(ctx context.Context, rec saga.Record) bool {
	if rec.UserID == nil {
		return false
	}
	ident, err := j.Identity.GetUser(ctx, *rec.UserID)
	if err != nil {
		j.Logger.Warn("saga sweep identity lookup", slog.Any("error", err))
		return false
	}
	return ident.LastSignInAt != nil && ident.LastSignInAt.After(rec.UpdatedAt)
}
