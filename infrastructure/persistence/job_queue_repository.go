package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/logger"
)

const jobColumns = `id, kind, post_id, status, attempt, run_at, last_error, dedupe_key, created_at, updated_at`

// JobQueueConfig controls redelivery of jobs whose handler errored.
type JobQueueConfig struct {
	MaxRedeliveries int
	RetryBase       time.Duration
	RetryMax        time.Duration
}

// JobQueueRepository is a PostgreSQL backed task queue. Producers insert
// pending rows; workers claim them with FOR UPDATE SKIP LOCKED so a job is
// handed to exactly one worker.
type JobQueueRepository struct {
	db  *sql.DB
	cfg JobQueueConfig
}

func NewJobQueueRepository(db *sql.DB, cfg JobQueueConfig) *JobQueueRepository {
	if cfg.MaxRedeliveries <= 0 {
		cfg.MaxRedeliveries = 5
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 10 * time.Second
	}
	if cfg.RetryMax < cfg.RetryBase {
		cfg.RetryMax = cfg.RetryBase
	}
	return &JobQueueRepository{db: db, cfg: cfg}
}

func publishDedupeKey(postID int64, attempt int) string {
	return fmt.Sprintf("publish:%d:%d", postID, attempt)
}

const sweepDedupeKey = "sweep"

func (r *JobQueueRepository) EnqueuePublish(ctx context.Context, postID int64) error {
	return r.insert(ctx, model.JobKindPublish, &postID, 1, time.Now().UTC(), nil, publishDedupeKey(postID, 1))
}

func (r *JobQueueRepository) EnqueueRetry(ctx context.Context, task model.Task, runAt time.Time, lastErr string) error {
	postID := task.PostID
	return r.insert(ctx, model.JobKindPublish, &postID, task.Attempt, runAt.UTC(), &lastErr, publishDedupeKey(task.PostID, task.Attempt))
}

func (r *JobQueueRepository) EnqueueSweep(ctx context.Context, runAt time.Time) error {
	return r.insert(ctx, model.JobKindSweep, nil, 1, runAt.UTC(), nil, sweepDedupeKey)
}

// insert is a no-op when a pending job with the same dedupe key exists.
func (r *JobQueueRepository) insert(ctx context.Context, kind model.JobKind, postID *int64, attempt int, runAt time.Time, lastErr *string, dedupe string) error {
	now := time.Now().UTC()
	q := `INSERT INTO publish_jobs (kind, post_id, status, attempt, run_at, last_error, dedupe_key, created_at, updated_at)
		  VALUES ($1,$2,'pending',$3,$4,$5,$6,$7,$8)
		  ON CONFLICT (dedupe_key) WHERE status='pending' DO NOTHING`
	res, err := r.db.ExecContext(ctx, q, kind, postID, attempt, runAt, lastErr, dedupe, now, now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		logger.GetLogger().WithField("dedupe_key", dedupe).Debug("Job already pending, skipped")
	}
	return nil
}

func (r *JobQueueRepository) Claim(ctx context.Context, now time.Time) (*model.Job, error) {
	q := `UPDATE publish_jobs SET status='running', locked_at=$1, updated_at=$1
		  WHERE id = (
			SELECT id FROM publish_jobs
			WHERE status='pending' AND run_at <= $1
			ORDER BY run_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		  )
		  RETURNING ` + jobColumns
	row := r.db.QueryRowContext(ctx, q, now.UTC())
	j := &model.Job{}
	var postID sql.NullInt64
	var lastErr, dedupe sql.NullString
	if err := row.Scan(&j.ID, &j.Kind, &postID, &j.Status, &j.Attempts, &j.RunAt, &lastErr, &dedupe, &j.CreatedAt, &j.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNoJobAvailable
		}
		return nil, err
	}
	if postID.Valid {
		v := postID.Int64
		j.PostID = &v
	}
	if lastErr.Valid {
		v := lastErr.String
		j.LastError = &v
	}
	if dedupe.Valid {
		v := dedupe.String
		j.DedupeKey = &v
	}
	return j, nil
}

func (r *JobQueueRepository) Complete(ctx context.Context, jobID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE publish_jobs SET status='done', locked_at=NULL, updated_at=$1 WHERE id=$2`, time.Now().UTC(), jobID)
	return err
}

// Fail puts the job back to pending with a capped exponential delay. After
// MaxRedeliveries failures, or when an equivalent job is already pending,
// the job is left failed.
func (r *JobQueueRepository) Fail(ctx context.Context, jobID int64, errMsg string) error {
	q := `UPDATE publish_jobs SET
			failures = failures + 1,
			status = CASE
				WHEN failures + 1 >= $1 THEN 'failed'
				WHEN EXISTS (SELECT 1 FROM publish_jobs p WHERE p.status='pending' AND p.dedupe_key = publish_jobs.dedupe_key) THEN 'failed'
				ELSE 'pending' END,
			run_at = $2::timestamptz + LEAST($3 * power(2, failures), $4) * interval '1 second',
			last_error = $5, locked_at = NULL, updated_at = $2
		  WHERE id = $6
		  RETURNING status, failures`
	now := time.Now().UTC()
	var status string
	var failures int
	err := r.db.QueryRowContext(ctx, q, r.cfg.MaxRedeliveries, now,
		r.cfg.RetryBase.Seconds(), r.cfg.RetryMax.Seconds(), errMsg, jobID).Scan(&status, &failures)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	lg := logger.GetLogger().WithField("job_id", jobID).WithField("failures", failures)
	if status == "failed" {
		lg.WithField("error", errMsg).Error("Job left failed, no further redelivery")
	} else {
		lg.Warn("Job rescheduled for redelivery")
	}
	return nil
}

// RequeueStale puts jobs abandoned by a crashed worker back to pending,
// unless an equivalent job is already pending.
func (r *JobQueueRepository) RequeueStale(ctx context.Context, before time.Time) (int64, error) {
	q := `UPDATE publish_jobs j SET status='pending', locked_at=NULL, updated_at=$1
		  WHERE j.status='running' AND j.locked_at < $2
		  AND NOT EXISTS (
			SELECT 1 FROM publish_jobs p WHERE p.status='pending' AND p.dedupe_key = j.dedupe_key
		  )`
	res, err := r.db.ExecContext(ctx, q, time.Now().UTC(), before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
