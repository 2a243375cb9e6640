package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
)

const resultColumns = `id, post_id, platform, status, platform_post_id, url, failure_kind, error_message, content_sent, attempt_count, posted_at, created_at, updated_at`

// ResultRepository keeps the current outcome per (post, platform).
type ResultRepository struct{ db *sql.DB }

func NewResultRepository(db *sql.DB) repository.IResult { return &ResultRepository{db: db} }

// Upsert never overwrites a posted row; a late stale failure is dropped.
func (r *ResultRepository) Upsert(ctx context.Context, res *model.PublishResult) error {
	now := time.Now().UTC()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	res.UpdatedAt = now
	q := `INSERT INTO publish_results (post_id, platform, status, platform_post_id, url, failure_kind, error_message, content_sent, attempt_count, posted_at, created_at, updated_at)
		  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1,$9,$10,$11)
		  ON CONFLICT (post_id, platform) DO UPDATE SET
			status=EXCLUDED.status,
			platform_post_id=EXCLUDED.platform_post_id,
			url=EXCLUDED.url,
			failure_kind=EXCLUDED.failure_kind,
			error_message=EXCLUDED.error_message,
			content_sent=EXCLUDED.content_sent,
			attempt_count=publish_results.attempt_count + 1,
			posted_at=EXCLUDED.posted_at,
			updated_at=EXCLUDED.updated_at
		  WHERE publish_results.status <> 'posted'
		  RETURNING id, attempt_count`
	err := r.db.QueryRowContext(ctx, q, res.PostID, res.Platform, res.Status, res.PlatformPostID, res.URL, res.FailureKind,
		res.ErrorMessage, res.ContentSent, res.PostedAt, res.CreatedAt, res.UpdatedAt).Scan(&res.ID, &res.AttemptCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

func (r *ResultRepository) ListByPost(ctx context.Context, postID int64) ([]*model.PublishResult, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+resultColumns+` FROM publish_results WHERE post_id=$1 ORDER BY platform`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*model.PublishResult
	for rows.Next() {
		res := &model.PublishResult{}
		var platformPostID, url, failureKind, errMsg sql.NullString
		var postedAt sql.NullTime
		if err := rows.Scan(&res.ID, &res.PostID, &res.Platform, &res.Status, &platformPostID, &url, &failureKind, &errMsg,
			&res.ContentSent, &res.AttemptCount, &postedAt, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		if platformPostID.Valid {
			v := platformPostID.String
			res.PlatformPostID = &v
		}
		if url.Valid {
			v := url.String
			res.URL = &v
		}
		if failureKind.Valid {
			k := model.FailureKind(failureKind.String)
			res.FailureKind = &k
		}
		if errMsg.Valid {
			v := errMsg.String
			res.ErrorMessage = &v
		}
		if postedAt.Valid {
			t := postedAt.Time
			res.PostedAt = &t
		}
		list = append(list, res)
	}
	return list, rows.Err()
}
