package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
)

const postColumns = `id, user_id, text, enhanced_text, platforms, image_urls, video_urls, scheduled_for, status, error_message, platform_urls, created_at, updated_at`

// PostRepository stores posts in PostgreSQL.
type PostRepository struct{ db *sql.DB }

func NewPostRepository(db *sql.DB) repository.IPost { return &PostRepository{db: db} }

func (r *PostRepository) Create(ctx context.Context, p *model.Post) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	enhanced, err := marshalPlatformMap(p.EnhancedText)
	if err != nil {
		return err
	}
	urls, err := marshalPlatformMap(p.PlatformURLs)
	if err != nil {
		return err
	}
	q := `INSERT INTO posts (user_id, text, enhanced_text, platforms, image_urls, video_urls, scheduled_for, status, error_message, platform_urls, created_at, updated_at)
		  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		  RETURNING id`
	row := r.db.QueryRowContext(ctx, q, p.UserID, p.Text, enhanced, pq.Array(platformStrings(p.Platforms)),
		pq.Array(nonNil(p.ImageURLs)), pq.Array(nonNil(p.VideoURLs)), p.ScheduledFor, p.Status, p.ErrorMessage, urls, p.CreatedAt, p.UpdatedAt)
	return row.Scan(&p.ID)
}

func (r *PostRepository) GetByID(ctx context.Context, id int64) (*model.Post, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id=$1`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrPostNotFound
	}
	return p, err
}

func (r *PostRepository) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts WHERE status='scheduled' AND scheduled_for <= $1 ORDER BY scheduled_for ASC, id ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *PostRepository) TransitionStatus(ctx context.Context, id int64, from []model.PostStatus, to model.PostStatus) (bool, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE posts SET status=$1, error_message=NULL, updated_at=$2 WHERE id=$3 AND status = ANY($4)`,
		to, time.Now().UTC(), id, pq.Array(states))
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *PostRepository) Reschedule(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE posts SET scheduled_for=$1, status='scheduled', updated_at=$2 WHERE id=$3 AND status IN ('draft','scheduled')`,
		at.UTC(), time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *PostRepository) FinishAttempt(ctx context.Context, id int64, status model.PostStatus, errMsg *string, urls map[model.Platform]string) (bool, error) {
	b, err := marshalPlatformMap(urls)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE posts SET status=$1, error_message=$2, platform_urls=$3, updated_at=$4 WHERE id=$5 AND status='posting'`,
		status, errMsg, b, time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(s scanner) (*model.Post, error) {
	p := &model.Post{}
	var enhanced, urls []byte
	var platforms, images, videos []string
	var scheduled sql.NullTime
	var errMsg sql.NullString
	if err := s.Scan(&p.ID, &p.UserID, &p.Text, &enhanced, pq.Array(&platforms), pq.Array(&images), pq.Array(&videos),
		&scheduled, &p.Status, &errMsg, &urls, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	for _, pl := range platforms {
		p.Platforms = append(p.Platforms, model.Platform(pl))
	}
	p.ImageURLs = images
	p.VideoURLs = videos
	if scheduled.Valid {
		t := scheduled.Time
		p.ScheduledFor = &t
	}
	if errMsg.Valid {
		v := errMsg.String
		p.ErrorMessage = &v
	}
	var err error
	if p.EnhancedText, err = unmarshalPlatformMap(enhanced); err != nil {
		return nil, err
	}
	if p.PlatformURLs, err = unmarshalPlatformMap(urls); err != nil {
		return nil, err
	}
	return p, nil
}

func marshalPlatformMap(m map[model.Platform]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func unmarshalPlatformMap(b []byte) (map[model.Platform]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[model.Platform]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

func platformStrings(ps []model.Platform) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
