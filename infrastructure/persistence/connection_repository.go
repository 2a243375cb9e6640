package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
)

const connectionColumns = `id, user_id, platform, access_token, access_token_secret, refresh_token, expires_at, is_active, account_id, account_name, scopes, token_type, created_at, updated_at`

// ConnectionRepository stores platform credentials in PostgreSQL.
type ConnectionRepository struct{ db *sql.DB }

func NewConnectionRepository(db *sql.DB) repository.IConnection {
	return &ConnectionRepository{db: db}
}

// Connect replaces the active connection for (user, platform) in one transaction.
func (r *ConnectionRepository) Connect(ctx context.Context, c *model.PlatformConnection) (err error) {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.IsActive = true

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `UPDATE platform_connections SET is_active=FALSE, updated_at=$1 WHERE user_id=$2 AND platform=$3 AND is_active`,
		now, c.UserID, c.Platform); err != nil {
		return err
	}
	q := `INSERT INTO platform_connections (user_id, platform, access_token, access_token_secret, refresh_token, expires_at, is_active, account_id, account_name, scopes, token_type, created_at, updated_at)
		  VALUES ($1,$2,$3,$4,$5,$6,TRUE,$7,$8,$9,$10,$11,$12)
		  RETURNING id`
	if err = tx.QueryRowContext(ctx, q, c.UserID, c.Platform, c.AccessToken, c.AccessTokenSecret, c.RefreshToken, c.ExpiresAt,
		c.AccountID, c.AccountName, c.Scopes, c.TokenType, c.CreatedAt, c.UpdatedAt).Scan(&c.ID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id int64) (*model.PlatformConnection, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM platform_connections WHERE id=$1`, id)
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrConnectionNotFound
	}
	return c, err
}

func (r *ConnectionRepository) ListActiveByUser(ctx context.Context, userID string) ([]*model.PlatformConnection, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+connectionColumns+` FROM platform_connections WHERE user_id=$1 AND is_active ORDER BY platform`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*model.PlatformConnection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *ConnectionRepository) UpdateCredentials(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE platform_connections SET access_token=$1, refresh_token=$2, expires_at=$3, updated_at=$4 WHERE id=$5`,
		accessToken, refreshToken, expiresAt, time.Now().UTC(), id)
	return err
}

func (r *ConnectionRepository) Deactivate(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE platform_connections SET is_active=FALSE, updated_at=$1 WHERE id=$2`, time.Now().UTC(), id)
	return err
}

func scanConnection(s scanner) (*model.PlatformConnection, error) {
	c := &model.PlatformConnection{}
	var exp sql.NullTime
	var accountID, accountName, tokenType sql.NullString
	if err := s.Scan(&c.ID, &c.UserID, &c.Platform, &c.AccessToken, &c.AccessTokenSecret, &c.RefreshToken, &exp, &c.IsActive,
		&accountID, &accountName, &c.Scopes, &tokenType, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if exp.Valid {
		t := exp.Time
		c.ExpiresAt = &t
	}
	if accountID.Valid {
		v := accountID.String
		c.AccountID = &v
	}
	if accountName.Valid {
		v := accountName.String
		c.AccountName = &v
	}
	if tokenType.Valid {
		v := tokenType.String
		c.TokenType = &v
	}
	return c, nil
}
