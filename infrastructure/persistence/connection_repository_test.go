package persistence

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-publisher/domain/model"
)

var connectionRowColumns = []string{"id", "user_id", "platform", "access_token", "access_token_secret", "refresh_token",
	"expires_at", "is_active", "account_id", "account_name", "scopes", "token_type", "created_at", "updated_at"}

func TestConnectionRepository_ConnectReplacesActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE platform_connections SET is_active=FALSE, updated_at=$1 WHERE user_id=$2 AND platform=$3 AND is_active`)).
		WithArgs(sqlmock.AnyArg(), "user-1", "TWITTER").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO platform_connections`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	conn := &model.PlatformConnection{UserID: "user-1", Platform: model.PlatformTwitter, AccessToken: "tok", AccessTokenSecret: "sec"}
	require.NoError(t, NewConnectionRepository(db).Connect(context.Background(), conn))
	assert.Equal(t, int64(11), conn.ID)
	assert.True(t, conn.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionRepository_ConnectRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE platform_connections SET is_active=FALSE`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO platform_connections`)).
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	conn := &model.PlatformConnection{UserID: "user-1", Platform: model.PlatformFacebook, AccessToken: "tok"}
	assert.Error(t, NewConnectionRepository(db).Connect(context.Background(), conn))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionRepository_ListActiveByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM platform_connections WHERE user_id=$1 AND is_active ORDER BY platform`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(connectionRowColumns).
			AddRow(1, "user-1", "FACEBOOK", "page-token", "", "", nil, true, "page-9", "My Page", "pages_manage_posts", "page", now, now).
			AddRow(2, "user-1", "LINKEDIN", "li-token", "", "li-refresh", exp, true, nil, nil, "w_member_social", nil, now, now))

	list, err := NewConnectionRepository(db).ListActiveByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	fb := list[0]
	assert.Equal(t, model.PlatformFacebook, fb.Platform)
	assert.Nil(t, fb.ExpiresAt)
	assert.Equal(t, "page-9", fb.Credential().AccountID)
	require.NotNil(t, fb.TokenType)
	assert.Equal(t, "page", *fb.TokenType)

	li := list[1]
	require.NotNil(t, li.ExpiresAt)
	assert.True(t, li.Expired(exp))
	assert.Nil(t, li.AccountID)
	assert.Equal(t, "li-refresh", li.RefreshToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionRepository_GetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM platform_connections WHERE id=$1`)).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(connectionRowColumns))

	_, err = NewConnectionRepository(db).GetByID(context.Background(), 4)
	assert.ErrorIs(t, err, model.ErrConnectionNotFound)
}

func TestConnectionRepository_UpdateCredentialsAndDeactivate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	exp := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE platform_connections SET access_token=$1, refresh_token=$2, expires_at=$3, updated_at=$4 WHERE id=$5`)).
		WithArgs("new-access", "new-refresh", exp, sqlmock.AnyArg(), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE platform_connections SET is_active=FALSE, updated_at=$1 WHERE id=$2`)).
		WithArgs(sqlmock.AnyArg(), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewConnectionRepository(db)
	require.NoError(t, repo.UpdateCredentials(context.Background(), 2, "new-access", "new-refresh", &exp))
	require.NoError(t, repo.Deactivate(context.Background(), 2))
	require.NoError(t, mock.ExpectationsWereMet())
}
