package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
	"social-publisher/infrastructure/metrics"
)

const reconnectMessage = "credential can no longer be refreshed; reconnect the account"

// ITokenBroker hands out usable credentials, refreshing expired ones.
type ITokenBroker interface {
	EnsureValid(ctx context.Context, conn *model.PlatformConnection) (*model.PlatformConnection, error)
}

type tokenBroker struct {
	connections repository.IConnection
	refreshers  repository.IRefresherTable
	locker      repository.ILocker
	lockTTL     time.Duration
	now         func() time.Time
}

func NewTokenBroker(connections repository.IConnection, refreshers repository.IRefresherTable, locker repository.ILocker, lockTTL time.Duration) ITokenBroker {
	return &tokenBroker{
		connections: connections,
		refreshers:  refreshers,
		locker:      locker,
		lockTTL:     lockTTL,
		now:         time.Now,
	}
}

// EnsureValid returns conn unchanged while it is unexpired. Otherwise it
// refreshes under a per-connection lock; failures are *model.PublishError.
func (b *tokenBroker) EnsureValid(ctx context.Context, conn *model.PlatformConnection) (*model.PlatformConnection, error) {
	if !conn.Expired(b.now()) {
		return conn, nil
	}
	refresher, err := b.refreshers.For(conn.Platform)
	if err != nil {
		return nil, model.NewAuthError(conn.Platform, "access token expired; reconnect the account", err)
	}

	release, err := b.locker.Acquire(ctx, fmt.Sprintf("refresh:%d", conn.ID), b.lockTTL)
	if err != nil {
		return nil, model.NewTransientError(conn.Platform, "could not acquire refresh lock", err)
	}
	defer release()

	// another holder may have refreshed while we waited
	current, err := b.connections.GetByID(ctx, conn.ID)
	if err != nil {
		return nil, model.NewTransientError(conn.Platform, "could not reload connection", err)
	}
	if !current.IsActive {
		return nil, model.NewAuthError(conn.Platform, "connection was deactivated; reconnect the account", nil)
	}
	if !current.Expired(b.now()) {
		return current, nil
	}

	lg := logger.GetLogger().WithField("platform", conn.Platform).WithField("connection_id", conn.ID)
	tok, err := refresher.Refresh(ctx, current)
	if err != nil {
		var pe *model.PublishError
		switch {
		case errors.Is(err, model.ErrRefreshRejected):
			metrics.ObserveRefresh(conn.Platform, "rejected")
			lg.WithField("error", err).Warn("Refresh rejected, deactivating connection")
			if derr := b.connections.Deactivate(ctx, conn.ID); derr != nil {
				lg.WithField("error", derr).Error("Error while deactivating connection")
			}
			return nil, model.NewAuthError(conn.Platform, reconnectMessage, err)
		case errors.As(err, &pe) && pe.Kind != model.FailureTransient:
			metrics.ObserveRefresh(conn.Platform, "error")
			return nil, pe
		default:
			metrics.ObserveRefresh(conn.Platform, "transient")
			return nil, model.NewTransientError(conn.Platform, "token refresh failed", err)
		}
	}

	refreshed := *current
	refreshed.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		refreshed.RefreshToken = tok.RefreshToken
	}
	refreshed.ExpiresAt = tok.ExpiresAt
	refreshed.UpdatedAt = b.now().UTC()
	if err := b.connections.UpdateCredentials(ctx, conn.ID, refreshed.AccessToken, refreshed.RefreshToken, refreshed.ExpiresAt); err != nil {
		// the new token is still good for this publish
		lg.WithField("error", err).Error("Error while storing refreshed credentials")
	}
	metrics.ObserveRefresh(conn.Platform, "refreshed")
	lg.Info("Access token refreshed")
	return &refreshed, nil
}
