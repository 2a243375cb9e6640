package usecase

import (
	"context"
	"fmt"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/domain/repository"
)

type IConnectionUsecase interface {
	Connect(ctx context.Context, userID string, req dto.ConnectRequest) (*model.PlatformConnection, error)
	List(ctx context.Context, userID string) ([]*model.PlatformConnection, error)
	Disconnect(ctx context.Context, userID string, id int64) error
	// Validate refreshes the credential if needed and probes it on the platform.
	Validate(ctx context.Context, userID string, id int64) (bool, error)
}

type connectionUsecase struct {
	connections repository.IConnection
	broker      ITokenBroker
	adapters    AdapterTable
}

func NewConnectionUsecase(connections repository.IConnection, broker ITokenBroker, adapters AdapterTable) IConnectionUsecase {
	return &connectionUsecase{connections: connections, broker: broker, adapters: adapters}
}

func (u *connectionUsecase) Connect(ctx context.Context, userID string, req dto.ConnectRequest) (*model.PlatformConnection, error) {
	platform, err := model.ParsePlatform(req.Platform)
	if err != nil {
		return nil, err
	}
	if platform == model.PlatformTwitter && req.AccessTokenSecret == "" {
		return nil, fmt.Errorf("%w: twitter requires an access token secret", model.ErrInvalidCredential)
	}
	if platform == model.PlatformInstagram || platform == model.PlatformFacebook {
		if req.AccountID == nil || *req.AccountID == "" {
			return nil, fmt.Errorf("%w: %s requires an account id", model.ErrInvalidCredential, platform)
		}
	}
	conn := &model.PlatformConnection{
		UserID:            userID,
		Platform:          platform,
		AccessToken:       req.AccessToken,
		AccessTokenSecret: req.AccessTokenSecret,
		RefreshToken:      req.RefreshToken,
		ExpiresAt:         req.ExpiresAt,
		AccountID:         req.AccountID,
		AccountName:       req.AccountName,
		Scopes:            req.Scopes,
		TokenType:         req.TokenType,
	}
	if err := u.connections.Connect(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

func (u *connectionUsecase) List(ctx context.Context, userID string) ([]*model.PlatformConnection, error) {
	return u.connections.ListActiveByUser(ctx, userID)
}

func (u *connectionUsecase) owned(ctx context.Context, userID string, id int64) (*model.PlatformConnection, error) {
	conn, err := u.connections.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conn.UserID != userID || !conn.IsActive {
		return nil, model.ErrConnectionNotFound
	}
	return conn, nil
}

func (u *connectionUsecase) Disconnect(ctx context.Context, userID string, id int64) error {
	if _, err := u.owned(ctx, userID, id); err != nil {
		return err
	}
	return u.connections.Deactivate(ctx, id)
}

func (u *connectionUsecase) Validate(ctx context.Context, userID string, id int64) (bool, error) {
	conn, err := u.owned(ctx, userID, id)
	if err != nil {
		return false, err
	}
	adapter, err := u.adapters.For(conn.Platform)
	if err != nil {
		return false, err
	}
	conn, err = u.broker.EnsureValid(ctx, conn)
	if err != nil {
		return false, err
	}
	return adapter.ValidateToken(ctx, conn.Credential()), nil
}
