// Package auth はパスワード認証、トークンによるセッション管理、権限チェックを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/bookman/internal/metrics"
	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
	"github.com/hitoshi/bookman/internal/tokenstore"
)

// CredentialVerifier はメールアドレスとパスワードの検証インターフェース。
type CredentialVerifier interface {
	VerifyUser(ctx context.Context, email, password string) (string, error)
}

// TokenStore はアクセストークンの発行・解決・失効のインターフェース。
type TokenStore interface {
	Issue(ctx context.Context, userID string) (*model.AccessToken, error)
	Resolve(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	UserID      string
	AccessToken *model.AccessToken
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	credentials CredentialVerifier
	tokens      TokenStore
	userRepo    repository.UserRepository
	recorder    metrics.AuthRecorder
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(
	credentials CredentialVerifier,
	tokens TokenStore,
	userRepo repository.UserRepository,
	recorder metrics.AuthRecorder,
) *Service {
	return &Service{
		credentials: credentials,
		tokens:      tokens,
		userRepo:    userRepo,
		recorder:    recorder,
	}
}

// Login は資格情報を検証し、アクセストークンを発行する。
// INVALID_CREDENTIALSはそのまま返す。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	userID, err := s.credentials.VerifyUser(ctx, email, password)
	if err != nil {
		if model.HasCode(err, model.ErrCodeInvalidCredentials) {
			s.recordLogin(false)
			return nil, err
		}
		return nil, fmt.Errorf("failed to verify credentials: %w", err)
	}

	token, err := s.tokens.Issue(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.recordLogin(true)
	slog.Info("user logged in", slog.String("user_id", userID))

	return &LoginResult{UserID: userID, AccessToken: token}, nil
}

// Logout はトークンを失効させる。
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.tokens.Revoke(ctx, token); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// Authenticate はトークンを検証し、リクエストの主体を返す。
// ロールは毎回ユーザーを読み直して取得するため、ロール変更は既存トークンにも即時に反映される。
func (s *Service) Authenticate(ctx context.Context, token string) (*model.AuthenticatedIdentity, error) {
	if token == "" {
		return nil, model.NewUnauthenticatedError()
	}

	userID, err := s.tokens.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, tokenstore.ErrTokenNotFound) {
			return nil, model.NewUnauthenticatedError()
		}
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		// 削除済みユーザーのトークン
		return nil, model.NewUnauthenticatedError()
	}

	return &model.AuthenticatedIdentity{
		UserID: user.ID,
		Role:   user.Role,
		Token:  token,
		User:   user,
	}, nil
}

func (s *Service) recordLogin(success bool) {
	if s.recorder != nil {
		s.recorder.RecordLogin(success)
	}
}
