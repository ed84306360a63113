// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/bookman/internal/auth"
	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// maxNameLength は表示名の最大文字数。
const maxNameLength = 100

// PasswordManager はパスワードの検証とハッシュ化のインターフェース。
type PasswordManager interface {
	VerifyUser(ctx context.Context, email, password string) (string, error)
	HashPassword(password string) (string, error)
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string // 空の場合はpatron
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo  repository.UserRepository
	passwords PasswordManager
	nowFn     func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, passwords PasswordManager) *Service {
	return &Service{
		userRepo:  userRepo,
		passwords: passwords,
		nowFn:     time.Now,
	}
}

// Register は管理者としてユーザーを登録する。
func (s *Service) Register(ctx context.Context, identity *model.AuthenticatedIdentity, input RegisterInput) (*model.User, error) {
	if err := auth.RequireRole(identity, model.RoleAdmin); err != nil {
		return nil, err
	}

	user, err := s.Provision(ctx, input)
	if err != nil {
		return nil, err
	}

	slog.Info("ユーザーを登録しました",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
		slog.String("registered_by", identity.UserID),
	)
	return user, nil
}

// Provision は権限チェックなしでユーザーを作成する。
// 初期管理者の作成などCLIからの利用を想定する。
func (s *Service) Provision(ctx context.Context, input RegisterInput) (*model.User, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, model.NewValidationError("name is required")
	}
	if len([]rune(name)) > maxNameLength {
		return nil, model.NewValidationError("name is too long")
	}

	email := model.NormalizeEmail(input.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, model.NewValidationError("email is invalid")
	}

	role := model.RolePatron
	if input.Role != "" {
		parsed, ok := model.ParseRole(input.Role)
		if !ok {
			return nil, model.NewValidationError("role must be admin or patron")
		}
		role = parsed
	}

	hash, err := s.passwords.HashPassword(input.Password)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := s.nowFn()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, model.NewEmailAlreadyExistsError(email)
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	return user, nil
}

// List は管理者として全ユーザーを返す。
func (s *Service) List(ctx context.Context, identity *model.AuthenticatedIdentity) ([]*model.User, error) {
	if err := auth.RequireRole(identity, model.RoleAdmin); err != nil {
		return nil, err
	}

	users, err := s.userRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Delete は管理者としてユーザーを削除する。
// 自分自身は削除できない。貸出記録は監査履歴として残る。
func (s *Service) Delete(ctx context.Context, identity *model.AuthenticatedIdentity, userID string) error {
	if err := auth.RequireRole(identity, model.RoleAdmin); err != nil {
		return err
	}
	if identity.UserID == userID {
		return model.NewValidationError("cannot delete your own account")
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("ユーザーを削除しました",
		slog.String("user_id", userID),
		slog.String("deleted_by", identity.UserID),
	)
	return nil
}

// ChangeRole は管理者としてユーザーのロールを変更する。
// 変更は発行済みトークンの次回認証から反映される。
func (s *Service) ChangeRole(ctx context.Context, identity *model.AuthenticatedIdentity, userID, role string) error {
	if err := auth.RequireRole(identity, model.RoleAdmin); err != nil {
		return err
	}

	parsed, ok := model.ParseRole(role)
	if !ok {
		return model.NewValidationError("role must be admin or patron")
	}

	if err := s.userRepo.UpdateRole(ctx, userID, parsed, s.nowFn()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("ロールの更新に失敗しました: %w", err)
	}

	slog.Info("ロールを変更しました",
		slog.String("user_id", userID),
		slog.String("role", string(parsed)),
		slog.String("changed_by", identity.UserID),
	)
	return nil
}

// ChangePassword は自分のパスワードを変更する。現在のパスワードの確認が必要。
// 現在のパスワードが一致しない場合はVALIDATION_FAILEDを返す。
func (s *Service) ChangePassword(ctx context.Context, identity *model.AuthenticatedIdentity, currentPassword, newPassword string) error {
	user, err := s.Me(ctx, identity)
	if err != nil {
		return err
	}

	if _, err := s.passwords.VerifyUser(ctx, user.Email, currentPassword); err != nil {
		// 認証済みの呼び出しなので401にはしない。クライアントがセッション切れと誤認するため
		if model.HasCode(err, model.ErrCodeInvalidCredentials) {
			return model.NewValidationError("現在のパスワードが一致しません")
		}
		return fmt.Errorf("現在のパスワードの確認に失敗しました: %w", err)
	}

	hash, err := s.passwords.HashPassword(newPassword)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return err
		}
		return fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, user.ID, hash, s.nowFn()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("パスワードの更新に失敗しました: %w", err)
	}

	slog.Info("パスワードを変更しました", slog.String("user_id", user.ID))
	return nil
}

// Me は認証済み主体のユーザー情報を返す。
func (s *Service) Me(ctx context.Context, identity *model.AuthenticatedIdentity) (*model.User, error) {
	if identity == nil {
		return nil, model.NewUnauthenticatedError()
	}
	if identity.User != nil {
		return identity.User, nil
	}

	user, err := s.userRepo.FindByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthenticatedError()
	}
	return user, nil
}
