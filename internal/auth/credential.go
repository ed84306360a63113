package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// maxPasswordBytes はbcryptが扱えるパスワードの最大バイト長。
const maxPasswordBytes = 72

// CredentialStore はメールアドレスとパスワードによる本人確認を行う。
type CredentialStore struct {
	users     repository.UserRepository
	cost      int
	dummyHash []byte
}

// NewCredentialStore はCredentialStoreを生成する。
// costがbcryptの範囲外の場合はbcrypt.DefaultCostを使用する。
func NewCredentialStore(users repository.UserRepository, cost int) *CredentialStore {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	// 未登録メールアドレスでも同じコストで比較させるためのハッシュ
	dummy, err := bcrypt.GenerateFromPassword([]byte("bookman-dummy-password"), cost)
	if err != nil {
		panic(fmt.Sprintf("failed to generate dummy hash: %v", err))
	}
	return &CredentialStore{
		users:     users,
		cost:      cost,
		dummyHash: dummy,
	}
}

// VerifyUser はメールアドレスとパスワードを検証し、ユーザーIDを返す。
// 未登録のメールアドレスとパスワード誤りはどちらもINVALID_CREDENTIALSとなる。
func (c *CredentialStore) VerifyUser(ctx context.Context, email, password string) (string, error) {
	user, err := c.users.FindByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		return "", fmt.Errorf("failed to find user by email: %w", err)
	}

	if user == nil {
		_ = bcrypt.CompareHashAndPassword(c.dummyHash, []byte(password))
		return "", model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return "", model.NewInvalidCredentialsError()
		}
		return "", fmt.Errorf("failed to compare password hash: %w", err)
	}

	return user.ID, nil
}

// HashPassword はパスワードのbcryptハッシュを生成する。
func (c *CredentialStore) HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ValidatePassword はパスワードがbcryptで扱える長さかを検証する。
func ValidatePassword(password string) error {
	if password == "" {
		return model.NewValidationError("password is required")
	}
	if len(password) > maxPasswordBytes {
		return model.NewValidationError("password must be at most 72 bytes")
	}
	return nil
}
