// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はユーザーの権限区分を表す。
type Role string

const (
	// RoleAdmin はユーザー管理を含む全操作が可能な管理者。
	RoleAdmin Role = "admin"
	// RolePatron は蔵書の閲覧と貸出・返却のみ可能な利用者。
	RolePatron Role = "patron"
)

// ParseRole は文字列をRoleに変換する。大文字小文字は区別しない。
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(s) {
	case "admin":
		return RoleAdmin, true
	case "patron":
		return RolePatron, true
	default:
		return "", false
	}
}

// User はサービス利用ユーザーを表す。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin は管理者かどうかを返す。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// AccessToken はログイン成功時に発行されるアクセストークンを表す。
// ロールは保持しない。認証のたびにユーザーを読み直す。
type AccessToken struct {
	Value     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// AuthenticatedIdentity はトークン検証を通過したリクエストの主体を表す。
type AuthenticatedIdentity struct {
	UserID string
	Role   Role
	Token  string
	User   *User
}

// IsAdmin は管理者かどうかを返す。
func (i *AuthenticatedIdentity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// NormalizeEmail はメールアドレスの前後の空白を除き小文字に揃える。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
