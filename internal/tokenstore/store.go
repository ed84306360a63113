// Package tokenstore はアクセストークンの発行・解決・失効を提供する。
// トークンの有効期限はKVバックエンドのTTLで管理し、掃除処理は持たない。
package tokenstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

// DefaultTTL はトークンのデフォルト有効期間。
const DefaultTTL = 24 * time.Hour

// tokenBytes はトークン値の乱数バイト数（256ビット）。
const tokenBytes = 32

const keyPrefix = "auth:token:"

var (
	// ErrTokenNotFound はトークンが存在しない、または期限切れの場合に返される。
	ErrTokenNotFound = errors.New("token not found")

	// ErrKeyNotFound はKVにキーが存在しない場合に返される。
	ErrKeyNotFound = errors.New("key not found")
)

// KV はTTL付きのキーバリューストアのインターフェース。
type KV interface {
	// SetWithTTL は値を書き込む。ttl経過後にキーは読めなくなる。
	SetWithTTL(ctx context.Context, key, value []byte, ttl time.Duration) error

	// Get は値を取得する。キーが存在しない場合はErrKeyNotFoundを返す。
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Delete はキーを削除する。キーが存在しなくてもエラーにしない。
	Delete(ctx context.Context, key []byte) error
}

// tokenRecord はKVに保存するトークンの内容。
type tokenRecord struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store はアクセストークンを管理する。
type Store struct {
	kv     KV
	ttl    time.Duration
	nowFn  func() time.Time
	random io.Reader
}

// NewStore はStoreを生成する。ttlが0以下の場合はDefaultTTLを使用する。
func NewStore(kv KV, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		kv:     kv,
		ttl:    ttl,
		nowFn:  time.Now,
		random: rand.Reader,
	}
}

// TTL はトークンの有効期間を返す。
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Issue はユーザーに新しいトークンを発行する。
func (s *Store) Issue(ctx context.Context, userID string) (*model.AccessToken, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	value := hex.EncodeToString(buf)

	now := s.nowFn()
	data, err := json.Marshal(tokenRecord{UserID: userID, CreatedAt: now})
	if err != nil {
		return nil, fmt.Errorf("failed to encode token record: %w", err)
	}

	if err := s.kv.SetWithTTL(ctx, tokenKey(value), data, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	return &model.AccessToken{
		Value:     value,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}, nil
}

// Resolve はトークンに紐づくユーザーIDを返す。
// 存在しない・期限切れのトークンにはErrTokenNotFoundを返す。
func (s *Store) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrTokenNotFound
	}

	data, err := s.kv.Get(ctx, tokenKey(token))
	if errors.Is(err, ErrKeyNotFound) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}

	var rec tokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("failed to decode token record: %w", err)
	}
	if rec.UserID == "" {
		return "", ErrTokenNotFound
	}
	return rec.UserID, nil
}

// Revoke はトークンを失効させる。存在しないトークンでもエラーにしない。
func (s *Store) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.kv.Delete(ctx, tokenKey(token)); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func tokenKey(token string) []byte {
	return []byte(keyPrefix + token)
}
