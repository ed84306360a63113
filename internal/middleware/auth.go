// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/bookman/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに認証済み主体を格納するためのキー。
var identityContextKey = contextKey("identity")

// Authenticator はアクセストークンの検証に必要なインターフェース。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.AuthenticatedIdentity, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 認証済み主体をリクエストコンテキストに注入する。
// トークンがない・無効な場合はハンドラーに到達する前に401を返す。
func NewBearerAuthMiddleware(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				WriteErrorResponseUnauthenticated(w)
				return
			}

			identity, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				if model.HasCode(err, model.ErrCodeUnauthenticated) {
					WriteErrorResponseUnauthenticated(w)
					return
				}
				slog.Error("failed to authenticate request",
					slog.String("error", err.Error()),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				WriteInternalServerError(w)
				return
			}

			setLogUserID(r.Context(), identity.UserID)
			ctx := ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// ヘッダーがない、または形式が異なる場合は空文字を返す。
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// IdentityFromContext はリクエストコンテキストから認証済み主体を取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*model.AuthenticatedIdentity, error) {
	identity, ok := ctx.Value(identityContextKey).(*model.AuthenticatedIdentity)
	if !ok || identity == nil {
		return nil, fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	identity, err := IdentityFromContext(ctx)
	if err != nil {
		return "", err
	}
	if identity.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return identity.UserID, nil
}

// ContextWithIdentity はコンテキストに認証済み主体を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *model.AuthenticatedIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
