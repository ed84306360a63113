package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bookman/internal/model"
)

// TestRouterIntegration_MiddlewareChain は
// RequestID -> Recovery -> Auth -> RateLimit のチェーンがchi.Routerで正しく動作することを検証する。
func TestRouterIntegration_MiddlewareChain(t *testing.T) {
	authenticator := &mockAuthenticator{
		authenticateFn: func(ctx context.Context, token string) (*model.AuthenticatedIdentity, error) {
			switch token {
			case "patron-token":
				return &model.AuthenticatedIdentity{UserID: "user-patron", Role: model.RolePatron, Token: token}, nil
			case "limited-token":
				return &model.AuthenticatedIdentity{UserID: "user-limited", Role: model.RolePatron, Token: token}, nil
			}
			return nil, model.NewUnauthenticatedError()
		},
	}

	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    2,
		LoginRate:       1,
		LoginBurst:      1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	r := chi.NewRouter()
	r.Use(NewRequestIDMiddleware())
	r.Use(NewRecoveryMiddleware())

	// 認証不要のルート
	r.With(rl.LoginMiddleware()).Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// 認証が必要なルートグループ
	r.Group(func(r chi.Router) {
		r.Use(NewBearerAuthMiddleware(authenticator))
		r.Use(rl.GeneralMiddleware())

		r.Get("/api/me", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]string{
				"user_id":    userID,
				"request_id": RequestIDFromContext(r.Context()),
			})
		})
	})

	t.Run("GET_me_with_token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer patron-token")
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
		}
		var body map[string]string
		json.NewDecoder(w.Result().Body).Decode(&body)
		if body["user_id"] != "user-patron" {
			t.Errorf("user_id = %q, want %q", body["user_id"], "user-patron")
		}
		if body["request_id"] == "" || body["request_id"] != w.Result().Header.Get(RequestIDHeader) {
			t.Errorf("request_id = %q, header = %q", body["request_id"], w.Result().Header.Get(RequestIDHeader))
		}
	})

	t.Run("GET_me_without_token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
		}
	})

	t.Run("GET_me_with_revoked_token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer revoked-token")
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
		}
	})

	t.Run("GET_me_rate_limited_per_user", func(t *testing.T) {
		statuses := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			req.Header.Set("Authorization", "Bearer limited-token")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			statuses = append(statuses, w.Result().StatusCode)
		}
		want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
		for i := range want {
			if statuses[i] != want[i] {
				t.Errorf("statuses = %v, want %v", statuses, want)
				break
			}
		}
	})

	t.Run("POST_login_rate_limited_per_ip", func(t *testing.T) {
		first := httptest.NewRecorder()
		r.ServeHTTP(first, loginRequest("203.0.113.50:1111"))
		second := httptest.NewRecorder()
		r.ServeHTTP(second, loginRequest("203.0.113.50:2222"))

		if first.Result().StatusCode != http.StatusOK {
			t.Errorf("first status = %d, want %d", first.Result().StatusCode, http.StatusOK)
		}
		if second.Result().StatusCode != http.StatusTooManyRequests {
			t.Errorf("second status = %d, want %d", second.Result().StatusCode, http.StatusTooManyRequests)
		}
	})
}
