package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
// 権限チェックはサービス側で行うため、認証済み主体をそのまま渡す。
type UserServiceInterface interface {
	Register(ctx context.Context, identity *model.AuthenticatedIdentity, input user.RegisterInput) (*model.User, error)
	List(ctx context.Context, identity *model.AuthenticatedIdentity) ([]*model.User, error)
	Delete(ctx context.Context, identity *model.AuthenticatedIdentity, userID string) error
	ChangeRole(ctx context.Context, identity *model.AuthenticatedIdentity, userID, role string) error
	ChangePassword(ctx context.Context, identity *model.AuthenticatedIdentity, currentPassword, newPassword string) error
	Me(ctx context.Context, identity *model.AuthenticatedIdentity) (*model.User, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type usersResponse struct {
	Items []userResponse `json:"items"`
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateUserRoleRequest struct {
	Role string `json:"role"`
}

type updateUserPasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

// Me は認証ユーザーの情報を返す。
// GET /api/v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	u, err := h.service.Me(r.Context(), identity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// ListUsers は全ユーザーを返す。管理者のみ。
// GET /api/v1/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	users, err := h.service.List(r.Context(), identity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	items := make([]userResponse, len(users))
	for i, u := range users {
		items[i] = toUserResponse(u)
	}
	writeJSON(w, http.StatusOK, usersResponse{Items: items})
}

// RegisterUser はユーザーを登録する。管理者のみ。
// POST /api/v1/users
func (h *UserHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.Register(r.Context(), identity, user.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// DeleteUser はユーザーを削除する。管理者のみ。
// DELETE /api/v1/users/{user_id}
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	userID, ok := uuidParam(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), identity, userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangeRole はユーザーのロールを変更する。管理者のみ。
// PUT /api/v1/users/{user_id}/role
func (h *UserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	userID, ok := uuidParam(w, r, "user_id")
	if !ok {
		return
	}

	var req updateUserRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ChangeRole(r.Context(), identity, userID, req.Role); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword は認証ユーザーのパスワードを変更する。
// PUT /api/v1/users/me/password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updateUserPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), identity, req.CurrentPassword, req.NewPassword); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
