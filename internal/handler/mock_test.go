package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bookman/internal/auth"
	"github.com/hitoshi/bookman/internal/middleware"
	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/user"
)

// --- モック定義 ---

type mockAuthService struct {
	loginFn  func(ctx context.Context, email, password string) (*auth.LoginResult, error)
	logoutFn func(ctx context.Context, token string) error
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, token)
	}
	return nil
}

type mockBookService struct {
	findAllFn  func(ctx context.Context, limit, offset int64) (*model.PaginatedBooks, error)
	findByIDFn func(ctx context.Context, id string) (*model.Book, error)
}

func (m *mockBookService) FindAll(ctx context.Context, limit, offset int64) (*model.PaginatedBooks, error) {
	if m.findAllFn != nil {
		return m.findAllFn(ctx, limit, offset)
	}
	return &model.PaginatedBooks{Limit: limit, Offset: offset}, nil
}

func (m *mockBookService) FindByID(ctx context.Context, id string) (*model.Book, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type mockLedger struct {
	checkoutFn             func(ctx context.Context, bookID, borrowerID string, now time.Time) (*model.Checkout, error)
	returnBookFn           func(ctx context.Context, checkoutID, bookID, returnerID string, now time.Time) error
	findByIDFn             func(ctx context.Context, checkoutID string) (*model.Checkout, error)
	findUnreturnedAllFn    func(ctx context.Context) ([]*model.Checkout, error)
	findUnreturnedByUserFn func(ctx context.Context, userID string) ([]*model.Checkout, error)
	findHistoryByBookFn    func(ctx context.Context, bookID string) ([]*model.Checkout, error)
}

func (m *mockLedger) Checkout(ctx context.Context, bookID, borrowerID string, now time.Time) (*model.Checkout, error) {
	if m.checkoutFn != nil {
		return m.checkoutFn(ctx, bookID, borrowerID, now)
	}
	return &model.Checkout{ID: testCheckoutID, BookID: bookID, UserID: borrowerID, CheckedOutAt: now}, nil
}

func (m *mockLedger) ReturnBook(ctx context.Context, checkoutID, bookID, returnerID string, now time.Time) error {
	if m.returnBookFn != nil {
		return m.returnBookFn(ctx, checkoutID, bookID, returnerID, now)
	}
	return nil
}

func (m *mockLedger) FindByID(ctx context.Context, checkoutID string) (*model.Checkout, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, checkoutID)
	}
	return nil, nil
}

func (m *mockLedger) FindUnreturnedAll(ctx context.Context) ([]*model.Checkout, error) {
	if m.findUnreturnedAllFn != nil {
		return m.findUnreturnedAllFn(ctx)
	}
	return nil, nil
}

func (m *mockLedger) FindUnreturnedByUser(ctx context.Context, userID string) ([]*model.Checkout, error) {
	if m.findUnreturnedByUserFn != nil {
		return m.findUnreturnedByUserFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockLedger) FindHistoryByBook(ctx context.Context, bookID string) ([]*model.Checkout, error) {
	if m.findHistoryByBookFn != nil {
		return m.findHistoryByBookFn(ctx, bookID)
	}
	return nil, nil
}

type mockUserService struct {
	registerFn       func(ctx context.Context, identity *model.AuthenticatedIdentity, input user.RegisterInput) (*model.User, error)
	listFn           func(ctx context.Context, identity *model.AuthenticatedIdentity) ([]*model.User, error)
	deleteFn         func(ctx context.Context, identity *model.AuthenticatedIdentity, userID string) error
	changeRoleFn     func(ctx context.Context, identity *model.AuthenticatedIdentity, userID, role string) error
	changePasswordFn func(ctx context.Context, identity *model.AuthenticatedIdentity, current, next string) error
	meFn             func(ctx context.Context, identity *model.AuthenticatedIdentity) (*model.User, error)
}

func (m *mockUserService) Register(ctx context.Context, identity *model.AuthenticatedIdentity, input user.RegisterInput) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, identity, input)
	}
	return nil, nil
}

func (m *mockUserService) List(ctx context.Context, identity *model.AuthenticatedIdentity) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx, identity)
	}
	return nil, nil
}

func (m *mockUserService) Delete(ctx context.Context, identity *model.AuthenticatedIdentity, userID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, identity, userID)
	}
	return nil
}

func (m *mockUserService) ChangeRole(ctx context.Context, identity *model.AuthenticatedIdentity, userID, role string) error {
	if m.changeRoleFn != nil {
		return m.changeRoleFn(ctx, identity, userID, role)
	}
	return nil
}

func (m *mockUserService) ChangePassword(ctx context.Context, identity *model.AuthenticatedIdentity, current, next string) error {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, identity, current, next)
	}
	return nil
}

func (m *mockUserService) Me(ctx context.Context, identity *model.AuthenticatedIdentity) (*model.User, error) {
	if m.meFn != nil {
		return m.meFn(ctx, identity)
	}
	return &model.User{ID: identity.UserID, Role: identity.Role}, nil
}

type mockHealthChecker struct {
	pingFn func(ctx context.Context) error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

// --- テストヘルパー ---

const (
	testBookID     = "6f1c2a4e-5b3d-4c8e-9a7f-0d1e2f3a4b5c"
	testCheckoutID = "0a9b8c7d-6e5f-4a3b-8c2d-1e0f9a8b7c6d"
	testUserID     = "11111111-2222-4333-8444-555555555555"
	testAdminID    = "99999999-8888-4777-8666-555555555555"
)

// withIdentity はテスト用にリクエストコンテキストへ認証済み主体を注入するヘルパー。
func withIdentity(r *http.Request, userID string, role model.Role) *http.Request {
	ctx := middleware.ContextWithIdentity(r.Context(), &model.AuthenticatedIdentity{
		UserID: userID,
		Role:   role,
		Token:  "token-" + userID,
	})
	return r.WithContext(ctx)
}

// withChiURLParams はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
