package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/bookman/internal/auth"
	"github.com/hitoshi/bookman/internal/model"
)

// LedgerInterface はチェックアウトハンドラーが必要とする貸出台帳のインターフェース。
type LedgerInterface interface {
	Checkout(ctx context.Context, bookID, borrowerID string, now time.Time) (*model.Checkout, error)
	ReturnBook(ctx context.Context, checkoutID, bookID, returnerID string, now time.Time) error
	FindByID(ctx context.Context, checkoutID string) (*model.Checkout, error)
	FindUnreturnedAll(ctx context.Context) ([]*model.Checkout, error)
	FindUnreturnedByUser(ctx context.Context, userID string) ([]*model.Checkout, error)
	FindHistoryByBook(ctx context.Context, bookID string) ([]*model.Checkout, error)
}

// CheckoutHandler は貸出・返却のHTTPハンドラー。
type CheckoutHandler struct {
	ledger LedgerInterface
	nowFn  func() time.Time
}

// NewCheckoutHandler はCheckoutHandlerを生成する。
func NewCheckoutHandler(ledger LedgerInterface) *CheckoutHandler {
	return &CheckoutHandler{
		ledger: ledger,
		nowFn:  time.Now,
	}
}

type checkoutResponse struct {
	ID           string     `json:"id"`
	BookID       string     `json:"bookId"`
	UserID       string     `json:"checkedOutBy"`
	BorrowerName string     `json:"borrowerName,omitempty"`
	BookTitle    string     `json:"bookTitle,omitempty"`
	BookAuthor   string     `json:"bookAuthor,omitempty"`
	CheckedOutAt time.Time  `json:"checkedOutAt"`
	ReturnedAt   *time.Time `json:"returnedAt"`
	ReturnedBy   *string    `json:"returnedBy"`
}

type checkoutsResponse struct {
	Items []checkoutResponse `json:"items"`
}

func toCheckoutResponse(c *model.Checkout) checkoutResponse {
	return checkoutResponse{
		ID:           c.ID,
		BookID:       c.BookID,
		UserID:       c.UserID,
		BorrowerName: c.BorrowerName,
		BookTitle:    c.BookTitle,
		BookAuthor:   c.BookAuthor,
		CheckedOutAt: c.CheckedOutAt,
		ReturnedAt:   c.ReturnedAt,
		ReturnedBy:   c.ReturnedBy,
	}
}

func toCheckoutsResponse(checkouts []*model.Checkout) checkoutsResponse {
	items := make([]checkoutResponse, len(checkouts))
	for i, c := range checkouts {
		items[i] = toCheckoutResponse(c)
	}
	return checkoutsResponse{Items: items}
}

// CheckoutBook は認証ユーザーへの貸出を記録する。
// POST /api/v1/books/{book_id}/checkouts
func (h *CheckoutHandler) CheckoutBook(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	bookID, ok := uuidParam(w, r, "book_id")
	if !ok {
		return
	}

	checkout, err := h.ledger.Checkout(r.Context(), bookID, identity.UserID, h.nowFn().UTC())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCheckoutResponse(checkout))
}

// ReturnBook は貸出を返却済みにする。返却できるのは借り手本人または管理者。
// PUT /api/v1/books/{book_id}/checkouts/{checkout_id}/returned
func (h *CheckoutHandler) ReturnBook(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	bookID, ok := uuidParam(w, r, "book_id")
	if !ok {
		return
	}
	checkoutID, ok := uuidParam(w, r, "checkout_id")
	if !ok {
		return
	}

	existing, err := h.ledger.FindByID(r.Context(), checkoutID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if existing == nil || existing.BookID != bookID {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewCheckoutNotFoundError(checkoutID))
		return
	}
	if err := auth.RequireSelfOrRole(identity, existing.UserID, model.RoleAdmin); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.ledger.ReturnBook(r.Context(), checkoutID, bookID, identity.UserID, h.nowFn().UTC()); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListUnreturned は未返却の貸出一覧を返す。
// GET /api/v1/books/checkouts
func (h *CheckoutHandler) ListUnreturned(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	checkouts, err := h.ledger.FindUnreturnedAll(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCheckoutsResponse(checkouts))
}

// ListMyCheckouts は認証ユーザーの未返却の貸出一覧を返す。
// GET /api/v1/users/me/checkouts
func (h *CheckoutHandler) ListMyCheckouts(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	checkouts, err := h.ledger.FindUnreturnedByUser(r.Context(), identity.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCheckoutsResponse(checkouts))
}

// History は蔵書の貸出履歴を返す。存在しない蔵書の場合は空の一覧になる。
// GET /api/v1/books/{book_id}/checkout-history
func (h *CheckoutHandler) History(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	bookID, ok := uuidParam(w, r, "book_id")
	if !ok {
		return
	}

	checkouts, err := h.ledger.FindHistoryByBook(r.Context(), bookID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCheckoutsResponse(checkouts))
}
