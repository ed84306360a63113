package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

func TestBookHandler_ListBooks_Success(t *testing.T) {
	checkedOutAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := &mockBookService{
		findAllFn: func(ctx context.Context, limit, offset int64) (*model.PaginatedBooks, error) {
			if limit != 10 || offset != 20 {
				t.Errorf("FindAll(%d, %d), want (10, 20)", limit, offset)
			}
			return &model.PaginatedBooks{
				Total:  21,
				Limit:  limit,
				Offset: offset,
				Items: []*model.Book{
					{
						ID:     testBookID,
						Title:  "Go言語による並行処理",
						Author: "Katherine Cox-Buday",
						Checkout: &model.BookCheckout{
							CheckoutID:   testCheckoutID,
							UserID:       testUserID,
							UserName:     "Alice",
							CheckedOutAt: checkedOutAt,
						},
					},
				},
			}, nil
		},
	}
	h := NewBookHandler(svc)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/books?limit=10&offset=20", nil), testUserID, model.RolePatron)
	w := httptest.NewRecorder()

	h.ListBooks(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body paginatedBooksResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Total != 21 || len(body.Items) != 1 {
		t.Fatalf("body = %+v, want total 21 with 1 item", body)
	}
	item := body.Items[0]
	if item.Available {
		t.Error("checked out book should not be available")
	}
	if item.Checkout == nil || item.Checkout.UserName != "Alice" || !item.Checkout.CheckedOutAt.Equal(checkedOutAt) {
		t.Errorf("checkout = %+v, want Alice at %v", item.Checkout, checkedOutAt)
	}
}

func TestBookHandler_ListBooks_InvalidLimit(t *testing.T) {
	h := NewBookHandler(&mockBookService{
		findAllFn: func(ctx context.Context, limit, offset int64) (*model.PaginatedBooks, error) {
			t.Fatal("FindAll should not be called")
			return nil, nil
		},
	})

	w := httptest.NewRecorder()
	h.ListBooks(w, httptest.NewRequest(http.MethodGet, "/api/v1/books?limit=1000", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestBookHandler_GetBook(t *testing.T) {
	tests := []struct {
		name       string
		bookID     string
		book       *model.Book
		wantStatus int
		wantCode   string
	}{
		{"available", testBookID, &model.Book{ID: testBookID, Title: "t"}, http.StatusOK, ""},
		{"not found", testBookID, nil, http.StatusNotFound, model.ErrCodeBookNotFound},
		{"invalid id", "123", nil, http.StatusBadRequest, model.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewBookHandler(&mockBookService{
				findByIDFn: func(ctx context.Context, id string) (*model.Book, error) {
					return tt.book, nil
				},
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/books/"+tt.bookID, nil)
			req = withChiURLParams(req, "book_id", tt.bookID)
			w := httptest.NewRecorder()

			h.GetBook(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if body := parseAPIErrorResponse(t, w); body.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
				}
				return
			}

			var body bookResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if !body.Available || body.Checkout != nil {
				t.Errorf("body = %+v, want available book without checkout", body)
			}
		})
	}
}
