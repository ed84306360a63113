package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

// BookServiceInterface は蔵書ハンドラーが必要とする読み取りインターフェース。
// repository.BookRepositoryがそのまま満たす。
type BookServiceInterface interface {
	FindAll(ctx context.Context, limit, offset int64) (*model.PaginatedBooks, error)
	FindByID(ctx context.Context, id string) (*model.Book, error)
}

// BookHandler は蔵書閲覧のHTTPハンドラー。
type BookHandler struct {
	books BookServiceInterface
}

// NewBookHandler はBookHandlerを生成する。
func NewBookHandler(books BookServiceInterface) *BookHandler {
	return &BookHandler{books: books}
}

type bookCheckoutResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName"`
	CheckedOutAt time.Time `json:"checkedOutAt"`
}

type bookResponse struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Author      string                `json:"author"`
	ISBN        string                `json:"isbn"`
	Description string                `json:"description"`
	Available   bool                  `json:"available"`
	Checkout    *bookCheckoutResponse `json:"checkout"`
}

type paginatedBooksResponse struct {
	Total  int64          `json:"total"`
	Limit  int64          `json:"limit"`
	Offset int64          `json:"offset"`
	Items  []bookResponse `json:"items"`
}

func toBookResponse(book *model.Book) bookResponse {
	resp := bookResponse{
		ID:          book.ID,
		Title:       book.Title,
		Author:      book.Author,
		ISBN:        book.ISBN,
		Description: book.Description,
		Available:   book.IsAvailable(),
	}
	if book.Checkout != nil {
		resp.Checkout = &bookCheckoutResponse{
			ID:           book.Checkout.CheckoutID,
			UserID:       book.Checkout.UserID,
			UserName:     book.Checkout.UserName,
			CheckedOutAt: book.Checkout.CheckedOutAt,
		}
	}
	return resp
}

// ListBooks は蔵書一覧を返す。
// GET /api/v1/books?limit=20&offset=0
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	page, err := h.books.FindAll(r.Context(), limit, offset)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	items := make([]bookResponse, len(page.Items))
	for i, book := range page.Items {
		items[i] = toBookResponse(book)
	}

	writeJSON(w, http.StatusOK, paginatedBooksResponse{
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
		Items:  items,
	})
}

// GetBook は蔵書を1件返す。
// GET /api/v1/books/{book_id}
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	bookID, ok := uuidParam(w, r, "book_id")
	if !ok {
		return
	}

	book, err := h.books.FindByID(r.Context(), bookID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if book == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewBookNotFoundError(bookID))
		return
	}

	writeJSON(w, http.StatusOK, toBookResponse(book))
}
