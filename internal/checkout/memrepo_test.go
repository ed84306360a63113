package checkout

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// memBookRepo はテスト用のインメモリ蔵書リポジトリ。
type memBookRepo struct {
	mu    sync.Mutex
	books map[string]*model.Book
}

func newMemBookRepo(books ...*model.Book) *memBookRepo {
	r := &memBookRepo{books: make(map[string]*model.Book)}
	for _, b := range books {
		r.books[b.ID] = b
	}
	return r
}

func (r *memBookRepo) FindByID(_ context.Context, id string) (*model.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[id]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

func (r *memBookRepo) FindAll(_ context.Context, limit, offset int64) (*model.PaginatedBooks, error) {
	return &model.PaginatedBooks{Limit: limit, Offset: offset}, nil
}

func (r *memBookRepo) Create(_ context.Context, book *model.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.books[book.ID] = book
	return nil
}

// memCheckoutRepo はテスト用のインメモリ貸出記録リポジトリ。
// 未返却行の一意性判定と挿入をロック内で行い、部分一意インデックスと同じ保証を与える。
type memCheckoutRepo struct {
	mu   sync.Mutex
	rows []*model.Checkout
}

func (r *memCheckoutRepo) Create(_ context.Context, c *model.Checkout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.BookID == c.BookID && row.ReturnedAt == nil {
			return repository.ErrOpenCheckoutExists
		}
	}
	copied := *c
	r.rows = append(r.rows, &copied)
	return nil
}

func (r *memCheckoutRepo) MarkReturned(_ context.Context, checkoutID, bookID, returnerID string, returnedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == checkoutID && row.BookID == bookID && row.ReturnedAt == nil {
			at := returnedAt
			by := returnerID
			row.ReturnedAt = &at
			row.ReturnedBy = &by
			return true, nil
		}
	}
	return false, nil
}

func (r *memCheckoutRepo) FindByID(_ context.Context, id string) (*model.Checkout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			copied := *row
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memCheckoutRepo) FindUnreturnedAll(ctx context.Context) ([]*model.Checkout, error) {
	return r.filter(func(c *model.Checkout) bool { return c.ReturnedAt == nil }, true), nil
}

func (r *memCheckoutRepo) FindUnreturnedByUserID(_ context.Context, userID string) ([]*model.Checkout, error) {
	return r.filter(func(c *model.Checkout) bool { return c.ReturnedAt == nil && c.UserID == userID }, true), nil
}

func (r *memCheckoutRepo) FindHistoryByBookID(_ context.Context, bookID string) ([]*model.Checkout, error) {
	return r.filter(func(c *model.Checkout) bool { return c.BookID == bookID }, false), nil
}

func (r *memCheckoutRepo) filter(keep func(*model.Checkout) bool, ascending bool) []*model.Checkout {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Checkout
	for _, row := range r.rows {
		if keep(row) {
			copied := *row
			out = append(out, &copied)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return out[i].CheckedOutAt.Before(out[j].CheckedOutAt)
		}
		return out[i].CheckedOutAt.After(out[j].CheckedOutAt)
	})
	return out
}

func (r *memCheckoutRepo) openCount(bookID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows {
		if row.BookID == bookID && row.ReturnedAt == nil {
			n++
		}
	}
	return n
}

var _ repository.BookRepository = (*memBookRepo)(nil)
var _ repository.CheckoutRepository = (*memCheckoutRepo)(nil)
