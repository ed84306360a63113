// Package checkout は蔵書の貸出・返却の状態遷移と貸出記録の照会を提供する。
//
// 1冊につき未返却の貸出は常に1件までであり、これはリポジトリ層の
// 部分一意インデックスによって保証される。台帳自身は可変状態を持たない。
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/bookman/internal/metrics"
	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// Ledger は貸出台帳。時刻は呼び出し側から受け取り、自身では取得しない。
type Ledger struct {
	books     repository.BookRepository
	checkouts repository.CheckoutRepository
	recorder  metrics.LedgerRecorder
	newID     func() string
}

// NewLedger はLedgerを生成する。recorderはnilでもよい。
func NewLedger(books repository.BookRepository, checkouts repository.CheckoutRepository, recorder metrics.LedgerRecorder) *Ledger {
	return &Ledger{
		books:     books,
		checkouts: checkouts,
		recorder:  recorder,
		newID:     func() string { return uuid.New().String() },
	}
}

// Checkout は蔵書を貸し出す。
// 蔵書が存在しなければBOOK_NOT_FOUND、貸出中であればBOOK_ALREADY_CHECKED_OUTを返す。
func (l *Ledger) Checkout(ctx context.Context, bookID, borrowerID string, now time.Time) (*model.Checkout, error) {
	book, err := l.books.FindByID(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to find book: %w", err)
	}
	if book == nil {
		return nil, model.NewBookNotFoundError(bookID)
	}

	checkout := &model.Checkout{
		ID:           l.newID(),
		BookID:       bookID,
		UserID:       borrowerID,
		CheckedOutAt: now,
		BookTitle:    book.Title,
		BookAuthor:   book.Author,
	}

	if err := l.checkouts.Create(ctx, checkout); err != nil {
		switch {
		case errors.Is(err, repository.ErrOpenCheckoutExists):
			if l.recorder != nil {
				l.recorder.RecordCheckoutConflict()
			}
			return nil, model.NewBookAlreadyCheckedOutError(bookID)
		case errors.Is(err, repository.ErrNotFound):
			// 存在確認と挿入の間に蔵書が削除された
			return nil, model.NewBookNotFoundError(bookID)
		}
		return nil, fmt.Errorf("failed to create checkout: %w", err)
	}

	if l.recorder != nil {
		l.recorder.RecordCheckout()
	}
	slog.Info("book checked out",
		slog.String("checkout_id", checkout.ID),
		slog.String("book_id", bookID),
		slog.String("user_id", borrowerID),
	)

	return checkout, nil
}

// ReturnBook は貸出を返却済みにする。
// 貸出記録がない、または別の蔵書のものであればCHECKOUT_NOT_FOUND、
// すでに返却済みであればALREADY_RETURNEDを返す。
func (l *Ledger) ReturnBook(ctx context.Context, checkoutID, bookID, returnerID string, now time.Time) error {
	updated, err := l.checkouts.MarkReturned(ctx, checkoutID, bookID, returnerID, now)
	if err != nil {
		return fmt.Errorf("failed to mark checkout returned: %w", err)
	}

	if !updated {
		existing, err := l.checkouts.FindByID(ctx, checkoutID)
		if err != nil {
			return fmt.Errorf("failed to find checkout: %w", err)
		}
		if existing == nil || existing.BookID != bookID {
			return model.NewCheckoutNotFoundError(checkoutID)
		}
		return model.NewAlreadyReturnedError(checkoutID)
	}

	if l.recorder != nil {
		l.recorder.RecordReturn()
	}
	slog.Info("book returned",
		slog.String("checkout_id", checkoutID),
		slog.String("book_id", bookID),
		slog.String("returned_by", returnerID),
	)

	return nil
}

// FindByID は貸出記録を取得する。見つからない場合はnilを返す。
func (l *Ledger) FindByID(ctx context.Context, checkoutID string) (*model.Checkout, error) {
	checkout, err := l.checkouts.FindByID(ctx, checkoutID)
	if err != nil {
		return nil, fmt.Errorf("failed to find checkout: %w", err)
	}
	return checkout, nil
}

// FindUnreturnedAll は未返却の貸出を貸出日時の昇順で返す。
func (l *Ledger) FindUnreturnedAll(ctx context.Context) ([]*model.Checkout, error) {
	checkouts, err := l.checkouts.FindUnreturnedAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unreturned checkouts: %w", err)
	}
	return checkouts, nil
}

// FindUnreturnedByUser は指定ユーザーの未返却の貸出を貸出日時の昇順で返す。
func (l *Ledger) FindUnreturnedByUser(ctx context.Context, userID string) ([]*model.Checkout, error) {
	checkouts, err := l.checkouts.FindUnreturnedByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unreturned checkouts for user: %w", err)
	}
	return checkouts, nil
}

// FindHistoryByBook は指定蔵書の貸出履歴を貸出日時の降順で返す。
func (l *Ledger) FindHistoryByBook(ctx context.Context, bookID string) ([]*model.Checkout, error) {
	checkouts, err := l.checkouts.FindHistoryByBookID(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkout history: %w", err)
	}
	return checkouts, nil
}
