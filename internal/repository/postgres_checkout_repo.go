package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/jmoiron/sqlx"
)

// PostgresCheckoutRepo はPostgreSQLを使用した貸出記録リポジトリ。
// 1冊につき未返却の行が1行までであることは、部分一意インデックス
// checkouts_open_book_idx (book_id) WHERE returned_at IS NULL で保証する。
type PostgresCheckoutRepo struct {
	db *sqlx.DB
}

// NewPostgresCheckoutRepo はPostgresCheckoutRepoを生成する。
func NewPostgresCheckoutRepo(db *sql.DB) *PostgresCheckoutRepo {
	return &PostgresCheckoutRepo{db: sqlx.NewDb(db, "postgres")}
}

// checkoutRow はcheckoutsと蔵書・ユーザー情報を結合した読み取り用の行。
type checkoutRow struct {
	ID           string     `db:"id"`
	BookID       string     `db:"book_id"`
	UserID       string     `db:"user_id"`
	CheckedOutAt time.Time  `db:"checked_out_at"`
	ReturnedAt   *time.Time `db:"returned_at"`
	ReturnedBy   *string    `db:"returned_by"`
	BookTitle    string     `db:"book_title"`
	BookAuthor   string     `db:"book_author"`
	BorrowerName string     `db:"borrower_name"`
}

func (row checkoutRow) toModel() *model.Checkout {
	return &model.Checkout{
		ID:           row.ID,
		BookID:       row.BookID,
		UserID:       row.UserID,
		CheckedOutAt: row.CheckedOutAt,
		ReturnedAt:   row.ReturnedAt,
		ReturnedBy:   row.ReturnedBy,
		BookTitle:    row.BookTitle,
		BookAuthor:   row.BookAuthor,
		BorrowerName: row.BorrowerName,
	}
}

const checkoutSelect = `
SELECT c.id, c.book_id, c.user_id, c.checked_out_at, c.returned_at, c.returned_by,
       b.title AS book_title, b.author AS book_author,
       COALESCE(u.name, '') AS borrower_name
FROM checkouts c
JOIN books b ON b.id = c.book_id
LEFT JOIN users u ON u.id = c.user_id`

// Create は貸出記録を挿入する。
// ON CONFLICT で部分一意インデックスを推論させ、判定と挿入を1文で行う。
func (r *PostgresCheckoutRepo) Create(ctx context.Context, checkout *model.Checkout) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO checkouts (id, book_id, user_id, checked_out_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (book_id) WHERE returned_at IS NULL DO NOTHING`,
		checkout.ID, checkout.BookID, checkout.UserID, checkout.CheckedOutAt,
	)
	if err != nil {
		switch {
		case isPQError(err, pqUniqueViolation):
			return ErrOpenCheckoutExists
		case isPQError(err, pqForeignKeyViolation):
			return ErrNotFound
		}
		return fmt.Errorf("failed to insert checkout: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrOpenCheckoutExists
	}
	return nil
}

// MarkReturned は未返却の貸出行に返却日時と返却者を設定する。
func (r *PostgresCheckoutRepo) MarkReturned(ctx context.Context, checkoutID, bookID, returnerID string, returnedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE checkouts
		 SET returned_at = $1, returned_by = $2
		 WHERE id = $3 AND book_id = $4 AND returned_at IS NULL`,
		returnedAt, returnerID, checkoutID, bookID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark checkout returned: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// FindByID は指定IDの貸出記録を取得する。見つからない場合はnilを返す。
func (r *PostgresCheckoutRepo) FindByID(ctx context.Context, id string) (*model.Checkout, error) {
	var row checkoutRow
	err := r.db.GetContext(ctx, &row, checkoutSelect+` WHERE c.id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find checkout: %w", err)
	}
	return row.toModel(), nil
}

// FindUnreturnedAll は未返却の貸出記録を貸出日時の昇順で返す。
func (r *PostgresCheckoutRepo) FindUnreturnedAll(ctx context.Context) ([]*model.Checkout, error) {
	return r.selectCheckouts(ctx,
		checkoutSelect+` WHERE c.returned_at IS NULL ORDER BY c.checked_out_at ASC`,
	)
}

// FindUnreturnedByUserID は指定ユーザーの未返却の貸出記録を貸出日時の昇順で返す。
func (r *PostgresCheckoutRepo) FindUnreturnedByUserID(ctx context.Context, userID string) ([]*model.Checkout, error) {
	return r.selectCheckouts(ctx,
		checkoutSelect+` WHERE c.returned_at IS NULL AND c.user_id = $1 ORDER BY c.checked_out_at ASC`,
		userID,
	)
}

// FindHistoryByBookID は指定蔵書の貸出記録を貸出日時の降順で返す。
func (r *PostgresCheckoutRepo) FindHistoryByBookID(ctx context.Context, bookID string) ([]*model.Checkout, error) {
	return r.selectCheckouts(ctx,
		checkoutSelect+` WHERE c.book_id = $1 ORDER BY c.checked_out_at DESC`,
		bookID,
	)
}

func (r *PostgresCheckoutRepo) selectCheckouts(ctx context.Context, query string, args ...any) ([]*model.Checkout, error) {
	var rows []checkoutRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select checkouts: %w", err)
	}

	checkouts := make([]*model.Checkout, len(rows))
	for i, row := range rows {
		checkouts[i] = row.toModel()
	}
	return checkouts, nil
}

// compile-time interface check
var _ CheckoutRepository = (*PostgresCheckoutRepo)(nil)
