package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/jmoiron/sqlx"
)

// PostgresBookRepo はPostgreSQLを使用した蔵書リポジトリ。
type PostgresBookRepo struct {
	db *sqlx.DB
}

// NewPostgresBookRepo はPostgresBookRepoを生成する。
func NewPostgresBookRepo(db *sql.DB) *PostgresBookRepo {
	return &PostgresBookRepo{db: sqlx.NewDb(db, "postgres")}
}

// bookRow は蔵書と未返却の貸出情報を結合した読み取り用の行。
type bookRow struct {
	ID                string         `db:"id"`
	Title             string         `db:"title"`
	Author            string         `db:"author"`
	ISBN              string         `db:"isbn"`
	Description       string         `db:"description"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
	CheckoutID        sql.NullString `db:"checkout_id"`
	CheckoutUserID    sql.NullString `db:"checkout_user_id"`
	CheckoutUserName  string         `db:"checkout_user_name"`
	CheckoutCreatedAt sql.NullTime   `db:"checked_out_at"`
}

func (row bookRow) toModel() *model.Book {
	book := &model.Book{
		ID:          row.ID,
		Title:       row.Title,
		Author:      row.Author,
		ISBN:        row.ISBN,
		Description: row.Description,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.CheckoutID.Valid {
		book.Checkout = &model.BookCheckout{
			CheckoutID:   row.CheckoutID.String,
			UserID:       row.CheckoutUserID.String,
			UserName:     row.CheckoutUserName,
			CheckedOutAt: row.CheckoutCreatedAt.Time,
		}
	}
	return book
}

const bookSelect = `
SELECT b.id, b.title, b.author, b.isbn, b.description, b.created_at, b.updated_at,
       c.id AS checkout_id, c.user_id AS checkout_user_id,
       COALESCE(u.name, '') AS checkout_user_name, c.checked_out_at
FROM books b
LEFT JOIN checkouts c ON c.book_id = b.id AND c.returned_at IS NULL
LEFT JOIN users u ON u.id = c.user_id`

// FindByID は指定IDの蔵書を取得する。見つからない場合はnilを返す。
func (r *PostgresBookRepo) FindByID(ctx context.Context, id string) (*model.Book, error) {
	var row bookRow
	err := r.db.GetContext(ctx, &row, bookSelect+` WHERE b.id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find book: %w", err)
	}
	return row.toModel(), nil
}

// FindAll は蔵書一覧を作成日時の降順で返す。
func (r *PostgresBookRepo) FindAll(ctx context.Context, limit, offset int64) (*model.PaginatedBooks, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM books`); err != nil {
		return nil, fmt.Errorf("failed to count books: %w", err)
	}

	var rows []bookRow
	if err := r.db.SelectContext(ctx, &rows,
		bookSelect+` ORDER BY b.created_at DESC, b.id ASC LIMIT $1 OFFSET $2`,
		limit, offset,
	); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}

	items := make([]*model.Book, len(rows))
	for i, row := range rows {
		items[i] = row.toModel()
	}

	return &model.PaginatedBooks{
		Total:  total,
		Limit:  limit,
		Offset: offset,
		Items:  items,
	}, nil
}

// Create は蔵書を登録する。
func (r *PostgresBookRepo) Create(ctx context.Context, book *model.Book) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO books (id, title, author, isbn, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		book.ID, book.Title, book.Author, book.ISBN, book.Description, book.CreatedAt, book.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert book: %w", err)
	}
	return nil
}

// compile-time interface check
var _ BookRepository = (*PostgresBookRepo)(nil)
