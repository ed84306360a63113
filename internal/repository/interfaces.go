// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

var (
	// ErrNotFound は更新・削除対象の行が存在しない場合に返される。
	ErrNotFound = errors.New("record not found")

	// ErrOpenCheckoutExists は同じ蔵書に未返却の貸出がすでに存在する場合に返される。
	// checkouts_open_book_idx の一意制約違反、または ON CONFLICT による挿入スキップで検出する。
	ErrOpenCheckoutExists = errors.New("open checkout already exists for book")

	// ErrEmailTaken はメールアドレスの一意制約に違反した場合に返される。
	ErrEmailTaken = errors.New("email already registered")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindAll は全ユーザーを作成日時の昇順で返す。
	FindAll(ctx context.Context) ([]*model.User, error)

	// Create はユーザーを作成する。メールアドレス重複時はErrEmailTakenを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdatePassword はパスワードハッシュを更新する。対象がない場合はErrNotFoundを返す。
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error

	// UpdateRole はロールを更新する。対象がない場合はErrNotFoundを返す。
	UpdateRole(ctx context.Context, id string, role model.Role, updatedAt time.Time) error

	// DeleteByID は指定IDのユーザーを削除する。対象がない場合はErrNotFoundを返す。
	// 貸出記録は監査履歴として残す。
	DeleteByID(ctx context.Context, id string) error
}

// BookRepository は蔵書データの読み取りインターフェース。
// 登録はCLIのインポート処理からのみ利用する。
type BookRepository interface {
	// FindByID は指定IDの蔵書を未返却の貸出情報付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Book, error)

	// FindAll は蔵書一覧を作成日時の降順で返す。
	FindAll(ctx context.Context, limit, offset int64) (*model.PaginatedBooks, error)

	// Create は蔵書を登録する。
	Create(ctx context.Context, book *model.Book) error
}

// CheckoutRepository は貸出記録の永続化インターフェース。
type CheckoutRepository interface {
	// Create は貸出記録を挿入する。
	// 同じ蔵書に未返却の行がすでにある場合は挿入せずErrOpenCheckoutExistsを返す。
	// 判定と挿入は単一の文で原子的に行う。
	Create(ctx context.Context, checkout *model.Checkout) error

	// MarkReturned は未返却の貸出行に返却日時と返却者を設定する。
	// id・book_idが一致し、かつ未返却の行を更新できた場合のみtrueを返す。
	MarkReturned(ctx context.Context, checkoutID, bookID, returnerID string, returnedAt time.Time) (bool, error)

	// FindByID は指定IDの貸出記録を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Checkout, error)

	// FindUnreturnedAll は未返却の貸出記録を貸出日時の昇順で返す。
	FindUnreturnedAll(ctx context.Context) ([]*model.Checkout, error)

	// FindUnreturnedByUserID は指定ユーザーの未返却の貸出記録を貸出日時の昇順で返す。
	FindUnreturnedByUserID(ctx context.Context, userID string) ([]*model.Checkout, error)

	// FindHistoryByBookID は指定蔵書の貸出記録（返却済みを含む）を貸出日時の降順で返す。
	FindHistoryByBookID(ctx context.Context, bookID string) ([]*model.Checkout, error)
}
