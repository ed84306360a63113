package model

import "time"

// Book は蔵書を表す。
// 貸出可否は保持せず、未返却のCheckoutの有無から導出する。
type Book struct {
	ID          string
	Title       string
	Author      string
	ISBN        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Checkout は未返却の貸出がある場合のみ設定される。
	Checkout *BookCheckout
}

// IsAvailable は貸出可能かどうかを返す。
func (b *Book) IsAvailable() bool {
	return b.Checkout == nil
}

// BookCheckout は蔵書に紐づく未返却の貸出情報を表す。
type BookCheckout struct {
	CheckoutID   string
	UserID       string
	UserName     string
	CheckedOutAt time.Time
}

// PaginatedBooks はページング付きの蔵書一覧を表す。
type PaginatedBooks struct {
	Total  int64
	Limit  int64
	Offset int64
	Items  []*Book
}
