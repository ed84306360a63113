package model

import "time"

// Checkout は蔵書の貸出記録を表す。
// ReturnedAtがnilの行は貸出中を示し、1冊につき同時に1行までしか存在しない。
// 返却時に一度だけ更新され、削除はされない。
type Checkout struct {
	ID           string
	BookID       string
	UserID       string
	CheckedOutAt time.Time
	ReturnedAt   *time.Time
	ReturnedBy   *string

	// 一覧表示用の結合情報。削除済みユーザーの場合BorrowerNameは空になる。
	BookTitle    string
	BookAuthor   string
	BorrowerName string
}

// IsReturned は返却済みかどうかを返す。
func (c *Checkout) IsReturned() bool {
	return c.ReturnedAt != nil
}
