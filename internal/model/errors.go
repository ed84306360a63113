// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, checkout, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeUnauthenticated       = "UNAUTHENTICATED"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeBookAlreadyCheckedOut = "BOOK_ALREADY_CHECKED_OUT"
	ErrCodeCheckoutNotFound      = "CHECKOUT_NOT_FOUND"
	ErrCodeAlreadyReturned       = "ALREADY_RETURNED"
	ErrCodeBookNotFound          = "BOOK_NOT_FOUND"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeEmailAlreadyExists    = "EMAIL_ALREADY_EXISTS"
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeRateLimited           = "RATE_LIMITED"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// HasCode はエラーチェーン中にcodeを持つAPIErrorが含まれるかを判定する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewInvalidCredentialsError はメールアドレスまたはパスワードの不一致エラーを生成する。
// 未登録メールアドレスとパスワード誤りを区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を実行する権限がありません。",
		Category: "auth",
		Action:   "管理者に問い合わせてください。",
	}
}

// NewBookAlreadyCheckedOutError は貸出中の蔵書を貸し出そうとした場合のエラーを生成する。
func NewBookAlreadyCheckedOutError(bookID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookAlreadyCheckedOut,
		Message:  fmt.Sprintf("指定された蔵書は貸出中です: %s", bookID),
		Category: "checkout",
		Action:   "返却されるまでお待ちください。",
	}
}

// NewCheckoutNotFoundError は貸出記録が見つからない場合のエラーを生成する。
func NewCheckoutNotFoundError(checkoutID string) *APIError {
	return &APIError{
		Code:     ErrCodeCheckoutNotFound,
		Message:  fmt.Sprintf("指定された貸出記録が見つかりません: %s", checkoutID),
		Category: "checkout",
		Action:   "蔵書IDと貸出IDを確認してください。",
	}
}

// NewAlreadyReturnedError は返却済みの貸出を再度返却しようとした場合のエラーを生成する。
func NewAlreadyReturnedError(checkoutID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyReturned,
		Message:  fmt.Sprintf("指定された貸出はすでに返却されています: %s", checkoutID),
		Category: "checkout",
		Action:   "貸出履歴を確認してください。",
	}
}

// NewBookNotFoundError は蔵書が見つからない場合のエラーを生成する。
func NewBookNotFoundError(bookID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookNotFound,
		Message:  fmt.Sprintf("指定された蔵書が見つかりません: %s", bookID),
		Category: "checkout",
		Action:   "蔵書IDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewEmailAlreadyExistsError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyExistsError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyExists,
		Message:  fmt.Sprintf("このメールアドレスはすでに登録されています: %s", email),
		Category: "validation",
		Action:   "別のメールアドレスを指定してください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
