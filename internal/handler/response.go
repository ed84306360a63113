// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hitoshi/bookman/internal/middleware"
	"github.com/hitoshi/bookman/internal/model"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// apiErrorResponse はAPIエラーレスポンスのJSON形式。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// APIError以外は永続化層の障害とみなし、詳細はログにのみ出力する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeBookAlreadyCheckedOut, model.ErrCodeAlreadyReturned, model.ErrCodeEmailAlreadyExists:
		return http.StatusConflict
	case model.ErrCodeCheckoutNotFound, model.ErrCodeBookNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeValidationFailed, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON はリクエストボディをdstにデコードする。
// 失敗した場合はINVALID_REQUESTを書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	return true
}

// requireIdentity はコンテキストから認証済み主体を取り出す。
// 見つからない場合は401を書き込みfalseを返す。
func requireIdentity(w http.ResponseWriter, r *http.Request) (*model.AuthenticatedIdentity, bool) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return nil, false
	}
	return identity, true
}

// uuidParam はURLパラメータを取り出しUUID形式かを検証する。
// 不正な場合は400を書き込みfalseを返す。
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(name+" はUUID形式で指定してください"))
		return "", false
	}
	return id.String(), true
}

// parsePagination はlimit/offsetクエリパラメータを解析する。
// limitは1から100（省略時20）、offsetは0以上（省略時0）。
func parsePagination(r *http.Request) (limit, offset int64, err error) {
	limit = defaultPageLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err = strconv.ParseInt(s, 10, 64)
		if err != nil || limit < 1 || limit > maxPageLimit {
			return 0, 0, model.NewValidationError("limit は1から100の整数で指定してください")
		}
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		offset, err = strconv.ParseInt(s, 10, 64)
		if err != nil || offset < 0 {
			return 0, 0, model.NewValidationError("offset は0以上の整数で指定してください")
		}
	}
	return limit, offset, nil
}

func notFoundRouteError() *model.APIError {
	return &model.APIError{
		Code:     "ROUTE_NOT_FOUND",
		Message:  "指定されたエンドポイントは存在しません。",
		Category: "validation",
		Action:   "URLを確認してください。",
	}
}

func methodNotAllowedError() *model.APIError {
	return &model.APIError{
		Code:     "METHOD_NOT_ALLOWED",
		Message:  "このエンドポイントでは指定されたメソッドを利用できません。",
		Category: "validation",
		Action:   "HTTPメソッドを確認してください。",
	}
}
