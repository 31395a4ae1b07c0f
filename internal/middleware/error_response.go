package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/superkart/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法、およびセッションに溜まった通知を含む。
type ErrorResponseBody struct {
	Code          string               `json:"code"`
	Message       string               `json:"message"`
	Category      string               `json:"category"`
	Action        string               `json:"action"`
	Notifications []model.Notification `json:"notifications,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	WriteErrorWithNotifications(w, statusCode, apiErr, nil)
}

// WriteErrorWithNotifications は通知付きの統一エラーレスポンスを書き込む。
func WriteErrorWithNotifications(w http.ResponseWriter, statusCode int, apiErr *model.APIError, notifications []model.Notification) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:          apiErr.Code,
		Message:       apiErr.Message,
		Category:      apiErr.Category,
		Action:        apiErr.Action,
		Notifications: notifications,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、利用者には一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// StatusCode はAPIErrorのコードに対応するHTTPステータスを返す。
func StatusCode(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidationFailed, model.ErrCodeCartEmpty, model.ErrCodeCartNotLoaded:
		return http.StatusBadRequest
	case model.ErrCodeAuthRequired, model.ErrCodeLoginFailed:
		return http.StatusUnauthorized
	case model.ErrCodeCSRFFailed:
		return http.StatusForbidden
	case model.ErrCodeNotFound, model.ErrCodeProductNotFound, model.ErrCodeCategoryNotFound,
		model.ErrCodeBrandNotFound, model.ErrCodeAddressNotFound:
		return http.StatusNotFound
	case model.ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case model.ErrCodeSignupFailed, model.ErrCodeOrderFailed:
		return http.StatusUnprocessableEntity
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeUpstreamFailed, model.ErrCodeInvalidRedirect:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ResolveError はエラーをレスポンス用のAPIErrorとHTTPステータスに変換する。
// APIError以外のエラーはログに記録してINTERNAL_ERRORとする。
func ResolveError(logger *slog.Logger, err error) (*model.APIError, int) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr, StatusCode(apiErr)
	}
	logger.Error("予期しないエラーが発生しました", slog.String("error", err.Error()))
	return model.NewInternalError(), http.StatusInternalServerError
}
