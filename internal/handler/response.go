package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/superkart/internal/middleware"
	"github.com/hitoshi/superkart/internal/model"
	"github.com/hitoshi/superkart/internal/storefront"
)

// maxBodyBytes はリクエストボディの上限。
const maxBodyBytes = 1 << 20

// envelope は成功レスポンスの共通形式。
// notificationsはセッションに溜まった通知で、空でも省略しない。
type envelope struct {
	Data          any                  `json:"data"`
	Notifications []model.Notification `json:"notifications"`
}

// writeJSON はデータとセッションの通知をJSONで書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, s *storefront.Session, data any) {
	notifications := []model.Notification{}
	if s != nil {
		notifications = s.Notifications.Drain()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(envelope{Data: data, Notifications: notifications})
}

// writeError はエラーを統一フォーマットとセッションの通知で書き込む。
func writeError(w http.ResponseWriter, logger *slog.Logger, s *storefront.Session, err error) {
	apiErr, status := middleware.ResolveError(logger, err)
	var notifications []model.Notification
	if s != nil {
		notifications = s.Notifications.Drain()
	}
	middleware.WriteErrorWithNotifications(w, status, apiErr, notifications)
}

// currentSession はセッションミドルウェアが注入したコンテナを返す。
// 見つからない場合は500を書き込んでfalseを返す。
func currentSession(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*storefront.Session, bool) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		logger.Error("セッションがコンテキストにありません", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return s, true
}

// decodeBody はJSONボディをdstに読み込む。
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return model.NewValidationError("Request body is too large")
		case errors.Is(err, io.EOF):
			return model.NewValidationError("Request body is required")
		default:
			return model.NewValidationError("Invalid request body")
		}
	}
	return nil
}

// productIDRequest は商品IDだけを受け取るリクエストボディ。
type productIDRequest struct {
	ProductID string `json:"productId"`
}
