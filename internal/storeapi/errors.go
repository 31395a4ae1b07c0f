package storeapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// エラー分類の番兵値。errors.Isで判定する。
var (
	// ErrTransport は通信レベルの失敗（接続不可、タイムアウト等）を表す。
	ErrTransport = errors.New("store API transport failure")
	// ErrUnauthorized はサーバーがトークンを拒否した（401）ことを表す。
	ErrUnauthorized = errors.New("store API rejected the credential")
	// ErrNotFound はリソースが存在しない（404）ことを表す。
	ErrNotFound = errors.New("store API resource not found")
	// ErrInvalidResponse はレスポンスがスキーマに合致しないことを表す。
	ErrInvalidResponse = errors.New("store API returned an invalid response")
)

// Error は外部APIが返した非2xxレスポンス。
type Error struct {
	Op         string
	StatusCode int
	Message    string // サーバーが返したmessage（空の場合あり）
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: store API returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: store API returned status %d: %s", e.Op, e.StatusCode, e.Message)
}

// Is はステータスコードに応じて番兵値との一致を判定する。
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// IsRejection はサーバーがリクエストを明示的に拒否した（4xx）かを返す。
// 通信失敗や5xxはfalseになる。
func IsRejection(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// ServerMessage はエラーに含まれるサーバーのメッセージを返す。
// 取得できない場合はfallbackを返す。
func ServerMessage(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// errorBody はエラーレスポンスのボディ。
type errorBody struct {
	StatusMsg string `json:"statusMsg"`
	Message   string `json:"message"`
	Errors    *struct {
		Msg string `json:"msg"`
	} `json:"errors"`
}

// parseErrorMessage はエラーボディからユーザー向けメッセージを取り出す。
func parseErrorMessage(data []byte) string {
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	if body.Errors != nil {
		return body.Errors.Msg
	}
	return ""
}
