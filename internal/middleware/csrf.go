package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/superkart/internal/model"
	"github.com/hitoshi/superkart/internal/storefront"
)

const (
	// csrfCookieName はCSRFトークンを保持するCookieの名前。
	// フロントエンドがJavaScriptで読み取ってヘッダーに載せるため、HttpOnlyではない。
	csrfCookieName = "csrf_token"

	// csrfHeaderName はカート・ウィッシュリスト・チェックアウトの変更時に必須のヘッダー。
	csrfHeaderName = "X-CSRF-Token"

	csrfCookieMaxAge = 86400 // 24時間
)

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
	// TrustedOrigins は変更リクエストのOriginヘッダーとして許可するオリジン。
	// 空の場合はOriginを検証しない。
	TrustedOrigins []string
}

// NewCSRFMiddleware はダブルサブミットCookie方式のCSRF対策ミドルウェアを返す。
// 安全なメソッドは検証せず、未設定ならトークンCookieを発行する。
// 変更系メソッドはOriginが信頼済みであること、Cookieとヘッダーのトークンが一致することを必須とする。
// 拒否したリクエストではセッションの通知を消費しない。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	trusted := make(map[string]bool, len(config.TrustedOrigins))
	for _, o := range config.TrustedOrigins {
		if o = strings.TrimRight(o, "/"); o != "" {
			trusted[o] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				ensureCSRFCookie(w, r, config)
				next.ServeHTTP(w, r)
				return
			}

			reason := checkOrigin(r, trusted)
			if reason == "" {
				reason = checkCSRF(r)
			}
			if reason != "" {
				attrs := []any{
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				}
				if s, ok := SessionFromContext(r.Context()); ok {
					attrs = append(attrs, slog.String("session", storefront.ShortID(s.ID)))
				}
				slog.Warn("CSRF検証に失敗しました", attrs...)
				WriteErrorResponse(w, http.StatusForbidden, model.NewCSRFError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// checkOrigin はOriginヘッダーが信頼済みかを検証し、失敗した場合はその理由を返す。
// Originを送らないクライアントはトークン検証のみで判定する。
func checkOrigin(r *http.Request, trusted map[string]bool) string {
	if len(trusted) == 0 {
		return ""
	}
	origin := r.Header.Get("Origin")
	if origin == "" || trusted[origin] {
		return ""
	}
	return "untrusted origin"
}

// checkCSRF はトークンを検証し、失敗した場合はその理由を返す。
func checkCSRF(r *http.Request) string {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return "missing cookie token"
	}
	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return "missing header token"
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return "token mismatch"
	}
	return ""
}

// csrfTokenResponse はCSRFトークン取得のレスポンス。
// 他のストアフロントAPIと同じく、セッションに溜まった通知を添える。
type csrfTokenResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
	Notifications []model.Notification `json:"notifications"`
}

// NewCSRFTokenHandler はCSRFトークン取得エンドポイントのハンドラーを返す。
// GET /csrf-token
// 既存のトークンCookieがある場合はそれを返し、なければ発行する。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
			token = cookie.Value
		} else {
			token, err = generateCSRFToken()
			if err != nil {
				slog.Error("CSRFトークンの生成に失敗しました", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
			setCSRFCookie(w, token, config)
		}

		var body csrfTokenResponse
		body.Data.Token = token
		body.Notifications = []model.Notification{}
		if s, ok := SessionFromContext(r.Context()); ok {
			body.Notifications = s.Notifications.Drain()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})
}

// isSafeMethod はカタログや状態の参照など、状態を変更しないメソッドかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// ensureCSRFCookie はトークンCookieが未設定の場合に発行する。
func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, config CSRFConfig) {
	if _, err := r.Cookie(csrfCookieName); err == nil {
		return
	}
	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("CSRFトークンの生成に失敗しました", slog.String("error", err.Error()))
		return
	}
	setCSRFCookie(w, token, config)
}

func setCSRFCookie(w http.ResponseWriter, token string, config CSRFConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   csrfCookieMaxAge,
		HttpOnly: false,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateCSRFToken は暗号的に安全なトークンを生成する。
func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
