// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/superkart/internal/model"
	"github.com/hitoshi/superkart/internal/storefront"
)

// SessionCookieName はブラウザセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var sessionContextKey = contextKey("session")

// SessionProvider は永続化されたセッションの取得と発行を行う。
// auth.Service が満たす。
type SessionProvider interface {
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	StartSession(ctx context.Context) (*model.Session, error)
}

// SessionContainers は永続化されたセッションに対応する状態保持コンテナを返す。
// storefront.Registry が満たす。
type SessionContainers interface {
	Get(persisted *model.Session) *storefront.Session
}

// SessionConfig はセッションCookieの設定。
type SessionConfig struct {
	CookieSecure bool
	CookieDomain string
	MaxAge       int // 秒
}

// NewSessionMiddleware はHTTP Only Cookieからブラウザセッションを復元するミドルウェアを返す。
// Cookieがない、またはセッションが期限切れの場合は匿名セッションを発行してCookieを設定する。
// 状態保持コンテナをリクエストコンテキストに注入する。
func NewSessionMiddleware(provider SessionProvider, containers SessionContainers, config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var persisted *model.Session

			// 1. CookieからセッションIDを取得して復元
			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				s, err := provider.GetSession(r.Context(), cookie.Value)
				if err != nil {
					slog.Error("セッションの取得に失敗しました",
						slog.String("session", storefront.ShortID(cookie.Value)),
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
				persisted = s
			}

			// 2. なければ匿名セッションを発行
			if persisted == nil {
				s, err := provider.StartSession(r.Context())
				if err != nil {
					slog.Error("セッションの発行に失敗しました", slog.String("error", err.Error()))
					WriteInternalServerError(w)
					return
				}
				persisted = s
				setSessionCookie(w, persisted.ID, config)
			}

			// 3. 状態保持コンテナをコンテキストに注入
			session := containers.Get(persisted)
			annotateRequest(r.Context(), session.ID)
			ctx := ContextWithSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext はリクエストコンテキストから状態保持コンテナを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionFromContext(ctx context.Context) (*storefront.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*storefront.Session)
	return s, ok && s != nil
}

// ContextWithSession はコンテキストに状態保持コンテナを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, s *storefront.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// ClearSessionCookie はセッションCookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, config SessionConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func setSessionCookie(w http.ResponseWriter, sessionID string, config SessionConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   config.MaxAge,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
