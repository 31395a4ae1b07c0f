// Package handler はストアフロントのJSON HTTPハンドラーを提供する。
// ハンドラーはセッションの状態保持コンテナを読み、変更はコンテナの操作を通じてのみ行う。
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/superkart/internal/auth"
	"github.com/hitoshi/superkart/internal/middleware"
	"github.com/hitoshi/superkart/internal/model"
	"github.com/hitoshi/superkart/internal/storefront"
)

// SessionTerminator は永続化されたブラウザセッションを削除する。
// auth.Service が満たす。
type SessionTerminator interface {
	EndSession(ctx context.Context, sessionID string) error
}

// SessionReleaser はメモリ上の状態保持コンテナを破棄する。
// storefront.Registry が満たす。
type SessionReleaser interface {
	Drop(id string)
}

// AuthHandler は会員登録・ログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	sessions SessionTerminator
	releaser SessionReleaser
	cookie   middleware.SessionConfig
	logger   *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(sessions SessionTerminator, releaser SessionReleaser, cookie middleware.SessionConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, releaser: releaser, cookie: cookie, logger: logger}
}

// authStateResponse はログイン状態のレスポンス。
type authStateResponse struct {
	Authenticated bool        `json:"authenticated"`
	User          *model.User `json:"user"`
}

// signUpResponse は会員登録のレスポンス。
type signUpResponse struct {
	Message string `json:"message"`
}

func stateOf(s *storefront.Session) authStateResponse {
	return authStateResponse{Authenticated: s.Auth.IsAuthenticated(), User: s.Auth.User()}
}

// SignUp は会員登録を行う。成功してもログイン状態にはならない。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	var in auth.SignUpInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	res, err := s.Auth.SignUp(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusCreated, s, signUpResponse{Message: res.Message})
}

// Login はログインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	var in auth.Credentials
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	if _, err := s.Auth.Login(r.Context(), in); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, stateOf(s))
}

// Logout はCredentialを破棄する。ブラウザセッション自体は匿名として継続する。
// トークン破棄を永続化できなかった場合はブラウザセッションごと終了する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	if err := s.Auth.Logout(r.Context()); err != nil {
		h.logger.Warn("トークン破棄を永続化できないためセッションを終了します",
			slog.String("session", storefront.ShortID(s.ID)),
			slog.String("error", err.Error()),
		)
		h.terminate(r.Context(), w, s.ID)
	}
	writeJSON(w, http.StatusOK, s, stateOf(s))
}

// terminate は永続化されたセッションとメモリ上のコンテナを破棄し、Cookieを削除する。
// 永続化層に古いトークンが残っても、Cookieがなければ復元されない。
func (h *AuthHandler) terminate(ctx context.Context, w http.ResponseWriter, sessionID string) {
	if h.sessions != nil {
		if err := h.sessions.EndSession(ctx, sessionID); err != nil {
			h.logger.Error("セッションの削除に失敗しました",
				slog.String("session", storefront.ShortID(sessionID)),
				slog.String("error", err.Error()),
			)
		}
	}
	if h.releaser != nil {
		h.releaser.Drop(sessionID)
	}
	middleware.ClearSessionCookie(w, h.cookie)
}

// Me は現在の利用者を返す。ログイン中はトークンを再検証する。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	if err := s.Auth.Revalidate(r.Context()); err != nil && !auth.IsRejected(err) {
		// 通信失敗ではログイン状態を維持し、保持中の利用者情報を返す
		h.logger.Warn("トークンの再検証に失敗しました", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, s, stateOf(s))
}
