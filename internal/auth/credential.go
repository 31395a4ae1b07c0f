package auth

import (
	"context"
	"fmt"
	"sync"
)

// TokenStore はCredentialの永続化先。
// repository.SessionRepository が満たす。
type TokenStore interface {
	UpdateToken(ctx context.Context, sessionID, token string) error
}

// Credential はブラウザセッションに紐づくベアラートークン。
// 読み書きは同期的で、書き込みは直後の読み取りから見える。
// 空文字は匿名状態を表す。
type Credential struct {
	mu        sync.RWMutex
	sessionID string
	token     string
	store     TokenStore
}

// NewCredential はセッションストアから復元したトークンでCredentialを生成する。
func NewCredential(sessionID, token string, store TokenStore) *Credential {
	return &Credential{sessionID: sessionID, token: token, store: store}
}

// Token は現在のトークンを返す。匿名の場合は空文字。
func (c *Credential) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Present はトークンが保持されているかを返す。
func (c *Credential) Present() bool {
	return c.Token() != ""
}

// Set はトークンを永続化してから保持する。
// 永続化に失敗した場合は保持中のトークンを変更しない。
func (c *Credential) Set(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.UpdateToken(ctx, c.sessionID, token); err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}
	c.token = token
	return nil
}

// Clear はトークンを破棄する。
// 永続化の成否に関わらず、保持中のトークンは必ず破棄する。
func (c *Credential) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	if err := c.store.UpdateToken(ctx, c.sessionID, ""); err != nil {
		return fmt.Errorf("failed to persist credential removal: %w", err)
	}
	return nil
}

// clearIf はトークンがexpectedと一致する場合のみ破棄し、破棄したかを返す。
// 再検証中に別のログインが行われた場合に新しいトークンを消さないために使う。
func (c *Credential) clearIf(ctx context.Context, expected string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || c.token != expected {
		return false, nil
	}
	c.token = ""
	if err := c.store.UpdateToken(ctx, c.sessionID, ""); err != nil {
		return true, fmt.Errorf("failed to persist credential removal: %w", err)
	}
	return true, nil
}
