package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/superkart/internal/model"
)

// MemorySessionRepo はプロセス内メモリのセッションリポジトリ。
// 単一インスタンスでの開発・テスト用で、再起動するとセッションは失われる。
type MemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
	now      func() time.Time
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{
		sessions: make(map[string]model.Session),
		now:      time.Now,
	}
}

// Create はセッションを作成する。
func (r *MemorySessionRepo) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	return nil
}

// FindByID は指定IDのセッションのコピーを返す。期限切れの場合はnilを返す。
func (r *MemorySessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok || !s.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	return &s, nil
}

// UpdateToken はセッションのベアラートークンを更新する。
func (r *MemorySessionRepo) UpdateToken(_ context.Context, id, token string) error {
	return r.update(id, func(s *model.Session) { s.Token = token })
}

// UpdateBuyNow は「今すぐ購入」の商品参照を更新する。
func (r *MemorySessionRepo) UpdateBuyNow(_ context.Context, id, productID string) error {
	return r.update(id, func(s *model.Session) { s.BuyNowProductID = productID })
}

func (r *MemorySessionRepo) update(id string, fn func(*model.Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.ExpiresAt.After(r.now()) {
		return ErrSessionNotFound
	}
	fn(&s)
	s.UpdatedAt = r.now()
	r.sessions[id] = s
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *MemorySessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

// DeleteExpired は期限切れセッションを削除する。
func (r *MemorySessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var n int64
	for id, s := range r.sessions {
		if !s.ExpiresAt.After(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// compile-time interface check
var _ SessionRepository = (*MemorySessionRepo)(nil)
