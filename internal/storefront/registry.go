// Package storefront はブラウザセッションごとの状態保持コンテナを組み立てて管理する。
// 認証・カート・ウィッシュリスト・チェックアウト・通知をセッション単位で生成し、
// 認証状態の遷移をカートとウィッシュリストに伝える。
package storefront

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/superkart/internal/auth"
	"github.com/hitoshi/superkart/internal/cart"
	"github.com/hitoshi/superkart/internal/checkout"
	"github.com/hitoshi/superkart/internal/model"
	"github.com/hitoshi/superkart/internal/notify"
	"github.com/hitoshi/superkart/internal/wishlist"
	"github.com/shopspring/decimal"
)

// StoreAPI はセッションの状態保持コンテナが使用する外部APIの操作。
// storeapi.Client が満たす。
type StoreAPI interface {
	auth.API
	cart.API
	wishlist.API
	checkout.API
}

// SessionStore はトークンと今すぐ購入の商品参照の永続化先。
// repository.SessionRepository が満たす。
type SessionStore interface {
	auth.TokenStore
	checkout.BuyNowStore
}

// MetricsRecorder はレジストリが記録するメトリクス。
type MetricsRecorder interface {
	RecordMutation(resource, op, outcome string)
	SetActiveSessions(n int)
}

// Config はレジストリの設定。
type Config struct {
	// IdleTTL はアクセスのないセッションをメモリから破棄するまでの時間。
	IdleTTL              time.Duration
	NotificationCapacity int
	ShippingFee          decimal.Decimal
	CheckoutReturnURL    string
}

// Session はブラウザセッション1つ分の状態保持コンテナ。
type Session struct {
	ID            string
	Auth          *auth.State
	Cart          *cart.State
	Wishlist      *wishlist.State
	Checkout      *checkout.Flow
	Notifications *notify.Queue

	lastSeen    time.Time // Registry.muで保護
	unsubscribe func()
}

// close は以後に解決したレスポンスを破棄させ、購読を解除する。
func (s *Session) close() {
	s.unsubscribe()
	s.Cart.Close()
	s.Wishlist.Close()
}

// Registry はメモリ上のセッションを管理する。
// 永続化された状態（トークン、今すぐ購入）はセッションストアにあり、
// 破棄されたセッションは次のアクセスで復元される。
type Registry struct {
	api       StoreAPI
	store     SessionStore
	redirects checkout.RedirectValidator
	metrics   MetricsRecorder
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry はRegistryを生成する。metricsはnilでもよい。
func NewRegistry(
	api StoreAPI,
	store SessionStore,
	redirects checkout.RedirectValidator,
	metrics MetricsRecorder,
	logger *slog.Logger,
	cfg Config,
) *Registry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.NotificationCapacity <= 0 {
		cfg.NotificationCapacity = notify.DefaultCapacity
	}
	return &Registry{
		api:       api,
		store:     store,
		redirects: redirects,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Get は永続化されたセッションに対応するコンテナを返す。
// メモリ上にない場合は永続化された状態から組み立てる。
func (r *Registry) Get(persisted *model.Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[persisted.ID]; ok {
		s.lastSeen = r.now()
		return s
	}

	s := r.build(persisted)
	s.lastSeen = r.now()
	r.sessions[persisted.ID] = s
	r.reportSize()
	return s
}

// Drop はセッションをメモリから破棄する。ログアウトやセッション終了時に呼ばれる。
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		r.reportSize()
	}
	r.mu.Unlock()

	if ok {
		s.close()
	}
}

// Len はメモリ上のセッション数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EvictIdle はIdleTTLを超えてアクセスのないセッションを破棄し、破棄した数を返す。
func (r *Registry) EvictIdle() int {
	cutoff := r.now().Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	if len(idle) > 0 {
		r.reportSize()
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.close()
	}
	return len(idle)
}

// Run はIdleTTLの半分の間隔で破棄を繰り返す。
// コンテキストがキャンセルされると全セッションを閉じて戻る。
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.IdleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-ticker.C:
			if n := r.EvictIdle(); n > 0 {
				r.logger.Info("アイドルセッションを破棄しました",
					slog.Int("evicted", n),
					slog.Int("remaining", r.Len()),
				)
			}
		}
	}
}

// Close は全セッションを閉じる。
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.reportSize()
	r.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// reportSize はr.muを保持した状態で呼び出す。
func (r *Registry) reportSize() {
	if r.metrics != nil {
		r.metrics.SetActiveSessions(len(r.sessions))
	}
}

// build はセッション1つ分のコンテナを組み立てて相互に接続する。
func (r *Registry) build(persisted *model.Session) *Session {
	logger := r.logger.With(slog.String("session", ShortID(persisted.ID)))
	queue := notify.NewQueue(r.cfg.NotificationCapacity)

	cred := auth.NewCredential(persisted.ID, persisted.Token, r.store)
	authState := auth.NewState(r.api, cred, queue, logger)

	// 外部APIの401はトークンの再検証につなげ、拒否されればログアウトする
	onUnauthorized := func(ctx context.Context) {
		if err := authState.Revalidate(ctx); err != nil && !auth.IsRejected(err) {
			logger.Warn("401応答後のトークン再検証に失敗しました", slog.String("error", err.Error()))
		}
	}

	cartState := cart.NewState(r.api, authState, queue, logger, cart.Hooks{
		OnUnauthorized: onUnauthorized,
		Metrics:        r.metrics,
	})
	wishlistState := wishlist.NewState(r.api, authState, queue, logger, wishlist.Hooks{
		OnUnauthorized: onUnauthorized,
		Metrics:        r.metrics,
	})
	flow := checkout.NewFlow(checkout.Deps{
		API:            r.api,
		Cart:           cartState,
		Tokens:         authState,
		BuyNow:         r.store,
		Redirects:      r.redirects,
		Notifier:       queue,
		Logger:         logger,
		Metrics:        r.metrics,
		OnUnauthorized: onUnauthorized,
	}, checkout.Config{
		ShippingFee: r.cfg.ShippingFee,
		ReturnURL:   r.cfg.CheckoutReturnURL,
	}, persisted.ID, persisted.BuyNowProductID)

	unsubscribe := authState.Subscribe(func(authenticated bool) {
		if authenticated {
			cartState.Invalidate()
			wishlistState.Invalidate()
			return
		}
		cartState.Reset()
		wishlistState.Reset()
	})

	return &Session{
		ID:            persisted.ID,
		Auth:          authState,
		Cart:          cartState,
		Wishlist:      wishlistState,
		Checkout:      flow,
		Notifications: queue,
		unsubscribe:   unsubscribe,
	}
}

// ShortID はログに出力するためのセッションIDの先頭部分を返す。
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
