// Package wishlist はリモートウィッシュリストのクライアント側ミラーを提供する。
package wishlist

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/superkart/internal/model"
	"github.com/hitoshi/superkart/internal/storeapi"
)

// 通知メッセージ
const (
	msgLoginRequired = "You need to login first"
	msgAdded         = "Product added to wishlist"
	msgRemoved       = "Product removed from wishlist"
	msgAddFailed     = "Failed to add product to wishlist"
	msgRemoveFailed  = "Failed to remove product"
	msgLoadFailed    = "Failed to load wishlist"
)

// API はウィッシュリスト状態が使用する外部APIの操作。
type API interface {
	GetWishlist(ctx context.Context, token string) (*model.WishlistSnapshot, error)
	AddToWishlist(ctx context.Context, token, productID string) (*storeapi.WishlistMutation, error)
	RemoveFromWishlist(ctx context.Context, token, productID string) (*storeapi.WishlistMutation, error)
}

// TokenSource は現在のベアラートークンを返す。
type TokenSource interface {
	Token() string
}

// Notifier は利用者への通知先。
type Notifier interface {
	Success(message string)
	Error(message string)
}

// MutationRecorder は状態変更操作の結果を記録する。
type MutationRecorder interface {
	RecordMutation(resource, op, outcome string)
}

// Hooks は任意の連携先。
type Hooks struct {
	OnUnauthorized func(ctx context.Context)
	Metrics        MutationRecorder
}

// State はブラウザセッションのウィッシュリスト状態。
// カートと同じく、成功時にサーバーの表現でスナップショットを丸ごと置き換える。
type State struct {
	api      API
	tokens   TokenSource
	notifier Notifier
	logger   *slog.Logger
	hooks    Hooks

	mu     sync.Mutex
	snap   *model.WishlistSnapshot
	epoch  uint64
	closed bool
}

// NewState はStateを生成する。初期状態は未読み込み（nil）。
func NewState(api API, tokens TokenSource, notifier Notifier, logger *slog.Logger, hooks Hooks) *State {
	return &State{
		api:      api,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger,
		hooks:    hooks,
	}
}

// Snapshot は現在のスナップショットのコピーを返す。未読み込みの場合はnil。
func (s *State) Snapshot() *model.WishlistSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Loaded はスナップショットを保持しているかを返す。
func (s *State) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap != nil
}

// Contains は商品がウィッシュリストに含まれるかを返す。
func (s *State) Contains(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Contains(productID)
}

// Count はウィッシュリストの商品数を返す。
func (s *State) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return 0
	}
	return len(s.snap.Products)
}

// Close は以後に解決したレスポンスを破棄する。
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Reset はスナップショットを空に置き換える。ログアウト時に呼ばれる。
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.snap = model.EmptyWishlist()
}

// Invalidate はスナップショットを未読み込みに戻す。ログイン時に呼ばれる。
func (s *State) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.snap = nil
}

func (s *State) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *State) adopt(epoch uint64, snap *model.WishlistSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.epoch != epoch {
		return
	}
	s.snap = snap
}

// adoptIDs は変更レスポンスの商品ID一覧からスナップショットを組み立てて置き換える。
// 既知の商品は保持中の商品情報を引き継ぐ。
func (s *State) adoptIDs(epoch uint64, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.epoch != epoch {
		return
	}
	known := make(map[string]model.ProductSummary)
	if s.snap != nil {
		for _, p := range s.snap.Products {
			known[p.ID] = p
		}
	}
	next := model.EmptyWishlist()
	for _, id := range ids {
		p, ok := known[id]
		if !ok {
			p = model.ProductSummary{ID: id}
		}
		next.Products = append(next.Products, p)
	}
	s.snap = next
}

// Load はリモートウィッシュリストを取得してスナップショットを置き換える。
// 未ログインの場合はリモート呼び出しを行わず空になる。
func (s *State) Load(ctx context.Context) error {
	epoch := s.currentEpoch()
	token := s.tokens.Token()
	if token == "" {
		s.adopt(epoch, model.EmptyWishlist())
		return nil
	}

	snap, err := s.api.GetWishlist(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, storeapi.ErrNotFound):
			s.adopt(epoch, model.EmptyWishlist())
			return nil
		case errors.Is(err, storeapi.ErrUnauthorized):
			s.adopt(epoch, model.EmptyWishlist())
			s.unauthorized(ctx)
			return nil
		}
		s.logger.Error("ウィッシュリストの取得に失敗しました", slog.String("error", err.Error()))
		return model.NewUpstreamError("wishlist", msgLoadFailed)
	}

	s.adopt(epoch, snap)
	return nil
}

// Add は商品をウィッシュリストに追加し、商品情報付きで再取得する。
func (s *State) Add(ctx context.Context, productID string) error {
	return s.mutate(ctx, "add", productID, s.api.AddToWishlist, msgAdded, msgAddFailed)
}

// Remove は商品をウィッシュリストから削除し、再取得する。
func (s *State) Remove(ctx context.Context, productID string) error {
	return s.mutate(ctx, "remove", productID, s.api.RemoveFromWishlist, msgRemoved, msgRemoveFailed)
}

// Toggle は商品が含まれていれば削除し、含まれていなければ追加する。
// 追加した場合はtrueを返す。
func (s *State) Toggle(ctx context.Context, productID string) (added bool, err error) {
	if s.Contains(productID) {
		return false, s.Remove(ctx, productID)
	}
	return true, s.Add(ctx, productID)
}

type mutationFunc func(ctx context.Context, token, productID string) (*storeapi.WishlistMutation, error)

func (s *State) mutate(ctx context.Context, op, productID string, call mutationFunc, okMsg, failMsg string) error {
	if productID == "" {
		return model.NewValidationError("productId is required")
	}
	epoch := s.currentEpoch()
	token := s.tokens.Token()
	if token == "" {
		s.notifier.Error(msgLoginRequired)
		s.record(op, "unauthenticated")
		return model.NewAuthRequiredError()
	}

	mut, err := call(ctx, token, productID)
	if err != nil {
		s.logger.Error("ウィッシュリストの更新に失敗しました",
			slog.String("op", op),
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		s.notifier.Error(failMsg)
		// 401も他の失敗と同じ扱いで返し、トークンの再検証だけを追加で行う
		if errors.Is(err, storeapi.ErrUnauthorized) {
			s.record(op, "unauthenticated")
			s.unauthorized(ctx)
		} else {
			s.record(op, "failure")
		}
		return model.NewUpstreamError("wishlist", failMsg)
	}

	// 変更レスポンスは商品IDのみのため、採用した後に商品情報付きで再取得する
	s.adoptIDs(epoch, mut.ProductIDs)
	if reloaded, err := s.api.GetWishlist(ctx, token); err == nil {
		s.adopt(epoch, reloaded)
	} else {
		s.logger.Warn("ウィッシュリスト更新後の再取得に失敗しました", slog.String("error", err.Error()))
	}

	s.notifier.Success(okMsg)
	s.record(op, "success")
	return nil
}

func (s *State) unauthorized(ctx context.Context) {
	if s.hooks.OnUnauthorized != nil {
		s.hooks.OnUnauthorized(ctx)
	}
}

func (s *State) record(op, outcome string) {
	if s.hooks.Metrics != nil {
		s.hooks.Metrics.RecordMutation("wishlist", op, outcome)
	}
}
