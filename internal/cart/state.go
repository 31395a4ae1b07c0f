// Package cart はリモートカートのクライアント側ミラーを提供する。
// 変更操作は必ず外部APIを経由し、成功時にサーバーが返した正規表現でスナップショットを丸ごと置き換える。
// 失敗時は直前のスナップショットを保持したまま通知を出す。
package cart

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
	msgAdded         = "Product added to cart"
	msgAddFailed     = "Failed to add product"
	msgUpdateFailed  = "Failed to update item"
	msgLastRemoved   = "Last product removed. Cart is empty."
	msgRemoved       = "Product removed from cart"
	msgRemoveFailed  = "Failed to remove product"
	msgCleared       = "Cart cleared successfully"
	msgClearFailed   = "Failed to clear cart"
	msgLoadFailed    = "Failed to load cart"
)

// API はカート状態が使用する外部APIの操作。
type API interface {
	GetCart(ctx context.Context, token string) (*model.CartSnapshot, error)
	AddToCart(ctx context.Context, token, productID string) (*storeapi.CartMutation, error)
	UpdateCartItem(ctx context.Context, token, productID string, count int) (*storeapi.CartMutation, error)
	RemoveCartItem(ctx context.Context, token, productID string) (*storeapi.CartMutation, error)
	ClearCart(ctx context.Context, token string) error
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
	// OnUnauthorized は外部APIが401を返したときに呼ばれる。トークンの再検証に接続する。
	OnUnauthorized func(ctx context.Context)
	// Metrics は操作結果の記録先。nilでもよい。
	Metrics MutationRecorder
}

// State はブラウザセッションのカート状態。
// スナップショットの置き換えはミューテックスで保護するが、操作同士は直列化しない。
// 同時に発行された操作は最後に解決したレスポンスが勝つ。
type State struct {
	api      API
	tokens   TokenSource
	notifier Notifier
	logger   *slog.Logger
	hooks    Hooks

	mu     sync.Mutex
	snap   *model.CartSnapshot // nil は未読み込み
	epoch  uint64              // 認証状態の切り替えごとに増える
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
func (s *State) Snapshot() *model.CartSnapshot {
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

// Count はカート内の商品行数を返す。未読み込みの場合は0。
func (s *State) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return 0
	}
	return len(s.snap.Lines)
}

// Close は以後に解決したレスポンスを破棄する。セッション破棄時に呼ばれる。
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Reset はスナップショットを空のカートに置き換える。ログアウト時に呼ばれる。
// 切り替え前に発行された操作のレスポンスは以後破棄される。
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.snap = model.EmptyCart()
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

// adopt はスナップショットを置き換える。
// Close後、または操作開始後に認証状態が切り替わった場合は破棄してfalseを返す。
func (s *State) adopt(epoch uint64, snap *model.CartSnapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.epoch != epoch {
		return false
	}
	s.snap = snap
	return true
}

// Load はリモートカートを取得してスナップショットを置き換える。
// 未ログインの場合はリモート呼び出しを行わず空のカートになる。
// 404と401も空のカートとして扱う。それ以外の失敗ではスナップショットを変更しない。
func (s *State) Load(ctx context.Context) error {
	epoch := s.currentEpoch()
	token := s.tokens.Token()
	if token == "" {
		s.adopt(epoch, model.EmptyCart())
		return nil
	}

	snap, err := s.api.GetCart(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, storeapi.ErrNotFound):
			s.adopt(epoch, model.EmptyCart())
			return nil
		case errors.Is(err, storeapi.ErrUnauthorized):
			s.adopt(epoch, model.EmptyCart())
			s.unauthorized(ctx)
			return nil
		}
		s.logger.Error("カートの取得に失敗しました", slog.String("error", err.Error()))
		return model.NewUpstreamError("cart", msgLoadFailed)
	}

	s.adopt(epoch, snap)
	return nil
}

// Add は商品を1点追加し、商品情報を含むカートを再取得して置き換える。
// 未ログインの場合はリモート呼び出しを行わず、スナップショットを破棄して通知する。
func (s *State) Add(ctx context.Context, productID string) error {
	if productID == "" {
		return model.NewValidationError("productId is required")
	}
	epoch := s.currentEpoch()
	token := s.tokens.Token()
	if token == "" {
		s.adopt(epoch, nil)
		s.notifier.Error(msgLoginRequired)
		s.record("add", "unauthenticated")
		return model.NewAuthRequiredError()
	}

	mut, err := s.api.AddToCart(ctx, token, productID)
	if err != nil {
		if errors.Is(err, storeapi.ErrUnauthorized) {
			s.adopt(epoch, nil)
			s.notifier.Error(msgLoginRequired)
			s.record("add", "unauthenticated")
			s.unauthorized(ctx)
			return model.NewAuthRequiredError()
		}
		s.logger.Error("カートへの商品追加に失敗しました",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		s.notifier.Error(msgAddFailed)
		s.record("add", "failure")
		return model.NewUpstreamError("cart", msgAddFailed)
	}

	// 追加レスポンスの商品はIDのみのため、まず採用してから商品情報付きで再取得する
	s.adopt(epoch, mut.Cart)
	if reloaded, err := s.api.GetCart(ctx, token); err == nil {
		s.adopt(epoch, reloaded)
	} else {
		s.logger.Warn("商品追加後のカート再取得に失敗しました", slog.String("error", err.Error()))
	}

	msg := mut.Message
	if msg == "" {
		msg = msgAdded
	}
	s.notifier.Success(msg)
	s.record("add", "success")
	return nil
}

// SetQuantity は商品の数量を更新する。
// 0は削除（Remove）と同じ。負の値は検証エラーでリモート呼び出しを行わない。
func (s *State) SetQuantity(ctx context.Context, productID string, quantity int) error {
	if productID == "" {
		return model.NewValidationError("productId is required")
	}
	if quantity < 0 {
		return model.NewValidationError("count must not be negative")
	}
	if quantity == 0 {
		return s.Remove(ctx, productID)
	}

	epoch := s.currentEpoch()
	token, err := s.requireToken("update")
	if err != nil {
		return err
	}

	mut, err := s.api.UpdateCartItem(ctx, token, productID, quantity)
	if err != nil {
		return s.fail(ctx, "update", msgUpdateFailed, productID, err)
	}

	s.adopt(epoch, mut.Cart)
	s.record("update", "success")
	return nil
}

// Remove は商品をカートから削除する。
// 最後の1商品を削除した場合は空のカートの正規表現に置き換える。
func (s *State) Remove(ctx context.Context, productID string) error {
	if productID == "" {
		return model.NewValidationError("productId is required")
	}
	epoch := s.currentEpoch()
	token, err := s.requireToken("remove")
	if err != nil {
		return err
	}

	mut, err := s.api.RemoveCartItem(ctx, token, productID)
	if err != nil {
		return s.fail(ctx, "remove", msgRemoveFailed, productID, err)
	}

	if mut.Cart.ItemCount == 0 {
		s.adopt(epoch, model.EmptyCart())
		s.notifier.Success(msgLastRemoved)
	} else {
		s.adopt(epoch, mut.Cart)
		s.notifier.Success(msgRemoved)
	}
	s.record("remove", "success")
	return nil
}

// Clear はカートを空にする。
func (s *State) Clear(ctx context.Context) error {
	epoch := s.currentEpoch()
	token, err := s.requireToken("clear")
	if err != nil {
		return err
	}

	if err := s.api.ClearCart(ctx, token); err != nil {
		return s.fail(ctx, "clear", msgClearFailed, "", err)
	}

	s.adopt(epoch, model.EmptyCart())
	s.notifier.Success(msgCleared)
	s.record("clear", "success")
	return nil
}

func (s *State) requireToken(op string) (string, error) {
	token := s.tokens.Token()
	if token == "" {
		s.notifier.Error(msgLoginRequired)
		s.record(op, "unauthenticated")
		return "", model.NewAuthRequiredError()
	}
	return token, nil
}

// fail は変更操作の失敗を通知し、スナップショットを変更せずにエラーを返す。
func (s *State) fail(ctx context.Context, op, message, productID string, err error) error {
	s.logger.Error("カートの更新に失敗しました",
		slog.String("op", op),
		slog.String("product_id", productID),
		slog.String("error", err.Error()),
	)
	s.notifier.Error(message)
	if errors.Is(err, storeapi.ErrUnauthorized) {
		s.record(op, "unauthenticated")
		s.unauthorized(ctx)
		return model.NewAuthRequiredError()
	}
	s.record(op, "failure")
	return model.NewUpstreamError("cart", message)
}

func (s *State) unauthorized(ctx context.Context) {
	if s.hooks.OnUnauthorized != nil {
		s.hooks.OnUnauthorized(ctx)
	}
}

func (s *State) record(op, outcome string) {
	if s.hooks.Metrics != nil {
		s.hooks.Metrics.RecordMutation("cart", op, outcome)
	}
}
