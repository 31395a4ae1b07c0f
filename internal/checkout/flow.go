// Package checkout は配送先・今すぐ購入・注文を扱うチェックアウトの流れを提供する。
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/superkart/internal/model"
	"github.com/hitoshi/superkart/internal/storeapi"
	"github.com/shopspring/decimal"
)

// 通知メッセージ
const (
	msgLoginRequired     = "You need to login first"
	msgOrderPlaced       = "Order placed successfully!"
	msgOrderFailed       = "Order failed. Please check your details."
	msgAddressesFailed   = "Failed to load addresses"
	msgAddressAdded      = "Address added successfully"
	msgAddressAddFailed  = "Failed to add address"
	msgAddressRemoved    = "Address removed successfully"
	msgAddressRemoveFail = "Failed to remove address"
	msgCartEmpty         = "Your cart is empty."
	msgCartNotLoaded     = "Cart ID missing. Please reload the cart."
	msgBuyNowUnavailable = "The selected product is no longer available."
)

// 注文モード
const (
	ModeCart   = "cart"
	ModeBuyNow = "buyNow"
)

// API はチェックアウトが使用する外部APIの操作。
type API interface {
	Addresses(ctx context.Context, token string) ([]model.Address, error)
	AddAddress(ctx context.Context, token string, req storeapi.AddressRequest) ([]model.Address, error)
	RemoveAddress(ctx context.Context, token, addressID string) ([]model.Address, error)
	CreateCashOrder(ctx context.Context, token string, req storeapi.OrderRequest) (*model.Order, error)
	CreateCheckoutSession(ctx context.Context, token string, req storeapi.OrderRequest, returnURL string) (*model.CheckoutSession, error)
	Product(ctx context.Context, id string) (*model.Product, error)
}

// CartView はチェックアウトが参照するカート状態。
type CartView interface {
	Snapshot() *model.CartSnapshot
	Loaded() bool
	Load(ctx context.Context) error
}

// TokenSource は現在のベアラートークンを返す。
type TokenSource interface {
	Token() string
}

// BuyNowStore は「今すぐ購入」の商品参照を永続化する。
type BuyNowStore interface {
	UpdateBuyNow(ctx context.Context, sessionID, productID string) error
}

// RedirectValidator は決済セッションURLを検証する。
type RedirectValidator interface {
	ValidateRedirect(rawURL string) error
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

// Deps はFlowの依存関係。
type Deps struct {
	API            API
	Cart           CartView
	Tokens         TokenSource
	BuyNow         BuyNowStore
	Redirects      RedirectValidator
	Notifier       Notifier
	Logger         *slog.Logger
	Metrics        MutationRecorder          // nilでもよい
	OnUnauthorized func(ctx context.Context) // nilでもよい
}

// Config はチェックアウトの設定。
type Config struct {
	ShippingFee decimal.Decimal
	// ReturnURL はカード決済完了後に戻るURL。
	ReturnURL string
}

// Summary はチェックアウト画面の表示内容。
type Summary struct {
	Mode          string                `json:"mode"`
	Addresses     []model.Address       `json:"addresses"`
	BuyNowProduct *model.ProductSummary `json:"buyNowProduct,omitempty"`
	Cart          *model.CartSnapshot   `json:"cart,omitempty"`
	Subtotal      decimal.Decimal       `json:"subtotal"`
	ShippingFee   decimal.Decimal       `json:"shippingFee"`
	Total         decimal.Decimal       `json:"total"`
}

// OrderResult は注文の結果。代引きではOrder、カード決済ではRedirectURLが設定される。
type OrderResult struct {
	Order       *model.Order `json:"order,omitempty"`
	RedirectURL string       `json:"redirectUrl,omitempty"`
}

// Flow はブラウザセッションのチェックアウト。
// 今すぐ購入の商品参照はセッションストアに永続化し、メモリ上にも保持する。
type Flow struct {
	deps      Deps
	cfg       Config
	sessionID string

	mu              sync.Mutex
	buyNowProductID string
}

// NewFlow はFlowを生成する。buyNowProductIDはセッションストアから復元した値。
func NewFlow(deps Deps, cfg Config, sessionID, buyNowProductID string) *Flow {
	return &Flow{
		deps:            deps,
		cfg:             cfg,
		sessionID:       sessionID,
		buyNowProductID: buyNowProductID,
	}
}

// BuyNowProductID は今すぐ購入の商品IDを返す。未設定の場合は空文字。
func (f *Flow) BuyNowProductID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buyNowProductID
}

// SetBuyNow は今すぐ購入の商品を設定する。以後の注文は単品購入になる。
func (f *Flow) SetBuyNow(ctx context.Context, productID string) error {
	if productID == "" {
		return model.NewValidationError("productId is required")
	}
	return f.storeBuyNow(ctx, productID)
}

// ClearBuyNow は今すぐ購入の商品参照を解除する。以後の注文はカート購入になる。
func (f *Flow) ClearBuyNow(ctx context.Context) error {
	return f.storeBuyNow(ctx, "")
}

func (f *Flow) storeBuyNow(ctx context.Context, productID string) error {
	if err := f.deps.BuyNow.UpdateBuyNow(ctx, f.sessionID, productID); err != nil {
		f.deps.Logger.Error("今すぐ購入の商品参照の保存に失敗しました",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		return err
	}
	f.mu.Lock()
	f.buyNowProductID = productID
	f.mu.Unlock()
	return nil
}

// Summary はチェックアウト画面の内容を組み立てる。
// 合計は小計に送料を加えた額。購入対象がない場合は送料を加えない。
func (f *Flow) Summary(ctx context.Context) (*Summary, error) {
	token := f.deps.Tokens.Token()
	if token == "" {
		return nil, model.NewAuthRequiredError()
	}

	sum := &Summary{
		Addresses: []model.Address{},
		Subtotal:  decimal.Zero,
	}
	if addrs, err := f.deps.API.Addresses(ctx, token); err != nil {
		f.deps.Logger.Warn("配送先一覧の取得に失敗しました", slog.String("error", err.Error()))
		f.deps.Notifier.Error(msgAddressesFailed)
		f.unauthorized(ctx, err)
	} else {
		sum.Addresses = addrs
	}

	if productID := f.BuyNowProductID(); productID != "" {
		p, err := f.buyNowProduct(ctx, productID)
		if err != nil {
			return nil, err
		}
		summary := p.Summary()
		sum.Mode = ModeBuyNow
		sum.BuyNowProduct = &summary
		sum.Subtotal = summary.EffectivePrice()
	} else {
		snap, err := f.cartSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		sum.Mode = ModeCart
		sum.Cart = snap
		if snap != nil {
			sum.Subtotal = snap.TotalPrice
		}
	}

	sum.ShippingFee = decimal.Zero
	if sum.BuyNowProduct != nil || !sum.Cart.IsEmpty() {
		sum.ShippingFee = f.cfg.ShippingFee
	}
	sum.Total = sum.Subtotal.Add(sum.ShippingFee)
	return sum, nil
}

// Addresses は登録済みの配送先一覧を返す。
func (f *Flow) Addresses(ctx context.Context) ([]model.Address, error) {
	token := f.deps.Tokens.Token()
	if token == "" {
		return nil, model.NewAuthRequiredError()
	}
	addrs, err := f.deps.API.Addresses(ctx, token)
	if err != nil {
		f.deps.Logger.Error("配送先一覧の取得に失敗しました", slog.String("error", err.Error()))
		f.deps.Notifier.Error(msgAddressesFailed)
		return nil, f.upstream(ctx, err, msgAddressesFailed)
	}
	return addrs, nil
}

// AddAddress は配送先を登録し、登録後の一覧を返す。
func (f *Flow) AddAddress(ctx context.Context, in AddressInput) ([]model.Address, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	token, err := f.requireToken("address.add")
	if err != nil {
		return nil, err
	}

	addrs, err := f.deps.API.AddAddress(ctx, token, in.request())
	if err != nil {
		f.deps.Logger.Error("配送先の登録に失敗しました", slog.String("error", err.Error()))
		msg := storeapi.ServerMessage(err, msgAddressAddFailed)
		f.deps.Notifier.Error(msg)
		f.record("address.add", "failure")
		return nil, f.upstream(ctx, err, msg)
	}
	f.deps.Notifier.Success(msgAddressAdded)
	f.record("address.add", "success")
	return addrs, nil
}

// RemoveAddress は配送先を削除し、削除後の一覧を返す。
func (f *Flow) RemoveAddress(ctx context.Context, addressID string) ([]model.Address, error) {
	if addressID == "" {
		return nil, model.NewValidationError("address id is required")
	}
	token, err := f.requireToken("address.remove")
	if err != nil {
		return nil, err
	}

	addrs, err := f.deps.API.RemoveAddress(ctx, token, addressID)
	if err != nil {
		f.deps.Logger.Error("配送先の削除に失敗しました",
			slog.String("address_id", addressID),
			slog.String("error", err.Error()),
		)
		f.deps.Notifier.Error(msgAddressRemoveFail)
		f.record("address.remove", "failure")
		if errors.Is(err, storeapi.ErrNotFound) {
			return nil, model.NewAddressNotFoundError()
		}
		return nil, f.upstream(ctx, err, msgAddressRemoveFail)
	}
	f.deps.Notifier.Success(msgAddressRemoved)
	f.record("address.remove", "success")
	return addrs, nil
}

// PlaceOrder は注文を作成する。
// 今すぐ購入の商品が設定されていれば単品注文、なければカート注文になる。
// 代引きは注文を作成し、カード決済は外部決済セッションのURLを返す。
func (f *Flow) PlaceOrder(ctx context.Context, in OrderInput) (*OrderResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	op := "order." + string(in.PaymentMethod)
	token, err := f.requireToken(op)
	if err != nil {
		return nil, err
	}

	shipping, err := f.resolveShipping(ctx, token, in)
	if err != nil {
		return nil, err
	}

	req := storeapi.OrderRequest{Shipping: shipping}
	buyNowID := f.BuyNowProductID()
	if buyNowID != "" {
		if _, err := f.buyNowProduct(ctx, buyNowID); err != nil {
			return nil, err
		}
		req.ProductID = buyNowID
	} else {
		snap, err := f.cartSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		switch {
		case snap.IsEmpty():
			f.deps.Notifier.Error(msgCartEmpty)
			f.record(op, "failure")
			return nil, model.NewCartEmptyError()
		case snap.ID == "":
			f.deps.Notifier.Error(msgCartNotLoaded)
			f.record(op, "failure")
			return nil, model.NewCartNotLoadedError()
		}
		req.CartID = snap.ID
	}

	if in.PaymentMethod == model.PaymentCard {
		return f.placeCardOrder(ctx, token, op, req)
	}
	return f.placeCashOrder(ctx, token, op, req)
}

func (f *Flow) placeCashOrder(ctx context.Context, token, op string, req storeapi.OrderRequest) (*OrderResult, error) {
	order, err := f.deps.API.CreateCashOrder(ctx, token, req)
	if err != nil {
		return nil, f.orderFailed(ctx, op, err)
	}

	f.deps.Notifier.Success(msgOrderPlaced)
	f.record(op, "success")
	f.deps.Logger.Info("注文を作成しました",
		slog.String("order_id", order.ID),
		slog.String("payment_method", order.PaymentMethod),
	)

	if req.ProductID != "" {
		if err := f.ClearBuyNow(ctx); err != nil {
			f.deps.Logger.Warn("注文後の今すぐ購入の解除に失敗しました", slog.String("error", err.Error()))
		}
	} else if err := f.deps.Cart.Load(ctx); err != nil {
		// サーバー側でカートは空になっている
		f.deps.Logger.Warn("注文後のカート再取得に失敗しました", slog.String("error", err.Error()))
	}
	return &OrderResult{Order: order}, nil
}

func (f *Flow) placeCardOrder(ctx context.Context, token, op string, req storeapi.OrderRequest) (*OrderResult, error) {
	sess, err := f.deps.API.CreateCheckoutSession(ctx, token, req, f.cfg.ReturnURL)
	if err != nil {
		return nil, f.orderFailed(ctx, op, err)
	}
	if err := f.deps.Redirects.ValidateRedirect(sess.URL); err != nil {
		f.deps.Logger.Error("決済セッションURLが不正です", slog.String("error", err.Error()))
		f.deps.Notifier.Error(msgOrderFailed)
		f.record(op, "failure")
		return nil, model.NewInvalidRedirectError()
	}
	f.record(op, "success")
	return &OrderResult{RedirectURL: sess.URL}, nil
}

func (f *Flow) orderFailed(ctx context.Context, op string, err error) error {
	f.deps.Logger.Error("注文の作成に失敗しました",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	f.deps.Notifier.Error(msgOrderFailed)
	f.record(op, "failure")
	if errors.Is(err, storeapi.ErrUnauthorized) {
		f.unauthorized(ctx, err)
		return model.NewAuthRequiredError()
	}
	return model.NewOrderFailedError()
}

// resolveShipping は登録済み配送先またはフォーム入力から配送情報を決定する。
func (f *Flow) resolveShipping(ctx context.Context, token string, in OrderInput) (model.ShippingAddress, error) {
	if in.AddressID == "" {
		return *in.Shipping, nil
	}
	addrs, err := f.deps.API.Addresses(ctx, token)
	if err != nil {
		f.deps.Logger.Error("配送先一覧の取得に失敗しました", slog.String("error", err.Error()))
		f.deps.Notifier.Error(msgAddressesFailed)
		return model.ShippingAddress{}, f.upstream(ctx, err, msgAddressesFailed)
	}
	for _, a := range addrs {
		if a.ID == in.AddressID {
			return a.ToShipping(), nil
		}
	}
	return model.ShippingAddress{}, model.NewAddressNotFoundError()
}

func (f *Flow) buyNowProduct(ctx context.Context, productID string) (*model.Product, error) {
	p, err := f.deps.API.Product(ctx, productID)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, storeapi.ErrNotFound) {
		f.deps.Notifier.Error(msgBuyNowUnavailable)
		if clearErr := f.ClearBuyNow(ctx); clearErr != nil {
			f.deps.Logger.Warn("今すぐ購入の解除に失敗しました", slog.String("error", clearErr.Error()))
		}
		return nil, model.NewProductNotFoundError(productID)
	}
	f.deps.Logger.Error("今すぐ購入の商品取得に失敗しました",
		slog.String("product_id", productID),
		slog.String("error", err.Error()),
	)
	return nil, model.NewUpstreamError("checkout", "Failed to load product")
}

func (f *Flow) cartSnapshot(ctx context.Context) (*model.CartSnapshot, error) {
	if !f.deps.Cart.Loaded() {
		if err := f.deps.Cart.Load(ctx); err != nil {
			return nil, err
		}
	}
	return f.deps.Cart.Snapshot(), nil
}

func (f *Flow) requireToken(op string) (string, error) {
	token := f.deps.Tokens.Token()
	if token == "" {
		f.deps.Notifier.Error(msgLoginRequired)
		f.record(op, "unauthenticated")
		return "", model.NewAuthRequiredError()
	}
	return token, nil
}

// upstream は外部APIのエラーをAPIErrorに変換する。401は再検証フックを呼び出す。
func (f *Flow) upstream(ctx context.Context, err error, message string) error {
	if errors.Is(err, storeapi.ErrUnauthorized) {
		f.unauthorized(ctx, err)
		return model.NewAuthRequiredError()
	}
	return model.NewUpstreamError("checkout", message)
}

func (f *Flow) unauthorized(ctx context.Context, err error) {
	if f.deps.OnUnauthorized != nil && errors.Is(err, storeapi.ErrUnauthorized) {
		f.deps.OnUnauthorized(ctx)
	}
}

func (f *Flow) record(op, outcome string) {
	if f.deps.Metrics != nil {
		f.deps.Metrics.RecordMutation("checkout", op, outcome)
	}
}
