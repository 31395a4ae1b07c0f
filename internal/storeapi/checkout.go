package storeapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hitoshi/superkart/internal/model"
)

// AddressRequest は配送先登録のリクエストボディ。
type AddressRequest struct {
	Name    string `json:"name"`
	Details string `json:"details"`
	Phone   string `json:"phone"`
	City    string `json:"city"`
}

// OrderRequest は注文作成の入力。
// CartIDが空の場合はProductIDの単品購入（今すぐ購入）として注文する。
type OrderRequest struct {
	CartID    string
	ProductID string
	Shipping  model.ShippingAddress
}

type orderBody struct {
	ShippingAddress model.ShippingAddress `json:"shippingAddress"`
	ProductID       string                `json:"productId,omitempty"`
}

// Addresses は登録済みの配送先一覧を取得する。
func (c *Client) Addresses(ctx context.Context, token string) ([]model.Address, error) {
	var resp addressesResponse
	if err := c.do(ctx, request{op: "addresses.list", method: http.MethodGet, path: "addresses", token: token}, &resp); err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

// AddAddress は配送先を登録し、登録後の一覧を返す。
func (c *Client) AddAddress(ctx context.Context, token string, req AddressRequest) ([]model.Address, error) {
	var resp addressesResponse
	if err := c.do(ctx, request{op: "addresses.add", method: http.MethodPost, path: "addresses", token: token, body: req}, &resp); err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

// RemoveAddress は配送先を削除し、削除後の一覧を返す。
func (c *Client) RemoveAddress(ctx context.Context, token, addressID string) ([]model.Address, error) {
	var resp addressesResponse
	if err := c.do(ctx, request{op: "addresses.remove", method: http.MethodDelete, path: "addresses/" + pathID(addressID), token: token}, &resp); err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

// CreateCashOrder は代金引換の注文を作成する。
func (c *Client) CreateCashOrder(ctx context.Context, token string, req OrderRequest) (*model.Order, error) {
	path, body := orderTarget("orders", req)
	var resp orderResponse
	if err := c.do(ctx, request{op: "orders.cash", method: http.MethodPost, path: path, token: token, body: body}, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return nil, fmt.Errorf("orders.cash: %w: response without order", ErrInvalidResponse)
	}
	return &model.Order{
		ID:            resp.Data.ID,
		TotalPrice:    resp.Data.TotalOrderPrice,
		PaymentMethod: resp.Data.PaymentMethodType,
		IsPaid:        resp.Data.IsPaid,
		IsDelivered:   resp.Data.IsDelivered,
	}, nil
}

// CreateCheckoutSession はカード決済用の外部決済セッションを作成する。
// returnURLは決済完了後に戻るストアフロントのURL。
func (c *Client) CreateCheckoutSession(ctx context.Context, token string, req OrderRequest, returnURL string) (*model.CheckoutSession, error) {
	path, body := orderTarget("orders/checkout-session", req)
	query := url.Values{}
	query.Set("url", returnURL)

	var resp checkoutSessionResponse
	if err := c.do(ctx, request{op: "orders.checkout", method: http.MethodPost, path: path, token: token, query: query, body: body}, &resp); err != nil {
		return nil, err
	}

	sessionURL := resp.URL
	if resp.Session != nil && resp.Session.URL != "" {
		sessionURL = resp.Session.URL
	}
	if sessionURL == "" {
		return nil, fmt.Errorf("orders.checkout: %w: response without session url", ErrInvalidResponse)
	}
	return &model.CheckoutSession{URL: sessionURL}, nil
}

// orderTarget はカート注文と単品注文でエンドポイントとボディを切り替える。
func orderTarget(base string, req OrderRequest) (string, orderBody) {
	body := orderBody{ShippingAddress: req.Shipping}
	if req.CartID != "" {
		return base + "/" + pathID(req.CartID), body
	}
	body.ProductID = req.ProductID
	return base, body
}
