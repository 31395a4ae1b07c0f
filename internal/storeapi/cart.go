package storeapi

import (
	"context"
	"net/http"

	"github.com/hitoshi/superkart/internal/model"
)

// CartMutation はカート変更系エンドポイントのレスポンス。
type CartMutation struct {
	Message string
	Cart    *model.CartSnapshot
}

// GetCart は現在のカートを取得する。
func (c *Client) GetCart(ctx context.Context, token string) (*model.CartSnapshot, error) {
	var resp cartResponse
	if err := c.do(ctx, request{op: "cart.get", method: http.MethodGet, path: "cart", token: token}, &resp); err != nil {
		return nil, err
	}
	return resp.toSnapshot()
}

// AddToCart は商品を1点カートに追加する。
// このエンドポイントのレスポンスは商品がIDのみで返るため、表示には再取得が必要になる。
func (c *Client) AddToCart(ctx context.Context, token, productID string) (*CartMutation, error) {
	body := map[string]string{"productId": productID}
	var resp cartResponse
	if err := c.do(ctx, request{op: "cart.add", method: http.MethodPost, path: "cart", token: token, body: body}, &resp); err != nil {
		return nil, err
	}
	return resp.toMutation()
}

// UpdateCartItem はカート内の商品数量を更新する。
func (c *Client) UpdateCartItem(ctx context.Context, token, productID string, count int) (*CartMutation, error) {
	body := map[string]int{"count": count}
	var resp cartResponse
	if err := c.do(ctx, request{op: "cart.update", method: http.MethodPut, path: "cart/" + pathID(productID), token: token, body: body}, &resp); err != nil {
		return nil, err
	}
	return resp.toMutation()
}

// RemoveCartItem はカートから商品を削除する。
func (c *Client) RemoveCartItem(ctx context.Context, token, productID string) (*CartMutation, error) {
	var resp cartResponse
	if err := c.do(ctx, request{op: "cart.remove", method: http.MethodDelete, path: "cart/" + pathID(productID), token: token}, &resp); err != nil {
		return nil, err
	}
	return resp.toMutation()
}

// ClearCart はカートを空にする。
func (c *Client) ClearCart(ctx context.Context, token string) error {
	return c.do(ctx, request{op: "cart.clear", method: http.MethodDelete, path: "cart", token: token}, nil)
}

func (r cartResponse) toMutation() (*CartMutation, error) {
	snap, err := r.toSnapshot()
	if err != nil {
		return nil, err
	}
	return &CartMutation{Message: r.Message, Cart: snap}, nil
}
