package storeapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/superkart/internal/model"
)

// WishlistMutation はウィッシュリスト変更系エンドポイントのレスポンス。
// 変更後のウィッシュリストは商品IDの一覧として返る。
type WishlistMutation struct {
	Message    string
	ProductIDs []string
}

// GetWishlist は現在のウィッシュリストを取得する。
func (c *Client) GetWishlist(ctx context.Context, token string) (*model.WishlistSnapshot, error) {
	var resp wishlistResponse
	if err := c.do(ctx, request{op: "wishlist.get", method: http.MethodGet, path: "wishlist", token: token}, &resp); err != nil {
		return nil, err
	}
	snap := model.EmptyWishlist()
	for _, w := range resp.Data {
		if w.ID == "" {
			return nil, fmt.Errorf("wishlist.get: %w: product without _id", ErrInvalidResponse)
		}
		snap.Products = append(snap.Products, w.summary())
	}
	return snap, nil
}

// AddToWishlist は商品をウィッシュリストに追加する。
func (c *Client) AddToWishlist(ctx context.Context, token, productID string) (*WishlistMutation, error) {
	body := map[string]string{"productId": productID}
	var resp wishlistMutationResponse
	if err := c.do(ctx, request{op: "wishlist.add", method: http.MethodPost, path: "wishlist", token: token, body: body}, &resp); err != nil {
		return nil, err
	}
	return &WishlistMutation{Message: resp.Message, ProductIDs: resp.Data}, nil
}

// RemoveFromWishlist は商品をウィッシュリストから削除する。
func (c *Client) RemoveFromWishlist(ctx context.Context, token, productID string) (*WishlistMutation, error) {
	var resp wishlistMutationResponse
	if err := c.do(ctx, request{op: "wishlist.remove", method: http.MethodDelete, path: "wishlist/" + pathID(productID), token: token}, &resp); err != nil {
		return nil, err
	}
	return &WishlistMutation{Message: resp.Message, ProductIDs: resp.Data}, nil
}
