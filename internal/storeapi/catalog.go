package storeapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/superkart/internal/model"
)

// Categories はカテゴリ一覧を取得する。
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	var resp listEnvelope[wireCategory]
	if err := c.do(ctx, request{op: "categories.list", method: http.MethodGet, path: "categories"}, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Category, 0, len(resp.Data))
	for _, w := range resp.Data {
		out = append(out, w.toModel())
	}
	return out, nil
}

// Category はカテゴリ詳細を取得する。
func (c *Client) Category(ctx context.Context, id string) (*model.Category, error) {
	var resp itemEnvelope[wireCategory]
	if err := c.do(ctx, request{op: "categories.get", method: http.MethodGet, path: "categories/" + pathID(id)}, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return nil, fmt.Errorf("categories.get: %w: response without data", ErrInvalidResponse)
	}
	cat := resp.Data.toModel()
	return &cat, nil
}

// Subcategories はカテゴリ配下のサブカテゴリ一覧を取得する。
func (c *Client) Subcategories(ctx context.Context, categoryID string) ([]model.Subcategory, error) {
	var resp listEnvelope[wireSubcategory]
	path := "categories/" + pathID(categoryID) + "/subcategories"
	if err := c.do(ctx, request{op: "categories.subcategories", method: http.MethodGet, path: path}, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Subcategory, 0, len(resp.Data))
	for _, w := range resp.Data {
		out = append(out, w.toModel())
	}
	return out, nil
}

// Products は商品一覧を取得する。
func (c *Client) Products(ctx context.Context, q model.ProductQuery) ([]model.Product, error) {
	query := url.Values{}
	if q.CategoryID != "" {
		query.Set("category", q.CategoryID)
	}
	if q.BrandID != "" {
		query.Set("brand", q.BrandID)
	}
	if q.Sort != "" {
		query.Set("sort", q.Sort)
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
	}

	var resp listEnvelope[wireProduct]
	if err := c.do(ctx, request{op: "products.list", method: http.MethodGet, path: "products", query: query}, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Product, 0, len(resp.Data))
	for _, w := range resp.Data {
		p, err := w.toModel()
		if err != nil {
			return nil, fmt.Errorf("products.list: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Product は商品詳細を取得する。
func (c *Client) Product(ctx context.Context, id string) (*model.Product, error) {
	var resp itemEnvelope[wireProduct]
	if err := c.do(ctx, request{op: "products.get", method: http.MethodGet, path: "products/" + pathID(id)}, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("products.get: %w: response without data", ErrInvalidResponse)
	}
	p, err := resp.Data.toModel()
	if err != nil {
		return nil, fmt.Errorf("products.get: %w", err)
	}
	return &p, nil
}

// Brands はブランド一覧を取得する。
func (c *Client) Brands(ctx context.Context) ([]model.Brand, error) {
	var resp listEnvelope[wireBrand]
	if err := c.do(ctx, request{op: "brands.list", method: http.MethodGet, path: "brands"}, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Brand, 0, len(resp.Data))
	for _, w := range resp.Data {
		out = append(out, w.toModel())
	}
	return out, nil
}

// Brand はブランド詳細を取得する。
func (c *Client) Brand(ctx context.Context, id string) (*model.Brand, error) {
	var resp itemEnvelope[wireBrand]
	if err := c.do(ctx, request{op: "brands.get", method: http.MethodGet, path: "brands/" + pathID(id)}, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return nil, fmt.Errorf("brands.get: %w: response without data", ErrInvalidResponse)
	}
	b := resp.Data.toModel()
	return &b, nil
}
