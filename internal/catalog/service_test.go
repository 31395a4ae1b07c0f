package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hitoshi/superkart/internal/model"
	"github.com/hitoshi/superkart/internal/storeapi"
	"github.com/shopspring/decimal"
)

// --- モック定義 ---

type mockAPI struct {
	categoriesFn    func(ctx context.Context) ([]model.Category, error)
	categoryFn      func(ctx context.Context, id string) (*model.Category, error)
	subcategoriesFn func(ctx context.Context, categoryID string) ([]model.Subcategory, error)
	productsFn      func(ctx context.Context, q model.ProductQuery) ([]model.Product, error)
	productFn       func(ctx context.Context, id string) (*model.Product, error)
	brandsFn        func(ctx context.Context) ([]model.Brand, error)
	brandFn         func(ctx context.Context, id string) (*model.Brand, error)
	productsCalls   atomic.Int32
}

func (m *mockAPI) Categories(ctx context.Context) ([]model.Category, error) {
	if m.categoriesFn != nil {
		return m.categoriesFn(ctx)
	}
	return []model.Category{}, nil
}

func (m *mockAPI) Category(ctx context.Context, id string) (*model.Category, error) {
	if m.categoryFn != nil {
		return m.categoryFn(ctx, id)
	}
	return nil, errors.New("unexpected Category")
}

func (m *mockAPI) Subcategories(ctx context.Context, categoryID string) ([]model.Subcategory, error) {
	if m.subcategoriesFn != nil {
		return m.subcategoriesFn(ctx, categoryID)
	}
	return []model.Subcategory{}, nil
}

func (m *mockAPI) Products(ctx context.Context, q model.ProductQuery) ([]model.Product, error) {
	m.productsCalls.Add(1)
	if m.productsFn != nil {
		return m.productsFn(ctx, q)
	}
	return []model.Product{}, nil
}

func (m *mockAPI) Product(ctx context.Context, id string) (*model.Product, error) {
	if m.productFn != nil {
		return m.productFn(ctx, id)
	}
	return nil, errors.New("unexpected Product")
}

func (m *mockAPI) Brands(ctx context.Context) ([]model.Brand, error) {
	if m.brandsFn != nil {
		return m.brandsFn(ctx)
	}
	return []model.Brand{}, nil
}

func (m *mockAPI) Brand(ctx context.Context, id string) (*model.Brand, error) {
	if m.brandFn != nil {
		return m.brandFn(ctx, id)
	}
	return nil, errors.New("unexpected Brand")
}

// upperSanitizer はサニタイズが適用されたことを確認するための代替。
type upperSanitizer struct{}

func (upperSanitizer) Sanitize(raw string) string { return "sanitized:" + raw }

func newTestService(api API) *Service {
	var buf bytes.Buffer
	return NewService(api, upperSanitizer{}, slog.New(slog.NewJSONHandler(&buf, nil)))
}

func makeProducts(n int) []model.Product {
	out := make([]model.Product, n)
	for i := range out {
		out[i] = model.Product{ProductSummary: model.ProductSummary{
			ID:    fmt.Sprintf("P%02d", i),
			Title: fmt.Sprintf("Product %02d", i),
			Price: decimal.NewFromInt(int64(100 + i)),
		}}
	}
	return out
}

func ids(items []model.ProductSummary) []string {
	out := make([]string, len(items))
	for i, p := range items {
		out[i] = p.ID
	}
	return out
}

func notFound() error {
	return &storeapi.Error{Op: "test", StatusCode: 404}
}

// --- Home ---

func TestService_Home_Sections(t *testing.T) {
	api := &mockAPI{
		categoriesFn: func(context.Context) ([]model.Category, error) {
			return []model.Category{{ID: "c1", Name: "Men's Fashion"}}, nil
		},
		productsFn: func(context.Context, model.ProductQuery) ([]model.Product, error) {
			return makeProducts(40), nil
		},
	}
	s := newTestService(api)
	// 逆順の並びを無作為の代わりに使う
	s.perm = func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = n - 1 - i
		}
		return out
	}

	home, err := s.Home(context.Background())
	if err != nil {
		t.Fatalf("Home() error = %v", err)
	}

	if len(home.Categories) != 1 {
		t.Errorf("Categories = %d, want 1", len(home.Categories))
	}
	if got := ids(home.BestSellers); len(got) != 15 || got[0] != "P00" || got[14] != "P14" {
		t.Errorf("BestSellers = %v, want P00..P14", got)
	}
	if got := ids(home.NewArrivals); len(got) != 15 || got[0] != "P25" || got[14] != "P39" {
		t.Errorf("NewArrivals = %v, want P25..P39", got)
	}
	if got := ids(home.FlashSale); len(got) != 15 || got[0] != "P39" || got[14] != "P25" {
		t.Errorf("FlashSale = %v, want P39..P25", got)
	}
}

func TestService_Home_FewerProductsThanSection(t *testing.T) {
	api := &mockAPI{
		productsFn: func(context.Context, model.ProductQuery) ([]model.Product, error) {
			return makeProducts(3), nil
		},
	}
	s := newTestService(api)

	home, err := s.Home(context.Background())
	if err != nil {
		t.Fatalf("Home() error = %v", err)
	}
	if len(home.BestSellers) != 3 || len(home.NewArrivals) != 3 || len(home.FlashSale) != 3 {
		t.Errorf("sections = %d/%d/%d, want 3/3/3", len(home.BestSellers), len(home.NewArrivals), len(home.FlashSale))
	}
}

func TestService_Home_CategoryFailureIsEmptySection(t *testing.T) {
	api := &mockAPI{
		categoriesFn: func(context.Context) ([]model.Category, error) {
			return nil, storeapi.ErrTransport
		},
		productsFn: func(context.Context, model.ProductQuery) ([]model.Product, error) {
			return makeProducts(2), nil
		},
	}
	home, err := newTestService(api).Home(context.Background())
	if err != nil {
		t.Fatalf("Home() error = %v", err)
	}
	if home.Categories == nil || len(home.Categories) != 0 {
		t.Errorf("Categories = %v, want empty", home.Categories)
	}
}

func TestService_Home_ProductFailure(t *testing.T) {
	api := &mockAPI{
		productsFn: func(context.Context, model.ProductQuery) ([]model.Product, error) {
			return nil, storeapi.ErrTransport
		},
	}
	_, err := newTestService(api).Home(context.Background())
	if !errors.Is(err, model.NewUpstreamError("catalog", "")) {
		t.Fatalf("error = %v, want UPSTREAM_FAILED", err)
	}
}

// --- CategoryPage ---

func TestService_CategoryPage(t *testing.T) {
	api := &mockAPI{
		categoryFn: func(_ context.Context, id string) (*model.Category, error) {
			return &model.Category{ID: id, Name: "Electronics"}, nil
		},
		subcategoriesFn: func(context.Context, string) ([]model.Subcategory, error) {
			return []model.Subcategory{{ID: "s1", Name: "Laptops"}}, nil
		},
		productsFn: func(_ context.Context, q model.ProductQuery) ([]model.Product, error) {
			if q.CategoryID != "c1" || q.Limit != CategoryProductLimit {
				t.Errorf("query = %+v, want category c1 limit 100", q)
			}
			return makeProducts(2), nil
		},
	}

	page, err := newTestService(api).CategoryPage(context.Background(), "c1")
	if err != nil {
		t.Fatalf("CategoryPage() error = %v", err)
	}
	if page.Category.Name != "Electronics" {
		t.Errorf("Category = %+v", page.Category)
	}
	if len(page.Subcategories) != 1 || len(page.Products) != 2 {
		t.Errorf("subcategories=%d products=%d, want 1/2", len(page.Subcategories), len(page.Products))
	}
}

func TestService_CategoryPage_PartialFailuresAreEmpty(t *testing.T) {
	api := &mockAPI{
		categoryFn: func(_ context.Context, id string) (*model.Category, error) {
			return &model.Category{ID: id}, nil
		},
		subcategoriesFn: func(context.Context, string) ([]model.Subcategory, error) {
			return nil, storeapi.ErrTransport
		},
		productsFn: func(context.Context, model.ProductQuery) ([]model.Product, error) {
			return nil, storeapi.ErrTransport
		},
	}

	page, err := newTestService(api).CategoryPage(context.Background(), "c1")
	if err != nil {
		t.Fatalf("CategoryPage() error = %v", err)
	}
	if page.Subcategories == nil || page.Products == nil {
		t.Error("取得失敗時は空の一覧（nilではない）になるべき")
	}
}

func TestService_CategoryPage_NotFound(t *testing.T) {
	api := &mockAPI{
		categoryFn: func(context.Context, string) (*model.Category, error) { return nil, notFound() },
	}
	_, err := newTestService(api).CategoryPage(context.Background(), "missing")
	if !errors.Is(err, model.NewCategoryNotFoundError("")) {
		t.Fatalf("error = %v, want CATEGORY_NOT_FOUND", err)
	}
}

// --- Product ---

func TestService_Product_DetailWithBrandAndRelated(t *testing.T) {
	product := &model.Product{
		ProductSummary: model.ProductSummary{ID: "P01", Title: "Phone", CategoryID: "c1", BrandID: "b1", ImageCover: "https://cdn.example.com/cover.jpg"},
		Description:    "<p>Fast</p>",
		Brand:          &model.Brand{ID: "b1"},
	}
	api := &mockAPI{
		productFn: func(context.Context, string) (*model.Product, error) { return product, nil },
		brandFn: func(_ context.Context, id string) (*model.Brand, error) {
			return &model.Brand{ID: id, Name: "Samsung"}, nil
		},
		productsFn: func(_ context.Context, q model.ProductQuery) ([]model.Product, error) {
			if q.CategoryID != "c1" {
				t.Errorf("related query category = %q, want c1", q.CategoryID)
			}
			return makeProducts(3), nil
		},
	}

	detail, err := newTestService(api).Product(context.Background(), "P01")
	if err != nil {
		t.Fatalf("Product() error = %v", err)
	}
	if detail.Product.Description != "sanitized:<p>Fast</p>" {
		t.Errorf("Description = %q, want sanitized", detail.Product.Description)
	}
	if diff := cmp.Diff([]string{"https://cdn.example.com/cover.jpg"}, detail.Product.Images); diff != "" {
		t.Errorf("画像がない場合はカバー画像を使うべき (-want +got):\n%s", diff)
	}
	if detail.Brand == nil || detail.Brand.Name != "Samsung" {
		t.Errorf("Brand = %+v, want Samsung", detail.Brand)
	}
	if diff := cmp.Diff([]string{"P00", "P02"}, ids(detail.Related)); diff != "" {
		t.Errorf("関連商品から自身を除外するべき (-want +got):\n%s", diff)
	}
	if product.Description != "<p>Fast</p>" {
		t.Error("APIの返り値を変更してはならない")
	}
}

func TestService_Product_BrandFailureKeepsEmbeddedBrand(t *testing.T) {
	api := &mockAPI{
		productFn: func(context.Context, string) (*model.Product, error) {
			return &model.Product{
				ProductSummary: model.ProductSummary{ID: "P01", BrandID: "b1"},
				Brand:          &model.Brand{ID: "b1", Name: "Embedded"},
			}, nil
		},
		brandFn: func(context.Context, string) (*model.Brand, error) { return nil, storeapi.ErrTransport },
	}

	detail, err := newTestService(api).Product(context.Background(), "P01")
	if err != nil {
		t.Fatalf("Product() error = %v", err)
	}
	if detail.Brand == nil || detail.Brand.Name != "Embedded" {
		t.Errorf("Brand = %+v, want embedded brand", detail.Brand)
	}
	if detail.Related == nil {
		t.Error("Related should be an empty list")
	}
}

func TestService_Product_NotFound(t *testing.T) {
	api := &mockAPI{
		productFn: func(context.Context, string) (*model.Product, error) { return nil, notFound() },
	}
	_, err := newTestService(api).Product(context.Background(), "missing")
	if !errors.Is(err, model.NewProductNotFoundError("")) {
		t.Fatalf("error = %v, want PRODUCT_NOT_FOUND", err)
	}
}

// --- Brands / Search ---

func TestService_Brand_NotFound(t *testing.T) {
	api := &mockAPI{
		brandFn: func(context.Context, string) (*model.Brand, error) { return nil, notFound() },
	}
	_, err := newTestService(api).Brand(context.Background(), "missing")
	if !errors.Is(err, model.NewBrandNotFoundError("")) {
		t.Fatalf("error = %v, want BRAND_NOT_FOUND", err)
	}
}

func TestService_Brands_UpstreamFailure(t *testing.T) {
	api := &mockAPI{
		brandsFn: func(context.Context) ([]model.Brand, error) { return nil, storeapi.ErrTransport },
	}
	_, err := newTestService(api).Brands(context.Background())
	if !errors.Is(err, model.NewUpstreamError("catalog", "")) {
		t.Fatalf("error = %v, want UPSTREAM_FAILED", err)
	}
}

func TestService_Search(t *testing.T) {
	products := []model.Product{
		{ProductSummary: model.ProductSummary{ID: "1", Title: "Woman Shawl"}},
		{ProductSummary: model.ProductSummary{ID: "2", Title: "Men's Watch"}},
		{ProductSummary: model.ProductSummary{ID: "3", Title: "SHAWL premium"}},
	}
	var gotQuery model.ProductQuery
	api := &mockAPI{
		productsFn: func(_ context.Context, q model.ProductQuery) ([]model.Product, error) {
			gotQuery = q
			return products, nil
		},
	}
	s := newTestService(api)

	tests := []struct {
		term string
		want []string
	}{
		{term: "shawl", want: []string{"1", "3"}},
		{term: "  WATCH ", want: []string{"2"}},
		{term: "", want: []string{"1", "2", "3"}},
		{term: "laptop", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.term), func(t *testing.T) {
			got, err := s.Search(context.Background(), model.ProductQuery{BrandID: "b1"}, tt.term)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("Search(%q) mismatch (-want +got):\n%s", tt.term, diff)
			}
			if gotQuery.BrandID != "b1" {
				t.Errorf("BrandID = %q, want b1", gotQuery.BrandID)
			}
		})
	}
}
