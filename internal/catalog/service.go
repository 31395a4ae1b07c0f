// Package catalog はカテゴリ・ブランド・商品の読み取り専用ビューを組み立てる。
// 外部APIの一覧結果を加工するだけで、状態は保持しない。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/hitoshi/superkart/internal/model"
	"github.com/hitoshi/superkart/internal/storeapi"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	// SectionSize はホーム画面の各セクションの商品数。
	SectionSize = 15
	// CategoryProductLimit はカテゴリページで取得する商品数の上限。
	CategoryProductLimit = 100
	// searchLimit は検索時に取得する商品数の上限。
	searchLimit = 200
)

// API はカタログが使用する外部APIの操作。
type API interface {
	Categories(ctx context.Context) ([]model.Category, error)
	Category(ctx context.Context, id string) (*model.Category, error)
	Subcategories(ctx context.Context, categoryID string) ([]model.Subcategory, error)
	Products(ctx context.Context, q model.ProductQuery) ([]model.Product, error)
	Product(ctx context.Context, id string) (*model.Product, error)
	Brands(ctx context.Context) ([]model.Brand, error)
	Brand(ctx context.Context, id string) (*model.Brand, error)
}

// Sanitizer は商品説明のサニタイズを行う。
type Sanitizer interface {
	Sanitize(raw string) string
}

// Home はホーム画面の表示内容。
type Home struct {
	Categories  []model.Category       `json:"categories"`
	NewArrivals []model.ProductSummary `json:"newArrivals"`
	BestSellers []model.ProductSummary `json:"bestSellers"`
	FlashSale   []model.ProductSummary `json:"flashSale"`
}

// CategoryPage はカテゴリページの表示内容。
type CategoryPage struct {
	Category      model.Category         `json:"category"`
	Subcategories []model.Subcategory    `json:"subcategories"`
	Products      []model.ProductSummary `json:"products"`
}

// ProductDetail は商品詳細ページの表示内容。
type ProductDetail struct {
	Product    model.Product          `json:"product"`
	Brand      *model.Brand           `json:"brand,omitempty"`
	Related    []model.ProductSummary `json:"related"`
	InWishlist bool                   `json:"inWishlist"`
}

// Service はカタログの読み取りを提供する。全セッションで共有される。
type Service struct {
	api       API
	sanitizer Sanitizer
	logger    *slog.Logger
	group     singleflight.Group
	perm      func(n int) []int
}

// NewService はServiceを生成する。
func NewService(api API, sanitizer Sanitizer, logger *slog.Logger) *Service {
	return &Service{
		api:       api,
		sanitizer: sanitizer,
		logger:    logger,
		perm:      rand.Perm,
	}
}

// Categories はカテゴリ一覧を返す。
func (s *Service) Categories(ctx context.Context) ([]model.Category, error) {
	v, err, _ := s.group.Do("categories", func() (any, error) {
		return s.api.Categories(ctx)
	})
	if err != nil {
		s.logger.Error("カテゴリ一覧の取得に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewUpstreamError("catalog", "Failed to load categories")
	}
	return append([]model.Category{}, v.([]model.Category)...), nil
}

// Brands はブランド一覧を返す。
func (s *Service) Brands(ctx context.Context) ([]model.Brand, error) {
	v, err, _ := s.group.Do("brands", func() (any, error) {
		return s.api.Brands(ctx)
	})
	if err != nil {
		s.logger.Error("ブランド一覧の取得に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewUpstreamError("catalog", "Failed to load brands")
	}
	return append([]model.Brand{}, v.([]model.Brand)...), nil
}

// Brand はブランド詳細を返す。
func (s *Service) Brand(ctx context.Context, id string) (*model.Brand, error) {
	b, err := s.api.Brand(ctx, id)
	if err != nil {
		if errors.Is(err, storeapi.ErrNotFound) {
			return nil, model.NewBrandNotFoundError(id)
		}
		s.logger.Error("ブランドの取得に失敗しました", slog.String("brand_id", id), slog.String("error", err.Error()))
		return nil, model.NewUpstreamError("catalog", "Failed to load brand")
	}
	return b, nil
}

// listProducts は同一条件の同時取得を1回の呼び出しにまとめる。
// 返り値のスライスは呼び出し元間で共有されるため変更してはならない。
func (s *Service) listProducts(ctx context.Context, q model.ProductQuery) ([]model.Product, error) {
	key := fmt.Sprintf("products:%s:%s:%s:%d:%d", q.CategoryID, q.BrandID, q.Sort, q.Limit, q.Page)
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.api.Products(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Product), nil
}

// Home はホーム画面の内容を組み立てる。
// 売れ筋は一覧の先頭、新着は末尾、フラッシュセールは無作為に選んだ商品。
// カテゴリの取得失敗は空のセクションとして扱う。
func (s *Service) Home(ctx context.Context) (*Home, error) {
	var (
		categories []model.Category
		products   []model.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cats, err := s.Categories(gctx)
		if err != nil {
			categories = []model.Category{}
			return nil
		}
		categories = cats
		return nil
	})
	g.Go(func() error {
		var err error
		products, err = s.listProducts(gctx, model.ProductQuery{})
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("ホーム画面の商品取得に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewUpstreamError("catalog", "Failed to load products")
	}

	all := summaries(products)
	home := &Home{
		Categories:  categories,
		BestSellers: head(all, SectionSize),
		NewArrivals: tail(all, SectionSize),
		FlashSale:   make([]model.ProductSummary, 0, min(SectionSize, len(all))),
	}
	for _, i := range s.perm(len(all)) {
		if len(home.FlashSale) == SectionSize {
			break
		}
		home.FlashSale = append(home.FlashSale, all[i])
	}
	return home, nil
}

// CategoryPage はカテゴリページの内容を組み立てる。
// サブカテゴリと商品の取得失敗は空の一覧として扱う。
func (s *Service) CategoryPage(ctx context.Context, id string) (*CategoryPage, error) {
	cat, err := s.api.Category(ctx, id)
	if err != nil {
		if errors.Is(err, storeapi.ErrNotFound) {
			return nil, model.NewCategoryNotFoundError(id)
		}
		s.logger.Error("カテゴリの取得に失敗しました", slog.String("category_id", id), slog.String("error", err.Error()))
		return nil, model.NewUpstreamError("catalog", "Failed to load category")
	}

	page := &CategoryPage{
		Category:      *cat,
		Subcategories: []model.Subcategory{},
		Products:      []model.ProductSummary{},
	}

	var g errgroup.Group
	g.Go(func() error {
		subs, err := s.api.Subcategories(ctx, id)
		if err != nil {
			s.logger.Warn("サブカテゴリの取得に失敗しました", slog.String("category_id", id), slog.String("error", err.Error()))
			return nil
		}
		page.Subcategories = subs
		return nil
	})
	g.Go(func() error {
		products, err := s.listProducts(ctx, model.ProductQuery{CategoryID: id, Limit: CategoryProductLimit})
		if err != nil {
			s.logger.Warn("カテゴリの商品取得に失敗しました", slog.String("category_id", id), slog.String("error", err.Error()))
			return nil
		}
		page.Products = summaries(products)
		return nil
	})
	_ = g.Wait()
	return page, nil
}

// Product は商品詳細と関連商品を組み立てる。
// 説明はサニタイズし、画像がない場合はカバー画像を使う。
// ブランドと関連商品の取得失敗は詳細の表示を妨げない。
func (s *Service) Product(ctx context.Context, id string) (*ProductDetail, error) {
	p, err := s.api.Product(ctx, id)
	if err != nil {
		if errors.Is(err, storeapi.ErrNotFound) {
			return nil, model.NewProductNotFoundError(id)
		}
		s.logger.Error("商品の取得に失敗しました", slog.String("product_id", id), slog.String("error", err.Error()))
		return nil, model.NewUpstreamError("catalog", "Failed to load product")
	}

	detail := &ProductDetail{
		Product: *p,
		Brand:   p.Brand,
		Related: []model.ProductSummary{},
	}
	detail.Product.Description = s.sanitizer.Sanitize(p.Description)
	if len(p.Images) == 0 && p.ImageCover != "" {
		detail.Product.Images = []string{p.ImageCover}
	}

	var g errgroup.Group
	if brandID := p.BrandID; brandID != "" {
		g.Go(func() error {
			b, err := s.api.Brand(ctx, brandID)
			if err != nil {
				s.logger.Warn("商品のブランド取得に失敗しました", slog.String("brand_id", brandID), slog.String("error", err.Error()))
				return nil
			}
			detail.Brand = b
			return nil
		})
	}
	if categoryID := p.CategoryID; categoryID != "" {
		g.Go(func() error {
			products, err := s.listProducts(ctx, model.ProductQuery{CategoryID: categoryID})
			if err != nil {
				s.logger.Warn("関連商品の取得に失敗しました", slog.String("category_id", categoryID), slog.String("error", err.Error()))
				return nil
			}
			for _, rp := range products {
				if rp.ID != p.ID {
					detail.Related = append(detail.Related, rp.Summary())
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return detail, nil
}

// Search は条件に合う商品を返す。termが空でなければタイトルの部分一致（大文字小文字を区別しない）で絞り込む。
func (s *Service) Search(ctx context.Context, q model.ProductQuery, term string) ([]model.ProductSummary, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term != "" && q.Limit == 0 {
		q.Limit = searchLimit
	}
	products, err := s.listProducts(ctx, q)
	if err != nil {
		s.logger.Error("商品一覧の取得に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewUpstreamError("catalog", "Failed to load products")
	}

	out := make([]model.ProductSummary, 0, len(products))
	for _, p := range products {
		if term == "" || strings.Contains(strings.ToLower(p.Title), term) {
			out = append(out, p.Summary())
		}
	}
	return out, nil
}

func summaries(products []model.Product) []model.ProductSummary {
	out := make([]model.ProductSummary, len(products))
	for i := range products {
		out[i] = products[i].Summary()
	}
	return out
}

func head(items []model.ProductSummary, n int) []model.ProductSummary {
	return append([]model.ProductSummary{}, items[:min(n, len(items))]...)
}

func tail(items []model.ProductSummary, n int) []model.ProductSummary {
	return append([]model.ProductSummary{}, items[len(items)-min(n, len(items)):]...)
}
