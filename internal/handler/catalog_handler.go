package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/superkart/internal/catalog"
	"github.com/hitoshi/superkart/internal/model"
)

// CatalogService はカタログハンドラーが必要とするサービスインターフェース。
// catalog.Service が満たす。
type CatalogService interface {
	Home(ctx context.Context) (*catalog.Home, error)
	Categories(ctx context.Context) ([]model.Category, error)
	CategoryPage(ctx context.Context, id string) (*catalog.CategoryPage, error)
	Brands(ctx context.Context) ([]model.Brand, error)
	Brand(ctx context.Context, id string) (*model.Brand, error)
	Product(ctx context.Context, id string) (*catalog.ProductDetail, error)
	Search(ctx context.Context, q model.ProductQuery, term string) ([]model.ProductSummary, error)
}

// CatalogHandler はカテゴリ・ブランド・商品の読み取りHTTPハンドラー。
type CatalogHandler struct {
	service CatalogService
	logger  *slog.Logger
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{service: service, logger: logger}
}

// Home はホーム画面の内容を返す。
// GET /
func (h *CatalogHandler) Home(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	home, err := h.service.Home(r.Context())
	if err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, home)
}

// Categories はカテゴリ一覧を返す。
// GET /categories
func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	categories, err := h.service.Categories(r.Context())
	if err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, categories)
}

// Category はカテゴリページの内容を返す。
// GET /categories/{id}
func (h *CatalogHandler) Category(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	page, err := h.service.CategoryPage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, page)
}

// Brands はブランド一覧を返す。
// GET /brands
func (h *CatalogHandler) Brands(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	brands, err := h.service.Brands(r.Context())
	if err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, brands)
}

// Brand はブランド詳細を返す。
// GET /brands/{id}
func (h *CatalogHandler) Brand(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	brand, err := h.service.Brand(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, brand)
}

// Products は商品一覧を返す。qを指定するとタイトルで絞り込む。
// GET /products?q=&category=&brand=&sort=&page=
func (h *CatalogHandler) Products(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	query := r.URL.Query()
	q := model.ProductQuery{
		CategoryID: query.Get("category"),
		BrandID:    query.Get("brand"),
		Sort:       query.Get("sort"),
	}
	if v := query.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			writeError(w, h.logger, s, model.NewValidationError("page must be a positive integer"))
			return
		}
		q.Page = page
	}

	products, err := h.service.Search(r.Context(), q, query.Get("q"))
	if err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, products)
}

// Product は商品詳細を返す。ログイン中はウィッシュリストに含まれるかも返す。
// GET /products/{id}
func (h *CatalogHandler) Product(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	detail, err := h.service.Product(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, s, err)
		return
	}

	if s.Auth.IsAuthenticated() && !s.Wishlist.Loaded() {
		// 失敗してもウィッシュリスト表示が外れるだけなので商品詳細は返す
		if err := s.Wishlist.Load(r.Context()); err != nil {
			h.logger.Warn("ウィッシュリストの取得に失敗しました", slog.String("error", err.Error()))
		}
	}
	detail.InWishlist = s.Wishlist.Contains(id)
	writeJSON(w, http.StatusOK, s, detail)
}
