package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// WishlistHandler はウィッシュリストのHTTPハンドラー。
type WishlistHandler struct {
	logger *slog.Logger
}

// NewWishlistHandler はWishlistHandlerを生成する。
func NewWishlistHandler(logger *slog.Logger) *WishlistHandler {
	return &WishlistHandler{logger: logger}
}

// Get はウィッシュリストのスナップショットを返す。未読み込みの場合は読み込む。
// GET /wishlist
func (h *WishlistHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	if !s.Wishlist.Loaded() {
		if err := s.Wishlist.Load(r.Context()); err != nil {
			writeError(w, h.logger, s, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s, s.Wishlist.Snapshot())
}

// AddItem は商品をウィッシュリストに追加する。
// POST /wishlist/items
func (h *WishlistHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	var req productIDRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	if err := s.Wishlist.Add(r.Context(), req.ProductID); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, s.Wishlist.Snapshot())
}

// RemoveItem は商品をウィッシュリストから削除する。
// DELETE /wishlist/items/{productId}
func (h *WishlistHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	if err := s.Wishlist.Remove(r.Context(), chi.URLParam(r, "productId")); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, s.Wishlist.Snapshot())
}

// toggleResponse はウィッシュリスト切り替えの結果。
type toggleResponse struct {
	ProductID  string `json:"productId"`
	InWishlist bool   `json:"inWishlist"`
}

// Toggle は商品詳細のハートボタン用に、含まれていれば削除し、なければ追加する。
// POST /wishlist/items/{productId}/toggle
func (h *WishlistHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productId")
	// 含まれるかの判定に必要なため、未読み込みなら先に読み込む
	if s.Auth.IsAuthenticated() && !s.Wishlist.Loaded() {
		if err := s.Wishlist.Load(r.Context()); err != nil {
			writeError(w, h.logger, s, err)
			return
		}
	}
	added, err := s.Wishlist.Toggle(r.Context(), productID)
	if err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, toggleResponse{ProductID: productID, InWishlist: added})
}
