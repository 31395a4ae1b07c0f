package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/superkart/internal/model"
)

// CartHandler はカートのHTTPハンドラー。
// 状態はセッションのカートコンテナを通じてのみ変更する。
type CartHandler struct {
	logger *slog.Logger
}

// NewCartHandler はCartHandlerを生成する。
func NewCartHandler(logger *slog.Logger) *CartHandler {
	return &CartHandler{logger: logger}
}

// quantityRequest は数量変更リクエストのボディ。
type quantityRequest struct {
	Count *int `json:"count"`
}

// Get はカートのスナップショットを返す。未読み込みの場合は読み込む。
// GET /cart
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	if !s.Cart.Loaded() {
		if err := s.Cart.Load(r.Context()); err != nil {
			writeError(w, h.logger, s, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s, s.Cart.Snapshot())
}

// Clear はカートを空にする。
// DELETE /cart
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	if err := s.Cart.Clear(r.Context()); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, s.Cart.Snapshot())
}

// AddItem は商品を1つカートに追加する。
// POST /cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	var req productIDRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	if err := s.Cart.Add(r.Context(), req.ProductID); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, s.Cart.Snapshot())
}

// SetQuantity は商品の数量を変更する。0は削除として扱う。
// PUT /cart/items/{productId}
func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	var req quantityRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	if req.Count == nil {
		writeError(w, h.logger, s, model.NewValidationError("count is required"))
		return
	}
	if err := s.Cart.SetQuantity(r.Context(), chi.URLParam(r, "productId"), *req.Count); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, s.Cart.Snapshot())
}

// RemoveItem は商品をカートから削除する。
// DELETE /cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	if err := s.Cart.Remove(r.Context(), chi.URLParam(r, "productId")); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, s.Cart.Snapshot())
}
