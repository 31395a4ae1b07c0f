package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/superkart/internal/checkout"
)

// CheckoutHandler はチェックアウトのHTTPハンドラー。
type CheckoutHandler struct {
	logger *slog.Logger
}

// NewCheckoutHandler はCheckoutHandlerを生成する。
func NewCheckoutHandler(logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{logger: logger}
}

// buyNowResponse は今すぐ購入の商品参照。
type buyNowResponse struct {
	ProductID string `json:"productId"`
}

// Summary は配送先、購入対象、小計、送料、合計を返す。
// GET /checkout
func (h *CheckoutHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	summary, err := s.Checkout.Summary(r.Context())
	if err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, summary)
}

// SetBuyNow は今すぐ購入の商品参照を設定する。
// POST /checkout/buy-now
func (h *CheckoutHandler) SetBuyNow(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	var req productIDRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	if err := s.Checkout.SetBuyNow(r.Context(), req.ProductID); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, buyNowResponse{ProductID: s.Checkout.BuyNowProductID()})
}

// ClearBuyNow は今すぐ購入の商品参照を解除し、カートのチェックアウトに戻す。
// DELETE /checkout/buy-now
func (h *CheckoutHandler) ClearBuyNow(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	if err := s.Checkout.ClearBuyNow(r.Context()); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, buyNowResponse{ProductID: s.Checkout.BuyNowProductID()})
}

// Addresses は登録済み配送先を返す。
// GET /checkout/addresses
func (h *CheckoutHandler) Addresses(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	addresses, err := s.Checkout.Addresses(r.Context())
	if err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, addresses)
}

// AddAddress は配送先を登録する。
// POST /checkout/addresses
func (h *CheckoutHandler) AddAddress(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	var in checkout.AddressInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	addresses, err := s.Checkout.AddAddress(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusCreated, s, addresses)
}

// RemoveAddress は配送先を削除する。
// DELETE /checkout/addresses/{id}
func (h *CheckoutHandler) RemoveAddress(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	addresses, err := s.Checkout.RemoveAddress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s, addresses)
}

// PlaceOrder は注文する。カード決済の場合はredirectUrlに外部決済セッションのURLを返す。
// POST /checkout/orders
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r, h.logger)
	if !ok {
		return
	}
	var in checkout.OrderInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	result, err := s.Checkout.PlaceOrder(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, s, err)
		return
	}
	writeJSON(w, http.StatusCreated, s, result)
}
