package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// CartLine はカート内の1商品行を表す。
// Quantityは1以上。0は削除を意味し、スナップショットには現れない。
type CartLine struct {
	Product  ProductSummary  `json:"product"`
	Quantity int             `json:"count"`
	Price    decimal.Decimal `json:"price"`
}

// CartSnapshot は最後に観測したリモートカートの全体表現。
// 変更のたびに丸ごと置き換えられ、フィールド単位で部分更新されることはない。
type CartSnapshot struct {
	ID         string          `json:"_id"`
	Lines      []CartLine      `json:"products"`
	TotalPrice decimal.Decimal `json:"totalCartPrice"`
	ItemCount  int             `json:"numOfCartItems"`
}

// MarshalJSON はリモートIDが未確定のカートを "_id": null として出力する。
func (c CartSnapshot) MarshalJSON() ([]byte, error) {
	type plain CartSnapshot
	var id *string
	if c.ID != "" {
		id = &c.ID
	}
	return json.Marshal(struct {
		ID *string `json:"_id"`
		plain
	}{ID: id, plain: plain(c)})
}

// EmptyCart は空であることが分かっているカートの正規表現を返す。
// 「未読み込み」（nil）とは区別される。
func EmptyCart() *CartSnapshot {
	return &CartSnapshot{
		ID:         "",
		Lines:      []CartLine{},
		TotalPrice: decimal.Zero,
		ItemCount:  0,
	}
}

// IsEmpty はカートに商品行が1つもないかを返す。
func (c *CartSnapshot) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// Line は指定商品の行を返す。存在しない場合はfalseを返す。
func (c *CartSnapshot) Line(productID string) (CartLine, bool) {
	if c == nil {
		return CartLine{}, false
	}
	for _, l := range c.Lines {
		if l.Product.ID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}

// Clone はスナップショットのディープコピーを返す。
// 呼び出し元が返り値を変更しても保持中の状態には影響しない。
func (c *CartSnapshot) Clone() *CartSnapshot {
	if c == nil {
		return nil
	}
	out := *c
	out.Lines = make([]CartLine, len(c.Lines))
	copy(out.Lines, c.Lines)
	return &out
}

// WishlistSnapshot は最後に観測したリモートウィッシュリストの全体表現。
type WishlistSnapshot struct {
	Products []ProductSummary `json:"data"`
}

// EmptyWishlist は空のウィッシュリストの正規表現を返す。
func EmptyWishlist() *WishlistSnapshot {
	return &WishlistSnapshot{Products: []ProductSummary{}}
}

// Contains は指定商品がウィッシュリストに含まれるかを返す。
func (w *WishlistSnapshot) Contains(productID string) bool {
	if w == nil {
		return false
	}
	for _, p := range w.Products {
		if p.ID == productID {
			return true
		}
	}
	return false
}

// Clone はスナップショットのコピーを返す。
func (w *WishlistSnapshot) Clone() *WishlistSnapshot {
	if w == nil {
		return nil
	}
	out := &WishlistSnapshot{Products: make([]ProductSummary, len(w.Products))}
	copy(out.Products, w.Products)
	return out
}
