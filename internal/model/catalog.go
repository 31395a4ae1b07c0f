package model

import "github.com/shopspring/decimal"

// Category は商品カテゴリの読み取り専用射影。
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Image string `json:"image,omitempty"`
}

// Subcategory はカテゴリ配下のサブカテゴリ。
type Subcategory struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	CategoryID string `json:"categoryId,omitempty"`
}

// Brand はブランドの読み取り専用射影。
type Brand struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Image string `json:"image,omitempty"`
}

// ProductSummary は一覧・カート・ウィッシュリストで使う商品の要約。
type ProductSummary struct {
	ID                 string          `json:"id"`
	Title              string          `json:"title,omitempty"`
	ImageCover         string          `json:"imageCover,omitempty"`
	Price              decimal.Decimal `json:"price"`
	PriceAfterDiscount decimal.Decimal `json:"priceAfterDiscount"`
	RatingsAverage     float64         `json:"ratingsAverage"`
	CategoryID         string          `json:"categoryId,omitempty"`
	BrandID            string          `json:"brandId,omitempty"`
}

// EffectivePrice は割引後価格があればそれを、なければ通常価格を返す。
func (p ProductSummary) EffectivePrice() decimal.Decimal {
	if p.PriceAfterDiscount.IsPositive() {
		return p.PriceAfterDiscount
	}
	return p.Price
}

// Product は商品詳細の読み取り専用射影。
// ローカルで変更されることはない。
type Product struct {
	ProductSummary
	Slug            string        `json:"slug,omitempty"`
	Description     string        `json:"description"`
	Quantity        int           `json:"quantity"`
	Sold            int           `json:"sold"`
	RatingsQuantity int           `json:"ratingsQuantity"`
	Images          []string      `json:"images"`
	Category        *Category     `json:"category,omitempty"`
	Subcategories   []Subcategory `json:"subcategories,omitempty"`
	Brand           *Brand        `json:"brand,omitempty"`
}

// Summary は商品詳細から要約を取り出す。
func (p *Product) Summary() ProductSummary {
	return p.ProductSummary
}

// ProductQuery は商品一覧取得の検索条件。
type ProductQuery struct {
	CategoryID string
	BrandID    string
	Sort       string
	Limit      int
	Page       int
}
