package storeapi

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/superkart/internal/model"
	"github.com/shopspring/decimal"
)

// 以下はエンドポイントごとのレスポンススキーマ。
// 形を暗黙に信頼せず、ここでモデルへ変換する際に必須項目を検証する。

type wireUser struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type authResponse struct {
	Message string    `json:"message"`
	User    *wireUser `json:"user"`
	Token   string    `json:"token"`
}

type verifyResponse struct {
	Message string `json:"message"`
	Decoded *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Role string `json:"role"`
	} `json:"decoded"`
}

type wireCategory struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Image string `json:"image"`
}

func (w wireCategory) toModel() model.Category {
	return model.Category{ID: w.ID, Name: w.Name, Slug: w.Slug, Image: w.Image}
}

type wireSubcategory struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Category string `json:"category"`
}

func (w wireSubcategory) toModel() model.Subcategory {
	return model.Subcategory{ID: w.ID, Name: w.Name, Slug: w.Slug, CategoryID: w.Category}
}

type wireBrand struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Image string `json:"image"`
}

func (w wireBrand) toModel() model.Brand {
	return model.Brand{ID: w.ID, Name: w.Name, Slug: w.Slug, Image: w.Image}
}

type wireProduct struct {
	ID                 string              `json:"_id"`
	Title              string              `json:"title"`
	Slug               string              `json:"slug"`
	Description        string              `json:"description"`
	Quantity           int                 `json:"quantity"`
	Sold               int                 `json:"sold"`
	Price              decimal.Decimal     `json:"price"`
	PriceAfterDiscount decimal.NullDecimal `json:"priceAfterDiscount"`
	ImageCover         string              `json:"imageCover"`
	Images             []string            `json:"images"`
	Category           *wireCategory       `json:"category"`
	Subcategory        []wireSubcategory   `json:"subcategory"`
	Brand              *wireBrand          `json:"brand"`
	RatingsAverage     float64             `json:"ratingsAverage"`
	RatingsQuantity    int                 `json:"ratingsQuantity"`
}

func (w wireProduct) summary() model.ProductSummary {
	s := model.ProductSummary{
		ID:             w.ID,
		Title:          w.Title,
		ImageCover:     w.ImageCover,
		Price:          w.Price,
		RatingsAverage: w.RatingsAverage,
	}
	if w.PriceAfterDiscount.Valid {
		s.PriceAfterDiscount = w.PriceAfterDiscount.Decimal
	}
	if w.Category != nil {
		s.CategoryID = w.Category.ID
	}
	if w.Brand != nil {
		s.BrandID = w.Brand.ID
	}
	return s
}

func (w wireProduct) toModel() (model.Product, error) {
	if w.ID == "" {
		return model.Product{}, fmt.Errorf("%w: product without _id", ErrInvalidResponse)
	}
	p := model.Product{
		ProductSummary:  w.summary(),
		Slug:            w.Slug,
		Description:     w.Description,
		Quantity:        w.Quantity,
		Sold:            w.Sold,
		RatingsQuantity: w.RatingsQuantity,
		Images:          w.Images,
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	if w.Category != nil {
		c := w.Category.toModel()
		p.Category = &c
	}
	if w.Brand != nil {
		b := w.Brand.toModel()
		p.Brand = &b
	}
	for _, sc := range w.Subcategory {
		p.Subcategories = append(p.Subcategories, sc.toModel())
	}
	return p, nil
}

type listMetadata struct {
	CurrentPage   int `json:"currentPage"`
	NumberOfPages int `json:"numberOfPages"`
	Limit         int `json:"limit"`
}

type listEnvelope[T any] struct {
	Results  int           `json:"results"`
	Metadata *listMetadata `json:"metadata"`
	Data     []T           `json:"data"`
}

type itemEnvelope[T any] struct {
	Data *T `json:"data"`
}

// wireProductRef はカート行の商品参照。
// 追加直後のレスポンスでは商品IDの文字列、それ以外では商品オブジェクトになる。
type wireProductRef struct {
	wireProduct
}

// UnmarshalJSON は文字列IDとオブジェクトの両方を受け付ける。
func (r *wireProductRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return err
		}
		r.wireProduct = wireProduct{ID: id}
		return nil
	}
	return json.Unmarshal(trimmed, &r.wireProduct)
}

type wireCartLine struct {
	Count   int             `json:"count"`
	ID      string          `json:"_id"`
	Product wireProductRef  `json:"product"`
	Price   decimal.Decimal `json:"price"`
}

type wireCart struct {
	ID             string          `json:"_id"`
	CartOwner      string          `json:"cartOwner"`
	Products       []wireCartLine  `json:"products"`
	TotalCartPrice decimal.Decimal `json:"totalCartPrice"`
}

type cartResponse struct {
	Status         string    `json:"status"`
	Message        string    `json:"message"`
	NumOfCartItems int       `json:"numOfCartItems"`
	CartID         string    `json:"cartId"`
	Data           *wireCart `json:"data"`
}

// toSnapshot はカートレスポンスを検証してスナップショットに変換する。
// 商品数0でdataが欠落しているレスポンスは空のカートとして扱う。
func (r cartResponse) toSnapshot() (*model.CartSnapshot, error) {
	if r.Data == nil {
		if r.NumOfCartItems == 0 {
			snap := model.EmptyCart()
			snap.ID = r.CartID
			return snap, nil
		}
		return nil, fmt.Errorf("%w: cart response without data", ErrInvalidResponse)
	}

	snap := &model.CartSnapshot{
		ID:         r.Data.ID,
		Lines:      make([]model.CartLine, 0, len(r.Data.Products)),
		TotalPrice: r.Data.TotalCartPrice,
		ItemCount:  r.NumOfCartItems,
	}
	if snap.ID == "" {
		snap.ID = r.CartID
	}
	for i, l := range r.Data.Products {
		if l.Product.ID == "" {
			return nil, fmt.Errorf("%w: cart line %d without product", ErrInvalidResponse, i)
		}
		if l.Count < 1 {
			return nil, fmt.Errorf("%w: cart line %d has count %d", ErrInvalidResponse, i, l.Count)
		}
		snap.Lines = append(snap.Lines, model.CartLine{
			Product:  l.Product.summary(),
			Quantity: l.Count,
			Price:    l.Price,
		})
	}
	return snap, nil
}

type wishlistResponse struct {
	Status string        `json:"status"`
	Count  int           `json:"count"`
	Data   []wireProduct `json:"data"`
}

type wishlistMutationResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Data    []string `json:"data"`
}

type wireAddress struct {
	ID      string `json:"_id"`
	Name    string `json:"name"`
	Details string `json:"details"`
	Phone   string `json:"phone"`
	City    string `json:"city"`
}

func (w wireAddress) toModel() model.Address {
	return model.Address{ID: w.ID, Name: w.Name, Details: w.Details, Phone: w.Phone, City: w.City}
}

type addressesResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Data    []wireAddress `json:"data"`
}

func (r addressesResponse) toModel() []model.Address {
	out := make([]model.Address, 0, len(r.Data))
	for _, a := range r.Data {
		out = append(out, a.toModel())
	}
	return out
}

type orderResponse struct {
	Status string `json:"status"`
	Data   *struct {
		ID                string          `json:"_id"`
		TotalOrderPrice   decimal.Decimal `json:"totalOrderPrice"`
		PaymentMethodType string          `json:"paymentMethodType"`
		IsPaid            bool            `json:"isPaid"`
		IsDelivered       bool            `json:"isDelivered"`
	} `json:"data"`
}

type checkoutSessionResponse struct {
	Status  string `json:"status"`
	URL     string `json:"url"`
	Session *struct {
		URL string `json:"url"`
	} `json:"session"`
}
