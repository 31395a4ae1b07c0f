package checkout

import (
	"strings"

	"github.com/hitoshi/superkart/internal/auth"
	"github.com/hitoshi/superkart/internal/model"
	"github.com/hitoshi/superkart/internal/storeapi"
)

// AddressInput は配送先登録フォームの入力。
type AddressInput struct {
	Name    string `json:"name"`
	Details string `json:"details"`
	Phone   string `json:"phone"`
	City    string `json:"city"`
}

// Validate は配送先の入力を検証する。
func (in AddressInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return model.NewValidationError("Address name is required")
	}
	return validateShipping(model.ShippingAddress{Details: in.Details, Phone: in.Phone, City: in.City})
}

func (in AddressInput) request() storeapi.AddressRequest {
	return storeapi.AddressRequest{
		Name:    strings.TrimSpace(in.Name),
		Details: strings.TrimSpace(in.Details),
		Phone:   in.Phone,
		City:    strings.TrimSpace(in.City),
	}
}

// OrderInput は注文フォームの入力。
// AddressIDを指定した場合は登録済み配送先を使い、Shippingは無視する。
type OrderInput struct {
	PaymentMethod model.PaymentMethod    `json:"paymentMethod"`
	AddressID     string                 `json:"addressId,omitempty"`
	Shipping      *model.ShippingAddress `json:"shipping,omitempty"`
}

// Validate はリモート呼び出し前に検証できる項目を検証する。
func (in OrderInput) Validate() error {
	switch in.PaymentMethod {
	case model.PaymentCash, model.PaymentCard:
	default:
		return model.NewValidationError("paymentMethod must be cash or card")
	}
	if in.AddressID == "" {
		if in.Shipping == nil {
			return model.NewValidationError("addressId or shipping is required")
		}
		return validateShipping(*in.Shipping)
	}
	return nil
}

func validateShipping(s model.ShippingAddress) error {
	if strings.TrimSpace(s.Details) == "" {
		return model.NewValidationError("Details are required")
	}
	if strings.TrimSpace(s.City) == "" {
		return model.NewValidationError("City is required")
	}
	if !auth.PhonePattern.MatchString(s.Phone) {
		return model.NewValidationError("Invalid phone number")
	}
	return nil
}
