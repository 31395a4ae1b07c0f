// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User は認証情報の再検証から得られる利用者の識別情報。
// 有効なCredentialが存在する間だけ保持され、Credentialと同時に破棄される。
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Session はブラウザセッションを表す。
// ベアラートークンと「今すぐ購入」の商品参照を永続的に保持する。
type Session struct {
	ID              string
	Token           string
	BuyNowProductID string
	ExpiresAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsAuthenticated はセッションにトークンが保持されているかを返す。
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.Token != ""
}

// Address は利用者が登録した配送先。
type Address struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Details string `json:"details"`
	Phone   string `json:"phone"`
	City    string `json:"city"`
}

// ShippingAddress は注文時にリモートAPIへ送る配送情報。
type ShippingAddress struct {
	Details string `json:"details"`
	Phone   string `json:"phone"`
	City    string `json:"city"`
}

// ToShipping は登録済み配送先を注文用の配送情報に変換する。
func (a Address) ToShipping() ShippingAddress {
	return ShippingAddress{Details: a.Details, Phone: a.Phone, City: a.City}
}

// PaymentMethod は支払い方法。
type PaymentMethod string

const (
	// PaymentCash は代金引換。
	PaymentCash PaymentMethod = "cash"
	// PaymentCard はカード決済（外部決済セッションへリダイレクト）。
	PaymentCard PaymentMethod = "card"
)

// Order はリモートAPIが作成した注文。
type Order struct {
	ID            string          `json:"id"`
	TotalPrice    decimal.Decimal `json:"totalOrderPrice"`
	PaymentMethod string          `json:"paymentMethodType"`
	IsPaid        bool            `json:"isPaid"`
	IsDelivered   bool            `json:"isDelivered"`
}

// CheckoutSession はカード決済用の外部決済セッション。
type CheckoutSession struct {
	URL string `json:"url"`
}

// NotificationLevel は通知の種類。
type NotificationLevel string

const (
	NotificationSuccess NotificationLevel = "success"
	NotificationError   NotificationLevel = "error"
	NotificationInfo    NotificationLevel = "info"
)

// Notification は利用者に一時的に表示する通知（トースト）。
type Notification struct {
	ID        string            `json:"id"`
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"createdAt"`
}
