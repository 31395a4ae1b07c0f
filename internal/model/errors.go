package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, catalog, cart, wishlist, checkout, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is は同一コードのAPIErrorを同一とみなす。
// errors.Is(err, model.NewAuthRequiredError()) の形で判定できる。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// 定義済みエラーコード
const (
	ErrCodeAuthRequired     = "AUTH_REQUIRED"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeUpstreamFailed   = "UPSTREAM_FAILED"
	ErrCodeLoginFailed      = "LOGIN_FAILED"
	ErrCodeSignupFailed     = "SIGNUP_FAILED"
	ErrCodeProductNotFound  = "PRODUCT_NOT_FOUND"
	ErrCodeCategoryNotFound = "CATEGORY_NOT_FOUND"
	ErrCodeBrandNotFound    = "BRAND_NOT_FOUND"
	ErrCodeAddressNotFound  = "ADDRESS_NOT_FOUND"
	ErrCodeCartEmpty        = "CART_EMPTY"
	ErrCodeCartNotLoaded    = "CART_NOT_LOADED"
	ErrCodeOrderFailed      = "ORDER_FAILED"
	ErrCodeInvalidRedirect  = "INVALID_REDIRECT"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrCodeCSRFFailed       = "CSRF_FAILED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewAuthRequiredError はログインが必要な操作を未認証で呼び出した場合のエラーを生成する。
func NewAuthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthRequired,
		Message:  "You need to login first",
		Category: "auth",
		Action:   "Log in and try again.",
	}
}

// NewValidationError は入力検証エラーを生成する。
// リモートAPIへのリクエストを送信する前に検出される。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  reason,
		Category: "validation",
		Action:   "Check the highlighted fields and submit again.",
	}
}

// NewUpstreamError はリモートAPI呼び出しの失敗を表すエラーを生成する。
// messageにはユーザー通知と同じ文言を渡す。
func NewUpstreamError(category, message string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  message,
		Category: category,
		Action:   "Please try again in a moment.",
	}
}

// NewLoginFailedError はログイン失敗エラーを生成する。
func NewLoginFailedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeLoginFailed,
		Message:  message,
		Category: "auth",
		Action:   "Check your email and password.",
	}
}

// NewSignupFailedError は会員登録失敗エラーを生成する。
func NewSignupFailedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeSignupFailed,
		Message:  message,
		Category: "auth",
		Action:   "Check the registration fields or use another email address.",
	}
}

// NewProductNotFoundError は商品未検出エラーを生成する。
func NewProductNotFoundError(productID string) *APIError {
	return &APIError{
		Code:     ErrCodeProductNotFound,
		Message:  fmt.Sprintf("product not found: %s", productID),
		Category: "catalog",
		Action:   "Go back to the product list.",
	}
}

// NewCategoryNotFoundError はカテゴリ未検出エラーを生成する。
func NewCategoryNotFoundError(categoryID string) *APIError {
	return &APIError{
		Code:     ErrCodeCategoryNotFound,
		Message:  fmt.Sprintf("category not found: %s", categoryID),
		Category: "catalog",
		Action:   "Go back to the category list.",
	}
}

// NewBrandNotFoundError はブランド未検出エラーを生成する。
func NewBrandNotFoundError(brandID string) *APIError {
	return &APIError{
		Code:     ErrCodeBrandNotFound,
		Message:  fmt.Sprintf("brand not found: %s", brandID),
		Category: "catalog",
		Action:   "Go back to the brand list.",
	}
}

// NewAddressNotFoundError は選択された配送先が見つからない場合のエラーを生成する。
func NewAddressNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAddressNotFound,
		Message:  "Selected address not found.",
		Category: "checkout",
		Action:   "Choose another address or enter the shipping fields.",
	}
}

// NewCartEmptyError はカートが空の状態で注文しようとした場合のエラーを生成する。
func NewCartEmptyError() *APIError {
	return &APIError{
		Code:     ErrCodeCartEmpty,
		Message:  "Your cart is empty.",
		Category: "checkout",
		Action:   "Add products to the cart first.",
	}
}

// NewCartNotLoadedError はリモートのカートIDが不明な場合のエラーを生成する。
func NewCartNotLoadedError() *APIError {
	return &APIError{
		Code:     ErrCodeCartNotLoaded,
		Message:  "Cart ID missing. Please reload the cart.",
		Category: "checkout",
		Action:   "Reload the cart and try again.",
	}
}

// NewOrderFailedError は注文処理の失敗エラーを生成する。
func NewOrderFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeOrderFailed,
		Message:  "Order failed. Please check your details.",
		Category: "checkout",
		Action:   "Check the shipping details and try again.",
	}
}

// NewInvalidRedirectError は決済セッションURLが安全でない場合のエラーを生成する。
func NewInvalidRedirectError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRedirect,
		Message:  "The payment provider returned an unusable checkout URL.",
		Category: "checkout",
		Action:   "Try again or choose cash on delivery.",
	}
}

// NewNotFoundError は存在しないルートへのリクエストに返すエラーを生成する。
func NewNotFoundError(path string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("no route for %s", path),
		Category: "system",
		Action:   "Check the URL.",
	}
}

// NewMethodNotAllowedError はルートが対応していないメソッドへのリクエストに返すエラーを生成する。
func NewMethodNotAllowedError(method string) *APIError {
	return &APIError{
		Code:     ErrCodeMethodNotAllowed,
		Message:  fmt.Sprintf("method %s is not allowed", method),
		Category: "system",
		Action:   "Check the request method.",
	}
}

// NewCSRFError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRF token validation failed",
		Category: "system",
		Action:   "Reload the page and try again.",
	}
}

// NewRateLimitedError はレート制限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Something went wrong.",
		Category: "system",
		Action:   "Please try again in a moment.",
	}
}
