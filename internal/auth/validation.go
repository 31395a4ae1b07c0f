package auth

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/superkart/internal/model"
)

var (
	// passwordPattern は先頭が英字で、続けて英数字または@が5文字以上。
	passwordPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9@]{5,}$`)
	// PhonePattern はエジプトの携帯電話番号（01から始まる11桁）。
	PhonePattern = regexp.MustCompile(`^01[0-9]{9}$`)
)

// SignUpInput は会員登録フォームの入力。
type SignUpInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	RePassword string `json:"rePassword"`
	Phone      string `json:"phone,omitempty"`
}

// Credentials はログインフォームの入力。
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate は会員登録の入力を検証する。
// 検証に失敗した場合はリモートAPIへリクエストを送信しない。
func (in SignUpInput) Validate() error {
	name := strings.TrimSpace(in.Name)
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		return model.NewValidationError("Name is required")
	case n < 5:
		return model.NewValidationError("Name must be at least 5 characters")
	case n > 30:
		return model.NewValidationError("Name must be at most 30 characters")
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if in.Password == "" {
		return model.NewValidationError("Password is required")
	}
	if !passwordPattern.MatchString(in.Password) {
		return model.NewValidationError("Password must start with a letter and be at least 6 characters (letters, digits or @)")
	}
	if in.RePassword != in.Password {
		return model.NewValidationError("Passwords must match")
	}
	if in.Phone != "" && !PhonePattern.MatchString(in.Phone) {
		return model.NewValidationError("Invalid phone number")
	}
	return nil
}

// Validate はログインの入力を検証する。
func (c Credentials) Validate() error {
	if err := validateEmail(c.Email); err != nil {
		return err
	}
	if c.Password == "" {
		return model.NewValidationError("Password is required")
	}
	return nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return model.NewValidationError("Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.NewValidationError("Invalid email address")
	}
	return nil
}
