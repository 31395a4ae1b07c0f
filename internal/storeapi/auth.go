package storeapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/superkart/internal/model"
)

// SignUpRequest は会員登録のリクエストボディ。
type SignUpRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	RePassword string `json:"rePassword"`
	Phone      string `json:"phone,omitempty"`
}

// SignInRequest はログインのリクエストボディ。
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult はsignup/signinのレスポンス。
type AuthResult struct {
	Message string
	Token   string
	User    *model.User // レスポンスにuserが含まれない場合はnil
}

// SignUp は会員登録を行う。セッションの認証は行わない。
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*AuthResult, error) {
	var resp authResponse
	if err := c.do(ctx, request{op: "auth.signup", method: http.MethodPost, path: "auth/signup", body: req}, &resp); err != nil {
		return nil, err
	}
	return resp.toResult(), nil
}

// SignIn はログインし、ベアラートークンを取得する。
func (c *Client) SignIn(ctx context.Context, req SignInRequest) (*AuthResult, error) {
	var resp authResponse
	if err := c.do(ctx, request{op: "auth.signin", method: http.MethodPost, path: "auth/signin", body: req}, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("auth.signin: %w: response without token", ErrInvalidResponse)
	}
	return resp.toResult(), nil
}

// VerifyToken はトークンの有効性をサーバーに確認し、デコード済みの利用者情報を返す。
func (c *Client) VerifyToken(ctx context.Context, token string) (*model.User, error) {
	var resp verifyResponse
	if err := c.do(ctx, request{op: "auth.verify", method: http.MethodGet, path: "auth/verifyToken", token: token}, &resp); err != nil {
		return nil, err
	}
	if resp.Decoded == nil {
		return nil, fmt.Errorf("auth.verify: %w: response without decoded", ErrInvalidResponse)
	}
	return &model.User{
		ID:   resp.Decoded.ID,
		Name: resp.Decoded.Name,
		Role: resp.Decoded.Role,
	}, nil
}

func (r authResponse) toResult() *AuthResult {
	res := &AuthResult{Message: r.Message, Token: r.Token}
	if r.User != nil {
		res.User = &model.User{
			ID:    r.User.ID,
			Name:  r.User.Name,
			Email: r.User.Email,
			Role:  r.User.Role,
		}
	}
	return res
}
