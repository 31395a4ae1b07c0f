package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims は外部APIが発行するJWTのペイロード。
type tokenClaims struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// parseTokenClaims はトークンのペイロードを署名検証なしで読み取る。
// 署名鍵は外部APIのみが持つため、ここで得た値は表示用に限る。
// 有効性の判定は常にRevalidateでサーバーに問い合わせる。
func parseTokenClaims(token string) (*tokenClaims, bool) {
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}
