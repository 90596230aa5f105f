package models

import (
	jwt "github.com/dgrijalva/jwt-go"
)

// IdentityClaims は再接続に使う識別トークンのJWTクレームです。
// PlayerID は接続ハンドルが変わっても変わらないプレイヤーの識別子です。
type IdentityClaims struct {
	PlayerID string `json:"pid"`
	Name     string `json:"name,omitempty"`
	jwt.StandardClaims
}
