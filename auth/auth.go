// Package auth は再接続用の識別トークン（JWT）を発行・検証します。
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"duelserver/models"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

const (
	tokenTTL       = 72 * time.Hour
	refreshBefore  = time.Hour
	maxNameLength  = 20
	defaultPlayer  = "Player"
	identityIssuer = "duelserver"
)

var ErrInvalidToken = errors.New("invalid identity token")

// Identity は接続ごとに解決されたプレイヤー情報です。
type Identity struct {
	PlayerID string
	Name     string
	Token    string
}

// Issuer は識別トークンの署名鍵を保持します。
type Issuer struct {
	key []byte
	now func() time.Time
}

func NewIssuer(secret string) *Issuer {
	if secret == "" {
		// 鍵が未設定なら起動ごとの使い捨て鍵。再起動でトークンは無効になる
		secret = uuid.NewString()
	}
	return &Issuer{key: []byte(secret), now: time.Now}
}

// Issue は playerID と表示名を内包したトークンを生成します。
func (i *Issuer) Issue(playerID, name string) (string, error) {
	now := i.now()
	claims := &models.IdentityClaims{
		PlayerID: playerID,
		Name:     name,
		StandardClaims: jwt.StandardClaims{
			Issuer:    identityIssuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(tokenTTL).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign identity token: %w", err)
	}
	return tokenString, nil
}

// Parse はトークンを検証してクレームを返します。
func (i *Issuer) Parse(tokenString string) (*models.IdentityClaims, error) {
	tokenString = strings.TrimPrefix(strings.TrimSpace(tokenString), "Bearer ")
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	claims := &models.IdentityClaims{}
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}, SkipClaimsValidation: true}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return i.key, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	// 有効期限は注入した時計で判定する
	if !claims.VerifyExpiresAt(i.now().Unix(), true) || claims.PlayerID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Resolve はトークンからプレイヤーを特定します。
// トークンが無い・無効なら新しい識別子でトークンを発行し、
// 有効期限が1時間未満ならトークンを更新します。refreshed は新しいトークンを発行したかどうかです。
func (i *Issuer) Resolve(tokenString, name string) (Identity, bool, error) {
	claims, err := i.Parse(tokenString)
	if err != nil {
		id := Identity{PlayerID: uuid.NewString(), Name: SanitizeName(name, "")}
		id.Token, err = i.Issue(id.PlayerID, id.Name)
		return id, true, err
	}

	id := Identity{PlayerID: claims.PlayerID, Name: SanitizeName(name, claims.Name), Token: tokenString}
	remaining := time.Unix(claims.ExpiresAt, 0).Sub(i.now())
	if remaining >= refreshBefore && id.Name == claims.Name {
		return id, false, nil
	}
	id.Token, err = i.Issue(id.PlayerID, id.Name)
	return id, true, err
}

// SanitizeName は表示名を整えます。空なら fallback、それも空なら "Player"。最大20文字。
func SanitizeName(name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(fallback)
	}
	if name == "" {
		return defaultPlayer
	}
	if r := []rune(name); len(r) > maxNameLength {
		name = string(r[:maxNameLength])
	}
	return name
}
