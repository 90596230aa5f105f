package models

// IdentityRequest は /api/identity へのリクエストボディです。
// トークンが提供されていればそれを検証し、無効または期限切れ間近なら新しいトークンを発行します。
type IdentityRequest struct {
	Token string `json:"token,omitempty" binding:"max=2048"` // 既存の識別トークン
	Name  string `json:"name,omitempty" binding:"max=64"`    // 表示名
}
