package models

import "encoding/json"

// Envelope はWebSocketでやり取りするメッセージの外側の形です。
// 受信時は Data を生のまま保持し、種別ごとの構造体に後からデコードします。
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// OutboundMessage はクライアントへ送るメッセージです。
type OutboundMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}
