package gateway

import (
	"encoding/json"
	"sync"

	"duelserver/duel"
	"duelserver/models"

	"go.uber.org/zap"
)

const sendBufferSize = 64

// Hub は接続中のクライアント表です。duel.Notifier としてエンジンから呼ばれます。
type Hub struct {
	mu      sync.RWMutex
	clients map[duel.ConnID]*Client
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{clients: make(map[duel.ConnID]*Client), logger: logger}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

// unregister はクライアントを表から外して送信キューを閉じます。
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.id]; ok && cur == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
	c.close()
}

// Send はイベントを接続の送信キューに積みます。キューが一杯なら捨ててログを残します。
// エンジンのロック中に呼ばれるのでブロックしません。
func (h *Hub) Send(conn duel.ConnID, event string, payload interface{}) {
	h.mu.RLock()
	c, ok := h.clients[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}
	msg, err := json.Marshal(models.OutboundMessage{Type: event, Data: payload})
	if err != nil {
		h.logger.Error("Failed to encode message", zap.String("event", event), zap.Error(err))
		return
	}
	if !c.enqueue(msg) {
		h.logger.Warn("Send buffer full, message dropped",
			zap.String("conn", string(conn)),
			zap.String("event", event),
		)
	}
}

// Count は接続数です。
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll は全クライアントに切断を送ります。シャットダウン時に使います。
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.close()
	}
}
