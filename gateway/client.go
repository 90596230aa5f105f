package gateway

import (
	"sync"
	"time"

	"duelserver/auth"
	"duelserver/duel"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 10 * time.Second
	maxMessageSize = 8 * 1024
)

// Client はWebSocket接続1本分です。
type Client struct {
	id       duel.ConnID
	conn     *websocket.Conn
	identity auth.Identity // 読み取りゴルーチンだけが触る

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newClient(id duel.ConnID, conn *websocket.Conn, identity auth.Identity) *Client {
	return &Client{
		id:       id,
		conn:     conn,
		identity: identity,
		send:     make(chan []byte, sendBufferSize),
	}
}

// enqueue は閉じていなければ送信キューに積みます。一杯なら false。
func (c *Client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump は送信キューの中身を書き出し、定期的に Ping を送ります。
// 書き込みはこのゴルーチンだけが行います。
func (g *Gateway) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				g.logger.Info("Write failed", zap.String("conn", string(c.id)), zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				g.logger.Info("Error sending ping", zap.String("conn", string(c.id)), zap.Error(err))
				return
			}
		}
	}
}

// readLoop は受信メッセージを解釈してエンジンに渡します。
// 抜けるときに接続を閉じ、エンジンに切断を伝えます。
func (g *Gateway) readLoop(c *Client) {
	defer func() {
		g.hub.unregister(c)
		g.engine.Disconnect(c.id)
		c.conn.Close()
		g.logger.Info("Client removed", zap.String("conn", string(c.id)), zap.String("playerID", c.identity.PlayerID))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	// Pong を受け取ったら読み取りデッドラインを延長
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				g.logger.Error("WebSocket error", zap.String("conn", string(c.id)), zap.Error(err))
			}
			return
		}
		g.handleMessage(c, message)
	}
}
