// Package gateway は WebSocket でクライアントと対戦エンジンをつなぎます。
package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"duelserver/auth"
	"duelserver/duel"
	"duelserver/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Engine はゲートウェイが使う対戦エンジンの操作です。
type Engine interface {
	Connect(conn duel.ConnID, playerID, name string)
	Identify(conn duel.ConnID, playerID, name string)
	Disconnect(conn duel.ConnID)
	TeamOptions(mode models.Mode) []string
	JoinQueue(conn duel.ConnID, preference string)
	CancelQueue(conn duel.ConnID)
	CreateRoom(conn duel.ConnID, mode string) (string, string, bool)
	JoinRoom(conn duel.ConnID, code string)
	SignalReady(conn duel.ConnID, roomID string)
	SubmitAnswer(conn duel.ConnID, roomID string, answer duel.Answer)
	LeaveRoom(conn duel.ConnID, roomID string)
	Rejoin(conn duel.ConnID, roomID, playerID string)
	RoomState(conn duel.ConnID, roomID string)
	RequestRematch(conn duel.ConnID, roomID string)
}

type HelloAckPayload struct {
	ConnID   string `json:"connId"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Token    string `json:"token"`
}

// Gateway は接続のアップグレードと受信メッセージの振り分けを行います。
type Gateway struct {
	engine   Engine
	hub      *Hub
	issuer   *auth.Issuer
	upgrader websocket.Upgrader
	logger   *zap.Logger
	newID    func() string
}

func New(engine Engine, hub *Hub, issuer *auth.Issuer, allowedOrigins []string, logger *zap.Logger) *Gateway {
	return &Gateway{
		engine: engine,
		hub:    hub,
		issuer: issuer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		logger: logger,
		newID:  uuid.NewString,
	}
}

// checkOrigin は許可リストにある Origin だけを通します。
// リストが空か "*" を含む場合と、Origin ヘッダーの無いクライアントは通します。
func checkOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(set) == 0 || set["*"] || origin == "" {
			return true
		}
		return set[strings.TrimRight(origin, "/")]
	}
}

// ServeWS は gin のハンドラです。
func (g *Gateway) ServeWS(c *gin.Context) {
	g.HandleConnections(c.Writer, c.Request)
}

// HandleConnections は WebSocket 接続へアップグレードし、読み書きのゴルーチンを起動します。
// ?token= か Authorization ヘッダーの識別トークンでプレイヤーを特定します。
func (g *Gateway) HandleConnections(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("Authorization")
	}
	identity, _, err := g.issuer.Resolve(token, r.URL.Query().Get("name"))
	if err != nil {
		g.logger.Error("Failed to resolve identity", zap.Error(err))
		http.Error(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade が応答を書き込み済み
		g.logger.Error("Error upgrading WebSocket", zap.Error(err))
		return
	}

	client := newClient(duel.ConnID(g.newID()), conn, identity)
	g.hub.register(client)
	g.engine.Connect(client.id, identity.PlayerID, identity.Name)
	g.sendMeta(client)

	go g.writePump(client)
	go g.readLoop(client)
}

func (g *Gateway) sendMeta(c *Client) {
	g.hub.Send(c.id, duel.EventMeta, duel.MetaPayload{Teams: g.engine.TeamOptions(models.ModeAll)})
}

// handleMessage は1メッセージを解釈して対応する操作を呼びます。
// 不正なメッセージはログに残して捨てます。
func (g *Gateway) handleMessage(c *Client, message []byte) {
	var env models.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		g.logger.Info("Error decoding message", zap.String("conn", string(c.id)), zap.Error(err))
		return
	}
	intent, err := decodeIntent(env)
	if err != nil {
		g.logger.Info("Rejected message", zap.String("conn", string(c.id)), zap.String("type", env.Type), zap.Error(err))
		return
	}
	g.dispatch(c, intent)
}

func (g *Gateway) dispatch(c *Client, intent interface{}) {
	switch in := intent.(type) {
	case *HelloIntent:
		g.hello(c, in)
	case *GetMetaIntent:
		g.sendMeta(c)
	case *JoinQueueIntent:
		g.engine.JoinQueue(c.id, in.preference())
	case *CancelQueueIntent:
		g.engine.CancelQueue(c.id)
	case *CreateRoomIntent:
		g.engine.CreateRoom(c.id, in.Mode)
	case *JoinRoomIntent:
		g.engine.JoinRoom(c.id, in.Code)
	case *SubmitAnswerIntent:
		g.engine.SubmitAnswer(c.id, in.RoomID, in.answer())
	case *LeaveRoomIntent:
		g.engine.LeaveRoom(c.id, in.RoomID)
	case *RejoinIntent:
		g.rejoin(c, in)
	case *RematchIntent:
		g.engine.RequestRematch(c.id, in.roomID())
	case *ReadyIntent:
		g.engine.SignalReady(c.id, in.RoomID)
	case *RoomStateIntent:
		g.engine.RoomState(c.id, in.RoomID)
	}
}

// hello は表示名と識別トークンを受け取り、確定した識別情報を返します。
// トークンが省略されたら接続時のものを使います。
func (g *Gateway) hello(c *Client, in *HelloIntent) {
	token := in.Token
	if token == "" {
		token = c.identity.Token
	}
	identity, _, err := g.issuer.Resolve(token, in.Name)
	if err != nil {
		g.logger.Error("Failed to resolve identity", zap.String("conn", string(c.id)), zap.Error(err))
		return
	}
	c.identity = identity
	g.engine.Identify(c.id, identity.PlayerID, identity.Name)
	g.hub.Send(c.id, EventHelloAck, HelloAckPayload{
		ConnID:   string(c.id),
		PlayerID: identity.PlayerID,
		Name:     identity.Name,
		Token:    identity.Token,
	})
}

// rejoin はトークンがあれば検証してその識別子で元の枠へ戻します。
func (g *Gateway) rejoin(c *Client, in *RejoinIntent) {
	playerID := ""
	if in.Token != "" {
		claims, err := g.issuer.Parse(in.Token)
		if err != nil {
			g.logger.Info("Rejoin with invalid token", zap.String("conn", string(c.id)), zap.String("roomID", in.RoomID))
			return
		}
		playerID = claims.PlayerID
	}
	g.engine.Rejoin(c.id, in.RoomID, playerID)
}
