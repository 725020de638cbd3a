package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/fleetgazer/pkg/metrics"
)

// MessageType WebSocket 消息类型
const (
	MsgTypeInit           = "init"            // 初始化数据（车辆列表+汇总）
	MsgTypeFleetLoaded    = "fleet_loaded"    // 车队整体重新加载
	MsgTypeVehicleUpdate  = "vehicle_update"  // 单车更新
	MsgTypeVehicleRemoved = "vehicle_removed" // 车辆被删除
	MsgTypeVehicleStale   = "vehicle_stale"   // 心跳超时
	MsgTypeError          = "error"           // 错误消息（只发给出错的客户端）
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Message WebSocket 消息结构
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// InitData 初始化数据
type InitData struct {
	Vehicles interface{} `json:"vehicles"`
	Summary  interface{} `json:"summary"`
}

// MessageHandler 处理客户端上行消息（车辆增量更新）
type MessageHandler func(ctx context.Context, raw []byte) error

// Client WebSocket 客户端
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

type envelope struct {
	client  *Client
	message []byte
}

// Hub WebSocket 连接管理中心
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	broadcast  chan []byte
	direct     chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	// 初始数据提供者回调
	getInitData func() *InitData
	// 上行消息处理回调
	onMessage MessageHandler
}

// NewHub 创建 Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		direct:     make(chan envelope, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// SetInitDataProvider 设置初始数据提供者
func (h *Hub) SetInitDataProvider(provider func() *InitData) {
	h.getInitData = provider
}

// SetMessageHandler 设置上行消息处理器，未设置时忽略客户端消息
func (h *Hub) SetMessageHandler(handler MessageHandler) {
	h.onMessage = handler
}

// Run 运行 Hub，直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.SetWSClients(total)
			h.logger.Info("WebSocket client connected", zap.String("client_id", client.id), zap.Int("total_clients", total))

			// 发送初始数据
			h.sendInitData(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.SetWSClients(total)
			h.logger.Info("WebSocket client disconnected", zap.String("client_id", client.id), zap.Int("total_clients", total))

		case env := <-h.direct:
			h.mu.RLock()
			if h.clients[env.client] {
				select {
				case env.client.send <- env.message:
				default:
				}
			}
			h.mu.RUnlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// 慢消费者，关闭连接
					h.logger.Warn("Dropping slow WebSocket client", zap.String("client_id", client.id))
					close(client.send)
					delete(h.clients, client)
				}
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.SetWSClients(total)
		}
	}
}

func (h *Hub) closeAll() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.SetWSClients(0)
}

// sendInitData 发送初始数据给新连接的客户端
func (h *Hub) sendInitData(client *Client) {
	if h.getInitData == nil {
		h.logger.Warn("No init data provider set")
		return
	}

	initData := h.getInitData()
	if initData == nil {
		h.logger.Warn("Init data provider returned nil")
		return
	}

	data, err := encode(MsgTypeInit, initData)
	if err != nil {
		h.logger.Error("Failed to marshal init data", zap.Error(err))
		return
	}

	select {
	case client.send <- data:
		h.logger.Debug("Sent init data to client", zap.String("client_id", client.id))
	default:
		h.logger.Warn("Failed to send init data, client buffer full")
	}
}

// Broadcast 广播消息给所有客户端，Hub 已停止时丢弃
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// BroadcastMessage 广播结构化消息给所有客户端
func (h *Hub) BroadcastMessage(msgType string, data interface{}) {
	jsonData, err := encode(msgType, data)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.String("type", msgType), zap.Error(err))
		return
	}

	h.Broadcast(jsonData)
}

// ClientCount 获取客户端数量
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encode(msgType string, data interface{}) ([]byte, error) {
	return json.Marshal(Message{Type: msgType, Data: data})
}

// NewClient 创建客户端
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// ID 客户端 ID
func (c *Client) ID() string { return c.id }

// Register 注册客户端，Hub 已停止时返回 false
func (c *Client) Register() bool {
	select {
	case c.hub.register <- c:
		return true
	case <-c.hub.done:
		return false
	}
}

// Unregister 注销客户端
func (c *Client) Unregister() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

// ReadPump 读取客户端消息并交给 Hub 的消息处理器
func (c *Client) ReadPump() {
	defer func() {
		c.Unregister()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("WebSocket read failed", zap.String("client_id", c.id), zap.Error(err))
			}
			break
		}
		if msgType != websocket.TextMessage || c.hub.onMessage == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		err = c.hub.onMessage(ctx, raw)
		cancel()
		if err != nil {
			c.reply(MsgTypeError, map[string]string{"error": err.Error()})
		}
	}
}

// reply 只发给当前客户端，经由 Hub 转发以避免写入已关闭的 send
func (c *Client) reply(msgType string, data interface{}) {
	msg, err := encode(msgType, data)
	if err != nil {
		return
	}
	select {
	case c.hub.direct <- envelope{client: c, message: msg}:
	case <-c.hub.done:
	}
}

// WritePump 发送消息并定期 ping
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
