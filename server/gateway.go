package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/MuxYang/ncmbot/core/errs"
	"github.com/MuxYang/ncmbot/core/player"
	"github.com/MuxYang/ncmbot/core/session"
	"github.com/MuxYang/ncmbot/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// 点歌命令前缀，网关收到的普通消息先喂给会话，再按前缀识别命令
var commandPrefixes = []string{"点歌 ", "点歌", "play "}

// Gateway 聊天平台适配器接入的websocket网关
// 每个连接代表一个平台适配器；投递按请求者路由回它所来的连接
type Gateway struct {
	secret string
	svc    *player.Service

	mu     sync.Mutex
	conns  map[string]*gatewayConn // 连接ID → 连接
	routes map[string]*gatewayConn // 请求者键 → 最近一次出现的连接
}

type gatewayConn struct {
	id     string
	ws     *websocket.Conn
	inline bool // 适配器访问不到本地路径，音频走base64内联
	mu     sync.Mutex
}

// NewGateway 创建网关
// secret 非空时连接必须带有效的HS256令牌（token 查询参数或 Authorization: Bearer）
func NewGateway(secret string) *Gateway {
	return &Gateway{
		secret: secret,
		conns:  make(map[string]*gatewayConn),
		routes: make(map[string]*gatewayConn),
	}
}

// Bind 注入点歌服务（网关和服务互相引用，后于服务构造）
func (g *Gateway) Bind(svc *player.Service) {
	g.svc = svc
}

// inboundFrame 适配器发来的帧
type inboundFrame struct {
	Type     string `json:"type"` // message
	Platform string `json:"platform"`
	Channel  string `json:"channel"`
	User     string `json:"user"`
	Text     string `json:"text"`
	Format   string `json:"format,omitempty"` // 本次点歌强制的输出格式
}

// outboundFrame 发回适配器的帧
type outboundFrame struct {
	Type     string `json:"type"` // text / audio
	Platform string `json:"platform"`
	Channel  string `json:"channel"`
	User     string `json:"user"`
	Text     string `json:"text,omitempty"`
	Title    string `json:"title,omitempty"`
	Path     string `json:"path,omitempty"`
	URL      string `json:"url,omitempty"`
	Base64   string `json:"base64,omitempty"`
	Format   string `json:"format,omitempty"`
}

// HandleWS 接入一个平台适配器连接
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.authorize(r); err != nil {
		logger.Warn("[Gateway] 鉴权失败", logger.ErrorField(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("[Gateway] websocket升级失败", logger.ErrorField(err))
		return
	}

	conn := &gatewayConn{
		id:     uuid.NewString(),
		ws:     ws,
		inline: r.URL.Query().Get("inline") == "1",
	}

	g.mu.Lock()
	g.conns[conn.id] = conn
	g.mu.Unlock()

	logger.Info("[Gateway] 适配器已连接",
		logger.String("connId", conn.id),
		logger.Bool("inline", conn.inline))

	defer func() {
		g.mu.Lock()
		delete(g.conns, conn.id)
		for key, c := range g.routes {
			if c == conn {
				delete(g.routes, key)
			}
		}
		g.mu.Unlock()
		ws.Close()
		logger.Info("[Gateway] 适配器断开", logger.String("connId", conn.id))
	}()

	for {
		var frame inboundFrame
		if err := ws.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("[Gateway] 读取消息失败", logger.ErrorField(err))
			}
			return
		}
		if frame.Type != "message" {
			continue
		}
		// 每条消息独立处理，一个请求者的慢下载不能堵住同连接上的其他人；
		// 写出由 gatewayConn.mu 串行化
		go g.handleMessage(r.Context(), conn, frame)
	}
}

// authorize 校验网关令牌，secret未配置时直接放行
func (g *Gateway) authorize(r *http.Request) error {
	if g.secret == "" {
		return nil
	}

	raw := r.URL.Query().Get("token")
	if raw == "" {
		raw = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if raw == "" {
		return errors.New("缺少令牌")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("签名算法不支持: %v", t.Header["alg"])
		}
		return []byte(g.secret), nil
	})
	if err != nil {
		return fmt.Errorf("令牌校验失败: %w", err)
	}
	if !token.Valid {
		return errors.New("令牌无效")
	}
	return nil
}

// handleMessage 处理一条聊天消息
// 先喂给等待中的会话（数字选择），没消费再按命令前缀识别点歌
func (g *Gateway) handleMessage(ctx context.Context, conn *gatewayConn, frame inboundFrame) {
	key := session.Key{Platform: frame.Platform, Channel: frame.Channel, User: frame.User}

	g.mu.Lock()
	g.routes[key.String()] = conn
	g.mu.Unlock()

	consumed, err := g.svc.HandleReply(ctx, key, frame.Text)
	if err != nil {
		logger.Error("[Gateway] 处理选择失败", logger.ErrorField(err))
		return
	}
	if consumed {
		return
	}

	keyword, ok := parseCommand(frame.Text)
	if !ok {
		return
	}

	if err := g.svc.Request(ctx, key, keyword, frame.Format); err != nil {
		// 限流拒绝按设计静默，其余错误已由服务投递过用户提示
		if !errors.Is(err, errs.ErrRateLimited) {
			logger.Error("[Gateway] 点歌失败", logger.ErrorField(err))
		}
	}
}

// parseCommand 识别点歌命令并取出关键词
func parseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	for _, prefix := range commandPrefixes {
		if strings.HasPrefix(text, prefix) {
			keyword := strings.TrimSpace(strings.TrimPrefix(text, prefix))
			if keyword != "" {
				return keyword, true
			}
		}
	}
	return "", false
}

// DeliverText 把文字提示发回请求者所在的连接
func (g *Gateway) DeliverText(ctx context.Context, key session.Key, text string) error {
	conn, err := g.route(key)
	if err != nil {
		return err
	}
	return conn.writeJSON(outboundFrame{
		Type:     "text",
		Platform: key.Platform,
		Channel:  key.Channel,
		User:     key.User,
		Text:     text,
	})
}

// DeliverAudio 把音频内容发回请求者所在的连接
// 适配器声明了inline时附带base64内联数据
func (g *Gateway) DeliverAudio(ctx context.Context, key session.Key, delivery player.Delivery) error {
	conn, err := g.route(key)
	if err != nil {
		return err
	}

	frame := outboundFrame{
		Type:     "audio",
		Platform: key.Platform,
		Channel:  key.Channel,
		User:     key.User,
		Title:    delivery.Title,
		Path:     delivery.Path,
		URL:      delivery.URL,
		Format:   delivery.Format,
	}

	if conn.inline && delivery.Path != "" {
		encoded, err := player.EncodeFileBase64(delivery.Path)
		if err != nil {
			return fmt.Errorf("内联编码失败: %w", err)
		}
		frame.Base64 = encoded
	}

	return conn.writeJSON(frame)
}

func (g *Gateway) route(key session.Key) (*gatewayConn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	conn, ok := g.routes[key.String()]
	if !ok {
		return nil, fmt.Errorf("请求者 %s 没有在线的适配器连接", key.String())
	}
	return conn, nil
}

func (c *gatewayConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}
