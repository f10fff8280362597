package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"careerResume/internal/api/middleware"
	"careerResume/internal/auth"
	"careerResume/internal/tasks"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
)

// notificationSource 订阅某个频道的消息；unsubscribe 释放订阅。
type notificationSource interface {
	Subscribe(ctx context.Context, channel string) (messages <-chan *redis.Message, unsubscribe func() error, err error)
}

type redisNotifications struct {
	client *redis.Client
}

func (r redisNotifications) Subscribe(ctx context.Context, channel string) (<-chan *redis.Message, func() error, error) {
	pubsub := r.client.Subscribe(ctx, channel)
	// 等待订阅确认，避免在订阅生效前漏掉消息。
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return pubsub.Channel(), pubsub.Close, nil
}

// WsHandler 在浏览器与 Redis 通知频道之间转发证书校验结果。
// 连接建立后客户端须在 wsAuthTimeout 内发送 {"type":"auth","token":"..."}。
type WsHandler struct {
	tokens   *auth.AuthService
	source   notificationSource
	upgrader websocket.Upgrader
}

// NewWsHandler 构造 WebSocket 处理器；allowedOrigins 为空时只允许同源。
func NewWsHandler(redisClient *redis.Client, tokens *auth.AuthService, allowedOrigins []string) *WsHandler {
	return newWsHandler(redisNotifications{client: redisClient}, tokens, allowedOrigins)
}

func newWsHandler(source notificationSource, tokens *auth.AuthService, allowedOrigins []string) *WsHandler {
	return &WsHandler{
		tokens: tokens,
		source: source,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r, allowedOrigins)
			},
		},
	}
}

func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(allowed) > 0 {
		return slices.Contains(allowed, origin)
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// wsClosed 携带发给客户端的关闭码。
type wsClosed struct {
	code   int
	reason string
	err    error
}

func (e *wsClosed) Error() string { return fmt.Sprintf("%s: %v", e.reason, e.err) }
func (e *wsClosed) Unwrap() error { return e.err }

// HandleConnection 升级连接、鉴权，然后持续转发通知直到任一端断开。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	log := middleware.LoggerFromContext(c).With(slog.String("client_ip", c.ClientIP()))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	userID, err := h.authenticate(conn)
	if err != nil {
		closeWith(conn, err)
		log.Info("websocket authentication failed", slog.Any("error", err))
		return
	}
	log = log.With(slog.Uint64("user_id", uint64(userID)))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	channel := tasks.NotifyChannel(userID)
	messages, unsubscribe, err := h.source.Subscribe(ctx, channel)
	if err != nil {
		closeWith(conn, &wsClosed{code: websocket.CloseInternalServerErr, reason: "subscribe failed", err: err})
		log.Error("subscribe notifications failed", slog.Any("error", err))
		return
	}
	defer func() { _ = unsubscribe() }()

	if err := writeJSON(conn, gin.H{"type": "subscribed"}); err != nil {
		return
	}

	// 客户端不再发送业务消息，读循环只用于感知断开和处理 pong。
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = h.forward(ctx, conn, messages)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		log.Info("websocket connection closed")
	default:
		log.Info("websocket connection closed", slog.Any("error", err))
	}
}

func (h *WsHandler) authenticate(conn *websocket.Conn) (uint, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, payload, err := conn.ReadMessage()
	if err != nil {
		return 0, &wsClosed{code: websocket.ClosePolicyViolation, reason: "auth required", err: err}
	}

	var msg wsAuthMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Type != "auth" || msg.Token == "" {
		return 0, &wsClosed{code: websocket.ClosePolicyViolation, reason: "invalid auth payload", err: err}
	}

	claims, err := h.tokens.ValidateTokenOfType(msg.Token, auth.TokenTypeAccess)
	if err != nil {
		return 0, &wsClosed{code: websocket.ClosePolicyViolation, reason: "unauthorized", err: err}
	}
	if claims.MustChangePassword {
		return 0, &wsClosed{code: websocket.ClosePolicyViolation, reason: "password change required", err: errors.New("must change password")}
	}
	return claims.UserID, nil
}

func (h *WsHandler) forward(ctx context.Context, conn *websocket.Conn, messages <-chan *redis.Message) error {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errors.New("notification channel closed")
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return fmt.Errorf("write message: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

func closeWith(conn *websocket.Conn, err error) {
	code, reason := websocket.CloseInternalServerErr, "internal error"
	var closed *wsClosed
	if errors.As(err, &closed) {
		code, reason = closed.code, closed.reason
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteTimeout))
}
