package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careerResume/internal/auth"
	"careerResume/internal/auth/authtest"
)

type fakeNotifications struct {
	mu       sync.Mutex
	channels map[string]chan *redis.Message
	closed   chan string
}

func newFakeNotifications() *fakeNotifications {
	return &fakeNotifications{channels: map[string]chan *redis.Message{}, closed: make(chan string, 4)}
}

func (f *fakeNotifications) Subscribe(_ context.Context, channel string) (<-chan *redis.Message, func() error, error) {
	ch := make(chan *redis.Message, 4)
	f.mu.Lock()
	f.channels[channel] = ch
	f.mu.Unlock()
	return ch, func() error {
		f.closed <- channel
		return nil
	}, nil
}

func (f *fakeNotifications) publish(t *testing.T, channel, payload string) {
	t.Helper()
	f.mu.Lock()
	ch, ok := f.channels[channel]
	f.mu.Unlock()
	require.True(t, ok, "no subscriber on %s", channel)
	ch <- &redis.Message{Channel: channel, Payload: payload}
}

func newWsTestServer(t *testing.T) (*httptest.Server, *fakeNotifications, *auth.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens := authtest.NewService(t, time.Minute, time.Hour)
	source := newFakeNotifications()

	router := gin.New()
	router.GET("/v1/ws", newWsHandler(source, tokens, nil).HandleConnection)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, source, tokens
}

func dialWs(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWsForwardsNotifications(t *testing.T) {
	server, source, tokens := newWsTestServer(t)
	pair, err := tokens.GenerateTokenPair(7, false)
	require.NoError(t, err)

	conn := dialWs(t, server)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": pair.AccessToken}))

	var ack map[string]string
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack["type"])

	source.publish(t, "user_notify:7", `{"event":"certificate_verification","status":"verified"}`)
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"certificate_verification","status":"verified"}`, string(payload))

	require.NoError(t, conn.Close())
	select {
	case channel := <-source.closed:
		assert.Equal(t, "user_notify:7", channel)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription was not released")
	}
}

func TestWsRejectsBadAuth(t *testing.T) {
	server, _, tokens := newWsTestServer(t)
	pair, err := tokens.GenerateTokenPair(7, true)
	require.NoError(t, err)

	for name, msg := range map[string]string{
		"not json":        "hello",
		"wrong type":      `{"type":"ping","token":"x"}`,
		"refresh token":   `{"type":"auth","token":"` + pair.RefreshToken + `"}`,
		"must change pwd": `{"type":"auth","token":"` + pair.AccessToken + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			conn := dialWs(t, server)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
			_, _, err := conn.ReadMessage()
			assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://api.example/v1/ws", nil)
	assert.True(t, originAllowed(req, nil), "no origin header")

	req.Header.Set("Origin", "http://api.example")
	assert.True(t, originAllowed(req, nil))
	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, originAllowed(req, nil))
	assert.True(t, originAllowed(req, []string{"http://evil.example"}))
	assert.False(t, originAllowed(req, []string{"http://app.example"}))
}
