package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// wsURL converts an http:// test server URL to ws://.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func wsDescriptor(srv *httptest.Server) ServerDescriptor {
	return ServerDescriptor{
		Name:        "seo-data",
		Endpoints:   map[TransportType]string{TransportWebSocket: wsURL(srv)},
		Auth:        AuthDescriptor{Strategy: AuthJWT, Secret: "ws-secret"},
		Timeout:     2 * time.Second,
		CostPerCall: 0.02,
	}
}

// ---------------------------------------------------------------------------
// Tests: config
// ---------------------------------------------------------------------------

func TestDefaultWSTransportConfig(t *testing.T) {
	cfg := DefaultWSTransportConfig()
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, []string{"mcp"}, cfg.Subprotocols)
	assert.Equal(t, int64(maxReplyBytes), cfg.ReadLimit)
}

func TestNewWebSocketTransportWithConfig_AppliesDefaults(t *testing.T) {
	tr := NewWebSocketTransportWithConfig("ws://example.com", nil, WSTransportConfig{Subprotocols: []string{"custom"}}, nil)

	require.NotNil(t, tr)
	assert.Equal(t, 10*time.Second, tr.config.HandshakeTimeout)
	assert.Equal(t, []string{"custom"}, tr.config.Subprotocols)
	assert.Equal(t, WSStateDisconnected, tr.State())
}

// ---------------------------------------------------------------------------
// Tests: WSClient against the reference server
// ---------------------------------------------------------------------------

func TestWSClient_HandshakeAndExecute(t *testing.T) {
	rs, srv := newTestResourceServer(t, WithServerAuth(AuthDescriptor{Strategy: AuthJWT, Secret: "ws-secret"}))
	c := NewWSClient(wsDescriptor(srv), ClientOptions{Identity: testIdentity, Logger: zap.NewNop()})
	ctx := context.Background()

	require.True(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Disconnect(ctx) })
	assert.True(t, c.IsConnected())
	assert.Equal(t, int64(1), rs.Handshakes())

	q := NewQuery(MethodGet, ResourceSEOData).WithResourceID("example.org")
	resp, err := c.Execute(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, q.RequestID, resp.RequestID)
	assert.Equal(t, "seo-data", resp.DataSource)
	assert.InDelta(t, 0.02, resp.Cost, 1e-9)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "example.org", data["domain"])
	assert.Equal(t, "lead_qualification", data["agent"])

	assert.True(t, c.HealthCheck(ctx))
}

func TestWSClient_ConcurrentCallsAreCorrelated(t *testing.T) {
	_, srv := newTestResourceServer(t)
	d := wsDescriptor(srv)
	d.Auth = AuthDescriptor{}
	c := NewWSClient(d, ClientOptions{Identity: testIdentity})
	ctx := context.Background()
	require.True(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Disconnect(ctx) })

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "site-" + string(rune('a'+i))
			q := NewQuery(MethodGet, ResourceSEOData).WithResourceID(id)
			resp, err := c.Execute(ctx, q)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, q.RequestID, resp.RequestID)
			data, _ := resp.Data.(map[string]any)
			assert.Equal(t, id, data["domain"])
		}()
	}
	wg.Wait()
}

func TestWSClient_ServerErrorIsErrorResponse(t *testing.T) {
	rs, srv := newTestResourceServer(t)
	rs.FailWith(ResourceSEOData, http.StatusTooManyRequests, "quota exhausted")
	d := wsDescriptor(srv)
	d.Auth = AuthDescriptor{}

	c := NewWSClient(d, ClientOptions{Identity: testIdentity})
	ctx := context.Background()
	require.True(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Disconnect(ctx) })

	resp, err := c.Execute(ctx, NewQuery(MethodGet, ResourceSEOData))
	require.NoError(t, err)
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "429", resp.ErrorCode)
	assert.Equal(t, "quota exhausted", resp.ErrorMessage)
	assert.Nil(t, resp.Data)
}

func TestWSClient_ConnectRejectedByAuth(t *testing.T) {
	_, srv := newTestResourceServer(t, WithServerAuth(AuthDescriptor{Strategy: AuthJWT, Secret: "server-secret"}))
	c := NewWSClient(wsDescriptor(srv), ClientOptions{Identity: testIdentity})

	assert.False(t, c.Connect(context.Background()))
	assert.False(t, c.IsConnected())
}

func TestWSClient_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{"mcp"}})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
		body, _ := json.Marshal(wsMessage{Type: wsTypeHandshake, Status: "rejected", ErrorMessage: "unknown agent"})
		_ = conn.Write(r.Context(), websocket.MessageText, body)
	}))
	t.Cleanup(srv.Close)

	d := ServerDescriptor{Name: "strict", Endpoints: map[TransportType]string{
		TransportWebSocket: "ws" + strings.TrimPrefix(srv.URL, "http"),
	}}
	c := NewWSClient(d, ClientOptions{Identity: testIdentity})
	assert.False(t, c.Connect(context.Background()))
}

func TestWSClient_ExecuteBeforeConnect(t *testing.T) {
	c := NewWSClient(ServerDescriptor{Name: "x"}, ClientOptions{})
	_, err := c.Execute(context.Background(), NewQuery(MethodGet, ResourceSEOData))
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, c.HealthCheck(context.Background()))
}

func TestWSClient_ConnectionLossMarksDisconnected(t *testing.T) {
	drop := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{"mcp"}})
		if err != nil {
			return
		}
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
		body, _ := json.Marshal(wsMessage{Type: wsTypeHandshake, Status: "connected"})
		_ = conn.Write(r.Context(), websocket.MessageText, body)
		<-drop
		_ = conn.Close(websocket.StatusGoingAway, "restart")
	}))
	t.Cleanup(srv.Close)

	d := ServerDescriptor{Name: "flaky", Endpoints: map[TransportType]string{
		TransportWebSocket: "ws" + strings.TrimPrefix(srv.URL, "http"),
	}}
	c := NewWSClient(d, ClientOptions{Identity: testIdentity})
	require.True(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())

	close(drop)

	assert.Eventually(t, func() bool { return !c.IsConnected() }, 2*time.Second, 10*time.Millisecond)
	_, err := c.Execute(context.Background(), NewQuery(MethodGet, ResourceSEOData))
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, c.Disconnect(context.Background()))
}

func TestWebSocketTransport_StateCallbacks(t *testing.T) {
	_, srv := newTestResourceServer(t)

	var mu sync.Mutex
	var states []WSState
	tr := NewWebSocketTransport(wsURL(srv), nil, nil)
	tr.OnStateChange(func(s WSState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NoError(t, tr.Connect(context.Background(), wsMessage{Type: wsTypeHandshake, AgentID: "a"}))
	require.NoError(t, tr.Ping(context.Background()))
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, err := tr.Call(context.Background(), wsMessage{Type: wsTypePing})
	assert.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []WSState{WSStateConnecting, WSStateConnected, WSStateClosed}, states)
}
