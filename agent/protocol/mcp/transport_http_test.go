package mcp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Andrew821667/ai-seo-architects/internal/ctxkeys"
)

// newTestResourceServer starts a reference server that serves seo_data.
func newTestResourceServer(t *testing.T, opts ...ServerOption) (*ResourceServer, *httptest.Server) {
	t.Helper()
	rs := NewResourceServer("seo-data", opts...)
	rs.Handle(ResourceSEOData, func(_ context.Context, req ServerRequest) (ServerReply, error) {
		return ServerReply{
			Data:     map[string]any{"domain": req.ResourceID, "score": 87.0, "agent": req.Caller.AgentID},
			Metadata: map[string]any{"confidence": 0.95},
		}, nil
	})
	rs.Handle(ResourceKeywordData, func(_ context.Context, req ServerRequest) (ServerReply, error) {
		return ServerReply{Data: []any{"seo audit"}, Partial: true}, nil
	})
	srv := httptest.NewServer(rs.Handler())
	t.Cleanup(srv.Close)
	return rs, srv
}

func httpDescriptor(base string) ServerDescriptor {
	return ServerDescriptor{
		Name:        "seo-data",
		Version:     "v1",
		Endpoints:   map[TransportType]string{TransportHTTP: base},
		Auth:        AuthDescriptor{Strategy: AuthBearer, Secret: "tok"},
		Timeout:     2 * time.Second,
		CostPerCall: 0.01,
		Capabilities: []Capability{
			{ResourceTypes: []ResourceType{ResourceSEOData, ResourceKeywordData}, Methods: []Method{MethodGet}},
		},
	}
}

func TestHTTPClient_ExecuteBeforeConnect(t *testing.T) {
	c := NewHTTPClient(httpDescriptor("http://127.0.0.1:1"), ClientOptions{Identity: testIdentity})

	resp, err := c.Execute(context.Background(), NewQuery(MethodGet, ResourceSEOData))
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestHTTPClient_ExecuteSuccess(t *testing.T) {
	rs, srv := newTestResourceServer(t, WithServerAuth(AuthDescriptor{Strategy: AuthBearer, Secret: "tok"}))
	c := NewHTTPClient(httpDescriptor(srv.URL), ClientOptions{Identity: testIdentity})
	ctx := context.Background()

	require.True(t, c.Connect(ctx))
	assert.True(t, c.IsConnected())

	q := NewQuery(MethodGet, ResourceSEOData).WithResourceID("example.com")
	resp, err := c.Execute(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, q.RequestID, resp.RequestID)
	assert.Equal(t, "seo-data", resp.DataSource)
	assert.InDelta(t, 0.01, resp.Cost, 1e-9)
	assert.GreaterOrEqual(t, resp.ProcessingTimeMS, 0.0)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "example.com", data["domain"])
	assert.Equal(t, "lead_qualification", data["agent"])

	conf, ok := resp.Confidence()
	require.True(t, ok)
	assert.InDelta(t, 0.95, conf, 1e-9)

	h := rs.LastHeaders()
	assert.Equal(t, "Bearer tok", h.Get("Authorization"))
	assert.Equal(t, "lead_qualification", h.Get("User-Agent"))
	assert.Equal(t, q.RequestID, h.Get("X-Request-ID"))
}

func TestHTTPClient_PartialReply(t *testing.T) {
	_, srv := newTestResourceServer(t)
	c := NewHTTPClient(httpDescriptor(srv.URL), ClientOptions{Identity: testIdentity})
	require.True(t, c.Connect(context.Background()))

	resp, err := c.Execute(context.Background(), NewQuery(MethodGet, ResourceKeywordData))
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, resp.Status)
	assert.True(t, resp.IsSuccess())
}

func TestHTTPClient_NonOKStatusIsErrorResponse(t *testing.T) {
	rs, srv := newTestResourceServer(t)
	rs.FailWith(ResourceSEOData, http.StatusServiceUnavailable, "maintenance window")

	c := NewHTTPClient(httpDescriptor(srv.URL), ClientOptions{Identity: testIdentity})
	require.True(t, c.Connect(context.Background()))

	resp, err := c.Execute(context.Background(), NewQuery(MethodGet, ResourceSEOData))
	require.NoError(t, err)
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "503", resp.ErrorCode)
	assert.Equal(t, "maintenance window", resp.ErrorMessage)
	assert.Nil(t, resp.Data)
	assert.Zero(t, resp.Cost)
}

func TestHTTPClient_AuthRejected(t *testing.T) {
	_, srv := newTestResourceServer(t, WithServerAuth(AuthDescriptor{Strategy: AuthAPIKey, Secret: "right"}))
	d := httpDescriptor(srv.URL)
	d.Auth = AuthDescriptor{Strategy: AuthAPIKey, Secret: "wrong"}

	c := NewHTTPClient(d, ClientOptions{Identity: testIdentity})
	require.True(t, c.Connect(context.Background()))

	resp, err := c.Execute(context.Background(), NewQuery(MethodGet, ResourceSEOData))
	require.NoError(t, err)
	assert.Equal(t, "401", resp.ErrorCode)
}

func TestHTTPClient_TimeoutIsErrorResponse(t *testing.T) {
	rs, srv := newTestResourceServer(t)
	rs.SetDelay(500 * time.Millisecond)

	d := httpDescriptor(srv.URL)
	d.Timeout = 50 * time.Millisecond
	c := NewHTTPClient(d, ClientOptions{Identity: testIdentity})
	require.True(t, c.Connect(context.Background()))

	resp, err := c.Execute(context.Background(), NewQuery(MethodGet, ResourceSEOData))
	require.NoError(t, err)
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, CodeTimeout, resp.ErrorCode)
}

func TestHTTPClient_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := NewHTTPClient(httpDescriptor(base), ClientOptions{Identity: testIdentity})
	// no health URL configured: connect only opens the pool
	require.True(t, c.Connect(context.Background()))

	resp, err := c.Execute(context.Background(), NewQuery(MethodGet, ResourceSEOData))
	require.NoError(t, err)
	assert.Equal(t, CodeTransport, resp.ErrorCode)
	assert.False(t, c.HealthCheck(context.Background()))
}

func TestHTTPClient_ConnectProbesHealth(t *testing.T) {
	rs, srv := newTestResourceServer(t)
	d := httpDescriptor(srv.URL)
	d.HealthCheckURL = srv.URL + "/health"

	rs.SetHealthy(false)
	c := NewHTTPClient(d, ClientOptions{Identity: testIdentity})
	assert.False(t, c.Connect(context.Background()))
	assert.False(t, c.IsConnected())

	rs.SetHealthy(true)
	assert.True(t, c.Connect(context.Background()))
	assert.True(t, c.HealthCheck(context.Background()))
}

func TestHTTPClient_ConnectWithoutEndpoint(t *testing.T) {
	d := httpDescriptor("")
	d.Endpoints = map[TransportType]string{TransportWebSocket: "ws://x"}
	c := NewHTTPClient(d, ClientOptions{})
	assert.False(t, c.Connect(context.Background()))
}

func TestHTTPClient_ConnectHealthProbeIsBounded(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	d := httpDescriptor(srv.URL)
	d.HealthCheckURL = srv.URL + "/health"
	d.Timeout = 100 * time.Millisecond
	c := NewHTTPClient(d, ClientOptions{Identity: testIdentity})

	done := make(chan bool, 1)
	go func() { done <- c.Connect(context.Background()) }()

	select {
	case ok := <-done:
		assert.False(t, ok)
		assert.False(t, c.IsConnected())
	case <-time.After(3 * time.Second):
		t.Fatal("Connect did not respect the call timeout")
	}
}

func TestHTTPClient_Disconnect(t *testing.T) {
	_, srv := newTestResourceServer(t)
	c := NewHTTPClient(httpDescriptor(srv.URL), ClientOptions{Identity: testIdentity})
	require.True(t, c.Connect(context.Background()))

	require.NoError(t, c.Disconnect(context.Background()))
	assert.False(t, c.IsConnected())
	assert.False(t, c.HealthCheck(context.Background()))
	require.NoError(t, c.Disconnect(context.Background()))

	_, err := c.Execute(context.Background(), NewQuery(MethodGet, ResourceSEOData))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestHTTPClient_RateLimitRespectsDeadline(t *testing.T) {
	_, srv := newTestResourceServer(t)
	d := httpDescriptor(srv.URL)
	d.Timeout = 100 * time.Millisecond
	d.Capabilities[0].RateLimit = 1 // one call per minute

	c := NewHTTPClient(d, ClientOptions{Identity: testIdentity})
	require.True(t, c.Connect(context.Background()))

	first, err := c.Execute(context.Background(), NewQuery(MethodGet, ResourceSEOData))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, first.Status)

	second, err := c.Execute(context.Background(), NewQuery(MethodGet, ResourceSEOData))
	require.NoError(t, err)
	assert.Equal(t, CodeRateLimited, second.ErrorCode)
}

func TestNewClient_UnknownTransport(t *testing.T) {
	_, err := NewClient(httpDescriptor("http://x"), "grpc", ClientOptions{})
	assert.Error(t, err)

	c, err := NewClient(httpDescriptor("http://x"), TransportHTTP, ClientOptions{})
	require.NoError(t, err)
	assert.Equal(t, TransportHTTP, c.Transport())
	assert.Equal(t, "seo-data", c.Descriptor().Name)
}

func TestHTTPClient_PropagatesRunContext(t *testing.T) {
	rs := NewResourceServer("seo-data")
	got := make(chan map[string]any, 1)
	rs.Handle(ResourceSEOData, func(_ context.Context, req ServerRequest) (ServerReply, error) {
		got <- req.Context
		return ServerReply{Data: map[string]any{}}, nil
	})
	srv := httptest.NewServer(rs.Handler())
	t.Cleanup(srv.Close)

	c := NewHTTPClient(httpDescriptor(srv.URL), ClientOptions{Identity: testIdentity})
	require.True(t, c.Connect(context.Background()))

	ctx := ctxkeys.WithNode(ctxkeys.WithRunID(context.Background(), "run-42"), "technical_seo_audit")
	q := NewQuery(MethodGet, ResourceSEOData)
	q.Context["node"] = "caller-set"
	resp, err := c.Execute(ctx, q)
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, q.RequestID, resp.RequestID)

	reqCtx := <-got
	assert.Equal(t, "run-42", reqCtx["run_id"])
	assert.Equal(t, "caller-set", reqCtx["node"])
	// 原查询不被修改
	_, mutated := q.Context["run_id"]
	assert.False(t, mutated)
}
