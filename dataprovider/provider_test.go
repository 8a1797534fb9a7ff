package dataprovider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Andrew821667/ai-seo-architects/agent/protocol/mcp"
	"github.com/Andrew821667/ai-seo-architects/config"
	"github.com/Andrew821667/ai-seo-architects/testutil"
	"github.com/Andrew821667/ai-seo-architects/types"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{TTL: time.Minute, Capacity: 100, EvictRatio: 0.2, LatencyWindow: 10}
}

// stubStrategy 返回预设结果并计数
type stubStrategy struct {
	name  string
	kind  StrategyKind
	calls atomic.Int32
	fn    func(req Request) *Result
}

func (s *stubStrategy) Name() string       { return s.name }
func (s *stubStrategy) Kind() StrategyKind { return s.kind }
func (s *stubStrategy) Fetch(_ context.Context, req Request) *Result {
	s.calls.Add(1)
	return s.fn(req)
}

func okStrategy(name string, kind StrategyKind, cost float64) *stubStrategy {
	return &stubStrategy{name: name, kind: kind, fn: func(req Request) *Result {
		return &Result{Success: true, ResourceType: req.ResourceType, ResourceID: req.ResourceID,
			Data: map[string]any{"from": name}, Source: name, Confidence: 1, Cost: cost}
	}}
}

func failStrategy(name string, kind StrategyKind, code string) *stubStrategy {
	return &stubStrategy{name: name, kind: kind, fn: func(req Request) *Result {
		return failure(req, name, code, name+" failed")
	}}
}

// staticClients 固定的客户端列表
type staticClients []mcp.Client

func (s staticClients) Clients() []mcp.Client { return s }

// newResourceServer 启动参考资源服务器并返回已连接的 HTTP 客户端
func newResourceServer(t *testing.T, name string, rts ...mcp.ResourceType) (*mcp.ResourceServer, mcp.Client) {
	t.Helper()
	rs := mcp.NewResourceServer(name)
	for _, rt := range rts {
		rs.Handle(rt, mcp.SampleHandler(rt))
	}
	srv := httptest.NewServer(rs.Handler())
	t.Cleanup(srv.Close)

	desc := mcp.ServerDescriptor{
		Name:        name,
		Endpoints:   map[mcp.TransportType]string{mcp.TransportHTTP: srv.URL},
		Timeout:     2 * time.Second,
		CostPerCall: 0.05,
		Capabilities: []mcp.Capability{
			{ResourceTypes: rts, Methods: []mcp.Method{mcp.MethodGet}},
		},
	}
	c := mcp.NewHTTPClient(desc, mcp.ClientOptions{Identity: mcp.CallerIdentity{AgentID: "data_agent"}})
	require.True(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })
	return rs, c
}

// recorderFunc 记录回写
type recorderFunc func(ctx context.Context, rt mcp.ResourceType, id string, data any) error

func (f recorderFunc) Save(ctx context.Context, rt mcp.ResourceType, id string, data any) error {
	return f(ctx, rt, id, data)
}

// ---------------------------------------------------------------------------
// Provider with stub strategies
// ---------------------------------------------------------------------------

func TestProvider_FirstSuccessIsCached(t *testing.T) {
	remote := okStrategy("remote", KindRemote, 0.25)
	p := New(testCacheConfig(), []Strategy{remote})
	ctx := context.Background()

	first := p.Get(ctx, mcp.ResourceSEOData, "example.org", map[string]any{"a": 1})
	require.NotNil(t, first)
	assert.True(t, first.Success)
	assert.False(t, first.CacheHit)
	assert.Equal(t, "remote", first.Source)
	assert.False(t, first.Timestamp.IsZero())

	second := p.Get(ctx, mcp.ResourceSEOData, "example.org", map[string]any{"a": 1})
	assert.True(t, second.Success)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, int32(1), remote.calls.Load())

	s := p.Stats()
	assert.Equal(t, int64(2), s.TotalRequests)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(1), s.CacheMisses)
	assert.Equal(t, int64(2), s.Successes)
	assert.InDelta(t, 0.25, s.TotalCost, 1e-9)
	assert.Equal(t, 2, s.LatencySamples)
	assert.Equal(t, 1, s.CacheSize)
	assert.InDelta(t, 0.5, s.HitRate(), 1e-9)
}

func TestProvider_FallbackAfterRemoteFailure(t *testing.T) {
	remote := failStrategy("remote", KindRemote, "503")
	p := New(testCacheConfig(), []Strategy{remote, NewFallbackStrategy(NewStaticSource())})

	res := p.Get(context.Background(), mcp.ResourceSEOData, "example.org", nil)
	assert.True(t, res.Success)
	assert.True(t, res.Fallback)
	assert.Equal(t, "static", res.Source)
	assert.Equal(t, ConfidenceStatic, res.Confidence)

	s := p.Stats()
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(1), s.FallbackUses)
	assert.Equal(t, int64(0), s.DegradedResults)
}

func TestProvider_DegradedWhenEverythingFails(t *testing.T) {
	p := New(testCacheConfig(), []Strategy{
		failStrategy("remote", KindRemote, "TIMEOUT"),
		failStrategy("local", KindFallback, string(types.ErrDataUnavailable)),
	})

	res := p.Get(context.Background(), mcp.ResourceBacklinkData, "x", nil)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.True(t, res.Degraded)
	assert.Equal(t, SourceDegraded, res.Source)
	assert.Equal(t, ConfidenceDegraded, res.Confidence)
	assert.Equal(t, string(types.ErrDataUnavailable), res.ErrorCode)

	// 降级结果不缓存
	assert.Equal(t, 0, p.Stats().CacheSize)
	p.Get(context.Background(), mcp.ResourceBacklinkData, "x", nil)
	s := p.Stats()
	assert.Equal(t, int64(2), s.DegradedResults)
	assert.Equal(t, int64(2), s.Errors)
	assert.Equal(t, int64(0), s.Successes)
}

func TestProvider_NoStrategies(t *testing.T) {
	res := New(testCacheConfig(), nil).Get(context.Background(), mcp.ResourceSEOData, "x", nil)
	assert.True(t, res.Degraded)
	assert.Equal(t, string(types.ErrDataUnavailable), res.ErrorCode)
}

func TestProvider_StrategyPanicIsContained(t *testing.T) {
	boom := &stubStrategy{name: "boom", kind: KindRemote, fn: func(Request) *Result { panic("kaboom") }}
	p := New(testCacheConfig(), []Strategy{boom})

	var res *Result
	require.NotPanics(t, func() {
		res = p.Get(context.Background(), mcp.ResourceSEOData, "x", nil)
	})
	assert.True(t, res.Degraded)
	assert.Equal(t, string(types.ErrInternal), res.ErrorCode)
}

func TestProvider_NilStrategyResultSkipped(t *testing.T) {
	skip := &stubStrategy{name: "skip", kind: KindRemote, fn: func(Request) *Result { return nil }}
	p := New(testCacheConfig(), []Strategy{skip, okStrategy("next", KindFallback, 0)})

	res := p.Get(context.Background(), mcp.ResourceSEOData, "x", nil)
	assert.Equal(t, "next", res.Source)
}

func TestProvider_TTLExpiryRefetches(t *testing.T) {
	clock := newFakeClock()
	remote := okStrategy("remote", KindRemote, 0)
	p := New(testCacheConfig(), []Strategy{remote}, WithClock(clock.Now))
	ctx := context.Background()

	p.Get(ctx, mcp.ResourceSEOData, "x", nil)
	clock.Advance(30 * time.Second)
	assert.True(t, p.Get(ctx, mcp.ResourceSEOData, "x", nil).CacheHit)

	clock.Advance(31 * time.Second)
	assert.False(t, p.Get(ctx, mcp.ResourceSEOData, "x", nil).CacheHit)
	assert.Equal(t, int32(2), remote.calls.Load())
}

func TestProvider_Invalidate(t *testing.T) {
	remote := okStrategy("remote", KindRemote, 0)
	p := New(testCacheConfig(), []Strategy{remote})
	ctx := context.Background()

	p.Get(ctx, mcp.ResourceSEOData, "x", nil)
	p.Invalidate(mcp.ResourceSEOData, "x", nil)
	p.Get(ctx, mcp.ResourceSEOData, "x", nil)
	assert.Equal(t, int32(2), remote.calls.Load())
}

func TestProvider_LatencyWindowRolls(t *testing.T) {
	cfg := testCacheConfig()
	cfg.LatencyWindow = 3
	p := New(cfg, []Strategy{okStrategy("r", KindRemote, 0)})

	for range 5 {
		p.Get(context.Background(), mcp.ResourceSEOData, "x", nil)
	}
	s := p.Stats()
	assert.Equal(t, int64(5), s.TotalRequests)
	assert.Equal(t, 3, s.LatencySamples)
	assert.GreaterOrEqual(t, s.AverageLatencyMS, 0.0)
}

func TestProvider_StatsDoNotReset(t *testing.T) {
	p := New(testCacheConfig(), []Strategy{okStrategy("r", KindRemote, 1)})
	p.Get(context.Background(), mcp.ResourceSEOData, "a", nil)

	first := p.Stats()
	second := p.Stats()
	assert.Equal(t, first.TotalRequests, second.TotalRequests)
	assert.Equal(t, first.TotalCost, second.TotalCost)
}

func TestProvider_ConcurrentGets(t *testing.T) {
	p := New(testCacheConfig(), []Strategy{okStrategy("r", KindRemote, 0.01)})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := []string{"a", "b", "c"}[i%3]
			res := p.Get(context.Background(), mcp.ResourceSEOData, id, nil)
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()

	s := p.Stats()
	assert.Equal(t, int64(50), s.TotalRequests)
	assert.Equal(t, s.TotalRequests, s.CacheHits+s.CacheMisses)
}

func TestProvider_RecorderWriteBack(t *testing.T) {
	var saved []string
	rec := recorderFunc(func(_ context.Context, rt mcp.ResourceType, id string, _ any) error {
		saved = append(saved, string(rt)+"/"+id)
		return nil
	})
	p := New(testCacheConfig(), []Strategy{
		failStrategy("remote", KindRemote, "503"),
		NewFallbackStrategy(NewStaticSource()),
	}, WithRecorder(rec))
	p.Get(context.Background(), mcp.ResourceSEOData, "fallback.org", nil)
	assert.Empty(t, saved, "fallback data is not written back")

	p2 := New(testCacheConfig(), []Strategy{okStrategy("remote", KindRemote, 0)}, WithRecorder(rec))
	p2.Get(context.Background(), mcp.ResourceSEOData, "live.org", nil)
	assert.Equal(t, []string{"seo_data/live.org"}, saved)
}

// ---------------------------------------------------------------------------
// L2
// ---------------------------------------------------------------------------

func newTestL2(t *testing.T) (*miniredis.Miniredis, *RedisL2) {
	t.Helper()
	mr, mgr := testutil.NewRedis(t)
	return mr, NewRedisL2(mgr, "", time.Minute, nil)
}

func TestProvider_L2SharedAcrossInstances(t *testing.T) {
	mr, l2 := newTestL2(t)
	remote := okStrategy("remote", KindRemote, 0)
	ctx := context.Background()

	a := New(testCacheConfig(), []Strategy{remote}, WithL2(l2))
	a.Get(ctx, mcp.ResourceSEOData, "shared.org", nil)
	assert.True(t, mr.Exists("seoarch:data:"+CacheKey(mcp.ResourceSEOData, "shared.org", nil)))

	b := New(testCacheConfig(), []Strategy{remote}, WithL2(l2))
	res := b.Get(ctx, mcp.ResourceSEOData, "shared.org", nil)
	assert.True(t, res.CacheHit)
	assert.Equal(t, "remote", res.Source)
	assert.Equal(t, map[string]any{"from": "remote"}, res.Data)
	assert.Equal(t, int32(1), remote.calls.Load())

	// L2 命中回填 L1
	assert.Equal(t, 1, b.Stats().CacheSize)
}

func TestProvider_L2RefillKeepsOriginalAge(t *testing.T) {
	_, l2 := newTestL2(t)
	clock := newFakeClock()
	remote := okStrategy("remote", KindRemote, 0)
	ctx := context.Background()

	a := New(testCacheConfig(), []Strategy{remote}, WithL2(l2), WithClock(clock.Now))
	fetchedAt := clock.Now()
	a.Get(ctx, mcp.ResourceSEOData, "shared.org", nil)

	b := New(testCacheConfig(), []Strategy{remote}, WithL2(l2), WithClock(clock.Now))
	clock.Advance(59 * time.Second)
	res := b.Get(ctx, mcp.ResourceSEOData, "shared.org", nil)
	require.True(t, res.CacheHit)
	assert.True(t, res.Timestamp.Equal(fetchedAt))

	// L1 中的回填条目与 L2 中的原值同时过期，不能再当作命中
	clock.Advance(51 * time.Second)
	res = b.Get(ctx, mcp.ResourceSEOData, "shared.org", nil)
	assert.False(t, res.CacheHit)
	assert.True(t, res.Timestamp.Equal(clock.Now()))
	assert.Equal(t, int32(2), remote.calls.Load())
}

func TestProvider_DegradedLatencyNotSampled(t *testing.T) {
	p := New(testCacheConfig(), []Strategy{failStrategy("remote", KindRemote, "TIMEOUT")})
	ctx := context.Background()

	p.Get(ctx, mcp.ResourceSEOData, "x", nil)
	p.Get(ctx, mcp.ResourceSEOData, "x", nil)
	s := p.Stats()
	assert.Equal(t, int64(2), s.DegradedResults)
	assert.Equal(t, 0, s.LatencySamples)
	assert.Equal(t, 0.0, s.AverageLatencyMS)
}

func TestProvider_L2DownIsMiss(t *testing.T) {
	mr, l2 := newTestL2(t)
	mr.Close()

	p := New(testCacheConfig(), []Strategy{okStrategy("remote", KindRemote, 0)}, WithL2(l2))
	res := p.Get(context.Background(), mcp.ResourceSEOData, "x", nil)
	assert.True(t, res.Success)
	assert.False(t, res.CacheHit)
}

// ---------------------------------------------------------------------------
// ProtocolStrategy against the reference resource server
// ---------------------------------------------------------------------------

func TestProtocolStrategy_PrefersCapableClient(t *testing.T) {
	_, generic := newResourceServer(t, "generic", mcp.ResourceClientData)
	_, seo := newResourceServer(t, "seo-data", mcp.ResourceSEOData)

	s := NewProtocolStrategy(staticClients{generic, seo}, nil)
	picked := s.Select(mcp.ResourceSEOData)
	require.Len(t, picked, 1)
	assert.Equal(t, "seo-data", picked[0].Descriptor().Name)

	res := s.Fetch(context.Background(), Request{ResourceType: mcp.ResourceSEOData, ResourceID: "example.org"})
	require.True(t, res.Success)
	assert.Equal(t, "seo-data", res.Source)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
	assert.InDelta(t, 0.05, res.Cost, 1e-9)
}

func TestProtocolStrategy_ReconnectsConfiguredTargets(t *testing.T) {
	rs, probe := newResourceServer(t, "seo-data", mcp.ResourceSEOData)
	desc := probe.Descriptor()

	reg := mcp.NewClientRegistry(nil, mcp.ClientOptions{Identity: mcp.CallerIdentity{AgentID: "data_agent"}})
	reg.SetReconnectBackoff(0, 0)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	s := NewProtocolStrategy(reg, nil, WithReconnect(reg, Target{Descriptor: desc, Transport: mcp.TransportHTTP}))
	ctx := context.Background()

	res := s.Fetch(ctx, Request{ResourceType: mcp.ResourceSEOData, ResourceID: "a.org"})
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, "seo-data", res.Source)
	require.Equal(t, 1, reg.Len())

	// 连接断开后下一次获取重建客户端
	key := mcp.ClientKey{Server: "seo-data", Transport: mcp.TransportHTTP}
	dropped, ok := reg.Get(key)
	require.True(t, ok)
	require.NoError(t, dropped.Disconnect(ctx))

	res = s.Fetch(ctx, Request{ResourceType: mcp.ResourceSEOData, ResourceID: "b.org"})
	require.True(t, res.Success, res.ErrorMessage)
	current, ok := reg.Get(key)
	require.True(t, ok)
	assert.NotSame(t, dropped, current)
	assert.Equal(t, int64(2), rs.Requests())
}

func TestProtocolStrategy_BestEffortAnyConnected(t *testing.T) {
	_, generic := newResourceServer(t, "generic", mcp.ResourceClientData)

	s := NewProtocolStrategy(staticClients{generic}, nil)
	picked := s.Select(mcp.ResourceTechnicalData)
	require.Len(t, picked, 1)

	// 服务器不支持该类型 ⇒ 404 错误响应 ⇒ 失败结果
	res := s.Fetch(context.Background(), Request{ResourceType: mcp.ResourceTechnicalData, ResourceID: "x"})
	assert.False(t, res.Success)
	assert.Equal(t, "404", res.ErrorCode)
}

func TestProtocolStrategy_NoClients(t *testing.T) {
	s := NewProtocolStrategy(staticClients{}, nil)
	res := s.Fetch(context.Background(), Request{ResourceType: mcp.ResourceSEOData})
	assert.False(t, res.Success)
	assert.Equal(t, string(types.ErrDataUnavailable), res.ErrorCode)

	assert.Empty(t, NewProtocolStrategy(nil, nil).Select(mcp.ResourceSEOData))
}

func TestProtocolStrategy_PartialScalesConfidence(t *testing.T) {
	rs, c := newResourceServer(t, "seo-data")
	rs.Handle(mcp.ResourceKeywordData, func(context.Context, mcp.ServerRequest) (mcp.ServerReply, error) {
		return mcp.ServerReply{Data: []any{"seo"}, Partial: true, Metadata: map[string]any{"confidence": 0.8}}, nil
	})

	res := NewProtocolStrategy(staticClients{c}, nil).
		Fetch(context.Background(), Request{ResourceType: mcp.ResourceKeywordData, ResourceID: "x"})
	require.True(t, res.Success)
	assert.True(t, res.Partial)
	assert.InDelta(t, 0.4, res.Confidence, 1e-9)
}

func TestProtocolStrategy_DefaultConfidenceIsOne(t *testing.T) {
	rs, c := newResourceServer(t, "seo-data")
	rs.Handle(mcp.ResourceSEOData, func(context.Context, mcp.ServerRequest) (mcp.ServerReply, error) {
		return mcp.ServerReply{Data: map[string]any{"ok": true}}, nil
	})

	res := NewProtocolStrategy(staticClients{c}, nil).
		Fetch(context.Background(), Request{ResourceType: mcp.ResourceSEOData, ResourceID: "x"})
	require.True(t, res.Success)
	assert.Equal(t, ConfidenceProtocol, res.Confidence)
}

func TestProtocolStrategy_RaceUsesFirstSuccess(t *testing.T) {
	slow, a := newResourceServer(t, "slow", mcp.ResourceSEOData)
	slow.SetDelay(time.Second)
	_, b := newResourceServer(t, "fast", mcp.ResourceSEOData)

	s := NewProtocolStrategy(staticClients{a, b}, nil, WithRace(true))
	assert.Len(t, s.Select(mcp.ResourceSEOData), 2)

	res := s.Fetch(context.Background(), Request{ResourceType: mcp.ResourceSEOData, ResourceID: "x"})
	require.True(t, res.Success)
	assert.Equal(t, "fast", res.Source)
}

func TestProvider_EndToEndServerOutageFallsBack(t *testing.T) {
	rs, c := newResourceServer(t, "seo-data", mcp.ResourceSEOData)
	p := New(testCacheConfig(), []Strategy{
		NewProtocolStrategy(staticClients{c}, nil),
		NewFallbackStrategy(NewStaticSource()),
	})
	ctx := context.Background()

	live := p.Get(ctx, mcp.ResourceSEOData, "live.org", nil)
	assert.Equal(t, "seo-data", live.Source)

	rs.FailWith(mcp.ResourceSEOData, http.StatusServiceUnavailable, "maintenance")
	offline := p.Get(ctx, mcp.ResourceSEOData, "offline.org", nil)
	assert.True(t, offline.Success)
	assert.Equal(t, "static", offline.Source)

	// 已缓存的数据仍然命中
	again := p.Get(ctx, mcp.ResourceSEOData, "live.org", nil)
	assert.True(t, again.CacheHit)
	assert.Equal(t, "seo-data", again.Source)

	s := p.Stats()
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(1), s.FallbackUses)
	assert.InDelta(t, 0.05, s.TotalCost, 1e-9)
}
