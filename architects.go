// Package architects wires the orchestration core together: configuration,
// resource server clients, the cached data provider, the agent registry and
// the workflow orchestrator.
//
// Usage:
//
//	app, err := architects.New(ctx, cfg, architects.WithLogger(logger))
//	if err != nil { ... }
//	defer app.Close(ctx)
//	state := app.Run(ctx, agent.Task{TaskType: "seo_audit", InputData: input})
package architects

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Andrew821667/ai-seo-architects/agent"
	"github.com/Andrew821667/ai-seo-architects/agent/protocol/mcp"
	"github.com/Andrew821667/ai-seo-architects/config"
	"github.com/Andrew821667/ai-seo-architects/dataprovider"
	"github.com/Andrew821667/ai-seo-architects/internal/cache"
	"github.com/Andrew821667/ai-seo-architects/internal/database"
	"github.com/Andrew821667/ai-seo-architects/internal/metrics"
	"github.com/Andrew821667/ai-seo-architects/internal/telemetry"
	"github.com/Andrew821667/ai-seo-architects/internal/tlsutil"
	"github.com/Andrew821667/ai-seo-architects/workflow"
	"github.com/Andrew821667/ai-seo-architects/workflow/dsl"
)

// Option configures [New].
type Option func(*options)

type options struct {
	logger        *zap.Logger
	metrics       *metrics.Collector
	clientFactory mcp.ClientFactory
	registerHooks []func(*agent.Registry)
	routers       map[string]workflow.RouteFunc
}

// WithLogger sets the root logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics enables Prometheus metrics through the given collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithClientFactory replaces the protocol client constructor.
func WithClientFactory(f mcp.ClientFactory) Option {
	return func(o *options) { o.clientFactory = f }
}

// WithAgents registers additional (business) agents after the defaults,
// overwriting any default handler with the same name.
func WithAgents(register func(*agent.Registry)) Option {
	return func(o *options) { o.registerHooks = append(o.registerHooks, register) }
}

// WithRouter makes a named router available to YAML graph definitions.
func WithRouter(name string, fn workflow.RouteFunc) Option {
	return func(o *options) {
		if o.routers == nil {
			o.routers = make(map[string]workflow.RouteFunc)
		}
		o.routers[name] = fn
	}
}

// App is the assembled core.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *metrics.Collector
	Clients      *mcp.ClientRegistry
	Provider     *dataprovider.Provider
	Agents       *agent.Registry
	Orchestrator *workflow.Orchestrator
	History      workflow.HistoryStore
	Snapshots    *dataprovider.SnapshotSource

	telemetry *telemetry.Providers
	redis     *cache.Manager
	pool      *database.PoolManager
}

// New validates cfg and builds every component. Unreachable resource servers
// are logged and skipped; the provider then serves from its fallback chain.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app := &App{Config: cfg, Logger: logger, Metrics: o.metrics}
	ready := false
	defer func() {
		if !ready {
			_ = app.Close(context.WithoutCancel(ctx))
		}
	}()

	var err error
	if app.telemetry, err = telemetry.Init(cfg.Telemetry, logger); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	if cfg.Cache.L2Enabled || cfg.Workflow.HistoryStore == "redis" {
		if app.redis, err = cache.NewManager(redisConfig(cfg), logger); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	app.Clients = mcp.NewClientRegistry(o.clientFactory, mcp.ClientOptions{
		Identity: IdentityFromConfig(cfg.Agent),
		Logger:   logger,
		Metrics:  o.metrics,
		Pool:     tlsutil.DefaultPoolOptions(),
	})
	app.Clients.SetReconnectBackoff(cfg.Agent.ReconnectInterval,
		max(cfg.Agent.ReconnectInterval, mcp.DefaultMaxReconnectInterval))
	app.connectServers(ctx)

	if app.Provider, err = app.buildProvider(); err != nil {
		return nil, err
	}

	app.Agents = agent.NewRegistry(logger)
	agent.RegisterDefaults(app.Agents, app.Provider, logger)
	for _, hook := range o.registerHooks {
		hook(app.Agents)
	}

	switch cfg.Workflow.HistoryStore {
	case "memory":
		app.History = workflow.NewMemoryHistoryStore(0)
	case "redis":
		app.History = workflow.NewRedisHistoryStore(app.redis, cfg.Workflow.HistoryTTL, logger)
	}

	if app.Orchestrator, err = app.buildOrchestrator(o); err != nil {
		return nil, err
	}

	logger.Info("seo architects core ready",
		zap.Int("servers", len(cfg.Servers)),
		zap.Int("connected", app.Clients.Len()),
		zap.String("fallback", cfg.Fallback.Type),
		zap.Strings("agents", app.Agents.Names()),
	)
	ready = true
	return app, nil
}

func redisConfig(cfg *config.Config) cache.Config {
	rc := cache.DefaultConfig()
	rc.Addr = cfg.Redis.Addr
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	if cfg.Redis.PoolSize > 0 {
		rc.PoolSize = cfg.Redis.PoolSize
	}
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DefaultTTL = cfg.Cache.TTL
	return rc
}

// targets 配置中的服务器及其选定传输
func (a *App) targets() []dataprovider.Target {
	out := make([]dataprovider.Target, 0, len(a.Config.Servers))
	for _, sc := range a.Config.Servers {
		desc := DescriptorFromConfig(sc)
		out = append(out, dataprovider.Target{Descriptor: desc, Transport: TransportFor(sc, desc)})
	}
	return out
}

// connectServers 启动时连接一次；失败的服务器由 ProtocolStrategy 按退避重连
func (a *App) connectServers(ctx context.Context) {
	for _, t := range a.targets() {
		if c := a.Clients.Ensure(ctx, t.Descriptor, t.Transport); c == nil {
			a.Logger.Warn("resource server unavailable at startup",
				zap.String("server", t.Descriptor.Name),
				zap.String("transport", string(t.Transport)),
			)
		}
	}
}

func (a *App) buildProvider() (*dataprovider.Provider, error) {
	cfg := a.Config
	strategies := []dataprovider.Strategy{
		dataprovider.NewProtocolStrategy(a.Clients, a.Logger,
			dataprovider.WithRace(cfg.Cache.RaceServers),
			dataprovider.WithReconnect(a.Clients, a.targets()...)),
	}
	providerOpts := []dataprovider.Option{
		dataprovider.WithLogger(a.Logger),
		dataprovider.WithMetrics(a.Metrics),
	}

	switch cfg.Fallback.Type {
	case "snapshot":
		db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN(), a.Logger)
		if err != nil {
			return nil, fmt.Errorf("open snapshot database: %w", err)
		}
		poolCfg := database.DefaultPoolConfig()
		poolCfg.MaxOpenConns = cfg.Database.MaxOpenConns
		poolCfg.MaxIdleConns = cfg.Database.MaxIdleConns
		poolCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
		if a.pool, err = database.NewPoolManager(db, poolCfg, a.Metrics, a.Logger); err != nil {
			return nil, fmt.Errorf("snapshot pool: %w", err)
		}
		if a.Snapshots, err = dataprovider.NewSnapshotSource(a.pool.DB(), a.Logger); err != nil {
			return nil, fmt.Errorf("snapshot source: %w", err)
		}
		strategies = append(strategies,
			dataprovider.NewFallbackStrategy(a.Snapshots),
			dataprovider.NewFallbackStrategy(dataprovider.NewStaticSource()),
		)
		providerOpts = append(providerOpts, dataprovider.WithRecorder(a.Snapshots))
	case "static":
		strategies = append(strategies, dataprovider.NewFallbackStrategy(dataprovider.NewStaticSource()))
	}

	if cfg.Cache.L2Enabled {
		providerOpts = append(providerOpts,
			dataprovider.WithL2(dataprovider.NewRedisL2(a.redis, cfg.Cache.L2Prefix, cfg.Cache.TTL, a.Logger)))
	}
	return dataprovider.New(cfg.Cache, strategies, providerOpts...), nil
}

func (a *App) buildOrchestrator(o *options) (*workflow.Orchestrator, error) {
	wfOpts := []workflow.Option{
		workflow.WithMaxSteps(a.Config.Workflow.MaxSteps),
		workflow.WithLogger(a.Logger),
		workflow.WithMetrics(a.Metrics),
	}
	if a.History != nil {
		wfOpts = append(wfOpts, workflow.WithHistoryStore(a.History))
	}

	graph := workflow.NewSEOGraph()
	if path := a.Config.Workflow.GraphFile; path != "" {
		parser := dsl.NewParser()
		for name, fn := range o.routers {
			parser.RegisterRouter(name, fn)
		}
		def, err := parser.ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("load graph %s: %w", path, err)
		}
		graph = def.Graph
		wfOpts = append(wfOpts, def.Options()...)
		a.Logger.Info("loaded workflow graph", zap.String("name", def.Name), zap.String("file", path))
	}
	return graph.Compile(a.Agents, wfOpts...)
}

// Run executes one task through the orchestrator.
func (a *App) Run(ctx context.Context, task agent.Task) *workflow.OrchestrationState {
	return a.Orchestrator.Run(ctx, task)
}

// Close releases clients, pools and exporters. Safe on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Clients != nil {
		if err := a.Clients.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close clients: %w", err))
		}
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close snapshot pool: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
