package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Andrew821667/ai-seo-architects/agent/protocol/mcp"
	"github.com/Andrew821667/ai-seo-architects/config"
	"github.com/Andrew821667/ai-seo-architects/internal/metrics"
	"github.com/Andrew821667/ai-seo-architects/internal/server"
)

type mockOptions struct {
	addr     string
	name     string
	strategy string
	secret   string
	header   string
	delay    time.Duration
}

func newServeMockCmd() *cobra.Command {
	opts := &mockOptions{}
	cmd := &cobra.Command{
		Use:   "serve-mock",
		Short: "Start the reference resource server",
		Long: "Serves deterministic sample data for every resource type over HTTP\n" +
			"(POST /{version}/{method}) and WebSocket (/ws) until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath(cmd))
			if err != nil {
				return err
			}
			logger := initLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			if opts.addr == "" {
				opts.addr = cfg.Server.MockAddr
			}
			m, err := startMock(cfg, *opts, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mock resource server %q listening on %s\n", opts.name, m.Addr())

			err = m.http.WaitForShutdown(cmd.Context())
			return errors.Join(err, m.Shutdown(context.Background()))
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (default server.mock_addr)")
	cmd.Flags().StringVar(&opts.name, "name", "mock-seo", "Server name reported in responses")
	cmd.Flags().StringVar(&opts.strategy, "auth", mcp.AuthNone, "Auth strategy: none, bearer, api_key, jwt")
	cmd.Flags().StringVar(&opts.secret, "secret", "", "Auth secret")
	cmd.Flags().StringVar(&opts.header, "auth-header", "", "API key header (api_key strategy)")
	cmd.Flags().DurationVar(&opts.delay, "delay", 0, "Artificial latency per request")
	return cmd
}

// mockServer 参考资源服务器及可选的 metrics 服务
type mockServer struct {
	resource *mcp.ResourceServer
	http     *server.Manager
	metrics  *server.Manager
}

func startMock(cfg *config.Config, opts mockOptions, logger *zap.Logger) (*mockServer, error) {
	serverOpts := []mcp.ServerOption{
		mcp.WithServerLogger(logger),
		mcp.WithServerAuth(mcp.AuthDescriptor{Strategy: opts.strategy, Secret: opts.secret, Header: opts.header}),
	}

	m := &mockServer{}
	if cfg.Server.MetricsPort > 0 {
		collector := metrics.NewCollector("seoarch_mock", logger)
		serverOpts = append(serverOpts, mcp.WithServerMetrics(collector))

		mcfg := server.DefaultConfig()
		mcfg.Addr = fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		mcfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
		m.metrics = server.NewManager(server.MetricsMux(nil), mcfg, logger)
	}

	m.resource = mcp.NewResourceServer(opts.name, serverOpts...)
	for _, rt := range mcp.ResourceTypes() {
		m.resource.Handle(rt, mcp.SampleHandler(rt))
	}
	if opts.delay > 0 {
		m.resource.SetDelay(opts.delay)
	}

	hcfg := server.DefaultConfig()
	hcfg.Addr = opts.addr
	hcfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	// WebSocket 连接是长连接
	hcfg.ReadTimeout = 0
	hcfg.WriteTimeout = 0
	m.http = server.NewManager(m.resource.Handler(), hcfg, logger)

	if err := m.http.Start(); err != nil {
		return nil, fmt.Errorf("start mock server: %w", err)
	}
	if m.metrics != nil {
		if err := m.metrics.Start(); err != nil {
			_ = m.http.Shutdown(context.Background())
			return nil, fmt.Errorf("start metrics server: %w", err)
		}
	}
	logger.Info("mock resource server started",
		zap.String("name", opts.name),
		zap.String("addr", m.http.Addr()),
		zap.String("auth", opts.strategy),
	)
	return m, nil
}

func (m *mockServer) Addr() string { return m.http.Addr() }

func (m *mockServer) Shutdown(ctx context.Context) error {
	var errs []error
	errs = append(errs, m.http.Shutdown(ctx))
	if m.metrics != nil {
		errs = append(errs, m.metrics.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
