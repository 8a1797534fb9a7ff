// =============================================================================
// 📦 AI SEO Architects 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("seoarch.yaml").
//	    WithEnvPrefix("SEOARCH").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/Andrew821667/ai-seo-architects/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是编排核心的完整配置结构
type Config struct {
	// Server 进程级配置（metrics 端口、关闭超时）
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Agent 调用方身份，随每次协议请求发送
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// Servers 资源服务器描述，启动后只读
	Servers []ResourceServerConfig `yaml:"servers" env:"-"`

	// Cache 数据提供者缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Fallback 离线回退数据源配置
	Fallback FallbackConfig `yaml:"fallback" env:"FALLBACK"`

	// Workflow 工作流编排配置
	Workflow WorkflowConfig `yaml:"workflow" env:"WORKFLOW"`

	// Redis 二级缓存与执行历史存储
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 快照数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 进程级配置
type ServerConfig struct {
	// Metrics 端口，0 表示不暴露 /metrics
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 参考资源服务器监听地址（serve-mock 命令）
	MockAddr string `yaml:"mock_addr" env:"MOCK_ADDR"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// AgentConfig 调用方身份
type AgentConfig struct {
	// Agent 标识，同时作为 User-Agent
	ID string `yaml:"id" env:"ID"`
	// 会话标识
	SessionID string `yaml:"session_id" env:"SESSION_ID"`
	// 能力声明
	Capabilities []string `yaml:"capabilities" env:"CAPABILITIES"`
	// 资源服务器连接失败或断开后的最小重连间隔，之后指数退避；0 表示每次请求都重试
	ReconnectInterval time.Duration `yaml:"reconnect_interval" env:"RECONNECT_INTERVAL"`
}

// ResourceServerConfig 资源服务器描述
type ResourceServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	// transport -> URL，transport 取值 http / websocket
	Endpoints map[string]string `yaml:"endpoints"`
	// 首选传输方式，为空时优先 http
	Transport      string             `yaml:"transport"`
	Auth           AuthConfig         `yaml:"auth"`
	Capabilities   []CapabilityConfig `yaml:"capabilities"`
	HealthCheckURL string             `yaml:"health_check_url"`
	Timeout        time.Duration      `yaml:"timeout"`
	CostPerCall    float64            `yaml:"cost_per_call"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	// bearer / api_key / jwt / none
	Strategy string `yaml:"strategy"`
	Secret   string `yaml:"secret"`
	// api_key 策略的自定义请求头，默认 X-API-Key
	Header string `yaml:"header"`
}

// CapabilityConfig 服务器能力声明
type CapabilityConfig struct {
	ResourceTypes []string `yaml:"resource_types"`
	Methods       []string `yaml:"methods"`
	// 每分钟请求数，0 表示不限流
	RateLimit int `yaml:"rate_limit"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	// 条目有效期
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 最大条目数
	Capacity int `yaml:"capacity" env:"CAPACITY"`
	// 超出容量时一次淘汰的比例
	EvictRatio float64 `yaml:"evict_ratio" env:"EVICT_RATIO"`
	// 延迟样本滚动窗口大小
	LatencyWindow int `yaml:"latency_window" env:"LATENCY_WINDOW"`
	// 是否启用 Redis 二级缓存
	L2Enabled bool `yaml:"l2_enabled" env:"L2_ENABLED"`
	// Redis 键前缀
	L2Prefix string `yaml:"l2_prefix" env:"L2_PREFIX"`
	// 多个服务器支持同一资源时并发竞速，取第一个成功响应
	RaceServers bool `yaml:"race_servers" env:"RACE_SERVERS"`
}

// FallbackConfig 回退数据源配置
type FallbackConfig struct {
	// static / snapshot / none
	Type string `yaml:"type" env:"TYPE"`
}

// WorkflowConfig 工作流配置
type WorkflowConfig struct {
	// 单次运行最大步数
	MaxSteps int `yaml:"max_steps" env:"MAX_STEPS"`
	// 执行历史存储: memory / redis / none
	HistoryStore string `yaml:"history_store" env:"HISTORY_STORE"`
	// Redis 执行历史保留时间
	HistoryTTL time.Duration `yaml:"history_ttl" env:"HISTORY_TTL"`
	// YAML 图定义文件，为空时使用内置的标准 SEO 图
	GraphFile string `yaml:"graph_file" env:"GRAPH_FILE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "SEOARCH",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration 走 ParseDuration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).WithValidator((*Config).Validate).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

var (
	validAuthStrategies = map[string]bool{"": true, "none": true, "bearer": true, "api_key": true, "jwt": true}
	validTransports     = map[string]bool{"http": true, "websocket": true}
	validFallbackTypes  = map[string]bool{"static": true, "snapshot": true, "none": true}
	validHistoryStores  = map[string]bool{"memory": true, "redis": true, "none": true}
)

// Validate 验证配置，失败时返回 INVALID_CONFIG 错误
func (c *Config) Validate() error {
	var errs []string

	if c.Agent.ID == "" {
		errs = append(errs, "agent.id is required")
	}
	if c.Agent.ReconnectInterval < 0 {
		errs = append(errs, "agent.reconnect_interval must not be negative")
	}

	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("servers[%d]: name is required", i))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Sprintf("servers[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if len(s.Endpoints) == 0 {
			errs = append(errs, fmt.Sprintf("server %s: at least one endpoint is required", s.Name))
		}
		for tr := range s.Endpoints {
			if !validTransports[tr] {
				errs = append(errs, fmt.Sprintf("server %s: unknown transport %q", s.Name, tr))
			}
		}
		if s.Transport != "" {
			if _, ok := s.Endpoints[s.Transport]; !ok {
				errs = append(errs, fmt.Sprintf("server %s: no endpoint for transport %q", s.Name, s.Transport))
			}
		}
		if !validAuthStrategies[s.Auth.Strategy] {
			errs = append(errs, fmt.Sprintf("server %s: unknown auth strategy %q", s.Name, s.Auth.Strategy))
		}
		if s.Timeout < 0 {
			errs = append(errs, fmt.Sprintf("server %s: timeout must not be negative", s.Name))
		}
		if s.CostPerCall < 0 {
			errs = append(errs, fmt.Sprintf("server %s: cost_per_call must not be negative", s.Name))
		}
	}

	if c.Cache.Capacity <= 0 {
		errs = append(errs, "cache.capacity must be positive")
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, "cache.ttl must be positive")
	}
	if c.Cache.EvictRatio <= 0 || c.Cache.EvictRatio > 1 {
		errs = append(errs, "cache.evict_ratio must be in (0, 1]")
	}
	if c.Cache.LatencyWindow <= 0 {
		errs = append(errs, "cache.latency_window must be positive")
	}
	if !validFallbackTypes[c.Fallback.Type] {
		errs = append(errs, fmt.Sprintf("unknown fallback.type %q", c.Fallback.Type))
	}
	if c.Workflow.MaxSteps <= 0 {
		errs = append(errs, "workflow.max_steps must be positive")
	}
	if !validHistoryStores[c.Workflow.HistoryStore] {
		errs = append(errs, fmt.Sprintf("unknown workflow.history_store %q", c.Workflow.HistoryStore))
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
