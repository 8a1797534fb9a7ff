package mcp

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Andrew821667/ai-seo-architects/types"
	"github.com/golang-jwt/jwt/v5"
)

// 内置认证策略名称
const (
	AuthNone   = "none"
	AuthBearer = "bearer"
	AuthAPIKey = "api_key"
	AuthJWT    = "jwt"
)

// DefaultAPIKeyHeader api_key 策略默认请求头
const DefaultAPIKeyHeader = "X-API-Key"

// jwtTTL 客户端签发令牌的有效期
const jwtTTL = 5 * time.Minute

// AuthStrategy 认证策略，向请求头写入凭证
type AuthStrategy interface {
	Apply(h http.Header, server ServerDescriptor, identity CallerIdentity) error
}

// AuthStrategyFunc 函数适配器
type AuthStrategyFunc func(h http.Header, server ServerDescriptor, identity CallerIdentity) error

// Apply implements AuthStrategy.
func (f AuthStrategyFunc) Apply(h http.Header, server ServerDescriptor, identity CallerIdentity) error {
	return f(h, server, identity)
}

var (
	authMu         sync.RWMutex
	authStrategies = map[string]AuthStrategy{
		AuthNone:   AuthStrategyFunc(applyNone),
		AuthBearer: AuthStrategyFunc(applyBearer),
		AuthAPIKey: AuthStrategyFunc(applyAPIKey),
		AuthJWT:    AuthStrategyFunc(applyJWT),
	}
)

// RegisterAuthStrategy 注册（或覆盖）认证策略，调用方无需改动
func RegisterAuthStrategy(name string, s AuthStrategy) {
	authMu.Lock()
	defer authMu.Unlock()
	authStrategies[name] = s
}

// BuildHeaders 为一次请求构造请求头，所有传输共用。
// 始终设置 User-Agent 为调用方 agent id。
func BuildHeaders(server ServerDescriptor, identity CallerIdentity) (http.Header, error) {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", identity.AgentID)

	name := server.Auth.Strategy
	if name == "" {
		name = AuthNone
	}

	authMu.RLock()
	strategy, ok := authStrategies[name]
	authMu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrInvalidConfig, fmt.Sprintf("unknown auth strategy %q", name)).
			WithServer(server.Name)
	}

	if err := strategy.Apply(h, server, identity); err != nil {
		return nil, types.NewError(types.ErrAuthentication, "apply auth strategy "+name).
			WithServer(server.Name).
			WithCause(err)
	}
	return h, nil
}

func applyNone(http.Header, ServerDescriptor, CallerIdentity) error { return nil }

func applyBearer(h http.Header, server ServerDescriptor, _ CallerIdentity) error {
	if server.Auth.Secret == "" {
		return fmt.Errorf("bearer token is empty")
	}
	h.Set("Authorization", "Bearer "+server.Auth.Secret)
	return nil
}

func applyAPIKey(h http.Header, server ServerDescriptor, _ CallerIdentity) error {
	if server.Auth.Secret == "" {
		return fmt.Errorf("api key is empty")
	}
	header := server.Auth.Header
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	h.Set(header, server.Auth.Secret)
	return nil
}

// applyJWT 用共享密钥签发 HS256 令牌并作为 Bearer 发送
func applyJWT(h http.Header, server ServerDescriptor, identity CallerIdentity) error {
	token, err := SignJWT(server, identity, time.Now())
	if err != nil {
		return err
	}
	h.Set("Authorization", "Bearer "+token)
	return nil
}

// SignJWT 签发调用方令牌：sub=agent id，aud=server name
func SignJWT(server ServerDescriptor, identity CallerIdentity, now time.Time) (string, error) {
	if server.Auth.Secret == "" {
		return "", fmt.Errorf("jwt secret is empty")
	}
	claims := jwt.MapClaims{
		"sub":          identity.AgentID,
		"aud":          server.Name,
		"iat":          now.Unix(),
		"exp":          now.Add(jwtTTL).Unix(),
		"session_id":   identity.SessionID,
		"capabilities": identity.Capabilities,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(server.Auth.Secret))
}

// VerifyJWT 校验令牌并返回 subject，参考服务器使用
func VerifyJWT(tokenStr, secret, audience string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	token, err := jwt.Parse(strings.TrimSpace(tokenStr), func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return "", err
	}
	return token.Claims.GetSubject()
}
