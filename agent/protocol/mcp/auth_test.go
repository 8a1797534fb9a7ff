package mcp

import (
	"net/http"
	"testing"
	"time"

	"github.com/Andrew821667/ai-seo-architects/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = CallerIdentity{AgentID: "lead_qualification", SessionID: "sess-1", Capabilities: []string{"read"}}

func TestBuildHeaders_Strategies(t *testing.T) {
	tests := []struct {
		name   string
		auth   AuthDescriptor
		header string
		want   string
	}{
		{name: "bearer", auth: AuthDescriptor{Strategy: AuthBearer, Secret: "t0k"}, header: "Authorization", want: "Bearer t0k"},
		{name: "api key default header", auth: AuthDescriptor{Strategy: AuthAPIKey, Secret: "k1"}, header: "X-API-Key", want: "k1"},
		{name: "api key custom header", auth: AuthDescriptor{Strategy: AuthAPIKey, Secret: "k2", Header: "X-Ahrefs-Key"}, header: "X-Ahrefs-Key", want: "k2"},
		{name: "none", auth: AuthDescriptor{Strategy: AuthNone}, header: "Authorization", want: ""},
		{name: "empty strategy", auth: AuthDescriptor{}, header: "Authorization", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ServerDescriptor{Name: "srv", Auth: tt.auth}
			h, err := BuildHeaders(d, testIdentity)
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Get(tt.header))
			assert.Equal(t, "lead_qualification", h.Get("User-Agent"))
			assert.Equal(t, "application/json", h.Get("Content-Type"))
		})
	}
}

func TestBuildHeaders_JWTRoundTrip(t *testing.T) {
	d := ServerDescriptor{Name: "seo-data", Auth: AuthDescriptor{Strategy: AuthJWT, Secret: "shared-secret"}}
	h, err := BuildHeaders(d, testIdentity)
	require.NoError(t, err)

	raw := h.Get("Authorization")
	require.Contains(t, raw, "Bearer ")

	sub, err := VerifyJWT(raw[len("Bearer "):], "shared-secret", "seo-data")
	require.NoError(t, err)
	assert.Equal(t, "lead_qualification", sub)

	_, err = VerifyJWT(raw[len("Bearer "):], "other-secret", "seo-data")
	assert.Error(t, err)
	_, err = VerifyJWT(raw[len("Bearer "):], "shared-secret", "another-server")
	assert.Error(t, err)
}

func TestSignJWT_Expired(t *testing.T) {
	d := ServerDescriptor{Name: "seo-data", Auth: AuthDescriptor{Strategy: AuthJWT, Secret: "s"}}
	tok, err := SignJWT(d, testIdentity, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = VerifyJWT(tok, "s", "seo-data")
	assert.Error(t, err)
}

func TestBuildHeaders_Errors(t *testing.T) {
	_, err := BuildHeaders(ServerDescriptor{Name: "srv", Auth: AuthDescriptor{Strategy: "kerberos"}}, testIdentity)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))

	_, err = BuildHeaders(ServerDescriptor{Name: "srv", Auth: AuthDescriptor{Strategy: AuthBearer}}, testIdentity)
	require.Error(t, err)
	assert.Equal(t, types.ErrAuthentication, types.GetErrorCode(err))
}

func TestRegisterAuthStrategy(t *testing.T) {
	RegisterAuthStrategy("test_hmac_tag", AuthStrategyFunc(func(h http.Header, s ServerDescriptor, id CallerIdentity) error {
		h.Set("X-Signature", s.Name+":"+id.AgentID)
		return nil
	}))

	h, err := BuildHeaders(ServerDescriptor{Name: "srv", Auth: AuthDescriptor{Strategy: "test_hmac_tag"}}, testIdentity)
	require.NoError(t, err)
	assert.Equal(t, "srv:lead_qualification", h.Get("X-Signature"))
	assert.Equal(t, "lead_qualification", h.Get("User-Agent"))
}
