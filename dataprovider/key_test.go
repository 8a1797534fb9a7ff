package dataprovider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/Andrew821667/ai-seo-architects/agent/protocol/mcp"
)

func TestCacheKey_Deterministic(t *testing.T) {
	a := CacheKey(mcp.ResourceSEOData, "example.org", map[string]any{"depth": 2, "lang": "en"})
	b := CacheKey(mcp.ResourceSEOData, "example.org", map[string]any{"lang": "en", "depth": 2})

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestCacheKey_Distinguishes(t *testing.T) {
	base := CacheKey(mcp.ResourceSEOData, "example.org", nil)

	assert.NotEqual(t, base, CacheKey(mcp.ResourceKeywordData, "example.org", nil))
	assert.NotEqual(t, base, CacheKey(mcp.ResourceSEOData, "example.com", nil))
	assert.NotEqual(t, base, CacheKey(mcp.ResourceSEOData, "example.org", map[string]any{"x": 1}))
	// 字段边界不能被拼接混淆
	assert.NotEqual(t,
		CacheKey(mcp.ResourceType("ab"), "c", nil),
		CacheKey(mcp.ResourceType("a"), "bc", nil))
}

func TestCacheKey_EmptyAndNilParamsEqual(t *testing.T) {
	assert.Equal(t,
		CacheKey(mcp.ResourceSEOData, "x", nil),
		CacheKey(mcp.ResourceSEOData, "x", map[string]any{}))
}

func TestCacheKey_NestedMapsOrderIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,6}`), 1, 8, rapid.ID[string]).Draw(t, "keys")
		vals := rapid.SliceOfN(rapid.IntRange(0, 100), len(keys), len(keys)).Draw(t, "vals")

		forward := map[string]any{}
		backward := map[string]any{}
		for i := range keys {
			forward[keys[i]] = vals[i]
		}
		for i := len(keys) - 1; i >= 0; i-- {
			backward[keys[i]] = vals[i]
		}
		nestedA := map[string]any{"filters": forward}
		nestedB := map[string]any{"filters": backward}

		if CacheKey(mcp.ResourceSEOData, "id", nestedA) != CacheKey(mcp.ResourceSEOData, "id", nestedB) {
			t.Fatalf("key depends on insertion order")
		}
	})
}
