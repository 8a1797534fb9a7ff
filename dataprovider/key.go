package dataprovider

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Andrew821667/ai-seo-architects/agent/protocol/mcp"
)

// CacheKey 生成缓存键：sha256(resource_type, resource_id, 参数的规范 JSON)。
// encoding/json 对 map 键排序，因此参数顺序不影响结果。
func CacheKey(rt mcp.ResourceType, resourceID string, params map[string]any) string {
	h := sha256.New()
	h.Write([]byte(rt))
	h.Write([]byte{0})
	h.Write([]byte(resourceID))
	h.Write([]byte{0})

	if len(params) > 0 {
		data, err := json.Marshal(params)
		if err != nil {
			// 不可序列化的参数退化为确定性的字符串表示
			data = []byte(fmt.Sprintf("%v", params))
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}
