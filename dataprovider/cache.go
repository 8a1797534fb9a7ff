package dataprovider

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Andrew821667/ai-seo-architects/internal/metrics"
)

// Clock 可注入的时钟
type Clock func() time.Time

const (
	defaultCapacity   = 1000
	defaultEvictRatio = 0.2
	defaultTTL        = 30 * time.Minute
)

type cacheEntry struct {
	key       string
	value     *Result
	createdAt time.Time
}

// TTLCache 进程内缓存。过期在读取时惰性判断；
// 写入后超过容量时，先清理过期条目，仍超出则按 created_at 一次淘汰最旧的 ceil(capacity*ratio) 个。
type TTLCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	ttl        time.Duration
	capacity   int
	evictRatio float64
	now        Clock
	metrics    *metrics.Collector
}

// NewTTLCache 创建缓存；非法参数回落到默认值（30m / 1000 / 0.2）
func NewTTLCache(ttl time.Duration, capacity int, evictRatio float64, clock Clock, collector *metrics.Collector) *TTLCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if evictRatio <= 0 || evictRatio > 1 {
		evictRatio = defaultEvictRatio
	}
	if clock == nil {
		clock = time.Now
	}
	return &TTLCache{
		entries:    make(map[string]*cacheEntry),
		ttl:        ttl,
		capacity:   capacity,
		evictRatio: evictRatio,
		now:        clock,
		metrics:    collector,
	}
}

// Get 返回有效条目的副本；过期条目被删除
func (c *TTLCache) Get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.createdAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.value.clone(), true
}

// Set 写入（覆盖时刷新 created_at），必要时淘汰
func (c *TTLCache) Set(key string, value *Result) {
	c.SetAt(key, value, c.now())
}

// SetAt 以给定的 created_at 写入，用于回填来自其他层、已有年龄的结果。
// 写入时已过期的条目被丢弃，返回 false。
func (c *TTLCache) SetAt(key string, value *Result, createdAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.now().Sub(createdAt) >= c.ttl {
		return false
	}
	c.entries[key] = &cacheEntry{key: key, value: value.clone(), createdAt: createdAt}
	if len(c.entries) > c.capacity {
		c.evictLocked()
	}
	return true
}

// Fresh 创建于 createdAt 的条目此刻是否仍在有效期内
func (c *TTLCache) Fresh(createdAt time.Time) bool {
	return c.now().Sub(createdAt) < c.ttl
}

// BatchSize 单次淘汰数量
func (c *TTLCache) BatchSize() int {
	return max(1, int(math.Ceil(float64(c.capacity)*c.evictRatio)))
}

func (c *TTLCache) evictLocked() {
	now := c.now()
	expired := 0
	for k, e := range c.entries {
		if now.Sub(e.createdAt) >= c.ttl {
			delete(c.entries, k)
			expired++
		}
	}
	if expired > 0 {
		c.metrics.RecordCacheEviction("l1", expired)
	}
	if len(c.entries) <= c.capacity {
		return
	}

	all := make([]*cacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].createdAt.Equal(all[j].createdAt) {
			return all[i].key < all[j].key
		}
		return all[i].createdAt.Before(all[j].createdAt)
	})

	n := min(c.BatchSize(), len(all))
	for _, e := range all[:n] {
		delete(c.entries, e.key)
	}
	c.metrics.RecordCacheEviction("l1", n)
}

// Delete 删除条目
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len 当前条目数（含尚未被读取清理的过期条目）
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear 清空
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}
