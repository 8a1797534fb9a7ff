package dataprovider

import "sync"

// Stats 计数快照；读取不会重置任何计数
type Stats struct {
	TotalRequests    int64   `json:"total_requests"`
	CacheHits        int64   `json:"cache_hits"`
	CacheMisses      int64   `json:"cache_misses"`
	Successes        int64   `json:"successes"`
	Errors           int64   `json:"errors"`
	FallbackUses     int64   `json:"fallback_uses"`
	DegradedResults  int64   `json:"degraded_results"`
	TotalCost        float64 `json:"total_cost"`
	AverageLatencyMS float64 `json:"average_latency_ms"`
	LatencySamples   int     `json:"latency_samples"`
	CacheSize        int     `json:"cache_size"`
}

// HitRate 缓存命中率
func (s Stats) HitRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.TotalRequests)
}

// accounting 互斥保护的计数器与延迟滚动窗口
type accounting struct {
	mu sync.Mutex
	s  Stats

	window  []float64
	next    int
	full    bool
	latency float64 // 窗口内样本之和
}

func newAccounting(window int) *accounting {
	if window <= 0 {
		window = 1000
	}
	return &accounting{window: make([]float64, window)}
}

func (a *accounting) update(fn func(s *Stats)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.s)
}

func (a *accounting) observeLatency(ms float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.full {
		a.latency -= a.window[a.next]
	}
	a.window[a.next] = ms
	a.latency += ms
	a.next++
	if a.next == len(a.window) {
		a.next = 0
		a.full = true
	}
}

func (a *accounting) snapshot() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.s
	n := a.next
	if a.full {
		n = len(a.window)
	}
	out.LatencySamples = n
	if n > 0 {
		out.AverageLatencyMS = a.latency / float64(n)
	}
	return out
}
