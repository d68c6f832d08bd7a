// Package cache хранит декодированные снимки блоков в памяти процесса.
//
// Использование:
//
//	cache, err := NewChunkCache(Config{MaxCost: 1 << 20})
//	snap, ok := cache.Get(facet, bx, by)
//	cache.Set(snap)
//	cache.Clear() // после патчей или смены варианта карты
package cache

import "time"

// Config содержит конфигурацию кеша.
type Config struct {
	// MaxCost суммарная стоимость снимков (тайлы + статика)
	MaxCost int64 `yaml:"max_cost"`

	// NumCounters число счётчиков частоты; 0 означает 10 на каждый ожидаемый снимок
	NumCounters int64 `yaml:"num_counters"`

	// Metrics собирать статистику попаданий
	Metrics bool `yaml:"metrics"`
}

// CacheMetrics содержит метрики производительности кеша.
type CacheMetrics struct {
	CacheHits   uint64  `json:"cache_hits"`
	CacheMisses uint64  `json:"cache_misses"`
	HitRatio    float64 `json:"hit_ratio"`

	KeysAdded   uint64 `json:"keys_added"`
	KeysEvicted uint64 `json:"keys_evicted"`
	SetsDropped uint64 `json:"sets_dropped"`

	CostAdded   uint64 `json:"cost_added"`
	CostEvicted uint64 `json:"cost_evicted"`

	// Последнее обновление
	LastUpdate time.Time `json:"last_update"`
}
