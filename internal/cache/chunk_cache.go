package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/annel0/mapengine/internal/world"
)

// minSnapshotCost стоимость снимка без статики
const minSnapshotCost = 64

// ChunkCache кеш снимков блоков на ristretto.
// Ключ: фасет и координаты блока, упакованные в uint64.
type ChunkCache struct {
	cache   *ristretto.Cache
	metrics bool
}

// NewChunkCache создаёт кеш
func NewChunkCache(cfg Config) (*ChunkCache, error) {
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 1 << 20
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = max(10*cfg.MaxCost/minSnapshotCost, 1000)
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        cfg.NumCounters,
		MaxCost:            cfg.MaxCost,
		BufferItems:        64,
		Metrics:            cfg.Metrics,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("не удалось создать кеш блоков: %w", err)
	}

	return &ChunkCache{cache: c, metrics: cfg.Metrics}, nil
}

// Key упаковывает фасет (8 бит) и координаты блока (по 28 бит)
func Key(facet, bx, by int) uint64 {
	return uint64(facet&0xFF)<<56 | uint64(bx&0xFFFFFFF)<<28 | uint64(by&0xFFFFFFF)
}

// Get возвращает снимок блока
func (c *ChunkCache) Get(facet, bx, by int) (*world.Snapshot, bool) {
	v, ok := c.cache.Get(Key(facet, bx, by))
	if !ok {
		return nil, false
	}
	snap, ok := v.(*world.Snapshot)
	return snap, ok
}

// Set кладёт снимок в кеш. Ristretto может отклонить запись, тогда возвращается false.
func (c *ChunkCache) Set(s *world.Snapshot) bool {
	return c.cache.Set(Key(s.Facet, s.Coords.X, s.Coords.Y), s, s.Cost())
}

// Wait дожидается применения отложенных записей
func (c *ChunkCache) Wait() {
	c.cache.Wait()
}

// Clear удаляет все снимки
func (c *ChunkCache) Clear() {
	c.cache.Clear()
}

// Metrics снимок статистики; нули, если сбор метрик выключен
func (c *ChunkCache) Metrics() *CacheMetrics {
	m := &CacheMetrics{LastUpdate: time.Now()}
	if !c.metrics || c.cache.Metrics == nil {
		return m
	}

	rm := c.cache.Metrics
	m.CacheHits = rm.Hits()
	m.CacheMisses = rm.Misses()
	m.HitRatio = rm.Ratio()
	m.KeysAdded = rm.KeysAdded()
	m.KeysEvicted = rm.KeysEvicted()
	m.SetsDropped = rm.SetsDropped()
	m.CostAdded = rm.CostAdded()
	m.CostEvicted = rm.CostEvicted()
	return m
}

// Close останавливает фоновые горутины кеша
func (c *ChunkCache) Close() {
	c.cache.Close()
}
