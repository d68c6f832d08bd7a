package world

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/annel0/mapengine/internal/logging"
	"github.com/annel0/mapengine/internal/vec"
)

// Результаты декодирования для метрик
const (
	ResultOK     = "ok"
	ResultNoData = "no_data"
	ResultError  = "error"
)

// ChunkCache кеш снимков блоков
type ChunkCache interface {
	Get(facet, bx, by int) (*Snapshot, bool)
	Set(s *Snapshot) bool
	Clear()
}

// Recorder получает события стримера для метрик
type Recorder interface {
	ChunkDecoded(result string, elapsed time.Duration)
	CacheLookup(hit bool)
}

// StreamerOptions параметры стримера
type StreamerOptions struct {
	PoolSize int
	Workers  int
	Cache    ChunkCache // nil: без кеша
	Recorder Recorder   // nil: без метрик
}

// Streamer отдаёт слою отрисовки снимки блоков: кеш перед пулом декодеров
type Streamer struct {
	src      BlockSource
	pool     *Pool
	cache    ChunkCache
	recorder Recorder
	workers  int
	log      *logging.Logger

	// генерация кеша: снимок, декодированный до Invalidate, в кеш не попадает
	genMu sync.RWMutex
	gen   uint64
}

// NewStreamer создаёт стример поверх источника индекса
func NewStreamer(src BlockSource, opts StreamerOptions) *Streamer {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 64
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	return &Streamer{
		src:      src,
		pool:     NewPool(src, opts.PoolSize),
		cache:    opts.Cache,
		recorder: opts.Recorder,
		workers:  opts.Workers,
		log:      logging.GetStreamLogger(),
	}
}

// Pool пул декодеров стримера
func (s *Streamer) Pool() *Pool {
	return s.pool
}

// Chunk возвращает снимок блока (bx, by) фасета.
// Блок без данных даёт ErrNoData; такие блоки не кешируются.
func (s *Streamer) Chunk(ctx context.Context, facet, bx, by int) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.cache != nil {
		snap, ok := s.cache.Get(facet, bx, by)
		if s.recorder != nil {
			s.recorder.CacheLookup(ok)
		}
		if ok {
			return snap, nil
		}
	}

	s.genMu.RLock()
	gen := s.gen
	s.genMu.RUnlock()

	slot, chunk, err := s.pool.Acquire(ctx, bx, by)
	if err != nil {
		return nil, err
	}
	defer s.pool.Return(slot)

	start := time.Now()
	err = chunk.Load(facet)
	s.record(err, time.Since(start))
	if err != nil {
		return nil, err
	}

	snap := newSnapshot(facet, chunk)

	if s.cache != nil {
		s.genMu.RLock()
		if gen == s.gen {
			s.cache.Set(snap)
		}
		s.genMu.RUnlock()
	}

	return snap, nil
}

func (s *Streamer) record(err error, elapsed time.Duration) {
	if s.recorder == nil {
		return
	}

	result := ResultOK
	switch {
	case errors.Is(err, ErrNoData):
		result = ResultNoData
	case err != nil:
		result = ResultError
	}
	s.recorder.ChunkDecoded(result, elapsed)
}

// PrefetchResult итог предзагрузки
type PrefetchResult struct {
	Loaded int
	NoData int
}

// Prefetch параллельно декодирует блоки фасета и кладёт их в кеш.
// Блоки без данных пропускаются; первая ошибка чтения или отмена ctx прерывают работу.
func (s *Streamer) Prefetch(ctx context.Context, facet int, blocks []vec.Vec2) (PrefetchResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	var (
		mu  sync.Mutex
		res PrefetchResult
	)

	for _, b := range blocks {
		g.Go(func() error {
			_, err := s.Chunk(gctx, facet, b.X, b.Y)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				res.Loaded++
			case errors.Is(err, ErrNoData):
				res.NoData++
			default:
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	s.log.Debug("Предзагрузка фасета %d: блоков %d, загружено %d, без данных %d", facet, len(blocks), res.Loaded, res.NoData)
	return res, err
}

// Invalidate сбрасывает кеш после изменения индекса (патчи, смена варианта)
func (s *Streamer) Invalidate() {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	s.gen++
	if s.cache != nil {
		s.cache.Clear()
	}
	s.log.Debug("Кеш блоков сброшен (поколение %d)", s.gen)
}

// TileZ высота тайла без декодирования блока
func (s *Streamer) TileZ(facet, x, y int) int8 {
	return TileZ(s.src, facet, x, y)
}

// Area блоки, покрывающие прямоугольник тайлов [x0,x1]x[y0,y1]
func Area(x0, y0, x1, y1 int) []vec.Vec2 {
	if x1 < x0 || y1 < y0 || x1 < 0 || y1 < 0 {
		return nil
	}

	from := vec.Vec2{X: max(x0, 0), Y: max(y0, 0)}.ToBlockCoords()
	to := vec.Vec2{X: max(x1, 0), Y: max(y1, 0)}.ToBlockCoords()

	blocks := make([]vec.Vec2, 0, (to.X-from.X+1)*(to.Y-from.Y+1))
	for bx := from.X; bx <= to.X; bx++ {
		for by := from.Y; by <= to.Y; by++ {
			blocks = append(blocks, vec.Vec2{X: bx, Y: by})
		}
	}
	return blocks
}
