// Package app собирает движок карты из конфигурации: индекс блоков, кеш,
// стример декодеров, метрики, хранилище патчей и трассировку.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/annel0/mapengine/internal/assets/mapindex"
	"github.com/annel0/mapengine/internal/cache"
	"github.com/annel0/mapengine/internal/config"
	"github.com/annel0/mapengine/internal/logging"
	"github.com/annel0/mapengine/internal/metrics"
	"github.com/annel0/mapengine/internal/observability"
	"github.com/annel0/mapengine/internal/storage"
	"github.com/annel0/mapengine/internal/vec"
	"github.com/annel0/mapengine/internal/world"
)

// Engine движок карты
type Engine struct {
	cfg      *config.Config
	table    *mapindex.Table
	cache    *cache.ChunkCache // nil, если кеш выключен
	streamer *world.Streamer
	metrics  *metrics.Exporter
	store    *storage.PatchStore // nil, если storage.path пуст
	log      *logging.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open строит индекс всех фасетов и поднимает остальные компоненты.
// Если в хранилище есть сохранённый поток патчей, он накладывается сразу после загрузки.
func Open(ctx context.Context, cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, span := observability.Tracer().Start(ctx, "mapengine.Load",
		oteltrace.WithAttributes(attribute.String("assets.dir", cfg.Assets.InstallDir)))
	defer span.End()

	e := &Engine{
		cfg:     cfg,
		metrics: metrics.NewExporter(),
		log:     logging.GetEngineLogger(),
	}

	e.table = mapindex.NewTable(mapindex.Options{
		Dir:          cfg.Assets.InstallDir,
		Layouts:      mapindex.ParseLayouts(cfg.Assets.MapsLayouts),
		LegacyClient: cfg.Assets.LegacyClient,
		OnBuilt:      e.metrics.IndexBuilt,
	})

	started := time.Now()
	if err := e.table.Load(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, fmt.Errorf("не удалось загрузить карты из %s: %w", cfg.Assets.InstallDir, err)
	}
	e.log.Info("🗺️  Индекс построен за %v (фасетов: %d)", time.Since(started), e.table.FacetCount())

	for _, facet := range cfg.Assets.ExtendedFacets {
		if err := e.table.LoadMap(facet, true); err != nil {
			e.table.Close()
			return nil, fmt.Errorf("X-вариант фасета %d: %w", facet, err)
		}
	}

	opts := world.StreamerOptions{
		PoolSize: cfg.Assets.PoolSize,
		Workers:  cfg.Assets.PrefetchWorkers,
		Recorder: e.metrics,
	}
	if cfg.Cache.Enabled {
		c, err := cache.NewChunkCache(cache.Config{MaxCost: cfg.Cache.MaxCost})
		if err != nil {
			e.table.Close()
			return nil, err
		}
		e.cache = c
		opts.Cache = c
	}
	e.streamer = world.NewStreamer(e.table, opts)

	if cfg.Storage.Path != "" {
		store, err := storage.OpenPatchStore(cfg.Storage.Path)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.store = store
		e.restorePatches(ctx)
	}

	e.metrics.StartHTTP(cfg.Metrics.Addr)
	return e, nil
}

// restorePatches накладывает последний сохранённый поток патчей
func (e *Engine) restorePatches(ctx context.Context) {
	blob, meta, found, err := e.store.Latest()
	switch {
	case errors.Is(err, storage.ErrCorruptPatch):
		e.log.Warn("Сохранённый поток патчей повреждён, удаляем: %v", err)
		if err := e.store.Clear(); err != nil {
			e.log.Error("Не удалось очистить хранилище патчей: %v", err)
		}
		return
	case err != nil:
		e.log.Error("Не удалось прочитать сохранённый поток патчей: %v", err)
		return
	case !found:
		return
	}

	_, span := observability.Tracer().Start(ctx, "mapengine.RestorePatches")
	defer span.End()

	redirected := e.table.ApplyPatches(blob)
	e.metrics.PatchPass(redirected)
	e.log.Info("♻️  Восстановлен поток патчей от %s (%d байт, перенаправления: %v)",
		meta.ReceivedAt.Format(time.RFC3339), meta.Size, redirected)
}

// ApplyPatches накладывает поток патчей, сбрасывает кеш и сохраняет поток в хранилище.
// Ошибка сохранения не отменяет уже наложенные патчи.
func (e *Engine) ApplyPatches(ctx context.Context, blob []byte) (bool, error) {
	_, span := observability.Tracer().Start(ctx, "mapengine.ApplyPatches",
		oteltrace.WithAttributes(attribute.Int("patch.bytes", len(blob))))
	defer span.End()

	redirected := e.table.ApplyPatches(blob)
	e.metrics.PatchPass(redirected)
	// сброс патчей тоже меняет индекс, поэтому кеш сбрасывается всегда
	e.streamer.Invalidate()

	span.SetAttributes(
		attribute.Bool("patch.redirected", redirected),
		attribute.Int("patch.facets", e.table.PatchesCount()),
	)

	if e.store != nil {
		if _, err := e.store.Save(blob, time.Now()); err != nil {
			span.RecordError(err)
			return redirected, fmt.Errorf("патчи наложены, но не сохранены: %w", err)
		}
	}
	return redirected, nil
}

// ResetPatches откатывает патчи и забывает сохранённый поток
func (e *Engine) ResetPatches() error {
	e.table.ResetPatches()
	e.streamer.Invalidate()

	if e.store != nil {
		return e.store.Clear()
	}
	return nil
}

// SwitchVariant переключает фасет на X-вариант файлов (или обратно)
func (e *Engine) SwitchVariant(ctx context.Context, facet int, extended bool) error {
	_, span := observability.Tracer().Start(ctx, "mapengine.SwitchVariant",
		oteltrace.WithAttributes(attribute.Int("facet", facet), attribute.Bool("extended", extended)))
	defer span.End()

	if err := e.table.LoadMap(facet, extended); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "switch failed")
		return err
	}
	e.streamer.Invalidate()
	return nil
}

// Chunk снимок блока (bx, by) фасета
func (e *Engine) Chunk(ctx context.Context, facet, bx, by int) (*world.Snapshot, error) {
	return e.streamer.Chunk(ctx, e.table.SanitizeFacet(facet), bx, by)
}

// Prefetch предзагрузка блоков фасета в кеш; список удобно строить через world.Area
func (e *Engine) Prefetch(ctx context.Context, facet int, blocks []vec.Vec2) (world.PrefetchResult, error) {
	return e.streamer.Prefetch(ctx, e.table.SanitizeFacet(facet), blocks)
}

// TileZ высота тайла в абсолютных координатах
func (e *Engine) TileZ(facet, x, y int) int8 {
	return e.streamer.TileZ(e.table.SanitizeFacet(facet), x, y)
}

// Table индекс блоков
func (e *Engine) Table() *mapindex.Table {
	return e.table
}

// Metrics экспортёр метрик движка
func (e *Engine) Metrics() *metrics.Exporter {
	return e.metrics
}

// Close останавливает HTTP метрик и закрывает кеш, хранилище и файлы карт
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var errs []error
		if err := e.metrics.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		if e.cache != nil {
			e.cache.Close()
		}
		if e.store != nil {
			if err := e.store.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := e.table.Close(); err != nil {
			errs = append(errs, err)
		}
		e.closeErr = errors.Join(errs...)
		e.log.Info("👋 Движок карты остановлен")
	})
	return e.closeErr
}
