// Package metrics экспортирует метрики движка карты в Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/mapengine/internal/logging"
)

const namespace = "mapengine"

// Exporter набор метрик движка на собственном реестре.
// Все методы допускают nil-получатель: без экспортёра метрики просто не пишутся.
type Exporter struct {
	registry *prometheus.Registry
	server   *http.Server

	indexBuild    *prometheus.HistogramVec
	blocksIndexed *prometheus.GaugeVec
	patchPasses   *prometheus.CounterVec
	decodes       *prometheus.CounterVec
	decodeTime    prometheus.Histogram
	cacheLookups  *prometheus.CounterVec
}

// NewExporter создаёт экспортёр, но не запускает HTTP-сервер.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		indexBuild: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_build_seconds",
			Help:      "Время построения индекса блоков фасета.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"facet"}),
		blocksIndexed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blocks_indexed",
			Help:      "Число блоков в индексе фасета.",
		}, []string{"facet"}),
		patchPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patch_passes_total",
			Help:      "Проходы наложения патчей; redirected=true, если перенаправлен хотя бы один блок.",
		}, []string{"redirected"}),
		decodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_decodes_total",
			Help:      "Декодирование блоков по результату.",
		}, []string{"result"}),
		decodeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_decode_seconds",
			Help:      "Время декодирования одного блока.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_cache_lookups_total",
			Help:      "Обращения к кешу снимков блоков.",
		}, []string{"result"}),
	}

	e.registry.MustRegister(e.indexBuild, e.blocksIndexed, e.patchPasses, e.decodes, e.decodeTime, e.cacheLookups)
	return e
}

// Registry реестр метрик
func (e *Exporter) Registry() *prometheus.Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// IndexBuilt фиксирует построение индекса фасета
func (e *Exporter) IndexBuilt(facet, blocks int, elapsed time.Duration) {
	if e == nil {
		return
	}
	label := strconv.Itoa(facet)
	e.indexBuild.WithLabelValues(label).Observe(elapsed.Seconds())
	e.blocksIndexed.WithLabelValues(label).Set(float64(blocks))
}

// PatchPass фиксирует проход наложения патчей
func (e *Exporter) PatchPass(redirected bool) {
	if e == nil {
		return
	}
	e.patchPasses.WithLabelValues(strconv.FormatBool(redirected)).Inc()
}

// ChunkDecoded фиксирует декодирование блока
func (e *Exporter) ChunkDecoded(result string, elapsed time.Duration) {
	if e == nil {
		return
	}
	e.decodes.WithLabelValues(result).Inc()
	e.decodeTime.Observe(elapsed.Seconds())
}

// CacheLookup фиксирует обращение к кешу
func (e *Exporter) CacheLookup(hit bool) {
	if e == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	e.cacheLookups.WithLabelValues(result).Inc()
}

// Handler HTTP-обработчик /metrics
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// StartHTTP запускает HTTP-эндпоинт Prometheus на указанном адресе (например, ":2112").
// Метод неблокирующий: HTTP-сервер стартует в отдельной горутине.
func (e *Exporter) StartHTTP(addr string) {
	if e == nil || addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	e.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logging.Info("📈 Prometheus /metrics доступен по адресу %s", addr)
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Ошибка Prometheus HTTP сервера: %v", err)
		}
	}()
}

// Stop останавливает HTTP-сервер, если он запущен
func (e *Exporter) Stop(ctx context.Context) error {
	if e == nil || e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}
