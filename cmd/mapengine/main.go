package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/annel0/mapengine/internal/app"
	"github.com/annel0/mapengine/internal/config"
	"github.com/annel0/mapengine/internal/logging"
	"github.com/annel0/mapengine/internal/observability"
	"github.com/annel0/mapengine/internal/vec"
	"github.com/annel0/mapengine/internal/world"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $MAPENGINE_CONFIG)")
	patchPath := flag.String("patch", "", "файл с потоком патчей для наложения при старте")
	prefetch := flag.Int("prefetch", 0, "предзагрузить квадрат N x N блоков фасета 0 от начала координат")
	flag.Parse()

	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("mapengine"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("❌ Ошибка загрузки конфигурации: %v", err)
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	level := logging.ParseLevel(cfg.Logging.Level)
	logging.DefaultLogger().SetLevels(level, level)

	logging.Info("🗺️  Запуск движка карты (каталог: %s)", cfg.Assets.InstallDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === ТРАССИРОВКА ===
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
		if err != nil {
			logging.Warn("OpenTelemetry недоступен: %v", err)
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logging.Warn("Ошибка остановки OpenTelemetry: %v", err)
				}
			}()
		}
	}

	// === ДВИЖОК ===
	engine, err := app.Open(ctx, cfg)
	if err != nil {
		logging.Error("❌ Ошибка загрузки карт: %v", err)
		log.Fatalf("❌ Ошибка загрузки карт: %v", err)
	}
	defer engine.Close()

	table := engine.Table()
	for facet := 0; facet < table.FacetCount(); facet++ {
		if table.MapFile(facet) == nil {
			continue
		}
		w, h := table.BlockSize(facet)
		logging.Info("   🧱 Фасет %d: %dx%d блоков (%s)", facet, w, h, table.MapFile(facet).Name())
	}

	if *patchPath != "" {
		blob, err := os.ReadFile(*patchPath)
		if err != nil {
			logging.Error("❌ Не удалось прочитать поток патчей: %v", err)
		} else {
			redirected, err := engine.ApplyPatches(ctx, blob)
			if err != nil {
				logging.Warn("%v", err)
			}
			logging.Info("🩹 Патчи наложены (перенаправления: %v)", redirected)
		}
	}

	if *prefetch > 0 {
		n := *prefetch*vec.BlockSize - 1
		res, err := engine.Prefetch(ctx, 0, world.Area(0, 0, n, n))
		if err != nil {
			logging.Warn("Предзагрузка прервана: %v", err)
		}
		logging.Info("📦 Предзагружено блоков: %d (без данных: %d)", res.Loaded, res.NoData)
	}

	if cfg.Metrics.Addr != "" {
		logging.Info("   📈 Метрики: http://localhost%s/metrics", cfg.Metrics.Addr)
	}
	logging.Info("✅ Движок карты готов")

	logging.Debug("Ожидание сигналов завершения...")
	<-ctx.Done()
	logging.Info("📡 Получен сигнал завершения, остановка...")
}
