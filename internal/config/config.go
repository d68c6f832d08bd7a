package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации движка карт.
type Config struct {
	Assets    AssetsConfig    `yaml:"assets"`
	Cache     CacheConfig     `yaml:"cache"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AssetsConfig описывает каталог установки и раскладку фасетов
type AssetsConfig struct {
	// InstallDir каталог с файлами мира (map0.mul, staidx0.mul, ...)
	InstallDir string `yaml:"install_dir"`
	// MapsLayouts переопределение размеров фасетов: "w,h;w,h;..."
	MapsLayouts string `yaml:"maps_layouts"`
	// LegacyClient старый клиент: фасеты 0 и 1 шириной 6144 тайла
	LegacyClient bool `yaml:"legacy_client"`
	// ExtendedFacets фасеты, для которых сразу включаются X-варианты файлов
	ExtendedFacets []int `yaml:"extended_facets"`
	// PrefetchWorkers число параллельных декодеров при предзагрузке
	PrefetchWorkers int `yaml:"prefetch_workers"`
	// PoolSize размер пула декодеров чанков
	PoolSize int `yaml:"pool_size"`
}

// CacheConfig настройки кеша декодированных чанков
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	// MaxCost суммарная стоимость (тайлы + статики) кешируемых чанков
	MaxCost int64 `yaml:"max_cost"`
}

// StorageConfig настройки хранилища последнего патча
type StorageConfig struct {
	// Path каталог BadgerDB; пустая строка отключает хранилище
	Path string `yaml:"path"`
}

// MetricsConfig настройки Prometheus
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// TelemetryConfig настройки OpenTelemetry
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// LoggingConfig настройки логирования
type LoggingConfig struct {
	Level string `yaml:"level"`
}

const (
	defaultPrefetchWorkers = 4
	defaultPoolSize        = 64
	defaultCacheMaxCost    = 1 << 20
)

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Assets: AssetsConfig{
			InstallDir: ".",
			PoolSize:   defaultPoolSize,
		},
		Cache: CacheConfig{
			Enabled: true,
			MaxCost: defaultCacheMaxCost,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "mapengine",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV MAPENGINE_CONFIG; если и он пуст, только дефолты и ENV.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("MAPENGINE_CONFIG")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("не удалось прочитать конфигурацию %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv применяет переменные окружения: они важнее значений из файла
func (c *Config) applyEnv() {
	if dir := os.Getenv("MAPENGINE_UO_DIR"); dir != "" {
		c.Assets.InstallDir = dir
	}
	if layouts := os.Getenv("MAPENGINE_MAPS_LAYOUTS"); layouts != "" {
		c.Assets.MapsLayouts = layouts
	}
	if addr := os.Getenv("MAPENGINE_METRICS_ADDR"); addr != "" {
		c.Metrics.Addr = addr
	}
	c.Assets.PrefetchWorkers = getIntWithEnvFallback(c.Assets.PrefetchWorkers, "MAPENGINE_PREFETCH_WORKERS", defaultPrefetchWorkers)
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Assets.InstallDir) == "" {
		return fmt.Errorf("assets.install_dir не задан")
	}
	if c.Assets.PoolSize <= 0 {
		c.Assets.PoolSize = defaultPoolSize
	}
	if c.Assets.PrefetchWorkers <= 0 {
		c.Assets.PrefetchWorkers = defaultPrefetchWorkers
	}
	if c.Cache.Enabled && c.Cache.MaxCost <= 0 {
		c.Cache.MaxCost = defaultCacheMaxCost
	}
	for _, facet := range c.Assets.ExtendedFacets {
		if facet < 0 {
			return fmt.Errorf("assets.extended_facets: отрицательный индекс фасета %d", facet)
		}
	}
	return nil
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configValue int, envVar string, defaultValue int) int {
	if configValue > 0 {
		return configValue
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}

	return defaultValue
}
