package mapindex

import (
	"strconv"
	"strings"

	"github.com/annel0/mapengine/internal/logging"
)

// FacetSize размер фасета в тайлах
type FacetSize struct {
	Width  int
	Height int
}

// Blocks размер фасета в блоках 8x8
func (s FacetSize) Blocks() (int, int) {
	return s.Width >> 3, s.Height >> 3
}

// legacyFacetWidth ширина фасетов 0 и 1 у старых клиентов
const legacyFacetWidth = 6144

// legacyFacetBlocks число блоков в map0.mul старого клиента
const legacyFacetBlocks = 393216

// DefaultFacetSizes встроенные размеры фасетов
func DefaultFacetSizes() []FacetSize {
	return []FacetSize{
		{Width: 7168, Height: 4096},
		{Width: 7168, Height: 4096},
		{Width: 2304, Height: 1600},
		{Width: 2560, Height: 2048},
		{Width: 1448, Height: 1448},
		{Width: 1280, Height: 4096},
	}
}

// ParseLayouts разбирает строку "w,h;w,h;...". Число фасетов равно числу пар;
// для некорректной пары остаётся встроенный размер фасета с этим индексом (или 0x0).
// Пустая строка даёт встроенные размеры.
func ParseLayouts(layouts string) []FacetSize {
	defaults := DefaultFacetSizes()
	if strings.TrimSpace(layouts) == "" {
		return defaults
	}

	var values []string
	for _, v := range strings.Split(layouts, ";") {
		if strings.TrimSpace(v) != "" {
			values = append(values, v)
		}
	}

	sizes := make([]FacetSize, len(values))
	for index, value := range values {
		if index < len(defaults) {
			sizes[index] = defaults[index]
		}

		var parts []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}

		if len(parts) < 2 {
			logging.Error("Ошибка разбора размеров фасета %d: '%s'", index, value)
			continue
		}

		width, errW := strconv.Atoi(parts[0])
		height, errH := strconv.Atoi(parts[1])
		if errW != nil || errH != nil || width < 0 || height < 0 {
			logging.Error("Ошибка разбора размеров фасета %d: '%s'", index, value)
			continue
		}

		sizes[index] = FacetSize{Width: width, Height: height}
		logging.Trace("Размер фасета %d переопределён: %d,%d", index, width, height)
	}

	return sizes
}
