package mapindex

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/annel0/mapengine/internal/assets/uofile"
	"github.com/annel0/mapengine/internal/logging"
)

// facetFiles файлы одного варианта фасета (основного или X)
type facetFiles struct {
	mapFile uofile.FileReader
	statics uofile.FileReader
	staidx  uofile.FileReader
}

// diffFiles источники патчей фасета
type diffFiles struct {
	mapList    uofile.FileReader // mapdifl: номера блоков
	mapData    uofile.FileReader // mapdif: блоки рельефа
	staticList uofile.FileReader // stadifl: номера блоков
	staticInfo uofile.FileReader // stadifi: записи индекса статики
	staticData uofile.FileReader // stadif: статика
}

// containerPattern шаблон имён записей контейнера фасета.
// X-вариант использует тот же шаблон, что и основной.
func containerPattern(facet int) string {
	return fmt.Sprintf("build/map%dlegacymul/%%08d.dat", facet)
}

// probeFacet ищет файлы фасета в каталоге установки.
// Возвращает true, если найден основной файл рельефа.
func (t *Table) probeFacet(f *facet) (bool, error) {
	i := f.index
	found := false

	uopPath := t.path(fmt.Sprintf("map%dLegacyMUL.uop", i))
	if fileExists(uopPath) {
		uop, err := t.openContainer(uopPath, containerPattern(i))
		if err != nil {
			return false, err
		}
		f.files.mapFile = uop
		found = true

		xPath := t.path(fmt.Sprintf("map%dxLegacyMUL.uop", i))
		if fileExists(xPath) {
			uopX, err := t.openContainer(xPath, containerPattern(i))
			if err != nil {
				return false, err
			}
			f.filesX.mapFile = uopX
		}
	} else {
		mapFile, err := t.openOptional(fmt.Sprintf("map%d.mul", i))
		if err != nil {
			return false, err
		}
		if mapFile != nil {
			f.files.mapFile = mapFile
			found = true

			if f.filesX.mapFile, err = t.openOptional(fmt.Sprintf("map%dx.mul", i)); err != nil {
				return false, err
			}
		}
	}

	var err error
	opts := []struct {
		target *uofile.FileReader
		name   string
	}{
		{&f.files.statics, fmt.Sprintf("statics%d.mul", i)},
		{&f.files.staidx, fmt.Sprintf("staidx%d.mul", i)},
		{&f.filesX.statics, fmt.Sprintf("statics%dx.mul", i)},
		{&f.filesX.staidx, fmt.Sprintf("staidx%dx.mul", i)},
		{&f.diff.mapList, fmt.Sprintf("mapdifl%d.mul", i)},
		{&f.diff.mapData, fmt.Sprintf("mapdif%d.mul", i)},
		{&f.diff.staticList, fmt.Sprintf("stadifl%d.mul", i)},
		{&f.diff.staticInfo, fmt.Sprintf("stadifi%d.mul", i)},
		{&f.diff.staticData, fmt.Sprintf("stadif%d.mul", i)},
	}
	for _, o := range opts {
		if *o.target, err = t.openOptional(o.name); err != nil {
			return false, err
		}
	}

	return found, nil
}

// openOptional открывает плоский файл, если он есть; отсутствие файла не ошибка
func (t *Table) openOptional(name string) (uofile.FileReader, error) {
	path := t.path(name)
	if !fileExists(path) {
		return nil, nil
	}

	mul, err := uofile.OpenMul(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть %s: %w", path, err)
	}

	t.register(mul)
	logging.Debug("Найден %s (%s)", name, humanize.Bytes(uint64(mul.Length())))
	return mul, nil
}

func (t *Table) openContainer(path, pattern string) (uofile.FileReader, error) {
	uop, err := uofile.OpenUop(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть контейнер %s: %w", path, err)
	}
	uop.FillEntries(pattern)

	t.register(uop)
	logging.Debug("Найден контейнер %s (%s, записей: %d)", filepath.Base(path), humanize.Bytes(uint64(uop.Length())), uop.HashCount())
	return uop, nil
}

func (t *Table) path(name string) string {
	return filepath.Join(t.dir, name)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
