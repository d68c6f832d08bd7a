package mapindex

import (
	"encoding/binary"
	"errors"

	"github.com/annel0/mapengine/internal/assets/uofile"
	"github.com/annel0/mapengine/internal/logging"
)

var errPatchTruncated = errors.New("поток патчей обрывается")

// patchStream big-endian чтение управляющего потока патчей с проверкой границ
type patchStream struct {
	data []byte
	pos  int
}

func (s *patchStream) uint32() (uint32, error) {
	if len(s.data)-s.pos < 4 {
		return 0, errPatchTruncated
	}
	v := binary.BigEndian.Uint32(s.data[s.pos:])
	s.pos += 4
	return v, nil
}

func (s *patchStream) skip(n int) error {
	if len(s.data)-s.pos < n {
		s.pos = len(s.data)
		return errPatchTruncated
	}
	s.pos += n
	return nil
}

// ApplyPatches сбрасывает все патчи и накладывает новый набор из управляющего потока.
// Повторное применение того же потока даёт то же состояние индекса.
// Обрыв потока или diff-файлов прекращает разбор без ошибки: уже наложенные патчи остаются.
// Возвращает true, если хотя бы один блок перенаправлен.
func (t *Table) ApplyPatches(blob []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.loaded {
		return false
	}

	t.resetPatchesLocked()

	stream := &patchStream{data: blob}
	logging.Trace("Поток патчей, %d байт:\n%s", len(blob), logging.HexDump(blob[:min(len(blob), 64)]))

	count, err := stream.uint32()
	if err != nil {
		logging.Warn("Пустой поток патчей (%d байт)", len(blob))
		return false
	}

	patches := int(int32(count))
	if patches < 0 {
		patches = 0
	}
	if patches > len(t.facets) {
		patches = len(t.facets)
	}
	t.patchesCount = patches

	result := false
	for i := 0; i < patches; i++ {
		f := t.facets[i]

		if !f.built || uofile.IsEmpty(f.current.mapFile) {
			if err := stream.skip(8); err != nil {
				logging.Warn("Поток патчей оборвался на фасете %d", i)
				break
			}
			continue
		}

		mapCount, err := stream.uint32()
		if err != nil {
			logging.Warn("Поток патчей оборвался на фасете %d", i)
			break
		}
		staticCount, err := stream.uint32()
		if err != nil {
			logging.Warn("Поток патчей оборвался на фасете %d", i)
			break
		}

		f.mapPatchCount = int(int32(mapCount))
		f.staticPatchCount = int(int32(staticCount))

		if f.mapPatchCount > 0 {
			applied, ok := t.applyMapDiff(f, f.mapPatchCount)
			if !ok {
				continue
			}
			result = result || applied
		}

		if f.staticPatchCount > 0 {
			applied, ok := t.applyStaticDiff(f, f.staticPatchCount)
			if !ok {
				continue
			}
			result = result || applied
		}
	}

	logging.Info("Патчи применены: фасетов %d, перенаправления: %v", patches, result)
	return result
}

// applyMapDiff перенаправляет блоки рельефа в mapdif. Позиция в mapdif сдвигается
// на размер блока на каждой записи, даже если номер блока вне фасета.
// ok=false, если у фасета нет источников патчей.
func (t *Table) applyMapDiff(f *facet, count int) (applied, ok bool) {
	list, data := f.diff.mapList, f.diff.mapData
	if uofile.IsEmpty(list) || uofile.IsEmpty(data) {
		logging.Warn("Фасет %d: объявлено %d патчей рельефа, но нет mapdifl/mapdif", f.index, count)
		return false, false
	}

	if limit := int(list.Length() >> 2); count > limit {
		count = limit
	}

	dataID := t.register(data)
	maxBlockCount := uint32(len(f.blocks))

	cur := uofile.NewCursor(list)
	var address uint64
	for j := 0; j < count; j++ {
		blockIndex, err := cur.ReadUint32()
		if err != nil {
			break
		}
		if address+MapBlockSize > uint64(data.Length()) {
			logging.Warn("Фасет %d: mapdif обрывается на записи %d", f.index, j)
			break
		}

		if blockIndex < maxBlockCount {
			r := &f.blocks[blockIndex]
			r.mapFile = dataID
			r.mapAddress = address
			applied = true
		} else {
			logging.Debug("Фасет %d: номер блока патча %d вне фасета", f.index, blockIndex)
		}

		address += MapBlockSize
	}

	return applied, true
}

// applyStaticDiff перенаправляет статику блоков в stadif по записям stadifi
func (t *Table) applyStaticDiff(f *facet, count int) (applied, ok bool) {
	list, info, data := f.diff.staticList, f.diff.staticInfo, f.diff.staticData
	if uofile.IsEmpty(list) || uofile.IsEmpty(info) || uofile.IsEmpty(data) {
		logging.Warn("Фасет %d: объявлено %d патчей статики, но нет stadifl/stadifi/stadif", f.index, count)
		return false, false
	}

	if limit := int(list.Length() >> 2); count > limit {
		count = limit
	}

	dataID := t.register(data)
	maxBlockCount := uint32(len(f.blocks))

	listCur := uofile.NewCursor(list)
	infoCur := uofile.NewCursor(info)
	record := make([]byte, StaidxRecordSize)

	for j := 0; j < count; j++ {
		if listCur.Remaining() == 0 || infoCur.Remaining() == 0 {
			break
		}

		blockIndex, err := listCur.ReadUint32()
		if err != nil {
			break
		}
		if err := infoCur.ReadFull(record); err != nil {
			logging.Warn("Фасет %d: stadifi обрывается на записи %d", f.index, j)
			break
		}

		if blockIndex >= maxBlockCount {
			logging.Debug("Фасет %d: номер блока патча статики %d вне фасета", f.index, blockIndex)
			continue
		}

		address, staticCount := DecodeStaidx(record).Resolve()

		r := &f.blocks[blockIndex]
		r.staticFile = dataID
		r.staticAddress = address
		r.staticCount = uint16(staticCount)
		applied = true
	}

	return applied, true
}

// resetPatchesLocked возвращает все записи всех фасетов к исходным значениям
func (t *Table) resetPatchesLocked() {
	t.patchesCount = 0
	for _, f := range t.facets {
		f.mapPatchCount = 0
		f.staticPatchCount = 0
		for i := range f.blocks {
			f.blocks[i].reset()
		}
	}
}

// ResetPatches откатывает все наложенные патчи
func (t *Table) ResetPatches() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetPatchesLocked()
}

// PatchesCount число фасетов в последнем потоке патчей
func (t *Table) PatchesCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.patchesCount
}

// MapPatchCount объявленное число патчей рельефа фасета
func (t *Table) MapPatchCount(facetIndex int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if facetIndex < 0 || facetIndex >= len(t.facets) {
		return 0
	}
	return t.facets[facetIndex].mapPatchCount
}

// StaticPatchCount объявленное число патчей статики фасета
func (t *Table) StaticPatchCount(facetIndex int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if facetIndex < 0 || facetIndex >= len(t.facets) {
		return 0
	}
	return t.facets[facetIndex].staticPatchCount
}
