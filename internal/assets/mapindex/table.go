// Package mapindex строит индекс блоков мира: для каждой координаты блока фасета:
// в каком файле и по какому смещению лежат рельеф и статика. Индекс поддерживает
// наложение патчей (diff-файлы) и их откат к исходному состоянию.
package mapindex

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/mapengine/internal/assets/uofile"
	"github.com/annel0/mapengine/internal/logging"
)

var (
	ErrNoMapsFound = errors.New("mapindex: не найдено ни одного файла карты")
	ErrNotLoaded   = errors.New("mapindex: таблица не загружена")
)

// staidxBatchBlocks сколько записей индекса статики читается за один вызов ReadAt
const staidxBatchBlocks = BlocksPerGroup

// Options параметры таблицы
type Options struct {
	// Dir каталог установки
	Dir string
	// Layouts размеры фасетов; nil означает встроенные
	Layouts []FacetSize
	// LegacyClient фасеты 0 и 1 шириной 6144 тайла
	LegacyClient bool
	// OnBuilt вызывается после построения индекса фасета (под блокировкой таблицы)
	OnBuilt func(facet, blocks int, elapsed time.Duration)
}

// facet состояние одного фасета
type facet struct {
	index int

	files  facetFiles
	filesX facetFiles
	diff   diffFiles

	// aliased фасет 1 без собственных файлов использует файлы фасета 0
	aliased  bool
	aliasedX bool

	// current файлы активного варианта
	current  facetFiles
	extended bool
	built    bool

	width, height int // в блоках
	blocks        []blockRecord

	mapPatchCount    int
	staticPatchCount int
}

// Table индекс блоков всех фасетов.
// Чтение (GetIndex, View) идёт под RLock; построение и патчи под Lock на всё время операции.
type Table struct {
	mu sync.RWMutex

	dir          string
	sizes        []FacetSize
	legacyClient bool
	onBuilt      func(facet, blocks int, elapsed time.Duration)
	facets       []*facet
	loaded       bool

	// реестр открытых файлов; номер 0 зарезервирован под nil
	handles   []uofile.FileReader
	handleIDs map[uofile.FileReader]fileHandle

	patchesCount int
}

// NewTable создаёт незагруженную таблицу
func NewTable(opts Options) *Table {
	sizes := opts.Layouts
	if sizes == nil {
		sizes = DefaultFacetSizes()
	}
	sizes = append([]FacetSize(nil), sizes...)

	facets := make([]*facet, len(sizes))
	for i := range facets {
		facets[i] = &facet{index: i}
	}

	return &Table{
		dir:          opts.Dir,
		sizes:        sizes,
		legacyClient: opts.LegacyClient,
		onBuilt:      opts.OnBuilt,
		facets:       facets,
		handles:      []uofile.FileReader{nil},
		handleIDs:    make(map[uofile.FileReader]fileHandle),
	}
}

// Load ищет файлы всех фасетов и строит индекс основного варианта каждого фасета.
// Ошибка ввода-вывода или отсутствие всех карт фатальны.
func (t *Table) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.loaded {
		return nil
	}

	foundOneMap := false
	for _, f := range t.facets {
		found, err := t.probeFacet(f)
		if err != nil {
			t.closeLocked()
			return err
		}
		foundOneMap = foundOneMap || found
	}

	if !foundOneMap {
		t.closeLocked()
		return fmt.Errorf("%w в %s", ErrNoMapsFound, t.dir)
	}

	t.applyLegacyWidth()
	t.applyFacetAliases()
	t.loaded = true

	for _, f := range t.facets {
		if f.files.mapFile == nil {
			continue
		}
		if err := t.buildLocked(f, false); err != nil {
			t.closeLocked()
			return err
		}
	}

	return nil
}

// applyLegacyWidth старые клиенты хранят фасеты 0 и 1 шириной 6144 тайла
func (t *Table) applyLegacyWidth() {
	legacy := t.legacyClient
	if len(t.facets) > 0 && t.facets[0].files.mapFile != nil {
		legacy = legacy || t.facets[0].files.mapFile.Length()/MapBlockSize == legacyFacetBlocks
	}
	if !legacy {
		return
	}

	for i := 0; i < 2 && i < len(t.sizes); i++ {
		t.sizes[i].Width = legacyFacetWidth
	}
	logging.Debug("Старый формат карты: ширина фасетов 0 и 1 = %d", legacyFacetWidth)
}

// applyFacetAliases фасет 1 без собственных (или с пустыми) файлами использует файлы фасета 0.
// Для основного и X-варианта правило применяется независимо.
func (t *Table) applyFacetAliases() {
	if len(t.facets) < 2 {
		return
	}
	f0, f1 := t.facets[0], t.facets[1]

	if uofile.IsEmpty(f1.files.mapFile) {
		f1.files = f0.files
		f1.aliased = true
		logging.Debug("Фасет 1 использует файлы фасета 0")
	}

	if uofile.IsEmpty(f1.filesX.mapFile) {
		f1.filesX = f0.filesX
		f1.aliasedX = true
	}
}

// LoadMap переключает фасет между основным и X-вариантом файлов.
// Недопустимый фасет или фасет без карты заменяется фасетом 0.
// Смена варианта полностью перестраивает индекс фасета.
func (t *Table) LoadMap(facetIndex int, useExtended bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.loaded {
		return ErrNotLoaded
	}

	if facetIndex < 0 || facetIndex >= len(t.facets) || t.facets[facetIndex].files.mapFile == nil {
		facetIndex = 0
	}

	f := t.facets[facetIndex]
	if f.built && f.extended == useExtended {
		return nil
	}

	return t.buildLocked(f, useExtended)
}

// buildLocked строит индекс фасета для выбранного варианта файлов
func (t *Table) buildLocked(f *facet, useExtended bool) error {
	files := f.files
	if useExtended {
		if f.filesX.mapFile != nil {
			files.mapFile = f.filesX.mapFile
		}
		if f.filesX.staidx != nil {
			files.staidx = f.filesX.staidx
		}
		if f.filesX.statics != nil {
			files.statics = f.filesX.statics
		}
	}

	f.blocks = nil
	f.built = false
	f.current = files
	f.extended = useExtended

	if files.mapFile == nil {
		return nil
	}

	started := time.Now()
	width, height := t.sizes[f.index].Blocks()
	maxBlockCount := width * height
	if maxBlockCount <= 0 {
		f.width, f.height = 0, 0
		f.built = true
		return nil
	}

	blocks := make([]blockRecord, maxBlockCount)
	mapID := t.register(files.mapFile)

	var staticID fileHandle
	staidx := files.staidx
	if staidx != nil && files.statics != nil {
		staticID = t.register(files.statics)
	} else {
		staidx = nil
	}

	container, isContainer := files.mapFile.(uofile.Container)
	mapLength := uint64(files.mapFile.Length())

	var (
		groupBase int64
		groupOK   bool
		group     = -1
		batch     = make([]byte, staidxBatchBlocks*StaidxRecordSize)
	)

	for start := 0; start < maxBlockCount; start += staidxBatchBlocks {
		n := staidxBatchBlocks
		if rest := maxBlockCount - start; rest < n {
			n = rest
		}

		available, err := readStaidxBatch(staidx, batch, start, n)
		if err != nil {
			return fmt.Errorf("фасет %d: %w", f.index, err)
		}

		for k := 0; k < n; k++ {
			block := start + k

			var mapPos uint64
			if isContainer {
				if g := block / BlocksPerGroup; g != group {
					group = g
					groupBase, groupOK = container.EntryOffset(g)
				}
				mapPos = uint64(groupBase) + uint64(block%BlocksPerGroup)*MapBlockSize
			} else {
				groupOK = true
				mapPos = uint64(block) * MapBlockSize
			}

			// блок без группы в контейнере или за концом файла: данных нет
			if !groupOK || mapPos+MapBlockSize > mapLength {
				mapPos = InvalidAddress
			}

			var staticPos uint64
			var staticCount uint32
			if k < available {
				staticPos, staticCount = DecodeStaidx(batch[k*StaidxRecordSize:]).Resolve()
			}

			blocks[block] = newBlockRecord(mapID, mapPos, staticID, staticPos, staticCount)
		}
	}

	f.blocks = blocks
	f.width, f.height = width, height
	f.built = true

	variant := "основной"
	if useExtended {
		variant = "X"
	}
	logging.Info("Индекс фасета %d построен: %dx%d блоков, вариант %s (%s)", f.index, width, height, variant, files.mapFile.Name())
	if t.onBuilt != nil {
		t.onBuilt(f.index, maxBlockCount, time.Since(started))
	}
	return nil
}

// readStaidxBatch читает записи индекса статики для блоков [start, start+n).
// Возвращает число записей, целиком лежащих в файле.
func readStaidxBatch(staidx uofile.FileReader, batch []byte, start, n int) (int, error) {
	if staidx == nil {
		return 0, nil
	}

	offset := int64(start) * StaidxRecordSize
	have := staidx.Length() - offset
	if have <= 0 {
		return 0, nil
	}

	available := int(have / StaidxRecordSize)
	if available > n {
		available = n
	}
	if available == 0 {
		return 0, nil
	}

	if err := uofile.ReadAtFull(staidx, batch[:available*StaidxRecordSize], offset); err != nil {
		return 0, fmt.Errorf("чтение индекса статики: %w", err)
	}
	return available, nil
}

// GetIndex возвращает запись блока (bx, by) фасета.
// Неизвестный фасет или координата вне фасета дают InvalidEntry.
func (t *Table) GetIndex(facetIndex, bx, by int) IndexEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lookupLocked(facetIndex, bx, by)
}

// View вызывает fn с записью блока, удерживая блокировку чтения таблицы:
// пока fn работает, патчи и перестроение индекса ждут.
func (t *Table) View(facetIndex, bx, by int, fn func(IndexEntry) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fn(t.lookupLocked(facetIndex, bx, by))
}

func (t *Table) lookupLocked(facetIndex, bx, by int) IndexEntry {
	if facetIndex < 0 || facetIndex >= len(t.facets) {
		return InvalidEntry
	}

	f := t.facets[facetIndex]
	if !f.built || bx < 0 || by < 0 || bx >= f.width || by >= f.height {
		return InvalidEntry
	}

	return t.entryFrom(&f.blocks[bx*f.height+by])
}

func (t *Table) entryFrom(r *blockRecord) IndexEntry {
	return IndexEntry{
		MapFile:               t.handles[r.mapFile],
		StaticFile:            t.handles[r.staticFile],
		MapAddress:            r.mapAddress,
		StaticAddress:         r.staticAddress,
		StaticCount:           uint32(r.staticCount),
		OriginalMapFile:       t.handles[r.origMapFile],
		OriginalStaticFile:    t.handles[r.origStaticFile],
		OriginalMapAddress:    r.origMapAddress,
		OriginalStaticAddress: r.origStaticAddress,
		OriginalStaticCount:   uint32(r.origStaticCount),
	}
}

// SanitizeFacet фасет 1 без собственных данных заменяется фасетом 0
func (t *Table) SanitizeFacet(facetIndex int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if facetIndex != 1 || len(t.facets) < 2 || !t.loaded {
		return facetIndex
	}

	cur := t.facets[1].current
	if uofile.IsEmpty(cur.mapFile) || uofile.IsEmpty(cur.statics) || uofile.IsEmpty(cur.staidx) {
		return 0
	}
	return facetIndex
}

// PatchMapBlock постоянно перенаправляет рельеф блока в file по смещению address.
// Меняется и исходное значение, поэтому сброс патчей такую замену не откатывает.
// Владение file переходит таблице.
func (t *Table) PatchMapBlock(facetIndex int, file uofile.FileReader, block int, address uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.recordLocked(facetIndex, block)
	if r == nil {
		return false
	}

	id := t.register(file)
	r.mapFile, r.origMapFile = id, id
	r.mapAddress, r.origMapAddress = address, address
	return true
}

// PatchStaticBlock постоянно перенаправляет статику блока: length байт по смещению address
func (t *Table) PatchStaticBlock(facetIndex int, file uofile.FileReader, block int, address uint64, length uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.recordLocked(facetIndex, block)
	if r == nil {
		return false
	}

	id := t.register(file)
	count := uint16(StaticCountFor(length))
	r.staticFile, r.origStaticFile = id, id
	r.staticAddress, r.origStaticAddress = address, address
	r.staticCount, r.origStaticCount = count, count
	return true
}

func (t *Table) recordLocked(facetIndex, block int) *blockRecord {
	if facetIndex < 0 || facetIndex >= len(t.facets) {
		return nil
	}
	f := t.facets[facetIndex]
	if !f.built || block < 0 || block >= len(f.blocks) {
		return nil
	}
	return &f.blocks[block]
}

// register заносит файл в реестр и возвращает его номер
func (t *Table) register(file uofile.FileReader) fileHandle {
	if file == nil {
		return 0
	}
	if id, ok := t.handleIDs[file]; ok {
		return id
	}

	id := fileHandle(len(t.handles))
	t.handles = append(t.handles, file)
	t.handleIDs[file] = id
	return id
}

// FacetCount число фасетов
func (t *Table) FacetCount() int {
	return len(t.facets)
}

// BlockSize размер фасета в блоках; 0,0 для непостроенного фасета
func (t *Table) BlockSize(facetIndex int) (int, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if facetIndex < 0 || facetIndex >= len(t.facets) || !t.facets[facetIndex].built {
		return 0, 0
	}
	f := t.facets[facetIndex]
	return f.width, f.height
}

// FacetSize размер фасета в тайлах с учётом переопределений
func (t *Table) FacetSize(facetIndex int) FacetSize {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if facetIndex < 0 || facetIndex >= len(t.sizes) {
		return FacetSize{}
	}
	return t.sizes[facetIndex]
}

// IsAliased использует ли фасет основной вариант файлов фасета 0
func (t *Table) IsAliased(facetIndex int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if facetIndex < 0 || facetIndex >= len(t.facets) {
		return false
	}
	return t.facets[facetIndex].aliased
}

// IsExtended активен ли X-вариант файлов фасета
func (t *Table) IsExtended(facetIndex int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if facetIndex < 0 || facetIndex >= len(t.facets) {
		return false
	}
	return t.facets[facetIndex].extended
}

// MapFile файл рельефа активного варианта
func (t *Table) MapFile(facetIndex int) uofile.FileReader {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if facetIndex < 0 || facetIndex >= len(t.facets) {
		return nil
	}
	return t.facets[facetIndex].current.mapFile
}

// StaticFile файл статики активного варианта
func (t *Table) StaticFile(facetIndex int) uofile.FileReader {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if facetIndex < 0 || facetIndex >= len(t.facets) {
		return nil
	}
	return t.facets[facetIndex].current.statics
}

// Close закрывает все открытые файлы
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *Table) closeLocked() error {
	var lastErr error
	for _, h := range t.handles[1:] {
		if err := h.Close(); err != nil {
			lastErr = err
		}
	}

	t.handles = []uofile.FileReader{nil}
	t.handleIDs = make(map[uofile.FileReader]fileHandle)
	for i, f := range t.facets {
		t.facets[i] = &facet{index: f.index}
	}
	t.loaded = false
	return lastErr
}
