package mapindex

import (
	"encoding/binary"
	"math"

	"github.com/annel0/mapengine/internal/assets/uofile"
)

// Размеры записей файлов мира
const (
	// MapBlockSize блок рельефа: 4 байта заголовка + 64 ячейки по 3 байта
	MapBlockSize = 4 + CellsPerBlock*MapCellSize
	// MapCellSize ячейка рельефа: uint16 id + int8 высота
	MapCellSize = 3
	// MapBlockHeaderSize заголовок блока рельефа (не используется)
	MapBlockHeaderSize = 4
	// CellsPerBlock ячеек в блоке 8x8
	CellsPerBlock = 64
	// StaidxRecordSize запись индекса статики: position, size, reserved
	StaidxRecordSize = 12
	// StaticsRecordSize запись статики: color, x, y, z, hue
	StaticsRecordSize = 7
	// MaxStaticCount максимум статик на блок
	MaxStaticCount = 1024
	// BlocksPerGroup блоков в одной группе контейнера
	BlocksPerGroup = 4096

	// InvalidAddress смещение блока без данных
	InvalidAddress = math.MaxUint64
	// NoStaticsPosition позиция записи индекса статики "нет данных"
	NoStaticsPosition = 0xFFFFFFFF
)

// IndexEntry где сейчас лежат данные одного блока
type IndexEntry struct {
	MapFile       uofile.FileReader
	StaticFile    uofile.FileReader
	MapAddress    uint64
	StaticAddress uint64
	StaticCount   uint32

	OriginalMapFile       uofile.FileReader
	OriginalStaticFile    uofile.FileReader
	OriginalMapAddress    uint64
	OriginalStaticAddress uint64
	OriginalStaticCount   uint32
}

// InvalidEntry запись "здесь нет данных"
var InvalidEntry = IndexEntry{MapAddress: InvalidAddress, OriginalMapAddress: InvalidAddress}

// IsValid false для записи-сентинела
func (e IndexEntry) IsValid() bool {
	return e.MapAddress != InvalidAddress
}

// HasStatics есть ли у блока статика для чтения
func (e IndexEntry) HasStatics() bool {
	return e.StaticFile != nil && e.StaticCount > 0
}

// IsPatched перенаправлена ли запись патчем
func (e IndexEntry) IsPatched() bool {
	return e.MapFile != e.OriginalMapFile || e.MapAddress != e.OriginalMapAddress ||
		e.StaticFile != e.OriginalStaticFile || e.StaticAddress != e.OriginalStaticAddress ||
		e.StaticCount != e.OriginalStaticCount
}

// StaidxRecord запись файла индекса статики
type StaidxRecord struct {
	Position uint32
	Size     uint32
	Reserved uint32
}

// DecodeStaidx декодирует 12-байтовую запись; b должен содержать не меньше StaidxRecordSize байт
func DecodeStaidx(b []byte) StaidxRecord {
	_ = b[StaidxRecordSize-1]
	return StaidxRecord{
		Position: binary.LittleEndian.Uint32(b[0:4]),
		Size:     binary.LittleEndian.Uint32(b[4:8]),
		Reserved: binary.LittleEndian.Uint32(b[8:12]),
	}
}

// Resolve смещение и число статик блока; пустая запись даёт (0, 0)
func (r StaidxRecord) Resolve() (uint64, uint32) {
	if r.Size == 0 || r.Position == NoStaticsPosition {
		return 0, 0
	}
	return uint64(r.Position), StaticCountFor(r.Size)
}

// StaticCountFor число статик в области size байт, не больше MaxStaticCount
func StaticCountFor(size uint32) uint32 {
	count := size / StaticsRecordSize
	if count > MaxStaticCount {
		count = MaxStaticCount
	}
	return count
}

// fileHandle номер файла в реестре таблицы; 0 означает отсутствие файла
type fileHandle uint32

// blockRecord компактное хранение IndexEntry: файлы заменены номерами в реестре таблицы
type blockRecord struct {
	mapAddress    uint64
	staticAddress uint64

	origMapAddress    uint64
	origStaticAddress uint64

	staticCount     uint16
	origStaticCount uint16

	mapFile        fileHandle
	staticFile     fileHandle
	origMapFile    fileHandle
	origStaticFile fileHandle
}

// reset возвращает запись к исходному состоянию
func (r *blockRecord) reset() {
	r.mapAddress = r.origMapAddress
	r.staticAddress = r.origStaticAddress
	r.staticCount = r.origStaticCount
	r.mapFile = r.origMapFile
	r.staticFile = r.origStaticFile
}

func newBlockRecord(mapFile fileHandle, mapAddress uint64, staticFile fileHandle, staticAddress uint64, staticCount uint32) blockRecord {
	return blockRecord{
		mapAddress:        mapAddress,
		staticAddress:     staticAddress,
		staticCount:       uint16(staticCount),
		mapFile:           mapFile,
		staticFile:        staticFile,
		origMapAddress:    mapAddress,
		origStaticAddress: staticAddress,
		origStaticCount:   uint16(staticCount),
		origMapFile:       mapFile,
		origStaticFile:    staticFile,
	}
}
