// Package world декодирует блоки мира 8x8 в тайлы рельефа со статикой
// и отдаёт их слою отрисовки.
package world

import (
	"encoding/binary"

	"github.com/annel0/mapengine/internal/assets/mapindex"
	"github.com/annel0/mapengine/internal/vec"
)

// MinZ высота "ниже мира" для точек без данных
const MinZ int8 = -125

// terrainMask старшие 2 бита идентификатора рельефа не относятся к типу тайла
const terrainMask = 0x3FFF

// Static объект статики на тайле
type Static struct {
	Graphic   uint16
	Hue       uint16
	Z         int8
	PackedPos uint8 // localY*8+localX внутри блока
	X, Y      int   // абсолютные координаты тайла
}

// Tile тайл рельефа
type Tile struct {
	X, Y      int
	Z         int8
	TerrainID uint16
	Statics   []Static
}

// clearStatics очищает статику, сохраняя ёмкость среза
func (t *Tile) clearStatics() {
	clear(t.Statics)
	t.Statics = t.Statics[:0]
}

// decodeCell читает ячейку рельефа номер cell из блока
func decodeCell(block []byte, cell int) (uint16, int8) {
	off := mapindex.MapBlockHeaderSize + cell*mapindex.MapCellSize
	id := binary.LittleEndian.Uint16(block[off:])
	return id & terrainMask, int8(block[off+2])
}

// staticRecord запись файла статики
type staticRecord struct {
	color uint16
	x, y  uint8
	z     int8
	hue   uint16
}

func decodeStatic(b []byte) staticRecord {
	_ = b[mapindex.StaticsRecordSize-1]
	return staticRecord{
		color: binary.LittleEndian.Uint16(b[0:2]),
		x:     b[2],
		y:     b[3],
		z:     int8(b[4]),
		hue:   binary.LittleEndian.Uint16(b[5:7]),
	}
}

// placement проверяет запись и возвращает позицию в блоке.
// Пустой и служебный цвет, а также координаты вне блока 8x8 отбрасываются.
func (r staticRecord) placement() (vec.Vec2, bool) {
	if r.color == 0 || r.color == 0xFFFF {
		return vec.Vec2{}, false
	}
	if r.x >= vec.BlockSize || r.y >= vec.BlockSize {
		return vec.Vec2{}, false
	}
	return vec.Vec2{X: int(r.x), Y: int(r.y)}, true
}
