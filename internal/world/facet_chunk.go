package world

import (
	"errors"
	"fmt"

	"github.com/annel0/mapengine/internal/assets/mapindex"
	"github.com/annel0/mapengine/internal/assets/uofile"
	"github.com/annel0/mapengine/internal/vec"
)

// ErrNoData у блока нет данных рельефа (океан/пустота), в отличие от ещё не загруженного блока
var ErrNoData = errors.New("world: у блока нет данных")

// BlockSource источник записей индекса блоков.
// fn вызывается, пока запись не может быть изменена патчем.
type BlockSource interface {
	View(facet, bx, by int, fn func(mapindex.IndexEntry) error) error
}

// FacetChunk переиспользуемый декодер одного блока 8x8.
// Сетка тайлов и буферы выделяются один раз; SetTo и Unload готовят его к следующему блоку.
type FacetChunk struct {
	src    BlockSource
	coords vec.Vec2 // координаты блока

	tiles [mapindex.CellsPerBlock]Tile

	mapBuf    [mapindex.MapBlockSize]byte
	staticBuf []byte
}

// NewFacetChunk создаёт декодер для блока (bx, by)
func NewFacetChunk(src BlockSource, bx, by int) *FacetChunk {
	return &FacetChunk{
		src:       src,
		coords:    vec.Vec2{X: bx, Y: by},
		staticBuf: make([]byte, mapindex.MaxStaticCount*mapindex.StaticsRecordSize),
	}
}

// Coords координаты блока
func (c *FacetChunk) Coords() vec.Vec2 {
	return c.coords
}

// Origin тайловые координаты левого верхнего угла блока
func (c *FacetChunk) Origin() vec.Vec2 {
	return c.coords.BlockOrigin()
}

// SetTo привязывает декодер к другому блоку без перевыделения сетки
func (c *FacetChunk) SetTo(bx, by int) {
	c.coords = vec.Vec2{X: bx, Y: by}
}

// Tile тайл с локальными координатами (lx, ly); nil вне блока
func (c *FacetChunk) Tile(lx, ly int) *Tile {
	if lx < 0 || ly < 0 || lx >= vec.BlockSize || ly >= vec.BlockSize {
		return nil
	}
	return &c.tiles[ly*vec.BlockSize+lx]
}

// Load декодирует рельеф и статику блока фасета facet.
// Блок без данных даёт ErrNoData.
func (c *FacetChunk) Load(facet int) error {
	return c.src.View(facet, c.coords.X, c.coords.Y, func(e mapindex.IndexEntry) error {
		if !e.IsValid() || e.MapFile == nil {
			return fmt.Errorf("фасет %d, блок %d,%d: %w", facet, c.coords.X, c.coords.Y, ErrNoData)
		}

		if err := uofile.ReadAtFull(e.MapFile, c.mapBuf[:], int64(e.MapAddress)); err != nil {
			return fmt.Errorf("чтение рельефа блока %d,%d: %w", c.coords.X, c.coords.Y, err)
		}

		origin := c.Origin()
		for cell := range c.tiles {
			t := &c.tiles[cell]
			t.X = origin.X + cell%vec.BlockSize
			t.Y = origin.Y + cell/vec.BlockSize
			t.TerrainID, t.Z = decodeCell(c.mapBuf[:], cell)
			t.clearStatics()
		}

		if !e.HasStatics() {
			return nil
		}

		count := inFileStatics(e)
		if count == 0 {
			return nil
		}
		raw := c.staticBuf[:count*mapindex.StaticsRecordSize]
		if err := uofile.ReadAtFull(e.StaticFile, raw, int64(e.StaticAddress)); err != nil {
			return fmt.Errorf("чтение статики блока %d,%d: %w", c.coords.X, c.coords.Y, err)
		}

		for i := 0; i < count; i++ {
			r := decodeStatic(raw[i*mapindex.StaticsRecordSize:])
			local, ok := r.placement()
			if !ok {
				continue
			}

			pos := local.CellIndex()
			t := &c.tiles[pos]
			t.Statics = append(t.Statics, Static{
				Graphic:   r.color,
				Hue:       r.hue,
				Z:         r.z,
				PackedPos: uint8(pos),
				X:         origin.X + local.X,
				Y:         origin.Y + local.Y,
			})
		}
		return nil
	})
}

// inFileStatics число записей статики блока, которые целиком лежат в файле.
// Заявленный размер больше файла урезается до его конца.
func inFileStatics(e mapindex.IndexEntry) int {
	count := int(min(e.StaticCount, mapindex.MaxStaticCount))
	length := e.StaticFile.Length()
	if length <= 0 || e.StaticAddress >= uint64(length) {
		return 0
	}
	if avail := int((uint64(length) - e.StaticAddress) / mapindex.StaticsRecordSize); avail < count {
		count = avail
	}
	return count
}

// GetTileZ высота тайла (x, y) фасета; не зависит от блока, к которому привязан декодер,
// и не трогает его сетку
func (c *FacetChunk) GetTileZ(facet, x, y int) int8 {
	return TileZ(c.src, facet, x, y)
}

// TileZ читает высоту одной ячейки без декодирования блока.
// Отрицательные координаты, блок без данных и ошибка чтения дают MinZ.
func TileZ(src BlockSource, facet, x, y int) int8 {
	if x < 0 || y < 0 {
		return MinZ
	}

	p := vec.Vec2{X: x, Y: y}
	block := p.ToBlockCoords()

	z := MinZ
	_ = src.View(facet, block.X, block.Y, func(e mapindex.IndexEntry) error {
		if !e.IsValid() || e.MapFile == nil {
			return nil
		}

		var b [1]byte
		off := int64(e.MapAddress) + mapindex.MapBlockHeaderSize + int64(p.CellIndex()*mapindex.MapCellSize) + 2
		if err := uofile.ReadAtFull(e.MapFile, b[:], off); err != nil {
			return err
		}
		z = int8(b[0])
		return nil
	})
	return z
}

// Unload убирает статику со всех тайлов, оставляя сетку для повторного использования
func (c *FacetChunk) Unload() {
	for i := range c.tiles {
		c.tiles[i].clearStatics()
	}
}

// StaticCount число объектов статики в декодированном блоке
func (c *FacetChunk) StaticCount() int {
	n := 0
	for i := range c.tiles {
		n += len(c.tiles[i].Statics)
	}
	return n
}
