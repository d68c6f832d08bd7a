package world

import (
	"github.com/annel0/mapengine/internal/assets/mapindex"
	"github.com/annel0/mapengine/internal/vec"
)

// Snapshot неизменяемая копия декодированного блока.
// В отличие от FacetChunk её можно отдавать нескольким читателям и хранить в кеше.
type Snapshot struct {
	Facet  int
	Coords vec.Vec2

	tiles   [mapindex.CellsPerBlock]Tile
	statics int
}

// newSnapshot копирует сетку декодера; статика всех тайлов лежит в одном срезе
func newSnapshot(facet int, c *FacetChunk) *Snapshot {
	s := &Snapshot{Facet: facet, Coords: c.coords, tiles: c.tiles}

	all := make([]Static, 0, c.StaticCount())
	for i := range s.tiles {
		src := c.tiles[i].Statics
		if len(src) == 0 {
			s.tiles[i].Statics = nil
			continue
		}
		start := len(all)
		all = append(all, src...)
		s.tiles[i].Statics = all[start:len(all):len(all)]
	}
	s.statics = len(all)
	return s
}

// Tile тайл с локальными координатами (lx, ly). Срез статики общий со снимком: не изменять.
func (s *Snapshot) Tile(lx, ly int) (Tile, bool) {
	if lx < 0 || ly < 0 || lx >= vec.BlockSize || ly >= vec.BlockSize {
		return Tile{}, false
	}
	return s.tiles[ly*vec.BlockSize+lx], true
}

// Tiles вызывает fn для каждого тайла в порядке хранения
func (s *Snapshot) Tiles(fn func(lx, ly int, t Tile)) {
	for i, t := range s.tiles {
		fn(i%vec.BlockSize, i/vec.BlockSize, t)
	}
}

// StaticCount число объектов статики
func (s *Snapshot) StaticCount() int {
	return s.statics
}

// Cost оценка размера снимка для кеша
func (s *Snapshot) Cost() int64 {
	return int64(len(s.tiles) + s.statics)
}
