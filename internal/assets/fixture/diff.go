package fixture

import (
	"encoding/binary"
	"fmt"

	"github.com/annel0/mapengine/internal/assets/mapindex"
)

// Diff набор патчей одного фасета
type Diff struct {
	mapList    []byte
	mapData    []byte
	staticList []byte
	staticInfo []byte
	staticData []byte

	MapCount    int
	StaticCount int
}

// PatchMap добавляет замену блока рельефа. Номер блока не проверяется,
// чтобы можно было собирать патчи за пределами фасета.
func (d *Diff) PatchMap(block uint32, cells [mapindex.CellsPerBlock]Cell) {
	d.mapList = binary.LittleEndian.AppendUint32(d.mapList, block)

	var raw [mapindex.MapBlockSize]byte
	EncodeBlock(raw[:], cells)
	d.mapData = append(d.mapData, raw[:]...)
	d.MapCount++
}

// PatchStatics добавляет замену статики блока; пустой records даёт блок без статики
func (d *Diff) PatchStatics(block uint32, records []Static) {
	d.staticList = binary.LittleEndian.AppendUint32(d.staticList, block)

	position := uint32(len(d.staticData))
	size := uint32(len(records) * mapindex.StaticsRecordSize)
	if len(records) == 0 {
		position = mapindex.NoStaticsPosition
	}

	d.staticInfo = binary.LittleEndian.AppendUint32(d.staticInfo, position)
	d.staticInfo = binary.LittleEndian.AppendUint32(d.staticInfo, size)
	d.staticInfo = binary.LittleEndian.AppendUint32(d.staticInfo, 0)
	d.staticData = append(d.staticData, EncodeStatics(records)...)
	d.StaticCount++
}

// Write пишет mapdifl/mapdif/stadifl/stadifi/stadif фасета в dir.
// Пустые части не создаются.
func (d *Diff) Write(dir string, facet int) error {
	files := []struct {
		name string
		data []byte
	}{
		{fmt.Sprintf("mapdifl%d.mul", facet), d.mapList},
		{fmt.Sprintf("mapdif%d.mul", facet), d.mapData},
		{fmt.Sprintf("stadifl%d.mul", facet), d.staticList},
		{fmt.Sprintf("stadifi%d.mul", facet), d.staticInfo},
		{fmt.Sprintf("stadif%d.mul", facet), d.staticData},
	}
	for _, f := range files {
		if len(f.data) == 0 {
			continue
		}
		if err := WriteFile(dir, f.name, f.data); err != nil {
			return err
		}
	}
	return nil
}

// FacetPatches объявленные в управляющем потоке числа патчей фасета
type FacetPatches struct {
	Map    uint32
	Static uint32
}

// ControlBlob собирает big-endian управляющий поток патчей
func ControlBlob(facets ...FacetPatches) []byte {
	out := binary.BigEndian.AppendUint32(nil, uint32(len(facets)))
	for _, f := range facets {
		out = binary.BigEndian.AppendUint32(out, f.Map)
		out = binary.BigEndian.AppendUint32(out, f.Static)
	}
	return out
}

// Counts числа патчей набора для управляющего потока
func (d *Diff) Counts() FacetPatches {
	return FacetPatches{Map: uint32(d.MapCount), Static: uint32(d.StaticCount)}
}
