// Package fixture собирает синтетические файлы мира для тестов и демо:
// плоские карты, индекс и данные статики, diff-файлы и управляющий поток патчей.
package fixture

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/annel0/mapengine/internal/assets/mapindex"
)

// Cell ячейка рельефа
type Cell struct {
	ID uint16
	Z  int8
}

// Static запись статики в формате файла
type Static struct {
	Color uint16
	X, Y  uint8
	Z     int8
	Hue   uint16
}

// Block содержимое одного блока 8x8
type Block struct {
	Cells   [mapindex.CellsPerBlock]Cell
	Statics []Static
}

// Facet синтетический фасет размером Width x Height блоков
type Facet struct {
	Width, Height int
	blocks        map[int]*Block
}

// NewFacet создаёт пустой фасет (все ячейки нулевые, статики нет)
func NewFacet(width, height int) *Facet {
	return &Facet{Width: width, Height: height, blocks: make(map[int]*Block)}
}

// Index номер блока в порядке файлов мира
func (f *Facet) Index(bx, by int) int {
	return bx*f.Height + by
}

// Block возвращает блок для изменения
func (f *Facet) Block(bx, by int) *Block {
	i := f.Index(bx, by)
	b, ok := f.blocks[i]
	if !ok {
		b = &Block{}
		f.blocks[i] = b
	}
	return b
}

// SetCell задаёт ячейку (lx, ly) блока (bx, by)
func (f *Facet) SetCell(bx, by, lx, ly int, id uint16, z int8) {
	f.Block(bx, by).Cells[ly*8+lx] = Cell{ID: id, Z: z}
}

// AddStatic добавляет запись статики в блок (bx, by)
func (f *Facet) AddStatic(bx, by int, s Static) {
	b := f.Block(bx, by)
	b.Statics = append(b.Statics, s)
}

// MapBytes содержимое плоского файла рельефа
func (f *Facet) MapBytes() []byte {
	out := make([]byte, f.Width*f.Height*mapindex.MapBlockSize)
	for i, b := range f.blocks {
		EncodeBlock(out[i*mapindex.MapBlockSize:], b.Cells)
	}
	return out
}

// StaticBytes содержимое файлов индекса и данных статики.
// Блок без статики получает запись с позицией 0xFFFFFFFF.
func (f *Facet) StaticBytes() (staidx, statics []byte) {
	count := f.Width * f.Height
	staidx = make([]byte, count*mapindex.StaidxRecordSize)

	for i := 0; i < count; i++ {
		rec := staidx[i*mapindex.StaidxRecordSize:]
		b, ok := f.blocks[i]
		if !ok || len(b.Statics) == 0 {
			binary.LittleEndian.PutUint32(rec[0:4], mapindex.NoStaticsPosition)
			continue
		}

		binary.LittleEndian.PutUint32(rec[0:4], uint32(len(statics)))
		binary.LittleEndian.PutUint32(rec[4:8], uint32(len(b.Statics)*mapindex.StaticsRecordSize))
		statics = append(statics, EncodeStatics(b.Statics)...)
	}

	return staidx, statics
}

// WriteMul пишет map{N}{suffix}.mul, staidx{N}{suffix}.mul и statics{N}{suffix}.mul в dir.
// suffix "" для основного варианта, "x" для X-варианта.
func (f *Facet) WriteMul(dir string, index int, suffix string) error {
	staidx, statics := f.StaticBytes()

	files := map[string][]byte{
		fmt.Sprintf("map%d%s.mul", index, suffix):     f.MapBytes(),
		fmt.Sprintf("staidx%d%s.mul", index, suffix):  staidx,
		fmt.Sprintf("statics%d%s.mul", index, suffix): statics,
	}
	for name, data := range files {
		if err := WriteFile(dir, name, data); err != nil {
			return err
		}
	}
	return nil
}

// WriteUop пишет рельеф фасета контейнером map{N}{suffix}LegacyMUL.uop (группы по 4096 блоков)
// вместе с плоскими файлами статики.
func (f *Facet) WriteUop(dir string, index int, suffix string) error {
	data := f.MapBytes()
	groupBytes := mapindex.BlocksPerGroup * mapindex.MapBlockSize

	var entries []UopEntry
	for g := 0; g*groupBytes < len(data); g++ {
		end := min((g+1)*groupBytes, len(data))
		entries = append(entries, UopEntry{
			Name: fmt.Sprintf("build/map%dlegacymul/%08d.dat", index, g),
			Data: data[g*groupBytes : end],
		})
	}

	container, err := BuildUop(entries)
	if err != nil {
		return err
	}
	if err := WriteFile(dir, fmt.Sprintf("map%d%sLegacyMUL.uop", index, suffix), container); err != nil {
		return err
	}

	staidx, statics := f.StaticBytes()
	if err := WriteFile(dir, fmt.Sprintf("staidx%d%s.mul", index, suffix), staidx); err != nil {
		return err
	}
	return WriteFile(dir, fmt.Sprintf("statics%d%s.mul", index, suffix), statics)
}

// EncodeBlock записывает 196-байтовый блок рельефа в dst
func EncodeBlock(dst []byte, cells [mapindex.CellsPerBlock]Cell) {
	_ = dst[mapindex.MapBlockSize-1]
	for i, c := range cells {
		off := mapindex.MapBlockHeaderSize + i*mapindex.MapCellSize
		binary.LittleEndian.PutUint16(dst[off:], c.ID)
		dst[off+2] = byte(c.Z)
	}
}

// EncodeStatics кодирует записи статики по 7 байт
func EncodeStatics(records []Static) []byte {
	out := make([]byte, len(records)*mapindex.StaticsRecordSize)
	for i, s := range records {
		rec := out[i*mapindex.StaticsRecordSize:]
		binary.LittleEndian.PutUint16(rec[0:2], s.Color)
		rec[2] = s.X
		rec[3] = s.Y
		rec[4] = byte(s.Z)
		binary.LittleEndian.PutUint16(rec[5:7], s.Hue)
	}
	return out
}

// WriteFile пишет файл name в dir
func WriteFile(dir, name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("fixture: %s: %w", name, err)
	}
	return nil
}
