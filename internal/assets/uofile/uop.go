package uofile

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

const (
	// UopMagic сигнатура "MYP\0"
	UopMagic = 0x50594D

	uopHeaderSize = 28
	uopEntrySize  = 34

	// защита от зацикленных цепочек таблиц
	maxUopTables = 1 << 16
)

// Флаги сжатия записи контейнера
const (
	UopFlagNone int16 = 0
	UopFlagZlib int16 = 1
)

// UopEntry запись таблицы контейнера
type UopEntry struct {
	Offset             int64
	HeaderLength       int32
	CompressedLength   int32
	DecompressedLength int32
	Hash               uint64
	DataHash           uint32
	Flag               int16
}

// DataOffset смещение полезных данных записи
func (e UopEntry) DataOffset() int64 {
	return e.Offset + int64(e.HeaderLength)
}

// UopFile контейнер .uop поверх FileReader
type UopFile struct {
	FileReader

	Version   uint32
	Signature uint32

	hashes  map[uint64]UopEntry
	entries []UopEntry
	present []bool
}

// OpenUop открывает контейнер с диска и читает его таблицы
func OpenUop(path string) (*UopFile, error) {
	mul, err := OpenMul(path)
	if err != nil {
		return nil, err
	}

	uop, err := NewUopFile(mul)
	if err != nil {
		mul.Close()
		return nil, err
	}
	return uop, nil
}

// NewUopFile разбирает заголовок и цепочку таблиц записей
func NewUopFile(r FileReader) (*UopFile, error) {
	cur := NewCursor(r)

	var header [uopHeaderSize]byte
	if err := cur.ReadFull(header[:]); err != nil {
		return nil, fmt.Errorf("%w: заголовок %s: %v", ErrBadContainer, r.Name(), err)
	}

	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != UopMagic {
		return nil, fmt.Errorf("%w: %s: неверная сигнатура 0x%08X", ErrBadContainer, r.Name(), magic)
	}

	uop := &UopFile{
		FileReader: r,
		Version:    binary.LittleEndian.Uint32(header[4:8]),
		Signature:  binary.LittleEndian.Uint32(header[8:12]),
		hashes:     make(map[uint64]UopEntry),
	}

	nextBlock := int64(binary.LittleEndian.Uint64(header[12:20]))
	entry := make([]byte, uopEntrySize)

	for tables := 0; nextBlock != 0; tables++ {
		if tables >= maxUopTables {
			return nil, fmt.Errorf("%w: %s: слишком длинная цепочка таблиц", ErrBadContainer, r.Name())
		}

		cur.Seek(nextBlock)

		count, err := cur.ReadInt32()
		if err != nil {
			return nil, fmt.Errorf("%w: таблица %s@%d: %v", ErrBadContainer, r.Name(), nextBlock, err)
		}
		if nextBlock, err = cur.ReadInt64(); err != nil {
			return nil, fmt.Errorf("%w: таблица %s: %v", ErrBadContainer, r.Name(), err)
		}
		if count < 0 || int64(count)*uopEntrySize > cur.Remaining() {
			return nil, fmt.Errorf("%w: %s: таблица на %d записей не помещается в файл", ErrBadContainer, r.Name(), count)
		}

		for i := int32(0); i < count; i++ {
			if err := cur.ReadFull(entry); err != nil {
				return nil, fmt.Errorf("%w: запись %s: %v", ErrBadContainer, r.Name(), err)
			}

			e := decodeUopEntry(entry)
			if e.Offset == 0 {
				continue
			}
			uop.hashes[e.Hash] = e
		}
	}

	return uop, nil
}

func decodeUopEntry(b []byte) UopEntry {
	return UopEntry{
		Offset:             int64(binary.LittleEndian.Uint64(b[0:8])),
		HeaderLength:       int32(binary.LittleEndian.Uint32(b[8:12])),
		CompressedLength:   int32(binary.LittleEndian.Uint32(b[12:16])),
		DecompressedLength: int32(binary.LittleEndian.Uint32(b[16:20])),
		Hash:               binary.LittleEndian.Uint64(b[20:28]),
		DataHash:           binary.LittleEndian.Uint32(b[28:32]),
		Flag:               int16(binary.LittleEndian.Uint16(b[32:34])),
	}
}

// HashCount число записей с ненулевым смещением
func (u *UopFile) HashCount() int {
	return len(u.hashes)
}

// FillEntries нумерует записи: запись i ищется по хешу имени fmt.Sprintf(pattern, i).
// Число слотов равно числу записей в контейнере.
func (u *UopFile) FillEntries(pattern string) {
	u.entries = make([]UopEntry, len(u.hashes))
	u.present = make([]bool, len(u.hashes))

	for i := range u.entries {
		name := fmt.Sprintf(pattern, i)
		if e, ok := u.hashes[HashFileName(name)]; ok {
			u.entries[i] = e
			u.present[i] = true
		}
	}
}

// EntryCount число пронумерованных слотов
func (u *UopFile) EntryCount() int {
	return len(u.entries)
}

// Entry возвращает запись по номеру
func (u *UopFile) Entry(index int) (UopEntry, bool) {
	if index < 0 || index >= len(u.entries) || !u.present[index] {
		return UopEntry{}, false
	}
	return u.entries[index], true
}

// EntryOffset смещение данных записи по номеру
func (u *UopFile) EntryOffset(index int) (int64, bool) {
	e, ok := u.Entry(index)
	if !ok {
		return 0, false
	}
	return e.DataOffset(), true
}

// ReadEntry читает полезные данные записи, распаковывая zlib при необходимости
func (u *UopFile) ReadEntry(index int) ([]byte, error) {
	e, ok := u.Entry(index)
	if !ok {
		return nil, fmt.Errorf("%s: запись %d отсутствует", u.Name(), index)
	}
	if e.CompressedLength < 0 || e.DecompressedLength < 0 {
		return nil, fmt.Errorf("%w: %s: отрицательная длина записи %d", ErrBadContainer, u.Name(), index)
	}

	switch e.Flag {
	case UopFlagNone:
		raw := make([]byte, e.CompressedLength)
		if err := ReadAtFull(u.FileReader, raw, e.DataOffset()); err != nil {
			return nil, err
		}
		return raw, nil
	case UopFlagZlib:
		zr, err := zlib.NewReader(io.NewSectionReader(u.FileReader, e.DataOffset(), int64(e.CompressedLength)))
		if err != nil {
			return nil, fmt.Errorf("%s: запись %d: %w", u.Name(), index, err)
		}
		defer zr.Close()

		out := make([]byte, e.DecompressedLength)
		if _, err := io.ReadFull(zr, out); err != nil {
			return nil, fmt.Errorf("%s: распаковка записи %d: %w", u.Name(), index, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: запись %d: неподдерживаемый флаг сжатия %d", u.Name(), index, e.Flag)
	}
}

// HashFileName хеш имени записи контейнера (lookup3 hashlittle2 Боба Дженкинса)
func HashFileName(s string) uint64 {
	var eax, ecx, edx, ebx, esi, edi uint32

	ebx = uint32(len(s)) + 0xDEADBEEF
	edi = ebx
	esi = ebx

	i := 0
	for ; i+12 < len(s); i += 12 {
		edi += uint32(s[i+7])<<24 | uint32(s[i+6])<<16 | uint32(s[i+5])<<8 | uint32(s[i+4])
		esi += uint32(s[i+11])<<24 | uint32(s[i+10])<<16 | uint32(s[i+9])<<8 | uint32(s[i+8])
		edx = (uint32(s[i+3])<<24 | uint32(s[i+2])<<16 | uint32(s[i+1])<<8 | uint32(s[i])) - esi

		edx = (edx + ebx) ^ (esi >> 28) ^ (esi << 4)
		esi += edi
		edi = (edi - edx) ^ (edx >> 26) ^ (edx << 6)
		edx += esi
		esi = (esi - edi) ^ (edi >> 24) ^ (edi << 8)
		edi += edx
		ebx = (edx - esi) ^ (esi >> 16) ^ (esi << 16)
		esi += edi
		edi = (edi - ebx) ^ (ebx >> 13) ^ (ebx << 19)
		ebx += esi
		esi = (esi - edi) ^ (edi >> 28) ^ (edi << 4)
		edi += ebx
	}

	rest := len(s) - i
	if rest <= 0 {
		return uint64(esi)<<32 | uint64(eax)
	}

	switch rest {
	case 12:
		esi += uint32(s[i+11]) << 24
		fallthrough
	case 11:
		esi += uint32(s[i+10]) << 16
		fallthrough
	case 10:
		esi += uint32(s[i+9]) << 8
		fallthrough
	case 9:
		esi += uint32(s[i+8])
		fallthrough
	case 8:
		edi += uint32(s[i+7]) << 24
		fallthrough
	case 7:
		edi += uint32(s[i+6]) << 16
		fallthrough
	case 6:
		edi += uint32(s[i+5]) << 8
		fallthrough
	case 5:
		edi += uint32(s[i+4])
		fallthrough
	case 4:
		ebx += uint32(s[i+3]) << 24
		fallthrough
	case 3:
		ebx += uint32(s[i+2]) << 16
		fallthrough
	case 2:
		ebx += uint32(s[i+1]) << 8
		fallthrough
	case 1:
		ebx += uint32(s[i])
	}

	esi = (esi ^ edi) - ((edi >> 18) ^ (edi << 14))
	ecx = (esi ^ ebx) - ((esi >> 21) ^ (esi << 11))
	edi = (edi ^ ecx) - ((ecx >> 7) ^ (ecx << 25))
	esi = (esi ^ edi) - ((edi >> 16) ^ (edi << 16))
	edx = (esi ^ ecx) - ((esi >> 28) ^ (esi << 4))
	edi = (edi ^ edx) - ((edx >> 18) ^ (edx << 14))
	eax = (esi ^ edi) - ((edi >> 8) ^ (edi << 24))

	return uint64(edi)<<32 | uint64(eax)
}
