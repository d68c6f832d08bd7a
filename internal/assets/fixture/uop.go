package fixture

import (
	"bytes"
	"encoding/binary"
	"hash/adler32"

	"github.com/klauspost/compress/zlib"

	"github.com/annel0/mapengine/internal/assets/uofile"
)

// uopTableCapacity записей в одной таблице контейнера
const uopTableCapacity = 100

// UopEntry запись собираемого контейнера
type UopEntry struct {
	Name     string
	Data     []byte
	Compress bool
}

// BuildUop собирает контейнер: заголовок, цепочку таблиц по 100 записей и данные записей
func BuildUop(entries []UopEntry) ([]byte, error) {
	payloads := make([][]byte, len(entries))
	for i, e := range entries {
		payloads[i] = e.Data
		if e.Compress {
			var buf bytes.Buffer
			zw := zlib.NewWriter(&buf)
			if _, err := zw.Write(e.Data); err != nil {
				return nil, err
			}
			if err := zw.Close(); err != nil {
				return nil, err
			}
			payloads[i] = buf.Bytes()
		}
	}

	tables := (len(entries) + uopTableCapacity - 1) / uopTableCapacity
	const headerSize, tableHead, entrySize = 28, 12, 34

	// все таблицы идут подряд после заголовка, данные после таблиц
	tableOffsets := make([]int64, tables)
	pos := int64(headerSize)
	for t := range tableOffsets {
		tableOffsets[t] = pos
		n := min(uopTableCapacity, len(entries)-t*uopTableCapacity)
		pos += tableHead + int64(n)*entrySize
	}

	dataOffsets := make([]int64, len(entries))
	for i, p := range payloads {
		dataOffsets[i] = pos
		pos += int64(len(p))
	}

	out := make([]byte, 0, pos)
	le := binary.LittleEndian

	out = le.AppendUint32(out, uofile.UopMagic)
	out = le.AppendUint32(out, 5)
	out = le.AppendUint32(out, 0xFD23EC43)
	var first int64
	if tables > 0 {
		first = tableOffsets[0]
	}
	out = le.AppendUint64(out, uint64(first))
	out = le.AppendUint32(out, uopTableCapacity)
	out = le.AppendUint32(out, uint32(len(entries)))

	for t := 0; t < tables; t++ {
		start := t * uopTableCapacity
		end := min(start+uopTableCapacity, len(entries))

		var next int64
		if t+1 < tables {
			next = tableOffsets[t+1]
		}
		out = le.AppendUint32(out, uint32(end-start))
		out = le.AppendUint64(out, uint64(next))

		for i := start; i < end; i++ {
			flag := uofile.UopFlagNone
			if entries[i].Compress {
				flag = uofile.UopFlagZlib
			}
			out = le.AppendUint64(out, uint64(dataOffsets[i]))
			out = le.AppendUint32(out, 0)
			out = le.AppendUint32(out, uint32(len(payloads[i])))
			out = le.AppendUint32(out, uint32(len(entries[i].Data)))
			out = le.AppendUint64(out, uofile.HashFileName(entries[i].Name))
			out = le.AppendUint32(out, adler32.Checksum(payloads[i]))
			out = le.AppendUint16(out, uint16(flag))
		}
	}

	for _, p := range payloads {
		out = append(out, p...)
	}
	return out, nil
}
