// Package uofile предоставляет побайтовый доступ к файлам мира: плоским .mul файлам
// и контейнерам .uop, где данные разбиты на именованные (хешированные) записи.
package uofile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrBadContainer = errors.New("uofile: повреждённый контейнер")
	ErrOutOfRange   = errors.New("uofile: чтение за пределами файла")
)

// FileReader байтовый доступ к одному физическому файлу.
// ReadAt не меняет состояния, поэтому один FileReader можно читать из нескольких горутин.
type FileReader interface {
	io.ReaderAt
	io.Closer
	Length() int64
	Name() string
}

// Container файл-контейнер, разбитый на группы с базовыми смещениями
type Container interface {
	FileReader
	// EntryOffset смещение данных группы с номером index; false если группы нет
	EntryOffset(index int) (int64, bool)
}

// IsEmpty true для отсутствующего или пустого файла
func IsEmpty(f FileReader) bool {
	return f == nil || f.Length() == 0
}

// Cursor последовательное чтение FileReader с собственной позицией.
// Не потокобезопасен: каждый читатель создаёт свой курсор.
type Cursor struct {
	r   FileReader
	pos int64
	buf [8]byte
}

// NewCursor создаёт курсор в начале файла
func NewCursor(r FileReader) *Cursor {
	return &Cursor{r: r}
}

// Seek устанавливает абсолютную позицию
func (c *Cursor) Seek(offset int64) {
	c.pos = offset
}

// Skip сдвигает позицию вперёд на n байт
func (c *Cursor) Skip(n int64) {
	c.pos += n
}

// Position текущая позиция
func (c *Cursor) Position() int64 {
	return c.pos
}

// Remaining сколько байт осталось до конца файла
func (c *Cursor) Remaining() int64 {
	rest := c.r.Length() - c.pos
	if rest < 0 {
		return 0
	}
	return rest
}

// ReadFull читает ровно len(p) байт с текущей позиции
func (c *Cursor) ReadFull(p []byte) error {
	if int64(len(p)) > c.Remaining() {
		return fmt.Errorf("%s@%d: %w", c.r.Name(), c.pos, ErrOutOfRange)
	}

	n, err := c.r.ReadAt(p, c.pos)
	c.pos += int64(n)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%s@%d: %w", c.r.Name(), c.pos, err)
}

// ReadUint32 читает little-endian uint32
func (c *Cursor) ReadUint32() (uint32, error) {
	if err := c.ReadFull(c.buf[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(c.buf[:4]), nil
}

// ReadInt32 читает little-endian int32
func (c *Cursor) ReadInt32() (int32, error) {
	v, err := c.ReadUint32()
	return int32(v), err
}

// ReadInt64 читает little-endian int64
func (c *Cursor) ReadInt64() (int64, error) {
	if err := c.ReadFull(c.buf[:8]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(c.buf[:8])), nil
}

// ReadAtFull читает ровно len(p) байт по смещению off
func ReadAtFull(r FileReader, p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > r.Length() {
		return fmt.Errorf("%s@%d+%d: %w", r.Name(), off, len(p), ErrOutOfRange)
	}

	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%s@%d: %w", r.Name(), off, err)
}
