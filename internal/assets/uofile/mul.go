package uofile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// MulFile плоский файл мира на диске
type MulFile struct {
	file   *os.File
	name   string
	length int64
}

// OpenMul открывает плоский файл только для чтения
func OpenMul(path string) (*MulFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("не удалось получить размер %s: %w", path, err)
	}

	return &MulFile{
		file:   file,
		name:   filepath.Base(path),
		length: info.Size(),
	}, nil
}

func (m *MulFile) ReadAt(p []byte, off int64) (int, error) { return m.file.ReadAt(p, off) }
func (m *MulFile) Length() int64                           { return m.length }
func (m *MulFile) Name() string                            { return m.name }
func (m *MulFile) Close() error                            { return m.file.Close() }

// MemFile файл, целиком находящийся в памяти
type MemFile struct {
	reader *bytes.Reader
	name   string
}

// NewMemFile оборачивает срез байт; срез не копируется
func NewMemFile(name string, data []byte) *MemFile {
	return &MemFile{reader: bytes.NewReader(data), name: name}
}

func (m *MemFile) ReadAt(p []byte, off int64) (int, error) { return m.reader.ReadAt(p, off) }
func (m *MemFile) Length() int64                           { return m.reader.Size() }
func (m *MemFile) Name() string                            { return m.name }
func (m *MemFile) Close() error                            { return nil }
