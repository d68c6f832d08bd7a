package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"
)

var (
	keyPatchLatest = []byte("patch:latest")
	keyPatchMeta   = []byte("patch:meta")
)

// ErrCorruptPatch сохранённый поток патчей не совпал с контрольной суммой
var ErrCorruptPatch = errors.New("storage: повреждённый поток патчей")

// PatchMeta описание сохранённого потока патчей
type PatchMeta struct {
	Digest     uint64    `json:"digest"` // xxhash исходного потока
	Size       int       `json:"size"`
	Stored     int       `json:"stored"` // размер после сжатия
	ReceivedAt time.Time `json:"received_at"`
}

// PatchStore хранит последний полученный поток патчей между запусками
type PatchStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// OpenPatchStore открывает хранилище в каталоге dataPath/patches
func OpenPatchStore(dataPath string) (*PatchStore, error) {
	dbPath := filepath.Join(dataPath, "patches")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil

	return openPatchStore(opts, dbPath)
}

// OpenInMemoryPatchStore хранилище без диска (тесты, одноразовые запуски)
func OpenInMemoryPatchStore() (*PatchStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	return openPatchStore(opts, "")
}

func openPatchStore(opts badger.Options, dbPath string) (*PatchStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, fmt.Errorf("zstd: %w", err)
	}

	return &PatchStore{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// Save сохраняет поток патчей, заменяя предыдущий
func (ps *PatchStore) Save(blob []byte, receivedAt time.Time) (PatchMeta, error) {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	if !ps.isReady {
		return PatchMeta{}, fmt.Errorf("хранилище не готово")
	}

	packed := ps.encoder.EncodeAll(blob, nil)
	meta := PatchMeta{
		Digest:     xxhash.Sum64(blob),
		Size:       len(blob),
		Stored:     len(packed),
		ReceivedAt: receivedAt.UTC(),
	}

	metaData, err := json.Marshal(meta)
	if err != nil {
		return PatchMeta{}, fmt.Errorf("ошибка сериализации описания патча: %w", err)
	}

	err = ps.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(keyPatchLatest, packed); err != nil {
			return err
		}
		return txn.Set(keyPatchMeta, metaData)
	})
	if err != nil {
		return PatchMeta{}, fmt.Errorf("ошибка записи в BadgerDB: %w", err)
	}

	return meta, nil
}

// Latest возвращает последний сохранённый поток; found=false, если его нет
func (ps *PatchStore) Latest() ([]byte, PatchMeta, bool, error) {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	if !ps.isReady {
		return nil, PatchMeta{}, false, fmt.Errorf("хранилище не готово")
	}

	var packed, metaData []byte
	err := ps.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyPatchMeta)
		if err != nil {
			return err
		}
		if metaData, err = item.ValueCopy(nil); err != nil {
			return err
		}

		item, err = txn.Get(keyPatchLatest)
		if err != nil {
			return err
		}
		packed, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, PatchMeta{}, false, nil
	}
	if err != nil {
		return nil, PatchMeta{}, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	var meta PatchMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, PatchMeta{}, false, fmt.Errorf("ошибка десериализации описания патча: %w", err)
	}

	blob, err := ps.decoder.DecodeAll(packed, nil)
	if err != nil {
		return nil, meta, false, fmt.Errorf("%w: %v", ErrCorruptPatch, err)
	}
	if len(blob) != meta.Size || xxhash.Sum64(blob) != meta.Digest {
		return nil, meta, false, ErrCorruptPatch
	}

	return blob, meta, true, nil
}

// Clear удаляет сохранённый поток
func (ps *PatchStore) Clear() error {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	if !ps.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	return ps.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(keyPatchLatest); err != nil {
			return err
		}
		return txn.Delete(keyPatchMeta)
	})
}

// Close закрывает хранилище
func (ps *PatchStore) Close() error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if !ps.isReady {
		return nil
	}

	ps.isReady = false
	ps.encoder.Close()
	ps.decoder.Close()
	return ps.db.Close()
}
