// Package cache реализует кэширование результатов конвертации по содержимому источника.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/artemshloyda/photobatch/internal/config"
)

// Entry - закэшированный результат.
type Entry struct {
	// Data - закодированный результат.
	Data []byte `json:"-"`

	// Format - фактический формат результата.
	Format config.OutputFormat `json:"format"`

	// Width, Height - итоговые размеры.
	Width  int `json:"width"`
	Height int `json:"height"`

	// OriginalWidth, OriginalHeight - размеры источника.
	OriginalWidth  int `json:"original_width"`
	OriginalHeight int `json:"original_height"`
}

// Cache хранит результаты в директории: <key>.json с метаданными и <key>.bin с данными.
type Cache struct {
	// dir - директория для кэша.
	dir string

	// enabled - включён ли кэш.
	enabled bool
}

// New создаёт новый Cache. При enabled=false все операции ничего не делают.
func New(dir string, enabled bool) (*Cache, error) {
	if !enabled {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию кэша: %w", err)
	}

	return &Cache{
		dir:     dir,
		enabled: true,
	}, nil
}

// IsEnabled возвращает true если кэш включён.
func (c *Cache) IsEnabled() bool {
	return c.enabled
}

// Key генерирует ключ кэша по содержимому источника и хэшу параметров конвертации.
func Key(content []byte, paramsHash string) string {
	h := sha256.New()
	h.Write(content)
	h.Write([]byte(paramsHash))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Lookup возвращает закэшированный результат.
func (c *Cache) Lookup(content []byte, paramsHash string) (Entry, bool) {
	if !c.enabled {
		return Entry{}, false
	}

	key := Key(content, paramsHash)
	meta, err := os.ReadFile(filepath.Join(c.dir, key+".json"))
	if err != nil {
		return Entry{}, false
	}

	var e Entry
	if err := json.Unmarshal(meta, &e); err != nil {
		return Entry{}, false
	}

	data, err := os.ReadFile(filepath.Join(c.dir, key+".bin"))
	if err != nil || len(data) == 0 {
		return Entry{}, false
	}
	e.Data = data

	return e, true
}

// Store сохраняет результат. Данные пишутся раньше метаданных,
// поэтому частично записанная запись не находится через Lookup.
func (c *Cache) Store(content []byte, paramsHash string, e Entry) error {
	if !c.enabled {
		return nil
	}

	key := Key(content, paramsHash)

	if err := writeAtomic(filepath.Join(c.dir, key+".bin"), e.Data); err != nil {
		return err
	}

	meta, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("не удалось сериализовать метаданные кэша: %w", err)
	}
	return writeAtomic(filepath.Join(c.dir, key+".json"), meta)
}

// Clear очищает весь кэш. Директория остаётся доступной для новых записей.
func (c *Cache) Clear() error {
	if !c.enabled || c.dir == "" {
		return nil
	}

	if err := os.RemoveAll(c.dir); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0755)
}

// Size возвращает общий размер кэша в байтах.
func (c *Cache) Size() (int64, error) {
	if !c.enabled || c.dir == "" {
		return 0, nil
	}

	var size int64
	err := filepath.WalkDir(c.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			size += info.Size()
		}
		return nil
	})

	return size, err
}

// writeAtomic пишет во временный файл и переименовывает его.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("не удалось записать кэш: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("не удалось переименовать %s: %w", tmp, err)
	}
	return nil
}

/*
Возможные расширения:
- LRU eviction при превышении лимита размера
- TTL для записей кэша
*/
