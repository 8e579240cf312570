// Package config содержит настройки конвертации и конфигурацию приложения.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// MaxFiles - максимальное количество изображений в коллекции.
	MaxFiles = 50

	// MaxFileSize - максимальный размер одного файла в байтах (25 MB).
	MaxFileSize = 25 * 1024 * 1024

	// FreeDailyLimit - бесплатная дневная квота конвертаций.
	FreeDailyLimit = 5

	// ArchiveName - имя архива при выгрузке всех результатов.
	ArchiveName = "converted-images.zip"
)

// Переменные окружения, переопределяющие конфигурацию.
const (
	EnvVipsPath  = "PHOTOBATCH_VIPS"
	EnvRedisURL  = "PHOTOBATCH_REDIS_URL"
	EnvSegmenter = "PHOTOBATCH_SEGMENTER"
	EnvDataDir   = "PHOTOBATCH_DATA_DIR"
)

// Config содержит настройки приложения вокруг конвеера конвертации.
type Config struct {
	// Settings - параметры конвертации.
	Settings ConversionSettings

	// OutputDir - директория для сохранения результатов.
	OutputDir string

	// Zip - упаковать результаты в один архив.
	Zip bool

	// DataDir - директория состояния (SQLite, кэш).
	DataDir string

	// DBPath - путь к SQLite базе данных.
	DBPath string

	// RedisURL - URL Redis для хранения счётчиков использования (опционально).
	RedisURL string

	// VipsPath - путь к vips бинарнику (опционально).
	VipsPath string

	// SegmenterCmd - шаблон команды AI сегментации.
	SegmenterCmd string

	// VipsTimeout - таймаут одного вызова vips (0 = по умолчанию).
	VipsTimeout time.Duration

	// CacheEnabled - включить кэширование результатов.
	CacheEnabled bool

	// CacheDir - директория для кэша.
	CacheDir string

	// NoThumbnails - не создавать превью при добавлении файлов.
	NoThumbnails bool

	// MaxMemoryMB - ограничение памяти на декодирование (0 = без ограничения).
	MaxMemoryMB int

	// DailyLimit - бесплатная дневная квота.
	DailyLimit int

	// Watch - режим слежения за директорией.
	Watch bool

	// Preset - профиль качества (web, print, archive, thumbnail, transparent).
	Preset string

	// Verbose - подробный вывод.
	Verbose bool

	// NoProgress - отключить прогресс-бар.
	NoProgress bool
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() *Config {
	return &Config{
		Settings:     DefaultSettings(),
		DailyLimit:   FreeDailyLimit,
		SegmenterCmd: "rembg i -m {model} {input} {output}",
	}
}

// DefaultDataDir возвращает директорию состояния по умолчанию.
func DefaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "photobatch")
	}
	return ".photobatch"
}

// ApplyEnv переопределяет поля значениями из переменных окружения.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvVipsPath); v != "" && c.VipsPath == "" {
		c.VipsPath = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" && c.RedisURL == "" {
		c.RedisURL = v
	}
	if v := os.Getenv(EnvSegmenter); v != "" {
		c.SegmenterCmd = v
	}
	if v := os.Getenv(EnvDataDir); v != "" && c.DataDir == "" {
		c.DataDir = v
	}
}

// Validate проверяет корректность конфигурации и заполняет производные пути.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("выходная директория не указана (--out)")
	}
	if err := c.Settings.Validate(); err != nil {
		return err
	}
	if c.MaxMemoryMB < 0 {
		return fmt.Errorf("ограничение памяти не может быть отрицательным: %d", c.MaxMemoryMB)
	}
	if c.DailyLimit < 0 {
		return fmt.Errorf("дневная квота не может быть отрицательной: %d", c.DailyLimit)
	}

	c.ResolvePaths()
	return nil
}

// ResolvePaths заполняет пути состояния, не заданные явно.
func (c *Config) ResolvePaths() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "state.sqlite")
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(c.DataDir, "cache")
	}
}

/*
Возможные расширения:
- Добавить лимит размера кэша
*/
