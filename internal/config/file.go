// Package config содержит настройки конвертации и конфигурацию приложения.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileConfig представляет структуру конфигурационного файла YAML.
// Все поля опциональны - если не указаны, используются значения по умолчанию.
type FileConfig struct {
	// Output - настройки выходных данных.
	Output *OutputConfig `yaml:"output,omitempty"`

	// Resize - настройки уменьшения размеров.
	Resize *ResizeConfig `yaml:"resize,omitempty"`

	// Background - настройки удаления фона.
	Background *BackgroundConfig `yaml:"background,omitempty"`

	// Processing - настройки обработки.
	Processing *ProcessingConfig `yaml:"processing,omitempty"`

	// Paths - настройки путей и внешних сервисов.
	Paths *PathsConfig `yaml:"paths,omitempty"`
}

// OutputConfig содержит настройки выходных данных.
type OutputConfig struct {
	// Dir - директория для сохранения результатов.
	Dir string `yaml:"dir,omitempty"`

	// Format - выходной формат (webp, png, jpeg, avif).
	Format string `yaml:"format,omitempty"`

	// Quality - качество для lossy форматов (1-100).
	Quality int `yaml:"quality,omitempty"`

	// StripMetadata - удалять метаданные из изображений.
	StripMetadata *bool `yaml:"strip_metadata,omitempty"`

	// Zip - упаковать результаты в архив.
	Zip bool `yaml:"zip,omitempty"`
}

// ResizeConfig содержит настройки уменьшения размеров.
type ResizeConfig struct {
	// Enabled - включить resize.
	Enabled bool `yaml:"enabled,omitempty"`

	// MaxWidth - максимальная ширина.
	MaxWidth int `yaml:"max_width,omitempty"`

	// MaxHeight - максимальная высота.
	MaxHeight int `yaml:"max_height,omitempty"`
}

// BackgroundConfig содержит настройки удаления фона.
type BackgroundConfig struct {
	// Enabled - включить удаление фона.
	Enabled bool `yaml:"enabled,omitempty"`

	// Mode - стратегия (ai, color).
	Mode string `yaml:"mode,omitempty"`

	// Quality - уровень AI модели (fast, balanced, maximum).
	Quality string `yaml:"quality,omitempty"`

	// Tolerance - допуск цвета в процентах.
	Tolerance *int `yaml:"tolerance,omitempty"`

	// RefineEdges - сглаживать края.
	RefineEdges *bool `yaml:"refine_edges,omitempty"`

	// EdgeBlur - интенсивность размытия краёв (0-5).
	EdgeBlur *float64 `yaml:"edge_blur,omitempty"`
}

// ProcessingConfig содержит настройки обработки.
type ProcessingConfig struct {
	// Preset - профиль качества.
	Preset string `yaml:"preset,omitempty"`

	// Cache - включить кэш результатов.
	Cache bool `yaml:"cache,omitempty"`

	// MaxMemoryMB - ограничение памяти.
	MaxMemoryMB int `yaml:"max_memory_mb,omitempty"`

	// DailyLimit - бесплатная дневная квота.
	DailyLimit int `yaml:"daily_limit,omitempty"`

	// Verbose - подробный вывод.
	Verbose bool `yaml:"verbose,omitempty"`

	// NoProgress - отключить прогресс-бар.
	NoProgress bool `yaml:"no_progress,omitempty"`
}

// PathsConfig содержит настройки путей.
type PathsConfig struct {
	// DataDir - директория состояния.
	DataDir string `yaml:"data_dir,omitempty"`

	// DB - путь к SQLite базе данных.
	DB string `yaml:"db,omitempty"`

	// CacheDir - директория кэша.
	CacheDir string `yaml:"cache_dir,omitempty"`

	// VipsPath - путь к бинарнику vips.
	VipsPath string `yaml:"vips_path,omitempty"`

	// RedisURL - URL Redis для счётчиков использования.
	RedisURL string `yaml:"redis_url,omitempty"`

	// Segmenter - шаблон команды AI сегментации.
	Segmenter string `yaml:"segmenter,omitempty"`
}

// DefaultConfigPaths возвращает список путей для поиска конфигурационного файла.
// Поиск выполняется в следующем порядке:
// 1. ./photobatch.yaml (текущая директория)
// 2. ./photobatch.yml
// 3. ~/.config/photobatch/config.yaml
// 4. ~/.config/photobatch/config.yml
func DefaultConfigPaths() []string {
	paths := []string{
		"photobatch.yaml",
		"photobatch.yml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "photobatch", "config.yaml"),
			filepath.Join(home, ".config", "photobatch", "config.yml"),
		)
	}

	return paths
}

// LoadFromFile загружает конфигурацию из указанного файла.
// Возвращает nil, nil если файл не существует.
func LoadFromFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("ошибка парсинга YAML в %s: %w", path, err)
	}

	return &fc, nil
}

// SaveToFile сохраняет конфигурацию в YAML файл.
func (fc *FileConfig) SaveToFile(path string) error {
	data, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("не удалось сериализовать конфигурацию: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("не удалось записать %s: %w", path, err)
	}
	return nil
}

// FindAndLoadConfig ищет и загружает конфигурационный файл из стандартных путей.
// Если configPath указан явно, использует только его.
// Возвращает nil, "", nil если файл не найден.
func FindAndLoadConfig(configPath string) (*FileConfig, string, error) {
	if configPath != "" {
		fc, err := LoadFromFile(configPath)
		if err != nil {
			return nil, "", err
		}
		if fc == nil {
			return nil, "", fmt.Errorf("файл конфигурации не найден: %s", configPath)
		}
		return fc, configPath, nil
	}

	for _, path := range DefaultConfigPaths() {
		fc, err := LoadFromFile(path)
		if err != nil {
			return nil, "", err
		}
		if fc != nil {
			return fc, path, nil
		}
	}

	return nil, "", nil
}

// ApplyToConfig применяет настройки из файла к основной конфигурации.
// CLI флаги имеют приоритет над файлом конфигурации, поэтому
// эта функция должна вызываться до применения CLI флагов.
func (fc *FileConfig) ApplyToConfig(cfg *Config) {
	if fc == nil {
		return
	}

	s := &cfg.Settings

	if fc.Output != nil {
		if fc.Output.Dir != "" {
			cfg.OutputDir = fc.Output.Dir
		}
		if fc.Output.Format != "" {
			if f, err := ParseOutputFormat(fc.Output.Format); err == nil {
				s.OutputFormat = f
			} else {
				// Некорректное значение отловит Validate
				s.OutputFormat = OutputFormat(fc.Output.Format)
			}
		}
		if fc.Output.Quality > 0 {
			s.Quality = fc.Output.Quality
		}
		if fc.Output.StripMetadata != nil {
			s.StripMetadata = *fc.Output.StripMetadata
		}
		if fc.Output.Zip {
			cfg.Zip = true
		}
	}

	if fc.Resize != nil {
		if fc.Resize.Enabled {
			s.EnableResize = true
		}
		if fc.Resize.MaxWidth > 0 {
			s.MaxWidth = fc.Resize.MaxWidth
		}
		if fc.Resize.MaxHeight > 0 {
			s.MaxHeight = fc.Resize.MaxHeight
		}
	}

	if fc.Background != nil {
		if fc.Background.Enabled {
			s.RemoveBackground = true
		}
		if fc.Background.Mode != "" {
			s.BgRemovalMode = BgRemovalMode(fc.Background.Mode)
		}
		if fc.Background.Quality != "" {
			s.BgRemovalQuality = QualityTier(fc.Background.Quality)
		}
		if fc.Background.Tolerance != nil {
			s.BgColorTolerance = *fc.Background.Tolerance
		}
		if fc.Background.RefineEdges != nil {
			s.RefineEdges = *fc.Background.RefineEdges
		}
		if fc.Background.EdgeBlur != nil {
			s.EdgeBlur = *fc.Background.EdgeBlur
		}
	}

	if fc.Processing != nil {
		if fc.Processing.Preset != "" {
			cfg.Preset = fc.Processing.Preset
		}
		if fc.Processing.Cache {
			cfg.CacheEnabled = true
		}
		if fc.Processing.MaxMemoryMB > 0 {
			cfg.MaxMemoryMB = fc.Processing.MaxMemoryMB
		}
		if fc.Processing.DailyLimit > 0 {
			cfg.DailyLimit = fc.Processing.DailyLimit
		}
		if fc.Processing.Verbose {
			cfg.Verbose = true
		}
		if fc.Processing.NoProgress {
			cfg.NoProgress = true
		}
	}

	if fc.Paths != nil {
		if fc.Paths.DataDir != "" {
			cfg.DataDir = fc.Paths.DataDir
		}
		if fc.Paths.DB != "" {
			cfg.DBPath = fc.Paths.DB
		}
		if fc.Paths.CacheDir != "" {
			cfg.CacheDir = fc.Paths.CacheDir
		}
		if fc.Paths.VipsPath != "" {
			cfg.VipsPath = fc.Paths.VipsPath
		}
		if fc.Paths.RedisURL != "" {
			cfg.RedisURL = fc.Paths.RedisURL
		}
		if fc.Paths.Segmenter != "" {
			cfg.SegmenterCmd = fc.Paths.Segmenter
		}
	}
}

// FromConfig строит FileConfig из текущей конфигурации (для сохранения пресетов).
func FromConfig(cfg *Config) *FileConfig {
	s := cfg.Settings
	strip := s.StripMetadata
	tolerance := s.BgColorTolerance
	refine := s.RefineEdges
	blur := s.EdgeBlur

	return &FileConfig{
		Output: &OutputConfig{
			Dir:           cfg.OutputDir,
			Format:        string(s.OutputFormat),
			Quality:       s.Quality,
			StripMetadata: &strip,
			Zip:           cfg.Zip,
		},
		Resize: &ResizeConfig{
			Enabled:   s.EnableResize,
			MaxWidth:  s.MaxWidth,
			MaxHeight: s.MaxHeight,
		},
		Background: &BackgroundConfig{
			Enabled:     s.RemoveBackground,
			Mode:        string(s.BgRemovalMode),
			Quality:     string(s.BgRemovalQuality),
			Tolerance:   &tolerance,
			RefineEdges: &refine,
			EdgeBlur:    &blur,
		},
	}
}

// GenerateExampleConfig генерирует пример конфигурационного файла.
func GenerateExampleConfig() string {
	return `# PhotoBatch Configuration File
# Все параметры опциональны - если не указаны, используются значения по умолчанию.
# CLI флаги имеют приоритет над этим файлом.

output:
  # Директория для результатов
  dir: "./converted"
  # Выходной формат: webp, png, jpeg, avif
  format: webp
  # Качество для lossy форматов (1-100)
  quality: 80
  # Удалять метаданные
  strip_metadata: true
  # Упаковать результаты в converted-images.zip
  zip: false

resize:
  enabled: false
  max_width: 1920
  max_height: 1080

background:
  # Удаление фона
  enabled: false
  # Стратегия: ai или color
  mode: ai
  # Модель: fast, balanced, maximum
  quality: balanced
  # Допуск цвета для режима color (0-100)
  tolerance: 20
  refine_edges: true
  # Размытие краёв (0-5)
  edge_blur: 1

processing:
  # Профиль: web, print, archive, thumbnail, transparent
  preset: ""
  cache: false
  max_memory_mb: 0
  verbose: false
  no_progress: false

paths:
  # Директория состояния (SQLite, кэш)
  data_dir: ""
  # Путь к бинарнику vips (по умолчанию автопоиск)
  vips_path: ""
  # Redis для счётчиков использования (опционально)
  redis_url: ""
  # Команда AI сегментации
  segmenter: "rembg i -m {model} {input} {output}"
`
}

/*
Возможные расширения:
- Добавить валидацию значений в файле конфигурации
- Добавить поддержку переменных окружения внутри значений
*/
