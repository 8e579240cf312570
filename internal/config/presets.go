// Package config содержит настройки конвертации и конфигурацию приложения.
package config

// Preset определяет профиль качества.
type Preset string

const (
	// PresetWeb - оптимизация для веба: webp, качество 75, вписать в 1920x1080.
	PresetWeb Preset = "web"
	// PresetPrint - высокое качество: jpeg 95, без resize, метаданные сохраняются.
	PresetPrint Preset = "print"
	// PresetArchive - без потерь: PNG, без resize.
	PresetArchive Preset = "archive"
	// PresetThumbnail - превью: webp, качество 60, вписать в 300x300.
	PresetThumbnail Preset = "thumbnail"
	// PresetTransparent - вырезка объекта: PNG с удалением фона AI моделью.
	PresetTransparent Preset = "transparent"
)

// PresetConfig содержит настройки для пресета.
type PresetConfig struct {
	// Format - выходной формат.
	Format OutputFormat
	// Quality - качество (1-100).
	Quality int
	// MaxWidth - максимальная ширина (0 = без ограничения).
	MaxWidth int
	// MaxHeight - максимальная высота (0 = без ограничения).
	MaxHeight int
	// StripMetadata - удалять метаданные.
	StripMetadata bool
	// RemoveBackground - удалять фон.
	RemoveBackground bool
}

// Presets содержит все доступные пресеты.
var Presets = map[Preset]PresetConfig{
	PresetWeb: {
		Format:        FormatWebP,
		Quality:       75,
		MaxWidth:      1920,
		MaxHeight:     1080,
		StripMetadata: true,
	},
	PresetPrint: {
		Format:  FormatJPEG,
		Quality: 95,
	},
	PresetArchive: {
		Format:  FormatPNG,
		Quality: 100,
	},
	PresetThumbnail: {
		Format:        FormatWebP,
		Quality:       60,
		MaxWidth:      300,
		MaxHeight:     300,
		StripMetadata: true,
	},
	PresetTransparent: {
		Format:           FormatPNG,
		Quality:          100,
		StripMetadata:    true,
		RemoveBackground: true,
	},
}

// ApplyPreset применяет пресет к настройкам.
// Возвращает true, если пресет был применён.
func (s *ConversionSettings) ApplyPreset(preset string) bool {
	p, ok := Presets[Preset(preset)]
	if !ok {
		return false
	}

	s.OutputFormat = p.Format
	s.Quality = p.Quality
	s.EnableResize = p.MaxWidth > 0 || p.MaxHeight > 0
	s.MaxWidth = p.MaxWidth
	s.MaxHeight = p.MaxHeight
	s.StripMetadata = p.StripMetadata
	s.RemoveBackground = p.RemoveBackground

	return true
}

// ValidPresets возвращает список доступных пресетов.
func ValidPresets() []string {
	return []string{
		string(PresetWeb),
		string(PresetPrint),
		string(PresetArchive),
		string(PresetThumbnail),
		string(PresetTransparent),
	}
}
