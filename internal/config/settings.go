// Package config содержит настройки конвертации и конфигурацию приложения.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// OutputFormat определяет выходной формат изображения.
type OutputFormat string

const (
	// FormatWebP - lossy формат по умолчанию, первый кандидат при fallback.
	FormatWebP OutputFormat = "webp"
	// FormatPNG - lossless формат, поддерживается всегда.
	FormatPNG OutputFormat = "png"
	// FormatJPEG - классический lossy формат.
	FormatJPEG OutputFormat = "jpeg"
	// FormatAVIF - современный lossy формат.
	FormatAVIF OutputFormat = "avif"
)

// IsLossy возвращает true, если для формата имеет смысл параметр качества.
func (f OutputFormat) IsLossy() bool {
	switch f {
	case FormatJPEG, FormatWebP, FormatAVIF:
		return true
	}
	return false
}

// Extension возвращает каноническое расширение файла для формата (с точкой).
func (f OutputFormat) Extension() string {
	switch f {
	case FormatWebP:
		return ".webp"
	case FormatPNG:
		return ".png"
	case FormatJPEG:
		return ".jpg"
	case FormatAVIF:
		return ".avif"
	}
	return "." + string(f)
}

// ParseOutputFormat разбирает строку формата, принимая "jpg" как синоним "jpeg".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch s {
	case "webp":
		return FormatWebP, nil
	case "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "avif":
		return FormatAVIF, nil
	}
	return "", fmt.Errorf("неизвестный формат: %s (доступны: webp, png, jpeg, avif)", s)
}

// BgRemovalMode определяет стратегию удаления фона.
type BgRemovalMode string

const (
	// BgModeAI - удаление фона внешней моделью сегментации.
	BgModeAI BgRemovalMode = "ai"
	// BgModeColor - удаление фона по цвету.
	BgModeColor BgRemovalMode = "color"
)

// QualityTier определяет уровень качества AI модели.
type QualityTier string

const (
	// TierFast - маленькая модель.
	TierFast QualityTier = "fast"
	// TierBalanced - средняя модель.
	TierBalanced QualityTier = "balanced"
	// TierMaximum - большая модель.
	TierMaximum QualityTier = "maximum"
)

const (
	// DefaultQuality - качество по умолчанию.
	DefaultQuality = 80

	// MaxEdgeBlur - максимальная интенсивность размытия краёв.
	MaxEdgeBlur = 5
)

// ConversionSettings содержит параметры конвертации одного запуска.
// Значение неизменяемо в течение обработки пакета.
type ConversionSettings struct {
	// Quality - качество для lossy форматов (1-100).
	Quality int `json:"quality" yaml:"quality"`

	// OutputFormat - запрошенный выходной формат.
	OutputFormat OutputFormat `json:"output_format" yaml:"output_format"`

	// EnableResize - включить уменьшение размеров.
	EnableResize bool `json:"enable_resize" yaml:"enable_resize"`

	// MaxWidth - максимальная ширина (0 = исходная).
	MaxWidth int `json:"max_width" yaml:"max_width"`

	// MaxHeight - максимальная высота (0 = исходная).
	MaxHeight int `json:"max_height" yaml:"max_height"`

	// StripMetadata - удалять метаданные.
	StripMetadata bool `json:"strip_metadata" yaml:"strip_metadata"`

	// RemoveBackground - включить удаление фона.
	RemoveBackground bool `json:"remove_background" yaml:"remove_background"`

	// BgRemovalMode - стратегия удаления фона (ai/color).
	BgRemovalMode BgRemovalMode `json:"bg_removal_mode" yaml:"bg_removal_mode"`

	// BgRemovalQuality - уровень AI модели (fast/balanced/maximum).
	BgRemovalQuality QualityTier `json:"bg_removal_quality" yaml:"bg_removal_quality"`

	// BgColorTolerance - допуск цвета в процентах (0-100).
	BgColorTolerance int `json:"bg_color_tolerance" yaml:"bg_color_tolerance"`

	// RefineEdges - сглаживать края после удаления фона.
	RefineEdges bool `json:"refine_edges" yaml:"refine_edges"`

	// EdgeBlur - интенсивность размытия краёв (0-5).
	EdgeBlur float64 `json:"edge_blur" yaml:"edge_blur"`
}

// DefaultSettings возвращает настройки конвертации по умолчанию.
func DefaultSettings() ConversionSettings {
	return ConversionSettings{
		Quality:          DefaultQuality,
		OutputFormat:     FormatWebP,
		EnableResize:     false,
		MaxWidth:         1920,
		MaxHeight:        1080,
		StripMetadata:    true,
		RemoveBackground: false,
		BgRemovalMode:    BgModeAI,
		BgRemovalQuality: TierBalanced,
		BgColorTolerance: 20,
		RefineEdges:      true,
		EdgeBlur:         1,
	}
}

// Validate проверяет корректность настроек.
func (s ConversionSettings) Validate() error {
	if s.Quality < 1 || s.Quality > 100 {
		return fmt.Errorf("качество должно быть от 1 до 100, получено: %d", s.Quality)
	}
	if _, err := ParseOutputFormat(string(s.OutputFormat)); err != nil {
		return err
	}
	if s.MaxWidth < 0 || s.MaxHeight < 0 {
		return fmt.Errorf("максимальные размеры не могут быть отрицательными: %dx%d", s.MaxWidth, s.MaxHeight)
	}
	if s.BgRemovalMode != BgModeAI && s.BgRemovalMode != BgModeColor {
		return fmt.Errorf("неизвестный режим удаления фона: %s (доступны: ai, color)", s.BgRemovalMode)
	}
	switch s.BgRemovalQuality {
	case TierFast, TierBalanced, TierMaximum:
	default:
		return fmt.Errorf("неизвестный уровень качества модели: %s (доступны: fast, balanced, maximum)", s.BgRemovalQuality)
	}
	if s.BgColorTolerance < 0 || s.BgColorTolerance > 100 {
		return fmt.Errorf("допуск цвета должен быть от 0 до 100, получено: %d", s.BgColorTolerance)
	}
	if s.EdgeBlur < 0 || s.EdgeBlur > MaxEdgeBlur {
		return fmt.Errorf("размытие краёв должно быть от 0 до %d, получено: %g", MaxEdgeBlur, s.EdgeBlur)
	}
	return nil
}

// ResizeActive возвращает true, если resize включён и задан хотя бы один предел.
func (s ConversionSettings) ResizeActive() bool {
	return s.EnableResize && (s.MaxWidth > 0 || s.MaxHeight > 0)
}

// SettingsPatch описывает частичное обновление настроек.
// nil поля не меняют текущее значение.
type SettingsPatch struct {
	Quality          *int           `json:"quality,omitempty" yaml:"quality,omitempty"`
	OutputFormat     *OutputFormat  `json:"output_format,omitempty" yaml:"output_format,omitempty"`
	EnableResize     *bool          `json:"enable_resize,omitempty" yaml:"enable_resize,omitempty"`
	MaxWidth         *int           `json:"max_width,omitempty" yaml:"max_width,omitempty"`
	MaxHeight        *int           `json:"max_height,omitempty" yaml:"max_height,omitempty"`
	StripMetadata    *bool          `json:"strip_metadata,omitempty" yaml:"strip_metadata,omitempty"`
	RemoveBackground *bool          `json:"remove_background,omitempty" yaml:"remove_background,omitempty"`
	BgRemovalMode    *BgRemovalMode `json:"bg_removal_mode,omitempty" yaml:"bg_removal_mode,omitempty"`
	BgRemovalQuality *QualityTier   `json:"bg_removal_quality,omitempty" yaml:"bg_removal_quality,omitempty"`
	BgColorTolerance *int           `json:"bg_color_tolerance,omitempty" yaml:"bg_color_tolerance,omitempty"`
	RefineEdges      *bool          `json:"refine_edges,omitempty" yaml:"refine_edges,omitempty"`
	EdgeBlur         *float64       `json:"edge_blur,omitempty" yaml:"edge_blur,omitempty"`
}

// Merge возвращает копию настроек с применённым патчем.
func (s ConversionSettings) Merge(p SettingsPatch) ConversionSettings {
	if p.Quality != nil {
		s.Quality = *p.Quality
	}
	if p.OutputFormat != nil {
		s.OutputFormat = *p.OutputFormat
	}
	if p.EnableResize != nil {
		s.EnableResize = *p.EnableResize
	}
	if p.MaxWidth != nil {
		s.MaxWidth = *p.MaxWidth
	}
	if p.MaxHeight != nil {
		s.MaxHeight = *p.MaxHeight
	}
	if p.StripMetadata != nil {
		s.StripMetadata = *p.StripMetadata
	}
	if p.RemoveBackground != nil {
		s.RemoveBackground = *p.RemoveBackground
	}
	if p.BgRemovalMode != nil {
		s.BgRemovalMode = *p.BgRemovalMode
	}
	if p.BgRemovalQuality != nil {
		s.BgRemovalQuality = *p.BgRemovalQuality
	}
	if p.BgColorTolerance != nil {
		s.BgColorTolerance = *p.BgColorTolerance
	}
	if p.RefineEdges != nil {
		s.RefineEdges = *p.RefineEdges
	}
	if p.EdgeBlur != nil {
		s.EdgeBlur = *p.EdgeBlur
	}
	return s
}

// Params возвращает параметры, влияющие на результат, в виде JSON.
func (s ConversionSettings) Params() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// ParamsHash возвращает sha256 хэш параметров конвертации.
func (s ConversionSettings) ParamsHash() string {
	h := sha256.Sum256([]byte(s.Params()))
	return hex.EncodeToString(h[:])
}

/*
Возможные расширения:
- Добавить выбор алгоритма ресемплинга
- Добавить режим crop (fill) вместо fit
- Добавить поддержку JPEG XL
*/
