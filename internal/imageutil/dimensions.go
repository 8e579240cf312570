// Package imageutil содержит чистые функции политики размеров, форматов и имён файлов.
package imageutil

import (
	"fmt"
	"math"
	"strings"

	"github.com/artemshloyda/photobatch/internal/config"
)

// ComputeTargetDimensions вычисляет размеры, вписанные в maxW x maxH с сохранением пропорций.
// Изображение никогда не увеличивается. Нулевой предел заменяется исходным размером.
// Каждая сторона результата не меньше 1 пикселя.
func ComputeTargetDimensions(origW, origH, maxW, maxH int) (int, int) {
	if maxW <= 0 {
		maxW = origW
	}
	if maxH <= 0 {
		maxH = origH
	}
	if origW <= 0 || origH <= 0 {
		return origW, origH
	}
	if origW <= maxW && origH <= maxH {
		return origW, origH
	}

	ratio := math.Min(float64(maxW)/float64(origW), float64(maxH)/float64(origH))
	return scaled(origW, ratio), scaled(origH, ratio)
}

// scaled масштабирует сторону, результат не меньше 1 пикселя.
func scaled(side int, ratio float64) int {
	return max(1, int(math.Round(float64(side)*ratio)))
}

// OutputFileName заменяет расширение имени файла каноническим расширением формата.
// Базовое имя - всё до последней точки; имя без точки сохраняется целиком.
func OutputFileName(originalName string, format config.OutputFormat) string {
	base := originalName
	if i := strings.LastIndex(originalName, "."); i > 0 {
		base = originalName[:i]
	}
	return base + format.Extension()
}

// Savings описывает экономию после конвертации.
type Savings struct {
	// SavedBytes - разница размеров (может быть отрицательной).
	SavedBytes int64
	// SavedPercentage - процент экономии, округлённый до целого.
	SavedPercentage int
}

// CalculateSavings вычисляет экономию между исходным и конвертированным размером.
func CalculateSavings(original, converted int64) Savings {
	saved := original - converted
	if original == 0 {
		return Savings{SavedBytes: saved}
	}
	return Savings{
		SavedBytes:      saved,
		SavedPercentage: int(math.Round(float64(saved) / float64(original) * 100)),
	}
}

// FormatBytes форматирует байты в человекочитаемый формат.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
