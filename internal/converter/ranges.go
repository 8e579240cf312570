package converter

import (
	"math"
	"strings"
)

// Stage - этап конвейера, к которому относится обновление прогресса.
type Stage string

const (
	// StageStart - старт обработки.
	StageStart Stage = "start"
	// StageTranscode - предварительное преобразование HEIC.
	StageTranscode Stage = "transcode"
	// StageBackground - удаление фона.
	StageBackground Stage = "background"
	// StageDecode - декодирование.
	StageDecode Stage = "decode"
	// StageResize - расчёт размеров.
	StageResize Stage = "resize"
	// StageCanvas - отрисовка в целевой буфер.
	StageCanvas Stage = "canvas"
	// StageEncode - кодирование.
	StageEncode Stage = "encode"
)

// ProgressUpdate - обновление прогресса одного изображения.
type ProgressUpdate struct {
	Stage   Stage
	Percent int
}

// ProgressFunc получает обновления прогресса.
type ProgressFunc func(ProgressUpdate)

// StageRanges - границы этапов на шкале 0-100, вычисляются один раз на задачу.
type StageRanges struct {
	HeicEnd   int
	BgStart   int
	BgEnd     int
	LoadStart int
	LoadEnd   int
	ResizeEnd int
	CanvasEnd int
}

// ComputeRanges вычисляет границы этапов по набору активных этапов.
// Удаление фона занимает самый широкий участок, неактивные этапы имеют нулевую ширину.
func ComputeRanges(isHeic, hasBg bool) StageRanges {
	r := StageRanges{}

	if isHeic {
		r.HeicEnd = 10
	}
	r.BgStart = r.HeicEnd
	r.BgEnd = r.HeicEnd
	if hasBg {
		r.BgEnd = 70
	}
	r.LoadStart = r.BgEnd

	switch {
	case hasBg:
		r.LoadEnd, r.ResizeEnd, r.CanvasEnd = 80, 85, 90
	case isHeic:
		r.LoadEnd, r.ResizeEnd, r.CanvasEnd = 40, 60, 80
	default:
		r.LoadEnd, r.ResizeEnd, r.CanvasEnd = 30, 50, 70
	}

	return r
}

// ScaleBackground переводит прогресс бэкенда (0-100) в участок удаления фона.
func (r StageRanges) ScaleBackground(p int) int {
	return r.BgStart + int(math.Round(float64(p)/100*float64(r.BgEnd-r.BgStart)))
}

// IsHEIC определяет, требует ли источник предварительного преобразования.
func IsHEIC(mimeType, name string) bool {
	switch strings.ToLower(mimeType) {
	case "image/heic", "image/heif":
		return true
	}
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".heic") || strings.HasSuffix(lower, ".heif")
}
