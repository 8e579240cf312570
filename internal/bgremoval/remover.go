package bgremoval

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/artemshloyda/photobatch/internal/config"
)

// Remover выбирает стратегию удаления фона и применяет сглаживание краёв.
type Remover struct {
	// segmenter - AI бэкенд (nil, если недоступен).
	segmenter Segmenter

	// logger - логгер предупреждений.
	logger *zap.Logger
}

// NewRemover создаёт Remover. segmenter может быть nil: тогда режим ai недоступен.
func NewRemover(segmenter Segmenter, logger *zap.Logger) *Remover {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Remover{segmenter: segmenter, logger: logger}
}

// Available сообщает, может ли стратегия работать в текущей среде.
func (r *Remover) Available(mode config.BgRemovalMode) bool {
	if mode == config.BgModeColor {
		return true
	}
	return r.segmenter != nil
}

// RemoveAI удаляет фон внешней моделью. Прогресс 0-100 описывает весь вызов:
// при сглаживании инференс занимает 0-90, затем 92 и 100.
func (r *Remover) RemoveAI(ctx context.Context, img image.Image, s config.ConversionSettings, onProgress ProgressFunc) (*image.NRGBA, error) {
	if r.segmenter == nil {
		return nil, fmt.Errorf("%w: бэкенд не настроен", ErrSegmentation)
	}

	report := func(p int) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	span := 100.0
	if s.RefineEdges {
		span = 90
	}

	masked, err := r.segmenter.Segment(ctx, img, s.BgRemovalQuality, func(p int) {
		report(int(math.Round(float64(p) / 100 * span)))
	})
	if err != nil {
		return nil, err
	}

	result := imaging.Clone(masked)
	if s.RefineEdges && s.EdgeBlur > 0 {
		report(92)
		result = r.refine(result, s.EdgeBlur)
		report(100)
	}

	return result, nil
}

// RemoveColor удаляет фон по цвету. Цвет фона определяется по углам,
// при неоднородных углах используется белый.
func (r *Remover) RemoveColor(img image.Image, s config.ConversionSettings) *image.NRGBA {
	src := imaging.Clone(img)

	target, ok := DetectBackgroundColor(src)
	if !ok {
		target = White
	}
	r.logger.Debug("цвет фона",
		zap.Bool("detected", ok),
		zap.Uint8("r", target.R),
		zap.Uint8("g", target.G),
		zap.Uint8("b", target.B),
	)

	result := RemoveColorBackground(src, target, s.BgColorTolerance, DefaultFeather)
	if s.RefineEdges && s.EdgeBlur > 0 {
		result = r.refine(result, s.EdgeBlur)
	}
	return result
}

// refine применяет RefineEdges; при ошибке возвращает исходное изображение.
func (r *Remover) refine(img *image.NRGBA, blur float64) (out *image.NRGBA) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("сглаживание краёв прервано, используется результат без сглаживания",
				zap.Any("panic", p))
			out = img
		}
	}()

	refined, err := RefineEdges(img, blur)
	if err != nil {
		r.logger.Warn("сглаживание краёв не удалось, используется результат без сглаживания",
			zap.Error(err))
		return img
	}
	return refined
}
