// Package converter содержит конвейер конвертации одного изображения:
// преобразование HEIC, удаление фона, декодирование, resize и кодирование.
package converter

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/artemshloyda/photobatch/internal/bgremoval"
	"github.com/artemshloyda/photobatch/internal/config"
	"github.com/artemshloyda/photobatch/internal/imageutil"
)

// Input - исходное изображение.
type Input struct {
	// Data - исходные байты.
	Data []byte

	// MimeType - заявленный тип содержимого.
	MimeType string

	// Name - исходное имя файла.
	Name string
}

// Result - результат успешной конвертации.
type Result struct {
	// Data - закодированный результат.
	Data []byte

	// Format - фактический выходной формат (после fallback).
	Format config.OutputFormat

	// Width, Height - итоговые размеры.
	Width  int
	Height int

	// OriginalWidth, OriginalHeight - размеры после декодирования.
	OriginalWidth  int
	OriginalHeight int

	// Degraded - запрошенный этап не выполнился (удаление фона не удалось),
	// результат отличается от штатного.
	Degraded bool
}

// Size возвращает размер результата в байтах.
func (r *Result) Size() int64 {
	return int64(len(r.Data))
}

// Pipeline выполняет конвертацию одного изображения.
type Pipeline struct {
	// encoder - кодировщик выходных форматов, он же проба поддержки.
	encoder Encoder

	// transcoder - декодер HEIC и прочих форматов вне Go (nil, если нет).
	transcoder Transcoder

	// remover - удаление фона (nil, если отключено).
	remover *bgremoval.Remover

	// limiter - ограничение памяти.
	limiter *MemoryLimiter

	// logger - логгер.
	logger *zap.Logger
}

// NewPipeline создаёт Pipeline.
func NewPipeline(encoder Encoder, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		encoder: encoder,
		logger:  logger,
	}
}

// SetTranscoder задаёт внешний декодер.
func (p *Pipeline) SetTranscoder(t Transcoder) {
	p.transcoder = t
}

// SetRemover задаёт подсистему удаления фона.
func (p *Pipeline) SetRemover(r *bgremoval.Remover) {
	p.remover = r
}

// SetMemoryLimiter задаёт ограничение памяти.
func (p *Pipeline) SetMemoryLimiter(ml *MemoryLimiter) {
	p.limiter = ml
}

// EffectiveFormat возвращает формат, в который будет закодирован результат.
func (p *Pipeline) EffectiveFormat(requested config.OutputFormat) config.OutputFormat {
	return imageutil.ResolveEffectiveFormat(requested, p.encoder)
}

// Variant описывает то, что конвейер реально сделает с настройками s в текущей среде:
// фактический формат и выполнение удаления фона.
func (p *Pipeline) Variant(s config.ConversionSettings) string {
	return fmt.Sprintf("%s;bg=%t", p.EffectiveFormat(s.OutputFormat), p.removesBackground(s))
}

func (p *Pipeline) removesBackground(s config.ConversionSettings) bool {
	return s.RemoveBackground && p.remover != nil && p.remover.Available(s.BgRemovalMode)
}

// Convert выполняет конвертацию. Прогресс монотонно растёт и достигает 100 только при успехе.
// Паника любого этапа превращается в ошибку.
func (p *Pipeline) Convert(ctx context.Context, in Input, s config.ConversionSettings, onProgress ProgressFunc) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("паника при конвертации", zap.String("file", in.Name), zap.Any("panic", r))
			res = nil
			err = fmt.Errorf("внутренняя ошибка конвертации: %v", r)
		}
	}()

	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: пустой файл", ErrDecode)
	}

	tracker := NewTracker(onProgress)
	isHeic := IsHEIC(in.MimeType, in.Name)
	hasBg := p.removesBackground(s)
	ranges := ComputeRanges(isHeic, hasBg)

	tracker.Report(StageStart, 2)

	release, err := p.limiter.Acquire(ctx, EstimateUsage(len(in.Data)))
	if err != nil {
		return nil, err
	}
	defer release()

	data := in.Data
	if isHeic {
		tracker.Report(StageTranscode, 5)
		if p.transcoder == nil {
			return nil, fmt.Errorf("%w: для HEIC требуется vips", ErrDecode)
		}
		data, err = p.transcoder.Transcode(ctx, data, in.Name)
		if err != nil {
			return nil, wrap(ErrDecode, err)
		}
		tracker.Report(StageTranscode, ranges.HeicEnd)
	}

	var img image.Image
	degraded := false
	if hasBg {
		decoded, err := p.decode(ctx, data, in.Name)
		if err != nil {
			return nil, err
		}
		var removed bool
		img, removed = p.removeBackground(ctx, decoded, s, ranges, tracker)
		degraded = !removed
		tracker.Report(StageBackground, ranges.BgEnd)
	}

	tracker.Report(StageDecode, ranges.LoadStart)
	if img == nil {
		if img, err = p.decode(ctx, data, in.Name); err != nil {
			return nil, err
		}
	}
	origW, origH := img.Bounds().Dx(), img.Bounds().Dy()
	tracker.Report(StageDecode, ranges.LoadEnd)

	targetW, targetH := origW, origH
	if s.ResizeActive() {
		targetW, targetH = imageutil.ComputeTargetDimensions(origW, origH, s.MaxWidth, s.MaxHeight)
	}
	tracker.Report(StageResize, ranges.ResizeEnd)

	var canvas *image.NRGBA
	if targetW != origW || targetH != origH {
		canvas = imaging.Resize(img, targetW, targetH, imaging.Lanczos)
	} else {
		canvas = imaging.Clone(img)
	}
	tracker.Report(StageCanvas, ranges.CanvasEnd)

	format := p.EffectiveFormat(s.OutputFormat)
	if format != s.OutputFormat {
		p.logger.Warn("формат не поддерживается, используется запасной",
			zap.String("requested", string(s.OutputFormat)),
			zap.String("actual", string(format)),
		)
	}

	opts := EncodeOptions{StripMetadata: s.StripMetadata}
	if format.IsLossy() {
		opts.Quality = s.Quality
	}

	out, err := p.encoder.Encode(ctx, canvas, format, opts)
	if err != nil {
		return nil, wrap(ErrEncode, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: кодек не вернул данных", ErrEncode)
	}
	tracker.Report(StageEncode, 100)

	return &Result{
		Data:           out,
		Format:         format,
		Width:          canvas.Bounds().Dx(),
		Height:         canvas.Bounds().Dy(),
		OriginalWidth:  origW,
		OriginalHeight: origH,
		Degraded:       degraded,
	}, nil
}

// decode декодирует встроенными декодерами, при неудаче пробует внешний декодер.
func (p *Pipeline) decode(ctx context.Context, data []byte, name string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := Decode(data)
	if err != nil && p.transcoder != nil {
		p.logger.Debug("встроенный декодер не справился, используется vips",
			zap.String("file", name), zap.Error(err))

		png, terr := p.transcoder.Transcode(ctx, data, name)
		if terr != nil {
			return nil, wrap(ErrDecode, terr)
		}
		img, err = Decode(png)
	}
	if err != nil {
		return nil, err
	}

	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: нулевой размер", ErrDecode)
	}
	return img, nil
}

// removeBackground применяет выбранную стратегию. Ошибка AI не прерывает конвейер:
// возвращается исходное изображение и false.
func (p *Pipeline) removeBackground(ctx context.Context, img image.Image, s config.ConversionSettings, r StageRanges, tracker *Tracker) (image.Image, bool) {
	if s.BgRemovalMode == config.BgModeColor {
		tracker.Report(StageBackground, r.BgStart+2)
		tracker.Report(StageBackground, r.BgStart+5)
		return p.remover.RemoveColor(img, s), true
	}

	result, err := p.remover.RemoveAI(ctx, img, s, func(percent int) {
		tracker.Report(StageBackground, r.ScaleBackground(percent))
	})
	if err != nil {
		p.logger.Warn("удаление фона не удалось, используется исходное изображение", zap.Error(err))
		return img, false
	}
	return result, true
}

// wrap оборачивает err в sentinel, если он ещё не обёрнут.
func wrap(sentinel, err error) error {
	if errors.Is(err, sentinel) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}

/*
Возможные расширения:
- Потоковое декодирование больших изображений
- Сохранение EXIF при отключённом StripMetadata
*/
