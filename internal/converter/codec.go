package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/artemshloyda/photobatch/internal/config"
)

var (
	// ErrDecode - источник не читается или повреждён.
	ErrDecode = errors.New("не удалось прочитать изображение")

	// ErrEncode - кодек не вернул данных.
	ErrEncode = errors.New("не удалось закодировать изображение")

	// ErrUnsupportedFormat - кодек не поддерживает формат. Наружу не выходит:
	// конвейер заранее выбирает поддерживаемый формат.
	ErrUnsupportedFormat = errors.New("формат не поддерживается")
)

// EncodeOptions - параметры кодирования.
type EncodeOptions struct {
	// Quality передаётся только для lossy форматов.
	Quality int

	// StripMetadata - удалять метаданные.
	StripMetadata bool
}

// Encoder кодирует изображение в выходной формат.
type Encoder interface {
	Supports(format config.OutputFormat) bool
	Encode(ctx context.Context, img image.Image, format config.OutputFormat, opts EncodeOptions) ([]byte, error)
}

// Transcoder переводит форматы, которые Go не декодирует (HEIC, AVIF, SVG, ICO), в PNG.
type Transcoder interface {
	Transcode(ctx context.Context, data []byte, name string) ([]byte, error)
}

// Decode декодирует изображение с учётом EXIF ориентации.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// NativeEncoder кодирует PNG и JPEG средствами Go. Метаданные не записываются.
type NativeEncoder struct{}

// Supports реализует Encoder.
func (NativeEncoder) Supports(format config.OutputFormat) bool {
	return format == config.FormatPNG || format == config.FormatJPEG
}

// Encode реализует Encoder. Для JPEG прозрачность заливается белым.
func (NativeEncoder) Encode(_ context.Context, img image.Image, format config.OutputFormat, opts EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case config.FormatPNG:
		if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncode, err)
		}
	case config.FormatJPEG:
		b := img.Bounds()
		flat := imaging.Overlay(imaging.New(b.Dx(), b.Dy(), color.White), img, image.Pt(0, 0), 1.0)
		if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(opts.Quality)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncode, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return buf.Bytes(), nil
}

// Codec объединяет встроенный кодировщик и внешний (vips) для остальных форматов.
type Codec struct {
	native NativeEncoder
	// external - кодировщик WebP/AVIF (nil, если vips не найден).
	external Encoder
}

// NewCodec создаёт Codec. external может быть nil.
func NewCodec(external Encoder) *Codec {
	return &Codec{external: external}
}

// Supports реализует Encoder.
func (c *Codec) Supports(format config.OutputFormat) bool {
	if c.native.Supports(format) {
		return true
	}
	return c.external != nil && c.external.Supports(format)
}

// Encode реализует Encoder.
func (c *Codec) Encode(ctx context.Context, img image.Image, format config.OutputFormat, opts EncodeOptions) ([]byte, error) {
	if c.native.Supports(format) {
		return c.native.Encode(ctx, img, format, opts)
	}
	if c.external == nil || !c.external.Supports(format) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return c.external.Encode(ctx, img, format, opts)
}
