package converter

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/artemshloyda/photobatch/internal/config"
	"github.com/artemshloyda/photobatch/internal/vipsfinder"
)

// VipsCodec кодирует WebP/AVIF и декодирует HEIC-подобные форматы через внешний vips.
type VipsCodec struct {
	// info - найденный vips.
	info *vipsfinder.VipsInfo

	// timeout - таймаут на один вызов vips.
	timeout time.Duration
}

// NewVipsCodec создаёт VipsCodec.
func NewVipsCodec(info *vipsfinder.VipsInfo) *VipsCodec {
	return &VipsCodec{
		info:    info,
		timeout: 5 * time.Minute,
	}
}

// SetTimeout устанавливает таймаут на вызов vips.
func (v *VipsCodec) SetTimeout(d time.Duration) {
	v.timeout = d
}

// Supports реализует Encoder: формат поддерживается, если vips содержит нужный saver.
func (v *VipsCodec) Supports(format config.OutputFormat) bool {
	switch format {
	case config.FormatWebP:
		return v.info.HasSaver("webpsave")
	case config.FormatAVIF:
		return v.info.HasSaver("heifsave")
	}
	return false
}

// OutputSuffix возвращает параметры сохранения vips, например "[Q=80,strip]".
func OutputSuffix(format config.OutputFormat, opts EncodeOptions) string {
	var params []string
	if format.IsLossy() && opts.Quality > 0 {
		params = append(params, fmt.Sprintf("Q=%d", opts.Quality))
	}
	if opts.StripMetadata {
		params = append(params, "strip")
	}
	if len(params) == 0 {
		return ""
	}
	return "[" + strings.Join(params, ",") + "]"
}

// Encode реализует Encoder: изображение передаётся vips через временный PNG.
func (v *VipsCodec) Encode(ctx context.Context, img image.Image, format config.OutputFormat, opts EncodeOptions) ([]byte, error) {
	if !v.Supports(format) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	tmpDir, err := os.MkdirTemp("", "photobatch-vips-*")
	if err != nil {
		return nil, fmt.Errorf("не удалось создать временную директорию: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	src := filepath.Join(tmpDir, "input.png")
	if err := imaging.Save(img, src); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	// vips определяет формат по расширению файла
	dst := filepath.Join(tmpDir, "output"+format.Extension())
	if err := v.run(ctx, "copy", src, dst+OutputSuffix(format, opts)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return data, nil
}

// Transcode реализует Transcoder: исходные байты сохраняются с исходным расширением
// и переводятся vips в PNG.
func (v *VipsCodec) Transcode(ctx context.Context, data []byte, name string) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "photobatch-vips-*")
	if err != nil {
		return nil, fmt.Errorf("не удалось создать временную директорию: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".heic"
	}
	src := filepath.Join(tmpDir, "input"+ext)
	if err := os.WriteFile(src, data, 0644); err != nil {
		return nil, fmt.Errorf("не удалось записать временный файл: %w", err)
	}

	dst := filepath.Join(tmpDir, "output.png")
	if err := v.run(ctx, "copy", src, dst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return os.ReadFile(dst)
}

// run выполняет vips с аргументами и возвращает ошибку вместе с stderr.
func (v *VipsCodec) run(ctx context.Context, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, v.info.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("vips %s: %s: %s", args[0], err, strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("vips %s: %w", args[0], err)
	}
	return nil
}

/*
Возможные расширения:
- Передавать изображение через stdin/stdout вместо временных файлов
- Добавить поддержку ICC профилей
- Использовать vips thumbnail для resize больших изображений без полного декодирования
*/
