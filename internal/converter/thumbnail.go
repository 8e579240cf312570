package converter

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	// ThumbnailSize - максимальная сторона превью.
	ThumbnailSize = 100

	// ThumbnailQuality - качество JPEG превью.
	ThumbnailQuality = 70
)

// Thumbnail строит JPEG превью со стороной не больше ThumbnailSize.
func Thumbnail(img image.Image) ([]byte, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: пустое изображение", ErrDecode)
	}

	thumb := imaging.Fit(img, ThumbnailSize, ThumbnailSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(ThumbnailQuality)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// ThumbnailFromBytes декодирует источник и строит превью.
func ThumbnailFromBytes(data []byte) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Thumbnail(img)
}
