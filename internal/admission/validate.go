// Package admission принимает файлы в очередь: проверяет размер и тип, ограничивает размер пакета.
package admission

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/artemshloyda/photobatch/internal/config"
)

var (
	// ErrFileTooLarge - файл больше допустимого размера.
	ErrFileTooLarge = errors.New("файл превышает максимальный размер 25MB")

	// ErrUnsupportedType - ни тип содержимого, ни расширение не поддерживаются.
	ErrUnsupportedType = errors.New("формат не поддерживается (поддерживаются: JPG, PNG, GIF, BMP, TIFF, HEIC, AVIF, SVG, ICO)")

	// ErrBatchFull - в пакете нет свободных мест.
	ErrBatchFull = errors.New("пакет заполнен")
)

// ValidationError - отказ в приёме конкретного файла.
type ValidationError struct {
	Name string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("файл %q: %v", e.Name, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// SupportedMimeTypes - допустимые типы содержимого.
var SupportedMimeTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
	"image/bmp",
	"image/tiff",
	"image/heic",
	"image/heif",
	"image/avif",
	"image/svg+xml",
	"image/x-icon",
	"image/vnd.microsoft.icon",
}

// SupportedExtensions - допустимые расширения (в нижнем регистре).
var SupportedExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".tif",
	".heic", ".heif", ".avif", ".svg", ".ico",
}

// extensionMimeTypes - тип содержимого по расширению для форматов,
// которые не распознаёт http.DetectContentType.
var extensionMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".webp": "image/webp",
}

// File - файл, предложенный к приёму.
type File struct {
	// Name - имя файла.
	Name string

	// MimeType - заявленный тип содержимого.
	MimeType string

	// Data - содержимое.
	Data []byte

	// Size - размер; если 0, берётся len(Data).
	Size int64
}

// ByteSize возвращает размер файла.
func (f File) ByteSize() int64 {
	if f.Size > 0 {
		return f.Size
	}
	return int64(len(f.Data))
}

// mimeSupported проверяет тип: точное совпадение со списком или любой image/*.
func mimeSupported(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if mt == "" {
		return false
	}
	for _, s := range SupportedMimeTypes {
		if mt == s {
			return true
		}
	}
	return strings.HasPrefix(mt, "image/")
}

// HasSupportedExtension проверяет расширение имени файла независимо от типа.
func HasSupportedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Validate проверяет файл. Достаточно совпадения типа или расширения.
func Validate(f File, maxSize int64) error {
	if f.ByteSize() > maxSize {
		return &ValidationError{Name: f.Name, Err: ErrFileTooLarge}
	}
	if !mimeSupported(f.MimeType) && !HasSupportedExtension(f.Name) {
		return &ValidationError{Name: f.Name, Err: ErrUnsupportedType}
	}
	return nil
}

// DetectMimeType определяет тип по содержимому, для нераспознанных форматов - по расширению.
func DetectMimeType(name string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	if mt, ok := extensionMimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return mt
	}
	return sniffed
}

// FromPath читает файл с диска. Слишком большие файлы не читаются:
// возвращается File только с именем и размером, который отклонит Validate.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("не удалось получить информацию о файле %s: %w", path, err)
	}

	f := File{Name: filepath.Base(path), Size: info.Size()}
	if info.Size() > config.MaxFileSize {
		return f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("не удалось прочитать файл %s: %w", path, err)
	}
	f.Data = data
	f.Size = int64(len(data))
	f.MimeType = DetectMimeType(f.Name, data)
	return f, nil
}
