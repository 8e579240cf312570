package bgremoval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/artemshloyda/photobatch/internal/config"
)

// ErrSegmentation оборачивает любые ошибки AI бэкенда.
var ErrSegmentation = errors.New("ошибка AI сегментации")

// ProgressFunc получает прогресс в процентах (0-100).
type ProgressFunc func(percent int)

// Segmenter - внешний бэкенд сегментации, возвращающий изображение с альфа-каналом.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image, tier config.QualityTier, onProgress ProgressFunc) (image.Image, error)
}

// ModelForTier возвращает идентификатор модели для уровня качества.
func ModelForTier(tier config.QualityTier) string {
	switch tier {
	case config.TierFast:
		return "isnet_quint8"
	case config.TierMaximum:
		return "isnet"
	default:
		return "isnet_fp16"
	}
}

// Device - вычислительное устройство для инференса.
type Device string

const (
	// DeviceGPU - аппаратный ускоритель.
	DeviceGPU Device = "gpu"
	// DeviceCPU - центральный процессор.
	DeviceCPU Device = "cpu"
)

// EnvDevice позволяет принудительно выбрать устройство (gpu/cpu).
const EnvDevice = "PHOTOBATCH_DEVICE"

// DetectDevice определяет доступность GPU: переменная PHOTOBATCH_DEVICE
// имеет приоритет, иначе GPU считается доступным при наличии nvidia-smi в PATH.
func DetectDevice() Device {
	switch strings.ToLower(os.Getenv(EnvDevice)) {
	case string(DeviceGPU):
		return DeviceGPU
	case string(DeviceCPU):
		return DeviceCPU
	}
	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		return DeviceGPU
	}
	return DeviceCPU
}

// ExecSegmenter запускает внешнюю команду сегментации через временные PNG файлы.
// Шаблон команды поддерживает подстановки {model}, {device}, {input}, {output}.
type ExecSegmenter struct {
	// template - шаблон команды.
	template []string

	// device - устройство, выбранное при создании.
	device Device

	// timeout - таймаут на одно изображение.
	timeout time.Duration
}

// NewExecSegmenter создаёт ExecSegmenter из строки шаблона.
// Возвращает ошибку, если бинарник команды не найден.
func NewExecSegmenter(template string) (*ExecSegmenter, error) {
	parts := strings.Fields(template)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: пустая команда", ErrSegmentation)
	}
	if _, err := exec.LookPath(parts[0]); err != nil {
		return nil, fmt.Errorf("%w: команда %s не найдена: %v", ErrSegmentation, parts[0], err)
	}

	return &ExecSegmenter{
		template: parts,
		device:   DetectDevice(),
		timeout:  10 * time.Minute,
	}, nil
}

// Device возвращает выбранное устройство.
func (s *ExecSegmenter) Device() Device {
	return s.device
}

// Args строит аргументы команды для конкретного запуска.
func (s *ExecSegmenter) Args(model, input, output string) []string {
	r := strings.NewReplacer(
		"{model}", model,
		"{device}", string(s.device),
		"{input}", input,
		"{output}", output,
	)
	args := make([]string, len(s.template))
	for i, p := range s.template {
		args[i] = r.Replace(p)
	}
	return args
}

// Segment реализует Segmenter.
func (s *ExecSegmenter) Segment(ctx context.Context, img image.Image, tier config.QualityTier, onProgress ProgressFunc) (image.Image, error) {
	report := func(p int) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	tmpDir, err := os.MkdirTemp("", "photobatch-segment-*")
	if err != nil {
		return nil, fmt.Errorf("%w: не удалось создать временную директорию: %v", ErrSegmentation, err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	input := filepath.Join(tmpDir, "input.png")
	output := filepath.Join(tmpDir, "output.png")

	if err := imaging.Save(img, input); err != nil {
		return nil, fmt.Errorf("%w: не удалось записать вход: %v", ErrSegmentation, err)
	}
	report(5)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := s.Args(ModelForTier(tier), input, output)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := err.Error()
		if stderr.Len() > 0 {
			msg = fmt.Sprintf("%s: %s", msg, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%w: %s", ErrSegmentation, msg)
	}
	report(95)

	result, err := imaging.Open(output)
	if err != nil {
		return nil, fmt.Errorf("%w: не удалось прочитать результат: %v", ErrSegmentation, err)
	}
	report(100)

	return result, nil
}

/*
Возможные расширения:
- Разбирать прогресс из stderr внешней команды
- Держать модель в памяти долгоживущего процесса вместо запуска на каждое изображение
*/
