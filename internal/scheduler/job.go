// Package scheduler содержит очередь задач конвертации и последовательный обработчик пакета.
package scheduler

import (
	"math"
	"time"

	"github.com/artemshloyda/photobatch/internal/config"
)

// Status - состояние задачи.
type Status string

const (
	// StatusPending - ожидает обработки.
	StatusPending Status = "pending"
	// StatusProcessing - обрабатывается.
	StatusProcessing Status = "processing"
	// StatusCompleted - успешно сконвертирована.
	StatusCompleted Status = "completed"
	// StatusError - ошибка, доступен повтор.
	StatusError Status = "error"
)

// Job - одно изображение в очереди.
type Job struct {
	// ID - уникальный идентификатор задачи.
	ID string

	// Name - исходное имя файла.
	Name string

	// MimeType - заявленный тип содержимого.
	MimeType string

	// Data - исходные байты.
	Data []byte

	// OriginalSize - размер источника в байтах.
	OriginalSize int64

	// ConvertedSize - размер результата (0 до завершения).
	ConvertedSize int64

	// OriginalWidth, OriginalHeight - размеры после декодирования.
	OriginalWidth  int
	OriginalHeight int

	// OutputWidth, OutputHeight - итоговые размеры.
	OutputWidth  int
	OutputHeight int

	// Status - состояние.
	Status Status

	// Progress - прогресс 0-100.
	Progress int

	// Error - причина ошибки, только в StatusError.
	Error string

	// Output - результат, только в StatusCompleted.
	Output []byte

	// OutputFormat - фактический формат результата.
	OutputFormat config.OutputFormat

	// Thumbnail - JPEG превью (может отсутствовать).
	Thumbnail []byte

	// StartedAt - начало обработки, только в StatusProcessing.
	StartedAt time.Time

	// ETA - оценка оставшегося времени в секундах; -1, если не вычислена.
	ETA int

	// CacheHit - результат взят из кэша.
	CacheHit bool
}

// NewJob создаёт задачу в состоянии ожидания.
func NewJob(id, name, mimeType string, data []byte) *Job {
	return &Job{
		ID:           id,
		Name:         name,
		MimeType:     mimeType,
		Data:         data,
		OriginalSize: int64(len(data)),
		Status:       StatusPending,
		ETA:          -1,
	}
}

// Runnable сообщает, будет ли задача выбрана следующим ProcessBatch.
func (j *Job) Runnable() bool {
	return j.Status == StatusPending || j.Status == StatusError
}

// resetToPending возвращает задачу в ожидание без результата.
func (j *Job) resetToPending() {
	j.Status = StatusPending
	j.Progress = 0
	j.Error = ""
	j.StartedAt = time.Time{}
	j.ETA = -1
}

// ComputeETA оценивает оставшееся время по прогрессу. Оценка выдаётся только
// при 5 < progress < 100; иначе ok=false.
func ComputeETA(elapsed time.Duration, progress int) (seconds int, ok bool) {
	if progress <= 5 || progress >= 100 {
		return 0, false
	}
	total := elapsed.Seconds() / float64(progress) * 100
	remaining := total - elapsed.Seconds()
	if remaining < 0 {
		remaining = 0
	}
	return int(math.Round(remaining)), true
}
