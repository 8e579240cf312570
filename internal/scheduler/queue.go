package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/artemshloyda/photobatch/internal/cache"
	"github.com/artemshloyda/photobatch/internal/config"
	"github.com/artemshloyda/photobatch/internal/converter"
	"github.com/artemshloyda/photobatch/internal/imageutil"
	"github.com/artemshloyda/photobatch/internal/storage"
)

var (
	// ErrJobNotFound - задачи с таким ID нет.
	ErrJobNotFound = errors.New("задача не найдена")

	// ErrJobBusy - задача сейчас обрабатывается.
	ErrJobBusy = errors.New("задача обрабатывается")

	// ErrJobNotFailed - повтор возможен только для задачи с ошибкой.
	ErrJobNotFailed = errors.New("задача не в состоянии ошибки")

	// ErrBatchRunning - пакет уже обрабатывается, повторный вызов игнорируется.
	ErrBatchRunning = errors.New("пакет уже обрабатывается")
)

// Converter - конвейер конвертации одного изображения. Variant описывает результат,
// который получится с настройками в текущей среде, и входит в ключ кэша.
type Converter interface {
	Convert(ctx context.Context, in converter.Input, s config.ConversionSettings, onProgress converter.ProgressFunc) (*converter.Result, error)
	Variant(s config.ConversionSettings) string
}

// ResultCache - кэш результатов по содержимому.
type ResultCache interface {
	Lookup(content []byte, paramsHash string) (cache.Entry, bool)
	Store(content []byte, paramsHash string, e cache.Entry) error
}

// Recorder - получатель истории конвертаций.
type Recorder interface {
	RecordConversion(ctx context.Context, c storage.Conversion) error
}

// EventType - тип события очереди.
type EventType string

const (
	// EventJobStarted - задача начала обрабатываться.
	EventJobStarted EventType = "job_started"
	// EventJobProgress - изменился прогресс задачи.
	EventJobProgress EventType = "job_progress"
	// EventJobCompleted - задача завершилась успешно.
	EventJobCompleted EventType = "job_completed"
	// EventJobFailed - задача завершилась с ошибкой.
	EventJobFailed EventType = "job_failed"
	// EventBatchDone - пакет завершён или отменён.
	EventBatchDone EventType = "batch_done"
)

// Event - уведомление наблюдателю. Job - снимок задачи на момент события.
type Event struct {
	Type EventType
	Job  Job
}

// Queue - упорядоченная коллекция задач и последовательный обработчик.
// Методы безопасны для вызова из разных горутин.
type Queue struct {
	mu sync.Mutex

	jobs     []*Job
	settings config.ConversionSettings

	// running - single-flight флаг ProcessBatch.
	running bool
	// aborted - флаг кооперативной отмены текущего пакета.
	aborted bool
	// cancel отменяет контекст текущего пакета.
	cancel context.CancelFunc
	// current, total - счётчики текущего пакета.
	current int
	total   int

	conv     Converter
	cache    ResultCache
	recorder Recorder
	observer func(Event)
	now      func() time.Time
	logger   *zap.Logger
}

// New создаёт очередь с настройками по умолчанию.
func New(conv Converter, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		settings: config.DefaultSettings(),
		conv:     conv,
		now:      time.Now,
		logger:   logger,
	}
}

// SetCache задаёт кэш результатов.
func (q *Queue) SetCache(c ResultCache) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cache = c
}

// SetRecorder задаёт запись истории.
func (q *Queue) SetRecorder(r Recorder) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recorder = r
}

// SetObserver задаёт получателя событий. Вызывается вне блокировки очереди.
func (q *Queue) SetObserver(fn func(Event)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observer = fn
}

// SetClock подменяет источник времени.
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Add добавляет задачи в конец очереди в состоянии ожидания.
func (q *Queue) Add(jobs ...*Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range jobs {
		j.resetToPending()
		q.jobs = append(q.jobs, j)
	}
}

// Len возвращает количество задач.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Jobs возвращает снимок всех задач в порядке очереди.
func (q *Queue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, len(q.jobs))
	for i, j := range q.jobs {
		out[i] = *j
	}
	return out
}

// Get возвращает снимок задачи по ID.
func (q *Queue) Get(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j := q.find(id); j != nil {
		return *j, true
	}
	return Job{}, false
}

// Remove удаляет задачу. Обрабатываемую задачу удалить нельзя.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, j := range q.jobs {
		if j.ID != id {
			continue
		}
		if j.Status == StatusProcessing {
			return ErrJobBusy
		}
		q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
		return nil
	}
	return ErrJobNotFound
}

// Retry возвращает задачу с ошибкой в ожидание. Обработка начнётся при следующем ProcessBatch.
func (q *Queue) Retry(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j := q.find(id)
	if j == nil {
		return ErrJobNotFound
	}
	if j.Status != StatusError {
		return ErrJobNotFailed
	}
	j.resetToPending()
	return nil
}

// Cancel кооперативно останавливает текущий пакет. Обрабатываемая задача
// возвращается в ожидание, завершённые остаются завершёнными.
func (q *Queue) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.abortLocked()
}

// Clear отменяет текущий пакет и удаляет все задачи.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.abortLocked()
	q.jobs = nil
}

// abortLocked выставляет флаг отмены и откатывает обрабатываемые задачи.
func (q *Queue) abortLocked() {
	if !q.running {
		return
	}
	q.aborted = true
	if q.cancel != nil {
		q.cancel()
	}
	for _, j := range q.jobs {
		if j.Status == StatusProcessing {
			j.resetToPending()
		}
	}
}

// Settings возвращает текущие настройки.
func (q *Queue) Settings() config.ConversionSettings {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.settings
}

// SetSettings заменяет настройки целиком.
func (q *Queue) SetSettings(s config.ConversionSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.settings = s
	return nil
}

// UpdateSettings частично обновляет настройки. Изменения действуют со следующего
// ProcessBatch и не затрагивают завершённые задачи.
func (q *Queue) UpdateSettings(p config.SettingsPatch) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := q.settings.Merge(p)
	if err := merged.Validate(); err != nil {
		return err
	}
	q.settings = merged
	return nil
}

// IsRunning сообщает, идёт ли обработка пакета.
func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// BatchProgress возвращает номер текущей задачи (с 1) и размер пакета.
func (q *Queue) BatchProgress() (current, total int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current, q.total
}

// Summary - сводка по завершённым задачам.
type Summary struct {
	Completed      int
	Failed         int
	Pending        int
	OriginalBytes  int64
	ConvertedBytes int64
	Savings        imageutil.Savings
}

// Summary считает сводку по очереди.
func (q *Queue) Summary() Summary {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s Summary
	for _, j := range q.jobs {
		switch j.Status {
		case StatusCompleted:
			s.Completed++
			s.OriginalBytes += j.OriginalSize
			s.ConvertedBytes += j.ConvertedSize
		case StatusError:
			s.Failed++
		case StatusPending:
			s.Pending++
		}
	}
	s.Savings = imageutil.CalculateSavings(s.OriginalBytes, s.ConvertedBytes)
	return s
}

// find ищет задачу по ID. Вызывается под блокировкой.
func (q *Queue) find(id string) *Job {
	for _, j := range q.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// emit передаёт событие наблюдателю.
func (q *Queue) emit(e Event) {
	q.mu.Lock()
	fn := q.observer
	q.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}
