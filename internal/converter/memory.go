package converter

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// MemoryLimiter откладывает декодирование, пока куча процесса не освободится.
// Оценка потребления - распакованные пиксели (4 байта на пиксель) плюс копия на каждый этап.
type MemoryLimiter struct {
	// maxMemoryBytes - максимальное использование памяти в байтах.
	maxMemoryBytes uint64

	// mu защищает доступ к текущему резерву.
	mu sync.Mutex

	// reserved - зарезервированная память.
	reserved uint64

	// enabled - включено ли ограничение.
	enabled bool

	// poll - интервал повторной проверки.
	poll time.Duration
}

// NewMemoryLimiter создаёт MemoryLimiter.
// maxMemoryMB - ограничение в мегабайтах (0 = без ограничения).
func NewMemoryLimiter(maxMemoryMB int) *MemoryLimiter {
	if maxMemoryMB <= 0 {
		return &MemoryLimiter{enabled: false}
	}

	return &MemoryLimiter{
		maxMemoryBytes: uint64(maxMemoryMB) * 1024 * 1024,
		enabled:        true,
		poll:           100 * time.Millisecond,
	}
}

// EstimateUsage оценивает память для изображения по размеру исходных байт.
// Сжатые форматы распаковываются примерно в 10 раз, плюс три промежуточных буфера.
func EstimateUsage(sourceSize int) uint64 {
	return uint64(sourceSize) * 10 * 3
}

// Acquire резервирует память под обработку. Блокирует, пока памяти недостаточно.
// Если ничего не зарезервировано, резерв выдаётся сразу, чтобы одиночная
// большая задача не ждала вечно.
func (ml *MemoryLimiter) Acquire(ctx context.Context, estimated uint64) (release func(), err error) {
	if ml == nil || !ml.enabled {
		return func() {}, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ml.mu.Lock()
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		fits := ml.reserved+estimated <= ml.maxMemoryBytes &&
			memStats.HeapAlloc+estimated <= ml.maxMemoryBytes
		if fits || ml.reserved == 0 {
			ml.reserved += estimated
			ml.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					ml.mu.Lock()
					ml.reserved -= estimated
					ml.mu.Unlock()
				})
			}, nil
		}
		ml.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(ml.poll):
			runtime.GC()
		}
	}
}

// IsEnabled возвращает true, если ограничение включено.
func (ml *MemoryLimiter) IsEnabled() bool {
	return ml != nil && ml.enabled
}

// Reserved возвращает текущий резерв.
func (ml *MemoryLimiter) Reserved() uint64 {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.reserved
}
