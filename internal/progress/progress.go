// Package progress предоставляет прогресс-бар пакета конвертации.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/artemshloyda/photobatch/internal/scheduler"
)

// Bar - прогресс-бар пакета, обновляемый событиями очереди.
type Bar struct {
	// bar - внутренний progressbar.
	bar *progressbar.ProgressBar

	// mu защищает доступ к bar и счётчикам.
	mu sync.Mutex

	// disabled - только текстовый вывод.
	disabled bool

	// total - количество задач в пакете.
	total int64

	completed int64
	cached    int64
	failed    int64

	// startTime - время начала обработки.
	startTime time.Time

	// writer - куда выводить (по умолчанию os.Stderr).
	writer io.Writer
}

// Options содержит настройки прогресс-бара.
type Options struct {
	// Total - количество задач в пакете.
	Total int64

	// Description - описание по умолчанию.
	Description string

	// Disabled - отключить прогресс-бар.
	Disabled bool

	// Writer - куда выводить (по умолчанию os.Stderr).
	Writer io.Writer
}

// New создаёт прогресс-бар.
func New(opts Options) *Bar {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	b := &Bar{
		disabled:  opts.Disabled,
		total:     opts.Total,
		startTime: time.Now(),
		writer:    writer,
	}

	if !opts.Disabled && opts.Total > 0 {
		description := opts.Description
		if description == "" {
			description = "Конвертация"
		}

		b.bar = progressbar.NewOptions64(
			opts.Total,
			progressbar.OptionSetWriter(writer),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowBytes(false),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]█[reset]",
				SaucerHead:    "[green]▓[reset]",
				SaucerPadding: "░",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(writer)
			}),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	return b
}

// Observe обновляет бар по событию очереди. Подходит для Queue.SetObserver.
func (b *Bar) Observe(e scheduler.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch e.Type {
	case scheduler.EventJobStarted, scheduler.EventJobProgress:
		if b.bar != nil {
			b.bar.Describe(describe(e.Job))
		}
	case scheduler.EventJobCompleted:
		b.completed++
		if e.Job.CacheHit {
			b.cached++
		}
		b.add()
	case scheduler.EventJobFailed:
		b.failed++
		b.add()
	}
}

// describe формирует описание текущей задачи: имя, процент и ETA.
func describe(j scheduler.Job) string {
	s := fmt.Sprintf("%s %3d%%", j.Name, j.Progress)
	if j.ETA >= 0 {
		s += fmt.Sprintf(" ~%dс", j.ETA)
	}
	return s
}

func (b *Bar) add() {
	if b.bar != nil {
		_ = b.bar.Add(1)
	}
}

// SetTotal меняет размер пакета (режим слежения добавляет задачи).
func (b *Bar) SetTotal(total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total = total
	if b.bar != nil {
		b.bar.ChangeMax64(total)
	}
}

// Finish завершает прогресс-бар.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

// Stats возвращает счётчики: успешно, из кэша, с ошибкой.
func (b *Bar) Stats() (completed, cached, failed int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed, b.cached, b.failed
}

// Duration возвращает время с начала обработки.
func (b *Bar) Duration() time.Duration {
	return time.Since(b.startTime)
}

// IsDisabled возвращает true, если прогресс-бар отключён.
func (b *Bar) IsDisabled() bool {
	return b.disabled
}

// WriteMessage выводит сообщение, временно скрывая прогресс-бар.
func (b *Bar) WriteMessage(format string, args ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		_ = b.bar.Clear()
	}

	fmt.Fprintf(b.writer, format, args...)

	if b.bar != nil {
		_ = b.bar.RenderBlank()
	}
}

/*
Возможные расширения:
- Показывать общий процент пакета с учётом прогресса текущей задачи
- Добавить вывод в файл лога параллельно с прогресс-баром
*/
