package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/artemshloyda/photobatch/internal/cache"
	"github.com/artemshloyda/photobatch/internal/config"
	"github.com/artemshloyda/photobatch/internal/converter"
	"github.com/artemshloyda/photobatch/internal/storage"
)

// BatchReport содержит статистику одного запуска ProcessBatch.
type BatchReport struct {
	// Total - размер пакета на момент старта.
	Total int

	// Completed - успешно сконвертировано.
	Completed int

	// Failed - завершилось с ошибкой.
	Failed int

	// CacheHits - взято из кэша.
	CacheHits int

	// Cancelled - пакет остановлен отменой.
	Cancelled bool

	// InputBytes - размер источников успешно сконвертированных задач.
	InputBytes int64

	// OutputBytes - размер результатов.
	OutputBytes int64

	// Duration - длительность пакета.
	Duration time.Duration
}

// SavedBytes возвращает количество сэкономленных байт.
func (r BatchReport) SavedBytes() int64 {
	return r.InputBytes - r.OutputBytes
}

// SavedPercent возвращает процент экономии.
func (r BatchReport) SavedPercent() float64 {
	if r.InputBytes == 0 {
		return 0
	}
	return float64(r.SavedBytes()) / float64(r.InputBytes) * 100
}

// ProcessBatch последовательно обрабатывает задачи в состоянии ожидания или ошибки.
// Если пакет уже обрабатывается, сразу возвращает ErrBatchRunning и ничего не меняет.
// Настройки фиксируются на старте пакета.
func (q *Queue) ProcessBatch(ctx context.Context) (report BatchReport, err error) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return BatchReport{}, ErrBatchRunning
	}

	batchCtx, cancel := context.WithCancel(ctx)
	q.running = true
	q.aborted = false
	q.cancel = cancel

	settings := q.settings
	var work []string
	for _, j := range q.jobs {
		if j.Runnable() {
			work = append(work, j.ID)
		}
	}
	q.total = len(work)
	q.current = 0
	start := q.now()
	q.mu.Unlock()

	q.logger.Info("старт пакета",
		zap.Int("jobs", len(work)),
		zap.String("format", string(settings.OutputFormat)),
	)

	report = BatchReport{Total: len(work)}

	defer func() {
		cancel()
		q.mu.Lock()
		q.running = false
		q.aborted = false
		q.cancel = nil
		q.current = 0
		q.total = 0
		report.Duration = q.now().Sub(start)
		q.mu.Unlock()

		q.logger.Info("пакет завершён",
			zap.Int("completed", report.Completed),
			zap.Int("failed", report.Failed),
			zap.Bool("cancelled", report.Cancelled),
		)
		q.emit(Event{Type: EventBatchDone})
	}()

	for i, id := range work {
		if q.stopRequested(batchCtx) {
			report.Cancelled = true
			break
		}

		job, ok := q.begin(id, i+1)
		if !ok {
			continue
		}
		q.emit(Event{Type: EventJobStarted, Job: job})

		started := time.Now()
		res, cacheHit, runErr := q.run(batchCtx, job, settings)

		if q.stopRequested(batchCtx) {
			q.rollback(id)
			report.Cancelled = true
			break
		}

		done, ok := q.finish(id, res, cacheHit, runErr)
		if !ok {
			continue
		}

		if done.Status == StatusError {
			report.Failed++
			q.logger.Warn("ошибка конвертации", zap.String("file", job.Name), zap.String("error", done.Error))
			q.emit(Event{Type: EventJobFailed, Job: done})
		} else {
			report.Completed++
			report.InputBytes += done.OriginalSize
			report.OutputBytes += done.ConvertedSize
			if cacheHit {
				report.CacheHits++
			}
			q.emit(Event{Type: EventJobCompleted, Job: done})
		}

		q.record(ctx, done, settings, time.Since(started))
	}

	return report, nil
}

// stopRequested проверяет флаг отмены и контекст пакета.
func (q *Queue) stopRequested(ctx context.Context) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.aborted || ctx.Err() != nil
}

// begin переводит задачу в обработку. ok=false, если задача удалена или уже не ожидает.
func (q *Queue) begin(id string, index int) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j := q.find(id)
	if j == nil || !j.Runnable() {
		return Job{}, false
	}
	j.Status = StatusProcessing
	j.Progress = 0
	j.Error = ""
	j.Output = nil
	j.ConvertedSize = 0
	j.CacheHit = false
	j.StartedAt = q.now()
	j.ETA = -1
	q.current = index
	return *j, true
}

// rollback возвращает прерванную задачу в ожидание.
func (q *Queue) rollback(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j := q.find(id); j != nil && j.Status == StatusProcessing {
		j.resetToPending()
	}
}

// run выполняет конвертацию одной задачи. Паника превращается в ошибку задачи.
func (q *Queue) run(ctx context.Context, job Job, s config.ConversionSettings) (res *converter.Result, cacheHit bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("паника при обработке задачи", zap.String("file", job.Name), zap.Any("panic", r))
			res, cacheHit, err = nil, false, fmt.Errorf("внутренняя ошибка: %v", r)
		}
	}()

	q.mu.Lock()
	rc := q.cache
	q.mu.Unlock()

	cacheKey := s.ParamsHash() + ":" + q.conv.Variant(s)
	if rc != nil {
		if e, ok := rc.Lookup(job.Data, cacheKey); ok {
			q.logger.Debug("результат из кэша", zap.String("file", job.Name))
			return &converter.Result{
				Data:           e.Data,
				Format:         e.Format,
				Width:          e.Width,
				Height:         e.Height,
				OriginalWidth:  e.OriginalWidth,
				OriginalHeight: e.OriginalHeight,
			}, true, nil
		}
	}

	in := converter.Input{Data: job.Data, MimeType: job.MimeType, Name: job.Name}
	res, err = q.conv.Convert(ctx, in, s, func(u converter.ProgressUpdate) {
		q.updateProgress(job.ID, u.Percent)
	})
	if err != nil {
		return nil, false, err
	}

	if rc != nil && res != nil && !res.Degraded {
		e := cache.Entry{
			Data:           res.Data,
			Format:         res.Format,
			Width:          res.Width,
			Height:         res.Height,
			OriginalWidth:  res.OriginalWidth,
			OriginalHeight: res.OriginalHeight,
		}
		if err := rc.Store(job.Data, cacheKey, e); err != nil {
			q.logger.Warn("не удалось записать кэш", zap.String("file", job.Name), zap.Error(err))
		}
	}

	return res, false, nil
}

// updateProgress принимает обновление прогресса задачи и пересчитывает ETA.
// 100 выставляется только при завершении задачи.
func (q *Queue) updateProgress(id string, percent int) {
	q.mu.Lock()
	if q.aborted || percent >= 100 {
		q.mu.Unlock()
		return
	}
	j := q.find(id)
	if j == nil || j.Status != StatusProcessing || percent <= j.Progress {
		q.mu.Unlock()
		return
	}
	j.Progress = percent
	if eta, ok := ComputeETA(q.now().Sub(j.StartedAt), percent); ok {
		j.ETA = eta
	}
	snapshot := *j
	q.mu.Unlock()

	q.emit(Event{Type: EventJobProgress, Job: snapshot})
}

// finish фиксирует итог задачи.
func (q *Queue) finish(id string, res *converter.Result, cacheHit bool, err error) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j := q.find(id)
	if j == nil || j.Status != StatusProcessing {
		return Job{}, false
	}

	j.StartedAt = time.Time{}
	j.ETA = -1

	if err == nil && res != nil && len(res.Data) > 0 {
		j.Status = StatusCompleted
		j.Progress = 100
		j.Error = ""
		j.Output = res.Data
		j.OutputFormat = res.Format
		j.ConvertedSize = int64(len(res.Data))
		j.OriginalWidth = res.OriginalWidth
		j.OriginalHeight = res.OriginalHeight
		j.OutputWidth = res.Width
		j.OutputHeight = res.Height
		j.CacheHit = cacheHit
		return *j, true
	}

	if err == nil {
		err = converter.ErrEncode
	}
	j.Status = StatusError
	j.Progress = 0
	j.Error = err.Error()
	j.Output = nil
	j.ConvertedSize = 0
	return *j, true
}

// record пишет итог задачи в историю.
func (q *Queue) record(ctx context.Context, j Job, s config.ConversionSettings, d time.Duration) {
	q.mu.Lock()
	rec := q.recorder
	q.mu.Unlock()
	if rec == nil {
		return
	}

	c := storage.Conversion{
		JobID:         j.ID,
		SrcName:       j.Name,
		SrcSize:       j.OriginalSize,
		OutFormat:     string(s.OutputFormat),
		OutParamsHash: s.ParamsHash(),
		Status:        storage.StatusFailed,
		Error:         j.Error,
		Duration:      d,
		FinishedAt:    time.Now(),
	}
	if j.Status == StatusCompleted {
		c.Status = storage.StatusOK
		c.OutFormat = string(j.OutputFormat)
		c.OutSize = j.ConvertedSize
		c.Width = j.OutputWidth
		c.Height = j.OutputHeight
		c.CacheHit = j.CacheHit
	}

	if err := rec.RecordConversion(ctx, c); err != nil {
		q.logger.Warn("не удалось записать историю", zap.String("file", j.Name), zap.Error(err))
	}
}

/*
Возможные расширения:
- Параллельная обработка с ограничением по памяти
- Приоритеты задач
*/
