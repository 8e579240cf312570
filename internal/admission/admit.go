package admission

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/artemshloyda/photobatch/internal/config"
	"github.com/artemshloyda/photobatch/internal/converter"
	"github.com/artemshloyda/photobatch/internal/scheduler"
)

// Sink - очередь, принимающая задачи.
type Sink interface {
	Len() int
	Add(jobs ...*scheduler.Job)
}

// Result - итог приёма.
type Result struct {
	// Added - ID добавленных задач в порядке файлов.
	Added []string

	// Rejected - отклонённые файлы.
	Rejected []*ValidationError

	// Truncated - сколько файлов не поместилось в пакет.
	Truncated int
}

// Admitter принимает файлы в очередь.
type Admitter struct {
	sink     Sink
	maxFiles int
	maxSize  int64
	thumbs   bool
	logger   *zap.Logger
}

// New создаёт Admitter с ограничениями по умолчанию.
func New(sink Sink, logger *zap.Logger) *Admitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Admitter{
		sink:     sink,
		maxFiles: config.MaxFiles,
		maxSize:  config.MaxFileSize,
		thumbs:   true,
		logger:   logger,
	}
}

// SetThumbnails включает или выключает построение превью.
func (a *Admitter) SetThumbnails(enabled bool) {
	a.thumbs = enabled
}

// Submit добавляет файлы в очередь. Лимит пакета считается вместе с уже
// добавленными задачами; лишние файлы отбрасываются с ошибкой, остальные
// принимаются. Отклонённые файлы не блокируют прошедшие проверку.
// Возвращаемая ошибка объединяет все сообщения для пользователя.
func (a *Admitter) Submit(files []File) (Result, error) {
	var res Result

	slots := a.maxFiles - a.sink.Len()
	if slots <= 0 {
		return res, fmt.Errorf("%w: можно загрузить не более %d изображений", ErrBatchFull, a.maxFiles)
	}

	var errs []error
	if len(files) > slots {
		res.Truncated = len(files) - slots
		files = files[:slots]
		errs = append(errs, fmt.Errorf("%w: добавлены только первые %d изображений, максимум %d",
			ErrBatchFull, slots, a.maxFiles))
	}

	jobs := make([]*scheduler.Job, 0, len(files))
	for _, f := range files {
		if err := Validate(f, a.maxSize); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				res.Rejected = append(res.Rejected, ve)
			}
			errs = append(errs, err)
			continue
		}

		job := scheduler.NewJob(uuid.NewString(), f.Name, f.MimeType, f.Data)
		if a.thumbs {
			job.Thumbnail = a.thumbnail(f)
		}
		jobs = append(jobs, job)
		res.Added = append(res.Added, job.ID)
	}

	a.sink.Add(jobs...)

	return res, errors.Join(errs...)
}

// thumbnail строит превью; ошибка не мешает приёму.
func (a *Admitter) thumbnail(f File) []byte {
	thumb, err := converter.ThumbnailFromBytes(f.Data)
	if err != nil {
		a.logger.Debug("превью не построено", zap.String("file", f.Name), zap.Error(err))
		return nil
	}
	return thumb
}
