// Package watcher следит за директорией и сообщает о новых изображениях.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher следит за директорией и отправляет пути новых файлов в канал.
type Watcher struct {
	// dir - корневая директория.
	dir string

	// match - фильтр имён файлов.
	match func(name string) bool

	// watcher - fsnotify watcher.
	watcher *fsnotify.Watcher

	// debounceTime - время тишины после последнего события до отправки файла.
	// Файл должен успеть полностью записаться.
	debounceTime time.Duration

	// pending - файлы, ожидающие debounce.
	pending map[string]time.Time
	mu      sync.Mutex

	logger *zap.Logger
}

// New создаёт Watcher для директории dir. match отбирает файлы по имени.
func New(dir string, match func(name string) bool, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("не удалось создать watcher: %w", err)
	}

	return &Watcher{
		dir:          dir,
		match:        match,
		watcher:      w,
		debounceTime: 500 * time.Millisecond,
		pending:      make(map[string]time.Time),
		logger:       logger,
	}, nil
}

// SetDebounceTime устанавливает время debounce.
func (w *Watcher) SetDebounceTime(d time.Duration) {
	w.debounceTime = d
}

// Watch запускает слежение и возвращает канал путей.
// Канал закрывается после отмены ctx.
func (w *Watcher) Watch(ctx context.Context) (<-chan string, error) {
	if err := w.addRecursive(w.dir); err != nil {
		_ = w.watcher.Close()
		return nil, err
	}

	files := make(chan string, 100)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.processEvents(ctx)
	}()
	go func() {
		defer wg.Done()
		w.processPending(ctx, files)
	}()
	go func() {
		wg.Wait()
		_ = w.watcher.Close()
		close(files)
	}()

	return files, nil
}

// addRecursive добавляет директорию и все поддиректории.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("не удалось добавить директорию %s: %w", path, err)
			}
		}
		return nil
	})
}

// processEvents обрабатывает события fsnotify.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Только создание и запись
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}

			if info.IsDir() {
				if event.Op&fsnotify.Create != 0 {
					_ = w.addRecursive(event.Name)
				}
				continue
			}

			if !w.match(event.Name) {
				continue
			}

			w.mu.Lock()
			w.pending[event.Name] = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("ошибка watcher", zap.Error(err))
		}
	}
}

// processPending отправляет файлы после debounce.
func (w *Watcher) processPending(ctx context.Context, files chan<- string) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, path := range w.ready(time.Now()) {
				select {
				case files <- path:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// ready забирает из pending файлы, по которым debounce истёк.
func (w *Watcher) ready(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []string
	for path, addedAt := range w.pending {
		if now.Sub(addedAt) < w.debounceTime {
			continue
		}
		delete(w.pending, path)
		out = append(out, path)
	}
	return out
}

/*
Возможные расширения:
- Добавить обработку удаления файлов (удаление задачи из очереди)
- Добавить обработку переименования файлов
- Добавить rate limiting для большого количества файлов
*/
