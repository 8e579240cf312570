// Package scanner собирает файлы изображений из аргументов командной строки.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/artemshloyda/photobatch/internal/admission"
)

// Scanner обходит файлы и директории.
type Scanner struct {
	// match - фильтр имён файлов внутри директорий.
	match func(name string) bool

	// skipDirs - имена директорий, которые не обходятся.
	skipDirs map[string]bool

	logger *zap.Logger
}

// New создаёт Scanner с фильтром по поддерживаемым расширениям.
func New(logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		match:    admission.HasSupportedExtension,
		skipDirs: make(map[string]bool),
		logger:   logger,
	}
}

// Skip исключает директорию из обхода (например, выходную).
func (s *Scanner) Skip(dir string) {
	if abs, err := filepath.Abs(dir); err == nil {
		s.skipDirs[abs] = true
	}
}

// IsCandidate сообщает, подходит ли имя файла для обработки.
// Скрытые файлы и метаданные macOS (._*) пропускаются.
func (s *Scanner) IsCandidate(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return s.match(base)
}

// Scan отправляет пути найденных файлов в канал. Файлы, указанные явно,
// отправляются без фильтра: их проверит приём. Директории обходятся рекурсивно.
// Канал закрывается после завершения сканирования.
func (s *Scanner) Scan(ctx context.Context, roots []string) (<-chan string, <-chan error) {
	paths := make(chan string, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(paths)
		defer close(errs)

		for _, root := range roots {
			if err := s.scanRoot(ctx, root, paths); err != nil {
				errs <- err
				return
			}
		}
	}()

	return paths, errs
}

func (s *Scanner) scanRoot(ctx context.Context, root string, paths chan<- string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("не удалось прочитать %s: %w", root, err)
	}

	if !info.IsDir() {
		return send(ctx, paths, root)
	}

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			s.logger.Warn("не удалось прочитать", zap.String("path", path), zap.Error(err))
			return nil
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if abs, err := filepath.Abs(path); err == nil && s.skipDirs[abs] {
				return filepath.SkipDir
			}
			return nil
		}

		if !s.IsCandidate(path) {
			return nil
		}
		return send(ctx, paths, path)
	})
}

func send(ctx context.Context, paths chan<- string, path string) error {
	select {
	case paths <- path:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Collect собирает все пути из Scan.
func (s *Scanner) Collect(ctx context.Context, roots []string) ([]string, error) {
	paths, errs := s.Scan(ctx, roots)

	var out []string
	for p := range paths {
		out = append(out, p)
	}
	if err := <-errs; err != nil {
		return out, err
	}
	return out, nil
}

/*
Возможные расширения:
- Добавить поддержку glob-паттернов для фильтрации
- Добавить поддержку exclude-паттернов
- Добавить поддержку symlinks
*/
