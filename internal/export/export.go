// Package export выгружает результаты конвертации: по одному файлу или одним zip архивом.
package export

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/artemshloyda/photobatch/internal/imageutil"
	"github.com/artemshloyda/photobatch/internal/scheduler"
)

var (
	// ErrNotReady - у задачи нет готового результата.
	ErrNotReady = errors.New("результат ещё не готов")

	// ErrNothingToExport - нет ни одного готового результата.
	ErrNothingToExport = errors.New("нет готовых результатов для выгрузки")
)

// Source - источник задач.
type Source interface {
	Get(id string) (scheduler.Job, bool)
	Jobs() []scheduler.Job
}

// Artifact - готовый файл для выгрузки.
type Artifact struct {
	Name string
	Data []byte
}

// Single возвращает результат одной задачи под именем с расширением выходного формата.
func Single(src Source, id string) (Artifact, error) {
	j, ok := src.Get(id)
	if !ok {
		return Artifact{}, scheduler.ErrJobNotFound
	}
	if j.Status != scheduler.StatusCompleted || len(j.Output) == 0 {
		return Artifact{}, fmt.Errorf("%w: %s", ErrNotReady, j.Name)
	}
	return Artifact{
		Name: imageutil.OutputFileName(j.Name, j.OutputFormat),
		Data: j.Output,
	}, nil
}

// Collect возвращает готовые результаты выбранных задач в порядке очереди.
// Пустой ids означает все задачи. Незавершённые задачи пропускаются;
// совпадающие имена получают суффикс "-N".
func Collect(src Source, ids []string) []Artifact {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	used := make(map[string]int)
	var out []Artifact
	for _, j := range src.Jobs() {
		if len(ids) > 0 && !wanted[j.ID] {
			continue
		}
		if j.Status != scheduler.StatusCompleted || len(j.Output) == 0 {
			continue
		}
		name := uniqueName(imageutil.OutputFileName(j.Name, j.OutputFormat), used)
		out = append(out, Artifact{Name: name, Data: j.Output})
	}
	return out
}

// uniqueName добавляет суффикс к повторяющемуся имени.
func uniqueName(name string, used map[string]int) string {
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for {
		candidate := fmt.Sprintf("%s-%d%s", base, n, ext)
		if used[candidate] == 0 {
			used[candidate] = 1
			return candidate
		}
		n++
	}
}

// Archive пишет zip архив с готовыми результатами и возвращает количество файлов.
func Archive(w io.Writer, src Source, ids []string) (int, error) {
	arts := Collect(src, ids)
	if len(arts) == 0 {
		return 0, ErrNothingToExport
	}

	zw := zip.NewWriter(w)
	for _, a := range arts {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: a.Name, Method: zip.Deflate})
		if err != nil {
			return 0, fmt.Errorf("не удалось добавить %s в архив: %w", a.Name, err)
		}
		if _, err := fw.Write(a.Data); err != nil {
			return 0, fmt.Errorf("не удалось записать %s в архив: %w", a.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("не удалось завершить архив: %w", err)
	}
	return len(arts), nil
}

// WriteArchive атомарно сохраняет архив в файл.
func WriteArchive(path string, src Source, ids []string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("не удалось создать директорию: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".archive-*.zip")
	if err != nil {
		return 0, fmt.Errorf("не удалось создать временный файл: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	n, err := Archive(tmp, src, ids)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("не удалось закрыть временный файл: %w", cerr)
	}
	if err != nil {
		return 0, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("не удалось сохранить архив: %w", err)
	}
	return n, nil
}

// WriteFiles сохраняет готовые результаты в директорию и возвращает пути файлов.
func WriteFiles(dir string, src Source, ids []string) ([]string, error) {
	arts := Collect(src, ids)
	if len(arts) == 0 {
		return nil, ErrNothingToExport
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию: %w", err)
	}

	paths := make([]string, 0, len(arts))
	for _, a := range arts {
		p := filepath.Join(dir, a.Name)
		if err := os.WriteFile(p, a.Data, 0644); err != nil {
			return paths, fmt.Errorf("не удалось сохранить %s: %w", a.Name, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
