package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/artemshloyda/photobatch/internal/admission"
	"github.com/artemshloyda/photobatch/internal/config"
	"github.com/artemshloyda/photobatch/internal/export"
	"github.com/artemshloyda/photobatch/internal/imageutil"
	"github.com/artemshloyda/photobatch/internal/logger"
	"github.com/artemshloyda/photobatch/internal/progress"
	"github.com/artemshloyda/photobatch/internal/scanner"
	"github.com/artemshloyda/photobatch/internal/scheduler"
	"github.com/artemshloyda/photobatch/internal/usage"
	"github.com/artemshloyda/photobatch/internal/watcher"
)

var errNothingToConvert = errors.New("нет файлов для конвертации")

// newConvertCmd создаёт команду convert. Та же логика используется корневой командой.
func newConvertCmd() *cobra.Command {
	f := &convertFlags{}
	cmd := &cobra.Command{
		Use:   "convert [файлы|директории...]",
		Short: "Конвертировать изображения",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, args, f)
		},
	}
	f.bind(cmd.Flags())
	return cmd
}

// runConvert выполняет основную логику конвертации.
func runConvert(cmd *cobra.Command, args []string, f *convertFlags) error {
	out := cmd.OutOrStdout()

	presets, err := config.DefaultPresetStore()
	if err != nil {
		return err
	}

	cfg, err := f.buildConfig(cmd, presets)
	if err != nil {
		return err
	}

	switch {
	case cfg.Watch && cfg.Zip:
		return fmt.Errorf("--zip несовместим с --watch")
	case cfg.Watch && len(args) != 1:
		return fmt.Errorf("режим слежения требует одну директорию")
	case !cfg.Watch && len(args) == 0:
		return fmt.Errorf("не указаны файлы или директории")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}

	if f.savePreset != "" {
		path, err := presets.Save(f.savePreset, cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "💾 Пресет '%s' сохранён: %s\n", f.savePreset, path)
	}

	log, err := logger.New(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("не удалось создать логгер: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	a.printHeader(out)

	sc := scanner.New(log)
	sc.Skip(cfg.OutputDir)

	paths, err := sc.Collect(ctx, args)
	if err != nil {
		return err
	}
	a.submitPaths(out, paths)

	if cfg.Watch {
		return a.watch(ctx, out, args[0], sc)
	}

	rep, err := a.runBatch(ctx, out)
	if err != nil {
		return err
	}
	a.printReport(out, rep)

	if rep.Cancelled {
		return fmt.Errorf("конвертация прервана")
	}
	if rep.Failed > 0 {
		return fmt.Errorf("завершено с %d ошибками", rep.Failed)
	}
	return nil
}

// printHeader выводит параметры запуска.
func (a *app) printHeader(out io.Writer) {
	s := a.cfg.Settings

	if a.vips != nil {
		fmt.Fprintf(out, "📦 Найден vips: %s (версия %s)\n", a.vips.Path, a.vips.Version)
	}

	fmt.Fprintf(out, "🚀 Запуск конвертации:\n")
	fmt.Fprintf(out, "   Выход: %s\n", a.cfg.OutputDir)
	fmt.Fprintf(out, "   Формат: %s (качество: %d)\n", s.OutputFormat, s.Quality)
	if s.ResizeActive() {
		fmt.Fprintf(out, "   Размер: до %dx%d\n", s.MaxWidth, s.MaxHeight)
	}
	if s.RemoveBackground {
		fmt.Fprintf(out, "   Удаление фона: %s", s.BgRemovalMode)
		if s.BgRemovalMode == config.BgModeAI {
			fmt.Fprintf(out, " (%s)", s.BgRemovalQuality)
			if a.hasAI {
				fmt.Fprintf(out, " на %s", a.device)
			} else {
				fmt.Fprint(out, " ⚠️  модель недоступна, фон сохранится")
			}
		}
		fmt.Fprintln(out)
	}
	if a.cfg.CacheEnabled {
		fmt.Fprintf(out, "   Кэш: %s\n", a.cfg.CacheDir)
	}
	fmt.Fprintln(out)
}

// submitPaths читает файлы с диска и добавляет их в очередь.
func (a *app) submitPaths(out io.Writer, paths []string) {
	files := make([]admission.File, 0, len(paths))
	for _, p := range paths {
		file, err := admission.FromPath(p)
		if err != nil {
			fmt.Fprintf(out, "⚠️  %v\n", err)
			continue
		}
		files = append(files, file)
	}
	if len(files) == 0 {
		return
	}

	res, err := a.admit.Submit(files)
	if err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(out, "⚠️  %s\n", line)
		}
	}
	a.logger.Debug("файлы приняты", zap.Int("added", len(res.Added)), zap.Int("rejected", len(res.Rejected)))
}

// pendingCount возвращает количество задач, которые возьмёт следующий пакет.
func (a *app) pendingCount() int {
	n := 0
	for _, j := range a.queue.Jobs() {
		if j.Runnable() {
			n++
		}
	}
	return n
}

// runBatch проверяет квоту, обрабатывает пакет, учитывает использование и выгружает результаты.
func (a *app) runBatch(ctx context.Context, out io.Writer) (scheduler.BatchReport, error) {
	pending := a.pendingCount()
	if pending == 0 {
		return scheduler.BatchReport{}, errNothingToConvert
	}

	if err := a.gate.Admit(ctx, pending); err != nil {
		return scheduler.BatchReport{}, err
	}

	bar := progress.New(progress.Options{
		Total:    int64(pending),
		Disabled: a.cfg.NoProgress,
	})
	a.queue.SetObserver(func(e scheduler.Event) {
		bar.Observe(e)
		if e.Type == scheduler.EventJobFailed {
			cur, total := a.queue.BatchProgress()
			bar.WriteMessage("❌ [%d/%d] %s: %s\n", cur, total, e.Job.Name, e.Job.Error)
		}
	})

	rep, err := a.queue.ProcessBatch(ctx)
	bar.Finish()
	a.queue.SetObserver(nil)
	if err != nil {
		return rep, err
	}

	if rep.Completed > 0 {
		ok, err := a.gate.RecordUsage(context.WithoutCancel(ctx), rep.Completed)
		if err != nil {
			a.logger.Warn("не удалось учесть использование", zap.Error(err))
		} else if !ok {
			a.logger.Warn("использование превысило дневную квоту", zap.Int("count", rep.Completed))
		}
	}

	if err := a.export(out); err != nil && !errors.Is(err, export.ErrNothingToExport) {
		return rep, err
	}
	return rep, nil
}

// completedIDs возвращает ID успешно завершённых задач.
func (a *app) completedIDs() []string {
	var ids []string
	for _, j := range a.queue.Jobs() {
		if j.Status == scheduler.StatusCompleted {
			ids = append(ids, j.ID)
		}
	}
	return ids
}

// export сохраняет результаты в выходную директорию или в архив.
func (a *app) export(out io.Writer) error {
	ids := a.completedIDs()
	if len(ids) == 0 {
		return export.ErrNothingToExport
	}

	if a.cfg.Zip {
		path := filepath.Join(a.cfg.OutputDir, config.ArchiveName)
		n, err := export.WriteArchive(path, a.queue, ids)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "🗜️  Архив: %s (%d файлов)\n", path, n)
		return nil
	}

	paths, err := export.WriteFiles(a.cfg.OutputDir, a.queue, ids)
	if err != nil {
		return err
	}
	a.logger.Debug("результаты сохранены", zap.Strings("paths", paths))
	return nil
}

// printReport выводит итоги пакета.
func (a *app) printReport(out io.Writer, rep scheduler.BatchReport) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "📊 Результаты:\n")
	fmt.Fprintf(out, "   Сконвертировано: %d из %d\n", rep.Completed, rep.Total)
	if rep.CacheHits > 0 {
		fmt.Fprintf(out, "   Из кэша: %d\n", rep.CacheHits)
	}
	fmt.Fprintf(out, "   Ошибок: %d\n", rep.Failed)
	if sum := a.queue.Summary(); sum.Completed > 0 {
		fmt.Fprintf(out, "   Размер: %s → %s (экономия %d%%)\n",
			imageutil.FormatBytes(sum.OriginalBytes), imageutil.FormatBytes(sum.ConvertedBytes), sum.Savings.SavedPercentage)
	}
	fmt.Fprintf(out, "   Время: %s\n", rep.Duration.Round(time.Millisecond))
}

// prune убирает из очереди завершённые и ошибочные задачи.
func (a *app) prune() {
	for _, j := range a.queue.Jobs() {
		if j.Status == scheduler.StatusCompleted || j.Status == scheduler.StatusError {
			_ = a.queue.Remove(j.ID)
		}
	}
}

// watch обрабатывает уже найденные файлы, затем новые файлы директории.
func (a *app) watch(ctx context.Context, out io.Writer, dir string, sc *scanner.Scanner) error {
	a.watchBatch(ctx, out)

	outDir, _ := filepath.Abs(a.cfg.OutputDir)

	w, err := watcher.New(dir, sc.IsCandidate, a.logger)
	if err != nil {
		return err
	}
	files, err := w.Watch(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "👀 Слежение за %s (Ctrl+C для выхода)\n", dir)

	for path := range files {
		batch := []string{path}
	drain:
		for {
			select {
			case p, ok := <-files:
				if !ok {
					break drain
				}
				batch = append(batch, p)
			default:
				break drain
			}
		}

		var accepted []string
		for _, p := range batch {
			if abs, err := filepath.Abs(p); err == nil && strings.HasPrefix(abs, outDir+string(filepath.Separator)) {
				continue
			}
			accepted = append(accepted, p)
		}

		a.submitPaths(out, accepted)
		a.watchBatch(ctx, out)
	}

	fmt.Fprintln(out, "\n⚠️  Слежение остановлено")
	return nil
}

// watchBatch запускает пакет в режиме слежения: ошибки выводятся, очередь очищается.
func (a *app) watchBatch(ctx context.Context, out io.Writer) {
	rep, err := a.runBatch(ctx, out)
	switch {
	case errors.Is(err, errNothingToConvert):
		return
	case errors.Is(err, usage.ErrQuotaExceeded):
		fmt.Fprintf(out, "⛔ %v\n", err)
		a.queue.Clear()
		return
	case err != nil:
		fmt.Fprintf(out, "❌ %v\n", err)
	default:
		a.printReport(out, rep)
	}
	a.prune()
}
