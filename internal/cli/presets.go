package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/photobatch/internal/config"
)

// newPresetsCmd создаёт команду для управления пресетами.
func newPresetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Управление именованными пресетами конфигурации",
		Long: `Управление именованными пресетами конфигурации.

Пресеты хранятся в ~/.config/photobatch/presets/ и позволяют
сохранять и загружать настройки для разных проектов.

Примеры:
  # Сохранить текущие настройки как пресет
  photobatch ./photos -o ./web --preset web --save-preset my-project

  # Загрузить пресет и запустить конвертацию
  photobatch ./photos --load-preset my-project

  # Список пресетов
  photobatch presets list

  # Удалить пресет
  photobatch presets delete my-project`,
	}

	cmd.AddCommand(newPresetsListCmd())
	cmd.AddCommand(newPresetsDeleteCmd())
	cmd.AddCommand(newPresetsShowCmd())

	return cmd
}

// newPresetsListCmd создаёт команду для списка пресетов.
func newPresetsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Показать профили качества и сохранённые пресеты",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.DefaultPresetStore()
			if err != nil {
				return err
			}
			return listPresets(cmd.OutOrStdout(), store)
		},
	}
}

// listPresets выводит встроенные профили и сохранённые пресеты.
func listPresets(out io.Writer, store *config.PresetStore) error {
	fmt.Fprintln(out, "🎛️  Профили качества (--preset):")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, name := range config.ValidPresets() {
		p := config.Presets[config.Preset(name)]
		size := "исходный"
		if p.MaxWidth > 0 || p.MaxHeight > 0 {
			size = fmt.Sprintf("%dx%d", p.MaxWidth, p.MaxHeight)
		}
		fmt.Fprintf(w, "  %s\t%s\tq=%d\t%s\n", name, p.Format, p.Quality, size)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out)

	presets, err := store.List()
	if err != nil {
		return fmt.Errorf("ошибка получения списка пресетов: %w", err)
	}

	if len(presets) == 0 {
		fmt.Fprintln(out, "Сохранённые пресеты не найдены.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Сохраните пресет командой:")
		fmt.Fprintln(out, "  photobatch ./photos -o ./web --save-preset my-project")
		return nil
	}

	fmt.Fprintf(out, "📦 Сохранённые пресеты (%d):\n\n", len(presets))

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ИМЯ\tФОРМАТ\tКАЧЕСТВО\tПУТЬ")
	fmt.Fprintln(w, "---\t------\t--------\t----")

	for _, p := range presets {
		format := "-"
		quality := "-"
		if p.Config != nil && p.Config.Output != nil {
			if p.Config.Output.Format != "" {
				format = p.Config.Output.Format
			}
			if p.Config.Output.Quality > 0 {
				quality = fmt.Sprintf("%d", p.Config.Output.Quality)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, format, quality, p.Path)
	}
	return w.Flush()
}

// newPresetsDeleteCmd создаёт команду для удаления пресета.
func newPresetsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [name]",
		Short: "Удалить пресет",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			store, err := config.DefaultPresetStore()
			if err != nil {
				return err
			}

			if !store.Exists(name) {
				return fmt.Errorf("пресет '%s' не найден", name)
			}

			if err := store.Delete(name); err != nil {
				return fmt.Errorf("ошибка удаления пресета: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Пресет '%s' удалён\n", name)
			return nil
		},
	}
}

// newPresetsShowCmd создаёт команду для отображения пресета.
func newPresetsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [name]",
		Short: "Показать содержимое пресета",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.DefaultPresetStore()
			if err != nil {
				return err
			}

			fc, path, err := store.Load(args[0])
			if err != nil {
				return err
			}

			showPreset(cmd.OutOrStdout(), args[0], path, fc)
			return nil
		},
	}
}

// showPreset выводит заданные в пресете значения.
func showPreset(out io.Writer, name, path string, fc *config.FileConfig) {
	fmt.Fprintf(out, "📦 Пресет: %s\n", name)
	fmt.Fprintf(out, "📁 Путь: %s\n\n", path)

	if o := fc.Output; o != nil {
		fmt.Fprintln(out, "Output:")
		if o.Dir != "" {
			fmt.Fprintf(out, "  dir: %s\n", o.Dir)
		}
		if o.Format != "" {
			fmt.Fprintf(out, "  format: %s\n", o.Format)
		}
		if o.Quality > 0 {
			fmt.Fprintf(out, "  quality: %d\n", o.Quality)
		}
		if o.StripMetadata != nil {
			fmt.Fprintf(out, "  strip_metadata: %v\n", *o.StripMetadata)
		}
		if o.Zip {
			fmt.Fprintln(out, "  zip: true")
		}
	}

	if r := fc.Resize; r != nil && r.Enabled {
		fmt.Fprintln(out, "Resize:")
		fmt.Fprintf(out, "  max_width: %d\n", r.MaxWidth)
		fmt.Fprintf(out, "  max_height: %d\n", r.MaxHeight)
	}

	if b := fc.Background; b != nil && b.Enabled {
		fmt.Fprintln(out, "Background:")
		fmt.Fprintf(out, "  mode: %s\n", b.Mode)
		if b.Quality != "" {
			fmt.Fprintf(out, "  quality: %s\n", b.Quality)
		}
		if b.Tolerance != nil {
			fmt.Fprintf(out, "  tolerance: %d\n", *b.Tolerance)
		}
		if b.RefineEdges != nil {
			fmt.Fprintf(out, "  refine_edges: %v\n", *b.RefineEdges)
		}
		if b.EdgeBlur != nil {
			fmt.Fprintf(out, "  edge_blur: %g\n", *b.EdgeBlur)
		}
	}

	if p := fc.Processing; p != nil && p.Preset != "" {
		fmt.Fprintln(out, "Processing:")
		fmt.Fprintf(out, "  preset: %s\n", p.Preset)
	}
}

// newConfigCmd создаёт команду config.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Работа с файлом конфигурации",
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Вывести пример файла конфигурации",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			example := config.GenerateExampleConfig()
			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), example)
				return nil
			}
			if err := writeNewFile(output, []byte(example)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Конфигурация записана в %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "", "Записать в файл вместо вывода")

	cmd.AddCommand(initCmd)
	return cmd
}

// writeNewFile создаёт файл, не перезаписывая существующий.
func writeNewFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("файл %s уже существует", path)
		}
		return fmt.Errorf("не удалось создать %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("не удалось записать %s: %w", path, err)
	}
	return f.Close()
}

/*
Возможные расширения:
- Добавить команду 'presets export' для экспорта в файл
- Добавить команду 'presets import' для импорта из файла
- Добавить команду 'presets copy' для копирования пресета
*/
