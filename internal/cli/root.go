// Package cli содержит CLI интерфейс приложения.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Version будет установлена при сборке.
	Version = "dev"

	// BuildTime будет установлена при сборке.
	BuildTime = "unknown"
)

// NewRootCmd создаёт корневую команду CLI. Без подкоманды выполняется конвертация.
func NewRootCmd() *cobra.Command {
	f := &convertFlags{}

	rootCmd := &cobra.Command{
		Use:   "photobatch [файлы|директории...]",
		Short: "Пакетная конвертация изображений",
		Long: `PhotoBatch - CLI утилита для пакетной конвертации изображений.

Конвертирует JPG, PNG, GIF, BMP, TIFF, HEIC, AVIF, SVG и ICO в WebP, PNG, JPEG или AVIF,
уменьшает размеры, удаляет метаданные и фон (по цвету или AI моделью).
WebP, AVIF и декодирование HEIC/SVG/ICO требуют libvips.

Примеры:
  # Конвертировать файлы в WebP
  photobatch ./photos -o ./converted

  # JPEG с качеством 85, вписать в 1280x720
  photobatch ./photos -o ./out -f jpeg -q 85 --resize --max-width 1280 --max-height 720

  # Удалить однотонный фон и сохранить PNG в архив
  photobatch ./products -o ./out -f png --remove-bg --bg-mode color --zip

  # Следить за директорией
  photobatch ./inbox -o ./out --watch`,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadDotEnv(".env")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, args, f)
		},
	}

	f.bind(rootCmd.Flags())

	rootCmd.AddCommand(newConvertCmd())
	rootCmd.AddCommand(newUsageCmd())
	rootCmd.AddCommand(newPresetsCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadDotEnv загружает переменные окружения из файла. Отсутствие файла не ошибка.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("не удалось загрузить %s: %w", path, err)
	}
	return nil
}

// newVersionCmd создаёт команду version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "photobatch %s (built %s)\n", Version, BuildTime)
		},
	}
}

// Execute запускает CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		// Не выводим ошибку, cobra уже вывела
		os.Exit(1)
	}
}

/*
Возможные расширения:
- Добавить команду export для выгрузки истории в JSON
- Добавить интерактивный режим выбора файлов
*/
