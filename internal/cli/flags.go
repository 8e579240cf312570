package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/artemshloyda/photobatch/internal/config"
)

// formatValue - pflag.Value для выходного формата.
type formatValue config.OutputFormat

var _ pflag.Value = (*formatValue)(nil)

func (f *formatValue) String() string { return string(*f) }

func (f *formatValue) Set(s string) error {
	v, err := config.ParseOutputFormat(strings.ToLower(s))
	if err != nil {
		return err
	}
	*f = formatValue(v)
	return nil
}

func (f *formatValue) Type() string { return "format" }

// modeValue - pflag.Value для стратегии удаления фона.
type modeValue config.BgRemovalMode

var _ pflag.Value = (*modeValue)(nil)

func (m *modeValue) String() string { return string(*m) }

func (m *modeValue) Set(s string) error {
	switch v := config.BgRemovalMode(strings.ToLower(s)); v {
	case config.BgModeAI, config.BgModeColor:
		*m = modeValue(v)
		return nil
	}
	return fmt.Errorf("неизвестный режим удаления фона: %s (доступны: ai, color)", s)
}

func (m *modeValue) Type() string { return "mode" }

// tierValue - pflag.Value для уровня AI модели.
type tierValue config.QualityTier

var _ pflag.Value = (*tierValue)(nil)

func (t *tierValue) String() string { return string(*t) }

func (t *tierValue) Set(s string) error {
	switch v := config.QualityTier(strings.ToLower(s)); v {
	case config.TierFast, config.TierBalanced, config.TierMaximum:
		*t = tierValue(v)
		return nil
	}
	return fmt.Errorf("неизвестный уровень модели: %s (доступны: fast, balanced, maximum)", s)
}

func (t *tierValue) Type() string { return "tier" }

// convertFlags - значения флагов команды конвертации.
// Применяются к конфигурации только явно указанные флаги.
type convertFlags struct {
	quality     int
	format      formatValue
	resize      bool
	maxWidth    int
	maxHeight   int
	strip       bool
	removeBg    bool
	bgMode      modeValue
	bgQuality   tierValue
	tolerance   int
	refineEdges bool
	edgeBlur    float64

	out        string
	zip        bool
	watch      bool
	preset     string
	dataDir    string
	redisURL   string
	vipsPath   string
	segmenter  string
	vipsTime   time.Duration
	cache      bool
	noThumbs   bool
	maxMemory  int
	dailyLimit int
	noProgress bool
	verbose    bool

	configPath string
	loadPreset string
	savePreset string
}

// bind регистрирует флаги. Значения по умолчанию берутся из DefaultConfig.
func (f *convertFlags) bind(flags *pflag.FlagSet) {
	def := config.DefaultConfig()
	s := def.Settings

	f.format = formatValue(s.OutputFormat)
	f.bgMode = modeValue(s.BgRemovalMode)
	f.bgQuality = tierValue(s.BgRemovalQuality)

	// Конвертация
	flags.VarP(&f.format, "format", "f", "Выходной формат: webp, png, jpeg, avif")
	flags.IntVarP(&f.quality, "quality", "q", s.Quality, "Качество для lossy форматов (1-100)")
	flags.BoolVar(&f.resize, "resize", s.EnableResize, "Уменьшать изображения до --max-width x --max-height")
	flags.IntVar(&f.maxWidth, "max-width", s.MaxWidth, "Максимальная ширина (0 = исходная)")
	flags.IntVar(&f.maxHeight, "max-height", s.MaxHeight, "Максимальная высота (0 = исходная)")
	flags.BoolVar(&f.strip, "strip", s.StripMetadata, "Удалить метаданные")

	// Удаление фона
	flags.BoolVar(&f.removeBg, "remove-bg", s.RemoveBackground, "Удалить фон")
	flags.Var(&f.bgMode, "bg-mode", "Стратегия удаления фона: ai, color")
	flags.Var(&f.bgQuality, "bg-quality", "Уровень AI модели: fast, balanced, maximum")
	flags.IntVar(&f.tolerance, "tolerance", s.BgColorTolerance, "Допуск цвета для режима color (0-100)")
	flags.BoolVar(&f.refineEdges, "refine-edges", s.RefineEdges, "Сглаживать края после удаления фона")
	flags.Float64Var(&f.edgeBlur, "edge-blur", s.EdgeBlur, "Размытие краёв (0-5)")

	// Вывод
	flags.StringVarP(&f.out, "out", "o", "", "Директория для сохранения результатов")
	flags.BoolVar(&f.zip, "zip", false, "Упаковать результаты в "+config.ArchiveName)
	flags.BoolVarP(&f.watch, "watch", "w", false, "Следить за директорией и конвертировать новые файлы")
	flags.StringVarP(&f.preset, "preset", "p", "",
		fmt.Sprintf("Профиль качества: %s", strings.Join(config.ValidPresets(), ", ")))

	// Окружение
	flags.StringVar(&f.dataDir, "data-dir", "", "Директория состояния (SQLite, кэш)")
	flags.StringVar(&f.redisURL, "redis-url", "", "Redis для счётчиков использования")
	flags.StringVar(&f.vipsPath, "vips-path", "", "Путь к бинарнику vips")
	flags.StringVar(&f.segmenter, "segmenter", def.SegmenterCmd, "Команда AI сегментации ({model}, {device}, {input}, {output})")
	flags.DurationVar(&f.vipsTime, "vips-timeout", 0, "Таймаут одного вызова vips (0 = 5m)")
	flags.BoolVar(&f.cache, "cache", false, "Кэшировать результаты")
	flags.BoolVar(&f.noThumbs, "no-thumbnails", false, "Не создавать превью при добавлении файлов")
	flags.IntVar(&f.maxMemory, "max-memory", 0, "Ограничение памяти на декодирование в MB (0 = без ограничения)")
	flags.IntVar(&f.dailyLimit, "daily-limit", def.DailyLimit, "Бесплатная дневная квота")
	flags.BoolVar(&f.noProgress, "no-progress", false, "Отключить прогресс-бар")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "Подробный вывод")

	// Файлы конфигурации
	flags.StringVarP(&f.configPath, "config", "c", "", "Путь к файлу конфигурации YAML")
	flags.StringVar(&f.loadPreset, "load-preset", "", "Загрузить именованный пресет")
	flags.StringVar(&f.savePreset, "save-preset", "", "Сохранить текущие настройки как пресет")
}

// buildConfig собирает конфигурацию. Приоритет (от низшего):
// значения по умолчанию, файл конфигурации, именованный пресет,
// переменные окружения, профиль качества, явные флаги.
func (f *convertFlags) buildConfig(cmd *cobra.Command, presets *config.PresetStore) (*config.Config, error) {
	cfg := config.DefaultConfig()

	fc, path, err := config.FindAndLoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if fc != nil {
		fc.ApplyToConfig(cfg)
		fmt.Fprintf(cmd.OutOrStdout(), "📄 Конфигурация: %s\n", path)
	}

	if f.loadPreset != "" {
		pc, _, err := presets.Load(f.loadPreset)
		if err != nil {
			return nil, err
		}
		pc.ApplyToConfig(cfg)
	}

	cfg.ApplyEnv()

	changed := cmd.Flags().Changed

	if changed("preset") {
		cfg.Preset = f.preset
	}
	if cfg.Preset != "" && !cfg.Settings.ApplyPreset(cfg.Preset) {
		return nil, fmt.Errorf("неизвестный профиль: %s (доступны: %s)",
			cfg.Preset, strings.Join(config.ValidPresets(), ", "))
	}

	s := &cfg.Settings
	if changed("format") {
		s.OutputFormat = config.OutputFormat(f.format)
	}
	if changed("quality") {
		s.Quality = f.quality
	}
	if changed("resize") {
		s.EnableResize = f.resize
	}
	if changed("max-width") {
		s.MaxWidth = f.maxWidth
	}
	if changed("max-height") {
		s.MaxHeight = f.maxHeight
	}
	if changed("strip") {
		s.StripMetadata = f.strip
	}
	if changed("remove-bg") {
		s.RemoveBackground = f.removeBg
	}
	if changed("bg-mode") {
		s.BgRemovalMode = config.BgRemovalMode(f.bgMode)
	}
	if changed("bg-quality") {
		s.BgRemovalQuality = config.QualityTier(f.bgQuality)
	}
	if changed("tolerance") {
		s.BgColorTolerance = f.tolerance
	}
	if changed("refine-edges") {
		s.RefineEdges = f.refineEdges
	}
	if changed("edge-blur") {
		s.EdgeBlur = f.edgeBlur
	}

	if changed("out") {
		cfg.OutputDir = f.out
	}
	if changed("zip") {
		cfg.Zip = f.zip
	}
	if changed("watch") {
		cfg.Watch = f.watch
	}
	if changed("data-dir") {
		cfg.DataDir = f.dataDir
	}
	if changed("redis-url") {
		cfg.RedisURL = f.redisURL
	}
	if changed("vips-path") {
		cfg.VipsPath = f.vipsPath
	}
	if changed("segmenter") {
		cfg.SegmenterCmd = f.segmenter
	}
	if changed("vips-timeout") {
		cfg.VipsTimeout = f.vipsTime
	}
	if changed("cache") {
		cfg.CacheEnabled = f.cache
	}
	if changed("no-thumbnails") {
		cfg.NoThumbnails = f.noThumbs
	}
	if changed("max-memory") {
		cfg.MaxMemoryMB = f.maxMemory
	}
	if changed("daily-limit") {
		cfg.DailyLimit = f.dailyLimit
	}
	if changed("no-progress") {
		cfg.NoProgress = f.noProgress
	}
	if changed("verbose") {
		cfg.Verbose = f.verbose
	}

	return cfg, nil
}
