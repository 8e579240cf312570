package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/artemshloyda/photobatch/internal/config"
)

// stateFlags - флаги команд, которым нужно только хранилище состояния.
type stateFlags struct {
	configPath string
	dataDir    string
	redisURL   string
	dailyLimit int
}

func (f *stateFlags) bind(flags *pflag.FlagSet) {
	flags.StringVarP(&f.configPath, "config", "c", "", "Путь к файлу конфигурации YAML")
	flags.StringVar(&f.dataDir, "data-dir", "", "Директория состояния (SQLite, кэш)")
	flags.StringVar(&f.redisURL, "redis-url", "", "Redis для счётчиков использования")
	flags.IntVar(&f.dailyLimit, "daily-limit", config.FreeDailyLimit, "Бесплатная дневная квота")
}

// open открывает хранилище состояния с учётом файла конфигурации и окружения.
func (f *stateFlags) open(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := f.resolve(cmd)
	if err != nil {
		return nil, err
	}
	return openState(ctx, cfg, zap.NewNop())
}

// resolve собирает конфигурацию: файл, окружение, явные флаги.
func (f *stateFlags) resolve(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	fc, _, err := config.FindAndLoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	fc.ApplyToConfig(cfg)
	cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = f.dataDir
	}
	if flags.Changed("redis-url") {
		cfg.RedisURL = f.redisURL
	}
	if flags.Changed("daily-limit") {
		cfg.DailyLimit = f.dailyLimit
	}
	cfg.ResolvePaths()
	return cfg, nil
}

// newUsageCmd создаёт команду usage.
func newUsageCmd() *cobra.Command {
	f := &stateFlags{}

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Показать дневную квоту и статус премиум-доступа",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := f.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return printUsage(cmd.Context(), cmd.OutOrStdout(), a)
		},
	}
	f.bind(cmd.PersistentFlags())

	cmd.AddCommand(&cobra.Command{
		Use:   "activate [ключ]",
		Short: "Активировать премиум-доступ",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := f.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.gate.ActivatePremium(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ Премиум-доступ активирован")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "deactivate",
		Short: "Отключить премиум-доступ",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := f.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.gate.DeactivatePremium(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ Премиум-доступ отключён")
			return nil
		},
	})

	return cmd
}

// printUsage выводит состояние квоты.
func printUsage(ctx context.Context, out io.Writer, a *app) error {
	st, err := a.gate.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "📊 Использование за %s:\n", st.Date)
	if st.IsPremium {
		fmt.Fprintf(out, "   Премиум: да")
		if st.ActivatedAt != nil {
			fmt.Fprintf(out, " (с %s)", st.ActivatedAt.Format(time.DateOnly))
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "   Сегодня: %d\n", st.Conversions)
	} else {
		fmt.Fprintf(out, "   Сегодня: %d из %d\n", st.Conversions, st.DailyLimit)
		fmt.Fprintf(out, "   Осталось: %d\n", st.RemainingToday)
	}
	fmt.Fprintf(out, "   Всего: %d\n", st.TotalConversions)
	fmt.Fprintf(out, "   Устройство: %s\n", st.DeviceID)
	return nil
}
