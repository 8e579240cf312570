package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/photobatch/internal/cache"
	"github.com/artemshloyda/photobatch/internal/imageutil"
)

// newCacheCmd создаёт команду cache: размер кэша и его очистка.
func newCacheCmd() *cobra.Command {
	f := &stateFlags{}

	open := func(cmd *cobra.Command) (*cache.Cache, string, error) {
		cfg, err := f.resolve(cmd)
		if err != nil {
			return nil, "", err
		}
		c, err := cache.New(cfg.CacheDir, true)
		if err != nil {
			return nil, "", err
		}
		return c, cfg.CacheDir, nil
	}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Показать размер кэша результатов",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, dir, err := open(cmd)
			if err != nil {
				return err
			}
			size, err := c.Size()
			if err != nil {
				return fmt.Errorf("не удалось подсчитать размер кэша: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🗄️  Кэш: %s (%s)\n", dir, imageutil.FormatBytes(size))
			return nil
		},
	}
	f.bind(cmd.PersistentFlags())

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Очистить кэш результатов",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, dir, err := open(cmd)
			if err != nil {
				return err
			}
			if err := c.Clear(); err != nil {
				return fmt.Errorf("не удалось очистить кэш: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Кэш очищен: %s\n", dir)
			return nil
		},
	})

	return cmd
}
