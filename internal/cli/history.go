package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/photobatch/internal/imageutil"
)

// newHistoryCmd создаёт команду history.
func newHistoryCmd() *cobra.Command {
	f := &stateFlags{}
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Показать историю конвертаций из базы данных",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := f.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := cmd.OutOrStdout()

			stats, err := a.db.GetStats(cmd.Context())
			if err != nil {
				return fmt.Errorf("не удалось получить статистику: %w", err)
			}

			fmt.Fprintf(out, "📊 Статистика базы данных:\n")
			fmt.Fprintf(out, "   Всего записей: %d\n", stats.Total)
			fmt.Fprintf(out, "   Успешно: %d\n", stats.OK)
			fmt.Fprintf(out, "   Ошибок: %d\n", stats.Failed)
			fmt.Fprintf(out, "   Из кэша: %d\n", stats.CacheHits)
			fmt.Fprintf(out, "   Сэкономлено: %s\n", imageutil.FormatBytes(stats.SavedBytes()))

			if limit <= 0 {
				return nil
			}

			records, err := a.db.History(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("не удалось получить историю: %w", err)
			}
			if len(records) == 0 {
				return nil
			}

			fmt.Fprintln(out)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ВРЕМЯ\tФАЙЛ\tФОРМАТ\tРАЗМЕР\tСТАТУС")
			for _, r := range records {
				size := fmt.Sprintf("%s → %s", imageutil.FormatBytes(r.SrcSize), imageutil.FormatBytes(r.OutSize))
				status := string(r.Status)
				if r.Error != "" {
					status += ": " + r.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.FinishedAt.Local().Format(time.DateTime), r.SrcName, r.OutFormat, size, status)
			}
			return w.Flush()
		},
	}

	f.bind(cmd.Flags())
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Количество последних записей (0 = только статистика)")

	return cmd
}
