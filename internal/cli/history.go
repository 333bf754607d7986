package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/cwygoda/shotgrab/internal/adapter/sqlite"
	"github.com/cwygoda/shotgrab/internal/domain"
	"github.com/spf13/cobra"
)

func newHistoryCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent captures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openHistory()
			if err != nil {
				return err
			}
			defer repo.Close()

			captures, err := repo.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list captures: %w", err)
			}
			if len(captures) == 0 {
				fmt.Fprintln(a.stdout, "no captures recorded")
				return nil
			}
			return printCaptures(a.stdout, captures)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <key>",
		Short: "Show one capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openHistory()
			if err != nil {
				return err
			}
			defer repo.Close()

			c, err := repo.Get(cmd.Context(), domain.JobKey(args[0]))
			if err != nil {
				return err
			}
			printCapture(a.stdout, c)
			return nil
		},
	})
	return cmd
}

func (a *app) openHistory() (*sqlite.Repository, error) {
	if !a.cfg.History.Enabled {
		return nil, fmt.Errorf("history is disabled (set [history] enabled = true or SHOTGRAB_HISTORY_DB)")
	}
	repo, err := sqlite.New(a.cfg.History.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return repo, nil
}

func printCaptures(w io.Writer, captures []domain.Capture) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSTATUS\tDELIVERY\tUPDATED\tTARGET")
	for _, c := range captures {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.Key, c.State, c.Delivery, formatTime(c.UpdatedAt), c.TargetURL)
	}
	return tw.Flush()
}

func printCapture(w io.Writer, c *domain.Capture) {
	fmt.Fprintf(w, "key:       %s\n", c.Key)
	fmt.Fprintf(w, "target:    %s\n", c.TargetURL)
	fmt.Fprintf(w, "status:    %s\n", c.State)
	fmt.Fprintf(w, "delivery:  %s\n", c.Delivery)
	if c.ImageURL != "" {
		fmt.Fprintf(w, "image url: %s\n", c.ImageURL)
	}
	if c.Path != "" {
		fmt.Fprintf(w, "path:      %s\n", c.Path)
	}
	if c.Error != "" {
		fmt.Fprintf(w, "error:     %s\n", c.Error)
	}
	fmt.Fprintf(w, "created:   %s\n", formatTime(c.CreatedAt))
	fmt.Fprintf(w, "updated:   %s\n", formatTime(c.UpdatedAt))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
