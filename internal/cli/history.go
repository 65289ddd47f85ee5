package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/dogstack/pkg/config"
	errs "github.com/matzehuels/dogstack/pkg/errors"
	"github.com/matzehuels/dogstack/pkg/history"
)

// historyCommand creates the run history command.
func (c *CLI) historyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
		Long: `Inspect runs recorded by the history store.

Recording is off by default; enable it with [history] backend = "file" or
"mongo" in the config file.`,
	}

	cmd.AddCommand(c.historyListCommand())
	cmd.AddCommand(c.historyShowCommand())

	return cmd
}

// historyListCommand creates the "history list" subcommand.
func (c *CLI) historyListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cfg.History.Backend == config.BackendNone {
				printWarning("Run history is disabled")
				printDetail(`Set [history] backend = "file" in %s`, c.configPathOrDefault())
				return nil
			}
			store, err := c.openHistory(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				printInfo("No runs recorded")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRunTable(runs))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs (0 for all)")
	return cmd
}

// historyShowCommand creates the "history show" subcommand.
func (c *CLI) historyShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one run in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			store, err := c.openHistory(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Get(cmd.Context(), args[0])
			if errors.Is(err, history.ErrNotFound) {
				return errs.New(errs.ErrCodeNotFound, "run %q not found", args[0])
			}
			if err != nil {
				return err
			}
			printRun(run)
			return nil
		},
	}
}

// renderRunTable formats runs as a bordered table.
func renderRunTable(runs []*history.Run) string {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Source,
			fmt.Sprintf("%d", len(r.Inputs)),
			fmt.Sprintf("%g/%g", r.Params.Sigma, r.Params.K),
			r.Duration.Round(time.Millisecond).String(),
			r.Status,
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("ID", "Started", "Source", "Images", "σ/k", "Duration", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			base := lipgloss.NewStyle().Padding(0, 1)
			if col == 6 && row >= 0 && row < len(runs) {
				if runs[row].Status == history.StatusFailed {
					return base.Foreground(colorRed)
				}
				return base.Foreground(colorGreen)
			}
			if col == 0 {
				return base.Foreground(colorCyan)
			}
			return base
		})
	return t.Render()
}

// printRun prints every recorded field of a run.
func printRun(r *history.Run) {
	printKeyValue("ID", r.ID)
	printKeyValue("Started", r.StartedAt.Local().Format(time.RFC3339))
	printKeyValue("Source", r.Source)
	printKeyValue("Duration", r.Duration.Round(time.Millisecond).String())
	printKeyValue("Status", r.Status)
	if r.Error != "" {
		printKeyValue("Error", r.Error)
	}
	if r.FailedInput != "" {
		printKeyValue("Failed", r.FailedInput)
	}
	printKeyValue("Params", fmt.Sprintf("sigma=%g k=%g radius=%s boundary=%s method=%s workers=%d",
		r.Params.Sigma, r.Params.K, r.Params.Radius, r.Params.Boundary, r.Params.Method, r.Params.Workers))
	if r.Output != "" {
		printKeyValue("Output", r.Output)
	}
	if r.Width > 0 {
		printKeyValue("Size", fmt.Sprintf("%dx%d", r.Width, r.Height))
	}
	if len(r.Inputs) == 0 {
		return
	}
	printNewline()
	printKeyValue("Inputs", fmt.Sprintf("%d (%d cached)", len(r.Inputs), r.CacheHits()))
	for _, in := range r.Inputs {
		hash := in.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		fmt.Println("  " + strings.Join([]string{
			inputStatsLine(in.Name, in.Width, in.Height, 0, in.Cached),
			StyleDim.Render(hash),
		}, StyleDim.Render(" · ")))
	}
}
