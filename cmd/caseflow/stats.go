package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/neomorfeo/caseflow/internal/domain"
)

func newStatsCmd(c *cli) *cobra.Command {
	var programID string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print case statistics for a program",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openStack(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer s.Close()

			program, err := s.programs.Get(ctx, programID)
			if err != nil {
				return err
			}
			if _, err := s.registry.WarmWaitlist(ctx); err != nil {
				return err
			}
			stats, err := s.registry.Statistics(ctx, programID)
			if err != nil {
				return err
			}

			var counts map[domain.State]int64
			if s.stats != nil {
				counts, err = s.stats.Counts(ctx, programID)
				if err != nil {
					return fmt.Errorf("reading transition counters: %w", err)
				}
			}

			renderStats(cmd.OutOrStdout(), program.Family, stats, counts)
			return nil
		},
	}
	cmd.Flags().StringVarP(&programID, "program", "p", "", "program id")
	_ = cmd.MarkFlagRequired("program")
	return cmd
}

// renderStats prints one row per state the program's family uses. counts
// adds a column of cumulative transitions when not nil.
func renderStats(w io.Writer, family domain.Family, stats domain.ProgramStatistics, counts map[domain.State]int64) {
	states := append(domain.FamilyStates(family), domain.StateCancelled)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle("Program " + stats.ProgramID)

	header := table.Row{"State", "Cases", "Avg days"}
	if counts != nil {
		header = append(header, "Entered")
	}
	tw.AppendHeader(header)

	for _, st := range states {
		avg := "-"
		if d, ok := stats.AverageDaysInState[st]; ok {
			avg = fmt.Sprintf("%.1f", d)
		}
		row := table.Row{st, stats.ByState[st], avg}
		if counts != nil {
			row = append(row, counts[st])
		}
		tw.AppendRow(row)
	}

	remaining := "unlimited"
	if stats.RemainingBudget != domain.Unlimited {
		remaining = fmt.Sprintf("%d", stats.RemainingBudget)
	}
	tw.AppendFooter(table.Row{"Total", stats.Total, ""})
	tw.Render()

	fmt.Fprintf(w, "Overdue: %d  Queue: %d  Remaining budget: %s\n",
		stats.Overdue, stats.QueueLength, remaining)
}
