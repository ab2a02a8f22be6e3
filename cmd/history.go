package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"tock/internal/core/orchestrator"
	"tock/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent finished countdowns",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "number of entries to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return fmt.Errorf("read limit flag: %w", err)
	}

	history, err := storage.OpenHistory(storage.HistoryPath(env.config.Storage.Dir))
	if err != nil {
		return err
	}
	defer history.Close()

	records, err := history.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}
	return renderHistory(cmd.OutOrStdout(), records)
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

func renderHistory(out io.Writer, records []orchestrator.FinishRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No finished countdowns yet.")
		return err
	}

	rows := make([][]string, 0, len(records))
	for i, record := range records {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			record.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			record.Duration.String(),
			string(record.Variant),
			string(record.Outcome),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("#", "Finished", "Duration", "Voice", "Outcome").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	_, err := fmt.Fprintln(out, t.Render())
	return err
}
