package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent questions and answers",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "number of records to show (default: configured history limit)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	records, err := eng.History(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		cmd.Println("No questions asked yet.")
		return nil
	}
	for _, r := range records {
		cmd.Printf("[%s] Q: %s\n", r.Timestamp.Format("2006-01-02 15:04:05"), r.Question)
		cmd.Printf("A: %s\n", r.Answer)
		if len(r.Sources) > 0 {
			cmd.Printf("Sources: %s\n", strings.Join(r.Sources, ", "))
		}
		cmd.Println()
	}
	return nil
}
