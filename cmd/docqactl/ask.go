package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gopherai-docqa/internal/model"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against the ingested documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	result, err := eng.Ask(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	cmd.Println(result.Answer)
	if len(result.Sources) == 0 {
		return nil
	}
	cmd.Println()
	cmd.Println("Sources:")
	for _, s := range result.Sources {
		cmd.Printf("  - %s\n", describeSource(s))
	}
	return nil
}

func describeSource(c model.Citation) string {
	if c.Page == model.NoPage {
		return c.Filename
	}
	return fmt.Sprintf("%s, page %d", c.Filename, c.Page)
}
