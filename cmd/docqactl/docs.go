package main

import (
	"github.com/spf13/cobra"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage ingested documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runDocsList,
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document and all of its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsDelete,
}

func init() {
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsDeleteCmd)
	rootCmd.AddCommand(docsCmd)
}

func runDocsList(cmd *cobra.Command, _ []string) error {
	docs := eng.Documents()
	if len(docs) == 0 {
		cmd.Println("No documents ingested.")
		return nil
	}
	for _, d := range docs {
		cmd.Printf("%s  %-40s %5d chunks  %s\n", d.ID, d.Filename, d.NumChunks, d.UploadDate.Format("2006-01-02 15:04:05"))
	}
	cmd.Printf("\nTotal: %d documents\n", len(docs))
	return nil
}

func runDocsDelete(cmd *cobra.Command, args []string) error {
	if err := eng.DeleteDocument(cmd.Context(), args[0]); err != nil {
		return err
	}
	cmd.Printf("deleted %s\n", args[0])
	return nil
}
