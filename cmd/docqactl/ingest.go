package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"gopherai-docqa/internal/app"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Ingest one or more PDF files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	files := make([]app.UploadFile, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s failed: %w", path, err)
		}
		files = append(files, app.UploadFile{Filename: filepath.Base(path), Data: data})
	}

	result := eng.Upload(cmd.Context(), files)
	printUploadResult(cmd, result)
	if result.Uploaded == 0 && result.Failed > 0 {
		return errors.New("no files were ingested")
	}
	return nil
}

func printUploadResult(cmd *cobra.Command, result *app.UploadResult) {
	for _, d := range result.Documents {
		cmd.Printf("ingested %s (%s, %d chunks)\n", d.Filename, d.ID, d.NumChunks)
	}
	for _, f := range result.FailedFiles {
		cmd.Printf("failed   %s: %s\n", f.Filename, f.Error)
	}
	cmd.Printf("uploaded: %d, failed: %d\n", result.Uploaded, result.Failed)
}
