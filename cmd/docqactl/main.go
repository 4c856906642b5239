// Command docqactl operates a document Q&A corpus from the shell: ingest
// files, watch a drop directory, ask questions and manage documents.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
