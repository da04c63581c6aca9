package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/alcove/internal/orchestrator"
)

var (
	ingestLibrary string
	ingestDocID   string
	ingestDocName string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|->",
	Short: "Ingest a document into a library",
	Long: `Ingest extracted document text from a file or stdin.

Examples:
  alcoved ingest --library docs notes.txt
  pdftotext report.pdf - | alcoved ingest --library docs --name report.pdf -`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	var (
		text []byte
		err  error
	)
	name := ingestDocName
	if args[0] == "-" {
		text, err = io.ReadAll(os.Stdin)
	} else {
		text, err = os.ReadFile(args[0])
		if name == "" {
			name = filepath.Base(args[0])
		}
	}
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}

	req := orchestrator.IngestRequest{
		DocumentID:   ingestDocID,
		DocumentName: name,
		Text:         string(text),
	}
	var report orchestrator.IngestReport
	path := "/v1/libraries/" + ingestLibrary + "/documents"
	if err := callDaemon(http.MethodPost, path, req, &report); err != nil {
		return err
	}
	return printJSON(report)
}

func init() {
	ingestCmd.Flags().StringVar(&ingestLibrary, "library", "", "target library ID")
	ingestCmd.Flags().StringVar(&ingestDocID, "id", "", "document ID (replaces an existing document)")
	ingestCmd.Flags().StringVar(&ingestDocName, "name", "", "document name used in citations")
	_ = ingestCmd.MarkFlagRequired("library")
}
