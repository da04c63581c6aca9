package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/alcove/internal/orchestrator"
)

var (
	queryLibrary string
	queryTopK    int
	queryJSON    bool
)

var queryCmd = &cobra.Command{
	Use:   "query <question...>",
	Short: "Ask a question against a library",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	req := orchestrator.QueryRequest{
		LibraryID: queryLibrary,
		Query:     strings.Join(args, " "),
		TopK:      queryTopK,
	}
	var result orchestrator.QueryResult
	if err := callDaemon(http.MethodPost, "/v1/query", req, &result); err != nil {
		return err
	}
	if queryJSON {
		return printJSON(result)
	}

	if result.Declined {
		fmt.Println("declined:", result.DeclineReason)
	} else if result.Answer != "" {
		fmt.Println(result.Answer)
	} else {
		fmt.Println(result.Context)
	}
	if len(result.Sources) > 0 {
		fmt.Println()
		fmt.Println("sources:")
		for _, s := range result.Sources {
			name := s.Document
			if name == "" {
				name = s.DocumentID
			}
			fmt.Printf("  %s (chunk %d, similarity %.2f)\n", name, s.ChunkIndex, s.Similarity)
		}
	}
	return nil
}

func init() {
	queryCmd.Flags().StringVar(&queryLibrary, "library", "", "library ID (default: active library)")
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 0, "number of chunks to retrieve")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the full JSON result")
}
