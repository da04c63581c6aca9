package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/alcove/internal/httpapi"
	"github.com/fyrsmithlabs/alcove/internal/library"
)

var (
	libName      string
	libDim       int
	libStrict    bool
	libThreshold float64
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage libraries",
}

var libraryCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create a library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := httpapi.CreateLibraryRequest{
			ID:           args[0],
			Name:         libName,
			EmbeddingDim: libDim,
			Policy: library.Policy{
				StrictMode:          libStrict,
				SimilarityThreshold: float32(libThreshold),
			},
		}
		var created library.Library
		if err := callDaemon(http.MethodPost, "/v1/libraries", req, &created); err != nil {
			return err
		}
		return printJSON(created)
	},
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List libraries",
	RunE: func(cmd *cobra.Command, args []string) error {
		var libs []library.Library
		if err := callDaemon(http.MethodGet, "/v1/libraries", nil, &libs); err != nil {
			return err
		}
		return printJSON(libs)
	},
}

var libraryDropCmd = &cobra.Command{
	Use:   "drop <id>",
	Short: "Drop a library and all of its documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := callDaemon(http.MethodDelete, "/v1/libraries/"+args[0], nil, nil); err != nil {
			return err
		}
		fmt.Println("dropped", args[0])
		return nil
	},
}

var libraryUseCmd = &cobra.Command{
	Use:   "use <id>",
	Short: "Set the active library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := callDaemon(http.MethodPost, "/v1/libraries/"+args[0]+"/active", nil, nil); err != nil {
			return err
		}
		fmt.Println("active library:", args[0])
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon health",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp httpapi.HealthResponse
		if err := callDaemon(http.MethodGet, "/health", nil, &resp); err != nil {
			return err
		}
		fmt.Println(resp.Status)
		return nil
	},
}

func init() {
	libraryCreateCmd.Flags().StringVar(&libName, "name", "", "human-readable library name")
	libraryCreateCmd.Flags().IntVar(&libDim, "dim", 0, "embedding dimension (default: provider dimension)")
	libraryCreateCmd.Flags().BoolVar(&libStrict, "strict", false, "enable strict evidence mode")
	libraryCreateCmd.Flags().Float64Var(&libThreshold, "threshold", 0, "strict-mode similarity threshold")

	libraryCmd.AddCommand(libraryCreateCmd)
	libraryCmd.AddCommand(libraryListCmd)
	libraryCmd.AddCommand(libraryDropCmd)
	libraryCmd.AddCommand(libraryUseCmd)
}
