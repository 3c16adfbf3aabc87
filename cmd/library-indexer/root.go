package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"library-indexer/internal/logging"
	"library-indexer/internal/startup"

	"github.com/spf13/cobra"
)

var (
	librariesFlag string
	logLevelFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "library-indexer",
	Short: "Index image libraries and serve their thumbnails and search",
	Long: `library-indexer keeps a SQLite catalog and a thumbnail cache inside each
configured image library. It scans libraries on demand, follows changes with
filesystem watchers and answers filtered searches over HTTP.`,
	Version:       startup.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevelFlag != "" {
			logging.SetLevel(logging.ParseLevel(logLevelFlag))
		}
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&librariesFlag, "libraries", "", "libraries file (overrides LIBRARIES_FILE)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(librariesCmd)
}

// Execute runs the root command and reports errors on stderr.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig reads the environment and applies command line overrides.
func loadConfig() (*startup.Config, error) {
	if librariesFlag != "" {
		if err := os.Setenv("LIBRARIES_FILE", librariesFlag); err != nil {
			return nil, err
		}
	}
	return startup.LoadConfig()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
