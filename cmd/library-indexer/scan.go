package main

import (
	"context"
	"fmt"

	"library-indexer/internal/coordinator"

	"github.com/spf13/cobra"
)

var scanSync bool

var scanCmd = &cobra.Command{
	Use:   "scan <library-id>",
	Short: "Scan a library and print the finished session",
	Long: `Run a full scan of the library, or with --sync an incremental sync that
only applies files changed since the last scan. The command waits for the
session to finish and prints it as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		run := a.coord.FullScan
		if scanSync {
			run = a.coord.IncrementalSync
		}
		session, err := run(context.Background(), args[0], true)
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), session); err != nil {
			return err
		}
		if session.State == coordinator.StateFailed {
			return fmt.Errorf("scan of %s failed: %s", session.LibraryID, session.Error)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanSync, "sync", false, "apply only changes since the last scan")
}
