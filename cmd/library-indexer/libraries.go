package main

import (
	"fmt"
	"text/tabwriter"

	"library-indexer/internal/library"

	"github.com/spf13/cobra"
)

var librariesJSON bool

var librariesCmd = &cobra.Command{
	Use:   "libraries",
	Short: "List configured libraries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg, err := library.LoadFile(cfg.LibrariesFile)
		if err != nil {
			return err
		}

		if librariesJSON {
			return printJSON(cmd.OutOrStdout(), reg.List())
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tPATH")
		for _, lib := range reg.List() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", lib.ID, lib.Name, lib.Path)
		}
		return tw.Flush()
	},
}

func init() {
	librariesCmd.Flags().BoolVar(&librariesJSON, "json", false, "print JSON instead of a table")
}
