package main

import (
	"context"
	"strings"
	"time"

	"library-indexer/internal/database"
	"library-indexer/internal/mediatypes"

	"github.com/spf13/cobra"
)

var searchOpts struct {
	query       string
	folder      string
	formats     []string
	minSize     int64
	maxSize     int64
	createdFrom string
	createdTo   string
	sortBy      string
	sortOrder   string
	offset      int
	limit       int
}

var searchCmd = &cobra.Command{
	Use:   "search <library-id>",
	Short: "Query a library's index and print matching images",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := searchFilters(cmd)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.catalog.Search(context.Background(), args[0], filters, database.Pagination{
			Offset: searchOpts.offset,
			Limit:  searchOpts.limit,
		})
		if err != nil {
			return err
		}
		if res.Items == nil {
			res.Items = []database.Image{}
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	f := searchCmd.Flags()
	f.StringVarP(&searchOpts.query, "query", "q", "", "filename keywords, all must match")
	f.StringVar(&searchOpts.folder, "folder", "", "restrict to a folder and its subfolders")
	f.StringSliceVar(&searchOpts.formats, "format", nil, "image formats, e.g. jpeg,png")
	f.Int64Var(&searchOpts.minSize, "min-size", -1, "minimum file size in bytes")
	f.Int64Var(&searchOpts.maxSize, "max-size", -1, "maximum file size in bytes")
	f.StringVar(&searchOpts.createdFrom, "created-from", "", "earliest creation time (RFC3339)")
	f.StringVar(&searchOpts.createdTo, "created-to", "", "latest creation time (RFC3339)")
	f.StringVar(&searchOpts.sortBy, "sort-by", string(mediatypes.SortByName), "name, date, size or path")
	f.StringVar(&searchOpts.sortOrder, "sort-order", string(mediatypes.SortAsc), "asc or desc")
	f.IntVar(&searchOpts.offset, "offset", 0, "results to skip")
	f.IntVar(&searchOpts.limit, "limit", 0, "page size (0 uses the default)")
}

// searchFilters converts flags to filters. Size flags apply only when set.
func searchFilters(cmd *cobra.Command) (database.Filters, error) {
	filters := database.Filters{
		Keywords:  strings.Fields(searchOpts.query),
		Folder:    searchOpts.folder,
		Formats:   searchOpts.formats,
		SortBy:    mediatypes.SortField(searchOpts.sortBy),
		SortOrder: mediatypes.SortOrder(searchOpts.sortOrder),
	}
	if cmd.Flags().Changed("min-size") {
		v := searchOpts.minSize
		filters.MinSize = &v
	}
	if cmd.Flags().Changed("max-size") {
		v := searchOpts.maxSize
		filters.MaxSize = &v
	}
	var err error
	if filters.CreatedFrom, err = parseTimeFlag(searchOpts.createdFrom); err != nil {
		return filters, err
	}
	if filters.CreatedTo, err = parseTimeFlag(searchOpts.createdTo); err != nil {
		return filters, err
	}
	return filters, nil
}

func parseTimeFlag(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
