package database

import (
	"context"
	"strings"
	"time"

	"library-indexer/internal/library"
	"library-indexer/internal/logging"
	"library-indexer/internal/mediatypes"
)

// Search returns one page of images matching every set filter.
func (d *Database) Search(ctx context.Context, filters Filters, page Pagination) (result *SearchResult, err error) {
	page, err = normalizePage(page)
	if err != nil {
		return nil, err
	}
	if err := validateFilters(filters); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { recordQuery("search", start, err) }()

	where, args := buildWhere(filters)
	orderBy := buildOrderBy(filters.SortBy, filters.SortOrder)

	d.mu.RLock()
	defer d.mu.RUnlock()

	result = &SearchResult{Items: []Image{}, Offset: page.Offset, Limit: page.Limit}

	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM images"+where, args...).Scan(&result.Total); err != nil {
		return nil, err
	}

	query := "SELECT " + imageColumns + " FROM images" + where + orderBy + " LIMIT ? OFFSET ?"
	rows, err := d.db.QueryContext(ctx, query, append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		img, scanErr := scanImage(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		result.Items = append(result.Items, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.HasMore = page.Offset+len(result.Items) < result.Total
	logging.Debug("Search returned %d of %d images in %v", len(result.Items), result.Total, time.Since(start))
	return result, nil
}

func normalizePage(page Pagination) (Pagination, error) {
	if page.Offset < 0 {
		return page, library.Invalid("offset", "must not be negative, got %d", page.Offset)
	}
	if page.Limit < 0 {
		return page, library.Invalid("limit", "must not be negative, got %d", page.Limit)
	}
	if page.Limit == 0 {
		page.Limit = DefaultLimit
	}
	if page.Limit > MaxLimit {
		page.Limit = MaxLimit
	}
	return page, nil
}

func validateFilters(f Filters) error {
	if f.MinSize != nil && *f.MinSize < 0 {
		return library.Invalid("minSize", "must not be negative")
	}
	if f.MinSize != nil && f.MaxSize != nil && *f.MinSize > *f.MaxSize {
		return library.Invalid("maxSize", "must be >= minSize")
	}
	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedFrom.After(*f.CreatedTo) {
		return library.Invalid("createdTo", "must not be before createdFrom")
	}
	switch f.SortBy {
	case "", mediatypes.SortByName, mediatypes.SortByDate, mediatypes.SortBySize, mediatypes.SortByPath:
	default:
		return library.Invalid("sortBy", "unknown sort field %q", f.SortBy)
	}
	switch f.SortOrder {
	case "", mediatypes.SortAsc, mediatypes.SortDesc:
	default:
		return library.Invalid("sortOrder", "unknown sort order %q", f.SortOrder)
	}
	return nil
}

func buildWhere(f Filters) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)

	for _, kw := range f.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		clauses = append(clauses, `filename LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(kw)+"%")
	}

	if folder := normalizeFolder(f.Folder); folder != "" {
		clause, folderArgs := underPrefix("folder", folder)
		clauses = append(clauses, clause)
		args = append(args, folderArgs...)
	}

	if len(f.Formats) > 0 {
		placeholders := make([]string, 0, len(f.Formats))
		for _, format := range f.Formats {
			placeholders = append(placeholders, "?")
			args = append(args, strings.TrimPrefix(strings.ToLower(format), "."))
		}
		clauses = append(clauses, "format IN ("+strings.Join(placeholders, ", ")+")")
	}

	if f.MinSize != nil {
		clauses = append(clauses, "size >= ?")
		args = append(args, *f.MinSize)
	}
	if f.MaxSize != nil {
		clauses = append(clauses, "size <= ?")
		args = append(args, *f.MaxSize)
	}
	if f.CreatedFrom != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.CreatedFrom.UnixNano())
	}
	if f.CreatedTo != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.CreatedTo.UnixNano())
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func buildOrderBy(field mediatypes.SortField, order mediatypes.SortOrder) string {
	dir := "ASC"
	if order == mediatypes.SortDesc {
		dir = "DESC"
	}

	var column string
	switch field {
	case mediatypes.SortByName:
		column = "filename COLLATE NOCASE"
	case mediatypes.SortByDate:
		column = "modified_at"
	case mediatypes.SortBySize:
		column = "size"
	default:
		return " ORDER BY path " + dir
	}
	return " ORDER BY " + column + " " + dir + ", path ASC"
}

// underPrefix matches column values equal to prefix or nested beneath it.
// The range comparison is byte-exact; '0' sorts right after '/'.
func underPrefix(column, prefix string) (string, []interface{}) {
	return "(" + column + " = ? OR (" + column + " >= ? AND " + column + " < ?))",
		[]interface{}{prefix, prefix + "/", prefix + "0"}
}

func normalizeFolder(folder string) string {
	folder = strings.ReplaceAll(folder, "\\", "/")
	return strings.Trim(folder, "/")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
