package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"library-indexer/internal/database"
	"library-indexer/internal/library"
	"library-indexer/internal/mediatypes"
)

// maxInsertBody bounds the body of an insert request.
const maxInsertBody = 32 << 20

// Search runs a paginated search.
//
// Query parameters: q (space separated keywords), folder, format
// (repeatable or comma separated), minSize, maxSize, createdFrom and
// createdTo (RFC 3339), sortBy, sortOrder, offset, limit.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	lib, ok := h.resolve(w, r)
	if !ok {
		return
	}
	filters, page, err := parseSearch(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.Catalog.Search(r.Context(), lib.ID, filters, page)
	if err != nil {
		writeError(w, err)
		return
	}
	if result.Items == nil {
		result.Items = []database.Image{}
	}
	writeJSON(w, http.StatusOK, result)
}

func parseSearch(r *http.Request) (database.Filters, database.Pagination, error) {
	q := r.URL.Query()
	var f database.Filters
	var page database.Pagination
	var err error

	f.Keywords = strings.Fields(q.Get("q"))
	f.Folder = q.Get("folder")
	for _, v := range q["format"] {
		for _, format := range strings.Split(v, ",") {
			if format = strings.TrimSpace(format); format != "" {
				f.Formats = append(f.Formats, format)
			}
		}
	}
	f.SortBy = mediatypes.SortField(q.Get("sortBy"))
	f.SortOrder = mediatypes.SortOrder(q.Get("sortOrder"))

	if f.MinSize, err = optionalInt64(q.Get("minSize"), "minSize"); err != nil {
		return f, page, err
	}
	if f.MaxSize, err = optionalInt64(q.Get("maxSize"), "maxSize"); err != nil {
		return f, page, err
	}
	if f.CreatedFrom, err = optionalTime(q.Get("createdFrom"), "createdFrom"); err != nil {
		return f, page, err
	}
	if f.CreatedTo, err = optionalTime(q.Get("createdTo"), "createdTo"); err != nil {
		return f, page, err
	}
	if page.Offset, err = optionalInt(q.Get("offset"), "offset"); err != nil {
		return f, page, err
	}
	if page.Limit, err = optionalInt(q.Get("limit"), "limit"); err != nil {
		return f, page, err
	}
	return f, page, nil
}

func optionalInt(v, field string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, library.Invalid(field, "%q is not an integer", v)
	}
	return n, nil
}

func optionalInt64(v, field string) (*int64, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, library.Invalid(field, "%q is not an integer", v)
	}
	return &n, nil
}

func optionalTime(v, field string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, library.Invalid(field, "%q is not an RFC 3339 time", v)
	}
	return &t, nil
}

// InsertBatchRequest is the body of an insert.
type InsertBatchRequest struct {
	Images []database.Image `json:"images"`
}

// InsertBatch upserts caller-supplied image records.
func (h *Handlers) InsertBatch(w http.ResponseWriter, r *http.Request) {
	lib, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var req InsertBatchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInsertBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		writeError(w, library.Invalid("body", "invalid JSON: %v", err))
		return
	}

	if err := h.Catalog.InsertBatch(r.Context(), lib.ID, req.Images); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"inserted": len(req.Images)})
}
