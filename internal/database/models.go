package database

import (
	"time"

	"library-indexer/internal/mediatypes"
)

// Image is one indexed image. Path is the unique key.
type Image struct {
	Path          string              `json:"path"`
	Filename      string              `json:"filename"`
	Folder        string              `json:"folder"`
	Size          int64               `json:"size"`
	Width         int                 `json:"width"`
	Height        int                 `json:"height"`
	Format        string              `json:"format"`
	FileType      mediatypes.FileType `json:"fileType"`
	CreatedAt     time.Time           `json:"createdAt"`
	ModifiedAt    time.Time           `json:"modifiedAt"`
	Fingerprint   string              `json:"fingerprint,omitempty"`
	ThumbnailPath *string             `json:"thumbnailPath"`
	ThumbnailSize int64               `json:"thumbnailSize"`
	IndexedAt     time.Time           `json:"indexedAt"`
}

// HasThumbnail reports whether the image has a cache artifact.
func (i Image) HasThumbnail() bool {
	return i.ThumbnailPath != nil && *i.ThumbnailPath != ""
}

// Folder aggregates the images at or below a folder path.
type Folder struct {
	Path          string    `json:"path"`
	ImageCount    int       `json:"imageCount"`
	LastScannedAt time.Time `json:"lastScannedAt"`
}

// FileState is the part of an Image needed for change detection.
type FileState struct {
	Size          int64
	Width         int
	Height        int
	ModifiedAt    time.Time
	ThumbnailPath string
}

// Filters narrows a search. All set filters must match.
type Filters struct {
	// Keywords must each appear in the filename, case-insensitively.
	Keywords []string `json:"keywords,omitempty"`
	// Folder matches images in the folder or any folder below it.
	Folder  string   `json:"folder,omitempty"`
	Formats []string `json:"formats,omitempty"`
	MinSize *int64   `json:"minSize,omitempty"`
	MaxSize *int64   `json:"maxSize,omitempty"`
	// CreatedFrom and CreatedTo are inclusive.
	CreatedFrom *time.Time           `json:"createdFrom,omitempty"`
	CreatedTo   *time.Time           `json:"createdTo,omitempty"`
	SortBy      mediatypes.SortField `json:"sortBy,omitempty"`
	SortOrder   mediatypes.SortOrder `json:"sortOrder,omitempty"`
}

// Pagination is an offset/limit window.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// Pagination limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// SearchResult is one page of a search.
type SearchResult struct {
	Items   []Image `json:"items"`
	Total   int     `json:"total"`
	HasMore bool    `json:"hasMore"`
	Offset  int     `json:"offset"`
	Limit   int     `json:"limit"`
}

// Stats summarizes one library database.
type Stats struct {
	Images           int   `json:"images"`
	Folders          int   `json:"folders"`
	WithoutThumbnail int   `json:"withoutThumbnail"`
	ThumbnailBytes   int64 `json:"thumbnailBytes"`
	TotalBytes       int64 `json:"totalBytes"`
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
