package database

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"library-indexer/internal/library"
	"library-indexer/internal/mediatypes"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "library.db"), DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testImage(rel string, size int64, created time.Time) Image {
	folder := path.Dir(rel)
	if folder == "." {
		folder = ""
	}
	thumb := "ab/" + strings.ReplaceAll(rel, "/", "_") + ".webp"
	return Image{
		Path:          rel,
		Filename:      path.Base(rel),
		Folder:        folder,
		Size:          size,
		Width:         640,
		Height:        480,
		Format:        mediatypes.Format(rel),
		FileType:      mediatypes.GetFileType(path.Ext(rel)),
		CreatedAt:     created,
		ModifiedAt:    created,
		ThumbnailPath: &thumb,
		ThumbnailSize: 100,
	}
}

func allPaths(t *testing.T, db *Database) []string {
	t.Helper()
	res, err := db.Search(context.Background(), Filters{}, Pagination{Limit: MaxLimit})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	paths := make([]string, 0, len(res.Items))
	for _, img := range res.Items {
		paths = append(paths, img.Path)
	}
	return paths
}

func TestOpenRecordsSchemaVersion(t *testing.T) {
	db := openTestDB(t)

	v, err := db.GetMetadata(context.Background(), "schema_version")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if v != fmt.Sprint(schemaVersion) {
		t.Errorf("schema_version = %q, want %d", v, schemaVersion)
	}

	if _, err := db.GetMetadata(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMetadata(missing) error = %v, want ErrNotFound", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "library.db")
	ctx := context.Background()

	db, err := Open(ctx, dbPath, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := db.UpsertBatch(ctx, []Image{testImage("a.jpg", 1, time.Now())}); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err = Open(ctx, dbPath, DefaultOptions())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	img, err := db.GetImage(ctx, "a.jpg")
	if err != nil {
		t.Fatalf("GetImage failed: %v", err)
	}
	if img.Filename != "a.jpg" || !img.HasThumbnail() {
		t.Errorf("unexpected image after reopen: %+v", img)
	}
}

func TestUpsertBatchReplacesRow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	mod := time.Unix(0, 1_700_000_000_123_456_789)

	img := testImage("photos/cat.png", 10, mod)
	if err := db.UpsertBatch(ctx, []Image{img}); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	img.Size = 20
	img.ThumbnailPath = nil
	img.ThumbnailSize = 0
	if err := db.UpsertBatch(ctx, []Image{img}); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	got, err := db.GetImage(ctx, "photos/cat.png")
	if err != nil {
		t.Fatalf("GetImage failed: %v", err)
	}
	if got.Size != 20 {
		t.Errorf("Size = %d, want 20", got.Size)
	}
	if got.HasThumbnail() {
		t.Errorf("ThumbnailPath = %v, want nil", *got.ThumbnailPath)
	}
	if !got.ModifiedAt.Equal(mod) {
		t.Errorf("ModifiedAt = %v, want %v (nanosecond precision)", got.ModifiedAt, mod)
	}
	if got.Folder != "photos" || got.FileType != mediatypes.FileTypeRaster {
		t.Errorf("unexpected folder/type: %q/%q", got.Folder, got.FileType)
	}

	if paths := allPaths(t, db); len(paths) != 1 {
		t.Errorf("expected 1 row, got %v", paths)
	}
}

func TestUpsertBatchIsAtomic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	batch := []Image{
		testImage("a.jpg", 1, time.Now()),
		testImage("b.jpg", 1, time.Now()),
		{Filename: "broken", Format: "jpg", FileType: mediatypes.FileTypeRaster},
	}

	err := db.UpsertBatch(ctx, batch)
	if err == nil {
		t.Fatal("expected error for row with empty path")
	}
	if !IsStoreError(err) {
		t.Errorf("expected StoreError, got %T: %v", err, err)
	}

	if paths := allPaths(t, db); len(paths) != 0 {
		t.Errorf("partial batch visible: %v", paths)
	}
}

func TestUpsertBatchIdempotenceProperty(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	toImages := func(ids []int) []Image {
		images := make([]Image, 0, len(ids))
		for _, id := range ids {
			images = append(images, testImage(fmt.Sprintf("dir%d/img%d.jpg", id%3, id), int64(id), time.Unix(int64(id), 0)))
		}
		return images
	}

	properties.Property("every path appears exactly once after overlapping upserts", prop.ForAll(
		func(first, second []int) bool {
			if _, err := db.DeleteIndexedBefore(ctx, time.Now().Add(time.Hour)); err != nil {
				return false
			}
			if err := db.UpsertBatch(ctx, toImages(first)); err != nil {
				return false
			}
			if err := db.UpsertBatch(ctx, toImages(append(second, first...))); err != nil {
				return false
			}

			want := make(map[string]bool)
			for _, img := range toImages(append(first, second...)) {
				want[img.Path] = true
			}

			got := allPaths(t, db)
			if len(got) != len(want) {
				return false
			}
			seen := make(map[string]bool)
			for _, p := range got {
				if seen[p] || !want[p] {
					return false
				}
				seen[p] = true
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 30)),
		gen.SliceOf(gen.IntRange(0, 30)),
	))

	properties.TestingRun(t)
}

func seedSearchFixture(t *testing.T, db *Database) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	images := []Image{
		testImage("Holiday Beach.jpg", 100, base),
		testImage("A/x.jpg", 200, base.Add(24*time.Hour)),
		testImage("A/B/y.png", 300, base.Add(48*time.Hour)),
		testImage("AB/z.gif", 400, base.Add(72*time.Hour)),
		testImage("C/beach_sunset.webp", 500, base.Add(96*time.Hour)),
		testImage("C/100%.jpg", 600, base.Add(120*time.Hour)),
	}
	if err := db.UpsertBatch(context.Background(), images); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
}

func TestSearchFilters(t *testing.T) {
	db := openTestDB(t)
	seedSearchFixture(t, db)

	int64p := func(v int64) *int64 { return &v }
	timep := func(d int) *time.Time {
		v := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(d) * 24 * time.Hour)
		return &v
	}

	tests := []struct {
		name    string
		filters Filters
		want    []string
	}{
		{"no filters", Filters{}, []string{"A/B/y.png", "A/x.jpg", "AB/z.gif", "C/100%.jpg", "C/beach_sunset.webp", "Holiday Beach.jpg"}},
		{"keyword case-insensitive", Filters{Keywords: []string{"BEACH"}}, []string{"C/beach_sunset.webp", "Holiday Beach.jpg"}},
		{"keywords are ANDed", Filters{Keywords: []string{"beach", "sunset"}}, []string{"C/beach_sunset.webp"}},
		{"keyword wildcard is literal", Filters{Keywords: []string{"%"}}, []string{"C/100%.jpg"}},
		{"underscore is literal", Filters{Keywords: []string{"_"}}, []string{"C/beach_sunset.webp"}},
		{"folder includes descendants only", Filters{Folder: "A"}, []string{"A/B/y.png", "A/x.jpg"}},
		{"folder trailing slash", Filters{Folder: "A/"}, []string{"A/B/y.png", "A/x.jpg"}},
		{"nested folder", Filters{Folder: "A/B"}, []string{"A/B/y.png"}},
		{"formats", Filters{Formats: []string{"PNG", ".gif"}}, []string{"A/B/y.png", "AB/z.gif"}},
		{"size range", Filters{MinSize: int64p(200), MaxSize: int64p(400)}, []string{"A/B/y.png", "A/x.jpg", "AB/z.gif"}},
		{"created range inclusive", Filters{CreatedFrom: timep(1), CreatedTo: timep(2)}, []string{"A/B/y.png", "A/x.jpg"}},
		{"combined", Filters{Folder: "C", Formats: []string{"jpg"}, MinSize: int64p(550)}, []string{"C/100%.jpg"}},
		{"no match", Filters{Keywords: []string{"nothing"}}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := db.Search(context.Background(), tt.filters, Pagination{})
			if err != nil {
				t.Fatalf("Search failed: %v", err)
			}
			got := make([]string, 0, len(res.Items))
			for _, img := range res.Items {
				got = append(got, img.Path)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if res.Total != len(tt.want) {
				t.Errorf("Total = %d, want %d", res.Total, len(tt.want))
			}
		})
	}
}

func TestSearchSorting(t *testing.T) {
	db := openTestDB(t)
	seedSearchFixture(t, db)

	res, err := db.Search(context.Background(), Filters{SortBy: mediatypes.SortBySize, SortOrder: mediatypes.SortDesc}, Pagination{Limit: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res.Items) != 2 || res.Items[0].Size != 600 || res.Items[1].Size != 500 {
		t.Errorf("unexpected order: %+v", res.Items)
	}

	res, err = db.Search(context.Background(), Filters{SortBy: mediatypes.SortByName}, Pagination{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	names := make([]string, 0, len(res.Items))
	for _, img := range res.Items {
		names = append(names, strings.ToLower(img.Filename))
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("names not sorted case-insensitively: %v", names)
	}
}

func TestSearchPagination(t *testing.T) {
	db := openTestDB(t)
	seedSearchFixture(t, db)
	ctx := context.Background()

	tests := []struct {
		page      Pagination
		wantItems int
		wantMore  bool
		wantLimit int
	}{
		{Pagination{Offset: 0, Limit: 4}, 4, true, 4},
		{Pagination{Offset: 4, Limit: 4}, 2, false, 4},
		{Pagination{Offset: 2, Limit: 4}, 4, false, 4},
		{Pagination{Offset: 10, Limit: 4}, 0, false, 4},
		{Pagination{}, 6, false, DefaultLimit},
		{Pagination{Limit: 10_000}, 6, false, MaxLimit},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("offset=%d,limit=%d", tt.page.Offset, tt.page.Limit), func(t *testing.T) {
			res, err := db.Search(ctx, Filters{}, tt.page)
			if err != nil {
				t.Fatalf("Search failed: %v", err)
			}
			if len(res.Items) != tt.wantItems || res.HasMore != tt.wantMore || res.Limit != tt.wantLimit {
				t.Errorf("got items=%d hasMore=%v limit=%d, want %d/%v/%d",
					len(res.Items), res.HasMore, res.Limit, tt.wantItems, tt.wantMore, tt.wantLimit)
			}
			if res.Total != 6 {
				t.Errorf("Total = %d, want 6", res.Total)
			}
		})
	}
}

func TestSearchValidation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	small, big := int64(10), int64(5)

	tests := []struct {
		name    string
		filters Filters
		page    Pagination
	}{
		{"negative offset", Filters{}, Pagination{Offset: -1}},
		{"negative limit", Filters{}, Pagination{Limit: -5}},
		{"inverted size range", Filters{MinSize: &small, MaxSize: &big}, Pagination{}},
		{"unknown sort", Filters{SortBy: "color"}, Pagination{}},
		{"unknown order", Filters{SortOrder: "sideways"}, Pagination{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Search(ctx, tt.filters, tt.page)
			if !library.IsValidationError(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestFolderPrefixScenario(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()

	images := []Image{
		testImage("A/x.jpg", 1, now),
		testImage("A/B/y.jpg", 1, now),
		testImage("AB/z.jpg", 1, now),
	}
	if err := db.UpsertBatch(ctx, images); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if err := db.UpsertFolders(ctx, []string{"", "A", "A/B", "AB"}, now); err != nil {
		t.Fatalf("UpsertFolders failed: %v", err)
	}

	folder, err := db.GetFolder(ctx, "A")
	if err != nil {
		t.Fatalf("GetFolder failed: %v", err)
	}
	if folder.ImageCount != 2 {
		t.Errorf("A count = %d, want 2", folder.ImageCount)
	}
	root, err := db.GetFolder(ctx, "")
	if err != nil {
		t.Fatalf("GetFolder(root) failed: %v", err)
	}
	if root.ImageCount != 3 {
		t.Errorf("root count = %d, want 3", root.ImageCount)
	}

	res, err := db.Search(ctx, Filters{Folder: "A"}, Pagination{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if res.Total != 2 {
		t.Errorf("search folder A total = %d, want 2", res.Total)
	}

	deleted, err := db.DeleteByFolderPrefix(ctx, "A")
	if err != nil {
		t.Fatalf("DeleteByFolderPrefix failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	count, err := db.RecomputeFolderCount(ctx, "A")
	if err != nil {
		t.Fatalf("RecomputeFolderCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("A count after delete = %d, want 0", count)
	}
	if _, err := db.GetFolder(ctx, "A/B"); !errors.Is(err, ErrNotFound) {
		t.Errorf("nested folder row should be removed, got %v", err)
	}
	if _, err := db.GetImage(ctx, "AB/z.jpg"); err != nil {
		t.Errorf("sibling AB/z.jpg should survive: %v", err)
	}

	if err := db.RecomputeFolderCounts(ctx, []string{""}); err != nil {
		t.Fatalf("RecomputeFolderCounts failed: %v", err)
	}
	root, _ = db.GetFolder(ctx, "")
	if root.ImageCount != 1 {
		t.Errorf("root count after delete = %d, want 1", root.ImageCount)
	}

	if _, err := db.DeleteByFolderPrefix(ctx, "/"); !library.IsValidationError(err) {
		t.Errorf("empty prefix should be rejected, got %v", err)
	}
}

func TestReplaceFolders(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()

	if err := db.UpsertFolders(ctx, []string{"old", "keep"}, now); err != nil {
		t.Fatalf("UpsertFolders failed: %v", err)
	}
	if err := db.ReplaceFolders(ctx, []string{"", "keep"}, now); err != nil {
		t.Fatalf("ReplaceFolders failed: %v", err)
	}

	folders, err := db.ListFolders(ctx)
	if err != nil {
		t.Fatalf("ListFolders failed: %v", err)
	}
	if len(folders) != 2 || folders[0].Path != "" || folders[1].Path != "keep" {
		t.Errorf("unexpected folders: %+v", folders)
	}
}

func TestIndexedStateAndDeleteIndexedBefore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	old := testImage("old.jpg", 5, time.Unix(100, 0))
	old.IndexedAt = time.Unix(1000, 0)
	old.ThumbnailPath = nil
	fresh := testImage("fresh.jpg", 7, time.Unix(200, 0))
	fresh.IndexedAt = time.Unix(3000, 0)

	if err := db.UpsertBatch(ctx, []Image{old, fresh}); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	state, err := db.IndexedState(ctx)
	if err != nil {
		t.Fatalf("IndexedState failed: %v", err)
	}
	if len(state) != 2 {
		t.Fatalf("state has %d entries, want 2", len(state))
	}
	if s := state["fresh.jpg"]; s.Size != 7 || !s.ModifiedAt.Equal(time.Unix(200, 0)) || s.ThumbnailPath == "" {
		t.Errorf("unexpected state for fresh.jpg: %+v", s)
	}
	if s := state["old.jpg"]; s.ThumbnailPath != "" {
		t.Errorf("old.jpg should have no artifact, got %q", s.ThumbnailPath)
	}

	known, err := db.ThumbnailPaths(ctx)
	if err != nil {
		t.Fatalf("ThumbnailPaths failed: %v", err)
	}
	if len(known) != 1 || !known[*fresh.ThumbnailPath] {
		t.Errorf("unexpected thumbnail paths: %v", known)
	}

	deleted, err := db.DeleteIndexedBefore(ctx, time.Unix(2000, 0))
	if err != nil {
		t.Fatalf("DeleteIndexedBefore failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := db.GetImage(ctx, "old.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old.jpg should be gone, got %v", err)
	}

	if err := db.DeleteByPath(ctx, "fresh.jpg"); err != nil {
		t.Fatalf("DeleteByPath failed: %v", err)
	}
	if err := db.DeleteByPath(ctx, "fresh.jpg"); err != nil {
		t.Errorf("deleting a missing path should not fail: %v", err)
	}
}

func TestStatsAndLastScan(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	withoutThumb := testImage("b.jpg", 20, time.Now())
	withoutThumb.ThumbnailPath = nil
	withoutThumb.ThumbnailSize = 0
	if err := db.UpsertBatch(ctx, []Image{testImage("a.jpg", 10, time.Now()), withoutThumb}); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if err := db.UpsertFolders(ctx, []string{""}, time.Now()); err != nil {
		t.Fatalf("UpsertFolders failed: %v", err)
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	want := Stats{Images: 2, Folders: 1, WithoutThumbnail: 1, ThumbnailBytes: 100, TotalBytes: 30}
	if stats != want {
		t.Errorf("Stats = %+v, want %+v", stats, want)
	}

	last, err := db.GetLastScan(ctx, "full")
	if err != nil || !last.IsZero() {
		t.Errorf("GetLastScan before any scan = %v, %v", last, err)
	}

	finished := time.Date(2024, 5, 6, 7, 8, 9, 10, time.UTC)
	if err := db.SetLastScan(ctx, "full", finished); err != nil {
		t.Fatalf("SetLastScan failed: %v", err)
	}
	last, err = db.GetLastScan(ctx, "full")
	if err != nil {
		t.Fatalf("GetLastScan failed: %v", err)
	}
	if !last.Equal(finished) {
		t.Errorf("GetLastScan = %v, want %v", last, finished)
	}

	if err := db.Vacuum(ctx); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}
}

func TestIsDatabaseLocked(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked"), true},
		{fmt.Errorf("exec: %w", errors.New("SQLITE_BUSY")), true},
		{errors.New("disk I/O error"), false},
	}
	for _, tt := range tests {
		if got := IsDatabaseLocked(tt.err); got != tt.want {
			t.Errorf("IsDatabaseLocked(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
