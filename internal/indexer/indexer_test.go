package indexer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"library-indexer/internal/database"
	"library-indexer/internal/library"
	"library-indexer/internal/media"
)

type fixture struct {
	lib     library.Library
	db      *database.Database
	scanner *Scanner
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	root := t.TempDir()
	lib := library.Library{ID: "photos", Name: "Photos", Path: root}
	if err := os.MkdirAll(lib.MetaDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	db, err := database.Open(context.Background(), lib.DBPath(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if cfg.Thumbnail.Format == "" {
		cfg.Thumbnail = media.Options{Height: 32, Quality: 80, Format: "jpg"}
	}
	return &fixture{lib: lib, db: db, scanner: New(cfg, nil)}
}

func (f *fixture) writePNG(t *testing.T, rel string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 200, A: 255})
		}
	}
	abs := f.abs(rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	out, err := os.Create(abs)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	if err := png.Encode(out, img); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) writeFile(t *testing.T, rel, content string) {
	t.Helper()
	abs := f.abs(rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) abs(rel string) string {
	return filepath.Join(f.lib.Path, filepath.FromSlash(rel))
}

func (f *fixture) scan(t *testing.T) *Result {
	t.Helper()
	res, err := f.scanner.Scan(context.Background(), f.lib, f.db, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return res
}

func (f *fixture) image(t *testing.T, rel string) *database.Image {
	t.Helper()
	img, err := f.db.GetImage(context.Background(), rel)
	if err != nil {
		t.Fatalf("GetImage(%q) failed: %v", rel, err)
	}
	return img
}

func (f *fixture) folderCount(t *testing.T, folder string) int {
	t.Helper()
	fo, err := f.db.GetFolder(context.Background(), folder)
	if err != nil {
		t.Fatalf("GetFolder(%q) failed: %v", folder, err)
	}
	return fo.ImageCount
}

func TestScan_IndexesAndThumbnails(t *testing.T) {
	f := newFixture(t, Config{})
	f.writePNG(t, "a.png", 40, 20)
	f.writePNG(t, "sub/b.png", 10, 30)
	f.writeFile(t, "bad.png", "this is not an image")
	f.writeFile(t, "notes.txt", "ignored")

	res := f.scan(t)

	if res.Total != 3 || res.Processed != 3 {
		t.Errorf("total/processed = %d/%d, want 3/3", res.Total, res.Processed)
	}
	if res.Failed != 1 || len(res.FailureSamples) != 1 {
		t.Fatalf("failed = %d, samples = %v, want one failure", res.Failed, res.FailureSamples)
	}
	if got := res.FailureSamples[0]; got.Path != "bad.png" || got.Kind != FailureDecode {
		t.Errorf("failure = %+v, want decode failure for bad.png", got)
	}
	if res.Indexed != 3 || res.Generated != 2 {
		t.Errorf("indexed/generated = %d/%d, want 3/2", res.Indexed, res.Generated)
	}

	a := f.image(t, "a.png")
	if !a.HasThumbnail() || a.Width != 40 || a.Height != 20 {
		t.Errorf("a.png = %+v, want thumbnail and 40x20", a)
	}
	if a.Format != "png" || a.Folder != "" || a.Fingerprint == "" {
		t.Errorf("a.png fields = %+v", a)
	}
	gen, err := f.scanner.generator(f.lib)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(gen.Path(*a.ThumbnailPath)); err != nil {
		t.Errorf("artifact for a.png missing: %v", err)
	}

	b := f.image(t, "sub/b.png")
	if !b.HasThumbnail() || b.Folder != "sub" {
		t.Errorf("sub/b.png = %+v", b)
	}

	bad := f.image(t, "bad.png")
	if bad.HasThumbnail() {
		t.Errorf("bad.png has thumbnail %q, want none", *bad.ThumbnailPath)
	}

	if got := f.folderCount(t, ""); got != 3 {
		t.Errorf("root count = %d, want 3", got)
	}
	if got := f.folderCount(t, "sub"); got != 1 {
		t.Errorf("sub count = %d, want 1", got)
	}

	last, err := f.db.GetLastScan(context.Background(), KindFull)
	if err != nil || last.IsZero() {
		t.Errorf("GetLastScan = %v, %v", last, err)
	}
}

func TestScan_ReusesFreshThumbnails(t *testing.T) {
	f := newFixture(t, Config{})
	f.writePNG(t, "a.png", 16, 16)
	f.writePNG(t, "b.png", 16, 8)

	first := f.scan(t)
	if first.Generated != 2 {
		t.Fatalf("first scan generated %d, want 2", first.Generated)
	}

	second := f.scan(t)
	if second.Generated != 0 || second.Skipped != 2 {
		t.Errorf("second scan generated/skipped = %d/%d, want 0/2", second.Generated, second.Skipped)
	}
	if b := f.image(t, "b.png"); b.Width != 16 || b.Height != 8 {
		t.Errorf("reused dimensions = %dx%d, want 16x8", b.Width, b.Height)
	}

	// A newer source invalidates its artifact.
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(f.abs("a.png"), later, later); err != nil {
		t.Fatal(err)
	}
	third := f.scan(t)
	if third.Generated != 1 || third.Skipped != 1 {
		t.Errorf("third scan generated/skipped = %d/%d, want 1/1", third.Generated, third.Skipped)
	}
}

func TestScan_RemovesDeletedFiles(t *testing.T) {
	f := newFixture(t, Config{})
	f.writePNG(t, "keep.png", 8, 8)
	f.writePNG(t, "old/gone.png", 8, 8)
	f.scan(t)

	if err := os.RemoveAll(f.abs("old")); err != nil {
		t.Fatal(err)
	}
	res := f.scan(t)
	if res.Removed != 1 {
		t.Errorf("removed = %d, want 1", res.Removed)
	}
	if _, err := f.db.GetImage(context.Background(), "old/gone.png"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("GetImage(old/gone.png) error = %v, want ErrNotFound", err)
	}
	if _, err := f.db.GetFolder(context.Background(), "old"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("GetFolder(old) error = %v, want ErrNotFound", err)
	}
}

func TestScan_Ignores(t *testing.T) {
	f := newFixture(t, Config{Ignore: []string{"raw/"}})
	f.writePNG(t, "a.png", 8, 8)
	f.writePNG(t, ".hidden.png", 8, 8)
	f.writePNG(t, ".cache/c.png", 8, 8)
	f.writePNG(t, "raw/r.png", 8, 8)

	res := f.scan(t)
	if res.Total != 1 {
		t.Errorf("total = %d, want 1 (only a.png)", res.Total)
	}
	// Thumbnails live under the metadata directory and must never be indexed.
	res = f.scan(t)
	if res.Total != 1 {
		t.Errorf("second scan total = %d, want 1", res.Total)
	}
}

func TestScan_MissingRootFails(t *testing.T) {
	f := newFixture(t, Config{})
	lib := f.lib
	lib.Path = filepath.Join(lib.Path, "does-not-exist")

	_, err := f.scanner.Scan(context.Background(), lib, f.db, nil)
	if !IsIOError(err) {
		t.Errorf("Scan error = %v, want IOError", err)
	}
}

func TestScan_Cancelled(t *testing.T) {
	f := newFixture(t, Config{})
	f.writePNG(t, "a.png", 8, 8)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.scanner.Scan(ctx, f.lib, f.db, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Scan error = %v, want context.Canceled", err)
	}
}

func TestScan_Batches(t *testing.T) {
	f := newFixture(t, Config{BatchSize: 2, Concurrency: 3})
	for _, rel := range []string{"1.png", "2.png", "3.png", "d/4.png", "d/5.png"} {
		f.writePNG(t, rel, 4, 4)
	}

	var mu sync.Mutex
	var reports []Progress
	res, err := f.scanner.Scan(context.Background(), f.lib, f.db, func(p Progress) {
		mu.Lock()
		reports = append(reports, p)
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Indexed != 5 {
		t.Errorf("indexed = %d, want 5", res.Indexed)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reports) < 2 {
		t.Fatalf("got %d progress reports, want at least 2", len(reports))
	}
	if first := reports[0]; first.Processed != 0 || first.Total != 5 {
		t.Errorf("first report = %+v, want 0/5", first)
	}
	if last := reports[len(reports)-1]; last.Processed != 5 {
		t.Errorf("last report = %+v, want 5 processed", last)
	}
}

func TestScan_SweepsOrphans(t *testing.T) {
	f := newFixture(t, Config{SweepOrphans: true})
	f.writePNG(t, "a.png", 8, 8)
	f.writePNG(t, "b.png", 8, 8)
	f.scan(t)

	b := f.image(t, "b.png")
	if err := os.Remove(f.abs("b.png")); err != nil {
		t.Fatal(err)
	}
	res := f.scan(t)
	if res.OrphansRemoved != 1 {
		t.Errorf("orphans removed = %d, want 1", res.OrphansRemoved)
	}

	gen, _ := f.scanner.generator(f.lib)
	if _, err := os.Stat(gen.Path(*b.ThumbnailPath)); !os.IsNotExist(err) {
		t.Errorf("orphan artifact still present: %v", err)
	}
	a := f.image(t, "a.png")
	if _, err := os.Stat(gen.Path(*a.ThumbnailPath)); err != nil {
		t.Errorf("live artifact removed: %v", err)
	}
}

func TestApply(t *testing.T) {
	f := newFixture(t, Config{})
	f.writePNG(t, "a.png", 8, 8)
	f.writePNG(t, "trip/x.png", 8, 8)
	f.writePNG(t, "trip/day1/y.png", 8, 8)
	f.scan(t)
	ctx := context.Background()

	f.writePNG(t, "trip/day2/z.png", 12, 6)
	res, err := f.scanner.Apply(ctx, f.lib, f.db, Delta{Upserts: []string{"trip/day2/z.png"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Indexed != 1 || res.Generated != 1 {
		t.Errorf("apply add = %+v", res)
	}
	if z := f.image(t, "trip/day2/z.png"); !z.HasThumbnail() || z.Width != 12 {
		t.Errorf("z.png = %+v", z)
	}
	if got := f.folderCount(t, "trip"); got != 3 {
		t.Errorf("trip count = %d, want 3", got)
	}
	if got := f.folderCount(t, "trip/day2"); got != 1 {
		t.Errorf("trip/day2 count = %d, want 1", got)
	}

	if err := os.Remove(f.abs("a.png")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.scanner.Apply(ctx, f.lib, f.db, Delta{Removed: []string{"a.png"}}, nil); err != nil {
		t.Fatal(err)
	}
	if got := f.folderCount(t, ""); got != 3 {
		t.Errorf("root count after removal = %d, want 3", got)
	}

	if err := os.RemoveAll(f.abs("trip/day1")); err != nil {
		t.Fatal(err)
	}
	res, err = f.scanner.Apply(ctx, f.lib, f.db, Delta{RemovedDirs: []string{"trip/day1"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 1 {
		t.Errorf("removed = %d, want 1", res.Removed)
	}
	if got := f.folderCount(t, "trip"); got != 2 {
		t.Errorf("trip count after dir removal = %d, want 2", got)
	}
	if _, err := f.db.GetFolder(ctx, "trip/day1"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("GetFolder(trip/day1) error = %v, want ErrNotFound", err)
	}
}

func TestApply_VanishedUpsertIsRemoval(t *testing.T) {
	f := newFixture(t, Config{})
	f.writePNG(t, "a.png", 8, 8)
	f.scan(t)

	if err := os.Remove(f.abs("a.png")); err != nil {
		t.Fatal(err)
	}
	res, err := f.scanner.Apply(context.Background(), f.lib, f.db, Delta{Upserts: []string{"a.png"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 1 || res.Failed != 1 {
		t.Errorf("removed/failed = %d/%d, want 1/1", res.Removed, res.Failed)
	}
	if _, err := f.db.GetImage(context.Background(), "a.png"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("GetImage error = %v, want ErrNotFound", err)
	}
}

func TestApply_ChangedFileRegenerates(t *testing.T) {
	f := newFixture(t, Config{})
	f.writePNG(t, "a.png", 8, 8)
	f.scan(t)

	f.writePNG(t, "a.png", 20, 10)
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(f.abs("a.png"), later, later); err != nil {
		t.Fatal(err)
	}

	res, err := f.scanner.Apply(context.Background(), f.lib, f.db, Delta{Upserts: []string{"a.png"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Generated != 1 {
		t.Errorf("generated = %d, want 1", res.Generated)
	}
	if a := f.image(t, "a.png"); a.Width != 20 || a.Height != 10 {
		t.Errorf("dimensions = %dx%d, want 20x10", a.Width, a.Height)
	}
}

func TestDetectChanges(t *testing.T) {
	f := newFixture(t, Config{})
	f.writePNG(t, "same.png", 8, 8)
	f.writePNG(t, "edit.png", 8, 8)
	f.writePNG(t, "gone.png", 8, 8)
	f.writePNG(t, "album/p.png", 8, 8)
	f.writePNG(t, "album/deep/q.png", 8, 8)
	f.scan(t)

	f.writePNG(t, "new.png", 8, 8)
	f.writePNG(t, "edit.png", 9, 9)
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(f.abs("edit.png"), later, later); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(f.abs("gone.png")); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(f.abs("album")); err != nil {
		t.Fatal(err)
	}

	delta, err := f.scanner.DetectChanges(context.Background(), f.lib, f.db)
	if err != nil {
		t.Fatal(err)
	}
	want := Delta{
		Upserts:     []string{"edit.png", "new.png"},
		Removed:     []string{"gone.png"},
		RemovedDirs: []string{"album"},
	}
	if !reflect.DeepEqual(delta, want) {
		t.Errorf("DetectChanges = %+v, want %+v", delta, want)
	}

	if _, err := f.scanner.Apply(context.Background(), f.lib, f.db, delta, nil); err != nil {
		t.Fatal(err)
	}
	again, err := f.scanner.DetectChanges(context.Background(), f.lib, f.db)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Empty() {
		t.Errorf("delta after apply = %+v, want empty", again)
	}
}

func TestNormalizeDelta(t *testing.T) {
	tests := []struct {
		name string
		in   Delta
		want Delta
	}{
		{
			name: "deduplicates and sorts",
			in:   Delta{Upserts: []string{"b.png", "a.png", "b.png"}},
			want: Delta{Upserts: []string{"a.png", "b.png"}},
		},
		{
			name: "upsert wins over removal",
			in:   Delta{Upserts: []string{"a.png"}, Removed: []string{"a.png", "c.png"}},
			want: Delta{Upserts: []string{"a.png"}, Removed: []string{"c.png"}},
		},
		{
			name: "cleans paths",
			in:   Delta{Removed: []string{"/x/./y.png", "x//y.png"}, RemovedDirs: []string{"d/", "."}},
			want: Delta{Removed: []string{"x/y.png"}, RemovedDirs: []string{"d"}},
		},
		{
			name: "empty",
			in:   Delta{},
			want: Delta{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeDelta(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("normalizeDelta() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAncestors(t *testing.T) {
	tests := []struct {
		folder string
		want   []string
	}{
		{"", []string{""}},
		{"a", []string{"a", ""}},
		{"a/b/c", []string{"a/b/c", "a/b", "a", ""}},
	}
	for _, tt := range tests {
		if got := ancestors(tt.folder); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ancestors(%q) = %v, want %v", tt.folder, got, tt.want)
		}
	}
}

type stoppedMonitor struct{ calls int }

func (m *stoppedMonitor) WaitIfPaused(context.Context) bool {
	m.calls++
	return false
}

// pausedMonitor stays paused until the caller's context ends.
type pausedMonitor struct{ entered chan struct{} }

func (m *pausedMonitor) WaitIfPaused(ctx context.Context) bool {
	close(m.entered)
	<-ctx.Done()
	return false
}

func TestScan_BackpressureShutdown(t *testing.T) {
	bp := &stoppedMonitor{}
	f := newFixture(t, Config{Backpressure: bp})
	f.writePNG(t, "a.png", 8, 8)

	_, err := f.scanner.Scan(context.Background(), f.lib, f.db, nil)
	if !errors.Is(err, ErrInterrupted) {
		t.Errorf("Scan error = %v, want ErrInterrupted", err)
	}
	if bp.calls != 1 {
		t.Errorf("WaitIfPaused called %d times, want 1", bp.calls)
	}
}

func TestScan_PausedScanHonoursCancel(t *testing.T) {
	bp := &pausedMonitor{entered: make(chan struct{})}
	f := newFixture(t, Config{Backpressure: bp})
	f.writePNG(t, "a.png", 8, 8)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := f.scanner.Scan(ctx, f.lib, f.db, nil)
		errc <- err
	}()

	<-bp.entered
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Scan error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Scan stayed blocked on backpressure after cancel")
	}
}
