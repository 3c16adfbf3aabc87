package indexer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"library-indexer/internal/database"
	"library-indexer/internal/filesystem"
	"library-indexer/internal/library"
	"library-indexer/internal/logging"
	"library-indexer/internal/media"
)

// Scan kinds, also used as metric labels and last-scan metadata keys.
const (
	KindFull        = "full"
	KindIncremental = "incremental"
)

// Result summarizes a full scan or an incremental apply.
type Result struct {
	Kind           string        `json:"kind"`
	Total          int           `json:"total"`
	Processed      int           `json:"processed"`
	Indexed        int           `json:"indexed"`
	Generated      int           `json:"generated"`
	Skipped        int           `json:"skipped"`
	Failed         int           `json:"failed"`
	FailureSamples []Failure     `json:"failureSamples,omitempty"`
	Removed        int64         `json:"removed"`
	Folders        int           `json:"folders"`
	OrphansRemoved int           `json:"orphansRemoved"`
	Duration       time.Duration `json:"duration"`
}

// Delta is a set of changes to apply incrementally. Paths are relative to
// the library root with forward slashes.
type Delta struct {
	// Upserts are files that were added or changed.
	Upserts []string `json:"upserts,omitempty"`
	// Removed are files that were deleted.
	Removed []string `json:"removed,omitempty"`
	// RemovedDirs are directories deleted together with their contents.
	RemovedDirs []string `json:"removedDirs,omitempty"`
}

// Empty reports whether the delta carries no changes.
func (d Delta) Empty() bool {
	return len(d.Upserts) == 0 && len(d.Removed) == 0 && len(d.RemovedDirs) == 0
}

// GeneratorFactory builds the thumbnail generator for a library.
type GeneratorFactory func(lib library.Library) (*media.Generator, error)

// Scanner indexes libraries into their databases and keeps their thumbnail
// caches current. A Scanner is safe for concurrent use on different
// libraries; callers serialize work on the same library.
type Scanner struct {
	cfg          Config
	matcher      *library.Matcher
	newGenerator GeneratorFactory
	retry        filesystem.RetryConfig

	mu         sync.Mutex
	generators map[string]*media.Generator
}

// New creates a Scanner. A nil factory builds generators from
// cfg.Thumbnail rooted at each library's thumbnail directory.
func New(cfg Config, factory GeneratorFactory) *Scanner {
	cfg = cfg.withDefaults()
	if factory == nil {
		tmpl := cfg.Thumbnail
		factory = func(lib library.Library) (*media.Generator, error) {
			opts := tmpl
			opts.Root = lib.ThumbnailDir()
			return media.NewGenerator(opts)
		}
	}
	return &Scanner{
		cfg:          cfg,
		matcher:      library.NewMatcher(cfg.Ignore...),
		newGenerator: factory,
		retry:        filesystem.DefaultRetryConfig(),
		generators:   make(map[string]*media.Generator),
	}
}

// Matcher returns the ignore rules the scanner applies.
func (s *Scanner) Matcher() *library.Matcher { return s.matcher }

func (s *Scanner) generator(lib library.Library) (*media.Generator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.generators[lib.ID]; ok {
		return g, nil
	}
	g, err := s.newGenerator(lib)
	if err != nil {
		return nil, fmt.Errorf("thumbnail generator for %s: %w", lib.ID, err)
	}
	s.generators[lib.ID] = g
	return g, nil
}

// Forget drops the cached generator of a library.
func (s *Scanner) Forget(libraryID string) {
	s.mu.Lock()
	delete(s.generators, libraryID)
	s.mu.Unlock()
}

// Scan walks the whole library, indexes every image, thumbnails the ones
// whose artifact is stale and removes rows for files that no longer exist.
// Per-file failures are counted and sampled in the Result; the scan only
// fails for an unreadable root, a storage error or cancellation.
func (s *Scanner) Scan(ctx context.Context, lib library.Library, db *database.Database, progress ProgressFunc) (*Result, error) {
	start := time.Now()
	log := logging.WithLibrary(lib.ID)
	log.Infof("Starting full scan of %s", lib.Path)

	state, err := db.IndexedState(ctx)
	if err != nil {
		return nil, err
	}

	walked, err := s.walk(ctx, lib)
	if err != nil {
		return nil, err
	}

	gen, err := s.generator(lib)
	if err != nil {
		return nil, err
	}

	t := newTracker(KindFull, len(walked.files), s.cfg.ProgressInterval, progress)
	for _, f := range walked.failures {
		t.fail(f)
	}
	t.report(true)

	run := &batchRun{
		scanner:   s,
		db:        db,
		gen:       gen,
		tracker:   t,
		indexedAt: start,
		previous: func(_ context.Context, rel string) (database.FileState, bool, error) {
			st, ok := state[rel]
			return st, ok, nil
		},
	}
	if err := run.run(ctx, walked.files); err != nil {
		return nil, err
	}

	// Rows not touched by this scan belong to files that are gone or
	// unreadable.
	removed, err := db.DeleteIndexedBefore(ctx, start)
	if err != nil {
		return nil, err
	}
	// Reclaim space once a quarter or more of the index is gone.
	if removed > 0 && removed*4 >= int64(len(state)) {
		if err := db.Vacuum(ctx); err != nil {
			log.Warnf("Vacuum after removing %d rows failed: %v", removed, err)
		}
	}
	if err := db.ReplaceFolders(ctx, walked.folders, start); err != nil {
		return nil, err
	}
	if err := db.SetLastScan(ctx, KindFull, start); err != nil {
		return nil, err
	}

	res := s.result(KindFull, t, run)
	res.Removed = removed
	res.Folders = len(walked.folders)

	if s.cfg.SweepOrphans {
		n, err := s.sweepOrphans(ctx, db, gen)
		if err != nil {
			log.Warnf("Thumbnail orphan sweep failed: %v", err)
		}
		res.OrphansRemoved = n
	}

	res.Duration = time.Since(start)
	log.Infof("Full scan complete: %d files, %d folders, %d failed, %d removed in %v",
		res.Processed, res.Folders, res.Failed, res.Removed, res.Duration)
	return res, nil
}

// Apply indexes the files in delta and removes the deleted ones. Upserts
// that have vanished by the time they are read are treated as removals.
func (s *Scanner) Apply(ctx context.Context, lib library.Library, db *database.Database, delta Delta, progress ProgressFunc) (*Result, error) {
	start := time.Now()
	log := logging.WithLibrary(lib.ID)

	delta = normalizeDelta(delta)
	log.Debugf("Applying delta: %d upserts, %d removals, %d removed directories",
		len(delta.Upserts), len(delta.Removed), len(delta.RemovedDirs))

	gen, err := s.generator(lib)
	if err != nil {
		return nil, err
	}

	files := make([]candidate, 0, len(delta.Upserts))
	for _, rel := range delta.Upserts {
		if s.matcher.Ignored(rel, false) {
			continue
		}
		files = append(files, candidate{rel: rel, abs: filepath.Join(lib.Path, filepath.FromSlash(rel))})
	}

	t := newTracker(KindIncremental, len(files), s.cfg.ProgressInterval, progress)
	t.report(true)

	run := &batchRun{
		scanner:   s,
		db:        db,
		gen:       gen,
		tracker:   t,
		indexedAt: start,
		previous: func(ctx context.Context, rel string) (database.FileState, bool, error) {
			img, err := db.GetImage(ctx, rel)
			if errors.Is(err, database.ErrNotFound) {
				return database.FileState{}, false, nil
			}
			if err != nil {
				return database.FileState{}, false, err
			}
			st := database.FileState{Size: img.Size, Width: img.Width, Height: img.Height, ModifiedAt: img.ModifiedAt}
			if img.ThumbnailPath != nil {
				st.ThumbnailPath = *img.ThumbnailPath
			}
			return st, true, nil
		},
	}
	if err := run.run(ctx, files); err != nil {
		return nil, err
	}

	var removed int64
	touched := make(map[string]bool)

	for _, rel := range append(delta.Removed, run.missing...) {
		if err := db.DeleteByPath(ctx, rel); err != nil {
			return nil, err
		}
		removed++
		for _, f := range ancestors(folderOf(rel)) {
			touched[f] = true
		}
	}
	for _, dir := range delta.RemovedDirs {
		n, err := db.DeleteByFolderPrefix(ctx, dir)
		if err != nil {
			return nil, err
		}
		removed += n
		for _, f := range ancestors(folderOf(dir)) {
			touched[f] = true
		}
	}

	added := make(map[string]bool)
	for _, c := range files {
		for _, f := range ancestors(folderOf(c.rel)) {
			added[f] = true
		}
	}
	if err := db.UpsertFolders(ctx, sortedKeys(added), start); err != nil {
		return nil, err
	}
	if err := db.RecomputeFolderCounts(ctx, sortedKeys(touched)); err != nil {
		return nil, err
	}
	if err := db.SetLastScan(ctx, KindIncremental, start); err != nil {
		return nil, err
	}

	res := s.result(KindIncremental, t, run)
	res.Removed = removed
	res.Folders = len(added)
	res.Duration = time.Since(start)
	log.Debugf("Delta applied: %d indexed, %d removed in %v", res.Indexed, res.Removed, res.Duration)
	return res, nil
}

// DetectChanges compares the library on disk with its index and returns
// the delta that would bring the index up to date.
func (s *Scanner) DetectChanges(ctx context.Context, lib library.Library, db *database.Database) (Delta, error) {
	state, err := db.IndexedState(ctx)
	if err != nil {
		return Delta{}, err
	}
	walked, err := s.walk(ctx, lib)
	if err != nil {
		return Delta{}, err
	}

	var delta Delta
	seen := make(map[string]bool, len(walked.files))
	for _, c := range walked.files {
		seen[c.rel] = true
		prev, ok := state[c.rel]
		if !ok {
			delta.Upserts = append(delta.Upserts, c.rel)
			continue
		}
		info, err := filesystem.StatWithRetry(c.abs, s.retry)
		if err != nil {
			continue
		}
		if info.Size() != prev.Size || !info.ModTime().Equal(prev.ModifiedAt) {
			delta.Upserts = append(delta.Upserts, c.rel)
		}
	}

	onDisk := make(map[string]bool, len(walked.folders))
	for _, f := range walked.folders {
		onDisk[f] = true
	}
	folders, err := db.ListFolders(ctx)
	if err != nil {
		return Delta{}, err
	}
	for _, f := range folders {
		if f.Path != "" && !onDisk[f.Path] && onDisk[folderOf(f.Path)] {
			delta.RemovedDirs = append(delta.RemovedDirs, f.Path)
		}
	}

	for rel := range state {
		if !seen[rel] && !underAny(rel, delta.RemovedDirs) {
			delta.Removed = append(delta.Removed, rel)
		}
	}

	return normalizeDelta(delta), nil
}

// SweepOrphans removes thumbnail artifacts that no indexed image references.
func (s *Scanner) SweepOrphans(ctx context.Context, lib library.Library, db *database.Database) (int, error) {
	gen, err := s.generator(lib)
	if err != nil {
		return 0, err
	}
	return s.sweepOrphans(ctx, db, gen)
}

func (s *Scanner) sweepOrphans(ctx context.Context, db *database.Database, gen *media.Generator) (int, error) {
	known, err := db.ThumbnailPaths(ctx)
	if err != nil {
		return 0, err
	}
	orphans, err := media.FindOrphans(gen.Root(), known)
	if err != nil {
		return 0, err
	}
	n, err := media.RemoveArtifacts(gen.Root(), orphans)
	if n > 0 {
		logging.Info("Removed %d orphaned thumbnails from %s", n, gen.Root())
	}
	return n, err
}

func (s *Scanner) result(kind string, t *tracker, run *batchRun) *Result {
	p := t.snapshot()
	return &Result{
		Kind:           kind,
		Total:          p.Total,
		Processed:      p.Processed,
		Indexed:        run.indexed,
		Generated:      run.generated,
		Skipped:        run.reused,
		Failed:         p.Failed,
		FailureSamples: t.samples(),
	}
}

// normalizeDelta cleans and deduplicates paths. A path both upserted and
// removed is treated as upserted; the file is stat-ed before indexing.
func normalizeDelta(d Delta) Delta {
	clean := func(p string) string {
		p = path.Clean(filepath.ToSlash(p))
		if p == "." || p == "/" {
			return ""
		}
		return trimSlash(p)
	}

	var out Delta
	ups := make(map[string]bool)
	for _, p := range d.Upserts {
		if p = clean(p); p != "" && !ups[p] {
			ups[p] = true
			out.Upserts = append(out.Upserts, p)
		}
	}
	rem := make(map[string]bool)
	for _, p := range d.Removed {
		if p = clean(p); p != "" && !ups[p] && !rem[p] {
			rem[p] = true
			out.Removed = append(out.Removed, p)
		}
	}
	dirs := make(map[string]bool)
	for _, p := range d.RemovedDirs {
		if p = clean(p); p != "" && !dirs[p] {
			dirs[p] = true
			out.RemovedDirs = append(out.RemovedDirs, p)
		}
	}
	sort.Strings(out.Upserts)
	sort.Strings(out.Removed)
	sort.Strings(out.RemovedDirs)
	return out
}

func trimSlash(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p
}

func underAny(rel string, dirs []string) bool {
	for _, d := range dirs {
		if len(rel) > len(d) && rel[:len(d)] == d && rel[len(d)] == '/' {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
