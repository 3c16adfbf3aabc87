package catalog

import (
	"context"
	"encoding/json"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"library-indexer/internal/cache"
	"library-indexer/internal/database"
	"library-indexer/internal/events"
	"library-indexer/internal/library"
	"library-indexer/internal/logging"
	"library-indexer/internal/mediatypes"
	"library-indexer/internal/metrics"
)

// CacheName is the name of the search cache in cleanup reports.
const CacheName = "search"

// DefaultCacheSize is the number of search pages cached.
const DefaultCacheSize = 256

// Resolver maps library ids to libraries. *library.Registry implements it.
type Resolver interface {
	Get(id string) (library.Library, error)
}

// Store lends library databases. *pool.Pool implements it.
type Store interface {
	With(ctx context.Context, libraryID string, fn func(db *database.Database) error) error
}

// Service answers queries for every library.
type Service struct {
	libs  Resolver
	store Store
	pages *cache.LRU[string, *database.SearchResult]

	mu    sync.RWMutex
	stats map[string]database.Stats
	// gen counts invalidations per library. A page is cached only if no
	// invalidation happened while it was being read.
	gen map[string]uint64

	sub  *events.Subscription
	done chan struct{}
}

// New creates a service caching up to cacheSize search pages.
func New(libs Resolver, store Store, cacheSize int) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	pages, err := cache.New[string, *database.SearchResult](CacheName, cacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{
		libs:  libs,
		store: store,
		pages: pages,
		stats: make(map[string]database.Stats),
		gen:   make(map[string]uint64),
	}, nil
}

// Cache returns the search page cache.
func (s *Service) Cache() *cache.LRU[string, *database.SearchResult] { return s.pages }

// Search runs a search. Results are shared with the cache and must not be
// modified.
func (s *Service) Search(ctx context.Context, libraryID string, filters database.Filters, page database.Pagination) (*database.SearchResult, error) {
	if _, err := s.libs.Get(libraryID); err != nil {
		return nil, err
	}

	key, err := cacheKey(libraryID, filters, page)
	if err != nil {
		return nil, err
	}
	if res, ok := s.pages.Get(key); ok {
		return res, nil
	}

	s.mu.RLock()
	gen := s.gen[libraryID]
	s.mu.RUnlock()

	var res *database.SearchResult
	err = s.store.With(ctx, libraryID, func(db *database.Database) error {
		var err error
		res, err = db.Search(ctx, filters, page)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.gen[libraryID] == gen {
		s.pages.Add(key, res)
	}
	s.mu.Unlock()
	return res, nil
}

// GetImage returns one indexed image.
func (s *Service) GetImage(ctx context.Context, libraryID, rel string) (*database.Image, error) {
	if _, err := s.libs.Get(libraryID); err != nil {
		return nil, err
	}
	var img *database.Image
	err := s.store.With(ctx, libraryID, func(db *database.Database) error {
		var err error
		img, err = db.GetImage(ctx, rel)
		return err
	})
	return img, err
}

// Folders lists the folder rows of a library.
func (s *Service) Folders(ctx context.Context, libraryID string) ([]database.Folder, error) {
	if _, err := s.libs.Get(libraryID); err != nil {
		return nil, err
	}
	var folders []database.Folder
	err := s.store.With(ctx, libraryID, func(db *database.Database) error {
		var err error
		folders, err = db.ListFolders(ctx)
		return err
	})
	return folders, err
}

// InsertBatch upserts images supplied by a caller and refreshes the counts
// of their folders. Paths are validated before the database is touched.
func (s *Service) InsertBatch(ctx context.Context, libraryID string, images []database.Image) error {
	if _, err := s.libs.Get(libraryID); err != nil {
		return err
	}
	if len(images) == 0 {
		return library.Invalid("images", "batch is empty")
	}

	now := time.Now()
	folders := make(map[string]bool)
	for i := range images {
		img := &images[i]
		rel, err := cleanRel(img.Path)
		if err != nil {
			return err
		}
		img.Path = rel
		img.Filename = path.Base(rel)
		img.Folder = folderOf(rel)
		if img.Format == "" {
			img.Format = mediatypes.Format(rel)
		}
		if img.FileType == "" {
			img.FileType = mediatypes.GetFileType(strings.ToLower(path.Ext(rel)))
		}
		if img.IndexedAt.IsZero() {
			img.IndexedAt = now
		}
		for f := img.Folder; ; f = folderOf(f) {
			folders[f] = true
			if f == "" {
				break
			}
		}
	}

	paths := make([]string, 0, len(folders))
	for f := range folders {
		paths = append(paths, f)
	}
	sort.Strings(paths)

	err := s.store.With(ctx, libraryID, func(db *database.Database) error {
		if err := db.UpsertBatch(ctx, images); err != nil {
			return err
		}
		return db.UpsertFolders(ctx, paths, now)
	})
	if err != nil {
		return err
	}
	s.Invalidate(libraryID)
	return nil
}

// Invalidate drops every cached page of a library and returns how many
// were dropped. Searches already reading the database when it is called
// do not cache their pages.
func (s *Service) Invalidate(libraryID string) int {
	prefix := libraryID + "\x00"
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen[libraryID]++
	return s.pages.RemoveWhere(func(k string) bool { return strings.HasPrefix(k, prefix) })
}

// Watch invalidates a library's pages whenever one of its scans ends.
// A failed scan may have committed some batches, so it invalidates too.
// Statistics are refreshed only after completed scans. Watch returns
// immediately.
func (s *Service) Watch(bus *events.Bus) {
	s.sub = bus.Subscribe(64, events.OfType(events.ScanCompleted, events.ScanFailed))
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		for ev := range s.sub.C {
			n := s.Invalidate(ev.LibraryID)
			logging.Debug("Dropped %d cached search pages of %s after %s", n, ev.LibraryID, ev.Type)
			if ev.Type == events.ScanCompleted {
				s.refreshStats(ev.LibraryID)
			}
		}
	}()
}

// Close stops watching.
func (s *Service) Close() {
	if s.sub == nil {
		return
	}
	s.sub.Cancel()
	<-s.done
}

func (s *Service) refreshStats(libraryID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.store.With(ctx, libraryID, func(db *database.Database) error {
		st, err := db.Stats(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.stats[libraryID] = st
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		logging.Warn("Failed to refresh statistics of %s: %v", libraryID, err)
	}
}

// LibraryStats reports the statistics recorded after the last completed
// scan of each library. It never opens a database.
func (s *Service) LibraryStats() []metrics.LibraryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]metrics.LibraryStats, 0, len(s.stats))
	for id, st := range s.stats {
		out = append(out, metrics.LibraryStats{LibraryID: id, Images: st.Images, ThumbnailBytes: st.ThumbnailBytes})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LibraryID < out[j].LibraryID })
	return out
}

func cacheKey(libraryID string, filters database.Filters, page database.Pagination) (string, error) {
	b, err := json.Marshal(struct {
		F database.Filters
		P database.Pagination
	}{filters, page})
	if err != nil {
		return "", err
	}
	return libraryID + "\x00" + string(b), nil
}

func cleanRel(p string) (string, error) {
	if p == "" {
		return "", library.Invalid("path", "must not be empty")
	}
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return "", library.Invalid("path", "%q must be relative to the library root", p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", library.Invalid("path", "%q is outside the library", p)
	}
	return clean, nil
}

func folderOf(rel string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return ""
	}
	return dir
}
