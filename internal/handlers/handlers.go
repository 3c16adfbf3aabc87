package handlers

import (
	"context"
	"time"

	"library-indexer/internal/cleanup"
	"library-indexer/internal/coordinator"
	"library-indexer/internal/database"
	"library-indexer/internal/library"
	"library-indexer/internal/pool"
	"library-indexer/internal/streaming"
	"library-indexer/internal/watcher"
)

// Libraries resolves and lists libraries. *library.Registry implements it.
type Libraries interface {
	Get(id string) (library.Library, error)
	List() []library.Library
}

// Scans starts and reports scan sessions. *coordinator.Coordinator
// implements it.
type Scans interface {
	FullScan(ctx context.Context, libraryID string, wait bool) (coordinator.Session, error)
	IncrementalSync(ctx context.Context, libraryID string, wait bool) (coordinator.Session, error)
	Status(libraryID string) coordinator.Session
	ActiveStates() []coordinator.Session
	Pending(libraryID string) int
}

// Catalog answers queries. *catalog.Service implements it.
type Catalog interface {
	Search(ctx context.Context, libraryID string, filters database.Filters, page database.Pagination) (*database.SearchResult, error)
	InsertBatch(ctx context.Context, libraryID string, images []database.Image) error
	GetImage(ctx context.Context, libraryID, rel string) (*database.Image, error)
	Folders(ctx context.Context, libraryID string) ([]database.Folder, error)
}

// Watchers controls file watchers. *watcher.Manager implements it.
type Watchers interface {
	Start(libraryID string) (watcher.Status, error)
	Stop(libraryID string)
	Status(libraryID string) watcher.Status
	List() []watcher.Status
}

// Cleaner runs cleanup cycles. *cleanup.Manager implements it.
type Cleaner interface {
	RunRoutine() cleanup.Report
	RunEmergency(reason string) cleanup.Report
}

// PoolStats reports the connection pool. *pool.Pool implements it.
type PoolStats interface {
	Stats() pool.Stats
}

// Pressure reports whether scans are paused for memory. *memory.Monitor
// implements it.
type Pressure interface {
	IsPaused() bool
}

// Deps are the components the API exposes. Pool and Memory are optional.
type Deps struct {
	Libraries Libraries
	Scans     Scans
	Catalog   Catalog
	Watchers  Watchers
	Cleanup   Cleaner
	Pool      PoolStats
	Memory    Pressure
}

// Handlers serves the HTTP API.
type Handlers struct {
	Deps
	startedAt time.Time
	streaming streaming.Config
}

// New creates the handlers.
func New(deps Deps) *Handlers {
	return &Handlers{Deps: deps, startedAt: time.Now(), streaming: streaming.DefaultConfig()}
}
