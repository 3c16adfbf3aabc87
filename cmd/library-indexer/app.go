package main

import (
	"context"
	"fmt"
	"time"

	"library-indexer/internal/catalog"
	"library-indexer/internal/cleanup"
	"library-indexer/internal/coordinator"
	"library-indexer/internal/events"
	"library-indexer/internal/filesystem"
	"library-indexer/internal/indexer"
	"library-indexer/internal/library"
	"library-indexer/internal/logging"
	"library-indexer/internal/media"
	"library-indexer/internal/memory"
	"library-indexer/internal/metrics"
	"library-indexer/internal/pool"
	"library-indexer/internal/startup"
	"library-indexer/internal/watcher"
)

// app holds every long-lived component. Commands build one with newApp and
// release it with close.
type app struct {
	cfg       *startup.Config
	libs      *library.Registry
	bus       *events.Bus
	pool      *pool.Pool
	scanner   *indexer.Scanner
	coord     *coordinator.Coordinator
	catalog   *catalog.Service
	watchers  *watcher.Manager
	monitor   *memory.Monitor
	cleanup   *cleanup.Manager
	collector *metrics.Collector

	cancelWatch context.CancelFunc
	watchDone   chan struct{}
}

func newApp(cfg *startup.Config) (*app, error) {
	libs, err := library.LoadFile(cfg.LibrariesFile)
	if err != nil {
		return nil, err
	}
	if err := startup.CheckLibraries(libs.List()); err != nil {
		logging.Warn("Some libraries are not usable: %v", err)
	}

	if err := media.InitVips(); err != nil {
		logging.Warn("libvips unavailable, using the pure Go thumbnail backend: %v", err)
	}

	a := &app{cfg: cfg, libs: libs, bus: events.NewBus()}

	a.monitor = memory.NewMonitor(memory.DefaultConfig())
	ixCfg := cfg.Indexer
	ixCfg.Backpressure = a.monitor

	a.pool = pool.New(libs, cfg.Pool)
	a.scanner = indexer.New(ixCfg, nil)
	a.coord = coordinator.New(cfg.Coordinator, libs, a.pool, a.scanner, a.bus)

	a.catalog, err = catalog.New(libs, a.pool, cfg.SearchCacheSize)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create search cache: %w", err)
	}
	a.catalog.Watch(a.bus)

	a.cleanup = cleanup.New(cfg.Cleanup, a.pool.CloseAll)
	a.cleanup.Register(catalog.CacheName, a.catalog.Cache())

	a.monitor.OnCritical(func(usage float64) {
		a.cleanup.RunEmergency(fmt.Sprintf("heap at %.0f%% of limit", usage*100))
	})
	a.monitor.OnRecover(func(usage float64) {
		logging.Info("Memory recovered to %.0f%% of limit, scans resume", usage*100)
	})

	return a, nil
}

// startBackground starts the monitor, routine cleanup, metric collection
// and, when enabled, a watcher for every library.
func (a *app) startBackground() {
	a.monitor.Start()
	a.cleanup.Start()

	if a.cfg.MetricsEnabled {
		metrics.InitializeMetrics()
		info := startup.GetBuildInfo()
		metrics.SetAppInfo(info.Version, info.Commit, info.GoVersion)
		filesystem.SetObserver(metrics.NewFilesystemObserver())
		a.collector = metrics.NewCollector(a.catalog, 30*time.Second)
		a.collector.Start()
	}

	a.watchers = watcher.NewManager(a.libs, watcher.Config{Ignore: a.cfg.Indexer.Ignore})
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelWatch = cancel
	a.watchDone = make(chan struct{})
	go func() {
		defer close(a.watchDone)
		a.coord.RunWatchLoop(ctx, a.watchers)
	}()

	if !a.cfg.WatchOnStart {
		return
	}
	for _, lib := range a.libs.List() {
		if _, err := a.watchers.Start(lib.ID); err != nil {
			logging.Warn("Failed to watch library %s: %v", lib.ID, err)
		}
	}
}

// close stops components in reverse dependency order. Running scans are
// failed with coordinator.ErrClosed. libvips stays up until main exits.
func (a *app) close() {
	if a.watchers != nil {
		a.watchers.Close()
		a.cancelWatch()
		<-a.watchDone
	}
	// Stopping the monitor first releases scans paused on memory pressure.
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.coord != nil {
		a.coord.Close()
	}
	if a.collector != nil {
		a.collector.Stop()
	}
	if a.cleanup != nil {
		a.cleanup.Stop()
	}
	if a.catalog != nil {
		a.catalog.Close()
	}
	if a.pool != nil {
		if err := a.pool.Shutdown(); err != nil {
			logging.Warn("Pool shutdown: %v", err)
		}
	}
	a.bus.Close()
}
