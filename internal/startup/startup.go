package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"library-indexer/internal/cleanup"
	"library-indexer/internal/coordinator"
	"library-indexer/internal/database"
	"library-indexer/internal/indexer"
	"library-indexer/internal/library"
	"library-indexer/internal/logging"
	"library-indexer/internal/memory"
	"library-indexer/internal/pool"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	LibrariesFile   string
	Port            string
	MetricsEnabled  bool
	LogHealthChecks bool
	WatchOnStart    bool
	SearchCacheSize int

	Indexer     indexer.Config
	Pool        pool.Config
	Coordinator coordinator.Config
	Cleanup     cleanup.Config
}

var thumbnailFormats = map[string]bool{"webp": true, "jpg": true, "png": true}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	cfg := &Config{
		LibrariesFile:   getEnv("LIBRARIES_FILE", "/config/libraries.yaml"),
		Port:            getEnv("PORT", "8080"),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		LogHealthChecks: getEnvBool("LOG_HEALTH_CHECKS", false),
		WatchOnStart:    getEnvBool("WATCH_ON_START", true),
		SearchCacheSize: getEnvInt("SEARCH_CACHE_SIZE", 256),
		Indexer:         indexer.DefaultConfig(),
		Pool:            pool.DefaultConfig(),
		Coordinator:     coordinator.DefaultConfig(),
		Cleanup:         cleanup.DefaultConfig(),
	}

	ix := &cfg.Indexer
	ix.Concurrency = getEnvInt("SCAN_CONCURRENCY", ix.Concurrency)
	ix.BatchSize = getEnvInt("SCAN_BATCH_SIZE", ix.BatchSize)
	ix.SweepOrphans = getEnvBool("SCAN_SWEEP_ORPHANS", true)
	if patterns := getEnv("SCAN_IGNORE", ""); patterns != "" {
		ix.Ignore = splitList(patterns)
	}
	ix.Thumbnail.Height = getEnvInt("THUMBNAIL_HEIGHT", ix.Thumbnail.Height)
	ix.Thumbnail.Quality = getEnvInt("THUMBNAIL_QUALITY", ix.Thumbnail.Quality)
	ix.Thumbnail.Effort = getEnvInt("THUMBNAIL_EFFORT", ix.Thumbnail.Effort)
	ix.Thumbnail.Format = strings.ToLower(getEnv("THUMBNAIL_FORMAT", ix.Thumbnail.Format))

	p := &cfg.Pool
	p.MaxOpen = getEnvInt("POOL_MAX_OPEN", p.MaxOpen)
	p.IdleTimeout = getEnvDuration("POOL_IDLE_TIMEOUT", p.IdleTimeout)
	policy, err := pool.ParsePolicy(getEnv("POOL_EXHAUSTION_POLICY", string(p.Policy)))
	if err != nil {
		return nil, err
	}
	p.Policy = policy
	p.StoreOptions = loadStoreOptions(p.StoreOptions)

	cfg.Coordinator.SyncDelay = getEnvDuration("SYNC_DELAY", cfg.Coordinator.SyncDelay)
	cfg.Coordinator.Workers = getEnvInt("SCAN_WORKERS", cfg.Coordinator.Workers)
	cfg.Cleanup.Interval = getEnvDuration("CLEANUP_INTERVAL", cfg.Cleanup.Interval)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Info("  LIBRARIES_FILE:          %s", cfg.LibrariesFile)
	logging.Info("  PORT:                    %s", cfg.Port)
	logging.Info("  METRICS_ENABLED:         %v", cfg.MetricsEnabled)
	logging.Info("  WATCH_ON_START:          %v", cfg.WatchOnStart)
	logging.Info("  SCAN_CONCURRENCY:        %d", ix.Concurrency)
	logging.Info("  SCAN_BATCH_SIZE:         %d", ix.BatchSize)
	logging.Info("  SCAN_WORKERS:            %d", cfg.Coordinator.Workers)
	logging.Info("  THUMBNAIL:               %s, height %d, quality %d, effort %d",
		ix.Thumbnail.Format, ix.Thumbnail.Height, ix.Thumbnail.Quality, ix.Thumbnail.Effort)
	logging.Info("  POOL_MAX_OPEN:           %d", p.MaxOpen)
	logging.Info("  POOL_IDLE_TIMEOUT:       %v", p.IdleTimeout)
	logging.Info("  POOL_EXHAUSTION_POLICY:  %s", p.Policy)
	logging.Info("  SYNC_DELAY:              %v", cfg.Coordinator.SyncDelay)
	logging.Info("  CLEANUP_INTERVAL:        %v", cfg.Cleanup.Interval)
	logging.Info("  DB:                      journal=%s synchronous=%s cache=%d busy=%v mmap=%d",
		p.StoreOptions.JournalMode, p.StoreOptions.Synchronous, p.StoreOptions.CacheSize,
		p.StoreOptions.BusyTimeout, p.StoreOptions.MMapSize)
	logging.Info("  LOG_LEVEL:               %s", logging.GetLevel())

	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if !thumbnailFormats[c.Indexer.Thumbnail.Format] {
		return library.Invalid("THUMBNAIL_FORMAT", "unsupported format %q", c.Indexer.Thumbnail.Format)
	}
	if c.Indexer.Thumbnail.Height <= 0 {
		return library.Invalid("THUMBNAIL_HEIGHT", "must be positive, got %d", c.Indexer.Thumbnail.Height)
	}
	if q := c.Indexer.Thumbnail.Quality; q < 1 || q > 100 {
		return library.Invalid("THUMBNAIL_QUALITY", "must be 1-100, got %d", q)
	}
	if e := c.Indexer.Thumbnail.Effort; e < 0 || e > 6 {
		return library.Invalid("THUMBNAIL_EFFORT", "must be 0-6, got %d", e)
	}
	if c.Pool.MaxOpen <= 0 {
		return library.Invalid("POOL_MAX_OPEN", "must be positive, got %d", c.Pool.MaxOpen)
	}
	return nil
}

func loadStoreOptions(o database.Options) database.Options {
	o.JournalMode = strings.ToUpper(getEnv("DB_JOURNAL_MODE", o.JournalMode))
	o.Synchronous = strings.ToUpper(getEnv("DB_SYNCHRONOUS", o.Synchronous))
	o.CacheSize = getEnvInt("DB_CACHE_SIZE", o.CacheSize)
	o.BusyTimeout = getEnvDuration("DB_BUSY_TIMEOUT", o.BusyTimeout)
	o.MMapSize = int64(getEnvInt("DB_MMAP_SIZE", int(o.MMapSize)))
	return o
}

// CheckLibraries verifies that every library can hold its metadata
// directory. Problems are logged and returned joined.
func CheckLibraries(libs []library.Library) error {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("LIBRARIES (%d)", len(libs))
	logging.Info("------------------------------------------------------------")

	var errs []error
	for _, lib := range libs {
		logging.Info("  %-16s %s", lib.ID, lib.Path)
		if err := ensureDirectory(lib.MetaDir()); err != nil {
			logging.Warn("    metadata directory unusable: %v", err)
			errs = append(errs, fmt.Errorf("library %s: %w", lib.ID, err))
			continue
		}
		if err := testWriteAccess(lib.MetaDir()); err != nil {
			logging.Warn("    metadata directory is not writable: %v", err)
			errs = append(errs, fmt.Errorf("library %s: %w", lib.ID, err))
			continue
		}
		logging.Debug("    [OK] %s", lib.MetaDir())
	}
	return errors.Join(errs...)
}

// LogMemoryConfig logs the outcome of memory.ConfigureFromEnv.
func LogMemoryConfig(res memory.ConfigResult) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY")
	logging.Info("------------------------------------------------------------")
	if !res.Configured {
		logging.Info("  GOMEMLIMIT:      not configured (set MEMORY_LIMIT or GOMEMLIMIT)")
		return
	}
	logging.Info("  GOMEMLIMIT:      %s (source %s)", memory.FormatBytes(res.GoMemLimit), res.Source)
	if res.ContainerLimit > 0 {
		logging.Info("  Container limit: %s, ratio %.2f", memory.FormatBytes(res.ContainerLimit), res.Ratio)
	}
}

// LogComponentInit logs that a component is ready.
func LogComponentInit(name string, duration time.Duration) {
	logging.Info("  [OK] %s initialized in %v", name, duration)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs the registered routes at debug level, grouped by prefix.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}
		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}
		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group == "" {
				group = "root"
			}
			logging.Debug("  [%s]", group)
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")
	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	Libraries       int
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("  Libraries:       %d", config.Libraries)
	logging.Info("  API:             http://0.0.0.0:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("  Metrics:         http://0.0.0.0:%s/metrics", config.Port)
	} else {
		logging.Info("  Metrics:         DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// PrintBanner prints the banner, build details and host information.
func PrintBanner() {
	banner := `
------------------------------------------------------------
    __    _ __                              ____          __
   / /   (_) /_  _________ ________  __    /  _/___  ____/ /__  _  __
  / /   / / __ \/ ___/ __ '/ ___/ / / /    / // __ \/ __  / _ \| |/_/
 / /___/ / /_/ / /  / /_/ / /  / /_/ /   _/ // / / / /_/ /  __/>  <
/_____/_/_.___/_/   \__,_/_/   \__, /   /___/_/ /_/\__,_/\___/_/|_|
                              /____/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
	logSystemInfo()
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}
	logging.Info("")
}

func ensureDirectory(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists but is not a directory", path)
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
