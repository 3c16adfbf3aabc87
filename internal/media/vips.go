package media

import (
	"fmt"
	"io"
	"sync"

	"library-indexer/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// InitVips initializes the libvips library
// This should be called once at startup
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	// Configure vips logging BEFORE Startup() to respect LOG_LEVEL
	var vipsLogLevel vips.LogLevel
	switch logging.GetLevel() {
	case logging.LevelDebug:
		vipsLogLevel = vips.LogLevelInfo
	case logging.LevelWarn:
		vipsLogLevel = vips.LogLevelError
	case logging.LevelError:
		vipsLogLevel = vips.LogLevelCritical
	default:
		vipsLogLevel = vips.LogLevelWarning
	}

	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		switch level {
		case vips.LogLevelError, vips.LogLevelCritical:
			logging.Error("[%s] %s", domain, msg)
		case vips.LogLevelWarning:
			logging.Warn("[%s] %s", domain, msg)
		default:
			logging.Debug("[%s] %s", domain, msg)
		}
	}, vipsLogLevel)

	// Start vips with conservative memory settings
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,                // Process one image at a time to control memory
		MaxCacheMem:      50 * 1024 * 1024, // 50MB cache
		MaxCacheSize:     100,              // Max 100 operations cached
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// ShutdownVips cleans up libvips resources
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// vipsThumbnail decodes r with libvips, shrinks it to height and encodes it
// in format. The returned width and height are those of the source image.
func vipsThumbnail(r io.Reader, height int, format string, quality, effort int) ([]byte, int, int, error) {
	ref, err := vips.NewImageFromReader(r)
	if err != nil {
		return nil, 0, 0, err
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, 0, 0, err
	}

	srcW, srcH := ref.Width(), ref.Height()
	if srcH > height {
		targetW := srcW * height / srcH
		if targetW < 1 {
			targetW = 1
		}
		if err := ref.Thumbnail(targetW, height, vips.InterestingNone); err != nil {
			return nil, srcW, srcH, fmt.Errorf("vips resize failed: %w", err)
		}
	}

	var buf []byte
	switch format {
	case "webp":
		buf, _, err = ref.ExportWebp(&vips.WebpExportParams{
			Quality:         quality,
			ReductionEffort: effort,
			StripMetadata:   true,
		})
	case "png":
		buf, _, err = ref.ExportPng(&vips.PngExportParams{
			Compression:   6,
			StripMetadata: true,
		})
	default:
		buf, _, err = ref.ExportJpeg(&vips.JpegExportParams{
			Quality:        quality,
			StripMetadata:  true,
			OptimizeCoding: true,
		})
	}
	if err != nil {
		return nil, srcW, srcH, fmt.Errorf("vips export failed: %w", err)
	}
	return buf, srcW, srcH, nil
}

// vipsDimensions reads the image header with libvips. libvips loads lazily,
// so this does not decode pixel data.
func vipsDimensions(path string) (int, int, error) {
	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return 0, 0, err
	}
	defer ref.Close()
	return ref.Width(), ref.Height(), nil
}
