package media

import (
	"bytes"
	"image"
	"io"

	"library-indexer/internal/filesystem"
	"library-indexer/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // BMP format support
	_ "golang.org/x/image/tiff" // TIFF format support
	_ "golang.org/x/image/webp" // WebP format support
)

// ImageDimensions holds image width and height
type ImageDimensions struct {
	Width  int
	Height int
}

// GetImageDimensions returns image dimensions without fully decoding the
// image. Formats without a Go decoder are probed with libvips when it is
// available.
func GetImageDimensions(path string) (*ImageDimensions, error) {
	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err == nil {
		return &ImageDimensions{Width: config.Width, Height: config.Height}, nil
	}

	if IsVipsAvailable() {
		if w, h, verr := vipsDimensions(path); verr == nil {
			return &ImageDimensions{Width: w, Height: h}, nil
		}
	}
	return nil, err
}

// imagingThumbnail is the pure-Go backend. It decodes r, downscales to height
// and encodes JPEG (or PNG when asked). Width and height of the source are
// returned alongside the encoded bytes.
func imagingThumbnail(r io.Reader, height int, format string, quality int) ([]byte, int, int, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, err
	}

	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcH > height {
		img = imaging.Resize(img, 0, height, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if format == "png" {
		err = imaging.Encode(&buf, img, imaging.PNG)
	} else {
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	}
	if err != nil {
		return nil, srcW, srcH, err
	}
	return buf.Bytes(), srcW, srcH, nil
}
