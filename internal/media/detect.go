package media

import (
	"bytes"
	"io"

	"library-indexer/internal/filesystem"
)

// detectFileType sniffs the magic bytes of a file. It is only used to make
// decode errors more useful; the extension decides what gets indexed.
func detectFileType(filePath string) (string, error) {
	file, err := filesystem.OpenWithRetry(filePath, filesystem.DefaultRetryConfig())
	if err != nil {
		return "unknown", err
	}
	defer file.Close()

	header := make([]byte, 32)
	n, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		if n == 0 {
			return "empty", nil
		}
		return "unknown", err
	}
	return sniff(header[:n]), nil
}

func sniff(header []byte) string {
	switch {
	case bytes.HasPrefix(header, []byte{0xFF, 0xD8, 0xFF}):
		return "jpeg"
	case bytes.HasPrefix(header, []byte{0x89, 'P', 'N', 'G'}):
		return "png"
	case bytes.HasPrefix(header, []byte("GIF8")):
		return "gif"
	case len(header) >= 12 && bytes.Equal(header[0:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")):
		return "webp"
	case bytes.HasPrefix(header, []byte("BM")):
		return "bmp"
	case bytes.HasPrefix(header, []byte{'I', 'I', 0x2A, 0x00}), bytes.HasPrefix(header, []byte{'M', 'M', 0x00, 0x2A}):
		return "tiff"
	case len(header) >= 12 && bytes.Equal(header[4:8], []byte("ftyp")):
		switch string(header[8:12]) {
		case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
			return "heif"
		case "avif", "avis":
			return "avif"
		}
		return "mp4-container"
	case bytes.HasPrefix(header, []byte{0xFF, 0x0A}):
		return "jxl"
	case bytes.HasPrefix(header, []byte("<?xml")), bytes.HasPrefix(header, []byte("<svg")):
		return "svg"
	}
	return "unknown"
}
