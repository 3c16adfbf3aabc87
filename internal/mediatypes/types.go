package mediatypes

import (
	"path/filepath"
	"strings"
)

// FileType classifies an image file.
type FileType string

const (
	// FileTypeRaster is a regular bitmap image (jpg, png, webp, ...).
	FileTypeRaster FileType = "raster"
	// FileTypeAnimated is a format that commonly carries several frames.
	FileTypeAnimated FileType = "animated"
	// FileTypeVector is a vector image.
	FileTypeVector FileType = "vector"
	// FileTypeRaw is a camera raw file.
	FileTypeRaw FileType = "raw"
	// FileTypeOther represents an unknown or unsupported file type.
	FileTypeOther FileType = "other"
)

// SortField specifies which field to sort by.
type SortField string

// SortOrder specifies the direction of sorting.
type SortOrder string

const (
	// SortByName sorts results by filename.
	SortByName SortField = "name"
	// SortByDate sorts results by modification time.
	SortByDate SortField = "date"
	// SortBySize sorts results by file size.
	SortBySize SortField = "size"
	// SortByPath sorts results by library-relative path.
	SortByPath SortField = "path"

	// SortAsc sorts in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts in descending order.
	SortDesc SortOrder = "desc"
)

// ImageExtensions maps supported image extensions to their class.
var ImageExtensions = map[string]FileType{
	".jpg":  FileTypeRaster,
	".jpeg": FileTypeRaster,
	".png":  FileTypeRaster,
	".bmp":  FileTypeRaster,
	".webp": FileTypeRaster,
	".tiff": FileTypeRaster,
	".tif":  FileTypeRaster,
	".heic": FileTypeRaster,
	".heif": FileTypeRaster,
	".avif": FileTypeRaster,
	".gif":  FileTypeAnimated,
	".svg":  FileTypeVector,
	".dng":  FileTypeRaw,
	".cr2":  FileTypeRaw,
	".nef":  FileTypeRaw,
	".arw":  FileTypeRaw,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
	".dng":  "image/x-adobe-dng",
	".cr2":  "image/x-canon-cr2",
	".nef":  "image/x-nikon-nef",
	".arw":  "image/x-sony-arw",
}

// GetFileType returns the FileType for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
// Returns FileTypeOther if the extension is not recognized.
func GetFileType(ext string) FileType {
	if ft, ok := ImageExtensions[ext]; ok {
		return ft
	}
	return FileTypeOther
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsImage reports whether the file name has a supported image extension.
func IsImage(name string) bool {
	_, ok := ImageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Format returns the lowercase extension of name without the dot, which is
// what the index stores as the image format.
func Format(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}
