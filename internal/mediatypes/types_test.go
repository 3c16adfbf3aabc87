package mediatypes

import (
	"testing"
)

func TestGetFileType(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		want FileType
	}{
		{name: "JPEG image", ext: ".jpg", want: FileTypeRaster},
		{name: "PNG image", ext: ".png", want: FileTypeRaster},
		{name: "GIF is animated", ext: ".gif", want: FileTypeAnimated},
		{name: "SVG is vector", ext: ".svg", want: FileTypeVector},
		{name: "DNG is raw", ext: ".dng", want: FileTypeRaw},
		{name: "Video is not indexed", ext: ".mp4", want: FileTypeOther},
		{name: "Unknown extension", ext: ".xyz", want: FileTypeOther},
		{name: "Empty extension", ext: "", want: FileTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetFileType(tt.ext); got != tt.want {
				t.Errorf("GetFileType(%q) = %v, want %v", tt.ext, got, tt.want)
			}
		})
	}
}

func TestIsImage(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"photo.jpg", true},
		{"PHOTO.JPEG", true},
		{"dir/scan.TIF", true},
		{"notes.txt", false},
		{"archive", false},
		{".hidden.png", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsImage(tt.name); got != tt.want {
				t.Errorf("IsImage(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := map[string]string{
		"a.JPG":      "jpg",
		"b/c.webp":   "webp",
		"no-ext":     "",
		"x.tar.tiff": "tiff",
	}
	for in, want := range tests {
		if got := Format(in); got != want {
			t.Errorf("Format(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetMimeType(t *testing.T) {
	if got := GetMimeType(".png"); got != "image/png" {
		t.Errorf("GetMimeType(.png) = %q", got)
	}
	if got := GetMimeType(".xyz"); got != "application/octet-stream" {
		t.Errorf("GetMimeType(.xyz) = %q", got)
	}
}

func TestEveryImageHasMimeType(t *testing.T) {
	for ext := range ImageExtensions {
		if _, ok := MimeTypes[ext]; !ok {
			t.Errorf("extension %s has no MIME type", ext)
		}
	}
}
