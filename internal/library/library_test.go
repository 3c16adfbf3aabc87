package library

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLibraryLayout(t *testing.T) {
	lib := Library{ID: "photos", Path: "/srv/photos"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"meta dir", lib.MetaDir(), filepath.Join("/srv/photos", ".library-indexer")},
		{"db path", lib.DBPath(), filepath.Join("/srv/photos", ".library-indexer", "library.db")},
		{"lock path", lib.LockPath(), filepath.Join("/srv/photos", ".library-indexer", "library.lock")},
		{"thumbnails", lib.ThumbnailDir(), filepath.Join("/srv/photos", ".library-indexer", "thumbnails")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestLibraryValidate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		lib     Library
		wantErr bool
	}{
		{"valid", Library{ID: "photos", Path: dir}, false},
		{"valid with dashes", Library{ID: "my-photos_2", Path: dir}, false},
		{"empty id", Library{Path: dir}, true},
		{"bad id", Library{ID: "../etc", Path: dir}, true},
		{"empty path", Library{ID: "x"}, true},
		{"relative path", Library{ID: "x", Path: "photos"}, true},
		{"missing path", Library{ID: "x", Path: filepath.Join(dir, "absent")}, true},
		{"file path", Library{ID: "x", Path: file}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.lib.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsValidationError(err) {
				t.Errorf("error %v is not a ValidationError", err)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRegistry(Library{ID: "b", Path: dir}, Library{ID: "a", Name: "Alpha", Path: dir})
	if err != nil {
		t.Fatal(err)
	}

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	list := r.List()
	if list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("List() not sorted: %+v", list)
	}
	if list[1].Name != "b" {
		t.Errorf("Name should default to id, got %q", list[1].Name)
	}

	if _, err := r.Get("a"); err != nil {
		t.Errorf("Get(a) error = %v", err)
	}

	_, err = r.Get("missing")
	if !errors.Is(err, ErrUnknownLibrary) || !IsValidationError(err) {
		t.Errorf("Get(missing) error = %v, want ValidationError wrapping ErrUnknownLibrary", err)
	}

	if _, err := r.Get(""); !IsValidationError(err) {
		t.Errorf("Get(\"\") error = %v, want ValidationError", err)
	}

	if err := r.Add(Library{ID: "a", Path: dir}); !IsValidationError(err) {
		t.Errorf("duplicate Add error = %v, want ValidationError", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	photos := filepath.Join(dir, "photos")
	if err := os.Mkdir(photos, 0o755); err != nil {
		t.Fatal(err)
	}
	abs := t.TempDir()

	cfg := "libraries:\n" +
		"  - id: photos\n" +
		"    name: Family photos\n" +
		"    path: photos\n" +
		"  - id: scans\n" +
		"    path: " + abs + "\n"
	path := filepath.Join(dir, "libraries.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	lib, err := r.Get("photos")
	if err != nil {
		t.Fatal(err)
	}
	if lib.Path != photos {
		t.Errorf("relative path resolved to %q, want %q", lib.Path, photos)
	}
	if lib.Name != "Family photos" {
		t.Errorf("Name = %q", lib.Name)
	}

	scans, err := r.Get("scans")
	if err != nil {
		t.Fatal(err)
	}
	if scans.Path != abs {
		t.Errorf("absolute path = %q, want %q", scans.Path, abs)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("libraries: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad); err == nil {
		t.Error("expected parse error")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("libraries:\n  - id: x\n    path: nowhere\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(invalid); !IsValidationError(err) {
		t.Errorf("error = %v, want ValidationError", err)
	}
}

func TestMatcher(t *testing.T) {
	m := NewMatcher("*.tmp", "", "raw/")

	tests := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{"", true, false},
		{"photo.jpg", false, false},
		{"album/photo.jpg", false, false},
		{MetaDirName, true, true},
		{MetaDirName + "/thumbnails/ab/abc.webp", false, true},
		{".hidden.jpg", false, true},
		{"album/.DS_Store", false, true},
		{".git", true, true},
		{"upload.tmp", false, true},
		{"raw", true, true},
		{"raw/a.jpg", false, true},
		{"rawfile.jpg", false, false},
	}

	for _, tt := range tests {
		if got := m.Ignored(tt.rel, tt.isDir); got != tt.want {
			t.Errorf("Ignored(%q, %v) = %v, want %v", tt.rel, tt.isDir, got, tt.want)
		}
	}
}
