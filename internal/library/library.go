package library

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"library-indexer/internal/logging"
)

// Layout of the metadata directory inside every library root.
const (
	MetaDirName      = ".library-indexer"
	DBFileName       = "library.db"
	LockFileName     = "library.lock"
	ThumbnailDirName = "thumbnails"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// Library is one independently indexed collection.
type Library struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path" json:"path"`
}

// MetaDir returns the hidden metadata directory of the library.
func (l Library) MetaDir() string { return filepath.Join(l.Path, MetaDirName) }

// DBPath returns the metadata database file.
func (l Library) DBPath() string { return filepath.Join(l.MetaDir(), DBFileName) }

// LockPath returns the lock file guarding the database.
func (l Library) LockPath() string { return filepath.Join(l.MetaDir(), LockFileName) }

// ThumbnailDir returns the root of the thumbnail cache.
func (l Library) ThumbnailDir() string { return filepath.Join(l.MetaDir(), ThumbnailDirName) }

// Validate checks the id and path of the library. The path must be an
// existing directory.
func (l Library) Validate() error {
	if l.ID == "" {
		return Invalid("id", "library id is required")
	}
	if !idPattern.MatchString(l.ID) {
		return Invalid("id", "%q must be alphanumeric with '-' or '_' (max 64 chars)", l.ID)
	}
	if l.Path == "" {
		return Invalid("path", "library %q has no path", l.ID)
	}
	if !filepath.IsAbs(l.Path) {
		return Invalid("path", "library %q path %q is not absolute", l.ID, l.Path)
	}
	info, err := os.Stat(l.Path)
	if err != nil {
		return &ValidationError{Field: "path", Reason: fmt.Sprintf("library %q path is not accessible", l.ID), Err: err}
	}
	if !info.IsDir() {
		return Invalid("path", "library %q path %q is not a directory", l.ID, l.Path)
	}
	return nil
}

// Registry resolves library ids. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	libs map[string]Library
}

// NewRegistry validates and registers libs.
func NewRegistry(libs ...Library) (*Registry, error) {
	r := &Registry{libs: make(map[string]Library, len(libs))}
	for _, lib := range libs {
		if err := r.Add(lib); err != nil {
			return nil, err
		}
	}
	return r, nil
}

type fileConfig struct {
	Libraries []Library `yaml:"libraries"`
}

// LoadFile reads a YAML file of the form
//
//	libraries:
//	  - id: photos
//	    name: Family photos
//	    path: /srv/photos
//
// Relative paths are resolved against the directory of the file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read libraries file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse libraries file %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range cfg.Libraries {
		p := cfg.Libraries[i].Path
		if p != "" && !filepath.IsAbs(p) {
			cfg.Libraries[i].Path = filepath.Join(base, p)
		}
		if abs, err := filepath.Abs(cfg.Libraries[i].Path); err == nil && p != "" {
			cfg.Libraries[i].Path = abs
		}
	}

	r, err := NewRegistry(cfg.Libraries...)
	if err != nil {
		return nil, err
	}
	logging.Info("Loaded %d libraries from %s", len(cfg.Libraries), path)
	return r, nil
}

// Add registers a library. Ids must be unique.
func (r *Registry) Add(lib Library) error {
	if err := lib.Validate(); err != nil {
		return err
	}
	if lib.Name == "" {
		lib.Name = lib.ID
	}
	lib.Path = filepath.Clean(lib.Path)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.libs[lib.ID]; exists {
		return Invalid("id", "duplicate library id %q", lib.ID)
	}
	r.libs[lib.ID] = lib
	return nil
}

// Get resolves an id. Unknown ids yield a ValidationError wrapping
// ErrUnknownLibrary.
func (r *Registry) Get(id string) (Library, error) {
	if id == "" {
		return Library{}, Invalid("library", "library id is required")
	}
	r.mu.RLock()
	lib, ok := r.libs[id]
	r.mu.RUnlock()
	if !ok {
		return Library{}, &ValidationError{Field: "library", Reason: fmt.Sprintf("unknown library %q", id), Err: ErrUnknownLibrary}
	}
	return lib, nil
}

// List returns all libraries sorted by id.
func (r *Registry) List() []Library {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Library, 0, len(r.libs))
	for _, lib := range r.libs {
		out = append(out, lib)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered libraries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.libs)
}
