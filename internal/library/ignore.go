package library

import (
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnorePatterns exclude the metadata directory and dotfiles so that
// neither the scanner nor the watcher reacts to cache writes.
var DefaultIgnorePatterns = []string{
	"/" + MetaDirName + "/",
	".*",
}

// Matcher decides which library-relative paths are skipped. Patterns use
// .gitignore syntax.
type Matcher struct {
	gi *ignore.GitIgnore
}

// NewMatcher compiles the default patterns followed by extra.
func NewMatcher(extra ...string) *Matcher {
	lines := make([]string, 0, len(DefaultIgnorePatterns)+len(extra))
	lines = append(lines, DefaultIgnorePatterns...)
	for _, p := range extra {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	return &Matcher{gi: ignore.CompileIgnoreLines(lines...)}
}

// Ignored reports whether rel (slash separated, relative to the library
// root) is excluded. The root itself is never ignored.
func (m *Matcher) Ignored(rel string, isDir bool) bool {
	rel = strings.Trim(rel, "/")
	if rel == "" || rel == "." {
		return false
	}
	if rel == MetaDirName || strings.HasPrefix(rel, MetaDirName+"/") {
		return true
	}
	if isDir {
		rel += "/"
	}
	return m.gi.MatchesPath(rel)
}
