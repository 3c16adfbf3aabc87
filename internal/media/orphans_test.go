package media

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"library-indexer/internal/cachekey"
)

func TestFindAndRemoveOrphans(t *testing.T) {
	root := t.TempDir()

	live := cachekey.For("keep/me.jpg", "jpg")
	dead := cachekey.For("renamed/old.jpg", "jpg")
	for _, k := range []cachekey.Key{live, dead} {
		if err := writeArtifact(k.AbsPath(root), []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	// not an artifact, must be ignored
	if err := os.WriteFile(filepath.Join(root, "README"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	orphans, err := FindOrphans(root, map[string]bool{live.RelPath(): true})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(orphans)
	if len(orphans) != 1 || orphans[0] != dead.RelPath() {
		t.Fatalf("orphans = %v, want [%s]", orphans, dead.RelPath())
	}

	removed, err := RemoveArtifacts(root, append(orphans, "zz/missing.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(dead.AbsPath(root)); !os.IsNotExist(err) {
		t.Error("orphan still on disk")
	}
	if _, err := os.Stat(live.AbsPath(root)); err != nil {
		t.Error("live artifact was removed")
	}
}

func TestFindOrphans_MissingRoot(t *testing.T) {
	orphans, err := FindOrphans(filepath.Join(t.TempDir(), "absent"), nil)
	if err != nil {
		t.Fatalf("missing root should not fail: %v", err)
	}
	if len(orphans) != 0 {
		t.Errorf("orphans = %v", orphans)
	}
}
