package progress

import (
	"os"
	"path/filepath"
	"testing"

	"steamhunter/internal/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "progress.json")
	return NewStore(path, logger.NewDefault("error"))
}

func TestLoad_MissingFileIsEmptyState(t *testing.T) {
	store := newTestStore(t)

	state := store.Load()
	if state.LastPageURL != "" {
		t.Errorf("expected empty last page url, got %q", state.LastPageURL)
	}
	if len(state.ParsedURLs) != 0 {
		t.Errorf("expected empty parsed set, got %d entries", len(state.ParsedURLs))
	}
	if state.TotalParsed != 0 {
		t.Errorf("expected total 0, got %d", state.TotalParsed)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	parsed := map[string]bool{
		"https://store.steampowered.com/app/220/HalfLife_2": true,
		"https://store.steampowered.com/app/730/CS2":        true,
		"https://store.steampowered.com/app/440/TF2":        true,
	}
	lastPage := "https://store.steampowered.com/search/?specials=1&start=24"

	if err := store.Save(lastPage, parsed); err != nil {
		t.Fatalf("save: %v", err)
	}

	state := store.Load()
	if state.LastPageURL != lastPage {
		t.Errorf("expected last page %q, got %q", lastPage, state.LastPageURL)
	}
	if state.TotalParsed != len(parsed) {
		t.Errorf("expected total %d, got %d", len(parsed), state.TotalParsed)
	}
	for u := range parsed {
		if !state.ParsedURLs[u] {
			t.Errorf("expected parsed set to contain %q", u)
		}
	}
}

func TestLoad_CorruptFileIsEmptyState(t *testing.T) {
	store := newTestStore(t)

	if err := os.WriteFile(store.path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	state := store.Load()
	if len(state.ParsedURLs) != 0 || state.TotalParsed != 0 {
		t.Errorf("expected empty state for corrupt file, got %+v", state)
	}
}

func TestSave_OverwritesPreviousState(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save("page1", map[string]bool{"a": true}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.Save("page2", map[string]bool{"a": true, "b": true}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	state := store.Load()
	if state.LastPageURL != "page2" {
		t.Errorf("expected last write to win, got %q", state.LastPageURL)
	}
	if state.TotalParsed != 2 {
		t.Errorf("expected total 2, got %d", state.TotalParsed)
	}
}

func TestClear(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save("page", map[string]bool{"a": true}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := os.Stat(store.path); !os.IsNotExist(err) {
		t.Error("expected progress file to be removed")
	}

	// 再次 Clear 不应报错
	if err := store.Clear(); err != nil {
		t.Errorf("clear on missing file: %v", err)
	}
}
