package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"steamhunter/internal/config"
	"steamhunter/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.Store) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.NewWithDB(db, logger)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}

	cfg := &config.Config{
		API: config.APIConfig{HTTPAddr: ":0", PageSize: 12},
	}
	return NewServer(cfg, logger, store), store
}

func seedGames(t *testing.T, store *storage.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		discount := ""
		original := ""
		if i%2 == 0 {
			discount = fmt.Sprintf("-%d%%", 10+i)
			original = "1999 руб"
		}
		_, err := store.Upsert(context.Background(), storage.GameRecord{
			Title:         fmt.Sprintf("Game %02d", i),
			CurrentPrice:  fmt.Sprintf("%d руб", 100+i),
			OriginalPrice: original,
			DiscountText:  discount,
			URL:           fmt.Sprintf("https://store.example.test/app/%d/game/", 1000+i),
		})
		if err != nil {
			t.Fatalf("seed game %d: %v", i, err)
		}
	}
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestListGames_PaginationAndHasMore(t *testing.T) {
	s, store := newTestServer(t)
	seedGames(t, store, 15)

	w := doRequest(t, s, http.MethodGet, "/api/games?limit=12&offset=0")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Games   []gameResponse `json:"games"`
		Total   int64          `json:"total"`
		HasMore bool           `json:"has_more"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Games) != 12 {
		t.Errorf("page has %d games, want 12", len(resp.Games))
	}
	if resp.Total != 15 {
		t.Errorf("total = %d, want 15", resp.Total)
	}
	if !resp.HasMore {
		t.Error("has_more = false, want true on first page")
	}

	w = doRequest(t, s, http.MethodGet, "/api/games?limit=12&offset=12")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Games) != 3 {
		t.Errorf("last page has %d games, want 3", len(resp.Games))
	}
	if resp.HasMore {
		t.Error("has_more = true on last page")
	}
}

func TestListGames_DiscountedFilter(t *testing.T) {
	s, store := newTestServer(t)
	seedGames(t, store, 6)

	w := doRequest(t, s, http.MethodGet, "/api/games?discounted=1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Games []gameResponse `json:"games"`
		Total int64          `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 3 {
		t.Errorf("discounted total = %d, want 3", resp.Total)
	}
	for _, game := range resp.Games {
		if !game.IsDiscounted {
			t.Errorf("game %q not discounted", game.Title)
		}
	}
}

func TestListGames_RejectsInvalidSort(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/games?sort=bogus")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetGame_FoundAndNotFound(t *testing.T) {
	s, store := newTestServer(t)
	seedGames(t, store, 1)

	w := doRequest(t, s, http.MethodGet, "/api/games/1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var game gameResponse
	if err := json.Unmarshal(w.Body.Bytes(), &game); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if game.Title != "Game 00" {
		t.Errorf("title = %q, want %q", game.Title, "Game 00")
	}
	if game.AppID != "1000" {
		t.Errorf("app_id = %q, want %q", game.AppID, "1000")
	}

	if w := doRequest(t, s, http.MethodGet, "/api/games/999"); w.Code != http.StatusNotFound {
		t.Errorf("missing game status = %d, want 404", w.Code)
	}
	if w := doRequest(t, s, http.MethodGet, "/api/games/abc"); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
}

func TestPriceHistory_TracksChanges(t *testing.T) {
	s, store := newTestServer(t)

	rec := storage.GameRecord{
		Title:        "Half-Life 2",
		CurrentPrice: "999 руб",
		URL:          "https://store.example.test/app/220/",
	}
	if _, err := store.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	rec.CurrentPrice = "799 руб"
	if _, err := store.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	w := doRequest(t, s, http.MethodGet, "/api/games/1/history")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		History []historyEntry `json:"history"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.History) != 2 {
		t.Fatalf("history has %d entries, want 2", len(resp.History))
	}
	if resp.History[0].CurrentPrice != "999 руб" || resp.History[1].CurrentPrice != "799 руб" {
		t.Errorf("history order wrong: %+v", resp.History)
	}

	if w := doRequest(t, s, http.MethodGet, "/api/games/42/history"); w.Code != http.StatusNotFound {
		t.Errorf("missing game history status = %d, want 404", w.Code)
	}
}

func TestStatsAndHealthz(t *testing.T) {
	s, store := newTestServer(t)
	seedGames(t, store, 4)

	w := doRequest(t, s, http.MethodGet, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", w.Code)
	}
	var stats struct {
		Total      int64 `json:"total"`
		Discounted int64 `json:"discounted"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 4 || stats.Discounted != 2 {
		t.Errorf("stats = (%d, %d), want (4, 2)", stats.Total, stats.Discounted)
	}

	if w := doRequest(t, s, http.MethodGet, "/healthz"); w.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", w.Code)
	}
}
