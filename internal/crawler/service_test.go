package crawler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"steamhunter/internal/config"
	"steamhunter/internal/model"
	"steamhunter/internal/pkg/queue"
	"steamhunter/internal/progress"
	"steamhunter/internal/storage"
)

// fakeGameStore 是 GameStore 的内存实现。
type fakeGameStore struct {
	mu      sync.Mutex
	records []storage.GameRecord
	failURL string
}

func (f *fakeGameStore) Upsert(ctx context.Context, rec storage.GameRecord) (storage.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failURL != "" && rec.URL == f.failURL {
		return storage.UpsertResult{}, errors.New("db write failed")
	}
	f.records = append(f.records, rec)
	return storage.UpsertResult{
		Game: &model.SteamGame{
			Title:        rec.Title,
			CurrentPrice: rec.CurrentPrice,
			URL:          rec.URL,
		},
		Created: true,
	}, nil
}

func (f *fakeGameStore) saved() []storage.GameRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.GameRecord(nil), f.records...)
}

// newTestService 用假驱动和假存储手工组装一个编排器，所有等待时间为零。
func newTestService(t *testing.T, driver *fakeDriver, store GameStore, startURL string) *Service {
	t.Helper()

	cfg := &config.Config{
		Crawler: config.CrawlerConfig{
			StartURL:       startURL,
			MaxGames:       500,
			MaxAdvances:    100,
			PageSize:       12,
			WorkerPoolSize: 2,
			QueueCapacity:  16,
		},
		Progress: config.ProgressConfig{
			Path: filepath.Join(t.TempDir(), "progress.json"),
		},
	}

	logger := newTestLogger()
	bgCtx, bgCancel := context.WithCancel(context.Background())
	persistQueue := queue.NewQueue(logger, cfg.Crawler.WorkerPoolSize, cfg.Crawler.QueueCapacity)
	persistQueue.Start(bgCtx)
	t.Cleanup(bgCancel)

	return &Service{
		cfg:          cfg,
		logger:       logger,
		driver:       driver,
		navigator:    NewNavigator(driver, logger, cfg.Crawler.PageSize, 0),
		extractor:    NewExtractor(driver, logger),
		store:        store,
		progress:     progress.NewStore(cfg.Progress.Path, logger),
		persistQueue: persistQueue,
		bgCtx:        bgCtx,
		bgCancel:     bgCancel,
	}
}

// addListingItems 往列表页塞 n 个带价格块的商品锚点，返回详情页链接。
func addListingItems(driver *fakeDriver, listingURL string, startID, n int) []string {
	page := driver.pages[listingURL]
	if page == nil {
		page = driver.addPage(listingURL)
	}

	urls := make([]string, 0, n)
	var anchors []Element
	for i := 0; i < n; i++ {
		id := startID + i
		detailURL := fmt.Sprintf("https://store.example.test/app/%d/game/", id)
		anchors = append(anchors, newListingAnchor(
			detailURL,
			fmt.Sprintf("Game %d Edition", id),
			fmt.Sprintf("Game %d Edition -50%% 1999 руб 999 руб", id),
		))
		urls = append(urls, detailURL)
	}
	page.selectors[`a[href*="/app/"]`] = append(page.selectors[`a[href*="/app/"]`], anchors...)
	return urls
}

func TestRun_SavesAllListingItems(t *testing.T) {
	listingURL := "https://store.example.test/search/?specials=1"
	driver := newFakeDriver()
	detailURLs := addListingItems(driver, listingURL, 100, 3)

	store := &fakeGameStore{}
	service := newTestService(t, driver, store, listingURL)

	saved, errs, err := service.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if saved != 3 || errs != 0 {
		t.Fatalf("Run() = (%d, %d), want (3, 0)", saved, errs)
	}

	records := store.saved()
	if len(records) != 3 {
		t.Fatalf("store received %d records, want 3", len(records))
	}
	for _, rec := range records {
		if rec.CurrentPrice != "999 руб" || rec.OriginalPrice != "1999 руб" {
			t.Errorf("record %q prices = (%q, %q)", rec.URL, rec.CurrentPrice, rec.OriginalPrice)
		}
	}

	// 每条详情页都访问过
	visited := make(map[string]bool)
	for _, u := range driver.navigated {
		visited[u] = true
	}
	for _, u := range detailURLs {
		if !visited[u] {
			t.Errorf("detail page %q was never visited", u)
		}
	}

	// 进度文件落盘且包含全部已处理链接
	state := progress.NewStore(service.cfg.Progress.Path, newTestLogger()).Load()
	if state.LastPageURL != listingURL {
		t.Errorf("progress LastPageURL = %q, want %q", state.LastPageURL, listingURL)
	}
	if len(state.ParsedURLs) != 3 {
		t.Errorf("progress holds %d urls, want 3", len(state.ParsedURLs))
	}
}

func TestRun_ResumesAndSkipsParsedURLs(t *testing.T) {
	listingURL := "https://store.example.test/search/?specials=1"
	driver := newFakeDriver()
	detailURLs := addListingItems(driver, listingURL, 200, 3)

	store := &fakeGameStore{}
	service := newTestService(t, driver, store, listingURL)

	// 模拟上一轮已处理第一条
	seed := progress.NewStore(service.cfg.Progress.Path, newTestLogger())
	if err := seed.Save(listingURL, map[string]bool{detailURLs[0]: true}); err != nil {
		t.Fatalf("seed progress: %v", err)
	}

	saved, errs, err := service.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if saved != 2 || errs != 0 {
		t.Fatalf("Run() = (%d, %d), want (2, 0)", saved, errs)
	}

	for _, rec := range store.saved() {
		if rec.URL == detailURLs[0] {
			t.Errorf("already parsed url %q was persisted again", rec.URL)
		}
	}
}

func TestRun_StopsAtItemBudget(t *testing.T) {
	listingURL := "https://store.example.test/search/?specials=1"
	driver := newFakeDriver()
	addListingItems(driver, listingURL, 300, 5)

	store := &fakeGameStore{}
	service := newTestService(t, driver, store, listingURL)
	service.cfg.Crawler.MaxGames = 2

	saved, errs, err := service.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if saved != 2 || errs != 0 {
		t.Fatalf("Run() = (%d, %d), want (2, 0)", saved, errs)
	}
}

func TestRun_CountsUpsertFailures(t *testing.T) {
	listingURL := "https://store.example.test/search/?specials=1"
	driver := newFakeDriver()
	detailURLs := addListingItems(driver, listingURL, 400, 3)

	store := &fakeGameStore{failURL: detailURLs[1]}
	service := newTestService(t, driver, store, listingURL)

	saved, errs, err := service.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if saved != 2 {
		t.Errorf("saved = %d, want 2", saved)
	}
	if errs != 1 {
		t.Errorf("errs = %d, want 1", errs)
	}

	// 失败的条目仍然记入进度，本轮不再重试
	state := progress.NewStore(service.cfg.Progress.Path, newTestLogger()).Load()
	if !state.ParsedURLs[detailURLs[1]] {
		t.Errorf("failed url missing from progress")
	}
}

func TestRun_AdvancesThroughOffsetPages(t *testing.T) {
	firstPage := "https://store.example.test/search/?specials=1&start=0"
	secondPage := "https://store.example.test/search/?specials=1&start=12"

	driver := newFakeDriver()
	addListingItems(driver, firstPage, 500, 2)
	addListingItems(driver, secondPage, 600, 1)

	store := &fakeGameStore{}
	service := newTestService(t, driver, store, firstPage)
	service.cfg.Crawler.MaxAdvances = 2

	saved, errs, err := service.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if saved != 3 || errs != 0 {
		t.Fatalf("Run() = (%d, %d), want (3, 0)", saved, errs)
	}

	stats := service.Stats()
	if stats.Pages != 2 {
		t.Errorf("pages = %d, want 2", stats.Pages)
	}
}

func TestRun_StartPageFailureIsFatal(t *testing.T) {
	listingURL := "https://store.example.test/search/?specials=1"
	driver := newFakeDriver()
	driver.navErr[listingURL] = errors.New("net::ERR_NAME_NOT_RESOLVED")

	store := &fakeGameStore{}
	service := newTestService(t, driver, store, listingURL)

	_, _, err := service.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want failure when start page cannot be opened")
	}
}
