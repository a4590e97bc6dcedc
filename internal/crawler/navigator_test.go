package crawler

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAdvance_ClicksLoadMoreControl(t *testing.T) {
	driver := newFakeDriver()
	page := driver.addPage("https://store.example.test/search/?specials=1")
	button := &fakeElement{text: "Показать больше"}
	page.xpaths[`//button[contains(., 'Показать больше')]`] = []Element{button}
	driver.currentURL = "https://store.example.test/search/?specials=1"

	nav := NewNavigator(driver, newTestLogger(), 12, 0)

	ok, err := nav.Advance(context.Background())
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if !ok {
		t.Fatal("Advance() = false, want true")
	}
	if button.clicks != 1 {
		t.Errorf("button clicks = %d, want 1", button.clicks)
	}
	if len(driver.navigated) != 0 {
		t.Errorf("unexpected navigation after click: %v", driver.navigated)
	}
}

func TestAdvance_SkipsUnclickableControl(t *testing.T) {
	driver := newFakeDriver()
	page := driver.addPage("https://store.example.test/search/?specials=1")
	broken := &fakeElement{text: "Показать больше", clickErr: context.DeadlineExceeded}
	working := &fakeElement{text: "Показать больше"}
	page.xpaths[`//span[contains(., 'Показать больше')]`] = []Element{broken, working}
	driver.currentURL = "https://store.example.test/search/?specials=1"

	nav := NewNavigator(driver, newTestLogger(), 12, 0)

	ok, err := nav.Advance(context.Background())
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if !ok {
		t.Fatal("Advance() = false, want true")
	}
	if working.clicks != 1 {
		t.Errorf("fallback control clicks = %d, want 1", working.clicks)
	}
}

func TestAdvance_OffsetRewriteFallback(t *testing.T) {
	driver := newFakeDriver()
	driver.addPage("https://store.example.test/search/?specials=1&start=12")
	driver.currentURL = "https://store.example.test/search/?specials=1&start=12"

	nav := NewNavigator(driver, newTestLogger(), 12, 0)

	ok, err := nav.Advance(context.Background())
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if !ok {
		t.Fatal("Advance() = false, want true")
	}

	want := "https://store.example.test/search/?specials=1&start=24"
	if len(driver.navigated) != 1 || driver.navigated[0] != want {
		t.Errorf("navigated = %v, want [%s]", driver.navigated, want)
	}
}

func TestAdvance_NoControlsNoOffsetParam(t *testing.T) {
	driver := newFakeDriver()
	driver.addPage("https://store.example.test/search/?specials=1")
	driver.currentURL = "https://store.example.test/search/?specials=1"

	nav := NewNavigator(driver, newTestLogger(), 12, 0)

	ok, err := nav.Advance(context.Background())
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if ok {
		t.Error("Advance() = true, want false on terminal page")
	}
}

func TestIncrementOffset(t *testing.T) {
	tests := []struct {
		name   string
		rawURL string
		step   int
		want   string
		wantOK bool
	}{
		{
			name:   "start param",
			rawURL: "https://store.example.test/search/?specials=1&start=12",
			step:   12,
			want:   "https://store.example.test/search/?specials=1&start=24",
			wantOK: true,
		},
		{
			name:   "offset param",
			rawURL: "https://store.example.test/search/?offset=24",
			step:   12,
			want:   "https://store.example.test/search/?offset=36",
			wantOK: true,
		},
		{
			name:   "zero offset",
			rawURL: "https://store.example.test/search/?start=0",
			step:   12,
			want:   "https://store.example.test/search/?start=12",
			wantOK: true,
		},
		{
			name:   "no offset param",
			rawURL: "https://store.example.test/search/?specials=1",
			step:   12,
			wantOK: false,
		},
		{
			name:   "non-numeric offset",
			rawURL: "https://store.example.test/search/?start=abc",
			step:   12,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := incrementOffset(tt.rawURL, tt.step)
			if ok != tt.wantOK {
				t.Fatalf("incrementOffset() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("incrementOffset() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCurrentLocation_TracksLastKnown(t *testing.T) {
	driver := newFakeDriver()
	nav := NewNavigator(driver, newTestLogger(), 12, 0)

	if err := nav.GotoInitial(context.Background(), "https://store.example.test/search/?specials=1", 0); err != nil {
		t.Fatalf("GotoInitial() error = %v", err)
	}
	if got := nav.CurrentLocation(context.Background()); got != "https://store.example.test/search/?specials=1" {
		t.Errorf("CurrentLocation() = %q", got)
	}
}

func TestGotoInitial_WaitsForListingAnchors(t *testing.T) {
	driver := newFakeDriver()
	nav := NewNavigator(driver, newTestLogger(), 12, 0)

	if err := nav.GotoInitial(context.Background(), "https://store.example.test/search/?specials=1", 0); err != nil {
		t.Fatalf("GotoInitial() error = %v", err)
	}

	if len(driver.waited) != 1 || driver.waited[0] != listingAnchorSelector {
		t.Errorf("waited selectors = %v, want [%s]", driver.waited, listingAnchorSelector)
	}
}

func TestGotoInitial_ProceedsWhenListingNotVisible(t *testing.T) {
	driver := newFakeDriver()
	driver.waitErr = context.DeadlineExceeded
	nav := NewNavigator(driver, newTestLogger(), 12, 0)

	if err := nav.GotoInitial(context.Background(), "https://store.example.test/search/?specials=1", 0); err != nil {
		t.Fatalf("GotoInitial() error = %v, want nil when anchors never show", err)
	}
	if got := nav.CurrentLocation(context.Background()); got != "https://store.example.test/search/?specials=1" {
		t.Errorf("CurrentLocation() = %q", got)
	}
}
