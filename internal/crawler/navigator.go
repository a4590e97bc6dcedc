package crawler

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"steamhunter/internal/pkg/metrics"
)

// locatorKind 区分定位策略的语法。
type locatorKind int

const (
	locatorCSS locatorKind = iota
	locatorXPath
)

type locator struct {
	kind locatorKind
	expr string
}

// advanceLocators 是"加载更多"控件的定位策略，按顺序尝试。
var advanceLocators = []locator{
	{locatorXPath, `//button[contains(., 'Показать больше')]`},
	{locatorXPath, `//span[contains(., 'Показать больше')]`},
	{locatorXPath, `//button[contains(., 'Show more')]`},
	{locatorXPath, `//a[contains(., 'Show more')]`},
	{locatorCSS, `[class*="show_more"]`},
	{locatorCSS, `[class*="load_more"]`},
	{locatorCSS, `#search_btn_load_more`},
}

// offsetParams 是列表页 URL 中已知的偏移式分页参数。
var offsetParams = []string{"start", "offset"}

// listingReadyTimeout 是等待列表锚点出现的上限。
const listingReadyTimeout = 10 * time.Second

// Navigator 拥有一个浏览器会话并负责列表页间的移动。
type Navigator struct {
	driver        Driver
	logger        *slog.Logger
	pageSize      int
	advanceSettle time.Duration

	lastKnownURL string
}

// NewNavigator 创建导航器。pageSize 是 offset 回退时的步长。
func NewNavigator(driver Driver, logger *slog.Logger, pageSize int, advanceSettle time.Duration) *Navigator {
	if pageSize <= 0 {
		pageSize = 12
	}
	return &Navigator{
		driver:        driver,
		logger:        logger,
		pageSize:      pageSize,
		advanceSettle: advanceSettle,
	}
}

// GotoInitial 打开起始列表页并等待加载稳定。
//
// 列表锚点迟迟不出现只记录警告，不中断运行：后续的扫描会得到空列表，
// 由调用方按正常终止处理。
func (n *Navigator) GotoInitial(ctx context.Context, rawURL string, settle time.Duration) error {
	if err := n.driver.Navigate(ctx, rawURL); err != nil {
		return err
	}
	n.lastKnownURL = rawURL

	if _, err := n.driver.WaitVisible(ctx, listingAnchorSelector, listingReadyTimeout); err != nil {
		n.logger.Warn("listing anchors not visible, continuing",
			slog.String("url", rawURL),
			slog.String("error", err.Error()))
	}
	settleWait(ctx, settle)
	return nil
}

// CurrentLocation 返回当前列表页位置。
//
// 读取失败时退回最近一次已知的位置，导航本身不因此中断。
func (n *Navigator) CurrentLocation(ctx context.Context) string {
	current, err := n.driver.CurrentURL(ctx)
	if err != nil {
		n.logger.Warn("read current url failed, using last known",
			slog.String("error", err.Error()))
		return n.lastKnownURL
	}
	n.lastKnownURL = current
	return current
}

// Advance 尝试加载下一批列表条目。
//
// 先按定位策略逐个找"加载更多"控件并点击第一个可点的；都没有命中时
// 检查当前 URL 的偏移参数并直接改写跳转。两者都不成立返回 false —
// 这是列表侧到达末尾的预期终止信号，不是错误。
func (n *Navigator) Advance(ctx context.Context) (bool, error) {
	for _, loc := range advanceLocators {
		var els []Element
		var err error
		switch loc.kind {
		case locatorXPath:
			els, err = n.driver.ElementsX(ctx, loc.expr)
		default:
			els, err = n.driver.Elements(ctx, loc.expr)
		}
		if err != nil {
			n.logger.Debug("advance locator lookup failed",
				slog.String("locator", loc.expr),
				slog.String("error", err.Error()))
			continue
		}

		for _, el := range els {
			if err := el.Click(ctx); err != nil {
				continue
			}
			n.logger.Debug("clicked load-more control", slog.String("locator", loc.expr))
			settleWait(ctx, n.advanceSettle)
			return true, nil
		}
	}

	current := n.CurrentLocation(ctx)
	next, ok := incrementOffset(current, n.pageSize)
	if !ok {
		return false, nil
	}

	if err := n.driver.Navigate(ctx, next); err != nil {
		return false, err
	}
	n.lastKnownURL = next
	n.logger.Debug("advanced via offset rewrite", slog.String("url", next))
	settleWait(ctx, n.advanceSettle)
	return true, nil
}

// incrementOffset 把 URL 中已知的偏移参数加上一个步长。
//
// 没有偏移参数或无法解析时返回 ("", false)。
func incrementOffset(rawURL string, step int) (string, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	query := parsed.Query()
	for _, param := range offsetParams {
		value := query.Get(param)
		if value == "" {
			continue
		}
		offset, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		query.Set(param, strconv.Itoa(offset+step))
		parsed.RawQuery = query.Encode()
		return parsed.String(), true
	}
	return "", false
}

// settleWait 在导航/点击后等待页面稳定，等待时间计入指标。
func settleWait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	start := time.Now()
	defer func() {
		metrics.PageSettleDuration.Observe(time.Since(start).Seconds())
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
