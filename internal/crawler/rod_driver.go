package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"steamhunter/internal/config"
	"steamhunter/internal/pkg/metrics"
)

const (
	// 超时常量
	browserInitTimeout   = 30 * time.Second // 浏览器初始化超时
	pageCreateTimeout    = 10 * time.Second // 页面创建超时
	stealthScriptTimeout = 5 * time.Second  // Stealth 脚本应用超时
	navigateTimeout      = 60 * time.Second // 单次导航超时
	elementLookupTimeout = 5 * time.Second  // 元素查找超时
	pageLoadWaitTimeout  = 30 * time.Second // WaitLoad 上限

	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"
)

// RodDriver 是 Driver 的 go-rod 实现。
//
// 整个抓取会话复用同一个页面对象，导航串行进行。
type RodDriver struct {
	browser *rod.Browser
	page    *rod.Page
	logger  *slog.Logger
}

// NewRodDriver 启动浏览器并准备好单个抓取页面。
func NewRodDriver(ctx context.Context, cfg *config.CrawlerConfig, logger *slog.Logger) (*RodDriver, error) {
	initCtx, cancel := context.WithTimeout(ctx, browserInitTimeout)
	defer cancel()

	browser, err := startBrowser(initCtx, cfg, logger)
	if err != nil {
		return nil, err
	}

	page, err := newStealthPage(ctx, browser, cfg, logger)
	if err != nil {
		_ = browser.Close()
		return nil, err
	}

	metrics.BrowserActive.Inc()
	return &RodDriver{
		browser: browser,
		page:    page,
		logger:  logger,
	}, nil
}

// startBrowser 启动浏览器进程并建立连接。
func startBrowser(ctx context.Context, cfg *config.CrawlerConfig, logger *slog.Logger) (*rod.Browser, error) {
	bin := cfg.BinPath
	if bin == "" {
		logger.Info("no browser binary specified, downloading default...")
		path, err := launcher.NewBrowser().Get()
		if err != nil {
			return nil, fmt.Errorf("download browser: %w", err)
		}
		bin = path
	}

	// 针对 Docker/EC2 环境的 Flag 优化
	l := launcher.New().
		Headless(cfg.Headless).
		Bin(bin).
		NoSandbox(true).
		// 禁用 /dev/shm，防止容器内内存崩溃
		Set("disable-dev-shm-usage", "true").
		// 禁用 GPU，服务器环境不需要，节省资源
		Set("disable-gpu", "true").
		Set("disable-software-rasterizer", "true").
		Set("remote-allow-origins", "*").
		// 缓存与内存优化，减少磁盘写入压力
		Set("disk-cache-size", "1").
		Set("media-cache-size", "1").
		Set("disable-application-cache", "true")

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().Context(ctx).ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	logger.Info("browser started",
		slog.String("bin", bin),
		slog.Bool("headless", cfg.Headless))
	return browser, nil
}

// newStealthPage 创建带反检测脚本与 UA 设置的页面。
func newStealthPage(ctx context.Context, browser *rod.Browser, cfg *config.CrawlerConfig, logger *slog.Logger) (*rod.Page, error) {
	type pageResult struct {
		page *rod.Page
		err  error
	}
	pageResultCh := make(chan pageResult, 1)

	go func() {
		page, pageErr := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
		select {
		case pageResultCh <- pageResult{page: page, err: pageErr}:
		default:
			// 主 goroutine 已超时离开，清理页面
			if page != nil {
				_ = page.Close()
			}
			logger.Warn("page creation completed after timeout, cleaned up")
		}
	}()

	pageCreateTimer := time.NewTimer(pageCreateTimeout)
	defer pageCreateTimer.Stop()

	var page *rod.Page
	select {
	case result := <-pageResultCh:
		if result.err != nil {
			return nil, fmt.Errorf("create page failed: %w", result.err)
		}
		page = result.page
	case <-pageCreateTimer.C:
		return nil, fmt.Errorf("create page timeout after %v", pageCreateTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled during page creation: %w", ctx.Err())
	}

	stealthTimer := time.NewTimer(stealthScriptTimeout)
	defer stealthTimer.Stop()
	stealthDone := make(chan error, 1)
	go func() {
		_, evalErr := page.EvalOnNewDocument(stealth.JS)
		stealthDone <- evalErr
	}()

	select {
	case err := <-stealthDone:
		if err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("apply stealth script: %w", err)
		}
	case <-stealthTimer.C:
		_ = page.Close()
		return nil, fmt.Errorf("apply stealth script timeout after %v", stealthScriptTimeout)
	case <-ctx.Done():
		_ = page.Close()
		return nil, fmt.Errorf("context cancelled during stealth script: %w", ctx.Err())
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
		logger.Warn("set user agent failed", slog.String("error", err.Error()))
	}

	return page, nil
}

// Navigate 打开指定 URL 并尽力等待加载完成。
func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	navigateCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()

	// 在 goroutine 中执行 Navigate，即使浏览器卡住也能及时返回
	navigateErrCh := make(chan error, 1)
	go func() {
		navigateErrCh <- d.page.Context(navigateCtx).Navigate(url)
	}()

	select {
	case navErr := <-navigateErrCh:
		if navErr != nil {
			return fmt.Errorf("navigate: %w", navErr)
		}
	case <-navigateCtx.Done():
		return fmt.Errorf("navigate timeout: %w", navigateCtx.Err())
	}

	loadCtx, loadCancel := context.WithTimeout(ctx, pageLoadWaitTimeout)
	defer loadCancel()
	if err := d.page.Context(loadCtx).WaitLoad(); err != nil {
		d.logger.Warn("WaitLoad failed, continuing anyway",
			slog.String("url", url),
			slog.String("error", err.Error()))
	}
	return nil
}

// CurrentURL 返回当前页面地址。
func (d *RodDriver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// Elements 按 CSS 选择器查找元素。
func (d *RodDriver) Elements(ctx context.Context, selector string) ([]Element, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, elementLookupTimeout)
	defer cancel()

	els, err := d.page.Context(lookupCtx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("find elements %q: %w", selector, err)
	}
	return wrapElements(els), nil
}

// ElementsX 按 XPath 查找元素。
func (d *RodDriver) ElementsX(ctx context.Context, xpath string) ([]Element, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, elementLookupTimeout)
	defer cancel()

	els, err := d.page.Context(lookupCtx).ElementsX(xpath)
	if err != nil {
		return nil, fmt.Errorf("find elements by xpath %q: %w", xpath, err)
	}
	return wrapElements(els), nil
}

// WaitVisible 等待选择器命中的元素可见。
func (d *RodDriver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type elemResult struct {
		el  *rod.Element
		err error
	}
	resultCh := make(chan elemResult, 1)
	go func() {
		el, err := d.page.Context(waitCtx).Element(selector)
		if err == nil {
			err = el.WaitVisible()
		}
		select {
		case resultCh <- elemResult{el: el, err: err}:
		default:
		}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("wait visible %q: %w", selector, result.err)
		}
		return &rodElement{el: result.el}, nil
	case <-waitCtx.Done():
		return nil, fmt.Errorf("wait visible %q: %w", selector, waitCtx.Err())
	}
}

// Close 关闭浏览器会话。
func (d *RodDriver) Close() error {
	metrics.BrowserActive.Dec()
	if d.page != nil {
		_ = d.page.Close()
	}
	if d.browser != nil {
		return d.browser.Close()
	}
	return nil
}

// rodElement 把 rod.Element 适配到 Element 接口。
type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, error) {
	value, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", err
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Parent(ctx context.Context) (Element, error) {
	parent, err := e.el.Context(ctx).Parent()
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, nil
	}
	return &rodElement{el: parent}, nil
}

func (e *rodElement) Elements(ctx context.Context, selector string) ([]Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapElements(els), nil
}

func wrapElements(els rod.Elements) []Element {
	wrapped := make([]Element, 0, len(els))
	for _, el := range els {
		wrapped = append(wrapped, &rodElement{el: el})
	}
	return wrapped
}
