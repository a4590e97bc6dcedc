package crawler

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"steamhunter/internal/pkg/metrics"
)

// CandidateItem 是列表页扫描出的瞬态记录，价格保留原始字符串。
type CandidateItem struct {
	Title         string
	CurrentPrice  string
	OriginalPrice string
	DiscountText  string
	ImageURL      string
	URL           string // 规范化链接（去掉查询串）
	CapturedAt    time.Time
}

// DetailFields 是详情页补充出的字段。
type DetailFields struct {
	Categories       []string
	Description      string
	ShortDescription string
	ReviewRating     string
	ReviewCount      string
	ImageURL         string
	ReleaseDate      string
}

// EnrichedItem 是合并了详情页字段的候选记录。
type EnrichedItem struct {
	CandidateItem
	Detail DetailFields
}

const (
	// unknownTitle 是标题提取失败时的哨兵值，带着它的条目会在过滤层被丢弃。
	unknownTitle = "Неизвестно"

	// maxAncestorLevels 是从锚点向上找价格容器的层数上限。
	maxAncestorLevels = 3

	// shortDescriptionLimit 是短描述的截断长度（字符数）。
	shortDescriptionLimit = 300

	// listingAnchorSelector 匹配指向商品详情页的锚点。
	listingAnchorSelector = `a[href*="/app/"]`
)

var (
	pricePattern    = regexp.MustCompile(`\d[\d\s\x{00a0}]*(?:[.,]\d+)?\s*(?:руб\.?|₽|р\.)`)
	discountPattern = regexp.MustCompile(`-\d+%`)

	// currencyMarkers 判定一个祖先块是否是价格容器。
	currencyMarkers = []string{"руб", "₽", "р.", "$", "€", "%"}

	// excludedSubpaths 是 /app/ 链接里已知的非商品子路径。
	excludedSubpaths = []string{"/reviews", "/news", "/discussions", "/workshop"}

	// titleBlocklist 命中即认为文本不是游戏标题。
	titleBlocklist = []string{"обзор", "отзыв", "рецензия", "review", "новост", "обсужден", "discussion"}

	// imageMarkers 是商店图片 CDN 的特征子串。
	imageMarkers = []string{"header.jpg", "capsule", "steamstatic.com"}

	titleSelectors = []string{
		"h1, h2, h3, h4, h5, h6",
		`[class*="Title"]`,
		`[class*="title"]`,
	}

	descriptionSelectors = []string{
		".game_description_snippet",
		"#game_area_description",
		`[class*="game_description"]`,
		`[class*="description"]`,
	}

	categorySelectors = []string{
		"a.app_tag",
		`[class*="game_category"] a`,
		".glance_tags a",
	}
)

// Extractor 从已加载的页面上按布局启发式提取结构化字段。
//
// 每个字段的提取互相独立，单个字段失败只会得到空值，不会中断整次扫描。
type Extractor struct {
	driver Driver
	logger *slog.Logger
}

// NewExtractor 创建提取器。
func NewExtractor(driver Driver, logger *slog.Logger) *Extractor {
	return &Extractor{driver: driver, logger: logger}
}

// ScanListing 扫描当前列表页，返回候选条目。
//
// 找出所有指向商品详情页的锚点，排除已知的非商品子路径，然后从每个
// 锚点向上最多三层找到包含货币/百分号记号的容器块，再从容器里提取
// 标题、价格、折扣和图片。
func (e *Extractor) ScanListing(ctx context.Context) []CandidateItem {
	anchors, err := e.driver.Elements(ctx, listingAnchorSelector)
	if err != nil {
		e.logger.Warn("scan listing: anchor lookup failed", slog.String("error", err.Error()))
		return nil
	}

	now := time.Now()
	seen := make(map[string]bool)
	var items []CandidateItem

	for _, anchor := range anchors {
		href, err := anchor.Attribute(ctx, "href")
		if err != nil || href == "" {
			continue
		}
		if hasExcludedSubpath(href) {
			continue
		}

		canonical := canonicalURL(href)
		if seen[canonical] {
			continue
		}

		container := e.findPriceContainer(ctx, anchor)
		if container == nil {
			continue
		}
		text, err := container.Text(ctx)
		if err != nil {
			continue
		}

		item := CandidateItem{
			URL:        canonical,
			CapturedAt: now,
		}
		item.Title = e.extractTitle(ctx, container, anchor)
		item.CurrentPrice, item.OriginalPrice = extractPrices(text)
		item.DiscountText = discountPattern.FindString(text)
		item.ImageURL = e.extractImage(ctx, container)

		seen[canonical] = true
		items = append(items, item)
	}

	metrics.ItemsExtractedTotal.Add(float64(len(items)))
	e.logger.Debug("listing scanned", slog.Int("candidates", len(items)))
	return items
}

// ScanDetail 从当前已加载的详情页提取补充字段。
func (e *Extractor) ScanDetail(ctx context.Context) DetailFields {
	var fields DetailFields

	for _, selector := range categorySelectors {
		els, err := e.driver.Elements(ctx, selector)
		if err != nil || len(els) == 0 {
			continue
		}
		for _, el := range els {
			text, err := el.Text(ctx)
			if err != nil {
				continue
			}
			text = strings.TrimSpace(text)
			if text != "" {
				fields.Categories = append(fields.Categories, text)
			}
		}
		if len(fields.Categories) > 0 {
			break
		}
	}

	description := ""
	for _, selector := range descriptionSelectors {
		els, err := e.driver.Elements(ctx, selector)
		if err != nil || len(els) == 0 {
			continue
		}
		text, err := els[0].Text(ctx)
		if err != nil {
			continue
		}
		if normalized := normalizeWhitespace(text); normalized != "" {
			description = normalized
			break
		}
	}
	if description == "" {
		description = normalizeWhitespace(e.metaContent(ctx, `meta[property="og:description"]`))
	}
	fields.Description = description
	fields.ShortDescription = truncateWithEllipsis(description, shortDescriptionLimit)

	fields.ReviewRating = e.metaContent(ctx, `meta[itemprop="ratingValue"]`)
	fields.ReviewCount = e.metaContent(ctx, `meta[itemprop="reviewCount"]`)
	fields.ImageURL = e.metaContent(ctx, `meta[property="og:image"]`)

	if els, err := e.driver.Elements(ctx, ".release_date .date"); err == nil && len(els) > 0 {
		if text, err := els[0].Text(ctx); err == nil {
			fields.ReleaseDate = strings.TrimSpace(text)
		}
	}

	return fields
}

// findPriceContainer 从锚点向上走，找到文本里带货币/百分号记号的块。
func (e *Extractor) findPriceContainer(ctx context.Context, anchor Element) Element {
	current := anchor
	for level := 0; level < maxAncestorLevels; level++ {
		parent, err := current.Parent(ctx)
		if err != nil || parent == nil {
			return nil
		}
		text, err := parent.Text(ctx)
		if err == nil && containsCurrencyMarker(text) {
			return parent
		}
		current = parent
	}
	return nil
}

// extractTitle 按标题选择器、链接文本的顺序找第一段像标题的文本。
func (e *Extractor) extractTitle(ctx context.Context, container, anchor Element) string {
	for _, selector := range titleSelectors {
		els, err := container.Elements(ctx, selector)
		if err != nil {
			continue
		}
		for _, el := range els {
			text, err := el.Text(ctx)
			if err != nil {
				continue
			}
			if title := strings.TrimSpace(text); isPlausibleTitle(title) {
				return title
			}
		}
	}

	if text, err := anchor.Text(ctx); err == nil {
		if title := strings.TrimSpace(text); isPlausibleTitle(title) {
			return title
		}
	}
	return unknownTitle
}

// extractImage 返回容器里第一张来自商店 CDN 的图片地址。
func (e *Extractor) extractImage(ctx context.Context, container Element) string {
	imgs, err := container.Elements(ctx, "img")
	if err != nil {
		return ""
	}
	for _, img := range imgs {
		src, err := img.Attribute(ctx, "src")
		if err != nil || src == "" {
			continue
		}
		for _, marker := range imageMarkers {
			if strings.Contains(src, marker) {
				return src
			}
		}
	}
	return ""
}

// metaContent 读取第一个命中选择器的 meta 标签的 content 属性。
func (e *Extractor) metaContent(ctx context.Context, selector string) string {
	els, err := e.driver.Elements(ctx, selector)
	if err != nil || len(els) == 0 {
		return ""
	}
	content, err := els[0].Attribute(ctx, "content")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(content)
}

// extractPrices 从容器文本中取价格：最后一个匹配是现价，有两个以上时
// 第一个是原价。
func extractPrices(text string) (current, original string) {
	matches := pricePattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return "", ""
	}
	current = strings.TrimSpace(matches[len(matches)-1])
	if len(matches) >= 2 {
		original = strings.TrimSpace(matches[0])
	}
	return current, original
}

func containsCurrencyMarker(text string) bool {
	for _, marker := range currencyMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func hasExcludedSubpath(href string) bool {
	for _, sub := range excludedSubpaths {
		if strings.Contains(href, sub) {
			return true
		}
	}
	return false
}

// isPlausibleTitle 过滤太短的文本和评测/新闻类文案。
func isPlausibleTitle(title string) bool {
	if utf8.RuneCountInString(title) <= 3 {
		return false
	}
	lower := strings.ToLower(title)
	for _, keyword := range titleBlocklist {
		if strings.Contains(lower, keyword) {
			return false
		}
	}
	return true
}

// canonicalURL 去掉链接的查询串与锚点，作为去重键。
func canonicalURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}

// normalizeWhitespace 把连续空白折叠成单个空格。
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateWithEllipsis 超出上限时按字符截断并追加省略号。
func truncateWithEllipsis(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}
