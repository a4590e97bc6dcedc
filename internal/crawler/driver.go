package crawler

import (
	"context"
	"time"
)

// Element 是页面元素的最小能力集。
type Element interface {
	// Text 返回元素的可见文本。
	Text(ctx context.Context) (string, error)
	// Attribute 返回指定属性值，属性不存在时返回空字符串。
	Attribute(ctx context.Context, name string) (string, error)
	// Click 点击元素。
	Click(ctx context.Context) error
	// Parent 返回父元素，到达文档根时返回 nil。
	Parent(ctx context.Context) (Element, error)
	// Elements 在元素内按 CSS 选择器查找子元素。
	Elements(ctx context.Context, selector string) ([]Element, error)
}

// Driver 是浏览器自动化后端的能力接口。
//
// 抓取核心只依赖这组能力，任何满足它的自动化后端都可以替换注入，
// 测试里用假实现驱动 orchestrator。
type Driver interface {
	// Navigate 打开指定 URL。
	Navigate(ctx context.Context, url string) error
	// CurrentURL 返回当前页面地址。
	CurrentURL(ctx context.Context) (string, error)
	// Elements 按 CSS 选择器查找元素。
	Elements(ctx context.Context, selector string) ([]Element, error)
	// ElementsX 按 XPath 查找元素。
	ElementsX(ctx context.Context, xpath string) ([]Element, error)
	// WaitVisible 等待选择器命中的元素可见，超时返回错误。
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	// Close 关闭浏览器会话。
	Close() error
}
