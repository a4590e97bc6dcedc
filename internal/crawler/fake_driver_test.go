package crawler

import (
	"context"
	"time"
)

// fakeElement 是 Element 的内存实现，用树结构模拟 DOM。
type fakeElement struct {
	text     string
	attrs    map[string]string
	parent   *fakeElement
	children map[string][]Element
	clickErr error
	clicks   int
}

func (f *fakeElement) Text(ctx context.Context) (string, error) {
	return f.text, nil
}

func (f *fakeElement) Attribute(ctx context.Context, name string) (string, error) {
	return f.attrs[name], nil
}

func (f *fakeElement) Click(ctx context.Context) error {
	if f.clickErr != nil {
		return f.clickErr
	}
	f.clicks++
	return nil
}

func (f *fakeElement) Parent(ctx context.Context) (Element, error) {
	if f.parent == nil {
		return nil, nil
	}
	return f.parent, nil
}

func (f *fakeElement) Elements(ctx context.Context, selector string) ([]Element, error) {
	return f.children[selector], nil
}

// fakePage 按选择器/XPath 保存一张页面上可查到的元素。
type fakePage struct {
	selectors map[string][]Element
	xpaths    map[string][]Element
}

// fakeDriver 是 Driver 的内存实现，按 URL 维护一组页面。
type fakeDriver struct {
	currentURL string
	pages      map[string]*fakePage
	navigated  []string
	navErr     map[string]error
	waited     []string
	waitErr    error
	closed     bool
}

var (
	_ Driver  = (*fakeDriver)(nil)
	_ Element = (*fakeElement)(nil)
)

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		pages:  make(map[string]*fakePage),
		navErr: make(map[string]error),
	}
}

func (d *fakeDriver) addPage(url string) *fakePage {
	page := &fakePage{
		selectors: make(map[string][]Element),
		xpaths:    make(map[string][]Element),
	}
	d.pages[url] = page
	return page
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	if err := d.navErr[url]; err != nil {
		return err
	}
	d.currentURL = url
	d.navigated = append(d.navigated, url)
	return nil
}

func (d *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	return d.currentURL, nil
}

func (d *fakeDriver) Elements(ctx context.Context, selector string) ([]Element, error) {
	if page := d.pages[d.currentURL]; page != nil {
		return page.selectors[selector], nil
	}
	return nil, nil
}

func (d *fakeDriver) ElementsX(ctx context.Context, xpath string) ([]Element, error) {
	if page := d.pages[d.currentURL]; page != nil {
		return page.xpaths[xpath], nil
	}
	return nil, nil
}

func (d *fakeDriver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	d.waited = append(d.waited, selector)
	if d.waitErr != nil {
		return nil, d.waitErr
	}
	return nil, nil
}

func (d *fakeDriver) Close() error {
	d.closed = true
	return nil
}

// newListingAnchor 构造一个商品锚点：锚点文本是标题，父块文本里带价格。
func newListingAnchor(href, title, blockText string) *fakeElement {
	anchor := &fakeElement{
		text:  title,
		attrs: map[string]string{"href": href},
	}
	anchor.parent = &fakeElement{text: blockText}
	return anchor
}
