// Package sessiontest provides in-memory browser fakes for tests.
package sessiontest

import (
	"context"
	"errors"
	"sync"

	"github.com/sumanthpn07/lazyApply/internal/session"
)

// Driver is a fake session.Driver that records every object it creates.
type Driver struct {
	mu         sync.Mutex
	LaunchErr  error
	PageErr    error
	Browsers   []*Browser
	Contexts   []*Context
	Pages      []*Page
	closeOrder []string
}

// Launch implements session.Driver.
func (d *Driver) Launch(ctx context.Context) (session.Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	b := &Browser{driver: d}
	d.Browsers = append(d.Browsers, b)
	return b, nil
}

// CloseOrder returns the kinds of objects closed, in order.
func (d *Driver) CloseOrder() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.closeOrder...)
}

// OpenPages counts pages not yet closed.
func (d *Driver) OpenPages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, p := range d.Pages {
		if !p.closed {
			n++
		}
	}
	return n
}

// PageCount is the number of pages ever opened.
func (d *Driver) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Pages)
}

func (d *Driver) recordClose(kind string) {
	d.mu.Lock()
	d.closeOrder = append(d.closeOrder, kind)
	d.mu.Unlock()
}

// Browser is a fake session.Browser.
type Browser struct {
	driver *Driver
	Closed bool
}

// NewContext implements session.Browser.
func (b *Browser) NewContext(ctx context.Context) (session.BrowserContext, error) {
	c := &Context{driver: b.driver}
	b.driver.mu.Lock()
	b.driver.Contexts = append(b.driver.Contexts, c)
	b.driver.mu.Unlock()
	return c, nil
}

// Close implements session.Browser.
func (b *Browser) Close() error {
	b.Closed = true
	b.driver.recordClose("browser")
	return nil
}

// Context is a fake session.BrowserContext.
type Context struct {
	driver *Driver
	Closed bool
}

// NewPage implements session.BrowserContext.
func (c *Context) NewPage(ctx context.Context) (session.Page, error) {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()
	if c.driver.PageErr != nil {
		return nil, c.driver.PageErr
	}
	p := &Page{driver: c.driver}
	c.driver.Pages = append(c.driver.Pages, p)
	return p, nil
}

// Close implements session.BrowserContext.
func (c *Context) Close() error {
	c.Closed = true
	c.driver.recordClose("context")
	return nil
}

// ErrPageClosed is returned by a closed fake page.
var ErrPageClosed = errors.New("page closed")

// Page is a fake session.Page.
type Page struct {
	driver      *Driver
	mu          sync.Mutex
	url         string
	closed      bool
	Visited     []string
	NavigateErr error
}

// Navigate implements session.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPageClosed
	}
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.url = url
	p.Visited = append(p.Visited, url)
	return nil
}

// URL implements session.Page.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Exists implements session.Page.
func (p *Page) Exists(ctx context.Context, selector string) (bool, error) { return false, nil }

// Click implements session.Page.
func (p *Page) Click(ctx context.Context, selector string) error { return nil }

// Fill implements session.Page.
func (p *Page) Fill(ctx context.Context, selector, value string) error { return nil }

// FormFields implements session.Page.
func (p *Page) FormFields(ctx context.Context) ([]session.FormField, error) { return nil, nil }

// BodyText implements session.Page.
func (p *Page) BodyText(ctx context.Context) (string, error) { return "", nil }

// Close implements session.Page.
func (p *Page) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	if p.driver != nil {
		p.driver.recordClose("page")
	}
	return nil
}

// IsClosed reports whether Close was called.
func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
