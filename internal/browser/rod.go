// ============================================================================
// lazyApply Browser Driver (go-rod)
// ============================================================================
//
// Package: internal/browser
// File: rod.go
// Purpose: session.Driver implementation on top of go-rod.
//
// Mapping:
//   Driver.Launch        launcher (local Chrome) or ControlURL (remote)
//   Browser.NewContext   incognito context, or the default context when a
//                        persistent user-data dir keeps logins across runs
//   BrowserContext.Page  about:blank tab
//
// ============================================================================

package browser

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/sumanthpn07/lazyApply/internal/session"
)

// Options configures the browser.
type Options struct {
	Headless    bool   `mapstructure:"headless"`
	UserDataDir string `mapstructure:"user_data_dir"` // persistent profile keeps sessions across restarts
	Bin         string `mapstructure:"bin"`           // Chrome binary, empty means auto-detect/download
	ControlURL  string `mapstructure:"control_url"`   // connect to an already running browser instead of launching
	Incognito   bool   `mapstructure:"incognito"`
}

// Driver launches browsers with go-rod.
type Driver struct {
	opts Options
}

// NewDriver returns a go-rod backed session.Driver.
func NewDriver(opts Options) *Driver {
	return &Driver{opts: opts}
}

// Launch implements session.Driver.
func (d *Driver) Launch(ctx context.Context) (session.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	controlURL := d.opts.ControlURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().Headless(d.opts.Headless)
		if d.opts.UserDataDir != "" {
			l = l.UserDataDir(d.opts.UserDataDir)
		}
		if d.opts.Bin != "" {
			l = l.Bin(d.opts.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, errors.Wrap(err, "start chrome")
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, errors.Wrapf(err, "connect to browser at %s", controlURL)
	}
	return &rodBrowser{browser: b, launcher: l, incognito: d.opts.Incognito}, nil
}

type rodBrowser struct {
	browser   *rod.Browser
	launcher  *launcher.Launcher
	incognito bool
}

func (b *rodBrowser) NewContext(ctx context.Context) (session.BrowserContext, error) {
	if !b.incognito {
		return &rodContext{browser: b.browser, owned: false}, nil
	}
	inc, err := b.browser.Incognito()
	if err != nil {
		return nil, errors.Wrap(err, "create incognito context")
	}
	return &rodContext{browser: inc, owned: true}, nil
}

func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
	return err
}

type rodContext struct {
	browser *rod.Browser
	owned   bool // false for the default context, which dies with the browser
}

func (c *rodContext) NewPage(ctx context.Context) (session.Page, error) {
	p, err := c.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, errors.Wrap(err, "create tab")
	}
	// detach from ctx so the page outlives the call that created it
	return &rodPage{page: p.Context(context.Background())}, nil
}

func (c *rodContext) Close() error {
	if !c.owned {
		return nil
	}
	return c.browser.Close()
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return errors.Wrapf(err, "navigate to %s", url)
	}
	if err := pg.WaitLoad(); err != nil {
		return errors.Wrapf(err, "wait for %s to load", url)
	}
	return nil
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) Exists(ctx context.Context, selector string) (bool, error) {
	has, _, err := p.page.Context(ctx).Has(selector)
	return has, err
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return errors.Wrapf(err, "find %s", selector)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Fill(ctx context.Context, selector, value string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return errors.Wrapf(err, "find %s", selector)
	}
	tag, err := el.Property("tagName")
	if err != nil {
		return errors.Wrapf(err, "inspect %s", selector)
	}
	if strings.EqualFold(tag.Str(), "select") {
		return el.Select([]string{value}, true, rod.SelectorTypeText)
	}
	if err := el.SelectAllText(); err != nil {
		return errors.Wrapf(err, "clear %s", selector)
	}
	return el.Input(value)
}

func (p *rodPage) FormFields(ctx context.Context) ([]session.FormField, error) {
	res, err := p.page.Context(ctx).Eval(formFieldsJS)
	if err != nil {
		return nil, errors.Wrap(err, "collect form fields")
	}
	return decodeFormFields(res.Value.Str())
}

func (p *rodPage) BodyText(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", errors.Wrap(err, "read body text")
	}
	return res.Value.Str(), nil
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
