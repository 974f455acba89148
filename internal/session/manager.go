// ============================================================================
// lazyApply Session Manager
// ============================================================================
//
// Package: internal/session
// File: manager.go
// Purpose: Owns the single browser session and its one active page.
//
// Lifecycle:
//   EnsureSession  lazily launches browser + context, idempotent
//   ActivePage     returns the active page, opening one if needed
//   ReleasePage    closes the active page (every exit path of an attempt)
//   Detach/Adopt   hand the page to the auth coordinator and back
//   Shutdown       page -> context -> browser, each step best effort
//
// Single writer: only the orchestrator loop calls ActivePage/ReleasePage.
// The mutex exists because Shutdown may arrive from a control call.
//
// ============================================================================

package session

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sumanthpn07/lazyApply/internal/logger"
)

// ErrNoSession is returned by ActivePage when the session could not start.
var ErrNoSession = errors.New("browser session not available")

// Manager owns the browser session.
type Manager struct {
	mu      sync.Mutex
	driver  Driver
	browser Browser
	bctx    BrowserContext
	page    Page
	id      string
	log     *zap.SugaredLogger
}

// NewManager creates a Manager; nothing is launched until first use.
func NewManager(driver Driver, log *zap.SugaredLogger) *Manager {
	return &Manager{
		driver: driver,
		log:    logger.OrNop(log),
	}
}

// EnsureSession launches the browser and a context if not running.
func (m *Manager) EnsureSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLocked(ctx)
}

func (m *Manager) ensureLocked(ctx context.Context) error {
	if m.browser != nil && m.bctx != nil {
		return nil
	}
	if m.browser == nil {
		b, err := m.driver.Launch(ctx)
		if err != nil {
			return errors.Wrap(err, "launch browser")
		}
		m.browser = b
		m.id = uuid.NewString()
		m.log.Infow("Browser session started", logger.FieldSessionID, m.id)
	}
	bctx, err := m.browser.NewContext(ctx)
	if err != nil {
		return errors.Wrap(err, "open browser context")
	}
	m.bctx = bctx
	return nil
}

// ActivePage returns the active page, creating one if there is none.
func (m *Manager) ActivePage(ctx context.Context) (Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.page != nil {
		return m.page, nil
	}
	if err := m.ensureLocked(ctx); err != nil {
		return nil, errors.Mark(err, ErrNoSession)
	}
	p, err := m.bctx.NewPage(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "open page")
	}
	m.page = p
	return p, nil
}

// HasActivePage reports whether a page is currently active.
func (m *Manager) HasActivePage() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.page != nil
}

// ReleasePage closes the active page. Close failures are logged.
func (m *Manager) ReleasePage() {
	m.mu.Lock()
	p := m.page
	m.page = nil
	m.mu.Unlock()

	if p == nil {
		return
	}
	if err := p.Close(); err != nil {
		m.log.Warnw("Failed to close page", logger.FieldSessionID, m.id, logger.FieldError, err)
	}
}

// Detach gives up ownership of the active page without closing it.
func (m *Manager) Detach() Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.page
	m.page = nil
	return p
}

// Adopt makes p the active page again. Any other active page is closed.
func (m *Manager) Adopt(p Page) {
	m.mu.Lock()
	prev := m.page
	m.page = p
	m.mu.Unlock()

	if prev != nil && prev != p {
		if err := prev.Close(); err != nil {
			m.log.Warnw("Failed to close replaced page", logger.FieldError, err)
		}
	}
}

// Running reports whether a browser is currently launched.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser != nil
}

// Shutdown tears down page, context and browser in that order.
// Every step is best effort; the manager can be used again afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	p, bctx, b, id := m.page, m.bctx, m.browser, m.id
	m.page, m.bctx, m.browser, m.id = nil, nil, nil, ""
	m.mu.Unlock()

	if p != nil {
		if err := p.Close(); err != nil {
			m.log.Warnw("Failed to close page during shutdown", logger.FieldSessionID, id, logger.FieldError, err)
		}
	}
	if bctx != nil {
		if err := bctx.Close(); err != nil {
			m.log.Warnw("Failed to close browser context during shutdown", logger.FieldSessionID, id, logger.FieldError, err)
		}
	}
	if b != nil {
		if err := b.Close(); err != nil {
			m.log.Warnw("Failed to close browser during shutdown", logger.FieldSessionID, id, logger.FieldError, err)
		}
		m.log.Infow("Browser session stopped", logger.FieldSessionID, id)
	}
}
