package browser

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maltedev/listing-autoposter/internal/automation"
	"github.com/playwright-community/playwright-go"
)

var _ automation.Session = (*Session)(nil)

// Session is one persistent browser context.
type Session struct {
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
	closeFn func() error

	mu     sync.Mutex
	closed bool
}

func (s *Session) newTab(page playwright.Page) *Tab {
	return &Tab{
		page:       page,
		timeout:    s.opts.NavigationTimeout,
		retries:    s.opts.NavigationRetries,
		retryPause: time.Second,
		logger:     s.logger,
	}
}

// InitialTab returns the first page of the context, creating one if the
// context has none.
func (s *Session) InitialTab() (automation.Tab, error) {
	pages := s.context.Pages()
	if len(pages) > 0 {
		return s.newTab(pages[0]), nil
	}

	page, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	return s.newTab(page), nil
}

// OpenTab creates a new page and leaves the existing ones untouched.
func (s *Session) OpenTab() (automation.Tab, error) {
	page, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	return s.newTab(page), nil
}

func (s *Session) SwitchTo(tab automation.Tab) error {
	t, ok := tab.(*Tab)
	if !ok {
		return fmt.Errorf("unexpected tab type %T", tab)
	}
	if err := t.BringToFront(); err != nil {
		return fmt.Errorf("failed to switch tab: %w", err)
	}
	return nil
}

// Close is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.closeFn == nil {
		return nil
	}
	if err := s.closeFn(); err != nil {
		return fmt.Errorf("failed to close context: %w", err)
	}
	return nil
}
