package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/maltedev/listing-autoposter/internal/automation"
	"github.com/playwright-community/playwright-go"
)

// ErrSessionLaunch is returned when the browser cannot start, usually
// because the binary is missing or the profile is locked.
var ErrSessionLaunch = errors.New("browser session launch failed")

type Options struct {
	ProfileDir        string
	Headless          bool
	Channel           string
	KeepOpen          bool
	ElementTimeout    time.Duration
	NavigationTimeout time.Duration
	NavigationRetries int
	ViewportWidth     int
	ViewportHeight    int
	Locale            string
	TimezoneID        string
}

func DefaultOptions() *Options {
	return &Options{
		ProfileDir:        "chrome_profile",
		Headless:          false,
		KeepOpen:          true,
		ElementTimeout:    10 * time.Second,
		NavigationTimeout: 30 * time.Second,
		NavigationRetries: 2,
		ViewportWidth:     1440,
		ViewportHeight:    900,
		Locale:            "en-US",
		TimezoneID:        "America/Denver",
	}
}

// Manager owns at most one session against its profile directory.
type Manager struct {
	opts   *Options
	logger *slog.Logger

	mu     sync.Mutex
	pw     *playwright.Playwright
	active *Session
	launch func() (*Session, error)
}

func NewManager(opts *Options, logger *slog.Logger) *Manager {
	if opts == nil {
		opts = DefaultOptions()
	}
	m := &Manager{
		opts:   opts,
		logger: logger.With("component", "browser"),
	}
	m.launch = m.launchPersistent
	return m
}

// Open starts a browser on the persistent profile. A session left open by
// an earlier run is closed first.
func (m *Manager) Open(ctx context.Context) (automation.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.logger.Info("closing lingering browser session")
		if err := m.active.Close(); err != nil {
			m.logger.Warn("failed to close lingering session", "error", err)
		}
		m.active = nil
	}

	session, err := m.launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionLaunch, err)
	}

	m.active = session
	m.logger.Info("browser session opened", "profile", m.opts.ProfileDir, "headless", m.opts.Headless)
	return session, nil
}

// Release ends a run. The session stays up for manual review when KeepOpen
// is set, otherwise it is closed.
func (m *Manager) Release(s automation.Session) error {
	session, ok := s.(*Session)
	if !ok {
		return fmt.Errorf("unexpected session type %T", s)
	}

	if m.opts.KeepOpen {
		m.logger.Info("leaving browser open for manual review")
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == session {
		m.active = nil
	}
	return session.Close()
}

// Close shuts down any lingering session and the playwright driver.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.active != nil {
		if err := m.active.Close(); err != nil {
			errs = append(errs, err)
		}
		m.active = nil
	}

	if m.pw != nil {
		if err := m.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
		m.pw = nil
	}

	return errors.Join(errs...)
}

func (m *Manager) launchPersistent() (*Session, error) {
	if m.pw == nil {
		pw, err := playwright.Run()
		if err != nil {
			return nil, fmt.Errorf("failed to start playwright: %w", err)
		}
		m.pw = pw
	}

	if err := os.MkdirAll(m.opts.ProfileDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile dir: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(m.opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
		},
		Viewport: &playwright.Size{
			Width:  m.opts.ViewportWidth,
			Height: m.opts.ViewportHeight,
		},
		Locale:     playwright.String(m.opts.Locale),
		TimezoneId: playwright.String(m.opts.TimezoneID),
	}
	if m.opts.Channel != "" {
		launchOpts.Channel = playwright.String(m.opts.Channel)
	}

	bctx, err := m.pw.Chromium.LaunchPersistentContext(m.opts.ProfileDir, launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch persistent context: %w", err)
	}

	bctx.SetDefaultTimeout(float64(m.opts.ElementTimeout.Milliseconds()))
	bctx.SetDefaultNavigationTimeout(float64(m.opts.NavigationTimeout.Milliseconds()))

	return &Session{
		context: bctx,
		opts:    m.opts,
		logger:  m.logger,
		closeFn: func() error { return bctx.Close() },
	}, nil
}
