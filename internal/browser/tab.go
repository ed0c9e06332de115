package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/listing-autoposter/internal/automation"
	"github.com/playwright-community/playwright-go"
)

// scope resolves selectors against a page or a frame.
type scope struct {
	locate func(selector string) playwright.Locator
}

func (s scope) first(selector string) playwright.Locator {
	return s.locate(selector).First()
}

func (s scope) Count(selector string) (int, error) {
	return s.locate(selector).Count()
}

func (s scope) Fill(selector, value string) error {
	return s.first(selector).Fill(value)
}

func (s scope) Click(selector string) error {
	return s.first(selector).Click()
}

func (s scope) ClickNth(selector string, n int) error {
	loc := s.locate(selector)
	if n < 0 {
		return loc.Last().Click()
	}
	return loc.Nth(n).Click()
}

func (s scope) Value(selector string) (string, error) {
	return s.first(selector).InputValue()
}

func (s scope) SetInputFiles(selector, path string) error {
	return s.first(selector).SetInputFiles(path)
}

// WaitFor waits until selector is attached; hidden elements count.
func (s scope) WaitFor(selector string, timeout time.Duration) error {
	err := s.first(selector).WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %s", automation.ErrElementNotFound, selector)
	}
	return fmt.Errorf("waiting for %s: %w", selector, err)
}

var _ automation.Tab = (*Tab)(nil)

// Tab implements automation.Tab on a playwright page.
type Tab struct {
	page       playwright.Page
	timeout    time.Duration
	retries    int
	retryPause time.Duration
	logger     *slog.Logger
}

func (t *Tab) scope() scope {
	return scope{locate: func(selector string) playwright.Locator {
		return t.page.Locator(selector)
	}}
}

func (t *Tab) Count(selector string) (int, error) { return t.scope().Count(selector) }
func (t *Tab) Fill(selector, value string) error { return t.scope().Fill(selector, value) }
func (t *Tab) Click(selector string) error { return t.scope().Click(selector) }
func (t *Tab) ClickNth(selector string, n int) error { return t.scope().ClickNth(selector, n) }
func (t *Tab) Value(selector string) (string, error) { return t.scope().Value(selector) }

func (t *Tab) SetInputFiles(selector, path string) error {
	return t.scope().SetInputFiles(selector, path)
}

func (t *Tab) WaitFor(selector string, timeout time.Duration) error {
	return t.scope().WaitFor(selector, timeout)
}

// Goto navigates and retries with a growing pause on failure. Cancelling
// ctx ends the pause.
func (t *Tab) Goto(ctx context.Context, url string) error {
	attempts := t.retries + 1
	var lastErr error

	for i := 0; i < attempts; i++ {
		if i > 0 {
			t.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			if err := pause(ctx, time.Duration(i)*t.retryPause); err != nil {
				return fmt.Errorf("navigation to %s abandoned: %w", url, err)
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		_, err := t.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(t.timeout.Milliseconds())),
		})
		if err == nil {
			return nil
		}

		lastErr = err
		t.logger.Error("navigation failed", "error", err, "attempt", i+1)
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Tab) URL() string {
	return t.page.URL()
}

func (t *Tab) Content() (string, error) {
	return t.page.Content()
}

func (t *Tab) Press(key string) error {
	return t.page.Keyboard().Press(key)
}

func (t *Tab) ScrollBy(dx, dy float64) error {
	return t.page.Mouse().Wheel(dx, dy)
}

// Frame scopes lookups to the first frame matching selector.
func (t *Tab) Frame(selector string) automation.Scope {
	frame := t.page.FrameLocator(selector).First()
	return scope{locate: func(sel string) playwright.Locator {
		return frame.Locator(sel)
	}}
}

func (t *Tab) BringToFront() error {
	return t.page.BringToFront()
}

func (t *Tab) Screenshot(path string) error {
	_, err := t.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to capture %s: %w", path, err)
	}
	return nil
}
