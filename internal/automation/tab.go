// Package automation drives marketplace posting forms through a browser tab.
package automation

import (
	"context"
	"errors"
	"time"
)

// ErrElementNotFound is returned when a selector does not attach within its
// wait budget.
var ErrElementNotFound = errors.New("element not found")

// Scope locates elements by CSS or "xpath=" selectors. A page and an
// embedded frame are both scopes.
type Scope interface {
	Count(selector string) (int, error)
	Fill(selector, value string) error
	Click(selector string) error
	// ClickNth clicks the n-th match; a negative n clicks the last match.
	ClickNth(selector string, n int) error
	Value(selector string) (string, error)
	SetInputFiles(selector, path string) error
	WaitFor(selector string, timeout time.Duration) error
}

// Tab is one browser page.
type Tab interface {
	Scope
	Goto(ctx context.Context, url string) error
	URL() string
	Content() (string, error)
	Press(key string) error
	ScrollBy(dx, dy float64) error
	Frame(selector string) Scope
	BringToFront() error
	// Screenshot writes a full-page PNG to path.
	Screenshot(path string) error
}

// Session is a live browser with one or more tabs.
type Session interface {
	InitialTab() (Tab, error)
	OpenTab() (Tab, error)
	SwitchTo(tab Tab) error
}
