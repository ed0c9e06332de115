package automation

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// fakeTab is an in-memory page. Selectors present in elements exist with
// the given count; hooks simulate page reactions to clicks and uploads.
type fakeTab struct {
	mu       sync.Mutex
	url      string
	content  string
	elements map[string]int
	values   map[string]string
	files    map[string]string
	frames   map[string]*fakeTab
	clicks   []string
	pressed  []string
	scrolls  []float64
	visited  []string
	shots    []string
	shotErr  error
	onClick  map[string]func(t *fakeTab)
	onUpload func(t *fakeTab)
}

func newFakeTab() *fakeTab {
	return &fakeTab{
		elements: map[string]int{},
		values:   map[string]string{},
		files:    map[string]string{},
		frames:   map[string]*fakeTab{},
		onClick:  map[string]func(t *fakeTab){},
	}
}

func (t *fakeTab) with(selectors ...string) *fakeTab {
	for _, sel := range selectors {
		t.elements[sel] = 1
	}
	return t
}

func (t *fakeTab) set(selector string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.elements[selector] = n
}

func (t *fakeTab) missing(selector string) error {
	return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
}

func (t *fakeTab) Count(selector string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elements[selector], nil
}

func (t *fakeTab) Fill(selector, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.elements[selector] == 0 {
		return t.missing(selector)
	}
	t.values[selector] = value
	return nil
}

func (t *fakeTab) Click(selector string) error {
	return t.ClickNth(selector, 0)
}

func (t *fakeTab) ClickNth(selector string, n int) error {
	t.mu.Lock()
	if t.elements[selector] == 0 {
		t.mu.Unlock()
		return t.missing(selector)
	}
	if n == 0 {
		t.clicks = append(t.clicks, selector)
	} else {
		t.clicks = append(t.clicks, fmt.Sprintf("%s#%d", selector, n))
	}
	hook := t.onClick[selector]
	t.mu.Unlock()

	if hook != nil {
		hook(t)
	}
	return nil
}

func (t *fakeTab) Value(selector string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.elements[selector] == 0 {
		return "", t.missing(selector)
	}
	return t.values[selector], nil
}

func (t *fakeTab) SetInputFiles(selector, path string) error {
	t.mu.Lock()
	if t.elements[selector] == 0 {
		t.mu.Unlock()
		return t.missing(selector)
	}
	t.files[selector] = path
	hook := t.onUpload
	t.mu.Unlock()

	if hook != nil {
		hook(t)
	}
	return nil
}

func (t *fakeTab) WaitFor(selector string, _ time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.elements[selector] == 0 {
		return t.missing(selector)
	}
	return nil
}

func (t *fakeTab) Goto(_ context.Context, url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.url = url
	t.visited = append(t.visited, url)
	return nil
}

func (t *fakeTab) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

func (t *fakeTab) Content() (string, error) {
	return t.content, nil
}

func (t *fakeTab) Press(key string) error {
	t.pressed = append(t.pressed, key)
	return nil
}

func (t *fakeTab) ScrollBy(_, dy float64) error {
	t.scrolls = append(t.scrolls, dy)
	return nil
}

func (t *fakeTab) Frame(selector string) Scope {
	if f, ok := t.frames[selector]; ok {
		return f
	}
	return newFakeTab()
}

func (t *fakeTab) BringToFront() error {
	return nil
}

func (t *fakeTab) Screenshot(path string) error {
	if t.shotErr != nil {
		return t.shotErr
	}
	t.shots = append(t.shots, path)
	return os.WriteFile(path, []byte("png"), 0o644)
}

func (t *fakeTab) clicked(selector string) int {
	n := 0
	for _, c := range t.clicks {
		if c == selector {
			n++
		}
	}
	return n
}

// recordingLogger collects Printf lines.
type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) Printf(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}
