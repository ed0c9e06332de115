package automation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/maltedev/listing-autoposter/internal/models"
)

const (
	SiteCraigslist = "craigslist"
	SiteFacebook   = "facebook"
)

// Job is one listing prepared for posting. ImagePath is absolute or empty.
// When ScreenshotDir is set, failed steps capture the page there.
type Job struct {
	Listing       *models.Listing
	ImagePath     string
	ScreenshotDir string
}

// PaymentInfo fills the Craigslist billing frame.
type PaymentInfo struct {
	CardName   string `yaml:"card_name"`
	CardNumber string `yaml:"card_number"`
	ExpMonth   string `yaml:"exp_month"`
	ExpYear    string `yaml:"exp_year"`
	CVC        string `yaml:"cvc"`
	Address    string `yaml:"address"`
	City       string `yaml:"city"`
	State      string `yaml:"state"`
	Postal     string `yaml:"postal"`
	Phone      string `yaml:"phone"`
}

// Logger receives progress lines.
type Logger interface {
	Printf(format string, args ...any)
}

// Pacer delays between interactions.
type Pacer interface {
	Pace(ctx context.Context) error
}

// Driver posts one job on one site. Step failures end up in the report,
// never as an error.
type Driver interface {
	Site() string
	Post(ctx context.Context, tab Tab, job Job, log Logger) *Report
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// sequence runs the steps of one driver against one tab.
type sequence struct {
	ctx      context.Context
	tab      Tab
	job      Job
	report   *Report
	log      Logger
	pacer    Pacer
	timeout  time.Duration
	interval time.Duration
}

func newSequence(ctx context.Context, site string, tab Tab, job Job, log Logger, pacer Pacer, timeout, interval time.Duration) *sequence {
	if log == nil {
		log = nopLogger{}
	}
	return &sequence{
		ctx:      ctx,
		tab:      tab,
		job:      job,
		report:   newReport(site),
		log:      log,
		pacer:    pacer,
		timeout:  timeout,
		interval: interval,
	}
}

// step runs fn and records its outcome under state.
func (s *sequence) step(name string, state State, fn func() error) bool {
	if err := s.ctx.Err(); err != nil {
		s.skip(name, err)
		return false
	}
	if s.pacer != nil {
		if err := s.pacer.Pace(s.ctx); err != nil {
			s.skip(name, err)
			return false
		}
	}
	if err := fn(); err != nil {
		s.fail(name, err)
		return false
	}
	s.report.ok(name, state)
	return true
}

func (s *sequence) skip(name string, err error) *StepResult {
	result := s.report.skip(name, err)
	s.log.Printf("[%s] %s skipped: %v", s.report.Site, name, err)
	return result
}

// fail records a step that went wrong on the page and captures it.
func (s *sequence) fail(name string, err error) {
	result := s.skip(name, err)
	if s.job.ScreenshotDir == "" {
		return
	}

	path, shotErr := s.screenshot(name)
	if shotErr != nil {
		s.log.Printf("[%s] screenshot of %s failed: %v", s.report.Site, name, shotErr)
		return
	}
	result.Screenshot = path
	s.log.Printf("[%s] screenshot saved: %s", s.report.Site, path)
}

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// ScreenshotName is the file a failed step is captured to:
// <listing>_<site>_<step>.png.
func ScreenshotName(listingID, site, step string) string {
	safe := unsafeFileChars.ReplaceAllString(strings.ToLower(step), "-")
	return fmt.Sprintf("%s_%s_%s.png", listingID, site, safe)
}

func (s *sequence) screenshot(step string) (string, error) {
	id := ""
	if s.job.Listing != nil {
		id = s.job.Listing.ID
	}
	if err := os.MkdirAll(s.job.ScreenshotDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	path := filepath.Join(s.job.ScreenshotDir, ScreenshotName(id, s.report.Site, step))
	if err := s.tab.Screenshot(path); err != nil {
		return "", err
	}
	return path, nil
}

func (s *sequence) wait(timeout time.Duration, cond func() (bool, error)) error {
	return WaitUntil(s.ctx, WaitOptions{Timeout: timeout, Interval: s.interval}, cond)
}

func (s *sequence) fill(scope Scope, selector, value string) error {
	if err := scope.WaitFor(selector, s.timeout); err != nil {
		return err
	}
	if err := scope.Fill(selector, value); err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, err)
	}
	return nil
}

func (s *sequence) click(scope Scope, selector string) error {
	if err := scope.WaitFor(selector, s.timeout); err != nil {
		return err
	}
	if err := scope.Click(selector); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

// present waits until one of selectors matches and returns it.
func (s *sequence) present(scope Scope, selectors ...string) (string, error) {
	var found string
	err := s.wait(s.timeout, func() (bool, error) {
		for _, sel := range selectors {
			n, err := scope.Count(sel)
			if err == nil && n > 0 {
				found = sel
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrElementNotFound, selectors[0])
	}
	return found, nil
}

func (s *sequence) done() *Report {
	return s.report.finish()
}
