// Package orchestrator runs the site drivers for one listing and records
// the outcome in the store.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/listing-autoposter/internal/automation"
	"github.com/maltedev/listing-autoposter/internal/models"
	"github.com/maltedev/listing-autoposter/internal/ratelimit"
	"github.com/maltedev/listing-autoposter/internal/runlog"
	"github.com/maltedev/listing-autoposter/internal/storage"
)

// Browser hands out sessions against the persistent profile.
type Browser interface {
	Open(ctx context.Context) (automation.Session, error)
	Release(session automation.Session) error
}

// Guard limits how often a platform is posted to.
type Guard interface {
	Allow(ctx context.Context, platform string) (ratelimit.Decision, error)
	Record(ctx context.Context, platform string) error
}

type Config struct {
	ImageDir       string
	ImageTempName  string
	TerminalStatus models.Status

	// EnforcePolicy skips Facebook when the listing breaks marketplace
	// commerce rules.
	EnforcePolicy bool

	// DebugDir receives screenshots of failed steps. Files older than
	// DebugRetention are pruned at the start of each run.
	DebugDir       string
	DebugRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		ImageDir:       ".",
		ImageTempName:  "temp_image.jpg",
		TerminalStatus: models.StatusActive,
		DebugRetention: 24 * time.Hour,
	}
}

type Orchestrator struct {
	store      storage.Store
	browser    Browser
	craigslist automation.Driver
	facebook   automation.Driver
	guard      Guard
	cfg        Config
	logger     *slog.Logger

	// one session per profile at a time
	mu sync.Mutex
}

func New(store storage.Store, browser Browser, craigslist, facebook automation.Driver, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.ImageTempName == "" {
		cfg.ImageTempName = "temp_image.jpg"
	}
	if cfg.TerminalStatus == "" {
		cfg.TerminalStatus = models.StatusActive
	}
	return &Orchestrator{
		store:      store,
		browser:    browser,
		craigslist: craigslist,
		facebook:   facebook,
		cfg:        cfg,
		logger:     logger.With("component", "orchestrator"),
	}
}

// WithGuard enables posting limits.
func (o *Orchestrator) WithGuard(g Guard) *Orchestrator {
	o.guard = g
	return o
}

type runOptions struct {
	terminal models.Status
}

type RunOption func(*runOptions)

// WithTerminalStatus overrides the status written when the run ends.
func WithTerminalStatus(s models.Status) RunOption {
	return func(o *runOptions) {
		o.terminal = s
	}
}

// RunReport describes one run.
type RunReport struct {
	ListingID  string               `json:"listing_id"`
	Title      string               `json:"title"`
	ImagePath  string               `json:"image_path,omitempty"`
	Problems   []string             `json:"problems,omitempty"`
	Policy     *models.PolicyReport `json:"policy,omitempty"`
	Sites      []*automation.Report `json:"sites"`
	Denied     map[string]string    `json:"denied,omitempty"`
	Status     models.Status        `json:"status"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}

// Run posts listing to its target platforms and marks it terminal. Driver
// step failures never fail the run; image decoding, browser launch and the
// final store update do.
func (o *Orchestrator) Run(ctx context.Context, listing *models.Listing, sink runlog.Sink, opts ...RunOption) (*RunReport, error) {
	ro := runOptions{terminal: o.cfg.TerminalStatus}
	for _, opt := range opts {
		opt(&ro)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	logger := o.logger.With("listing_id", listing.ID)
	log := runlog.NewLogger(sink, logger)

	report := &RunReport{
		ListingID: listing.ID,
		Title:     listing.Title,
		Sites:     []*automation.Report{},
		Status:    listing.Status,
		StartedAt: time.Now().UTC(),
	}

	log.Printf("Starting automation for: %s", listing.Title)
	o.pruneDebug()

	imagePath, err := o.ResolveImage(listing)
	if err != nil {
		log.Errorf("Image preparation failed: %v", err)
		report.FinishedAt = time.Now().UTC()
		return report, err
	}
	report.ImagePath = imagePath
	if imagePath != "" {
		log.Printf("Image ready: %s", imagePath)
		if listing.ImageData != "" {
			defer o.removeTempImage(imagePath)
		}
	} else {
		log.Printf("No image attached, upload steps will be skipped")
	}

	report.Problems = listing.Validate()
	for _, p := range report.Problems {
		log.Printf("Listing check: %s", p)
	}

	wantCL, wantFB := listing.Platform.Targets()
	if !wantCL && !wantFB {
		log.Printf("No driver matches platform %q", listing.Platform)
	} else {
		if wantFB && o.facebook != nil && o.cfg.EnforcePolicy {
			wantFB = o.policyAllows(listing, imagePath, log, report)
		}
		wantCL = wantCL && o.craigslist != nil && o.permitted(ctx, o.craigslist.Site(), log, report)
		wantFB = wantFB && o.facebook != nil && o.permitted(ctx, o.facebook.Site(), log, report)
		if wantCL || wantFB {
			if err := o.post(ctx, listing, imagePath, wantCL, wantFB, log, report); err != nil {
				report.FinishedAt = time.Now().UTC()
				return report, err
			}
		} else {
			log.Printf("No site left to post to, browser not opened")
		}
	}

	err = o.markTerminal(ctx, listing.ID, ro.terminal, log)
	if err == nil {
		report.Status = ro.terminal
	}

	for _, site := range report.Sites {
		log.Printf("Summary %s", site.Summary())
	}
	log.Printf("Job complete: %s", listing.Title)
	report.FinishedAt = time.Now().UTC()

	return report, err
}

func (o *Orchestrator) post(ctx context.Context, listing *models.Listing, imagePath string, wantCL, wantFB bool, log *runlog.Logger, report *RunReport) error {
	session, err := o.browser.Open(ctx)
	if err != nil {
		log.Errorf("Browser launch failed: %v", err)
		return err
	}
	log.Printf("Browser launched")

	defer func() {
		if err := o.browser.Release(session); err != nil {
			o.logger.Warn("failed to release browser session", "error", err)
		}
	}()

	job := automation.Job{Listing: listing, ImagePath: imagePath, ScreenshotDir: o.cfg.DebugDir}

	if wantCL {
		tab, err := session.InitialTab()
		if err != nil {
			log.Errorf("No tab for %s: %v", o.craigslist.Site(), err)
		} else {
			o.runDriver(ctx, o.craigslist, tab, job, log, report)
		}
	}

	if wantFB {
		tab, err := session.OpenTab()
		if err == nil {
			err = session.SwitchTo(tab)
		}
		if err != nil {
			log.Errorf("No tab for %s: %v", o.facebook.Site(), err)
		} else {
			o.runDriver(ctx, o.facebook, tab, job, log, report)
		}
	}

	return nil
}

func (o *Orchestrator) runDriver(ctx context.Context, d automation.Driver, tab automation.Tab, job automation.Job, log *runlog.Logger, report *RunReport) {
	site := d.Site()
	log.Printf("Posting to %s", site)

	result := d.Post(ctx, tab, job, log)
	report.Sites = append(report.Sites, result)

	if o.guard != nil {
		if err := o.guard.Record(ctx, site); err != nil {
			o.logger.Warn("failed to record post", "site", site, "error", err)
		}
	}
}

// policyAllows runs the marketplace policy check and reports whether
// Facebook may still be posted to.
func (o *Orchestrator) policyAllows(listing *models.Listing, imagePath string, log *runlog.Logger, report *RunReport) bool {
	img := models.Image{Path: imagePath}
	if imagePath != "" {
		if info, err := os.Stat(imagePath); err == nil {
			img.Size = info.Size()
		}
	}

	policy := listing.MarketplacePolicy(img)
	report.Policy = &policy
	for _, w := range policy.Warnings {
		log.Printf("Facebook policy warning: %s", w)
	}
	if policy.OK() {
		return true
	}

	for _, e := range policy.Errors {
		log.Printf("Facebook policy: %s", e)
	}
	o.deny(report, o.facebook.Site(), fmt.Sprintf("marketplace policy: %s", strings.Join(policy.Errors, "; ")))
	log.Printf("Skipping %s: listing breaks marketplace policy", o.facebook.Site())
	return false
}

func (o *Orchestrator) deny(report *RunReport, site, reason string) {
	if report.Denied == nil {
		report.Denied = make(map[string]string)
	}
	report.Denied[site] = reason
}

// permitted consults the guard. A guard failure does not block posting.
func (o *Orchestrator) permitted(ctx context.Context, site string, log *runlog.Logger, report *RunReport) bool {
	if o.guard == nil {
		return true
	}

	d, err := o.guard.Allow(ctx, site)
	if err != nil {
		o.logger.Warn("posting guard unavailable", "site", site, "error", err)
		return true
	}
	if !d.Allowed {
		o.deny(report, site, d.Reason)
		log.Printf("Skipping %s: %s", site, d.Reason)
		return false
	}
	return true
}

// markTerminal writes status unless the listing already has it.
func (o *Orchestrator) markTerminal(ctx context.Context, id string, status models.Status, log *runlog.Logger) error {
	current, err := o.store.Get(ctx, id)
	if err != nil {
		log.Errorf("Could not load listing to update status: %v", err)
		return fmt.Errorf("%w: loading listing %s: %w", storage.ErrStore, id, err)
	}

	if current.Status == status {
		log.Printf("Listing already %s", status)
		return nil
	}
	if current.Status.IsTerminal() {
		log.Printf("Listing was already posted as %s", current.Status)
	}

	if err := o.store.UpdateStatus(ctx, id, status); err != nil {
		log.Errorf("Status update failed: %v", err)
		return fmt.Errorf("%w: updating listing %s: %w", storage.ErrStore, id, err)
	}

	log.Printf("Database updated: status %s", status)
	return nil
}
