package automation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	fbFileInput = `input[type="file"]`
	fbPreview   = `img[src^="blob:"]`
	fbNext      = `div[aria-label="Next"]`
)

// errManualCategory marks the category step as left to a human.
var errManualCategory = errors.New("category must be chosen manually")

// FacebookConfig controls the Marketplace driver. ScrollSteps and
// ScrollDelta move the page down to the delivery options before review.
type FacebookConfig struct {
	CreateURL      string
	ScrollSteps    int
	ScrollDelta    float64
	ElementTimeout time.Duration
	SettleTimeout  time.Duration
	PollInterval   time.Duration
}

func DefaultFacebookConfig() FacebookConfig {
	return FacebookConfig{
		CreateURL:      "https://www.facebook.com/marketplace/create/item",
		ScrollSteps:    5,
		ScrollDelta:    300,
		ElementTimeout: 10 * time.Second,
		SettleTimeout:  15 * time.Second,
		PollInterval:   250 * time.Millisecond,
	}
}

// Facebook fills the Marketplace "create item" form and stops before
// publishing. The category is always left for a human to choose.
type Facebook struct {
	cfg   FacebookConfig
	pacer Pacer
}

// NewFacebook returns a driver that spaces its actions with pacer.
func NewFacebook(cfg FacebookConfig, pacer Pacer) *Facebook {
	return &Facebook{cfg: cfg, pacer: pacer}
}

func (f *Facebook) Site() string {
	return SiteFacebook
}

// fieldSelectors locates an input or textarea by its label, first by
// aria-label and then by a span inside the label.
func fieldSelectors(label string) []string {
	return []string{
		fmt.Sprintf(`label[aria-label=%q] input, label[aria-label=%q] textarea`, label, label),
		fmt.Sprintf(`xpath=//label[.//span[contains(text(), '%s')]]//input | //label[.//span[contains(text(), '%s')]]//textarea`, label, label),
	}
}

// Post fills the item form on tab. Like Craigslist.Post, step failures are
// reported rather than returned.
func (f *Facebook) Post(ctx context.Context, tab Tab, job Job, log Logger) *Report {
	s := newSequence(ctx, SiteFacebook, tab, job, log, f.pacer, f.cfg.ElementTimeout, f.cfg.PollInterval)
	listing := job.Listing

	s.log.Printf("[facebook] Opening %s", f.cfg.CreateURL)
	s.step("navigate", Navigated, func() error {
		if err := tab.Goto(s.ctx, f.cfg.CreateURL); err != nil {
			return err
		}
		DismissPopups(tab)
		return nil
	})

	s.log.Printf("[facebook] Filling details")
	var titleSel string
	var formErr error
	s.step("locate form", FormLocated, func() error {
		titleSel, formErr = s.present(tab, fieldSelectors("Title")...)
		return formErr
	})

	fill := func(name, label, value string) {
		if formErr != nil {
			s.skip(name, fmt.Errorf("form not located: %w", formErr))
			return
		}
		s.step(name, FormFilled, func() error {
			sel := titleSel
			if label != "Title" || sel == "" {
				var err error
				if sel, err = s.present(tab, fieldSelectors(label)...); err != nil {
					return err
				}
			}
			return s.fill(tab, sel, value)
		})
	}

	fill("title", "Title", listing.Title)
	fill("price", "Price", listing.Price.Digits())
	fill("description", "Description", listing.Description)

	s.skip("category", errManualCategory)

	if job.ImagePath == "" {
		s.skip("upload image", errors.New("no image for listing"))
	} else {
		s.log.Printf("[facebook] Uploading image: %s", job.ImagePath)
		s.step("upload image", ImageUploaded, func() error {
			if err := tab.WaitFor(fbFileInput, f.cfg.ElementTimeout); err != nil {
				return err
			}
			if err := tab.SetInputFiles(fbFileInput, job.ImagePath); err != nil {
				return err
			}
			err := s.wait(f.cfg.SettleTimeout, func() (bool, error) {
				n, err := tab.Count(fbPreview)
				return n > 0, err
			})
			if err != nil {
				return fmt.Errorf("waiting for preview: %w", err)
			}
			return nil
		})
	}

	s.log.Printf("[facebook] Delivery setup")
	s.step("review", PaymentOrReview, func() error {
		for i := 0; i < f.cfg.ScrollSteps; i++ {
			if err := tab.ScrollBy(0, f.cfg.ScrollDelta); err != nil {
				return err
			}
		}
		return s.click(tab, fbNext)
	})

	report := s.done()
	s.log.Printf("[facebook] Finished, %s", report.Summary())
	return report
}
